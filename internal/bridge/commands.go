package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"furitingoasis/smart_irrigation/internal/irrigation"
	"furitingoasis/smart_irrigation/internal/models"
	"furitingoasis/smart_irrigation/internal/wire"
)

// Command origins, used as a metrics label.
const (
	originClient = "client"
	originEngine = "engine"
	originResync = "resync"
)

// pendingCommand is a command published to the device whose state report
// has not arrived yet. At most one exists per field.
type pendingCommand struct {
	id       string
	field    irrigation.Field
	value    bool
	clientID string
	sentAt   time.Time
	timer    *time.Timer
}

func describe(field irrigation.Field, value bool) string {
	switch field {
	case irrigation.FieldPump:
		return fmt.Sprintf("pump=%t", value)
	case irrigation.FieldAutoMode:
		return fmt.Sprintf("auto mode=%t", value)
	}
	return fmt.Sprintf("%s=%t", field, value)
}

func (b *Bridge) publish(cmd wire.Command, origin string) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if err := b.bus.Publish(wire.CommandTopic(b.opts.DeviceID), payload); err != nil {
		return fmt.Errorf("publish %s: %w", cmd.Action, err)
	}
	b.metrics.CommandsSent.WithLabelValues(string(cmd.Action), origin).Inc()
	return nil
}

// sendToggle publishes a PUMP or TOGGLE_AUTO command and records it as
// pending. Nothing is recorded when the publish fails.
func (b *Bridge) sendToggle(field irrigation.Field, value bool, clientID, origin string) error {
	id := b.newID()
	var cmd wire.Command
	switch field {
	case irrigation.FieldPump:
		cmd = wire.PumpCommand(id, value)
	case irrigation.FieldAutoMode:
		cmd = wire.ToggleAutoCommand(id, value)
	default:
		return fmt.Errorf("no command for field %q", field)
	}
	if err := b.publish(cmd, origin); err != nil {
		return err
	}

	p := &pendingCommand{id: id, field: field, value: value, clientID: clientID, sentAt: b.now()}
	if b.opts.ConfirmTimeout > 0 {
		p.timer = time.AfterFunc(b.opts.ConfirmTimeout, func() {
			b.submit(func() { b.expire(field, id) })
		})
	}
	b.pending[field] = p
	return nil
}

func (b *Bridge) clearPending(p *pendingCommand) {
	if p.timer != nil {
		p.timer.Stop()
	}
	if b.pending[p.field] == p {
		delete(b.pending, p.field)
	}
}

// expire drops a pending command the device never confirmed.
func (b *Bridge) expire(field irrigation.Field, id string) {
	p := b.pending[field]
	if p == nil || p.id != id {
		return
	}
	delete(b.pending, field)
	b.metrics.CommandTimeouts.Inc()
	b.logger.Warn("device did not confirm command",
		"field", field, "value", p.value, "waited", b.now().Sub(p.sentAt))
	b.ack(p.clientID, false, fmt.Sprintf("Device did not respond to the %s request within %s.",
		describe(field, p.value), b.opts.ConfirmTimeout))
}

func (b *Bridge) forgetClient(clientID string) {
	for _, p := range b.pending {
		if p.clientID == clientID {
			p.clientID = ""
		}
	}
}

func (b *Bridge) handleClientFrame(clientID string, f wire.Frame) {
	cmd, err := wire.DecodeClientCommand(f)
	if err != nil {
		b.metrics.DroppedMessages.WithLabelValues("client").Inc()
		b.logger.Warn("dropping client frame", "client", clientID, "error", err)
		return
	}

	switch cmd.Event {
	case wire.EventPump:
		b.requestPump(clientID, cmd.Enable)
	case wire.EventToggleAutoMode:
		b.requestAutoMode(clientID, cmd.Enable)
	case wire.EventChangePlantType:
		b.requestPlantType(clientID, cmd.PlantType)
	}
}

func (b *Bridge) reject(clientID, event, message string) {
	b.metrics.CommandsRejected.WithLabelValues(event).Inc()
	b.logger.Info("command rejected", "client", clientID, "event", event, "reason", message)
	b.ack(clientID, false, message)
}

func (b *Bridge) requestPump(clientID string, enable bool) {
	b.logger.Info("pump requested", "client", clientID, "enable", enable)
	st := b.mirror.State()
	switch {
	case st.AutoMode:
		b.reject(clientID, wire.EventPump, "Cannot manually start pump while in auto mode.")
		return
	case enable == st.PumpActive:
		b.reject(clientID, wire.EventPump, "Pump state is already set to the requested value.")
		return
	case b.pending[irrigation.FieldPump] != nil:
		b.reject(clientID, wire.EventPump, "A pump command is already awaiting device confirmation.")
		return
	}

	if err := b.sendToggle(irrigation.FieldPump, enable, clientID, originClient); err != nil {
		b.logger.Error("send pump command", "error", err)
		b.ack(clientID, false, "Failed to send pump command to device.")
		return
	}
	b.ack(clientID, true, "Pump command sent successfully. Please wait for device update...")
}

func (b *Bridge) requestAutoMode(clientID string, enable bool) {
	b.logger.Info("auto mode requested", "client", clientID, "enable", enable)
	st := b.mirror.State()
	switch {
	case enable == st.AutoMode:
		b.reject(clientID, wire.EventToggleAutoMode, "Auto Mode is already set to the requested value.")
		return
	case b.pending[irrigation.FieldAutoMode] != nil:
		b.reject(clientID, wire.EventToggleAutoMode, "An Auto Mode change is already awaiting device confirmation.")
		return
	}

	if err := b.sendToggle(irrigation.FieldAutoMode, enable, clientID, originClient); err != nil {
		b.logger.Error("send auto mode command", "error", err)
		b.ack(clientID, false, "Failed to send Auto Mode update to device.")
		return
	}
	b.ack(clientID, true, "Auto Mode update sent successfully. Please wait for device update...")
}

// requestPlantType pushes the named profile's thresholds to the device. The
// firmware sends no confirmation for thresholds, so the switch is applied
// as soon as the publish succeeds.
func (b *Bridge) requestPlantType(clientID, plantType string) {
	b.logger.Info("plant type requested", "client", clientID, "plantType", plantType)
	if plantType == b.mirror.State().CurrentPlantType {
		b.reject(clientID, wire.EventChangePlantType, "Plant type is already set to the requested value.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	profile, err := b.profiles.Get(ctx, plantType)
	if err != nil {
		if errors.Is(err, models.ErrNoRecord) {
			b.reject(clientID, wire.EventChangePlantType, fmt.Sprintf("Plant profile %q not found.", plantType))
			return
		}
		b.logger.Error("load plant profile", "plantType", plantType, "error", err)
		b.ack(clientID, false, "Failed to load plant profile from server.")
		return
	}

	cmd, err := wire.SetThresholdCommand(b.newID(), profile.SafeThresholds)
	if err == nil {
		err = b.publish(cmd, originClient)
	}
	if err != nil {
		b.logger.Error("send thresholds", "plantType", plantType, "error", err)
		b.ack(clientID, false, "Failed to send safe thresholds to device.")
		return
	}

	b.mirror.ApplyProfile(profile)
	b.ack(clientID, true, "Safe thresholds updated successfully.")
}
