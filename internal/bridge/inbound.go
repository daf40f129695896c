package bridge

import (
	"context"
	"encoding/json"
	"errors"

	"furitingoasis/smart_irrigation/internal/irrigation"
	"furitingoasis/smart_irrigation/internal/wire"
)

func (b *Bridge) handlePayload(payload []byte) {
	msg, err := wire.DecodeDeviceMessage(payload)
	if err != nil {
		b.metrics.DroppedMessages.WithLabelValues("bus").Inc()
		b.logger.Warn("dropping device message", "error", err, "payload", string(payload))
		return
	}

	switch m := msg.(type) {
	case wire.SensorDataMessage:
		b.handleSensorData(m.SensorData)
	case wire.DeviceStateMessage:
		b.handleDeviceState(m)
	case wire.BootedMessage:
		b.handleBooted()
	}
}

func (b *Bridge) handleSensorData(r irrigation.SensorReading) {
	rec := irrigation.SensorRecord{Data: r, Timestamp: b.now().UTC()}
	b.buffer.Push(rec)
	b.tracker.ObserveReading(r)

	b.metrics.Readings.Inc()
	b.metrics.Temperature.Set(r.Temperature)
	b.metrics.Humidity.Set(r.Humidity)
	b.metrics.Moisture.Set(r.Moisture)

	b.detach("persist sensor record", func(ctx context.Context) error {
		return b.sensors.Insert(ctx, rec)
	})
	if b.exporter != nil {
		b.detach("export sensor record", func(ctx context.Context) error {
			return b.exporter.Export(ctx, rec)
		})
	}

	b.checkThresholds(r)
	if !b.opts.Periodic {
		b.evaluateReading(r)
	}

	b.broadcast(wire.EventSensorUpdate, wire.SensorUpdate{Success: true, Data: rec})
}

func (b *Bridge) checkThresholds(r irrigation.SensorReading) {
	profile, ok := b.mirror.Profile()
	if !ok {
		b.logger.Warn("no plant profile loaded, skipping sensor check")
		return
	}

	warnings := irrigation.CheckThresholds(profile.SafeThresholds, r)
	if !b.alerts.Observe(warnings) {
		return
	}

	b.metrics.Alerts.Inc()
	b.logger.Warn("new critical state detected", "warnings", warnings, "plantType", profile.PlantType)
	alert := wire.Alert{Warnings: warnings, SensorData: r, PlantType: profile.PlantType}
	b.broadcast(wire.EventSensorAlert, alert)

	b.detach("publish alert", func(ctx context.Context) error {
		payload, err := json.Marshal(alert)
		if err != nil {
			return err
		}
		return b.bus.Publish(wire.AlertTopic(b.opts.DeviceID), payload)
	})
}

func (b *Bridge) handleDeviceState(m wire.DeviceStateMessage) {
	if p := b.pending[m.State]; p != nil && (m.CommandID == "" || m.CommandID == p.id) {
		b.clearPending(p)
		if p.value != m.Enable {
			b.logger.Warn("device reported a different state than requested",
				"field", m.State, "requested", p.value, "reported", m.Enable)
			b.ack(p.clientID, false, "Device reported "+describe(m.State, m.Enable)+" instead of the requested state.")
		}
	}
	b.mirror.ApplyConfirmed(m.State, m.Enable)
}

// handleBooted resyncs a device that restarted: its pump is off and it has
// lost the thresholds and mode pushed earlier.
func (b *Bridge) handleBooted() {
	b.logger.Info("device booted, resyncing")

	for _, p := range b.pending {
		b.clearPending(p)
		b.ack(p.clientID, false, "Device restarted before confirming the command.")
	}
	b.mirror.ApplyConfirmed(irrigation.FieldPump, false)

	if profile, ok := b.mirror.Profile(); ok {
		cmd, err := wire.SetThresholdCommand(b.newID(), profile.SafeThresholds)
		if err == nil {
			err = b.publish(cmd, originResync)
		}
		if err != nil {
			b.logger.Error("resync thresholds", "error", err)
		}
	}
	st := b.mirror.State()
	if err := b.publish(wire.ToggleAutoCommand(b.newID(), st.AutoMode), originResync); err != nil {
		b.logger.Error("resync auto mode", "error", err)
	}
}

func (b *Bridge) handshake(clientID string) {
	b.send(clientID, wire.EventInitialRecords, b.buffer.Records())
	b.send(clientID, wire.EventSystemState, b.SystemState())

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	names := []string{}
	profiles, err := b.profiles.List(ctx)
	if err != nil {
		b.logger.Error("list plant profiles", "error", err)
	}
	for _, p := range profiles {
		names = append(names, p.PlantType)
	}
	b.send(clientID, wire.EventAvailablePlants, names)
}

func (b *Bridge) evaluateReading(r irrigation.SensorReading) {
	st := b.mirror.State()
	if !st.AutoMode || b.pumpBusy() {
		return
	}

	var profile *irrigation.PlantProfile
	if p, ok := b.mirror.Profile(); ok {
		profile = &p
	}
	d, err := irrigation.Evaluate(profile, st.PumpActive, r)
	if errors.Is(err, irrigation.ErrNoProfile) {
		b.logger.Warn("no plant profile loaded, skipping pump decision")
		return
	}
	b.applyDecision(d)
}

func (b *Bridge) evaluateWindow() {
	st := b.mirror.State()
	if !st.AutoMode || b.pumpBusy() {
		return
	}
	d, ok := b.opts.Window.EvaluateWindow(b.buffer.Last(b.opts.Window.Size), st.PumpActive)
	if !ok {
		b.logger.Debug("no readings yet, skipping pump decision")
		return
	}
	b.applyDecision(d)
}

func (b *Bridge) pumpBusy() bool {
	if _, ok := b.pending[irrigation.FieldPump]; ok {
		b.logger.Debug("pump command awaiting confirmation, skipping decision")
		return true
	}
	return false
}

func (b *Bridge) applyDecision(d irrigation.Decision) {
	b.metrics.Decisions.WithLabelValues(d.Action.String()).Inc()
	if d.Action == irrigation.NoAction {
		return
	}
	b.logger.Info("pump decision", "action", d.Action, "reason", d.Reason)
	if err := b.sendToggle(irrigation.FieldPump, d.Action.Enable(), "", originEngine); err != nil {
		b.logger.Error("send pump decision", "error", err)
	}
}
