// Package wire defines the JSON messages exchanged with the device over MQTT
// and with dashboard clients over the WebSocket fan-out.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"furitingoasis/smart_irrigation/internal/irrigation"
)

var (
	ErrMalformed   = errors.New("wire: malformed message")
	ErrUnknownKind = errors.New("wire: unknown message kind")
)

// Kind discriminates device messages.
type Kind string

const (
	KindSensorData  Kind = "sensor_data"
	KindDeviceState Kind = "device_state"
	KindBooted      Kind = "booted"
)

// DeviceMessage is the closed set of messages a device publishes on its data
// topic.
type DeviceMessage interface {
	Kind() Kind
}

type SensorDataMessage struct {
	SensorData irrigation.SensorReading
}

type DeviceStateMessage struct {
	State  irrigation.Field
	Enable bool
	// CommandID echoes the command being confirmed, if the firmware sends it.
	CommandID string
}

type BootedMessage struct{}

func (SensorDataMessage) Kind() Kind  { return KindSensorData }
func (DeviceStateMessage) Kind() Kind { return KindDeviceState }
func (BootedMessage) Kind() Kind      { return KindBooted }

// Envelope is the on-the-wire shape of a device message.
type Envelope struct {
	Kind       Kind             `json:"kind,omitempty"`
	SensorData *ReadingFields   `json:"sensorData,omitempty"`
	State      irrigation.Field `json:"state,omitempty"`
	Enable     *bool            `json:"enable,omitempty"`
	CommandID  string           `json:"commandId,omitempty"`
	Booted     bool             `json:"booted,omitempty"`
}

// ReadingFields is the sensorData object as sent by the device. A reading
// is only usable when all three measurements are present.
type ReadingFields struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Moisture    *float64 `json:"moisture"`
}

func (f ReadingFields) reading() (irrigation.SensorReading, error) {
	if f.Temperature == nil || f.Humidity == nil || f.Moisture == nil {
		return irrigation.SensorReading{}, fmt.Errorf("%w: sensorData needs temperature, humidity and moisture", ErrMalformed)
	}
	return irrigation.SensorReading{Temperature: *f.Temperature, Humidity: *f.Humidity, Moisture: *f.Moisture}, nil
}

// DecodeDeviceMessage parses a data-topic payload. Payloads without a kind
// come from older firmware and are classified by the fields they carry.
func DecodeDeviceMessage(payload []byte) (DeviceMessage, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	kind := env.Kind
	if kind == "" {
		kind = legacyKind(env)
	}

	switch kind {
	case KindSensorData:
		if env.SensorData == nil {
			return nil, fmt.Errorf("%w: sensor_data without sensorData", ErrMalformed)
		}
		r, err := env.SensorData.reading()
		if err != nil {
			return nil, err
		}
		return SensorDataMessage{SensorData: r}, nil
	case KindDeviceState:
		if env.Enable == nil || !env.State.Valid() {
			return nil, fmt.Errorf("%w: device_state needs a known state and enable", ErrMalformed)
		}
		return DeviceStateMessage{State: env.State, Enable: *env.Enable, CommandID: env.CommandID}, nil
	case KindBooted:
		return BootedMessage{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func legacyKind(env Envelope) Kind {
	switch {
	case env.SensorData != nil:
		return KindSensorData
	case env.Enable != nil:
		return KindDeviceState
	case env.Booted:
		return KindBooted
	}
	return ""
}

// EncodeDeviceMessage is used by the device simulator.
func EncodeDeviceMessage(m DeviceMessage) ([]byte, error) {
	env := Envelope{Kind: m.Kind()}
	switch msg := m.(type) {
	case SensorDataMessage:
		r := msg.SensorData
		env.SensorData = &ReadingFields{Temperature: &r.Temperature, Humidity: &r.Humidity, Moisture: &r.Moisture}
	case DeviceStateMessage:
		enable := msg.Enable
		env.State = msg.State
		env.Enable = &enable
		env.CommandID = msg.CommandID
	case BootedMessage:
		env.Booted = true
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}
	return json.Marshal(env)
}
