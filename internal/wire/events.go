package wire

import (
	"encoding/json"
	"fmt"

	"furitingoasis/smart_irrigation/internal/irrigation"
)

// Server to client events.
const (
	EventInitialRecords  = "initial_records"
	EventSystemState     = "system_state"
	EventAvailablePlants = "available_plants"
	EventSensorUpdate    = "sensor_update"
	EventPumpState       = "pump_state_update"
	EventAutoState       = "auto_state_update"
	EventPlantType       = "plant_type_update"
	EventCommandAck      = "command_ack"
	EventSensorAlert     = "sensor_alert"
)

// Client to server events.
const (
	EventPump            = "pump"
	EventToggleAutoMode  = "toggle_auto_mode"
	EventChangePlantType = "change_plant_type"
)

// Frame is one WebSocket text message in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewFrame(event string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s: %w", event, err)
	}
	return Frame{Event: event, Data: raw}, nil
}

type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SystemState struct {
	State               StateFlags               `json:"state"`
	CurrentPlantType    *string                  `json:"currentPlantType"`
	CurrentPlantProfile *irrigation.PlantProfile `json:"currentPlantProfile"`
}

type StateFlags struct {
	Pump     bool `json:"pump"`
	AutoMode bool `json:"automode"`
}

func NewSystemState(st irrigation.DeviceState, p *irrigation.PlantProfile) SystemState {
	s := SystemState{
		State:               StateFlags{Pump: st.PumpActive, AutoMode: st.AutoMode},
		CurrentPlantProfile: p,
	}
	if st.CurrentPlantType != "" {
		pt := st.CurrentPlantType
		s.CurrentPlantType = &pt
	}
	return s
}

type SensorUpdate struct {
	Success bool                    `json:"success"`
	Data    irrigation.SensorRecord `json:"data"`
}

type PlantTypeUpdate struct {
	PlantType  string                    `json:"plantType"`
	Thresholds irrigation.SafeThresholds `json:"thresholds"`
}

// ClientCommand is a decoded client to server frame.
type ClientCommand struct {
	Event     string
	Enable    bool
	PlantType string
}

func DecodeClientCommand(f Frame) (ClientCommand, error) {
	cmd := ClientCommand{Event: f.Event}
	switch f.Event {
	case EventPump, EventToggleAutoMode:
		if err := json.Unmarshal(f.Data, &cmd.Enable); err != nil {
			return cmd, fmt.Errorf("%w: %s expects a boolean: %v", ErrMalformed, f.Event, err)
		}
	case EventChangePlantType:
		if err := json.Unmarshal(f.Data, &cmd.PlantType); err != nil {
			return cmd, fmt.Errorf("%w: %s expects a string: %v", ErrMalformed, f.Event, err)
		}
	default:
		return cmd, fmt.Errorf("%w: client event %q", ErrUnknownKind, f.Event)
	}
	return cmd, nil
}
