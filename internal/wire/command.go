package wire

import (
	"encoding/json"
	"fmt"

	"furitingoasis/smart_irrigation/internal/irrigation"
)

// Action is the command verb understood by the device firmware.
type Action string

const (
	ActionPump         Action = "PUMP"
	ActionToggleAuto   Action = "TOGGLE_AUTO"
	ActionSetThreshold Action = "SET_THRESHOLD"
)

// Command is published on the device's command topic. PUMP uses Enable,
// TOGGLE_AUTO and SET_THRESHOLD use Value.
type Command struct {
	ID     string          `json:"id,omitempty"`
	Action Action          `json:"action"`
	Enable *bool           `json:"enable,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
}

func PumpCommand(id string, enable bool) Command {
	return Command{ID: id, Action: ActionPump, Enable: &enable}
}

func ToggleAutoCommand(id string, enable bool) Command {
	v, _ := json.Marshal(enable)
	return Command{ID: id, Action: ActionToggleAuto, Value: v}
}

func SetThresholdCommand(id string, t irrigation.SafeThresholds) (Command, error) {
	v, err := json.Marshal(t)
	if err != nil {
		return Command{}, fmt.Errorf("encode thresholds: %w", err)
	}
	return Command{ID: id, Action: ActionSetThreshold, Value: v}, nil
}

// Bool returns the boolean carried by a PUMP or TOGGLE_AUTO command.
func (c Command) Bool() (bool, error) {
	switch c.Action {
	case ActionPump:
		if c.Enable == nil {
			return false, fmt.Errorf("%w: PUMP without enable", ErrMalformed)
		}
		return *c.Enable, nil
	case ActionToggleAuto:
		var v bool
		if err := json.Unmarshal(c.Value, &v); err != nil {
			return false, fmt.Errorf("%w: TOGGLE_AUTO value: %v", ErrMalformed, err)
		}
		return v, nil
	}
	return false, fmt.Errorf("%w: %s carries no boolean", ErrMalformed, c.Action)
}

func (c Command) Thresholds() (irrigation.SafeThresholds, error) {
	var t irrigation.SafeThresholds
	if c.Action != ActionSetThreshold {
		return t, fmt.Errorf("%w: %s carries no thresholds", ErrMalformed, c.Action)
	}
	if err := json.Unmarshal(c.Value, &t); err != nil {
		return t, fmt.Errorf("%w: SET_THRESHOLD value: %v", ErrMalformed, err)
	}
	return t, nil
}

func DecodeCommand(payload []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(payload, &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return c, nil
}

// Alert is published on the alert topic when readings leave the safe band.
type Alert struct {
	Warnings   []string                 `json:"warnings"`
	SensorData irrigation.SensorReading `json:"sensorData"`
	PlantType  string                   `json:"plantType,omitempty"`
}
