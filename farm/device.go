package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"furitingoasis/smart_irrigation/internal/irrigation"
	"furitingoasis/smart_irrigation/internal/wire"
)

// device is the simulated controller: a pump relay, the auto-mode flag and
// the soil, air and temperature readings the relay drives.
type device struct {
	mu         sync.Mutex
	rng        *rand.Rand
	pump       bool
	auto       bool
	thresholds irrigation.SafeThresholds
	reading    irrigation.SensorReading
}

func newDevice(rng *rand.Rand) *device {
	return &device{
		rng:  rng,
		auto: true,
		reading: irrigation.SensorReading{
			Temperature: 26,
			Humidity:    60,
			Moisture:    55,
		},
	}
}

// handleCommand applies one command payload and returns the confirmation to
// publish on the data topic, or nil when the command is not confirmed.
func (d *device) handleCommand(payload []byte) ([]byte, error) {
	cmd, err := wire.DecodeCommand(payload)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch cmd.Action {
	case wire.ActionPump:
		on, err := cmd.Bool()
		if err != nil {
			return nil, err
		}
		d.pump = on
		return wire.EncodeDeviceMessage(wire.DeviceStateMessage{State: irrigation.FieldPump, Enable: on, CommandID: cmd.ID})
	case wire.ActionToggleAuto:
		on, err := cmd.Bool()
		if err != nil {
			return nil, err
		}
		d.auto = on
		return wire.EncodeDeviceMessage(wire.DeviceStateMessage{State: irrigation.FieldAutoMode, Enable: on, CommandID: cmd.ID})
	case wire.ActionSetThreshold:
		t, err := cmd.Thresholds()
		if err != nil {
			return nil, err
		}
		d.thresholds = t
		return nil, nil
	}
	return nil, fmt.Errorf("%w: action %q", wire.ErrUnknownKind, cmd.Action)
}

// step advances the readings by one sample period. Soil dries while the pump
// is off and soaks up water while it runs.
func (d *device) step() irrigation.SensorReading {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pump {
		d.reading.Moisture += 3 + 2*d.rng.Float64()
	} else {
		d.reading.Moisture -= 0.5 + d.rng.Float64()
	}
	d.reading.Temperature += d.rng.Float64() - 0.5
	d.reading.Humidity += 2*d.rng.Float64() - 1

	d.reading.Moisture = clamp(d.reading.Moisture, 0, 100)
	d.reading.Temperature = clamp(d.reading.Temperature, 5, 45)
	d.reading.Humidity = clamp(d.reading.Humidity, 0, 100)

	return irrigation.SensorReading{
		Temperature: round2(d.reading.Temperature),
		Humidity:    round2(d.reading.Humidity),
		Moisture:    math.Round(d.reading.Moisture),
	}
}

// warning reports whether the local warning lamp is lit. It only follows the
// thresholds in auto mode and once thresholds have been pushed.
func (d *device) warning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.auto || d.thresholds == (irrigation.SafeThresholds{}) {
		return false
	}
	r, t := d.reading, d.thresholds
	return r.Temperature > t.Temperature.Upper ||
		r.Humidity > t.Humidity.Upper ||
		r.Moisture > t.Moisture.Upper
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
