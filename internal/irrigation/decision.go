package irrigation

import (
	"errors"
	"fmt"
)

const (
	// MinMoistureThreshold is the floor of the adjusted turn-on threshold.
	MinMoistureThreshold = 10.0

	DefaultWindowSize     = 5
	DefaultFixedThreshold = 40.0
	DefaultSafetyUpper    = 70.0
	temperatureDivisor    = 2.0
	humidityDivisor       = 5.0
)

var ErrNoProfile = errors.New("irrigation: no plant profile loaded")

// Action is the outcome of a pump evaluation.
type Action int

const (
	NoAction Action = iota
	PumpOn
	PumpOff
)

func (a Action) String() string {
	switch a {
	case PumpOn:
		return "pump-on"
	case PumpOff:
		return "pump-off"
	default:
		return "none"
	}
}

// Enable reports the pump value an action asks for.
func (a Action) Enable() bool { return a == PumpOn }

// Decision carries the action together with the thresholds that produced it.
type Decision struct {
	Action Action
	// OnThreshold is the moisture at or below which the pump turns on.
	OnThreshold float64
	// OffThreshold is the moisture at or above which the pump turns off.
	OffThreshold float64
	Reason       string
}

// AdjustedLowerThreshold shifts the profile's moisture lower bound by how far
// temperature and humidity sit outside their safe bands, never below
// MinMoistureThreshold.
func AdjustedLowerThreshold(t SafeThresholds, r SensorReading) float64 {
	l0 := t.Moisture.Lower

	if r.Temperature > t.Temperature.Upper {
		l0 += (r.Temperature - t.Temperature.Upper) / temperatureDivisor
	} else if r.Temperature < t.Temperature.Lower {
		l0 -= (t.Temperature.Lower - r.Temperature) / temperatureDivisor
	}

	if r.Humidity < t.Humidity.Lower {
		l0 += (t.Humidity.Lower - r.Humidity) / humidityDivisor
	} else if r.Humidity > t.Humidity.Upper {
		l0 -= (r.Humidity - t.Humidity.Upper) / humidityDivisor
	}

	if l0 < MinMoistureThreshold {
		l0 = MinMoistureThreshold
	}
	return l0
}

// Evaluate runs the per-reading hysteresis rule. The pump turns on at the
// adjusted lower threshold and only turns off again once moisture reaches the
// midpoint between that threshold and the profile's moisture upper bound.
func Evaluate(profile *PlantProfile, pumpActive bool, r SensorReading) (Decision, error) {
	if profile == nil {
		return Decision{}, ErrNoProfile
	}
	t := profile.SafeThresholds
	on := AdjustedLowerThreshold(t, r)
	off := (on + t.Moisture.Upper) / 2

	d := Decision{OnThreshold: on, OffThreshold: off}
	switch {
	case !pumpActive && r.Moisture <= on:
		d.Action = PumpOn
		d.Reason = fmt.Sprintf("moisture %.1f%% <= %.1f%%", r.Moisture, on)
	case pumpActive && r.Moisture >= off:
		d.Action = PumpOff
		d.Reason = fmt.Sprintf("moisture %.1f%% >= %.1f%%", r.Moisture, off)
	default:
		d.Reason = "within hysteresis band"
	}
	return d, nil
}

// WindowPolicy configures the periodic evaluation over recent readings.
type WindowPolicy struct {
	Size           int
	FixedThreshold float64
	SafetyUpper    float64
}

func DefaultWindowPolicy() WindowPolicy {
	return WindowPolicy{
		Size:           DefaultWindowSize,
		FixedThreshold: DefaultFixedThreshold,
		SafetyUpper:    DefaultSafetyUpper,
	}
}

// EvaluateWindow averages the moisture of the newest Size records (ordered
// oldest first) and decides the pump value. The latest reading at or above
// SafetyUpper forces the pump off. A decision equal to pumpActive yields
// NoAction. ok is false when recs is empty.
func (p WindowPolicy) EvaluateWindow(recs []SensorRecord, pumpActive bool) (d Decision, ok bool) {
	if p.Size <= 0 {
		p.Size = DefaultWindowSize
	}
	if len(recs) == 0 {
		return Decision{}, false
	}
	if len(recs) > p.Size {
		recs = recs[len(recs)-p.Size:]
	}

	var sum float64
	for _, rec := range recs {
		sum += rec.Data.Moisture
	}
	avg := sum / float64(len(recs))
	latest := recs[len(recs)-1].Data.Moisture

	d = Decision{OnThreshold: p.FixedThreshold, OffThreshold: p.SafetyUpper}
	shouldPump := false
	switch {
	case latest >= p.SafetyUpper:
		d.Reason = fmt.Sprintf("safety cut-off: latest moisture %.1f%% >= %.1f%%", latest, p.SafetyUpper)
	case avg <= p.FixedThreshold:
		shouldPump = true
		d.Reason = fmt.Sprintf("average moisture %.1f%% <= %.1f%%", avg, p.FixedThreshold)
	default:
		d.Reason = fmt.Sprintf("average moisture %.1f%% > %.1f%%", avg, p.FixedThreshold)
	}

	if shouldPump != pumpActive {
		if shouldPump {
			d.Action = PumpOn
		} else {
			d.Action = PumpOff
		}
	}
	return d, true
}
