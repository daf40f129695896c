package irrigation

import "slices"

// Warning labels produced by CheckThresholds.
const (
	WarnHighTemp     = "High Temp"
	WarnLowTemp      = "Low Temp"
	WarnLowHumidity  = "Low Humidity"
	WarnHighHumidity = "High Humidity"
	WarnLowMoisture  = "Low Moisture (Dry)"
	WarnHighMoisture = "High Moisture (Waterlogged)"
)

// CheckThresholds lists every measurement of r outside its safe band.
func CheckThresholds(t SafeThresholds, r SensorReading) []string {
	var warnings []string
	if r.Temperature > t.Temperature.Upper {
		warnings = append(warnings, WarnHighTemp)
	}
	if r.Temperature < t.Temperature.Lower {
		warnings = append(warnings, WarnLowTemp)
	}
	if r.Humidity < t.Humidity.Lower {
		warnings = append(warnings, WarnLowHumidity)
	}
	if r.Humidity > t.Humidity.Upper {
		warnings = append(warnings, WarnHighHumidity)
	}
	if r.Moisture < t.Moisture.Lower {
		warnings = append(warnings, WarnLowMoisture)
	}
	if r.Moisture > t.Moisture.Upper {
		warnings = append(warnings, WarnHighMoisture)
	}
	return warnings
}

// AlertTracker suppresses repeated alerts: a warning set is only reported
// when it contains at least one warning absent from the previous check.
type AlertTracker struct {
	current []string
}

// Observe records warnings and reports whether they should be sent.
func (a *AlertTracker) Observe(warnings []string) bool {
	fresh := false
	for _, w := range warnings {
		if !slices.Contains(a.current, w) {
			fresh = true
			break
		}
	}
	a.current = slices.Clone(warnings)
	return fresh
}

func (a *AlertTracker) Current() []string {
	return slices.Clone(a.current)
}
