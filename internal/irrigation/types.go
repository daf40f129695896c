// Package irrigation holds the device-state and auto-irrigation core: the
// sensor record buffer, the device state mirror, the pump decision engine
// and the threshold alerts.
package irrigation

import "time"

type SensorReading struct {
	Temperature float64 `json:"temperature" bson:"temperature"`
	Humidity    float64 `json:"humidity" bson:"humidity"`
	Moisture    float64 `json:"moisture" bson:"moisture"`
}

// SensorRecord is a reading stamped with its ingestion time.
type SensorRecord struct {
	Data      SensorReading `json:"data" bson:"data"`
	Timestamp time.Time     `json:"timestamp" bson:"timestamp"`
}

// Range is an inclusive safe band for one measurement.
type Range struct {
	Lower float64 `json:"lower" bson:"lower"`
	Upper float64 `json:"upper" bson:"upper"`
}

func (r Range) Midpoint() float64 {
	return (r.Lower + r.Upper) / 2
}

type SafeThresholds struct {
	Temperature Range `json:"temperature" bson:"temperature"`
	Humidity    Range `json:"humidity" bson:"humidity"`
	Moisture    Range `json:"moisture" bson:"moisture"`
}

type PlantProfile struct {
	PlantType      string         `json:"plantType" bson:"plantType"`
	SafeThresholds SafeThresholds `json:"safeThresholds" bson:"safeThresholds"`
}

// DeviceState is the last state confirmed by the device. CurrentPlantType is
// empty until a profile has been selected.
type DeviceState struct {
	PumpActive       bool   `json:"pump"`
	AutoMode         bool   `json:"automode"`
	CurrentPlantType string `json:"currentPlantType,omitempty"`
}

// Field names a boolean the device confirms over the bus.
type Field string

const (
	FieldPump     Field = "PUMP"
	FieldAutoMode Field = "AUTO_MODE"
)

func (f Field) Valid() bool {
	return f == FieldPump || f == FieldAutoMode
}
