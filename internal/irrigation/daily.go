package irrigation

import (
	"encoding/json"
	"sync"
	"time"
)

// DailyTotals summarises one UTC day: how long the pump ran and the
// extremes seen in the readings.
type DailyTotals struct {
	Date         string        `json:"date"`
	PumpOnTime   time.Duration `json:"-"`
	Readings     int           `json:"readings"`
	HighTemp     float64       `json:"highTemp"`
	LowTemp      float64       `json:"lowTemp"`
	HighHumidity float64       `json:"highHumidity"`
	LowHumidity  float64       `json:"lowHumidity"`
	HighMoisture float64       `json:"highMoisture"`
	LowMoisture  float64       `json:"lowMoisture"`
}

type dailyTotalsJSON DailyTotals

// MarshalJSON reports the pump on-time in minutes.
func (t DailyTotals) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		dailyTotalsJSON
		PumpMinutes float64 `json:"pumpMinutes"`
	}{dailyTotalsJSON(t), t.PumpOnTime.Minutes()})
}

func (t *DailyTotals) UnmarshalJSON(b []byte) error {
	var v struct {
		dailyTotalsJSON
		PumpMinutes float64 `json:"pumpMinutes"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = DailyTotals(v.dailyTotalsJSON)
	t.PumpOnTime = time.Duration(v.PumpMinutes * float64(time.Minute))
	return nil
}

// DailyTracker accumulates DailyTotals for the current day.
type DailyTracker struct {
	mu          sync.Mutex
	now         func() time.Time
	totals      DailyTotals
	pumpOnSince time.Time
}

func NewDailyTracker(now func() time.Time) *DailyTracker {
	if now == nil {
		now = time.Now
	}
	d := &DailyTracker{now: now}
	d.totals.Date = dayOf(now())
	return d
}

func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (d *DailyTracker) ObserveReading(r SensorReading) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := &d.totals
	if t.Readings == 0 {
		t.HighTemp, t.LowTemp = r.Temperature, r.Temperature
		t.HighHumidity, t.LowHumidity = r.Humidity, r.Humidity
		t.HighMoisture, t.LowMoisture = r.Moisture, r.Moisture
	} else {
		t.HighTemp = max(t.HighTemp, r.Temperature)
		t.LowTemp = min(t.LowTemp, r.Temperature)
		t.HighHumidity = max(t.HighHumidity, r.Humidity)
		t.LowHumidity = min(t.LowHumidity, r.Humidity)
		t.HighMoisture = max(t.HighMoisture, r.Moisture)
		t.LowMoisture = min(t.LowMoisture, r.Moisture)
	}
	t.Readings++
}

// PumpChanged starts or stops the pump on-time clock.
func (d *DailyTracker) PumpChanged(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if on {
		if d.pumpOnSince.IsZero() {
			d.pumpOnSince = d.now()
		}
		return
	}
	if !d.pumpOnSince.IsZero() {
		d.totals.PumpOnTime += d.now().Sub(d.pumpOnSince)
		d.pumpOnSince = time.Time{}
	}
}

// Snapshot returns the running totals, counting a pump that is still on up
// to now.
func (d *DailyTracker) Snapshot() DailyTotals {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.totals
	if !d.pumpOnSince.IsZero() {
		t.PumpOnTime += d.now().Sub(d.pumpOnSince)
	}
	return t
}

// Rollover closes the current day and starts a new one. A pump that is on
// keeps running into the new day.
func (d *DailyTracker) Rollover() DailyTotals {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	done := d.totals
	if !d.pumpOnSince.IsZero() {
		done.PumpOnTime += now.Sub(d.pumpOnSince)
		d.pumpOnSince = now
	}
	d.totals = DailyTotals{Date: dayOf(now)}
	return done
}

// UntilNextMidnight returns the wait until the next 00:00 UTC.
func UntilNextMidnight(now time.Time) time.Duration {
	now = now.UTC()
	next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return next.Sub(now)
}
