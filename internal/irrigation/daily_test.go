package irrigation

import (
	"encoding/json"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestDailyTrackerPumpTime(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	d := NewDailyTracker(clock.Now)

	d.PumpChanged(true)
	clock.t = clock.t.Add(10 * time.Minute)
	d.PumpChanged(true)
	clock.t = clock.t.Add(5 * time.Minute)
	d.PumpChanged(false)
	clock.t = clock.t.Add(time.Hour)
	d.PumpChanged(false)

	if got := d.Snapshot().PumpOnTime; got != 15*time.Minute {
		t.Fatalf("expected 15m, got %s", got)
	}

	d.PumpChanged(true)
	clock.t = clock.t.Add(2 * time.Minute)
	if got := d.Snapshot().PumpOnTime; got != 17*time.Minute {
		t.Fatalf("expected running pump counted, got %s", got)
	}
}

func TestDailyTrackerExtremesAndRollover(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)}
	d := NewDailyTracker(clock.Now)

	d.ObserveReading(SensorReading{Temperature: 20, Humidity: 60, Moisture: 45})
	d.ObserveReading(SensorReading{Temperature: 28, Humidity: 50, Moisture: 30})
	d.ObserveReading(SensorReading{Temperature: 24, Humidity: 70, Moisture: 35})
	d.PumpChanged(true)
	clock.t = clock.t.Add(90 * time.Minute)

	done := d.Rollover()
	if done.Date != "2025-06-01" || done.Readings != 3 {
		t.Fatalf("unexpected totals %+v", done)
	}
	if done.HighTemp != 28 || done.LowTemp != 20 || done.HighHumidity != 70 || done.LowHumidity != 50 || done.HighMoisture != 45 || done.LowMoisture != 30 {
		t.Fatalf("unexpected extremes %+v", done)
	}
	if done.PumpOnTime != 90*time.Minute {
		t.Fatalf("expected 90m pump time, got %s", done.PumpOnTime)
	}

	clock.t = clock.t.Add(30 * time.Minute)
	next := d.Snapshot()
	if next.Date != "2025-06-02" || next.Readings != 0 || next.PumpOnTime != 30*time.Minute {
		t.Fatalf("unexpected new day %+v", next)
	}
}

func TestUntilNextMidnight(t *testing.T) {
	now := time.Date(2025, 6, 1, 22, 30, 0, 0, time.UTC)
	if got := UntilNextMidnight(now); got != 90*time.Minute {
		t.Fatalf("expected 90m, got %s", got)
	}
}

func TestDailyTotalsJSON(t *testing.T) {
	in := DailyTotals{Date: "2026-06-01", PumpOnTime: 90 * time.Second, Readings: 12, LowMoisture: 31}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		t.Fatal(err)
	}
	if fields["pumpMinutes"] != 1.5 {
		t.Errorf("pumpMinutes = %v; want 1.5", fields["pumpMinutes"])
	}
	if _, ok := fields["pumpOnTime"]; ok {
		t.Errorf("raw duration still exposed: %s", b)
	}

	var out DailyTotals
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("decoded %+v; want %+v", out, in)
	}
}
