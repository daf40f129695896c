package models

import (
	"database/sql"
	"testing"
	"time"

	"furitingoasis/smart_irrigation/internal/irrigation"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tomatoProfile() irrigation.PlantProfile {
	return irrigation.PlantProfile{
		PlantType: "tomato",
		SafeThresholds: irrigation.SafeThresholds{
			Temperature: irrigation.Range{Lower: 18, Upper: 30},
			Humidity:    irrigation.Range{Lower: 40, Upper: 70},
			Moisture:    irrigation.Range{Lower: 40, Upper: 70},
		},
	}
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
