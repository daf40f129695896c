package models

import (
	"context"
	"database/sql"
	"time"

	"furitingoasis/smart_irrigation/internal/irrigation"
)

// DefaultDailyRetention is how many days of totals are kept.
const DefaultDailyRetention = 35

type DailyTotalsModelInterface interface {
	Save(ctx context.Context, t irrigation.DailyTotals) error
	Recent(ctx context.Context, n int) ([]irrigation.DailyTotals, error)
}

type DailyTotalsModel struct {
	DB        *sql.DB
	Retention int
}

// Save stores t, replacing any row for the same date, then drops the oldest
// days beyond the retention window.
func (m *DailyTotalsModel) Save(ctx context.Context, t irrigation.DailyTotals) error {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO device_daily_times
			(date, pump_time_on, readings, high_temp, low_temp, high_humidity, low_humidity, high_moisture, low_moisture)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Date, int(t.PumpOnTime.Seconds()), t.Readings,
		t.HighTemp, t.LowTemp, t.HighHumidity, t.LowHumidity, t.HighMoisture, t.LowMoisture)
	if err != nil {
		return err
	}

	retention := m.Retention
	if retention <= 0 {
		retention = DefaultDailyRetention
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM device_daily_times WHERE id NOT IN (
			SELECT id FROM device_daily_times ORDER BY date DESC LIMIT ?
		)`, retention)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Recent returns up to n days, newest first.
func (m *DailyTotalsModel) Recent(ctx context.Context, n int) ([]irrigation.DailyTotals, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT date, pump_time_on, readings, high_temp, low_temp, high_humidity, low_humidity, high_moisture, low_moisture
		FROM device_daily_times ORDER BY date DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []irrigation.DailyTotals{}
	for rows.Next() {
		var t irrigation.DailyTotals
		var seconds int64
		err := rows.Scan(&t.Date, &seconds, &t.Readings,
			&t.HighTemp, &t.LowTemp, &t.HighHumidity, &t.LowHumidity, &t.HighMoisture, &t.LowMoisture)
		if err != nil {
			return nil, err
		}
		t.PumpOnTime = time.Duration(seconds) * time.Second
		out = append(out, t)
	}
	return out, rows.Err()
}
