package models

import (
	"context"
	"database/sql"
	"math"
	"time"

	"furitingoasis/smart_irrigation/internal/irrigation"
)

type SensorRecordModelInterface interface {
	Insert(ctx context.Context, rec irrigation.SensorRecord) error
	// Latest returns up to n of the newest records, oldest first.
	Latest(ctx context.Context, n int) ([]irrigation.SensorRecord, error)
	// Sampled returns at most maxPoints records spread evenly over the whole
	// history, oldest first.
	Sampled(ctx context.Context, maxPoints int) ([]irrigation.SensorRecord, error)
	Count(ctx context.Context) (int, error)
}

type SensorRecordModel struct {
	DB *sql.DB
}

func (m *SensorRecordModel) Insert(ctx context.Context, rec irrigation.SensorRecord) error {
	stmt := `INSERT INTO sensors (temperature, humidity, moisture, timestamp) VALUES (?, ?, ?, ?)`
	_, err := m.DB.ExecContext(ctx, stmt,
		rec.Data.Temperature, rec.Data.Humidity, rec.Data.Moisture, rec.Timestamp.UTC())
	return err
}

func (m *SensorRecordModel) Latest(ctx context.Context, n int) ([]irrigation.SensorRecord, error) {
	stmt := `SELECT temperature, humidity, moisture, timestamp FROM sensors ORDER BY timestamp DESC, id DESC LIMIT ?`
	rows, err := m.DB.QueryContext(ctx, stmt, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs, err := scanRecords(rows, 1)
	if err != nil {
		return nil, err
	}
	// newest first from the query; flip to oldest first
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (m *SensorRecordModel) Count(ctx context.Context) (int, error) {
	var total int
	err := m.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensors`).Scan(&total)
	return total, err
}

func (m *SensorRecordModel) Sampled(ctx context.Context, maxPoints int) ([]irrigation.SensorRecord, error) {
	total, err := m.Count(ctx)
	if err != nil {
		return nil, err
	}

	step := 1
	if maxPoints > 0 && total > maxPoints {
		step = int(math.Ceil(float64(total) / float64(maxPoints)))
	}

	stmt := `SELECT temperature, humidity, moisture, timestamp FROM sensors ORDER BY timestamp ASC, id ASC`
	rows, err := m.DB.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows, step)
}

// scanRecords keeps every step-th row.
func scanRecords(rows *sql.Rows, step int) ([]irrigation.SensorRecord, error) {
	recs := []irrigation.SensorRecord{}
	count := 0
	for rows.Next() {
		var rec irrigation.SensorRecord
		var ts time.Time
		if err := rows.Scan(&rec.Data.Temperature, &rec.Data.Humidity, &rec.Data.Moisture, &ts); err != nil {
			return nil, err
		}
		rec.Timestamp = ts.UTC()
		if count%step == 0 {
			recs = append(recs, rec)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}
