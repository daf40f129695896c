package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"furitingoasis/smart_irrigation/internal/irrigation"
)

type PlantProfileModelInterface interface {
	Get(ctx context.Context, plantType string) (irrigation.PlantProfile, error)
	// List returns every profile in creation order.
	List(ctx context.Context) ([]irrigation.PlantProfile, error)
	Upsert(ctx context.Context, p irrigation.PlantProfile) error
}

type PlantProfileModel struct {
	DB *sql.DB
}

const profileColumns = `plant_type, temperature_lower, temperature_upper, humidity_lower, humidity_upper, moisture_lower, moisture_upper`

func (m *PlantProfileModel) Get(ctx context.Context, plantType string) (irrigation.PlantProfile, error) {
	stmt := `SELECT ` + profileColumns + ` FROM plant_profiles WHERE plant_type = ?`
	p, err := scanProfile(m.DB.QueryRowContext(ctx, stmt, plantType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return irrigation.PlantProfile{}, ErrNoRecord
		}
		return irrigation.PlantProfile{}, err
	}
	return p, nil
}

func (m *PlantProfileModel) List(ctx context.Context) ([]irrigation.PlantProfile, error) {
	stmt := `SELECT ` + profileColumns + ` FROM plant_profiles ORDER BY created ASC, rowid ASC`
	rows, err := m.DB.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := []irrigation.PlantProfile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (m *PlantProfileModel) Upsert(ctx context.Context, p irrigation.PlantProfile) error {
	if err := ValidateProfile(p); err != nil {
		return err
	}
	t := p.SafeThresholds
	stmt := `INSERT INTO plant_profiles (` + profileColumns + `, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plant_type) DO UPDATE SET
			temperature_lower = excluded.temperature_lower,
			temperature_upper = excluded.temperature_upper,
			humidity_lower = excluded.humidity_lower,
			humidity_upper = excluded.humidity_upper,
			moisture_lower = excluded.moisture_lower,
			moisture_upper = excluded.moisture_upper`
	_, err := m.DB.ExecContext(ctx, stmt, p.PlantType,
		t.Temperature.Lower, t.Temperature.Upper,
		t.Humidity.Lower, t.Humidity.Upper,
		t.Moisture.Lower, t.Moisture.Upper,
		time.Now().UTC())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (irrigation.PlantProfile, error) {
	var p irrigation.PlantProfile
	t := &p.SafeThresholds
	err := row.Scan(&p.PlantType,
		&t.Temperature.Lower, &t.Temperature.Upper,
		&t.Humidity.Lower, &t.Humidity.Upper,
		&t.Moisture.Lower, &t.Moisture.Upper)
	return p, err
}

// ValidateProfile rejects profiles without a name or with inverted bands.
func ValidateProfile(p irrigation.PlantProfile) error {
	if p.PlantType == "" {
		return fmt.Errorf("%w: plantType is required", ErrInvalidProfile)
	}
	bands := map[string]irrigation.Range{
		"temperature": p.SafeThresholds.Temperature,
		"humidity":    p.SafeThresholds.Humidity,
		"moisture":    p.SafeThresholds.Moisture,
	}
	for name, r := range bands {
		if r.Lower > r.Upper {
			return fmt.Errorf("%w: %s %s lower %.1f above upper %.1f", ErrInvalidProfile, p.PlantType, name, r.Lower, r.Upper)
		}
	}
	return nil
}

// SeedPlantProfiles loads profiles from a JSON array file and upserts them.
// It returns how many profiles were written.
func SeedPlantProfiles(ctx context.Context, m PlantProfileModelInterface, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var profiles []irrigation.PlantProfile
	if err := json.Unmarshal(b, &profiles); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	for i, p := range profiles {
		if err := m.Upsert(ctx, p); err != nil {
			return i, fmt.Errorf("seed profile %q: %w", p.PlantType, err)
		}
	}
	return len(profiles), nil
}
