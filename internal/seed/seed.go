package seed

import (
	"database/sql"
	"fmt"
)

const (
	defaultPresetName    = "PLA (Genérico)"
	defaultPresetChannel = 0
)

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
}

// Run executes the startup seed in an idempotent way: a fresh database gets
// one generic PLA preset on the first channel so quoting works out of the box.
func Run(db *sql.DB) (Stats, error) {
	tx, err := db.Begin()
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	if err := ensureDefaultPreset(tx, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func ensureDefaultPreset(tx *sql.Tx, stats *Stats) error {
	var exists bool
	if err := tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM filament_presets WHERE channel = ? LIMIT 1)
	`, defaultPresetChannel).Scan(&exists); err != nil {
		return fmt.Errorf("check default preset existence: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := tx.Exec(`
		INSERT INTO filament_presets (channel, name, color, cost_per_kg, density, diameter, notes, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, defaultPresetChannel, defaultPresetName, "#FFFFFF", 20.0, 1.24, 1.75, "", true); err != nil {
		return fmt.Errorf("insert default preset: %w", err)
	}
	stats.Inserts++
	return nil
}
