package main

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Simplici0/facturador/internal/filament"
)

type filamentPreset struct {
	Channel   int     `json:"channel"`
	Name      string  `json:"name"`
	Color     string  `json:"color"`
	CostPerKg float64 `json:"cost_per_kg"`
	Density   float64 `json:"density"`
	Diameter  float64 `json:"diameter"`
	Notes     string  `json:"notes"`
	Active    bool    `json:"active"`
}

// dbPresetSource serves filament.PresetSource lookups from the
// filament_presets table. A missing or inactive channel, or any query
// failure, reads as absent so the resolver falls back to its defaults.
type dbPresetSource struct {
	db *sql.DB
}

func (s *server) presetSource() filament.PresetSource {
	return dbPresetSource{db: s.db}
}

func (d dbPresetSource) lookup(channel int) (filamentPreset, bool) {
	var p filamentPreset
	err := d.db.QueryRow(`
		SELECT channel, name, color, cost_per_kg, density, diameter, COALESCE(notes, ''), active
		FROM filament_presets
		WHERE channel = ? AND active
	`, channel).Scan(&p.Channel, &p.Name, &p.Color, &p.CostPerKg, &p.Density, &p.Diameter, &p.Notes, &p.Active)
	if err != nil {
		return filamentPreset{}, false
	}
	return p, true
}

func (d dbPresetSource) Name(channel int) (string, bool) {
	p, ok := d.lookup(channel)
	if !ok || p.Name == "" {
		return "", false
	}
	return p.Name, true
}

func (d dbPresetSource) Color(channel int) (string, bool) {
	p, ok := d.lookup(channel)
	if !ok || p.Color == "" {
		return "", false
	}
	return p.Color, true
}

func (d dbPresetSource) CostPerKg(channel int) (float64, bool) {
	p, ok := d.lookup(channel)
	if !ok {
		return 0, false
	}
	return p.CostPerKg, true
}

func (d dbPresetSource) Density(channel int) (float64, bool) {
	p, ok := d.lookup(channel)
	if !ok {
		return 0, false
	}
	return p.Density, true
}

func (d dbPresetSource) Diameter(channel int) (float64, bool) {
	p, ok := d.lookup(channel)
	if !ok {
		return 0, false
	}
	return p.Diameter, true
}

func (s *server) handlePresetsList(w http.ResponseWriter, r *http.Request) {
	presets, err := s.listPresets()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "no fue posible cargar los presets")
		return
	}
	respondJSON(w, http.StatusOK, presets)
}

func (s *server) listPresets() ([]filamentPreset, error) {
	rows, err := s.db.Query(`
		SELECT channel, name, color, cost_per_kg, density, diameter, COALESCE(notes, ''), active
		FROM filament_presets
		ORDER BY channel
	`)
	if err != nil {
		return nil, fmt.Errorf("query filament presets: %w", err)
	}
	defer rows.Close()

	presets := make([]filamentPreset, 0)
	for rows.Next() {
		var p filamentPreset
		if err := rows.Scan(&p.Channel, &p.Name, &p.Color, &p.CostPerKg, &p.Density, &p.Diameter, &p.Notes, &p.Active); err != nil {
			return nil, fmt.Errorf("scan filament preset: %w", err)
		}
		presets = append(presets, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filament presets: %w", err)
	}

	return presets, nil
}

func (s *server) handlePresetCreate(w http.ResponseWriter, r *http.Request) {
	p := filamentPreset{
		Color:     filament.DefaultColor,
		CostPerKg: filament.DefaultCostPerKg,
		Density:   filament.DefaultDensity,
		Diameter:  filament.DefaultDiameter,
		Active:    true,
	}
	if !decodeJSONBody(w, r, &p) {
		return
	}

	if err := validatePreset(p); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.db.Exec(`
		INSERT INTO filament_presets (channel, name, color, cost_per_kg, density, diameter, notes, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Channel, p.Name, p.Color, p.CostPerKg, p.Density, p.Diameter, p.Notes, p.Active); err != nil {
		respondError(w, http.StatusInternalServerError, "no fue posible crear el preset")
		return
	}

	respondJSON(w, http.StatusCreated, p)
}

func (s *server) handlePresetUpdate(w http.ResponseWriter, r *http.Request) {
	channel, err := strconv.Atoi(chi.URLParam(r, "channel"))
	if err != nil || channel < 0 {
		respondError(w, http.StatusBadRequest, "canal inválido")
		return
	}

	p := filamentPreset{Channel: channel, Active: true}
	if current, ok := (dbPresetSource{db: s.db}).lookup(channel); ok {
		p = current
	}
	if !decodeJSONBody(w, r, &p) {
		return
	}
	p.Channel = channel

	if err := validatePreset(p); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.db.Exec(`
		UPDATE filament_presets
		SET
			name = ?,
			color = ?,
			cost_per_kg = ?,
			density = ?,
			diameter = ?,
			notes = ?,
			active = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE channel = ?
	`, p.Name, p.Color, p.CostPerKg, p.Density, p.Diameter, p.Notes, p.Active, channel)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "no fue posible actualizar el preset")
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "no fue posible actualizar el preset")
		return
	}
	if affected == 0 {
		respondError(w, http.StatusNotFound, "preset no encontrado")
		return
	}

	respondJSON(w, http.StatusOK, p)
}

func validatePreset(p filamentPreset) error {
	if p.Channel < 0 {
		return errors.New("channel debe ser mayor o igual a 0")
	}
	if p.Name == "" {
		return errors.New("name es requerido")
	}
	if p.CostPerKg < 0 {
		return errors.New("cost_per_kg debe ser mayor o igual a 0")
	}
	if p.Density <= 0 {
		return errors.New("density debe ser mayor a 0")
	}
	if p.Diameter <= 0 {
		return errors.New("diameter debe ser mayor a 0")
	}
	return nil
}
