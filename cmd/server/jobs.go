package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Simplici0/facturador/internal/costing"
	"github.com/Simplici0/facturador/internal/filament"
	"github.com/Simplici0/facturador/internal/invoice"
	"github.com/Simplici0/facturador/internal/printtime"
	"github.com/Simplici0/facturador/internal/profile"
)

// printStats is what the slicer collaborator reports for one job.
type printStats struct {
	FilamentUsage map[int]float64 `json:"filament_usage"` // channel -> extruded mm
	PrintTime     string          `json:"print_time"`     // e.g. "1d 3h 25m"
	TotalWeight   float64         `json:"total_weight"`   // grams, 0 when unknown
}

type quoteRequest struct {
	Stats   printStats      `json:"stats"`
	Profile costing.Profile `json:"profile"`
}

type quoteResponse struct {
	Filaments []filament.Record `json:"filaments"`
	Breakdown costing.Breakdown `json:"breakdown"`
}

func (s *server) handleQuote(w http.ResponseWriter, r *http.Request) {
	req := quoteRequest{Profile: costing.DefaultProfile()}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := validateProfile(req.Profile); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	filaments, breakdown, err := s.runPipeline(req)
	if err != nil {
		if errors.Is(err, costing.ErrFailureRateTooHigh) {
			respondError(w, http.StatusBadRequest, "failure_rate debe ser menor a 100")
			return
		}
		respondError(w, http.StatusInternalServerError, "no fue posible calcular la cotización")
		return
	}

	respondJSON(w, http.StatusOK, quoteResponse{Filaments: filaments, Breakdown: breakdown})
}

func (s *server) runPipeline(req quoteRequest) ([]filament.Record, costing.Breakdown, error) {
	records := filament.Resolve(req.Stats.FilamentUsage, s.presetSource(), req.Stats.TotalWeight)
	filament.ApplyCostOverrides(records, req.Profile.CostOverrides)

	hours := printtime.Hours(req.Stats.PrintTime)
	breakdown, err := costing.Calculate(req.Profile, records, hours)
	if err != nil {
		return nil, costing.Breakdown{}, err
	}
	return records, breakdown, nil
}

func (s *server) handleInvoiceExport(w http.ResponseWriter, r *http.Request) {
	req := quoteRequest{Profile: costing.DefaultProfile()}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := validateProfile(req.Profile); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	filaments, breakdown, err := s.runPipeline(req)
	if err != nil {
		if errors.Is(err, costing.ErrFailureRateTooHigh) {
			respondError(w, http.StatusBadRequest, "failure_rate debe ser menor a 100")
			return
		}
		respondError(w, http.StatusInternalServerError, "no fue posible calcular la cotización")
		return
	}

	doc := invoice.Document{
		BusinessName: profile.BusinessName(s.store),
		Profile:      req.Profile,
		Breakdown:    breakdown,
		Filaments:    filaments,
	}
	// The workbook is rendered fully in memory before any byte leaves the
	// handler, so a client never receives a truncated document.
	workbook := invoice.Render(doc)

	id := uuid.NewString()
	if err := s.logInvoice(id, req.Profile, breakdown); err != nil {
		respondError(w, http.StatusInternalServerError, "no fue posible registrar la factura")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.ms-excel")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", invoiceFilename(req.Profile.JobName, id)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(workbook)
}

func invoiceFilename(jobName, id string) string {
	name := strings.TrimSpace(jobName)
	if name == "" {
		name = id
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, name)
	if name == "" {
		name = id
	}
	return "invoice-" + name + ".xls"
}

func (s *server) logInvoice(id string, p costing.Profile, b costing.Breakdown) error {
	totalsJSON, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal invoice totals: %w", err)
	}

	if _, err := s.db.Exec(`
		INSERT INTO invoices (id, title, customer_name, totals_json)
		VALUES (?, ?, ?, ?)
	`, id, p.JobName, p.CustomerName, string(totalsJSON)); err != nil {
		return fmt.Errorf("insert invoice log: %w", err)
	}
	return nil
}

type invoiceListItem struct {
	ID           string  `json:"id"`
	CreatedAt    string  `json:"created_at"`
	Title        string  `json:"title"`
	CustomerName string  `json:"customer_name"`
	Total        float64 `json:"total"`
}

func (s *server) handleInvoicesList(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	items, err := s.listInvoices(query)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "no fue posible cargar las facturas")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *server) listInvoices(query string) ([]invoiceListItem, error) {
	search := "%" + query + "%"
	rows, err := s.db.Query(`
		SELECT id, created_at, COALESCE(title, ''), COALESCE(customer_name, ''), totals_json
		FROM invoices
		WHERE (? = '' OR COALESCE(title, '') LIKE ? OR COALESCE(customer_name, '') LIKE ?)
		ORDER BY datetime(created_at) DESC, id DESC
	`, query, search, search)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	items := make([]invoiceListItem, 0)
	for rows.Next() {
		var item invoiceListItem
		var totalsJSON string
		if err := rows.Scan(&item.ID, &item.CreatedAt, &item.Title, &item.CustomerName, &totalsJSON); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		item.Total = extractTotalFromJSON(totalsJSON)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}

	return items, nil
}

func extractTotalFromJSON(totalsJSON string) float64 {
	var values map[string]float64
	if err := json.Unmarshal([]byte(totalsJSON), &values); err != nil {
		return 0
	}

	for _, key := range []string{"total_job_cost", "total", "grand_total"} {
		if total, ok := values[key]; ok {
			return total
		}
	}

	return 0
}

type profilesListResponse struct {
	Profiles    []string `json:"profiles"`
	LastProfile string   `json:"last_profile"`
}

func (s *server) handleProfilesList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, profilesListResponse{
		Profiles:    profile.List(s.store),
		LastProfile: profile.LastProfile(s.store),
	})
}

type profileLoadResponse struct {
	Profile  costing.Profile `json:"profile"`
	Warnings []string        `json:"warnings,omitempty"`
}

func (s *server) handleProfileLoad(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	known := false
	for _, n := range profile.List(s.store) {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		respondError(w, http.StatusNotFound, "perfil no encontrado")
		return
	}

	p, err := profile.Load(s.store, name)
	resp := profileLoadResponse{Profile: p}
	if err != nil {
		if isStoreUnavailable(err) {
			respondError(w, http.StatusServiceUnavailable, "almacenamiento no disponible")
			return
		}
		// Malformed fields keep their defaults; the caller is told which
		// ones failed.
		var fieldErr *profile.FieldError
		for _, e := range splitJoined(err) {
			if errors.As(e, &fieldErr) {
				resp.Warnings = append(resp.Warnings, fieldErr.Error())
			}
		}
		if len(resp.Warnings) == 0 {
			respondError(w, http.StatusInternalServerError, "no fue posible cargar el perfil")
			return
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// splitJoined unpacks errors built with errors.Join; a plain error comes
// back as a single-element slice.
func splitJoined(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

func (s *server) handleProfileSave(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "el nombre del perfil es requerido")
		return
	}
	if strings.Contains(name, ";") {
		respondError(w, http.StatusBadRequest, "el nombre del perfil no puede contener ';'")
		return
	}

	p := costing.DefaultProfile()
	if !decodeJSONBody(w, r, &p) {
		return
	}

	if err := validateProfile(p); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := profile.Save(s.store, p, name); err != nil {
		if isStoreUnavailable(err) {
			respondError(w, http.StatusServiceUnavailable, "almacenamiento no disponible")
			return
		}
		respondError(w, http.StatusInternalServerError, "no fue posible guardar el perfil")
		return
	}

	if err := profile.SetGlobals(s.store, profile.BusinessName(s.store), name); err != nil {
		respondError(w, http.StatusInternalServerError, "no fue posible guardar la configuración global")
		return
	}

	respondJSON(w, http.StatusOK, profilesListResponse{
		Profiles:    profile.List(s.store),
		LastProfile: name,
	})
}

func (s *server) handleProfileDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := profile.Delete(s.store, name); err != nil {
		if isStoreUnavailable(err) {
			respondError(w, http.StatusServiceUnavailable, "almacenamiento no disponible")
			return
		}
		respondError(w, http.StatusInternalServerError, "no fue posible eliminar el perfil")
		return
	}

	respondJSON(w, http.StatusOK, profilesListResponse{
		Profiles:    profile.List(s.store),
		LastProfile: profile.LastProfile(s.store),
	})
}

type settingsPayload struct {
	BusinessName string `json:"business_name"`
	LastProfile  string `json:"last_profile"`
}

func (s *server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, settingsPayload{
		BusinessName: profile.BusinessName(s.store),
		LastProfile:  profile.LastProfile(s.store),
	})
}

func (s *server) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	payload := settingsPayload{
		BusinessName: profile.BusinessName(s.store),
		LastProfile:  profile.LastProfile(s.store),
	}
	if !decodeJSONBody(w, r, &payload) {
		return
	}

	if err := profile.SetGlobals(s.store, payload.BusinessName, payload.LastProfile); err != nil {
		respondError(w, http.StatusInternalServerError, "no fue posible guardar la configuración global")
		return
	}

	respondJSON(w, http.StatusOK, payload)
}

func validateProfile(p costing.Profile) error {
	if p.PartsPerPlate < 1 {
		return fmt.Errorf("parts_per_plate debe ser mayor o igual a 1")
	}
	if p.NumPlates < 1 {
		return fmt.Errorf("num_plates debe ser mayor o igual a 1")
	}
	if p.FailureRate < 0 {
		return fmt.Errorf("failure_rate debe ser mayor o igual a 0")
	}
	if p.FailureRate >= 100 {
		return fmt.Errorf("failure_rate debe ser menor a 100")
	}

	nonNegative := []struct {
		name  string
		value float64
	}{
		{"labor_rate", p.LaborRate},
		{"prep_time", p.PrepTime},
		{"setup_time", p.SetupTime},
		{"finishing_per_part", p.FinishingPerPart},
		{"finishing_per_plate", p.FinishingPerPlate},
		{"printer_cost", p.PrinterCost},
		{"printer_lifespan", p.PrinterLifespan},
		{"maintenance_cost", p.MaintenanceCost},
		{"power_watts", p.PowerWatts},
		{"electricity_cost", p.ElectricityCost},
		{"bed_cost", p.BedCost},
		{"bed_lifespan", p.BedLifespan},
		{"nozzle_cost", p.NozzleCost},
		{"nozzle_lifespan_kg", p.NozzleLifespanKg},
		{"solvent_cost", p.SolventCost},
		{"solving_time", p.SolvingTime},
		{"tank_power", p.TankPower},
		{"finishing_materials", p.FinishingMaterials},
		{"markup_percent", p.MarkupPercent},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			return fmt.Errorf("%s debe ser mayor o igual a 0", f.name)
		}
	}

	return nil
}
