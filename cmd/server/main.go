package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Simplici0/facturador/internal/config"
	"github.com/Simplici0/facturador/internal/db"
	"github.com/Simplici0/facturador/internal/migrations"
	"github.com/Simplici0/facturador/internal/profile"
	"github.com/Simplici0/facturador/internal/seed"
	"github.com/Simplici0/facturador/internal/settings"
)

type server struct {
	db    *sql.DB
	store *settings.Store
}

func main() {
	cfg := config.Load()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if cfg.IsDev() {
		if err := migrations.Up(database, "migrations"); err != nil {
			log.Fatalf("failed to run database migrations: %v", err)
		}
	}

	stats, err := seed.Run(database)
	if err != nil {
		log.Fatalf("failed to run startup seed: %v", err)
	}
	if stats.Inserts > 0 {
		log.Printf("seeded %d default filament preset(s)", stats.Inserts)
	}

	store, err := settings.Open(database)
	if err != nil {
		log.Fatalf("failed to open settings store: %v", err)
	}

	srv := &server{db: database, store: store}
	if err := srv.ensureBusinessName(cfg.BusinessName); err != nil {
		log.Fatalf("failed to ensure business name: %v", err)
	}

	r := chi.NewRouter()
	r.Post("/api/quote", srv.handleQuote)
	r.Post("/api/invoice", srv.handleInvoiceExport)
	r.Get("/api/invoices", srv.handleInvoicesList)
	r.Get("/api/profiles", srv.handleProfilesList)
	r.Get("/api/profiles/{name}", srv.handleProfileLoad)
	r.Put("/api/profiles/{name}", srv.handleProfileSave)
	r.Delete("/api/profiles/{name}", srv.handleProfileDelete)
	r.Get("/api/settings", srv.handleSettingsGet)
	r.Put("/api/settings", srv.handleSettingsUpdate)
	r.Get("/api/presets", srv.handlePresetsList)
	r.Post("/api/presets", srv.handlePresetCreate)
	r.Post("/api/presets/{channel}", srv.handlePresetUpdate)

	addr := ":" + cfg.Port
	log.Printf("listening on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

// ensureBusinessName adopts the configured business name the first time the
// service starts against a fresh store. A name saved through the API wins.
func (s *server) ensureBusinessName(configured string) error {
	if configured == "" || profile.BusinessName(s.store) != "" {
		return nil
	}
	return profile.SetGlobals(s.store, configured, profile.LastProfile(s.store))
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "cuerpo JSON inválido")
		return false
	}
	return true
}

func isStoreUnavailable(err error) bool {
	return errors.Is(err, profile.ErrStoreUnavailable)
}
