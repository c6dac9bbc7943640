package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Simplici0/facturador/internal/costing"
	"github.com/Simplici0/facturador/internal/db"
	"github.com/Simplici0/facturador/internal/migrations"
	"github.com/Simplici0/facturador/internal/profile"
	"github.com/Simplici0/facturador/internal/settings"
)

func newTestServer(t *testing.T) *server {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "server-test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := migrations.Up(database, "../../migrations"); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	store, err := settings.Open(database)
	if err != nil {
		t.Fatalf("open settings store: %v", err)
	}

	return &server{db: database, store: store}
}

func batchProfile() costing.Profile {
	p := costing.DefaultProfile()
	p.JobName = "Lote llaveros"
	p.CustomerName = "Cliente Uno"
	p.PartsPerPlate = 4
	p.NumPlates = 2
	p.FailureRate = 5
	return p
}

func batchQuoteRequest() quoteRequest {
	return quoteRequest{
		Stats: printStats{
			FilamentUsage: map[int]float64{0: 1000},
			PrintTime:     "3h",
			TotalWeight:   50,
		},
		Profile: batchProfile(),
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleQuoteComputesBreakdown(t *testing.T) {
	srv := newTestServer(t)

	rr := postJSON(t, srv.handleQuote, "/api/quote", batchQuoteRequest())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp quoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(resp.Filaments) != 1 {
		t.Fatalf("expected 1 filament record, got %d", len(resp.Filaments))
	}
	// Single channel with a trusted slicer weight: the 50 g hint wins.
	if resp.Filaments[0].WeightGrams != 50 {
		t.Fatalf("weight = %v, want 50", resp.Filaments[0].WeightGrams)
	}

	if math.Abs(resp.Breakdown.MaterialCost-1.00) > 1e-9 {
		t.Fatalf("material = %v, want 1.00", resp.Breakdown.MaterialCost)
	}
	if math.Abs(resp.Breakdown.LaborCost-15.00) > 1e-9 {
		t.Fatalf("labor = %v, want 15.00", resp.Breakdown.LaborCost)
	}
	if resp.Breakdown.TotalParts != 8 {
		t.Fatalf("total parts = %d, want 8", resp.Breakdown.TotalParts)
	}
	if math.Abs(resp.Breakdown.TotalJobCost-51.92) > 0.01 {
		t.Fatalf("total job cost = %v, want about 51.92", resp.Breakdown.TotalJobCost)
	}
	if resp.Breakdown.PrintTimeHours != 3 {
		t.Fatalf("print time = %v, want 3", resp.Breakdown.PrintTimeHours)
	}
}

func TestHandleQuoteRejectsDegenerateFailureRate(t *testing.T) {
	srv := newTestServer(t)

	req := batchQuoteRequest()
	req.Profile.FailureRate = 100

	rr := postJSON(t, srv.handleQuote, "/api/quote", req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "failure_rate") {
		t.Fatalf("error should name the offending field: %s", rr.Body.String())
	}
}

func TestHandleQuoteRejectsInvalidPlateCounts(t *testing.T) {
	srv := newTestServer(t)

	req := batchQuoteRequest()
	req.Profile.PartsPerPlate = 0

	rr := postJSON(t, srv.handleQuote, "/api/quote", req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleQuoteRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/quote", strings.NewReader("{no es json"))
	rr := httptest.NewRecorder()
	srv.handleQuote(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestProfileLifecycleThroughAPI(t *testing.T) {
	srv := newTestServer(t)

	// Save.
	body, err := json.Marshal(batchProfile())
	if err != nil {
		t.Fatalf("marshal profile: %v", err)
	}
	req := httptest.NewRequest(http.MethodPut, "/api/profiles/lote", bytes.NewReader(body))
	req = withURLParam(req, "name", "lote")
	rr := httptest.NewRecorder()
	srv.handleProfileSave(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var listResp profilesListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode save response: %v", err)
	}
	if len(listResp.Profiles) != 1 || listResp.Profiles[0] != "lote" {
		t.Fatalf("unexpected profiles after save: %+v", listResp)
	}
	if listResp.LastProfile != "lote" {
		t.Fatalf("last profile = %q, want lote", listResp.LastProfile)
	}

	// Load.
	req = httptest.NewRequest(http.MethodGet, "/api/profiles/lote", nil)
	req = withURLParam(req, "name", "lote")
	rr = httptest.NewRecorder()
	srv.handleProfileLoad(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("load: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var loadResp profileLoadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &loadResp); err != nil {
		t.Fatalf("decode load response: %v", err)
	}
	if loadResp.Profile.JobName != "Lote llaveros" || loadResp.Profile.PartsPerPlate != 4 {
		t.Fatalf("loaded profile mismatch: %+v", loadResp.Profile)
	}
	if len(loadResp.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", loadResp.Warnings)
	}

	// Delete.
	req = httptest.NewRequest(http.MethodDelete, "/api/profiles/lote", nil)
	req = withURLParam(req, "name", "lote")
	rr = httptest.NewRecorder()
	srv.handleProfileDelete(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if names := profile.List(srv.store); len(names) != 0 {
		t.Fatalf("expected empty registry after delete, got %v", names)
	}
}

func TestHandleProfileLoadUnknownNameIs404(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/profiles/fantasma", nil)
	req = withURLParam(req, "name", "fantasma")
	rr := httptest.NewRecorder()
	srv.handleProfileLoad(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHandleProfileLoadReportsMalformedFields(t *testing.T) {
	srv := newTestServer(t)

	if err := profile.Save(srv.store, batchProfile(), "roto"); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	srv.store.Set("job_roto_labor_rate", "no numérico")
	if err := srv.store.Save(); err != nil {
		t.Fatalf("save corrupted value: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/profiles/roto", nil)
	req = withURLParam(req, "name", "roto")
	rr := httptest.NewRecorder()
	srv.handleProfileLoad(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with warnings, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp profileLoadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Warnings) != 1 || !strings.Contains(resp.Warnings[0], "labor_rate") {
		t.Fatalf("expected a labor_rate warning, got %v", resp.Warnings)
	}
	// The broken field falls back to its default.
	if resp.Profile.LaborRate != costing.DefaultProfile().LaborRate {
		t.Fatalf("labor rate = %v, want default", resp.Profile.LaborRate)
	}
}

func TestHandleInvoiceExport(t *testing.T) {
	srv := newTestServer(t)

	if err := profile.SetGlobals(srv.store, "<Acme & Sons>", ""); err != nil {
		t.Fatalf("set business name: %v", err)
	}

	rr := postJSON(t, srv.handleInvoiceExport, "/api/invoice", batchQuoteRequest())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/vnd.ms-excel" {
		t.Fatalf("content type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "invoice-") || !strings.Contains(cd, ".xls") {
		t.Fatalf("content disposition = %q", cd)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "&lt;Acme &amp; Sons&gt;") {
		t.Fatalf("business name not escaped in document")
	}
	if strings.Contains(body, "<Acme") {
		t.Fatalf("raw reserved characters leaked into the document")
	}
	if !strings.Contains(body, "3D Printed Parts") {
		t.Fatalf("missing invoice line item")
	}

	// Every export is logged.
	var count int
	if err := srv.db.QueryRow(`SELECT COUNT(*) FROM invoices`).Scan(&count); err != nil {
		t.Fatalf("count invoices: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 logged invoice, got %d", count)
	}

	var title string
	if err := srv.db.QueryRow(`SELECT title FROM invoices`).Scan(&title); err != nil {
		t.Fatalf("query invoice title: %v", err)
	}
	if title != "Lote llaveros" {
		t.Fatalf("logged title = %q", title)
	}
}

func TestHandleInvoicesListSearch(t *testing.T) {
	srv := newTestServer(t)

	for _, req := range []quoteRequest{batchQuoteRequest(), batchQuoteRequest()} {
		rr := postJSON(t, srv.handleInvoiceExport, "/api/invoice", req)
		if rr.Code != http.StatusOK {
			t.Fatalf("export failed: %d", rr.Code)
		}
	}

	items, err := srv.listInvoices("")
	if err != nil {
		t.Fatalf("listInvoices: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 invoices, got %d", len(items))
	}
	if math.Abs(items[0].Total-51.92) > 0.01 {
		t.Fatalf("total = %v, want about 51.92", items[0].Total)
	}

	filtered, err := srv.listInvoices("llaveros")
	if err != nil {
		t.Fatalf("listInvoices with query: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected title match, got %d items", len(filtered))
	}

	none, err := srv.listInvoices("tornillos")
	if err != nil {
		t.Fatalf("listInvoices with query: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no matches, got %d", len(none))
	}
}

func TestInvoiceFilename(t *testing.T) {
	if got := invoiceFilename("Lote llaveros", "abc"); got != "invoice-Lote-llaveros.xls" {
		t.Fatalf("filename = %q", got)
	}
	if got := invoiceFilename("", "abc"); got != "invoice-abc.xls" {
		t.Fatalf("filename = %q", got)
	}
	if got := invoiceFilename("../../etc", "abc"); got != "invoice-etc.xls" {
		t.Fatalf("filename = %q", got)
	}
}

func TestHandleSettingsUpdateRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	rr := postJSON(t, srv.handleSettingsUpdate, "/api/settings", settingsPayload{
		BusinessName: "Impresiones O.works",
		LastProfile:  "lote",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	get := httptest.NewRecorder()
	srv.handleSettingsGet(get, req)

	var payload settingsPayload
	if err := json.Unmarshal(get.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if payload.BusinessName != "Impresiones O.works" || payload.LastProfile != "lote" {
		t.Fatalf("unexpected settings: %+v", payload)
	}
}
