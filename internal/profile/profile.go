// Package profile persists named job-parameter snapshots in a flat
// string key/value store.
//
// Layout in the store:
//
//	invoice_profiles        ";"-joined registry of known profile names
//	job_<name>_<field>      one entry per profile field
//	business_name           global, outside any profile
//	last_profile            global, outside any profile
package profile

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Simplici0/facturador/internal/costing"
)

const (
	registryKey     = "invoice_profiles"
	businessNameKey = "business_name"
	lastProfileKey  = "last_profile"

	registrySeparator = ";"
)

// ErrStoreUnavailable is returned when no store has been wired; callers
// keep their in-memory state untouched.
var ErrStoreUnavailable = errors.New("profile store unavailable")

// Store is the raw persistence contract: flat string keys and values,
// staged by Set and flushed by Save.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Save() error
}

// FieldError reports a persisted value that could not be parsed back into
// its field's type. Decoding continues past it; the field keeps its default.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("profile field %s: malformed value %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Save writes every field of p under the profile's key prefix, registers
// the name if it is new, and flushes the store. Saving an already known
// name rewrites only its fields; the registry keeps a single occurrence.
func Save(s Store, p costing.Profile, name string) error {
	if s == nil {
		return ErrStoreUnavailable
	}
	if name == "" {
		return errors.New("profile name must not be empty")
	}

	prefix := "job_" + name + "_"
	set := func(field, value string) { s.Set(prefix+field, value) }
	setFloat := func(field string, v float64) { set(field, formatFloat(v)) }

	set("customer_name", p.CustomerName)
	set("customer_email", p.CustomerEmail)
	set("customer_phone", p.CustomerPhone)
	set("job_name", p.JobName)
	set("job_description", p.JobDescription)

	set("parts_per_plate", strconv.Itoa(p.PartsPerPlate))
	set("num_plates", strconv.Itoa(p.NumPlates))
	setFloat("failure_rate", p.FailureRate)

	setFloat("labor_rate", p.LaborRate)
	setFloat("prep_time", p.PrepTime)
	setFloat("setup_time", p.SetupTime)
	setFloat("finishing_per_part", p.FinishingPerPart)
	setFloat("finishing_per_plate", p.FinishingPerPlate)

	setFloat("printer_cost", p.PrinterCost)
	setFloat("printer_lifespan", p.PrinterLifespan)
	setFloat("maintenance_cost", p.MaintenanceCost)
	setFloat("power_watts", p.PowerWatts)
	setFloat("electricity_cost", p.ElectricityCost)

	setFloat("bed_cost", p.BedCost)
	setFloat("bed_lifespan", p.BedLifespan)
	setFloat("nozzle_cost", p.NozzleCost)
	setFloat("nozzle_lifespan_kg", p.NozzleLifespanKg)

	setFloat("solvent_cost", p.SolventCost)
	setFloat("solving_time", p.SolvingTime)
	setFloat("tank_power", p.TankPower)
	setFloat("finishing_materials", p.FinishingMaterials)

	setFloat("markup_percent", p.MarkupPercent)

	set("cost_overrides", encodeOverrides(p.CostOverrides))

	names := List(s)
	known := false
	for _, n := range names {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		names = append(names, name)
		s.Set(registryKey, strings.Join(names, registrySeparator))
	}

	if err := s.Save(); err != nil {
		return fmt.Errorf("save profile %q: %w", name, err)
	}
	return nil
}

// Load reads the named profile. Missing keys fall back to the defaults of
// costing.DefaultProfile; a present but malformed numeric value yields a
// FieldError for that field while the rest of the profile still decodes.
// The returned error joins all field errors, or is nil for a clean load.
func Load(s Store, name string) (costing.Profile, error) {
	p := costing.DefaultProfile()
	if s == nil {
		return p, ErrStoreUnavailable
	}

	prefix := "job_" + name + "_"
	var fieldErrs []error

	get := func(field string) (string, bool) { return s.Get(prefix + field) }
	getStr := func(field string, dst *string) {
		if v, ok := get(field); ok {
			*dst = v
		}
	}
	getInt := func(field string, dst *int) {
		v, ok := get(field)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			fieldErrs = append(fieldErrs, &FieldError{Field: field, Value: v, Err: err})
			return
		}
		*dst = n
	}
	getFloat := func(field string, dst *float64) {
		v, ok := get(field)
		if !ok || v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			fieldErrs = append(fieldErrs, &FieldError{Field: field, Value: v, Err: err})
			return
		}
		*dst = f
	}

	getStr("customer_name", &p.CustomerName)
	getStr("customer_email", &p.CustomerEmail)
	getStr("customer_phone", &p.CustomerPhone)
	getStr("job_name", &p.JobName)
	getStr("job_description", &p.JobDescription)

	getInt("parts_per_plate", &p.PartsPerPlate)
	getInt("num_plates", &p.NumPlates)
	getFloat("failure_rate", &p.FailureRate)

	getFloat("labor_rate", &p.LaborRate)
	getFloat("prep_time", &p.PrepTime)
	getFloat("setup_time", &p.SetupTime)
	getFloat("finishing_per_part", &p.FinishingPerPart)
	getFloat("finishing_per_plate", &p.FinishingPerPlate)

	getFloat("printer_cost", &p.PrinterCost)
	getFloat("printer_lifespan", &p.PrinterLifespan)
	getFloat("maintenance_cost", &p.MaintenanceCost)
	getFloat("power_watts", &p.PowerWatts)
	getFloat("electricity_cost", &p.ElectricityCost)

	getFloat("bed_cost", &p.BedCost)
	getFloat("bed_lifespan", &p.BedLifespan)
	getFloat("nozzle_cost", &p.NozzleCost)
	getFloat("nozzle_lifespan_kg", &p.NozzleLifespanKg)

	getFloat("solvent_cost", &p.SolventCost)
	getFloat("solving_time", &p.SolvingTime)
	getFloat("tank_power", &p.TankPower)
	getFloat("finishing_materials", &p.FinishingMaterials)

	getFloat("markup_percent", &p.MarkupPercent)

	if v, ok := get("cost_overrides"); ok && v != "" {
		overrides, err := decodeOverrides(v)
		if err != nil {
			fieldErrs = append(fieldErrs, &FieldError{Field: "cost_overrides", Value: v, Err: err})
		} else if len(overrides) > 0 {
			p.CostOverrides = overrides
		}
	}

	return p, errors.Join(fieldErrs...)
}

// Delete removes the name from the registry and flushes the store. The
// profile's field entries stay behind as harmless orphaned keys. Deleting
// an unknown name is a no-op that still succeeds.
func Delete(s Store, name string) error {
	if s == nil {
		return ErrStoreUnavailable
	}

	names := List(s)
	kept := names[:0]
	for _, n := range names {
		if n != name {
			kept = append(kept, n)
		}
	}
	s.Set(registryKey, strings.Join(kept, registrySeparator))

	if err := s.Save(); err != nil {
		return fmt.Errorf("delete profile %q: %w", name, err)
	}
	return nil
}

// List returns the registered profile names in registry order. Empty names
// are suppressed, so lists written with a trailing separator by older
// versions load cleanly.
func List(s Store) []string {
	if s == nil {
		return nil
	}
	raw, ok := s.Get(registryKey)
	if !ok || raw == "" {
		return nil
	}

	names := make([]string, 0)
	for _, n := range strings.Split(raw, registrySeparator) {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// BusinessName reads the global business name.
func BusinessName(s Store) string {
	if s == nil {
		return ""
	}
	v, _ := s.Get(businessNameKey)
	return v
}

// LastProfile reads the name of the most recently saved profile.
func LastProfile(s Store) string {
	if s == nil {
		return ""
	}
	v, _ := s.Get(lastProfileKey)
	return v
}

// SetGlobals stages the global business name and last-profile entries and
// flushes the store.
func SetGlobals(s Store, businessName, lastProfile string) error {
	if s == nil {
		return ErrStoreUnavailable
	}
	s.Set(businessNameKey, businessName)
	s.Set(lastProfileKey, lastProfile)
	if err := s.Save(); err != nil {
		return fmt.Errorf("save global settings: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func encodeOverrides(overrides map[int]float64) string {
	if len(overrides) == 0 {
		return ""
	}
	channels := make([]int, 0, len(overrides))
	for ch := range overrides {
		channels = append(channels, ch)
	}
	sort.Ints(channels)

	pairs := make([]string, 0, len(channels))
	for _, ch := range channels {
		pairs = append(pairs, strconv.Itoa(ch)+":"+formatFloat(overrides[ch]))
	}
	return strings.Join(pairs, registrySeparator)
}

func decodeOverrides(raw string) (map[int]float64, error) {
	overrides := make(map[int]float64)
	for _, pair := range strings.Split(raw, registrySeparator) {
		if pair == "" {
			continue
		}
		chPart, costPart, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("malformed override pair %q", pair)
		}
		ch, err := strconv.Atoi(chPart)
		if err != nil {
			return nil, fmt.Errorf("malformed override channel %q: %w", chPart, err)
		}
		cost, err := strconv.ParseFloat(costPart, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed override cost %q: %w", costPart, err)
		}
		overrides[ch] = cost
	}
	return overrides, nil
}
