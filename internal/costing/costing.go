// Package costing turns job parameters, resolved filament usage and print
// time into a full price breakdown.
package costing

import (
	"errors"

	"github.com/Simplici0/facturador/internal/filament"
)

// ErrFailureRateTooHigh is returned when the failure rate reaches 100%:
// amortizing failed attempts over successful ones would divide by zero.
var ErrFailureRateTooHigh = errors.New("failure rate must be below 100%")

// Profile holds every business parameter of a job plus customer metadata.
// Exactly one instance is active per session; named snapshots are persisted
// through the profile codec.
type Profile struct {
	CustomerName   string `json:"customer_name"`
	CustomerEmail  string `json:"customer_email"`
	CustomerPhone  string `json:"customer_phone"`
	JobName        string `json:"job_name"`
	JobDescription string `json:"job_description"`

	PartsPerPlate int     `json:"parts_per_plate"`
	NumPlates     int     `json:"num_plates"`
	FailureRate   float64 `json:"failure_rate"` // percent

	LaborRate         float64 `json:"labor_rate"`          // $/hr
	PrepTime          float64 `json:"prep_time"`           // min/plate
	SetupTime         float64 `json:"setup_time"`          // min/plate
	FinishingPerPart  float64 `json:"finishing_per_part"`  // min/part
	FinishingPerPlate float64 `json:"finishing_per_plate"` // min/plate

	PrinterCost     float64 `json:"printer_cost"`     // $
	PrinterLifespan float64 `json:"printer_lifespan"` // hours
	MaintenanceCost float64 `json:"maintenance_cost"` // $/hr
	PowerWatts      float64 `json:"power_watts"`      // W
	ElectricityCost float64 `json:"electricity_cost"` // $/kWh

	BedCost          float64 `json:"bed_cost"`           // $
	BedLifespan      float64 `json:"bed_lifespan"`       // hours
	NozzleCost       float64 `json:"nozzle_cost"`        // $
	NozzleLifespanKg float64 `json:"nozzle_lifespan_kg"` // kg of filament

	SolventCost        float64 `json:"solvent_cost"`        // $/L
	SolvingTime        float64 `json:"solving_time"`        // hours
	TankPower          float64 `json:"tank_power"`          // W
	FinishingMaterials float64 `json:"finishing_materials"` // $/plate

	MarkupPercent float64 `json:"markup_percent"`

	// Per-channel cost-per-kg edits made after resolution, re-applied to
	// freshly resolved records when a saved profile is loaded.
	CostOverrides map[int]float64 `json:"cost_overrides,omitempty"`
}

// DefaultProfile returns a profile with the stock rates of a hobbyist FDM
// setup. These are also the per-field fallbacks used when decoding a
// persisted profile with missing keys.
func DefaultProfile() Profile {
	return Profile{
		PartsPerPlate:      1,
		NumPlates:          1,
		FailureRate:        5.0,
		LaborRate:          20.0,
		PrepTime:           15.0,
		SetupTime:          10.0,
		FinishingPerPart:   5.0,
		FinishingPerPlate:  0.0,
		PrinterCost:        300.0,
		PrinterLifespan:    15000.0,
		MaintenanceCost:    0.10,
		PowerWatts:         130.0,
		ElectricityCost:    0.15,
		BedCost:            30.0,
		BedLifespan:        5000.0,
		NozzleCost:         2.0,
		NozzleLifespanKg:   25.0,
		SolventCost:        0.0,
		SolvingTime:        0.0,
		TankPower:          0.0,
		FinishingMaterials: 0.0,
		MarkupPercent:      50.0,
	}
}

// Breakdown is the immutable result of one calculation run. It is replaced
// wholesale on every recalculation, never patched.
type Breakdown struct {
	MaterialCost      float64 `json:"material_cost"`
	LaborCost         float64 `json:"labor_cost"`
	MachineCost       float64 `json:"machine_cost"`
	ToolingCost       float64 `json:"tooling_cost"`
	PostProcessCost   float64 `json:"postprocess_cost"`
	Subtotal          float64 `json:"subtotal"`
	FailureAdjustment float64 `json:"failure_adjustment"`
	CostPerPart       float64 `json:"cost_per_part"`
	MarkupAmount      float64 `json:"markup_amount"`
	FinalPricePerPart float64 `json:"final_price_per_part"`
	TotalJobCost      float64 `json:"total_job_cost"`
	TotalParts        int     `json:"total_parts"`
	PrintTimeHours    float64 `json:"print_time_hours"`
}

// Calculate runs the pricing pipeline. It is a pure function of its inputs
// and cheap enough to re-run on every parameter edit.
//
// Stages, in order: material, labor, machine, tooling, post-processing,
// subtotal, failure-rate inflation, per-part cost, markup, job total.
func Calculate(p Profile, filaments []filament.Record, printTimeHours float64) (Breakdown, error) {
	failureRate := p.FailureRate / 100.0
	if failureRate >= 1.0 {
		return Breakdown{}, ErrFailureRateTooHigh
	}

	b := Breakdown{PrintTimeHours: printTimeHours}

	for _, f := range filaments {
		b.MaterialCost += f.Cost
	}

	laborMinutes := p.PrepTime + p.SetupTime + p.FinishingPerPart*float64(p.PartsPerPlate) + p.FinishingPerPlate
	b.LaborCost = (laborMinutes / 60.0) * p.LaborRate

	depreciationPerHour := p.PrinterCost / p.PrinterLifespan
	powerCostPerHour := (p.PowerWatts / 1000.0) * p.ElectricityCost
	machineHourlyRate := depreciationPerHour + p.MaintenanceCost + powerCostPerHour
	b.MachineCost = machineHourlyRate * printTimeHours

	bedWear := (p.BedCost / p.BedLifespan) * printTimeHours
	nozzleWear := (p.NozzleCost / p.NozzleLifespanKg) * filament.TotalKilograms(filaments)
	b.ToolingCost = bedWear + nozzleWear

	tankEnergyCost := (p.TankPower / 1000.0) * p.ElectricityCost * p.SolvingTime
	b.PostProcessCost = tankEnergyCost + p.FinishingMaterials

	b.Subtotal = b.MaterialCost + b.LaborCost + b.MachineCost + b.ToolingCost + b.PostProcessCost

	b.FailureAdjustment = b.Subtotal/(1.0-failureRate) - b.Subtotal

	totalPlateCost := b.Subtotal + b.FailureAdjustment
	b.CostPerPart = totalPlateCost
	if p.PartsPerPlate > 0 {
		b.CostPerPart = totalPlateCost / float64(p.PartsPerPlate)
	}

	b.MarkupAmount = b.CostPerPart * (p.MarkupPercent / 100.0)
	b.FinalPricePerPart = b.CostPerPart + b.MarkupAmount

	b.TotalParts = p.PartsPerPlate * p.NumPlates
	b.TotalJobCost = b.FinalPricePerPart * float64(b.TotalParts)

	return b, nil
}
