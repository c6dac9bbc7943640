package costing

import (
	"errors"
	"math"
	"testing"

	"github.com/Simplici0/facturador/internal/filament"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func singleFilament(grams, costPerKg float64) []filament.Record {
	r := filament.Record{Channel: 0, Name: "PLA", WeightGrams: grams}
	r.SetCostPerKg(costPerKg)
	return []filament.Record{r}
}

func TestCalculate_BatchJobScenario(t *testing.T) {
	p := DefaultProfile()
	p.PartsPerPlate = 4
	p.NumPlates = 2
	p.FailureRate = 5
	p.LaborRate = 20
	p.PrepTime = 15
	p.SetupTime = 10
	p.FinishingPerPart = 5
	p.FinishingPerPlate = 0
	p.PrinterCost = 300
	p.PrinterLifespan = 15000
	p.MaintenanceCost = 0.10
	p.PowerWatts = 130
	p.ElectricityCost = 0.15
	p.BedCost = 30
	p.BedLifespan = 5000
	p.NozzleCost = 2
	p.NozzleLifespanKg = 25
	p.MarkupPercent = 50

	b, err := Calculate(p, singleFilament(50, 20), 3)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	nearlyEqual(t, "material", b.MaterialCost, 1.00)
	nearlyEqual(t, "labor", b.LaborCost, 15.00)

	machineRate := 300.0/15000.0 + 0.10 + (130.0/1000.0)*0.15
	nearlyEqual(t, "machine", b.MachineCost, machineRate*3)

	nearlyEqual(t, "tooling", b.ToolingCost, (30.0/5000.0)*3+(2.0/25.0)*0.05)
	nearlyEqual(t, "postprocess", b.PostProcessCost, 0)

	subtotal := b.MaterialCost + b.LaborCost + b.MachineCost + b.ToolingCost
	nearlyEqual(t, "subtotal", b.Subtotal, subtotal)

	adjustment := subtotal/0.95 - subtotal
	nearlyEqual(t, "failure adjustment", b.FailureAdjustment, adjustment)

	costPerPart := (subtotal + adjustment) / 4
	nearlyEqual(t, "cost per part", b.CostPerPart, costPerPart)
	nearlyEqual(t, "markup", b.MarkupAmount, costPerPart*0.5)
	nearlyEqual(t, "final price", b.FinalPricePerPart, costPerPart*1.5)

	if b.TotalParts != 8 {
		t.Fatalf("total parts = %d, want 8", b.TotalParts)
	}
	nearlyEqual(t, "total job cost", b.TotalJobCost, costPerPart*1.5*8)
	nearlyEqual(t, "print time", b.PrintTimeHours, 3)

	// Ballpark sanity against the hand-computed figures.
	if math.Abs(b.TotalJobCost-51.92) > 0.01 {
		t.Fatalf("total job cost = %v, expected about 51.92", b.TotalJobCost)
	}
}

func TestCalculate_ZeroFailureRateHasZeroAdjustment(t *testing.T) {
	p := DefaultProfile()
	p.FailureRate = 0

	b, err := Calculate(p, singleFilament(100, 25), 2)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	nearlyEqual(t, "failure adjustment", b.FailureAdjustment, 0)
	nearlyEqual(t, "cost per part", b.CostPerPart, b.Subtotal)
}

func TestCalculate_FailureRateAtOrAbove100IsRejected(t *testing.T) {
	for _, rate := range []float64{100, 120} {
		p := DefaultProfile()
		p.FailureRate = rate

		if _, err := Calculate(p, nil, 1); !errors.Is(err, ErrFailureRateTooHigh) {
			t.Fatalf("rate %v: expected ErrFailureRateTooHigh, got %v", rate, err)
		}
	}
}

func TestCalculate_ZeroMarkup(t *testing.T) {
	p := DefaultProfile()
	p.FailureRate = 0
	p.MarkupPercent = 0

	b, err := Calculate(p, singleFilament(100, 20), 1)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	nearlyEqual(t, "markup", b.MarkupAmount, 0)
	nearlyEqual(t, "final price", b.FinalPricePerPart, b.CostPerPart)
}

func TestCalculate_NoFilamentsNoPrintTime(t *testing.T) {
	p := DefaultProfile()

	b, err := Calculate(p, nil, 0)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	nearlyEqual(t, "material", b.MaterialCost, 0)
	nearlyEqual(t, "machine", b.MachineCost, 0)
	nearlyEqual(t, "tooling", b.ToolingCost, 0)
	// Labor still accrues from prep and setup time.
	nearlyEqual(t, "labor", b.LaborCost, (15.0+10.0+5.0)/60.0*20.0)
}

func TestCalculate_RaisingInputsNeverLowersTotal(t *testing.T) {
	base := DefaultProfile()
	filaments := singleFilament(80, 22)

	reference, err := Calculate(base, filaments, 4)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	bumps := []func(*Profile){
		func(p *Profile) { p.LaborRate += 10 },
		func(p *Profile) { p.PrinterCost += 100 },
		func(p *Profile) { p.MaintenanceCost += 0.05 },
		func(p *Profile) { p.ElectricityCost += 0.10 },
		func(p *Profile) { p.BedCost += 15 },
		func(p *Profile) { p.NozzleCost += 3 },
		func(p *Profile) { p.FinishingMaterials += 2 },
		func(p *Profile) { p.MarkupPercent += 25 },
		func(p *Profile) { p.FailureRate += 10 },
	}

	for i, bump := range bumps {
		p := base
		bump(&p)
		b, err := Calculate(p, filaments, 4)
		if err != nil {
			t.Fatalf("bump %d: Calculate returned error: %v", i, err)
		}
		if b.TotalJobCost < reference.TotalJobCost {
			t.Fatalf("bump %d lowered total: %v < %v", i, b.TotalJobCost, reference.TotalJobCost)
		}
	}
}

func TestDefaultProfileMatchesStockRates(t *testing.T) {
	p := DefaultProfile()

	if p.PartsPerPlate != 1 || p.NumPlates != 1 {
		t.Fatalf("unexpected plate defaults: %+v", p)
	}
	nearlyEqual(t, "failure rate", p.FailureRate, 5)
	nearlyEqual(t, "labor rate", p.LaborRate, 20)
	nearlyEqual(t, "printer lifespan", p.PrinterLifespan, 15000)
	nearlyEqual(t, "markup", p.MarkupPercent, 50)
}
