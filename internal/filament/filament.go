// Package filament resolves raw per-extruder usage into weighed, priced
// material records.
package filament

import (
	"fmt"
	"math"
	"sort"
)

// Defaults used when a preset lookup has no value for a channel.
const (
	DefaultColor     = "#808080"
	DefaultCostPerKg = 20.0
	DefaultDensity   = 1.24 // g/cm³
	DefaultDiameter  = 1.75 // mm
)

// Record is one material channel of a job: what was used and what it costs.
// Cost is always derived from WeightGrams and CostPerKg; use SetCostPerKg
// to change the price so the derivation holds.
type Record struct {
	Channel     int     `json:"channel"`
	Name        string  `json:"name"`
	Color       string  `json:"color"`
	WeightGrams float64 `json:"weight_grams"`
	CostPerKg   float64 `json:"cost_per_kg"`
	Cost        float64 `json:"cost"`
}

// SetCostPerKg updates the price of the record and recomputes its cost.
func (r *Record) SetCostPerKg(costPerKg float64) {
	r.CostPerKg = costPerKg
	r.recompute()
}

func (r *Record) recompute() {
	r.Cost = (r.WeightGrams / 1000.0) * r.CostPerKg
}

// PresetSource supplies per-channel filament preset values. Every lookup is
// optional; a false second return falls back to the documented default.
type PresetSource interface {
	Name(channel int) (string, bool)
	Color(channel int) (string, bool)
	CostPerKg(channel int) (float64, bool)
	Density(channel int) (float64, bool)
	Diameter(channel int) (float64, bool)
}

// Resolve converts raw usage units (filament length in mm, per channel)
// into records ordered by ascending channel id.
//
// Weight is derived geometrically from the preset diameter and density.
// When the job has exactly one channel and the slicer reported a positive
// total weight, that figure is trusted over the derived one. A job with no
// channels but a positive total weight yields a single synthetic record.
func Resolve(usage map[int]float64, presets PresetSource, totalWeightHint float64) []Record {
	channels := make([]int, 0, len(usage))
	for ch := range usage {
		channels = append(channels, ch)
	}
	sort.Ints(channels)

	records := make([]Record, 0, len(channels))
	for _, ch := range channels {
		rec := Record{
			Channel:   ch,
			Name:      fmt.Sprintf("Filament %d", ch+1),
			Color:     DefaultColor,
			CostPerKg: DefaultCostPerKg,
		}
		density := DefaultDensity
		diameter := DefaultDiameter

		if presets != nil {
			if name, ok := presets.Name(ch); ok {
				rec.Name = name
			}
			if color, ok := presets.Color(ch); ok {
				rec.Color = color
			}
			if cost, ok := presets.CostPerKg(ch); ok {
				rec.CostPerKg = cost
			}
			if d, ok := presets.Density(ch); ok {
				density = d
			}
			if d, ok := presets.Diameter(ch); ok {
				diameter = d
			}
		}

		radius := diameter / 2.0
		area := math.Pi * radius * radius
		volumeMm3 := usage[ch] * area
		rec.WeightGrams = volumeMm3 * density / 1000.0

		// The slicer's total weight accounts for the real extrusion, not
		// the cross-section approximation. With a single channel it is the
		// better figure.
		if len(usage) == 1 && totalWeightHint > 0 {
			rec.WeightGrams = totalWeightHint
		}

		rec.recompute()
		records = append(records, rec)
	}

	if len(records) == 0 && totalWeightHint > 0 {
		rec := Record{
			Channel:     0,
			Name:        "Default Filament",
			Color:       DefaultColor,
			WeightGrams: totalWeightHint,
			CostPerKg:   DefaultCostPerKg,
		}
		rec.recompute()
		records = append(records, rec)
	}

	return records
}

// ApplyCostOverrides replaces the cost per kg of matching channels in place,
// keeping each record's derived cost consistent.
func ApplyCostOverrides(records []Record, overrides map[int]float64) {
	if len(overrides) == 0 {
		return
	}
	for i := range records {
		if cost, ok := overrides[records[i].Channel]; ok {
			records[i].SetCostPerKg(cost)
		}
	}
}

// TotalKilograms sums the weight of all records in kilograms.
func TotalKilograms(records []Record) float64 {
	total := 0.0
	for _, r := range records {
		total += r.WeightGrams / 1000.0
	}
	return total
}
