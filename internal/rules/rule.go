// Package rules matches site factors against the ICAR table of mechanical
// soil-conservation measures.
package rules

import (
	"github.com/sells-group/swc-cli/internal/model"
)

// Range is an inclusive numeric interval.
type Range struct {
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

// Contains reports whether low <= v <= high.
func (r Range) Contains(v float64) bool {
	return r.Low <= v && v <= r.High
}

// Rule is one row of the practice table. Optional numeric constraints are nil
// when absent. A nil Drainage set leaves drainage unconstrained.
type Rule struct {
	Practice    string            `json:"practice"`
	SlopeMax    *float64          `json:"slope_max,omitempty"`
	SlopeRange  *Range            `json:"slope_range,omitempty"`
	RainfallMin *float64          `json:"rainfall_min,omitempty"`
	RainfallMax *float64          `json:"rainfall_max,omitempty"`
	SoilDepth   []model.SoilDepth `json:"soil_depth"`
	Drainage    []model.Drainage  `json:"drainage,omitempty"`
	LandUse     []model.LandUse   `json:"land_use"`
}

// Matches reports whether f satisfies every constraint of r. With
// ignoreLandUse the land use constraint is skipped entirely.
func (r Rule) Matches(f model.LocationFactors, ignoreLandUse bool) bool {
	if r.SlopeMax != nil && f.SlopePercent > *r.SlopeMax {
		return false
	}
	if r.SlopeRange != nil && !r.SlopeRange.Contains(f.SlopePercent) {
		return false
	}
	if r.RainfallMin != nil && f.RainfallMM < *r.RainfallMin {
		return false
	}
	if r.RainfallMax != nil && f.RainfallMM > *r.RainfallMax {
		return false
	}
	if !contains(r.SoilDepth, f.SoilDepth) {
		return false
	}
	if r.Drainage != nil && !contains(r.Drainage, f.Drainage) {
		return false
	}
	if !ignoreLandUse && !contains(r.LandUse, f.LandUse) {
		return false
	}
	return true
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
