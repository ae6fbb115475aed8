// Package model defines the value types shared by the arability gate, the
// measure rule engine and the erosion risk scorer.
package model

// LocationFactors is the per-request snapshot of site conditions. It is built
// once by the factor aggregator and never mutated afterwards.
type LocationFactors struct {
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	LandUse      LandUse   `json:"land_use"`
	RainfallMM   float64   `json:"rainfall_mm"`
	SlopePercent float64   `json:"slope_percent"`
	SoilDepth    SoilDepth `json:"soil_depth"`
	Drainage     Drainage  `json:"drainage"`
}

// FactorOverrides carries caller-supplied factor values that bypass the
// sensors. Nil fields are fetched or derived.
type FactorOverrides struct {
	RainfallMM   *float64   `json:"rainfall_mm,omitempty"`
	SlopePercent *float64   `json:"slope_percent,omitempty"`
	SoilDepth    *SoilDepth `json:"soil_depth,omitempty"`
	Drainage     *Drainage  `json:"drainage,omitempty"`
}
