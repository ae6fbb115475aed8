package model

import "time"

// AnalysisStatus is the top-level outcome of an analysis request.
type AnalysisStatus string

const (
	StatusOK        AnalysisStatus = "OK"
	StatusNonArable AnalysisStatus = "NON_ARABLE"
	StatusError     AnalysisStatus = "ERROR"
)

// NonArableMessage accompanies every NON_ARABLE response.
const NonArableMessage = "System works only for arable agricultural land"

// AnalysisRequest is the validated input of one analysis.
type AnalysisRequest struct {
	Latitude  float64         `json:"lat"`
	Longitude float64         `json:"lon"`
	LandUse   LandUse         `json:"land_use"`
	Overrides FactorOverrides `json:"overrides,omitempty"`
}

// AnalysisInput echoes the request location in responses.
type AnalysisInput struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	LandUse   LandUse `json:"land_use"`
}

// FactorSummary is the factor block of an OK response.
type FactorSummary struct {
	RainfallMM   float64   `json:"rainfall_mm"`
	SlopePercent float64   `json:"slope_percent"`
	SoilDepth    SoilDepth `json:"soil_depth"`
	Drainage     Drainage  `json:"drainage"`
	LandUse      LandUse   `json:"land_use"`
}

// Analysis is the response envelope for both OK and NON_ARABLE outcomes.
type Analysis struct {
	EvaluationID       string             `json:"evaluation_id,omitempty"`
	Status             AnalysisStatus     `json:"status"`
	Mode               Mode               `json:"mode,omitempty"`
	Reason             string             `json:"reason,omitempty"`
	Message            string             `json:"message,omitempty"`
	Input              AnalysisInput      `json:"input"`
	Factors            *FactorSummary     `json:"factors,omitempty"`
	MechanicalMeasures *EvaluationResult  `json:"mechanical_measures,omitempty"`
	ErosionRisk        *ErosionRiskResult `json:"erosion_risk,omitempty"`
	Explanation        string             `json:"explanation,omitempty"`
	EvaluatedAt        time.Time          `json:"evaluated_at"`
}

// NewInput builds the input echo from a factor snapshot.
func NewInput(f LocationFactors) AnalysisInput {
	return AnalysisInput{Latitude: f.Latitude, Longitude: f.Longitude, LandUse: f.LandUse}
}

// Summarize builds the factor block of an OK response.
func Summarize(f LocationFactors) *FactorSummary {
	return &FactorSummary{
		RainfallMM:   f.RainfallMM,
		SlopePercent: f.SlopePercent,
		SoilDepth:    f.SoilDepth,
		Drainage:     f.Drainage,
		LandUse:      f.LandUse,
	}
}
