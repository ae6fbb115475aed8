package model

import (
	"encoding/json"
	"math"
	"strings"
)

// ValidationError reports malformed request input. It is raised before any
// core component runs.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RawAnalysisRequest mirrors the request body before validation. Pointer
// fields distinguish "absent" from zero.
type RawAnalysisRequest struct {
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	LandUse      *string  `json:"land_use"`
	RainfallMM   *float64 `json:"rainfall_mm,omitempty"`
	SlopePercent *float64 `json:"slope_percent,omitempty"`
	SoilDepth    *string  `json:"soil_depth,omitempty"`
	Drainage     *string  `json:"drainage,omitempty"`
}

// DecodeAnalysisRequest parses and validates a JSON request body.
func DecodeAnalysisRequest(body []byte) (AnalysisRequest, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return AnalysisRequest{}, &ValidationError{Message: "Invalid or missing JSON payload"}
	}
	var raw RawAnalysisRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return AnalysisRequest{}, &ValidationError{Message: "Invalid or missing JSON payload"}
	}
	return raw.Validate()
}

// Validate checks required fields and coordinate ranges and converts the raw
// request into an AnalysisRequest.
func (r RawAnalysisRequest) Validate() (AnalysisRequest, error) {
	var missing []string
	if r.Lat == nil {
		missing = append(missing, "lat")
	}
	if r.Lon == nil {
		missing = append(missing, "lon")
	}
	var landUse LandUse
	if r.LandUse != nil {
		landUse, _ = ParseLandUse(*r.LandUse)
	}
	if landUse == "" {
		missing = append(missing, "land_use")
	}
	if len(missing) > 0 {
		return AnalysisRequest{}, &ValidationError{
			Message: "lat, lon and land_use are required",
			Fields:  missing,
		}
	}

	lat, lon := *r.Lat, *r.Lon
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return AnalysisRequest{}, &ValidationError{Message: "lat must be between -90 and 90", Fields: []string{"lat"}}
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return AnalysisRequest{}, &ValidationError{Message: "lon must be between -180 and 180", Fields: []string{"lon"}}
	}
	if r.SlopePercent != nil && *r.SlopePercent < 0 {
		return AnalysisRequest{}, &ValidationError{Message: "slope_percent must be >= 0", Fields: []string{"slope_percent"}}
	}
	if r.RainfallMM != nil && *r.RainfallMM < 0 {
		return AnalysisRequest{}, &ValidationError{Message: "rainfall_mm must be >= 0", Fields: []string{"rainfall_mm"}}
	}

	req := AnalysisRequest{
		Latitude:  lat,
		Longitude: lon,
		LandUse:   landUse,
		Overrides: FactorOverrides{
			RainfallMM:   r.RainfallMM,
			SlopePercent: r.SlopePercent,
		},
	}
	if r.SoilDepth != nil {
		sd := ParseSoilDepth(*r.SoilDepth)
		req.Overrides.SoilDepth = &sd
	}
	if r.Drainage != nil {
		dr := ParseDrainage(*r.Drainage)
		req.Overrides.Drainage = &dr
	}
	return req, nil
}
