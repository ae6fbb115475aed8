package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAnalysisRequest(t *testing.T) {
	t.Parallel()

	req, err := DecodeAnalysisRequest([]byte(`{"lat": 30.3165, "lon": 78.0322, "land_use": "small_millets"}`))
	require.NoError(t, err)
	assert.InDelta(t, 30.3165, req.Latitude, 1e-9)
	assert.InDelta(t, 78.0322, req.Longitude, 1e-9)
	assert.Equal(t, LandUseSmallMillets, req.LandUse)
	assert.Nil(t, req.Overrides.RainfallMM)
	assert.Nil(t, req.Overrides.SoilDepth)
}

func TestDecodeAnalysisRequest_ZeroCoordinatesAreValid(t *testing.T) {
	t.Parallel()

	req, err := DecodeAnalysisRequest([]byte(`{"lat": 0, "lon": 0, "land_use": "PADDY"}`))
	require.NoError(t, err)
	assert.Equal(t, 0.0, req.Latitude)
	assert.Equal(t, LandUsePaddy, req.LandUse)
}

func TestDecodeAnalysisRequest_Overrides(t *testing.T) {
	t.Parallel()

	req, err := DecodeAnalysisRequest([]byte(`{
		"lat": 10, "lon": 76, "land_use": "PADDY",
		"rainfall_mm": 2400, "slope_percent": 4, "soil_depth": "medium", "drainage": "poor"
	}`))
	require.NoError(t, err)
	require.NotNil(t, req.Overrides.RainfallMM)
	assert.Equal(t, 2400.0, *req.Overrides.RainfallMM)
	require.NotNil(t, req.Overrides.SoilDepth)
	assert.Equal(t, SoilDepthModerate, *req.Overrides.SoilDepth)
	require.NotNil(t, req.Overrides.Drainage)
	assert.Equal(t, DrainagePoor, *req.Overrides.Drainage)
}

func TestDecodeAnalysisRequest_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"empty body", ``, "Invalid or missing JSON payload"},
		{"not json", `lat=1`, "Invalid or missing JSON payload"},
		{"missing lat", `{"lon": 1, "land_use": "PADDY"}`, "lat, lon and land_use are required"},
		{"missing land use", `{"lat": 1, "lon": 1}`, "lat, lon and land_use are required"},
		{"blank land use", `{"lat": 1, "lon": 1, "land_use": "  "}`, "lat, lon and land_use are required"},
		{"lat out of range", `{"lat": 91, "lon": 1, "land_use": "PADDY"}`, "lat must be between -90 and 90"},
		{"lon out of range", `{"lat": 1, "lon": -181, "land_use": "PADDY"}`, "lon must be between -180 and 180"},
		{"negative slope", `{"lat": 1, "lon": 1, "land_use": "PADDY", "slope_percent": -2}`, "slope_percent must be >= 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeAnalysisRequest([]byte(tt.body))
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.message, ve.Message)
		})
	}
}
