package arability

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fixed(r Result, calls *atomic.Int32) LandCoverLookup {
	return LookupFunc(func(context.Context, float64, float64) Result {
		calls.Add(1)
		return r
	})
}

func TestClassify_SteepSlopeSkipsLookup(t *testing.T) {
	for _, slope := range []float64{33.0001, 40, 100, 250} {
		var calls atomic.Int32
		got := Classify(context.Background(), 30.3, 78.0, slope, fixed(Result{Status: InsideCropland, Label: "CROPLAND"}, &calls))
		assert.False(t, got.IsArable)
		assert.Equal(t, "slope exceeds ICAR arability threshold (33%)", got.Reason)
		assert.Zero(t, calls.Load(), "lookup must not run for slope %v", slope)
	}
}

func TestClassify_Outcomes(t *testing.T) {
	tests := []struct {
		name   string
		slope  float64
		result Result
		arable bool
		reason string
	}{
		{"cropland", 5, Result{Status: InsideCropland, Label: "CROPLAND"}, true, "Cropland (land cover)"},
		{"cropland at threshold", 33, Result{Status: InsideCropland, Label: "CROPLAND"}, true, "Cropland (land cover)"},
		{"trees", 10, Result{Status: InsideOther, Label: "TREES"}, false, "Non-arable land cover (TREES)"},
		{"unknown class", 10, Result{Status: InsideOther, Label: "UNKNOWN"}, false, "Non-arable land cover (UNKNOWN)"},
		{"outside", 2, Result{Status: OutsideCoverage}, false, "Location outside land cover coverage"},
		{"nodata", 2, Result{Status: InvalidData}, false, "Invalid land cover data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			got := Classify(context.Background(), 30.3, 78.0, tt.slope, fixed(tt.result, &calls))
			assert.Equal(t, tt.arable, got.IsArable)
			assert.Equal(t, tt.reason, got.Reason)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestClassify_NilLookup(t *testing.T) {
	got := Classify(context.Background(), 0, 0, 1, nil)
	assert.False(t, got.IsArable)
	assert.Equal(t, ReasonOutsideCoverage, got.Reason)
}

func TestClassify_PassesCoordinates(t *testing.T) {
	var gotLat, gotLon float64
	lookup := LookupFunc(func(_ context.Context, lat, lon float64) Result {
		gotLat, gotLon = lat, lon
		return Result{Status: InsideCropland}
	})
	Classify(context.Background(), 12.5, 77.25, 3, lookup)
	assert.Equal(t, 12.5, gotLat)
	assert.Equal(t, 77.25, gotLon)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "inside_cropland", InsideCropland.String())
	assert.Equal(t, "inside_other", InsideOther.String())
	assert.Equal(t, "invalid_data", InvalidData.String())
	assert.Equal(t, "outside_coverage", OutsideCoverage.String())
}
