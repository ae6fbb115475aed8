// Package arability decides whether a point is arable from its slope and the
// land-cover class found at that point.
package arability

import (
	"context"
	"fmt"

	"github.com/sells-group/swc-cli/internal/model"
)

// SlopeThreshold is the ICAR slope above which land is never arable.
const SlopeThreshold = 33.0

// Decision reasons.
const (
	ReasonSteepSlope      = "slope exceeds ICAR arability threshold (33%)"
	ReasonCropland        = "Cropland (land cover)"
	ReasonOutsideCoverage = "Location outside land cover coverage"
	ReasonInvalidData     = "Invalid land cover data"
)

// Status is the outcome of a land-cover lookup.
type Status int

const (
	// OutsideCoverage means no tile contained the point. It is the zero value so
	// an empty Result never reads as arable.
	OutsideCoverage Status = iota
	InsideCropland
	InsideOther
	InvalidData
)

func (s Status) String() string {
	switch s {
	case InsideCropland:
		return "inside_cropland"
	case InsideOther:
		return "inside_other"
	case InvalidData:
		return "invalid_data"
	default:
		return "outside_coverage"
	}
}

// Result is a land-cover classification. Label is the dominant class label
// for InsideCropland and InsideOther.
type Result struct {
	Status Status
	Label  string
}

// LandCoverLookup classifies the land cover at a point. Implementations own
// their own I/O policy; Classify never retries.
type LandCoverLookup interface {
	Lookup(ctx context.Context, lat, lon float64) Result
}

// LookupFunc adapts a function to LandCoverLookup.
type LookupFunc func(ctx context.Context, lat, lon float64) Result

// Lookup calls f.
func (f LookupFunc) Lookup(ctx context.Context, lat, lon float64) Result {
	return f(ctx, lat, lon)
}

// Classify applies the slope cutoff first and consults lookup only for points
// at or below it. A nil lookup behaves as if no coverage exists.
func Classify(ctx context.Context, lat, lon, slopePercent float64, lookup LandCoverLookup) model.ArabilityDecision {
	if slopePercent > SlopeThreshold {
		return model.ArabilityDecision{IsArable: false, Reason: ReasonSteepSlope}
	}
	if lookup == nil {
		return model.ArabilityDecision{IsArable: false, Reason: ReasonOutsideCoverage}
	}
	return Decide(lookup.Lookup(ctx, lat, lon))
}

// Decide maps a lookup result to a decision.
func Decide(r Result) model.ArabilityDecision {
	switch r.Status {
	case InsideCropland:
		return model.ArabilityDecision{IsArable: true, Reason: ReasonCropland}
	case InsideOther:
		return model.ArabilityDecision{IsArable: false, Reason: fmt.Sprintf("Non-arable land cover (%s)", r.Label)}
	case InvalidData:
		return model.ArabilityDecision{IsArable: false, Reason: ReasonInvalidData}
	default:
		return model.ArabilityDecision{IsArable: false, Reason: ReasonOutsideCoverage}
	}
}
