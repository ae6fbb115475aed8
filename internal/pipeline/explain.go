package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/swc-cli/internal/model"
)

// SlopeClass buckets a slope percentage for the explanation sentence.
func SlopeClass(slopePercent float64) string {
	switch {
	case slopePercent < 3:
		return "gentle"
	case slopePercent < 8:
		return "moderate"
	case slopePercent < 15:
		return "steep"
	default:
		return "very steep"
	}
}

// RainfallClass buckets annual rainfall (mm) for the explanation sentence.
func RainfallClass(rainfallMM float64) string {
	switch {
	case rainfallMM < 500:
		return "low"
	case rainfallMM < 1000:
		return "moderate"
	case rainfallMM < 2000:
		return "high"
	default:
		return "very high"
	}
}

// Explain renders the one-sentence summary attached to an OK analysis. The
// output depends only on its arguments.
func Explain(f model.LocationFactors, measures []string, level model.RiskLevel) string {
	recommendation := "no mechanical measures for these conditions"
	if len(measures) > 0 {
		recommendation = strings.Join(measures, ", ")
	}
	return fmt.Sprintf(
		"Based on a %s slope and %s rainfall conditions, the erosion risk is assessed as %s. ICAR recommends %s.",
		SlopeClass(f.SlopePercent), RainfallClass(f.RainfallMM), level, recommendation,
	)
}
