package factors

import (
	"math"

	"github.com/sells-group/swc-cli/internal/model"
)

// SoilDepthFromSlope is a physiography proxy: flat alluvial plains are deep,
// undulating terrain moderate and dissected terrain shallow. An unknown (NaN)
// slope is treated as shallow.
func SoilDepthFromSlope(slopePercent float64) model.SoilDepth {
	switch {
	case math.IsNaN(slopePercent):
		return model.SoilDepthShallow
	case slopePercent <= 3:
		return model.SoilDepthDeep
	case slopePercent <= 15:
		return model.SoilDepthModerate
	default:
		return model.SoilDepthShallow
	}
}

// DrainageFrom classifies drainage: heavy rain on flat land drains poorly,
// gentle slopes moderately and steeper land well.
func DrainageFrom(slopePercent, rainfallMM float64) model.Drainage {
	switch {
	case rainfallMM > 2000 && slopePercent < 5:
		return model.DrainagePoor
	case slopePercent < 8:
		return model.DrainageModerate
	default:
		return model.DrainageGood
	}
}
