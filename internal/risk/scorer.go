// Package risk computes the informational erosion susceptibility indicator.
// It never consults arability or rule-matching results.
package risk

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/swc-cli/internal/config"
	"github.com/sells-group/swc-cli/internal/model"
)

// Method describes how the score is derived.
const Method = "Derived susceptibility index based on rainfall (mm), slope (%), soil depth class, and drainage class"

// Bin maps values strictly below Below to Risk. Bins are checked in order.
type Bin struct {
	Below float64
	Risk  float64
}

// Weights are the contributions of each sub-risk to the final score.
type Weights struct {
	Rainfall float64
	Slope    float64
	Soil     float64
	Drainage float64
}

// Scorer holds the binning and weighting tables. The zero value is not
// usable; start from DefaultScorer.
type Scorer struct {
	Weights Weights

	RainfallBins []Bin
	RainfallMax  float64 // risk at or above the last rainfall bin
	SlopeBins    []Bin
	SlopeMax     float64 // risk at or above the last slope bin

	SoilRisk        map[model.SoilDepth]float64
	DrainageRisk    map[model.Drainage]float64
	DefaultCategory float64 // risk for unrecognized soil or drainage classes

	LowBelow      float64 // score below this is LOW
	ModerateBelow float64 // score below this (and not LOW) is MODERATE
}

// DefaultWeights returns the standard factor weights (sum = 1).
func DefaultWeights() Weights {
	return Weights{Rainfall: 0.35, Slope: 0.35, Soil: 0.15, Drainage: 0.15}
}

// DefaultScorer returns a Scorer with the standard tables.
func DefaultScorer() *Scorer {
	return &Scorer{
		Weights: DefaultWeights(),

		RainfallBins: []Bin{{Below: 500, Risk: 0.2}, {Below: 1000, Risk: 0.5}},
		RainfallMax:  0.8,
		// Slopes above 33% never reach the scorer through the arability gate
		// but still score in the top bin.
		SlopeBins: []Bin{{Below: 3, Risk: 0.2}, {Below: 8, Risk: 0.4}, {Below: 15, Risk: 0.6}},
		SlopeMax:  0.8,

		SoilRisk: map[model.SoilDepth]float64{
			model.SoilDepthDeep:     0.2,
			model.SoilDepthModerate: 0.5,
			model.SoilDepthShallow:  0.8,
		},
		DrainageRisk: map[model.Drainage]float64{
			model.DrainageGood:     0.3,
			model.DrainageModerate: 0.5,
			model.DrainagePoor:     0.8,
		},
		DefaultCategory: 0.5,

		LowBelow:      0.35,
		ModerateBelow: 0.6,
	}
}

// New returns the default scorer with weights from configuration.
func New(cfg config.RiskConfig) (*Scorer, error) {
	w := Weights{
		Rainfall: cfg.RainfallWeight,
		Slope:    cfg.SlopeWeight,
		Soil:     cfg.SoilWeight,
		Drainage: cfg.DrainageWeight,
	}
	if err := ValidateWeights(w); err != nil {
		return nil, err
	}
	s := DefaultScorer()
	s.Weights = w
	return s, nil
}

// ValidateWeights checks that weights are non-negative and sum to 1.
func ValidateWeights(w Weights) error {
	var errs []string
	for name, v := range map[string]float64{
		"rainfall_weight": w.Rainfall,
		"slope_weight":    w.Slope,
		"soil_weight":     w.Soil,
		"drainage_weight": w.Drainage,
	} {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}
	sum := w.Rainfall + w.Slope + w.Soil + w.Drainage
	if math.Abs(sum-1) > 0.001 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.3f", sum))
	}
	if len(errs) > 0 {
		return eris.Errorf("risk: invalid weights: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Score computes the erosion risk for one set of factors.
func (s *Scorer) Score(rainfallMM, slopePercent float64, soil model.SoilDepth, drainage model.Drainage) model.ErosionRiskResult {
	r := binRisk(rainfallMM, s.RainfallBins, s.RainfallMax)
	sl := binRisk(slopePercent, s.SlopeBins, s.SlopeMax)
	so := categoryRisk(s.SoilRisk, soil, s.DefaultCategory)
	dr := categoryRisk(s.DrainageRisk, drainage, s.DefaultCategory)

	// Explicit conversions keep each product rounded on its own so the sum
	// is never fused into FMA instructions.
	raw := float64(s.Weights.Rainfall*r) +
		float64(s.Weights.Slope*sl) +
		float64(s.Weights.Soil*so) +
		float64(s.Weights.Drainage*dr)
	score := Round2(raw)

	return model.ErosionRiskResult{
		Level:  s.Level(score),
		Score:  score,
		Method: Method,
	}
}

// ScoreFactors is a convenience wrapper over Score.
func (s *Scorer) ScoreFactors(f model.LocationFactors) model.ErosionRiskResult {
	return s.Score(f.RainfallMM, f.SlopePercent, f.SoilDepth, f.Drainage)
}

// Level buckets a score.
func (s *Scorer) Level(score float64) model.RiskLevel {
	switch {
	case score < s.LowBelow:
		return model.RiskLow
	case score < s.ModerateBelow:
		return model.RiskModerate
	default:
		return model.RiskHigh
	}
}

// Round2 rounds to two decimals using the exact binary value of v, so
// 0.46499999999999997 becomes 0.46 and exact ties round half to even.
func Round2(v float64) float64 {
	out, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return out
}

func binRisk(v float64, bins []Bin, top float64) float64 {
	for _, b := range bins {
		if v < b.Below {
			return b.Risk
		}
	}
	return top
}

func categoryRisk[K comparable](table map[K]float64, k K, fallback float64) float64 {
	if v, ok := table[k]; ok {
		return v
	}
	return fallback
}
