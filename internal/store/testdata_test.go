package store

import (
	"time"

	"github.com/sells-group/swc-cli/internal/model"
)

func okAnalysis(at time.Time, lu model.LandUse) *model.Analysis {
	return &model.Analysis{
		Status: model.StatusOK,
		Mode:   model.ModeStrict,
		Input:  model.AnalysisInput{Latitude: 30.55, Longitude: 78.25, LandUse: lu},
		Factors: &model.FactorSummary{
			RainfallMM:   1400,
			SlopePercent: 6.2,
			SoilDepth:    model.SoilDepthModerate,
			Drainage:     model.DrainageModerate,
			LandUse:      lu,
		},
		MechanicalMeasures: &model.EvaluationResult{Mode: model.ModeStrict, Measures: []string{"Contour bunding"}},
		ErosionRisk:        &model.ErosionRiskResult{Level: model.RiskModerate, Score: 0.52, Method: "m"},
		Explanation:        "e",
		EvaluatedAt:        at,
	}
}

func nonArableAnalysis(at time.Time) *model.Analysis {
	return &model.Analysis{
		Status:      model.StatusNonArable,
		Reason:      "slope exceeds ICAR arability threshold (33%)",
		Message:     model.NonArableMessage,
		Input:       model.AnalysisInput{Latitude: 31, Longitude: 79, LandUse: model.LandUsePaddy},
		EvaluatedAt: at,
	}
}
