package rules

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/swc-cli/internal/model"
)

func ptr(v float64) *float64 { return &v }

func factors(slope, rainfall float64, soil model.SoilDepth, drainage model.Drainage, lu model.LandUse) model.LocationFactors {
	return model.LocationFactors{
		Latitude:     30.3165,
		Longitude:    78.0322,
		LandUse:      lu,
		RainfallMM:   rainfall,
		SlopePercent: slope,
		SoilDepth:    soil,
		Drainage:     drainage,
	}
}

func TestEvaluate_RelaxedWhenLandUseMismatch(t *testing.T) {
	table := Table{{
		Practice:   "Contour bunding",
		SlopeRange: &Range{Low: 3, High: 8},
		SoilDepth:  []model.SoilDepth{model.SoilDepthModerate},
		LandUse:    []model.LandUse{model.LandUsePaddy},
	}}
	f := factors(5, 900, model.SoilDepthModerate, model.DrainageGood, model.LandUseVegetables)

	assert.Empty(t, table.Filter(f, false))

	got := Evaluate(f, table)
	assert.Equal(t, model.ModeRelaxed, got.Mode)
	assert.Equal(t, []string{"Contour bunding"}, got.Measures)
}

func TestEvaluate_StrictPreservesOrderAndDuplicates(t *testing.T) {
	table := Table{
		{Practice: "B", SoilDepth: []model.SoilDepth{model.SoilDepthDeep}, LandUse: []model.LandUse{model.LandUsePaddy}},
		{Practice: "A", SoilDepth: []model.SoilDepth{model.SoilDepthDeep}, LandUse: []model.LandUse{model.LandUsePaddy}},
		{Practice: "B", SoilDepth: []model.SoilDepth{model.SoilDepthDeep}, LandUse: []model.LandUse{model.LandUsePaddy}},
		{Practice: "C", SoilDepth: []model.SoilDepth{model.SoilDepthDeep}, LandUse: []model.LandUse{model.LandUseForest}},
	}
	f := factors(0.5, 1500, model.SoilDepthDeep, model.DrainagePoor, model.LandUsePaddy)

	got := Evaluate(f, table)
	assert.Equal(t, model.ModeStrict, got.Mode)
	assert.Equal(t, []string{"B", "A", "B"}, got.Measures)
}

func TestEvaluate_EmptyRelaxed(t *testing.T) {
	table := Table{{
		Practice:  "Bench terracing",
		SlopeMax:  ptr(2),
		SoilDepth: []model.SoilDepth{model.SoilDepthDeep},
		LandUse:   []model.LandUse{model.LandUsePaddy},
	}}
	f := factors(20, 1500, model.SoilDepthDeep, model.DrainageGood, model.LandUsePaddy)

	got := Evaluate(f, table)
	assert.Equal(t, model.ModeRelaxed, got.Mode)
	assert.NotNil(t, got.Measures)
	assert.Empty(t, got.Measures)
}

func TestEvaluate_EmptyTable(t *testing.T) {
	got := Evaluate(factors(1, 1, model.SoilDepthDeep, model.DrainageGood, model.LandUsePaddy), nil)
	assert.Equal(t, model.ModeRelaxed, got.Mode)
	assert.Equal(t, []string{}, got.Measures)
}

func TestRuleMatches(t *testing.T) {
	base := Rule{
		Practice:  "X",
		SoilDepth: []model.SoilDepth{model.SoilDepthModerate},
		LandUse:   []model.LandUse{model.LandUseVegetables},
	}
	f := factors(5, 800, model.SoilDepthModerate, model.DrainageModerate, model.LandUseVegetables)

	tests := []struct {
		name   string
		mutate func(r *Rule)
		f      model.LocationFactors
		ignore bool
		want   bool
	}{
		{"no numeric constraints", func(*Rule) {}, f, false, true},
		{"slope_max inclusive", func(r *Rule) { r.SlopeMax = ptr(5) }, f, false, true},
		{"slope_max exceeded", func(r *Rule) { r.SlopeMax = ptr(4.99) }, f, false, false},
		{"slope_range low bound", func(r *Rule) { r.SlopeRange = &Range{Low: 5, High: 8} }, f, false, true},
		{"slope_range high bound", func(r *Rule) { r.SlopeRange = &Range{Low: 3, High: 5} }, f, false, true},
		{"slope_range outside", func(r *Rule) { r.SlopeRange = &Range{Low: 6, High: 8} }, f, false, false},
		{"rainfall_min inclusive", func(r *Rule) { r.RainfallMin = ptr(800) }, f, false, true},
		{"rainfall_min failed", func(r *Rule) { r.RainfallMin = ptr(801) }, f, false, false},
		{"rainfall_max inclusive", func(r *Rule) { r.RainfallMax = ptr(800) }, f, false, true},
		{"rainfall_max failed", func(r *Rule) { r.RainfallMax = ptr(799) }, f, false, false},
		{"soil depth mismatch", func(r *Rule) { r.SoilDepth = []model.SoilDepth{model.SoilDepthDeep} }, f, false, false},
		{"drainage omitted is open", func(r *Rule) { r.Drainage = nil }, f, false, true},
		{"drainage match", func(r *Rule) { r.Drainage = []model.Drainage{model.DrainageModerate, model.DrainageGood} }, f, false, true},
		{"drainage mismatch", func(r *Rule) { r.Drainage = []model.Drainage{model.DrainagePoor} }, f, false, false},
		{"land use mismatch strict", func(r *Rule) { r.LandUse = []model.LandUse{model.LandUsePaddy} }, f, false, false},
		{"land use mismatch relaxed", func(r *Rule) { r.LandUse = []model.LandUse{model.LandUsePaddy} }, f, true, true},
		{"relaxed still checks soil", func(r *Rule) { r.SoilDepth = []model.SoilDepth{model.SoilDepthShallow} }, f, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mutate(&r)
			assert.Equal(t, tt.want, r.Matches(tt.f, tt.ignore))
		})
	}
}

func TestEvaluate_StrictIsSubsetOfRelaxed(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	soils := []model.SoilDepth{model.SoilDepthShallow, model.SoilDepthModerate, model.SoilDepthDeep, model.SoilDepthUnknown}
	drains := []model.Drainage{model.DrainagePoor, model.DrainageModerate, model.DrainageGood}
	uses := []model.LandUse{
		model.LandUsePaddy, model.LandUseSmallMillets, model.LandUsePlantation,
		model.LandUseVegetables, model.LandUseRootCrops, model.LandUseForest, "ORCHARD",
	}

	rng := rand.New(rand.NewPCG(42, 7))
	for i := 0; i < 2000; i++ {
		f := factors(
			rng.Float64()*40,
			rng.Float64()*3000,
			soils[rng.IntN(len(soils))],
			drains[rng.IntN(len(drains))],
			uses[rng.IntN(len(uses))],
		)
		strict := table.Filter(f, false)
		relaxed := table.Filter(f, true)

		seen := make(map[string]int, len(relaxed))
		for _, m := range relaxed {
			seen[m]++
		}
		for _, m := range strict {
			require.Positive(t, seen[m], "strict measure %q missing from relaxed for %+v", m, f)
		}

		// Idempotence, order included.
		assert.Equal(t, Evaluate(f, table), Evaluate(f, table))
	}
}

func TestEvaluate_DefaultTable(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	// Flat paddy land: field bunding applies strictly.
	got := Evaluate(factors(0.5, 1400, model.SoilDepthDeep, model.DrainagePoor, model.LandUsePaddy), table)
	assert.Equal(t, model.ModeStrict, got.Mode)
	assert.Equal(t, []string{"Field bunding"}, got.Measures)

	// Steep wet vegetable plots: bench terracing.
	got = Evaluate(factors(20, 1800, model.SoilDepthModerate, model.DrainageGood, model.LandUseVegetables), table)
	assert.Equal(t, model.ModeStrict, got.Mode)
	assert.Equal(t, []string{"Bench terracing"}, got.Measures)
}
