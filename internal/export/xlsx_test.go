package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/swc-cli/internal/model"
	"github.com/sells-group/swc-cli/internal/store"
)

func sheetRows(t *testing.T, sheet *xlsx.Sheet) [][]string {
	t.Helper()
	var out [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = c.String()
		}
		out = append(out, cells)
	}
	return out
}

func testRecords() []store.Record {
	at := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	return []store.Record{
		{
			ID: "ok-1", Status: model.StatusOK, Latitude: 30.5, Longitude: 78.25,
			LandUse: model.LandUsePaddy, Mode: model.ModeStrict, RiskLevel: model.RiskHigh,
			CreatedAt: at,
			Analysis: model.Analysis{
				Factors: &model.FactorSummary{
					RainfallMM: 1500.15, SlopePercent: 9.5,
					SoilDepth: model.SoilDepthModerate, Drainage: model.DrainageGood,
				},
				MechanicalMeasures: &model.EvaluationResult{
					Mode:     model.ModeStrict,
					Measures: []string{"Bench terracing", "Contour bunding"},
				},
				ErosionRisk: &model.ErosionRiskResult{Level: model.RiskHigh, Score: 0.64},
				Explanation: "why",
			},
		},
		{
			ID: "na-1", Status: model.StatusNonArable, Latitude: 31, Longitude: 79,
			LandUse: model.LandUseForest, Reason: "Location outside land cover coverage",
			CreatedAt: at.Add(-time.Hour),
		},
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.xlsx")
	require.NoError(t, WriteXLSX(path, testRecords()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	evals := sheetRows(t, f.Sheet[EvaluationsSheet])
	require.Len(t, evals, 3)
	assert.Equal(t, EvaluationHeader, evals[0])
	assert.Equal(t, []string{
		"ok-1", "2026-04-02T08:30:00Z", "OK", "30.5", "78.25", "PADDY",
		"1500.15", "9.5", "MODERATE", "GOOD",
		"STRICT", "HIGH", "0.64", "", "Bench terracing; Contour bunding", "why",
	}, evals[1])
	assert.Equal(t, "NON_ARABLE", evals[2][2])
	assert.Equal(t, "", evals[2][6])
	assert.Equal(t, "Location outside land cover coverage", evals[2][13])

	measures := sheetRows(t, f.Sheet[MeasuresSheet])
	require.Len(t, measures, 3)
	assert.Equal(t, MeasureHeader, measures[0])
	assert.Equal(t, []string{"ok-1", "STRICT", "1", "Bench terracing"}, measures[1])
	assert.Equal(t, []string{"ok-1", "STRICT", "2", "Contour bunding"}, measures[2])
}

func TestWriteXLSX_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteXLSX(path, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Sheet[EvaluationsSheet].Rows, 1)
}

func TestWriteXLSX_BadPath(t *testing.T) {
	err := WriteXLSX(filepath.Join(t.TempDir(), "missing", "x.xlsx"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export: save")
}
