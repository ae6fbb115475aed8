// Package export writes stored evaluations to spreadsheet files.
package export

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/swc-cli/internal/store"
)

// Sheet names of the exported workbook.
const (
	EvaluationsSheet = "Evaluations"
	MeasuresSheet    = "Measures"
)

// EvaluationHeader is the header row of the evaluations sheet.
var EvaluationHeader = []string{
	"evaluation_id", "created_at", "status", "lat", "lon", "land_use",
	"rainfall_mm", "slope_percent", "soil_depth", "drainage",
	"mode", "risk_level", "risk_score", "reason", "measures", "explanation",
}

// MeasureHeader is the header row of the measures sheet.
var MeasureHeader = []string{"evaluation_id", "mode", "position", "measure"}

// WriteXLSX writes records to a workbook at path. One row per evaluation goes
// to the evaluations sheet; each recommended measure gets its own row on the
// measures sheet.
func WriteXLSX(path string, records []store.Record) error {
	f := xlsx.NewFile()
	evals, err := f.AddSheet(EvaluationsSheet)
	if err != nil {
		return eris.Wrap(err, "export: add evaluations sheet")
	}
	measures, err := f.AddSheet(MeasuresSheet)
	if err != nil {
		return eris.Wrap(err, "export: add measures sheet")
	}

	addRow(evals, EvaluationHeader)
	addRow(measures, MeasureHeader)
	for _, r := range records {
		addRow(evals, EvaluationRow(r))
		a := r.Analysis
		if a.MechanicalMeasures == nil {
			continue
		}
		for i, m := range a.MechanicalMeasures.Measures {
			addRow(measures, []string{r.ID, string(a.MechanicalMeasures.Mode), strconv.Itoa(i + 1), m})
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// EvaluationRow flattens a record into the evaluations sheet columns. Factor
// and risk columns are blank for non-arable records.
func EvaluationRow(r store.Record) []string {
	a := r.Analysis
	row := []string{
		r.ID,
		r.CreatedAt.UTC().Format(time.RFC3339),
		string(r.Status),
		formatFloat(r.Latitude),
		formatFloat(r.Longitude),
		string(r.LandUse),
		"", "", "", "",
		string(r.Mode),
		string(r.RiskLevel),
		"",
		r.Reason,
		"",
		a.Explanation,
	}
	if f := a.Factors; f != nil {
		row[6] = formatFloat(f.RainfallMM)
		row[7] = formatFloat(f.SlopePercent)
		row[8] = string(f.SoilDepth)
		row[9] = string(f.Drainage)
	}
	if a.ErosionRisk != nil {
		row[12] = formatFloat(a.ErosionRisk.Score)
	}
	if a.MechanicalMeasures != nil {
		row[14] = strings.Join(a.MechanicalMeasures.Measures, "; ")
	}
	return row
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
