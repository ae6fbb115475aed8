package rules

import (
	"github.com/sells-group/swc-cli/internal/model"
)

// Table is an ordered, read-only practice table. Order decides the order of
// measures in results, not precedence.
type Table []Rule

// Filter returns the practices of every matching rule in table order.
// Duplicates in the table are preserved. The result is never nil.
func (t Table) Filter(f model.LocationFactors, ignoreLandUse bool) []string {
	out := []string{}
	for _, r := range t {
		if r.Matches(f, ignoreLandUse) {
			out = append(out, r.Practice)
		}
	}
	return out
}

// Evaluate runs the two-stage match. The STRICT stage enforces the declared
// land use; if it yields nothing, the RELAXED stage repeats the match without
// the land use constraint. An empty RELAXED result is a valid outcome.
func Evaluate(f model.LocationFactors, t Table) model.EvaluationResult {
	if strict := t.Filter(f, false); len(strict) > 0 {
		return model.EvaluationResult{Mode: model.ModeStrict, Measures: strict}
	}
	return model.EvaluationResult{Mode: model.ModeRelaxed, Measures: t.Filter(f, true)}
}
