// Package store persists analysis results as an evaluation history.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/swc-cli/internal/model"
)

// ErrNotFound is returned when an evaluation id does not exist.
var ErrNotFound = eris.New("store: evaluation not found")

// Default and maximum page sizes for ListEvaluations.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Record is one stored analysis. The indexed columns duplicate fields of
// Analysis for filtering.
type Record struct {
	ID        string               `json:"id"`
	Status    model.AnalysisStatus `json:"status"`
	Latitude  float64              `json:"lat"`
	Longitude float64              `json:"lon"`
	LandUse   model.LandUse        `json:"land_use"`
	Mode      model.Mode           `json:"mode,omitempty"`
	RiskLevel model.RiskLevel      `json:"risk_level,omitempty"`
	Reason    string               `json:"reason,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	Analysis  model.Analysis       `json:"analysis"`
}

// Filter specifies criteria for listing evaluations, newest first.
type Filter struct {
	Status  model.AnalysisStatus `json:"status,omitempty"`
	LandUse model.LandUse        `json:"land_use,omitempty"`
	Limit   int                  `json:"limit,omitempty"`
	Offset  int                  `json:"offset,omitempty"`
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	default:
		return f.Limit
	}
}

// Store defines evaluation history persistence.
type Store interface {
	// SaveEvaluation stores a, assigning EvaluationID and EvaluatedAt when
	// they are unset.
	SaveEvaluation(ctx context.Context, a *model.Analysis) error
	GetEvaluation(ctx context.Context, id string) (*Record, error)
	ListEvaluations(ctx context.Context, filter Filter) ([]Record, error)

	Migrate(ctx context.Context) error
	Close() error
}

// newRecord stamps a and derives its indexed columns.
func newRecord(a *model.Analysis) Record {
	if a.EvaluationID == "" {
		a.EvaluationID = uuid.New().String()
	}
	if a.EvaluatedAt.IsZero() {
		a.EvaluatedAt = time.Now().UTC()
	}
	r := Record{
		ID:        a.EvaluationID,
		Status:    a.Status,
		Latitude:  a.Input.Latitude,
		Longitude: a.Input.Longitude,
		LandUse:   a.Input.LandUse,
		Mode:      a.Mode,
		Reason:    a.Reason,
		CreatedAt: a.EvaluatedAt.UTC(),
		Analysis:  *a,
	}
	if a.ErosionRisk != nil {
		r.RiskLevel = a.ErosionRisk.Level
	}
	return r
}

type scannable interface {
	Scan(dest ...any) error
}

const selectColumns = `id, status, lat, lon, land_use, mode, risk_level, reason, result, created_at`
