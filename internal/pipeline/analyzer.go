// Package pipeline runs one land-use analysis end to end: factor
// aggregation, the arability gate, the measure rule engine, erosion risk
// scoring and history persistence.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/swc-cli/internal/arability"
	"github.com/sells-group/swc-cli/internal/metrics"
	"github.com/sells-group/swc-cli/internal/model"
	"github.com/sells-group/swc-cli/internal/risk"
	"github.com/sells-group/swc-cli/internal/rules"
)

// FactorBuilder produces the factor snapshot for a request.
type FactorBuilder interface {
	Build(ctx context.Context, lat, lon float64, lu model.LandUse, ov model.FactorOverrides) (model.LocationFactors, error)
}

// Recorder persists finished analyses. store.Store satisfies it.
type Recorder interface {
	SaveEvaluation(ctx context.Context, a *model.Analysis) error
}

// Options wires the analyzer's collaborators. Rules defaults to an empty
// table, Scorer to risk.DefaultScorer. LandCover, Store and Metrics may be nil.
type Options struct {
	Factors   FactorBuilder
	LandCover arability.LandCoverLookup
	Rules     rules.Table
	Scorer    *risk.Scorer
	Store     Recorder
	Metrics   *metrics.Metrics
}

// Analyzer orchestrates a single analysis. It holds no per-request state and
// is safe for concurrent use.
type Analyzer struct {
	factors   FactorBuilder
	landCover arability.LandCoverLookup
	rules     rules.Table
	scorer    *risk.Scorer
	store     Recorder
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	scorer := opts.Scorer
	if scorer == nil {
		scorer = risk.DefaultScorer()
	}
	return &Analyzer{
		factors:   opts.Factors,
		landCover: opts.LandCover,
		rules:     opts.Rules,
		scorer:    scorer,
		store:     opts.Store,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// Analyze runs the full decision flow for a validated request. Non-arable
// land short-circuits before the rule engine and scorer. A history write
// failure is logged and leaves EvaluationID empty; it does not fail the
// analysis.
func (a *Analyzer) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.Analysis, error) {
	if a.factors == nil {
		return nil, eris.New("pipeline: no factor builder configured")
	}
	start := a.now()
	log := zap.L().With(
		zap.Float64("lat", req.Latitude),
		zap.Float64("lon", req.Longitude),
		zap.String("land_use", string(req.LandUse)),
	)

	f, err := a.factors.Build(ctx, req.Latitude, req.Longitude, req.LandUse, req.Overrides)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: build factors")
	}

	decision := arability.Classify(ctx, f.Latitude, f.Longitude, f.SlopePercent, a.landCover)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: classify arability")
	}

	var out *model.Analysis
	if !decision.IsArable {
		out = &model.Analysis{
			Status:  model.StatusNonArable,
			Reason:  decision.Reason,
			Message: model.NonArableMessage,
			Input:   model.NewInput(f),
		}
		log.Info("pipeline: non-arable", zap.String("reason", decision.Reason))
	} else {
		out, err = a.Evaluate(ctx, f)
		if err != nil {
			return nil, err
		}
		log.Info("pipeline: analysis complete",
			zap.String("mode", string(out.Mode)),
			zap.String("risk_level", string(out.ErosionRisk.Level)),
			zap.Int("measures", len(out.MechanicalMeasures.Measures)),
		)
	}
	out.EvaluatedAt = a.now().UTC()

	if a.store != nil {
		if err := a.store.SaveEvaluation(ctx, out); err != nil {
			log.Error("pipeline: failed to save evaluation", zap.Error(err))
			out.EvaluationID = ""
		}
	}

	a.metrics.IncrementOutcome(string(out.Status), string(out.Mode))
	a.metrics.ObserveAnalyzeLatency(a.now().Sub(start))
	return out, nil
}

// Evaluate runs the rule engine and the erosion scorer over an arable factor
// snapshot. The two are independent and run concurrently.
func (a *Analyzer) Evaluate(ctx context.Context, f model.LocationFactors) (*model.Analysis, error) {
	var (
		measures model.EvaluationResult
		erosion  model.ErosionRiskResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		measures = rules.Evaluate(f, a.rules)
		return gctx.Err()
	})
	g.Go(func() error {
		erosion = a.scorer.ScoreFactors(f)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: evaluate")
	}

	a.metrics.IncrementRiskLevel(string(erosion.Level))
	return &model.Analysis{
		Status:             model.StatusOK,
		Mode:               measures.Mode,
		Input:              model.NewInput(f),
		Factors:            model.Summarize(f),
		MechanicalMeasures: &measures,
		ErosionRisk:        &erosion,
		Explanation:        Explain(f, measures.Measures, erosion.Level),
	}, nil
}
