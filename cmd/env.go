package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/swc-cli/internal/config"
	"github.com/sells-group/swc-cli/internal/factors"
	"github.com/sells-group/swc-cli/internal/landcover"
	"github.com/sells-group/swc-cli/internal/metrics"
	"github.com/sells-group/swc-cli/internal/pipeline"
	"github.com/sells-group/swc-cli/internal/resilience"
	"github.com/sells-group/swc-cli/internal/risk"
	"github.com/sells-group/swc-cli/internal/rules"
	"github.com/sells-group/swc-cli/internal/sensor"
	"github.com/sells-group/swc-cli/internal/store"
)

// appEnv holds everything the serve and analyze commands need.
type appEnv struct {
	Store      store.Store // nil when history is disabled
	Analyzer   *pipeline.Analyzer
	Factors    *factors.Aggregator
	Classifier *landcover.Classifier
	Registry   *prometheus.Registry
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Classifier != nil {
		_ = e.Classifier.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates cfg for mode and wires sensors, land cover, the rule
// table, the scorer and, when withStore is set, the history store. Cache
// sizes are exported on the registry. Callers
// should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, mode string, withStore bool) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	table, source, err := rules.LoadOrDefault(c.Rules.Path)
	if err != nil {
		return nil, err
	}
	zap.L().Info("rules loaded", zap.String("source", source), zap.Int("rules", len(table)))

	scorer, err := risk.New(c.Risk)
	if err != nil {
		return nil, err
	}

	sources, err := landCoverSources(c.LandCover)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		zap.L().Warn("no land cover tiles found, every location will be outside coverage",
			zap.String("dir", c.LandCover.Dir))
	}
	classifier := landcover.NewClassifier(sources, m)

	agg := newAggregator(c, m)

	env := &appEnv{
		Factors:    agg,
		Classifier: classifier,
		Registry:   reg,
	}
	opts := pipeline.Options{
		Factors:   agg,
		LandCover: classifier,
		Rules:     table,
		Scorer:    scorer,
		Metrics:   m,
	}
	if withStore {
		st, err := store.Open(ctx, c.Store)
		if err != nil {
			return nil, eris.Wrap(err, "open store")
		}
		env.Store = st
		opts.Store = st
	}
	env.Analyzer = pipeline.New(opts)
	return env, nil
}

// landCoverSources lists the tiles in the land-cover dir, followed by
// the configured shapefile if any.
func landCoverSources(c config.LandCoverConfig) ([]landcover.Source, error) {
	sources, err := landcover.Discover(c.Dir)
	if err != nil {
		return nil, err
	}
	if c.Shapefile != "" {
		sources = append(sources, landcover.NewShapefileSource(c.Shapefile, c.ClassField, c.CellDegrees))
	}
	return sources, nil
}

// newAggregator builds the rainfall and slope sensors behind a factor
// aggregator and registers both caches with m.
func newAggregator(c *config.Config, m *metrics.Metrics) *factors.Aggregator {
	s := c.Sensors
	opts := sensor.Options{
		Timeout:   time.Duration(s.TimeoutSecs) * time.Second,
		RateLimit: s.RateLimit,
		Retry:     resilience.FromRetryConfig(s.RetryAttempts, 0),
		Breaker:   resilience.FromCircuitConfig(s.BreakerFailures, s.BreakerResetSecs),
		Metrics:   m,
	}
	rainfall := sensor.NewRainfall(s.RainfallURL, opts)
	slope := sensor.NewSlope(sensor.SlopeOptions{
		BaseURL:    s.TerrainURL,
		Token:      s.TerrainToken,
		Zoom:       s.Zoom,
		CacheTiles: s.TerrainCacheTiles,
	}, opts)

	agg := factors.New(rainfall, slope, factors.Options{
		FallbackRainfall: s.FallbackRainfall,
		FallbackSlope:    s.FallbackSlope,
		CacheEntries:     c.Factors.CacheEntries,
		CacheTTL:         time.Duration(c.Factors.CacheTTLMinutes) * time.Minute,
		Metrics:          m,
	})
	m.WatchCache("factors", agg.CacheStats)
	m.WatchCache("terrain_tiles", slope.TileStats)
	return agg
}

// openStore opens and migrates the configured history store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}
