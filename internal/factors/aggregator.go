// Package factors builds the per-request LocationFactors snapshot from the
// rainfall and slope sensors, caller overrides and derivation rules.
package factors

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/swc-cli/internal/cache"
	"github.com/sells-group/swc-cli/internal/metrics"
	"github.com/sells-group/swc-cli/internal/model"
)

// Default fallbacks used when a sensor fails.
const (
	DefaultFallbackRainfall = 1200.0
	DefaultFallbackSlope    = 5.0
)

// RainfallSource returns annual rainfall in mm.
type RainfallSource interface {
	AnnualRainfall(ctx context.Context, lat, lon float64) (float64, error)
}

// SlopeSource returns terrain slope in percent.
type SlopeSource interface {
	SlopePercent(ctx context.Context, lat, lon float64) (float64, error)
}

// Options configures an Aggregator.
type Options struct {
	FallbackRainfall float64
	FallbackSlope    float64

	// CacheEntries bounds the factor cache. Zero disables caching.
	CacheEntries int
	CacheTTL     time.Duration

	Metrics *metrics.Metrics
}

// Aggregator builds LocationFactors. It is safe for concurrent use.
type Aggregator struct {
	rainfall RainfallSource
	slope    SlopeSource
	opts     Options
	cache    *cache.LRU[cacheKey, model.LocationFactors]
}

// cacheKey is the full input tuple; a set override changes the result so it
// is part of the key.
type cacheKey struct {
	lat, lon     float64
	landUse      model.LandUse
	rainfall     float64
	hasRainfall  bool
	slope        float64
	hasSlope     bool
	soilDepth    model.SoilDepth
	hasSoilDepth bool
	drainage     model.Drainage
	hasDrainage  bool
}

func keyFor(lat, lon float64, lu model.LandUse, ov model.FactorOverrides) cacheKey {
	k := cacheKey{lat: lat, lon: lon, landUse: lu}
	if ov.RainfallMM != nil {
		k.rainfall, k.hasRainfall = *ov.RainfallMM, true
	}
	if ov.SlopePercent != nil {
		k.slope, k.hasSlope = *ov.SlopePercent, true
	}
	if ov.SoilDepth != nil {
		k.soilDepth, k.hasSoilDepth = *ov.SoilDepth, true
	}
	if ov.Drainage != nil {
		k.drainage, k.hasDrainage = *ov.Drainage, true
	}
	return k
}

// New creates an Aggregator. Either source may be nil, in which case its
// fallback is always used.
func New(rainfall RainfallSource, slope SlopeSource, opts Options) *Aggregator {
	if opts.FallbackRainfall <= 0 {
		opts.FallbackRainfall = DefaultFallbackRainfall
	}
	if opts.FallbackSlope <= 0 {
		opts.FallbackSlope = DefaultFallbackSlope
	}
	a := &Aggregator{rainfall: rainfall, slope: slope, opts: opts}
	if opts.CacheEntries > 0 {
		a.cache = cache.New[cacheKey, model.LocationFactors](opts.CacheEntries, opts.CacheTTL)
	}
	return a
}

// Build returns the factors for a location. Sensor failures fall back to the
// configured defaults and are not cached. Only context cancellation is
// returned as an error.
func (a *Aggregator) Build(ctx context.Context, lat, lon float64, lu model.LandUse, ov model.FactorOverrides) (model.LocationFactors, error) {
	key := keyFor(lat, lon, lu, ov)
	if a.cache != nil {
		if f, ok := a.cache.Get(key); ok {
			return f, nil
		}
	}

	f := model.LocationFactors{Latitude: lat, Longitude: lon, LandUse: lu}

	var rainFallback, slopeFallback bool
	g, gctx := errgroup.WithContext(ctx)
	if ov.RainfallMM != nil {
		f.RainfallMM = *ov.RainfallMM
	} else {
		g.Go(func() error {
			var err error
			f.RainfallMM, rainFallback, err = a.fetch(gctx, "rainfall", a.opts.FallbackRainfall, lat, lon, a.annualRainfall)
			return err
		})
	}
	if ov.SlopePercent != nil {
		f.SlopePercent = *ov.SlopePercent
	} else {
		g.Go(func() error {
			var err error
			f.SlopePercent, slopeFallback, err = a.fetch(gctx, "slope", a.opts.FallbackSlope, lat, lon, a.slopePercent)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return model.LocationFactors{}, eris.Wrap(err, "factors: build")
	}
	if err := ctx.Err(); err != nil {
		return model.LocationFactors{}, eris.Wrap(err, "factors: build")
	}

	if ov.SoilDepth != nil {
		f.SoilDepth = *ov.SoilDepth
	} else {
		f.SoilDepth = SoilDepthFromSlope(f.SlopePercent)
	}
	if ov.Drainage != nil {
		f.Drainage = *ov.Drainage
	} else {
		f.Drainage = DrainageFrom(f.SlopePercent, f.RainfallMM)
	}

	// Fallback values are not cached so a recovered sensor is asked again.
	if a.cache != nil && !rainFallback && !slopeFallback {
		a.cache.Put(key, f)
	}
	return f, nil
}

func (a *Aggregator) annualRainfall(ctx context.Context, lat, lon float64) (float64, error) {
	if a.rainfall == nil {
		return 0, eris.New("factors: no rainfall source configured")
	}
	return a.rainfall.AnnualRainfall(ctx, lat, lon)
}

func (a *Aggregator) slopePercent(ctx context.Context, lat, lon float64) (float64, error) {
	if a.slope == nil {
		return 0, eris.New("factors: no slope source configured")
	}
	return a.slope.SlopePercent(ctx, lat, lon)
}

// fetch calls fn and reports whether the fallback was used. The only error it
// returns is the context's.
func (a *Aggregator) fetch(ctx context.Context, sensor string, fallback, lat, lon float64,
	fn func(context.Context, float64, float64) (float64, error),
) (float64, bool, error) {
	v, err := fn(ctx, lat, lon)
	if err == nil {
		return v, false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, false, ctxErr
	}
	a.opts.Metrics.IncrementFallback(sensor)
	zap.L().Warn("factors: sensor failed, using fallback",
		zap.String("sensor", sensor),
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.Float64("fallback", fallback),
		zap.Error(err),
	)
	return fallback, true, nil
}

// Invalidate clears the factor cache and returns how many entries it held.
func (a *Aggregator) Invalidate() int {
	if a.cache == nil {
		return 0
	}
	n := a.cache.Len()
	a.cache.Purge()
	return n
}

// InvalidateLocation drops every cached entry for the exact point, whatever
// the land use or overrides, and returns how many were removed.
func (a *Aggregator) InvalidateLocation(lat, lon float64) int {
	if a.cache == nil {
		return 0
	}
	return a.cache.InvalidateFunc(func(k cacheKey) bool {
		return k.lat == lat && k.lon == lon
	})
}

// CacheStats returns factor cache statistics. It is zero when caching is off.
func (a *Aggregator) CacheStats() cache.Stats {
	if a.cache == nil {
		return cache.Stats{}
	}
	return a.cache.Stats()
}
