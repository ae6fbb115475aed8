package landcover

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/swc-cli/internal/arability"
	"github.com/sells-group/swc-cli/internal/metrics"
)

// Classifier implements arability.LandCoverLookup over an ordered list of
// sources. The first source whose extent contains the point decides; sources
// that fail to open, project or read are skipped.
type Classifier struct {
	sources []Source
	metrics *metrics.Metrics
}

// NewClassifier creates a Classifier. m may be nil.
func NewClassifier(sources []Source, m *metrics.Metrics) *Classifier {
	return &Classifier{sources: sources, metrics: m}
}

// Sources returns the sources in lookup order.
func (c *Classifier) Sources() []Source {
	return c.sources
}

// Close releases sources that hold files open. Every source is closed; the
// first error is returned.
func (c *Classifier) Close() error {
	var first error
	for _, src := range c.sources {
		cl, ok := src.(io.Closer)
		if !ok {
			continue
		}
		if err := cl.Close(); err != nil && first == nil {
			first = eris.Wrapf(err, "landcover: close %s", src.Name())
		}
	}
	return first
}

// Lookup implements arability.LandCoverLookup.
func (c *Classifier) Lookup(ctx context.Context, lat, lon float64) arability.Result {
	res := c.lookup(ctx, lat, lon)
	c.metrics.IncrementLookup(res.Status.String())
	return res
}

func (c *Classifier) lookup(ctx context.Context, lat, lon float64) arability.Result {
	for _, src := range c.sources {
		if ctx.Err() != nil {
			break
		}
		res, inside, err := classifySource(ctx, src, lat, lon)
		if err != nil {
			c.metrics.IncrementTileSkipped()
			zap.L().Warn("landcover: skipping tile",
				zap.String("tile", src.Name()),
				zap.Float64("lat", lat),
				zap.Float64("lon", lon),
				zap.Error(err),
			)
			continue
		}
		if inside {
			return res
		}
	}
	return arability.Result{Status: arability.OutsideCoverage}
}

func classifySource(ctx context.Context, src Source, lat, lon float64) (arability.Result, bool, error) {
	r, err := src.Open(ctx)
	if err != nil {
		return arability.Result{}, false, err
	}
	defer r.Close() //nolint:errcheck

	x, y, err := r.CRS().Project(lat, lon)
	if err != nil {
		return arability.Result{}, false, err
	}
	if !Contains(r, x, y) {
		return arability.Result{}, false, nil
	}

	row, col := Index(r, x, y)
	window, err := Sample(ctx, r, row, col)
	if err != nil {
		return arability.Result{}, false, err
	}
	return resultFor(window), true, nil
}

func resultFor(window []int) arability.Result {
	code, ok := Majority(window)
	if !ok {
		return arability.Result{Status: arability.InvalidData}
	}
	if IsArable(code) {
		return arability.Result{Status: arability.InsideCropland, Label: Label(code)}
	}
	return arability.Result{Status: arability.InsideOther, Label: Label(code)}
}
