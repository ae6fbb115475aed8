package landcover

import (
	"context"
	"math"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// Vector is a Raster view of a land-cover shapefile. Polygons carry their class
// in an attribute; each cell takes the class of the first polygon containing
// its centre. Coordinates are WGS84.
type Vector struct {
	name     string
	bounds   *geom.Bounds
	cell     float64
	width    int
	height   int
	features []feature
}

type feature struct {
	code   int
	shape  *geom.MultiPolygon
	bounds *geom.Bounds
}

// OpenShapefile loads every polygon of a shapefile with a parseable class in
// classField and grids it at cellDegrees.
func OpenShapefile(path, classField string, cellDegrees float64) (*Vector, error) {
	if cellDegrees <= 0 {
		return nil, eris.Errorf("landcover: cell size must be positive, got %g", cellDegrees)
	}
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "landcover: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, classField) {
			fieldIdx = i
			break
		}
	}
	if fieldIdx < 0 {
		return nil, eris.Errorf("landcover: shapefile %s has no field %q", path, classField)
	}

	v := &Vector{name: filepath.Base(path), cell: cellDegrees}
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		code, ok := ParseClass(reader.Attribute(fieldIdx))
		if !ok {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}
		v.features = append(v.features, feature{code: code, shape: mp, bounds: mp.Bounds()})
	}
	if skipped > 0 {
		zap.L().Debug("landcover: skipped shapefile records",
			zap.String("shapefile", v.name),
			zap.Int("skipped", skipped),
		)
	}
	if len(v.features) == 0 {
		return nil, eris.Errorf("landcover: shapefile %s has no classified polygons", path)
	}

	box := reader.BBox()
	v.width = int(math.Ceil((box.MaxX - box.MinX) / cellDegrees))
	v.height = int(math.Ceil((box.MaxY - box.MinY) / cellDegrees))
	if v.width == 0 || v.height == 0 {
		return nil, eris.Errorf("landcover: shapefile %s has an empty extent", path)
	}
	// The grid is anchored at the north-west corner so cells are square.
	v.bounds, err = newBounds(box.MinX, box.MaxY-float64(v.height)*cellDegrees, box.MinX+float64(v.width)*cellDegrees, box.MaxY)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vector) Name() string              { return v.name }
func (v *Vector) CRS() CRS                  { return CRSWGS84 }
func (v *Vector) Bounds() *geom.Bounds      { return v.bounds }
func (v *Vector) Size() (width, height int) { return v.width, v.height }
func (v *Vector) Close() error              { return nil }

// ReadWindow implements Raster by classifying each cell centre.
func (v *Vector) ReadWindow(ctx context.Context, row, col, rows, cols int) ([]int, error) {
	out := make([]int, rows*cols)
	for i := range rows {
		r := row + i
		if r < 0 || r >= v.height {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "landcover: read window")
		}
		y := v.bounds.Max(1) - (float64(r)+0.5)*v.cell
		for j := range cols {
			c := col + j
			if c < 0 || c >= v.width {
				continue
			}
			x := v.bounds.Min(0) + (float64(c)+0.5)*v.cell
			out[i*cols+j] = v.classAt(x, y)
		}
	}
	return out, nil
}

func (v *Vector) classAt(x, y float64) int {
	for _, f := range v.features {
		b := f.bounds
		if x < b.Min(0) || x > b.Max(0) || y < b.Min(1) || y > b.Max(1) {
			continue
		}
		if containsPoint(f.shape, x, y) {
			return f.code
		}
	}
	return 0
}

// containsPoint applies the even-odd rule across every ring of mp, so holes
// stored as inner rings are excluded.
func containsPoint(mp *geom.MultiPolygon, x, y float64) bool {
	pt := geom.Coord{x, y}
	inside := false
	for i := range mp.NumPolygons() {
		p := mp.Polygon(i)
		for k := range p.NumLinearRings() {
			if xy.IsPointInRing(geom.XY, pt, p.LinearRing(k).FlatCoords()) {
				inside = !inside
			}
		}
	}
	return inside
}

// polygonToMultiPolygon converts a shapefile polygon, one polygon per part.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 3 {
			continue
		}

		flat := make([]float64, 0, 2*(end-start)+2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		// Rings must repeat their first vertex.
		if flat[0] != flat[len(flat)-2] || flat[1] != flat[len(flat)-1] {
			flat = append(flat, flat[0], flat[1])
		}

		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("landcover: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("landcover: skipping malformed polygon", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
