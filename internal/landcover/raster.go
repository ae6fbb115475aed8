package landcover

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// CRS is an EPSG code. Geographic WGS84, Web Mercator and the WGS84 UTM zones
// (EPSG:326xx north, EPSG:327xx south) are supported.
type CRS int

const (
	CRSWGS84       CRS = 4326
	CRSWebMercator CRS = 3857
)

// WGS84 ellipsoid.
const (
	earthRadius     = 6378137.0
	earthFlattening = 1 / 298.257223563
)

// maxMercatorLat is the latitude at which EPSG:3857 becomes square.
const maxMercatorLat = 85.0511287798066

// UTM constants.
const (
	utmScale         = 0.9996
	utmFalseEasting  = 500000.0
	utmFalseNorthing = 10000000.0
	utmMaxLat        = 84.0
	utmMinLat        = -80.0
)

func (c CRS) String() string {
	return fmt.Sprintf("EPSG:%d", int(c))
}

// UTMZone returns the zone number and hemisphere of a UTM CRS.
func (c CRS) UTMZone() (zone int, south, ok bool) {
	switch {
	case c > 32600 && c <= 32660:
		return int(c - 32600), false, true
	case c > 32700 && c <= 32760:
		return int(c - 32700), true, true
	}
	return 0, false, false
}

func (c CRS) supported() bool {
	_, _, utm := c.UTMZone()
	return c == CRSWGS84 || c == CRSWebMercator || utm
}

// ParseCRS accepts "EPSG:3857", "epsg:4326" or a bare code.
func ParseCRS(s string) (CRS, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.TrimPrefix(s, "EPSG:")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, eris.Wrapf(err, "landcover: parse crs %q", s)
	}
	c := CRS(n)
	if !c.supported() {
		return 0, eris.Errorf("landcover: unsupported crs %s", c)
	}
	return c, nil
}

// Project transforms a WGS84 point into c.
func (c CRS) Project(lat, lon float64) (x, y float64, err error) {
	switch c {
	case CRSWGS84:
		return lon, lat, nil
	case CRSWebMercator:
		if math.Abs(lat) > maxMercatorLat {
			return 0, 0, eris.Errorf("landcover: latitude %.6f outside web mercator range", lat)
		}
		x = earthRadius * lon * math.Pi / 180
		y = earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
		return x, y, nil
	}
	if zone, south, ok := c.UTMZone(); ok {
		if lat > utmMaxLat || lat < utmMinLat {
			return 0, 0, eris.Errorf("landcover: latitude %.6f outside utm range", lat)
		}
		x, y = transverseMercator(lat, lon, float64(zone*6-183))
		if south {
			y += utmFalseNorthing
		}
		return x, y, nil
	}
	return 0, 0, eris.Errorf("landcover: unsupported crs %s", c)
}

// transverseMercator is the UTM forward projection on the WGS84 ellipsoid
// (Snyder, Map Projections: A Working Manual, eq. 8-9 to 8-10).
func transverseMercator(lat, lon, centralMeridian float64) (x, y float64) {
	e2 := earthFlattening * (2 - earthFlattening)
	e4, e6 := e2*e2, e2*e2*e2
	ep2 := e2 / (1 - e2)

	phi := lat * math.Pi / 180
	sin, cos, tan := math.Sin(phi), math.Cos(phi), math.Tan(phi)

	n := earthRadius / math.Sqrt(1-e2*sin*sin)
	t := tan * tan
	c := ep2 * cos * cos
	a := cos * (lon - centralMeridian) * math.Pi / 180
	m := earthRadius * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))

	x = utmScale*n*(a+(1-t+c)*math.Pow(a, 3)/6+
		(5-18*t+t*t+72*c-58*ep2)*math.Pow(a, 5)/120) + utmFalseEasting
	y = utmScale * (m + n*tan*(a*a/2+(5-t+9*c+4*c*c)*math.Pow(a, 4)/24+
		(61-58*t+t*t+600*c-330*ep2)*math.Pow(a, 6)/720))
	return x, y
}

// Raster is a single-band grid of class codes. Row 0 is the northern edge.
type Raster interface {
	Name() string
	CRS() CRS
	Bounds() *geom.Bounds
	Size() (width, height int)

	// ReadWindow returns rows*cols codes in row-major order starting at
	// (row, col). Cells outside the raster read as 0 (nodata).
	ReadWindow(ctx context.Context, row, col, rows, cols int) ([]int, error)

	Close() error
}

// Contains reports whether (x, y) lies within or on the edge of r.
func Contains(r Raster, x, y float64) bool {
	b := r.Bounds()
	return b.Min(0) <= x && x <= b.Max(0) && b.Min(1) <= y && y <= b.Max(1)
}

// Index returns the row and column of the cell containing (x, y). Points on
// the east or south edge index one past the last cell, which reads as nodata.
func Index(r Raster, x, y float64) (row, col int) {
	b := r.Bounds()
	w, h := r.Size()
	cellW := (b.Max(0) - b.Min(0)) / float64(w)
	cellH := (b.Max(1) - b.Min(1)) / float64(h)
	col = int(math.Floor((x - b.Min(0)) / cellW))
	row = int(math.Floor((b.Max(1) - y) / cellH))
	return row, col
}

func newBounds(minX, minY, maxX, maxY float64) (*geom.Bounds, error) {
	if !(minX < maxX && minY < maxY) {
		return nil, eris.Errorf("landcover: degenerate bounds [%g %g %g %g]", minX, minY, maxX, maxY)
	}
	return geom.NewBounds(geom.XY).Set(minX, minY, maxX, maxY), nil
}

// Grid is an in-memory Raster.
type Grid struct {
	name   string
	crs    CRS
	bounds *geom.Bounds
	width  int
	height int
	cells  []int
}

// NewGrid builds a Grid. cells is row-major with width*height entries.
func NewGrid(name string, crs CRS, minX, minY, maxX, maxY float64, width, height int, cells []int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, eris.Errorf("landcover: grid %s has size %dx%d", name, width, height)
	}
	if len(cells) != width*height {
		return nil, eris.Errorf("landcover: grid %s has %d cells, want %d", name, len(cells), width*height)
	}
	b, err := newBounds(minX, minY, maxX, maxY)
	if err != nil {
		return nil, err
	}
	return &Grid{name: name, crs: crs, bounds: b, width: width, height: height, cells: cells}, nil
}

func (g *Grid) Name() string              { return g.name }
func (g *Grid) CRS() CRS                  { return g.crs }
func (g *Grid) Bounds() *geom.Bounds      { return g.bounds }
func (g *Grid) Size() (width, height int) { return g.width, g.height }
func (g *Grid) Close() error              { return nil }

// ReadWindow implements Raster.
func (g *Grid) ReadWindow(_ context.Context, row, col, rows, cols int) ([]int, error) {
	out := make([]int, rows*cols)
	for i := range rows {
		r := row + i
		if r < 0 || r >= g.height {
			continue
		}
		for j := range cols {
			c := col + j
			if c < 0 || c >= g.width {
				continue
			}
			out[i*cols+j] = g.cells[r*g.width+c]
		}
	}
	return out, nil
}
