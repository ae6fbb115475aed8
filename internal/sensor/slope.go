package sensor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/swc-cli/internal/cache"
	"github.com/sells-group/swc-cli/internal/risk"
)

// SlopeName labels slope metrics and logs.
const SlopeName = "slope"

// DefaultTerrainURL is the Mapbox Terrain-RGB tileset.
const DefaultTerrainURL = "https://api.mapbox.com/v4/mapbox.terrain-rgb"

// DefaultZoom gives landform-scale pixels of roughly 30 m at the equator.
const DefaultZoom = 12

// neighbourhood is the half-width of the sampled pixel block.
const neighbourhood = 2

// SlopeOptions configures the terrain tile source.
type SlopeOptions struct {
	BaseURL    string
	Token      string
	Zoom       int
	CacheTiles int
	CacheTTL   time.Duration
}

// Slope estimates terrain slope from Terrain-RGB elevation tiles.
type Slope struct {
	opts   SlopeOptions
	client *client
	tiles  *cache.LRU[string, *elevationTile]
}

// NewSlope creates a slope sensor.
func NewSlope(so SlopeOptions, opts Options) *Slope {
	if so.BaseURL == "" {
		so.BaseURL = DefaultTerrainURL
	}
	if so.Zoom <= 0 {
		so.Zoom = DefaultZoom
	}
	if so.CacheTiles <= 0 {
		so.CacheTiles = 256
	}
	return &Slope{
		opts:   so,
		client: newClient(SlopeName, opts),
		tiles:  cache.New[string, *elevationTile](so.CacheTiles, so.CacheTTL),
	}
}

// TileStats returns statistics of the decoded tile cache.
func (s *Slope) TileStats() cache.Stats {
	return s.tiles.Stats()
}

// SlopePercent returns the mean slope in percent over a 5x5 pixel block at the
// centre of the tile holding the point, rounded to two decimals.
func (s *Slope) SlopePercent(ctx context.Context, lat, lon float64) (float64, error) {
	x, y := TileXY(lat, lon, s.opts.Zoom)
	key := fmt.Sprintf("%d/%d/%d", s.opts.Zoom, x, y)
	tile, err := s.tile(ctx, key, s.opts.Zoom, x, y)
	if err != nil {
		return 0, err
	}
	pct, err := tile.meanSlope(PixelResolution(lat, s.opts.Zoom))
	if err != nil {
		// An unusable tile is fetched again next time.
		s.tiles.Invalidate(key)
		return 0, err
	}
	return pct, nil
}

func (s *Slope) tile(ctx context.Context, key string, z, x, y int) (*elevationTile, error) {
	if t, ok := s.tiles.Get(key); ok {
		return t, nil
	}

	u := fmt.Sprintf("%s/%d/%d/%d.pngraw", strings.TrimSuffix(s.opts.BaseURL, "/"), z, x, y)
	if s.opts.Token != "" {
		u += "?" + url.Values{"access_token": {s.opts.Token}}.Encode()
	}
	body, err := s.client.get(ctx, u)
	if err != nil {
		return nil, err
	}
	t, err := decodeTerrainRGB(body)
	if err != nil {
		return nil, err
	}
	s.tiles.Put(key, t)
	return t, nil
}

// TileXY converts a WGS84 point to slippy-map tile indices.
func TileXY(lat, lon float64, zoom int) (x, y int) {
	latRad := lat * math.Pi / 180
	n := math.Exp2(float64(zoom))
	x = int((lon + 180.0) / 360.0 * n)
	y = int((1.0 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2.0 * n)
	return x, y
}

// PixelResolution is the ground size in metres of a 256 px tile pixel.
func PixelResolution(lat float64, zoom int) float64 {
	return 156543.03 * math.Cos(lat*math.Pi/180) / math.Exp2(float64(zoom))
}

// Elevation decodes a Terrain-RGB pixel to metres.
func Elevation(r, g, b uint8) float64 {
	return float64(int(r)*256*256+int(g)*256+int(b))*0.1 - 10000
}

// elevationTile keeps raw Terrain-RGB codes; decoding to metres happens per
// sample so results match float64 arithmetic on the original pixels.
type elevationTile struct {
	width, height int
	codes         []uint32
}

func decodeTerrainRGB(data []byte) (*elevationTile, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "slope: decode terrain tile")
	}
	b := img.Bounds()
	t := &elevationTile{width: b.Dx(), height: b.Dy(), codes: make([]uint32, b.Dx()*b.Dy())}
	for y := range t.height {
		for x := range t.width {
			r, g, bl := rgb8(img, b.Min.X+x, b.Min.Y+y)
			t.codes[y*t.width+x] = uint32(r)<<16 | uint32(g)<<8 | uint32(bl)
		}
	}
	return t, nil
}

func rgb8(img image.Image, x, y int) (r, g, b uint8) {
	switch m := img.(type) {
	case *image.NRGBA:
		i := m.PixOffset(x, y)
		return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
	case *image.RGBA:
		i := m.PixOffset(x, y)
		return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
	default:
		cr, cg, cb, _ := img.At(x, y).RGBA()
		return uint8(cr >> 8), uint8(cg >> 8), uint8(cb >> 8)
	}
}

func (t *elevationTile) elevation(x, y int) float64 {
	c := t.codes[y*t.width+x]
	return Elevation(uint8(c>>16), uint8(c>>8), uint8(c))
}

func (t *elevationTile) meanSlope(resolution float64) (float64, error) {
	cx, cy := t.width/2, t.height/2
	var sum float64
	var n int
	for dx := -neighbourhood; dx <= neighbourhood; dx++ {
		for dy := -neighbourhood; dy <= neighbourhood; dy++ {
			x, y := cx+dx, cy+dy
			if x < 0 || y < 0 || x+1 >= t.width || y+1 >= t.height {
				continue
			}
			zc := t.elevation(x, y)
			dzdx := (t.elevation(x+1, y) - zc) / resolution
			dzdy := (t.elevation(x, y+1) - zc) / resolution
			sum += math.Sqrt(dzdx*dzdx+dzdy*dzdy) * 100
			n++
		}
	}
	if n == 0 {
		return 0, eris.Errorf("slope: tile %dx%d too small to sample", t.width, t.height)
	}
	return risk.Round2(sum / float64(n)), nil
}
