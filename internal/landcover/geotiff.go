package landcover

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/image/tiff"
)

// GeoTIFF tags and keys.
const (
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735

	keyRasterType     = 1025
	keyGeographicType = 2048
	keyProjectedType  = 3072

	rasterPixelIsPoint = 2
)

// TIFF field types.
const (
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// IsGeoTIFFName reports whether name looks like a GeoTIFF.
func IsGeoTIFFName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".tif") || strings.HasSuffix(lower, ".tiff")
}

// IsTileName reports whether name is a tile pack or a GeoTIFF.
func IsTileName(name string) bool {
	return IsPackName(name) || IsGeoTIFFName(name)
}

// GeoTIFF is a Raster decoded from a single-band GeoTIFF such as an ESRI
// Land Cover tile. Pixel values are class codes.
type GeoTIFF struct {
	name   string
	crs    CRS
	bounds *geom.Bounds
	width  int
	height int
	at     func(x, y int) int
}

// OpenGeoTIFF decodes the file at path into memory.
func OpenGeoTIFF(path string) (*GeoTIFF, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "landcover: read geotiff %s", path)
	}
	return DecodeGeoTIFF(filepath.Base(path), data)
}

// DecodeGeoTIFF decodes an uncompressed, LZW, Deflate or PackBits GeoTIFF
// whose georeferencing is a tie point plus pixel scale.
func DecodeGeoTIFF(name string, data []byte) (*GeoTIFF, error) {
	tags, err := readGeoTags(data)
	if err != nil {
		return nil, eris.Wrapf(err, "landcover: geotiff %s", name)
	}

	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrapf(err, "landcover: decode geotiff %s", name)
	}
	at, err := classReader(img)
	if err != nil {
		return nil, eris.Wrapf(err, "landcover: geotiff %s", name)
	}

	size := img.Bounds().Size()
	g := &GeoTIFF{name: name, width: size.X, height: size.Y, at: at}
	if g.crs, err = tags.crs(); err != nil {
		return nil, eris.Wrapf(err, "landcover: geotiff %s", name)
	}

	scaleX, scaleY := tags.pixelScale[0], tags.pixelScale[1]
	i, j := tags.tiepoint[0], tags.tiepoint[1]
	if tags.rasterType == rasterPixelIsPoint {
		i, j = i+0.5, j+0.5
	}
	minX := tags.tiepoint[3] - i*scaleX
	maxY := tags.tiepoint[4] + j*scaleY
	g.bounds, err = newBounds(minX, maxY-float64(g.height)*scaleY, minX+float64(g.width)*scaleX, maxY)
	if err != nil {
		return nil, eris.Wrapf(err, "landcover: geotiff %s", name)
	}
	return g, nil
}

func (g *GeoTIFF) Name() string              { return g.name }
func (g *GeoTIFF) CRS() CRS                  { return g.crs }
func (g *GeoTIFF) Bounds() *geom.Bounds      { return g.bounds }
func (g *GeoTIFF) Size() (width, height int) { return g.width, g.height }
func (g *GeoTIFF) Close() error              { return nil }

// ReadWindow implements Raster.
func (g *GeoTIFF) ReadWindow(_ context.Context, row, col, rows, cols int) ([]int, error) {
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
			out[i*cols+j] = g.at(c, r)
		}
	}
	return out, nil
}

// classReader returns the raw sample at (x, y). Paletted images yield the
// palette index, which is the class code in ESRI tiles.
func classReader(img image.Image) (func(x, y int) int, error) {
	switch m := img.(type) {
	case *image.Paletted:
		return func(x, y int) int { return int(m.Pix[m.PixOffset(x, y)]) }, nil
	case *image.Gray:
		return func(x, y int) int { return int(m.Pix[m.PixOffset(x, y)]) }, nil
	case *image.Gray16:
		return func(x, y int) int {
			i := m.PixOffset(x, y)
			return int(m.Pix[i])<<8 | int(m.Pix[i+1])
		}, nil
	default:
		return nil, eris.Errorf("unsupported pixel layout %T", img)
	}
}

type geoTags struct {
	pixelScale []float64
	tiepoint   []float64
	keys       map[int]int
	rasterType int
}

func (t geoTags) crs() (CRS, error) {
	code := t.keys[keyProjectedType]
	if code == 0 {
		code = t.keys[keyGeographicType]
	}
	if code == 0 {
		return 0, eris.New("no EPSG code in geokey directory")
	}
	c := CRS(code)
	if !c.supported() {
		return 0, eris.Errorf("unsupported crs %s", c)
	}
	return c, nil
}

// readGeoTags reads the georeferencing tags from the first IFD. Pixel data is
// left to the tiff decoder.
func readGeoTags(data []byte) (geoTags, error) {
	var tags geoTags
	if len(data) < 8 {
		return tags, eris.New("file too short")
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return tags, eris.New("not a tiff")
	}
	if order.Uint16(data[2:4]) != 42 {
		return tags, eris.New("not a classic tiff")
	}

	ifd := int(order.Uint32(data[4:8]))
	if ifd+2 > len(data) {
		return tags, eris.New("ifd offset out of range")
	}
	n := int(order.Uint16(data[ifd : ifd+2]))
	var geoKeys []int
	for k := range n {
		e := ifd + 2 + 12*k
		if e+12 > len(data) {
			return tags, eris.New("ifd entry out of range")
		}
		tag := order.Uint16(data[e : e+2])
		typ := order.Uint16(data[e+2 : e+4])
		count := int(order.Uint32(data[e+4 : e+8]))

		var err error
		switch tag {
		case tagModelPixelScale:
			tags.pixelScale, err = readDoubles(data, order, e, typ, count)
		case tagModelTiepoint:
			tags.tiepoint, err = readDoubles(data, order, e, typ, count)
		case tagGeoKeyDirectory:
			geoKeys, err = readShorts(data, order, e, typ, count)
		}
		if err != nil {
			return tags, eris.Wrapf(err, "tag %d", tag)
		}
	}

	if len(tags.pixelScale) < 2 || tags.pixelScale[0] <= 0 || tags.pixelScale[1] <= 0 {
		return tags, eris.New("missing or invalid ModelPixelScale")
	}
	if len(tags.tiepoint) < 6 {
		return tags, eris.New("missing ModelTiepoint")
	}
	tags.keys = make(map[int]int)
	// Directory header then (key, location, count, value) entries. Only
	// inline SHORT values are needed.
	if len(geoKeys) >= 4 {
		for k := 4; k+3 < len(geoKeys) && k/4 <= geoKeys[3]; k += 4 {
			if geoKeys[k+1] == 0 {
				tags.keys[geoKeys[k]] = geoKeys[k+3]
			}
		}
	}
	tags.rasterType = tags.keys[keyRasterType]
	return tags, nil
}

func entryValues(data []byte, order binary.ByteOrder, entry, size, count int) ([]byte, error) {
	total := size * count
	if total <= 4 {
		return data[entry+8 : entry+8+total], nil
	}
	off := int(order.Uint32(data[entry+8 : entry+12]))
	if off < 0 || off+total > len(data) {
		return nil, eris.New("value offset out of range")
	}
	return data[off : off+total], nil
}

func readDoubles(data []byte, order binary.ByteOrder, entry int, typ uint16, count int) ([]float64, error) {
	if typ != typeDouble {
		return nil, eris.Errorf("type %d, want DOUBLE", typ)
	}
	raw, err := entryValues(data, order, entry, 8, count)
	if err != nil {
		return nil, err
	}
	out := make([]float64, count)
	for i := range out {
		out[i] = math.Float64frombits(order.Uint64(raw[8*i:]))
	}
	return out, nil
}

func readShorts(data []byte, order binary.ByteOrder, entry int, typ uint16, count int) ([]int, error) {
	size := 2
	switch typ {
	case typeShort:
	case typeLong:
		size = 4
	default:
		return nil, eris.Errorf("type %d, want SHORT", typ)
	}
	raw, err := entryValues(data, order, entry, size, count)
	if err != nil {
		return nil, err
	}
	out := make([]int, count)
	for i := range out {
		if size == 2 {
			out[i] = int(order.Uint16(raw[2*i:]))
		} else {
			out[i] = int(order.Uint32(raw[4*i:]))
		}
	}
	return out, nil
}

// GeoTIFFSource decodes its file on first use and keeps it in memory.
type GeoTIFFSource struct {
	path string

	once   sync.Once
	raster *GeoTIFF
	err    error
}

// NewGeoTIFFSource creates a lazily decoded GeoTIFF source.
func NewGeoTIFFSource(path string) *GeoTIFFSource {
	return &GeoTIFFSource{path: path}
}

func (s *GeoTIFFSource) Name() string { return filepath.Base(s.path) }

// Open implements Source. A decode failure is sticky.
func (s *GeoTIFFSource) Open(context.Context) (Raster, error) {
	s.once.Do(func() {
		s.raster, s.err = OpenGeoTIFF(s.path)
	})
	if s.err != nil {
		return nil, s.err
	}
	return s.raster, nil
}
