package landcover

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
)

// Source opens one coverage raster. The caller closes what Open returns.
type Source interface {
	Name() string
	Open(ctx context.Context) (Raster, error)
}

// PackSource keeps its tile pack open between lookups. A failed open is
// retried on the next lookup.
type PackSource struct {
	path string

	mu   sync.Mutex
	pack *Pack
}

// NewPackSource creates a source for the tile pack at path.
func NewPackSource(path string) *PackSource {
	return &PackSource{path: path}
}

func (s *PackSource) Name() string { return filepath.Base(s.path) }

// Open implements Source. Closing the returned Raster leaves the pack open.
func (s *PackSource) Open(context.Context) (Raster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pack == nil {
		p, err := OpenPack(s.path)
		if err != nil {
			return nil, err
		}
		s.pack = p
	}
	return sharedPack{s.pack}, nil
}

// Close closes the pack if it was opened.
func (s *PackSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pack == nil {
		return nil
	}
	err := s.pack.Close()
	s.pack = nil
	return err
}

type sharedPack struct{ *Pack }

func (sharedPack) Close() error { return nil }

// ShapefileSource parses its shapefile on first use and keeps it in memory.
type ShapefileSource struct {
	path        string
	classField  string
	cellDegrees float64

	once   sync.Once
	vector *Vector
	err    error
}

// NewShapefileSource creates a lazily loaded shapefile source.
func NewShapefileSource(path, classField string, cellDegrees float64) *ShapefileSource {
	return &ShapefileSource{path: path, classField: classField, cellDegrees: cellDegrees}
}

func (s *ShapefileSource) Name() string { return filepath.Base(s.path) }

// Open implements Source. A load failure is sticky.
func (s *ShapefileSource) Open(context.Context) (Raster, error) {
	s.once.Do(func() {
		s.vector, s.err = OpenShapefile(s.path, s.classField, s.cellDegrees)
	})
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

// Discover lists the tile packs and GeoTIFFs in dir sorted by file name. A
// missing dir yields no sources.
func Discover(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "landcover: list %s", dir)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsTileName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	sources := make([]Source, 0, len(names))
	for _, n := range names {
		path := filepath.Join(dir, n)
		if IsGeoTIFFName(n) {
			sources = append(sources, NewGeoTIFFSource(path))
			continue
		}
		sources = append(sources, NewPackSource(path))
	}
	return sources, nil
}
