package landcover

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/swc-cli/internal/arability"
	"github.com/sells-group/swc-cli/internal/metrics"
)

const (
	testLat = 30.55
	testLon = 78.55
)

func TestClassifier_Outcomes(t *testing.T) {
	tests := []struct {
		name  string
		block []int
		want  arability.Result
	}{
		{
			name:  "cropland majority",
			block: []int{5, 5, 5, 5, 5, 2, 2, 2, 2},
			want:  arability.Result{Status: arability.InsideCropland, Label: "CROPLAND"},
		},
		{
			name:  "other majority",
			block: []int{2, 2, 2, 2, 2, 5, 5, 5, 5},
			want:  arability.Result{Status: arability.InsideOther, Label: "TREES"},
		},
		{
			name:  "all nodata",
			block: []int{0, 0, 0, 0, 0, 0, 0, 0, 0},
			want:  arability.Result{Status: arability.InvalidData},
		},
		{
			name:  "nodata ignored",
			block: []int{0, 0, 0, 0, 0, 0, 0, 5, 1},
			want:  arability.Result{Status: arability.InsideCropland, Label: "CROPLAND"},
		},
		{
			name:  "unlabeled code",
			block: []int{42, 42, 42, 0, 0, 0, 0, 0, 0},
			want:  arability.Result{Status: arability.InsideOther, Label: "UNKNOWN"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := uniformGrid(t, "g", ClassWater)
			setCells(g, 4, 5, tt.block)
			c := NewClassifier([]Source{gridSource{name: "g", grid: g}}, nil)
			assert.Equal(t, tt.want, c.Lookup(context.Background(), testLat, testLon))
		})
	}
}

func TestClassifier_OutsideCoverage(t *testing.T) {
	c := NewClassifier([]Source{gridSource{name: "g", grid: uniformGrid(t, "g", ClassCropland)}}, nil)
	res := c.Lookup(context.Background(), 10, 10)
	assert.Equal(t, arability.OutsideCoverage, res.Status)

	empty := NewClassifier(nil, nil)
	assert.Equal(t, arability.OutsideCoverage, empty.Lookup(context.Background(), testLat, testLon).Status)
}

func TestClassifier_FirstContainingSourceWins(t *testing.T) {
	c := NewClassifier([]Source{
		gridSource{name: "a", grid: uniformGrid(t, "a", ClassTrees)},
		gridSource{name: "b", grid: uniformGrid(t, "b", ClassCropland)},
	}, nil)
	res := c.Lookup(context.Background(), testLat, testLon)
	assert.Equal(t, arability.InsideOther, res.Status)
	assert.Equal(t, "TREES", res.Label)
}

func TestClassifier_SkipsBrokenSources(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	outside, err := NewGrid("far", CRSWGS84, 0, 0, 1, 1, 1, 1, []int{ClassTrees})
	require.NoError(t, err)
	polar, err := NewGrid("mercator", CRSWebMercator, -1e7, -1e7, 1e7, 1e7, 10, 10, make([]int, 100))
	require.NoError(t, err)

	c := NewClassifier([]Source{
		gridSource{name: "corrupt", err: errCorrupt},
		gridSource{name: "far", grid: outside},
		gridSource{name: "cropland", grid: uniformGrid(t, "cropland", ClassCropland)},
	}, m)
	res := c.Lookup(context.Background(), testLat, testLon)
	assert.Equal(t, arability.InsideCropland, res.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TileSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LandCoverLookup.WithLabelValues("inside_cropland")))

	// A polar point cannot be projected into web mercator.
	c = NewClassifier([]Source{gridSource{name: "mercator", grid: polar}}, m)
	res = c.Lookup(context.Background(), 89.5, 0)
	assert.Equal(t, arability.OutsideCoverage, res.Status)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TileSkipped))
}

func TestClassifier_WebMercatorTile(t *testing.T) {
	// One cell of roughly 100 m around lat 30.55, lon 78.55.
	x, y, err := CRSWebMercator.Project(testLat, testLon)
	require.NoError(t, err)
	cells := make([]int, 9)
	for i := range cells {
		cells[i] = ClassCropland
	}
	g, err := NewGrid("m", CRSWebMercator, x-150, y-150, x+150, y+150, 3, 3, cells)
	require.NoError(t, err)

	c := NewClassifier([]Source{gridSource{name: "m", grid: g}}, nil)
	assert.Equal(t, arability.InsideCropland, c.Lookup(context.Background(), testLat, testLon).Status)
}

func TestClassifier_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClassifier([]Source{gridSource{name: "g", grid: uniformGrid(t, "g", ClassCropland)}}, nil)
	assert.Equal(t, arability.OutsideCoverage, c.Lookup(ctx, testLat, testLon).Status)
}

func TestDiscover_SortedPacks(t *testing.T) {
	dir := t.TempDir()
	writeTestPack(t, dir, "b.tiles.db", uniformGrid(t, "b", ClassCropland))
	writeTestPack(t, dir, "a.tiles.db", uniformGrid(t, "a", ClassTrees))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("tiles"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "c.tiles.db"), 0o755))

	sources, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "a.tiles.db", sources[0].Name())
	assert.Equal(t, "b.tiles.db", sources[1].Name())

	c := NewClassifier(sources, nil)
	res := c.Lookup(context.Background(), testLat, testLon)
	assert.Equal(t, "TREES", res.Label)
}

func TestDiscover_MissingDir(t *testing.T) {
	sources, err := Discover(filepath.Join(t.TempDir(), "none"))
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestClassifier_SkipsCorruptPackFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.tiles.db"), []byte("corrupt"), 0o644))
	writeTestPack(t, dir, "b.tiles.db", uniformGrid(t, "b", ClassCropland))

	sources, err := Discover(dir)
	require.NoError(t, err)
	c := NewClassifier(sources, nil)
	assert.Equal(t, arability.InsideCropland, c.Lookup(context.Background(), testLat, testLon).Status)
}

func TestArabilityThroughClassifier(t *testing.T) {
	c := NewClassifier([]Source{gridSource{name: "g", grid: uniformGrid(t, "g", ClassBuiltUp)}}, nil)
	d := arability.Classify(context.Background(), testLat, testLon, 4, c)
	assert.False(t, d.IsArable)
	assert.Equal(t, "Non-arable land cover (BUILT_UP)", d.Reason)
}
