package sensor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/swc-cli/internal/metrics"
	"github.com/sells-group/swc-cli/internal/resilience"
	"github.com/sells-group/swc-cli/internal/risk"
)

func testOptions(m *metrics.Metrics) Options {
	return Options{
		Timeout:   2 * time.Second,
		RateLimit: 1000,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute},
		Metrics: m,
	}
}

func TestRainfall_AnnualRainfall(t *testing.T) {
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		assert.Equal(t, "swc-cli/1.0", r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"properties":{"parameter":{"PRECTOTCORR":{"JAN":0.4,"ANN":3.37}}}}`)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := NewRainfall(srv.URL, testOptions(m))
	mm, err := r.AnnualRainfall(context.Background(), 30.55, 78.25)
	require.NoError(t, err)
	assert.Equal(t, 1230.05, mm)

	q := query.Load().(url.Values)
	assert.Equal(t, []string{"30.55"}, q["latitude"])
	assert.Equal(t, []string{"78.25"}, q["longitude"])
	assert.Equal(t, []string{"PRECTOTCORR"}, q["parameters"])
	assert.Equal(t, []string{"AG"}, q["community"])
	assert.Equal(t, []string{"JSON"}, q["format"])

	assert.Equal(t, 1, testutil.CollectAndCount(m.SensorLatency))
}

func TestRainfall_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"properties":{"parameter":{"PRECTOTCORR":{"ANN":2}}}}`)
	}))
	defer srv.Close()

	mm, err := NewRainfall(srv.URL, testOptions(nil)).AnnualRainfall(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 730.0, mm)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRainfall_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewRainfall(srv.URL, testOptions(nil)).AnnualRainfall(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rainfall: unexpected status 422")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRainfall_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewRainfall(srv.URL, testOptions(nil))
	for range 2 {
		_, err := r.AnnualRainfall(context.Background(), 1, 2)
		require.Error(t, err)
	}
	assert.Equal(t, int32(6), calls.Load())

	_, err := r.AnnualRainfall(context.Background(), 1, 2)
	require.Error(t, err)
	assert.True(t, resilience.IsOpen(err))
	assert.Equal(t, int32(6), calls.Load(), "open breaker makes no request")
}

func TestParseAnnualRainfall(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    float64
		wantErr string
	}{
		{"ok", `{"properties":{"parameter":{"PRECTOTCORR":{"ANN":1.0}}}}`, 365, ""},
		{"rounds", `{"properties":{"parameter":{"PRECTOTCORR":{"ANN":4.11}}}}`, 1500.15, ""},
		{"fill value", `{"properties":{"parameter":{"PRECTOTCORR":{"ANN":-999}}}}`, 0, "fill value"},
		{"missing parameter", `{"properties":{"parameter":{}}}`, 0, "no PRECTOTCORR parameter"},
		{"missing annual", `{"properties":{"parameter":{"PRECTOTCORR":{"JAN":1}}}}`, 0, "no annual mean"},
		{"malformed", `not json`, 0, "decode response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAnnualRainfall([]byte(tt.body))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// terrainPNG encodes a 256x256 tile whose elevation rises by rise metres per
// pixel eastward from 0 m.
func terrainPNG(t *testing.T, rise float64) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	for y := range 256 {
		for x := range 256 {
			code := 100000 + int(float64(x)*rise*10)
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(code >> 16), G: uint8(code >> 8), B: uint8(code), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSlope_SlopePercent(t *testing.T) {
	tile := terrainPNG(t, 1)
	var calls atomic.Int32
	var path, token atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		path.Store(r.URL.Path)
		token.Store(r.URL.Query().Get("access_token"))
		_, _ = w.Write(tile)
	}))
	defer srv.Close()

	s := NewSlope(SlopeOptions{BaseURL: srv.URL + "/", Token: "pk.test"}, testOptions(nil))
	lat, lon := 51.5074, -0.1278

	got, err := s.SlopePercent(context.Background(), lat, lon)
	require.NoError(t, err)
	assert.Equal(t, risk.Round2(100/PixelResolution(lat, 12)), got)
	assert.Equal(t, "/12/2046/1362.pngraw", path.Load())
	assert.Equal(t, "pk.test", token.Load())

	// Same tile comes from the cache.
	_, err = s.SlopePercent(context.Background(), lat+0.001, lon)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), s.TileStats().Hits)
}

func TestSlope_FlatTile(t *testing.T) {
	tile := terrainPNG(t, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(tile)
	}))
	defer srv.Close()

	got, err := NewSlope(SlopeOptions{BaseURL: srv.URL}, testOptions(nil)).SlopePercent(context.Background(), 20, 78)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestSlope_BadTile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not a png"))
	}))
	defer srv.Close()

	_, err := NewSlope(SlopeOptions{BaseURL: srv.URL}, testOptions(nil)).SlopePercent(context.Background(), 20, 78)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode terrain tile")
}

func TestTileXY(t *testing.T) {
	x, y := TileXY(0, 0, 1)
	assert.Equal(t, 1, x)
	assert.Equal(t, 1, y)

	x, y = TileXY(51.5074, -0.1278, 12)
	assert.Equal(t, 2046, x)
	assert.Equal(t, 1362, y)
}

func TestElevation(t *testing.T) {
	assert.InDelta(t, 0, Elevation(1, 134, 160), 1e-9)
	assert.InDelta(t, -10000, Elevation(0, 0, 0), 1e-9)
}

func TestPixelResolution(t *testing.T) {
	assert.InDelta(t, 38.2185, PixelResolution(0, 12), 1e-4)
	assert.InDelta(t, 19.1093, PixelResolution(60, 12), 1e-3)
}

func TestSlope_UnusableTileNotKept(t *testing.T) {
	// A 1x1 tile has no neighbourhood to sample.
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	tiny := buf.Bytes()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write(tiny)
	}))
	defer srv.Close()

	s := NewSlope(SlopeOptions{BaseURL: srv.URL}, testOptions(nil))
	for range 2 {
		_, err := s.SlopePercent(context.Background(), 20, 78)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too small to sample")
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, s.TileStats().Entries)
}
