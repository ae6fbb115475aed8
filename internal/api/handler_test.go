package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/swc-cli/internal/arability"
	"github.com/sells-group/swc-cli/internal/metrics"
	"github.com/sells-group/swc-cli/internal/model"
	"github.com/sells-group/swc-cli/internal/pipeline"
	"github.com/sells-group/swc-cli/internal/store"
)

type fixedFactors struct {
	slope float64
	seen  *model.AnalysisRequest
}

func (f fixedFactors) Build(_ context.Context, lat, lon float64, lu model.LandUse, ov model.FactorOverrides) (model.LocationFactors, error) {
	if f.seen != nil {
		*f.seen = model.AnalysisRequest{Latitude: lat, Longitude: lon, LandUse: lu, Overrides: ov}
	}
	lf := model.LocationFactors{
		Latitude: lat, Longitude: lon, LandUse: lu,
		RainfallMM: 1200, SlopePercent: f.slope,
		SoilDepth: model.SoilDepthModerate, Drainage: model.DrainageModerate,
	}
	if ov.RainfallMM != nil {
		lf.RainfallMM = *ov.RainfallMM
	}
	return lf, nil
}

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(context.Context, model.AnalysisRequest) (*model.Analysis, error) {
	return nil, errors.New("sensor exploded")
}

type failingHistory struct{}

func (failingHistory) GetEvaluation(context.Context, string) (*store.Record, error) {
	return nil, errors.New("db down")
}

func (failingHistory) ListEvaluations(context.Context, store.Filter) ([]store.Record, error) {
	return nil, errors.New("db down")
}

type testEnv struct {
	server *httptest.Server
	store  *store.SQLiteStore
	seen   *model.AnalysisRequest
}

func newTestEnv(t *testing.T, slope float64) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	reg := prometheus.NewRegistry()
	seen := &model.AnalysisRequest{}
	analyzer := pipeline.New(pipeline.Options{
		Factors: fixedFactors{slope: slope, seen: seen},
		LandCover: arability.LookupFunc(func(context.Context, float64, float64) arability.Result {
			return arability.Result{Status: arability.InsideCropland, Label: "CROPLAND"}
		}),
		Store:   st,
		Metrics: metrics.New(reg),
	})

	srv := httptest.NewServer(NewRouter(NewHandler(analyzer, st), RouterOptions{Gatherer: reg}))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, store: st, seen: seen}
}

func (e *testEnv) post(t *testing.T, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(e.server.URL+"/analyze", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (e *testEnv) get(t *testing.T, path string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 5)
	var body map[string]string
	resp := env.get(t, "/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAnalyze_OK(t *testing.T) {
	env := newTestEnv(t, 10)
	resp, body := env.post(t, `{"lat": 30.5, "lon": 78.5, "land_use": "paddy", "rainfall_mm": 900}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "RELAXED", body["mode"])
	assert.NotEmpty(t, body["evaluation_id"])
	assert.Equal(t, map[string]any{"lat": 30.5, "lon": 78.5, "land_use": "PADDY"}, body["input"])

	factors := body["factors"].(map[string]any)
	assert.Equal(t, 900.0, factors["rainfall_mm"])
	assert.Equal(t, 10.0, factors["slope_percent"])

	measures := body["mechanical_measures"].(map[string]any)
	assert.Equal(t, []any{}, measures["measures"])
	assert.Contains(t, body["explanation"], "moderate rainfall")

	require.NotNil(t, env.seen.Overrides.RainfallMM)
	assert.Equal(t, 900.0, *env.seen.Overrides.RainfallMM)
	assert.Nil(t, env.seen.Overrides.SlopePercent)
}

func TestAnalyze_NonArable(t *testing.T) {
	env := newTestEnv(t, 45)
	resp, body := env.post(t, `{"lat": 30.5, "lon": 78.5, "land_use": "PADDY"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "NON_ARABLE", body["status"])
	assert.Equal(t, arability.ReasonSteepSlope, body["reason"])
	assert.Equal(t, model.NonArableMessage, body["message"])
	assert.NotContains(t, body, "factors")
	assert.NotContains(t, body, "erosion_risk")
	assert.NotContains(t, body, "mode")
}

func TestAnalyze_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, 5)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"empty body", ``, "Invalid or missing JSON payload"},
		{"malformed json", `{"lat":`, "Invalid or missing JSON payload"},
		{"missing land use", `{"lat": 1, "lon": 2}`, "lat, lon and land_use are required"},
		{"missing lat", `{"lon": 2, "land_use": "PADDY"}`, "lat, lon and land_use are required"},
		{"lat out of range", `{"lat": 91, "lon": 2, "land_use": "PADDY"}`, "lat must be between -90 and 90"},
		{"negative slope", `{"lat": 1, "lon": 2, "land_use": "PADDY", "slope_percent": -1}`, "slope_percent must be >= 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.post(t, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "ERROR", body["status"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestAnalyze_InternalError(t *testing.T) {
	srv := httptest.NewServer(NewRouter(NewHandler(failingAnalyzer{}, nil), RouterOptions{Gatherer: prometheus.NewRegistry()}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/analyze", "application/json", strings.NewReader(`{"lat":1,"lon":2,"land_use":"PADDY"}`))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "ERROR", "message": "internal error"}, body)

	// history endpoints are not mounted without a store
	r2, err := http.Get(srv.URL + "/evaluations")
	require.NoError(t, err)
	r2.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusNotFound, r2.StatusCode)
}

func TestEvaluations_ListAndGet(t *testing.T) {
	env := newTestEnv(t, 10)
	_, first := env.post(t, `{"lat": 30.5, "lon": 78.5, "land_use": "PADDY"}`)
	time.Sleep(5 * time.Millisecond)
	_, second := env.post(t, `{"lat": 31.5, "lon": 79.5, "land_use": "FOREST"}`)

	var list listResponse
	resp := env.get(t, "/evaluations", &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, second["evaluation_id"], list.Evaluations[0].ID)
	assert.Equal(t, store.DefaultLimit, list.Limit)

	var filtered listResponse
	env.get(t, "/evaluations?land_use=paddy&limit=5", &filtered)
	require.Equal(t, 1, filtered.Count)
	assert.Equal(t, first["evaluation_id"], filtered.Evaluations[0].ID)
	assert.Equal(t, 5, filtered.Limit)

	var rec store.Record
	resp = env.get(t, "/evaluations/"+first["evaluation_id"].(string), &rec)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StatusOK, rec.Status)
	assert.Equal(t, model.LandUsePaddy, rec.LandUse)
	assert.Equal(t, 30.5, rec.Analysis.Input.Latitude)
}

func TestEvaluations_Empty(t *testing.T) {
	env := newTestEnv(t, 10)
	var list map[string]any
	env.get(t, "/evaluations", &list)
	assert.Equal(t, []any{}, list["evaluations"])
}

func TestEvaluations_NotFound(t *testing.T) {
	env := newTestEnv(t, 10)
	var body map[string]any
	resp := env.get(t, "/evaluations/does-not-exist", &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "evaluation not found", body["message"])
}

func TestEvaluations_BadQuery(t *testing.T) {
	env := newTestEnv(t, 10)
	for _, q := range []string{"status=MAYBE", "limit=0", "limit=abc", "limit=5000", "offset=-1"} {
		var body map[string]any
		resp := env.get(t, "/evaluations?"+q, &body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.Equal(t, "ERROR", body["status"], q)
	}
}

func TestEvaluations_StoreError(t *testing.T) {
	srv := httptest.NewServer(NewRouter(NewHandler(failingAnalyzer{}, failingHistory{}), RouterOptions{Gatherer: prometheus.NewRegistry()}))
	defer srv.Close()

	for _, path := range []string{"/evaluations", "/evaluations/x"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close() //nolint:errcheck
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 10)
	env.post(t, `{"lat": 30.5, "lon": 78.5, "land_use": "PADDY"}`)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "swc_analysis_outcomes_total")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, 10)
	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/analyze", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

type fakeCacheAdmin struct {
	purged   int
	lat, lon float64
}

func (f *fakeCacheAdmin) Invalidate() int {
	f.purged++
	return 4
}

func (f *fakeCacheAdmin) InvalidateLocation(lat, lon float64) int {
	f.lat, f.lon = lat, lon
	return 1
}

func newCacheAdminServer(t *testing.T, admin CacheAdmin) *httptest.Server {
	t.Helper()
	h := NewHandler(failingAnalyzer{}, nil)
	if admin != nil {
		h = h.WithCacheAdmin(admin)
	}
	srv := httptest.NewServer(NewRouter(h, RouterOptions{}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInvalidateCache(t *testing.T) {
	admin := &fakeCacheAdmin{}
	srv := newCacheAdminServer(t, admin)

	tests := []struct {
		name    string
		query   string
		status  int
		removed float64
	}{
		{"whole cache", "", http.StatusOK, 4},
		{"one location", "?lat=30.5&lon=78.5", http.StatusOK, 1},
		{"lat only", "?lat=30.5", http.StatusBadRequest, 0},
		{"bad lon", "?lat=30.5&lon=east", http.StatusBadRequest, 0},
		{"lat out of range", "?lat=91&lon=78.5", http.StatusBadRequest, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/admin/cache/invalidate"+tc.query, "application/json", nil)
			require.NoError(t, err)
			defer resp.Body.Close() //nolint:errcheck
			assert.Equal(t, tc.status, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tc.status == http.StatusOK {
				assert.Equal(t, "OK", body["status"])
				assert.Equal(t, tc.removed, body["removed"])
			}
		})
	}
	assert.Equal(t, 1, admin.purged)
	assert.Equal(t, 30.5, admin.lat)
	assert.Equal(t, 78.5, admin.lon)
}

func TestInvalidateCache_NotMountedWithoutAdmin(t *testing.T) {
	srv := newCacheAdminServer(t, nil)
	resp, err := http.Post(srv.URL+"/admin/cache/invalidate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
