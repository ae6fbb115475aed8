// Package api exposes the analysis flow and the evaluation history over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/swc-cli/internal/model"
	"github.com/sells-group/swc-cli/internal/store"
)

// maxBodyBytes caps POST /analyze request bodies.
const maxBodyBytes = 1 << 20

// Analyzer runs one analysis. *pipeline.Analyzer satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, req model.AnalysisRequest) (*model.Analysis, error)
}

// History reads stored evaluations. store.Store satisfies it.
type History interface {
	GetEvaluation(ctx context.Context, id string) (*store.Record, error)
	ListEvaluations(ctx context.Context, filter store.Filter) ([]store.Record, error)
}

// CacheAdmin drops cached sensor factors. *factors.Aggregator satisfies it.
type CacheAdmin interface {
	Invalidate() int
	InvalidateLocation(lat, lon float64) int
}

// Handler serves the analysis and history endpoints.
type Handler struct {
	analyzer Analyzer
	history  History
	cache    CacheAdmin
}

// NewHandler creates a Handler. A nil history disables the /evaluations
// endpoints.
func NewHandler(analyzer Analyzer, history History) *Handler {
	return &Handler{analyzer: analyzer, history: history}
}

// WithCacheAdmin enables POST /admin/cache/invalidate.
func (h *Handler) WithCacheAdmin(c CacheAdmin) *Handler {
	h.cache = c
	return h
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Post("/analyze", h.HandleAnalyze)
	if h.history != nil {
		r.Get("/evaluations", h.HandleListEvaluations)
		r.Get("/evaluations/{id}", h.HandleGetEvaluation)
	}
	if h.cache != nil {
		r.Post("/admin/cache/invalidate", h.HandleInvalidateCache)
	}
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleAnalyze handles POST /analyze. Validation failures are 400s;
// NON_ARABLE is a normal 200 outcome.
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing JSON payload")
		return
	}

	req, err := model.DecodeAnalysisRequest(body)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message, verr.Fields...)
			return
		}
		writeInternal(w)
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), req)
	if err != nil {
		zap.L().Error("api: analyze failed",
			zap.Float64("lat", req.Latitude),
			zap.Float64("lon", req.Longitude),
			zap.String("land_use", string(req.LandUse)),
			zap.Error(err),
		)
		writeInternal(w)
		return
	}

	zap.L().Debug("api: analyze",
		zap.String("status", string(result.Status)),
		zap.String("evaluation_id", result.EvaluationID),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	writeJSON(w, http.StatusOK, result)
}

// listResponse is the body of GET /evaluations.
type listResponse struct {
	Evaluations []store.Record `json:"evaluations"`
	Count       int            `json:"count"`
	Limit       int            `json:"limit"`
	Offset      int            `json:"offset"`
}

// HandleListEvaluations handles GET /evaluations?status=&land_use=&limit=&offset=.
func (h *Handler) HandleListEvaluations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message, verr.Fields...)
			return
		}
		writeInternal(w)
		return
	}

	records, err := h.history.ListEvaluations(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list evaluations", zap.Error(err))
		writeInternal(w)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Evaluations: records,
		Count:       len(records),
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
}

// HandleGetEvaluation handles GET /evaluations/{id}.
func (h *Handler) HandleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.history.GetEvaluation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "evaluation not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get evaluation", zap.String("id", id), zap.Error(err))
		writeInternal(w)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// invalidateResponse is the body of POST /admin/cache/invalidate.
type invalidateResponse struct {
	Status  string `json:"status"`
	Removed int    `json:"removed"`
}

// HandleInvalidateCache handles POST /admin/cache/invalidate[?lat=&lon=].
// Without a location the whole factor cache is dropped.
func (h *Handler) HandleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr == "" && lonStr == "" {
		n := h.cache.Invalidate()
		zap.L().Info("api: factor cache purged", zap.Int("removed", n))
		writeJSON(w, http.StatusOK, invalidateResponse{Status: "OK", Removed: n})
		return
	}

	lat, latErr := strconv.ParseFloat(latStr, 64)
	lon, lonErr := strconv.ParseFloat(lonStr, 64)
	var fields []string
	if latErr != nil || lat < -90 || lat > 90 {
		fields = append(fields, "lat")
	}
	if lonErr != nil || lon < -180 || lon > 180 {
		fields = append(fields, "lon")
	}
	if len(fields) > 0 {
		writeError(w, http.StatusBadRequest, "lat and lon must both be valid coordinates", fields...)
		return
	}

	n := h.cache.InvalidateLocation(lat, lon)
	zap.L().Info("api: factor cache invalidated",
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.Int("removed", n),
	)
	writeJSON(w, http.StatusOK, invalidateResponse{Status: "OK", Removed: n})
}

func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{Limit: store.DefaultLimit}

	if s := q.Get("status"); s != "" {
		switch status := model.AnalysisStatus(s); status {
		case model.StatusOK, model.StatusNonArable, model.StatusError:
			f.Status = status
		default:
			return f, &model.ValidationError{Message: "status must be OK, NON_ARABLE or ERROR", Fields: []string{"status"}}
		}
	}
	if s := q.Get("land_use"); s != "" {
		f.LandUse, _ = model.ParseLandUse(s)
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > store.MaxLimit {
			return f, &model.ValidationError{Message: "limit must be between 1 and " + strconv.Itoa(store.MaxLimit), Fields: []string{"limit"}}
		}
		f.Limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, &model.ValidationError{Message: "offset must be a non-negative integer", Fields: []string{"offset"}}
		}
		f.Offset = n
	}
	return f, nil
}
