package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/swc-cli/internal/model"
)

// errorBody is the envelope for every non-2xx response.
type errorBody struct {
	Status  model.AnalysisStatus `json:"status"`
	Message string               `json:"message"`
	Fields  []string             `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string, fields ...string) {
	writeJSON(w, status, errorBody{Status: model.StatusError, Message: msg, Fields: fields})
}

func writeInternal(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "internal error")
}
