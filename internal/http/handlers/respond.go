package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/innervoice/guide-ai-platform/internal/agent"
	"github.com/innervoice/guide-ai-platform/internal/pipeline"
	"github.com/innervoice/guide-ai-platform/internal/synthesis"
	"github.com/innervoice/guide-ai-platform/internal/tenancy"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP statuses. Unknown errors become
// opaque 500s so internals never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, tenancy.ErrMissingTenant):
		writeJSON(w, http.StatusUnauthorized, errBody("missing tenant"))
	case agent.IsValidation(err):
		writeJSON(w, http.StatusUnprocessableEntity, errBody(err.Error()))
	case errors.Is(err, agent.ErrNotFound),
		errors.Is(err, pipeline.ErrProtocolNotFound),
		errors.Is(err, pipeline.ErrRunNotFound),
		errors.Is(err, synthesis.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, errBody("not found"))
	case isCompletionUnavailable(err):
		writeJSON(w, http.StatusBadGateway, errBody("completion service unavailable"))
	default:
		writeJSON(w, http.StatusInternalServerError, errBody("internal error"))
	}
}

func isCompletionUnavailable(err error) bool {
	var cue *agent.CompletionUnavailableError
	return errors.As(err, &cue)
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
