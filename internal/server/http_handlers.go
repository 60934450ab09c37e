package server

import (
	"context"
	"encoding/json"
	"net/http"

	"resumecritic/internal/errors"
	"resumecritic/internal/types"
)

// healthHandler reports liveness. With ?deep=true it also asks the upstream about the model.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status":  "healthy",
		"service": "resumecritic",
		"version": s.Version,
	}

	status := http.StatusOK
	if r.URL.Query().Get("deep") == "true" {
		ctx := r.Context()
		if timeout := s.AppConfig.Observability.HealthCheck.AIModelCheckTimeout; timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		modelInfo := s.Analyzer.GetModelInfo(ctx)
		response["ai_model"] = modelInfo
		if modelInfo == nil || !modelInfo.Available {
			response["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	s.respondJSON(w, status, response)
}

// statsHandler exposes breaker, pacer and prompt state
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"service": "resumecritic",
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.MaxRequestSize,
			"tls_mode":               s.TLSConfig.Mode,
			"prompt_watcher_running": s.PromptWatcher != nil && s.PromptWatcher.IsRunning(),
		},
		"ai": s.Analyzer.Stats(),
	}

	s.respondJSON(w, http.StatusOK, response)
}

// respondJSON writes v, falling back to the generic error body when v cannot be encoded
func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		s.Logger.LogError(errors.NewInternalError(errors.ErrCodeResponseEncoding, "response could not be encoded", err),
			"Failed to encode response")
		writeErrorResponse(w, msgGeneric, http.StatusInternalServerError)
	}
}

// writeErrorResponse writes the {"error": message} body every API failure uses
func writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: message})
}
