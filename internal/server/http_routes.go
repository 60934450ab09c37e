package server

import (
	"net/http"
	"time"

	"resumecritic/internal/observability"
	"resumecritic/internal/web"

	"github.com/google/uuid"
)

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes(om *observability.ObservabilityManager) *http.ServeMux {
	mux := http.NewServeMux()

	requestLimitHandler := s.requestSizeLimitMiddleware()

	mux.HandleFunc("/", requestLimitHandler(s.createPageHandler(om)))
	mux.HandleFunc("/api/analyze", requestLimitHandler(s.createAnalyzeHandler(om)))
	mux.Handle("/"+web.SampleResumeName, web.SampleHandler())
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)

	return mux
}

// Handler returns the full middleware chain around the routes
func (s *Server) Handler(om *observability.ObservabilityManager) http.Handler {
	var handler http.Handler = s.setupRoutes(om)
	handler = observability.ObservabilityMiddleware(om)(handler)
	handler = om.HTTPMiddleware()(handler)
	handler = s.requestLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

// requestIDMiddleware propagates X-Request-ID or assigns a fresh UUID
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(observability.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(observability.RequestIDHeader, id)
		}
		w.Header().Set(observability.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// requestLogMiddleware logs each request once it completes
func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.Logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", r.Header.Get(observability.RequestIDHeader))
	})
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if s.MaxRequestSize > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestSize)
			}

			next(w, r)
		}
	}
}
