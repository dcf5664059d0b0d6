package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// responseRecorder captures the status code for logging.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPLogging logs one line per request: method, path, status, duration,
// caller IP, and the request ID. No headers or bodies are logged; nothing
// secret transits request bodies in this service.
func HTTPLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			logger.Info("http request",
				"request_id", GetRequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.statusCode,
				"remote_ip", RealIP(r),
				"duration_ms", duration.Milliseconds(),
			)
		})
	}
}
