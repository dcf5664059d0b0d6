package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.statusCode = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// Middleware records request count and latency for every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		startTime := time.Now()
		next.ServeHTTP(recorder, r)
		duration := time.Since(startTime).Seconds()

		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(recorder.statusCode)

		RecordRequest(r.Method, path, status)
		RecordRequestDuration(r.Method, path, status, duration)
	})
}

// normalizePath collapses ID segments so per-token paths don't explode
// label cardinality: /scan/<uuid> -> /scan/:id, and anything under
// /dashboard/api/tokens or /dashboard/api/accounts keeps two fixed
// segments before :id.
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if looksLikeID(seg) {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

// looksLikeID reports whether a path segment is a UUID or numeric ID.
func looksLikeID(seg string) bool {
	if seg == "" {
		return false
	}
	if len(seg) == 36 && strings.Count(seg, "-") == 4 {
		return true
	}
	for _, c := range seg {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
