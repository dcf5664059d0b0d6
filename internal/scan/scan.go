// Package scan serves the public scan-entry endpoint: resolve a token,
// issue the session grant, and redirect to the target.
package scan

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/idqr/qrgate/internal/metrics"
	"github.com/idqr/qrgate/internal/middleware"
	"github.com/idqr/qrgate/internal/session"
	"github.com/idqr/qrgate/internal/token"
)

// Handler serves GET /scan/{id}.
type Handler struct {
	registry *token.Registry
	sessions *session.Manager
	logger   *slog.Logger
}

// NewHandler creates a scan handler.
func NewHandler(registry *token.Registry, sessions *session.Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, sessions: sessions, logger: logger}
}

// HandleScan resolves a token and issues the grant. Repeat scans are
// expected: each one increments the counter and re-issues the grant.
// Unknown tokens (and resolver failures) send the scanning party to the
// entry point; no error detail ever reaches an anonymous caller.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sourceIP := middleware.RealIP(r)

	t, err := h.registry.Resolve(r.Context(), id, sourceIP)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			metrics.RecordScan("not_found")
		} else {
			metrics.RecordScan("error")
			h.logger.Error("scan resolve failed", "token_id", id, "error", err)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	metrics.RecordScan("resolved")

	if sid := session.IDFromContext(r.Context()); sid != "" {
		h.sessions.IssueGrant(r.Context(), sid, t.Target)
	}

	http.Redirect(w, r, t.Target, http.StatusSeeOther)
}
