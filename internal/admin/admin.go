// Package admin provides the dashboard API: token CRUD, account and IP
// punitive management, and login. Reachability of the admin-only routes is
// enforced upstream by the gate middleware; handlers still re-check the
// admin flag before mutating anything.
package admin

import (
	"context"
	"log/slog"

	"github.com/idqr/qrgate/internal/identity"
	"github.com/idqr/qrgate/internal/qr"
	"github.com/idqr/qrgate/internal/session"
	"github.com/idqr/qrgate/internal/token"
)

// Pinger is the storage health surface the ready check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides dashboard endpoints.
type Handler struct {
	registry *token.Registry
	identity *identity.Manager
	sessions *session.Manager
	renderer qr.Renderer
	pinger   Pinger
	baseURL  string
	logger   *slog.Logger
	logLevel *slog.LevelVar
}

// NewHandler creates a dashboard handler.
func NewHandler(
	registry *token.Registry,
	id *identity.Manager,
	sessions *session.Manager,
	renderer qr.Renderer,
	pinger Pinger,
	baseURL string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if logLevel == nil {
		logLevel = new(slog.LevelVar)
	}

	return &Handler{
		registry: registry,
		identity: id,
		sessions: sessions,
		renderer: renderer,
		pinger:   pinger,
		baseURL:  baseURL,
		logger:   logger,
		logLevel: logLevel,
	}
}
