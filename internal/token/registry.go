// Package token implements the token registry and scan resolver.
// A token binds one target path; resolving it increments the scan counter
// and hands the target to the grant issuer.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/idqr/qrgate/internal/clock"
	"github.com/idqr/qrgate/internal/storage"
)

// Errors returned by registry operations.
var (
	// ErrInvalidTarget indicates a target that is empty or outside the
	// configured protected prefix. Rejected at creation, never at scan time.
	ErrInvalidTarget = errors.New("token: invalid target")

	// ErrForbidden indicates the requester is neither the owner nor an admin.
	ErrForbidden = errors.New("token: forbidden")

	// ErrNotFound indicates the token doesn't exist.
	ErrNotFound = errors.New("token: not found")
)

// Store is the storage surface the registry needs.
type Store interface {
	CreateQRToken(ctx context.Context, t *storage.QRToken) error
	GetQRToken(ctx context.Context, id string) (*storage.QRToken, error)
	ListQRTokens(ctx context.Context) ([]*storage.QRToken, error)
	ListQRTokensByOwner(ctx context.Context, ownerID string) ([]*storage.QRToken, error)
	DeleteQRToken(ctx context.Context, id string) error
	ResolveQRToken(ctx context.Context, id string, now time.Time) (*storage.QRToken, error)
}

// Registry owns token records and the scan path.
type Registry struct {
	store           Store
	clock           clock.Clock
	protectedPrefix string
	logger          *slog.Logger
}

// NewRegistry creates a Registry. Targets must live under protectedPrefix.
func NewRegistry(store Store, clk clock.Clock, protectedPrefix string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:           store,
		clock:           clk,
		protectedPrefix: protectedPrefix,
		logger:          logger,
	}
}

// Create mints a new token for the given target.
// Returns ErrInvalidTarget if the target is empty, not an absolute internal
// path, or outside the protected prefix. Targets are validated here and
// only here: scan-time trusts what creation admitted.
func (r *Registry) Create(ctx context.Context, ownerID, target string) (*storage.QRToken, error) {
	if err := r.validateTarget(target); err != nil {
		return nil, err
	}

	t := &storage.QRToken{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Target:    target,
		CreatedAt: r.clock.Now().UTC(),
	}

	if err := r.store.CreateQRToken(ctx, t); err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}

	r.logger.Info("token created", "token_id", t.ID, "target", t.Target, "owner_id", ownerID)
	return t, nil
}

// Get retrieves a token by ID. Returns ErrNotFound if absent.
func (r *Registry) Get(ctx context.Context, id string) (*storage.QRToken, error) {
	t, err := r.store.GetQRToken(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// List returns tokens visible to the requester: admins see everything,
// users see only their own. This is the authorization boundary between the
// admin dashboard and per-owner views.
func (r *Registry) List(ctx context.Context, requesterID string, admin bool) ([]*storage.QRToken, error) {
	if admin {
		return r.store.ListQRTokens(ctx)
	}
	return r.store.ListQRTokensByOwner(ctx, requesterID)
}

// Delete removes a token. Only the owner or an admin may delete.
// Returns ErrNotFound if absent, ErrForbidden for anyone else.
func (r *Registry) Delete(ctx context.Context, id, requesterID string, admin bool) error {
	t, err := r.store.GetQRToken(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete token: %w", err)
	}

	if !admin && (t.OwnerID == "" || t.OwnerID != requesterID) {
		return ErrForbidden
	}

	if err := r.store.DeleteQRToken(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted concurrently; same outcome for the caller.
			return ErrNotFound
		}
		return fmt.Errorf("delete token: %w", err)
	}

	r.logger.Info("token deleted", "token_id", id, "requester_id", requesterID)
	return nil
}

// Resolve converts a scan into the token's target. The counter increment
// and target read happen in a single storage statement, so N concurrent
// resolves of one token always add exactly N.
// Returns ErrNotFound for unknown tokens; callers send the scanning party
// to the entry point rather than surfacing an error.
func (r *Registry) Resolve(ctx context.Context, id, sourceIP string) (*storage.QRToken, error) {
	t, err := r.store.ResolveQRToken(ctx, id, r.clock.Now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve token: %w", err)
	}

	r.logger.Info("token scanned",
		"token_id", t.ID,
		"target", t.Target,
		"scan_count", t.ScanCount,
		"source_ip", sourceIP,
	)
	return t, nil
}

// validateTarget enforces the restrictive target policy: absolute internal
// paths under the protected prefix, matched on segment boundaries so
// "/dashboardx" never passes for prefix "/dashboard".
func (r *Registry) validateTarget(target string) error {
	if target == "" || !strings.HasPrefix(target, "/") {
		return ErrInvalidTarget
	}
	if strings.Contains(target, "://") || strings.HasPrefix(target, "//") {
		return ErrInvalidTarget
	}
	if strings.Contains(target, "..") {
		return ErrInvalidTarget
	}

	prefix := strings.TrimSuffix(r.protectedPrefix, "/")
	if target != prefix && !strings.HasPrefix(target, prefix+"/") {
		return ErrInvalidTarget
	}

	return nil
}
