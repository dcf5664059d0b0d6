// Package gate implements the request authorizer: one decision function
// composing the public allow-list, IP blocks, account punitive state, the
// admin role, and the session grant. Every protected request passes
// through it exactly once.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/idqr/qrgate/internal/identity"
	"github.com/idqr/qrgate/internal/session"
	"github.com/idqr/qrgate/internal/storage"
)

// Outcome is the tagged result of an authorization decision.
type Outcome int

const (
	// Allow lets the request through.
	Allow Outcome = iota
	// DenyIPBlocked denies because the caller's IP is blocked.
	DenyIPBlocked
	// DenyAccountBlocked denies because the caller's account is blocked.
	DenyAccountBlocked
	// DenyAccountFrozen denies because the caller's account is frozen.
	DenyAccountFrozen
	// DenyRedirect is the default deny: send the caller to the entry point.
	DenyRedirect
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case DenyIPBlocked:
		return "deny_ip_blocked"
	case DenyAccountBlocked:
		return "deny_account_blocked"
	case DenyAccountFrozen:
		return "deny_account_frozen"
	case DenyRedirect:
		return "deny_redirect"
	default:
		return "unknown"
	}
}

// Decision is the result of Authorize.
type Decision struct {
	Outcome     Outcome
	Reason      string    // set for DenyIPBlocked
	FrozenUntil time.Time // set for DenyAccountFrozen
	IsAdmin     bool      // set on Allow when the caller holds the admin role
	AccountID   string    // set on Allow when the caller is authenticated
}

// Input is everything a decision depends on.
type Input struct {
	Path     string
	Session  *session.State // nil when the caller has no session state
	CallerIP string
}

// Identity is the identity surface the authorizer needs. CheckAccount
// carries the role, so one call covers both the punitive and the admin
// steps.
type Identity interface {
	CheckIP(ctx context.Context, ip string) (identity.IPCheck, error)
	CheckAccount(ctx context.Context, id string) (identity.AccountCheck, error)
}

// Authorizer is the decision state machine.
type Authorizer struct {
	identity       Identity
	publicPaths    map[string]bool
	publicPrefixes []string
	logger         *slog.Logger
}

// New creates an Authorizer. publicPaths are exact-match members of the
// public allow-list; publicPrefixes admit whole subtrees (scan and asset
// paths) and must end with "/".
func New(id Identity, publicPaths []string, publicPrefixes []string, logger *slog.Logger) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}

	exact := make(map[string]bool, len(publicPaths))
	for _, p := range publicPaths {
		exact[p] = true
	}

	return &Authorizer{
		identity:       id,
		publicPaths:    exact,
		publicPrefixes: publicPrefixes,
		logger:         logger,
	}
}

// Authorize evaluates the fixed precedence order, first match wins:
//
//  1. public path                      -> Allow (before any identity check)
//  2. caller IP blocked               -> DenyIPBlocked
//  3. account blocked                 -> DenyAccountBlocked
//  4. account frozen                  -> DenyAccountFrozen
//  5. account role is admin           -> Allow
//  6. live grant covers the path      -> Allow
//  7. otherwise                       -> DenyRedirect
//
// Punitive states override the admin role; the public set is reachable
// even for blocked callers so they can see why they are denied.
func (a *Authorizer) Authorize(ctx context.Context, in Input) (Decision, error) {
	if a.isPublic(in.Path) {
		return Decision{Outcome: Allow}, nil
	}

	ipCheck, err := a.identity.CheckIP(ctx, in.CallerIP)
	if err != nil {
		return Decision{}, fmt.Errorf("authorize: %w", err)
	}
	if ipCheck.Blocked {
		return Decision{Outcome: DenyIPBlocked, Reason: ipCheck.Reason}, nil
	}

	identityID := ""
	if in.Session != nil {
		identityID = in.Session.IdentityID
	}

	if identityID != "" {
		check, err := a.identity.CheckAccount(ctx, identityID)
		switch {
		case errors.Is(err, identity.ErrNotFound):
			// The account was deleted under a live session; from here
			// on the caller is anonymous.
			identityID = ""
		case err != nil:
			return Decision{}, fmt.Errorf("authorize: %w", err)
		case check.State == identity.StateBlocked:
			return Decision{Outcome: DenyAccountBlocked, AccountID: identityID}, nil
		case check.State == identity.StateFrozen:
			return Decision{Outcome: DenyAccountFrozen, FrozenUntil: check.FrozenUntil, AccountID: identityID}, nil
		case check.Role == storage.RoleAdmin:
			return Decision{Outcome: Allow, IsAdmin: true, AccountID: identityID}, nil
		}
	}

	if in.Session != nil && in.Session.Grant != nil && ScopeCovers(in.Session.Grant.Scope, in.Path) {
		return Decision{Outcome: Allow, AccountID: identityID}, nil
	}

	return Decision{Outcome: DenyRedirect, AccountID: identityID}, nil
}

func (a *Authorizer) isPublic(path string) bool {
	if a.publicPaths[path] {
		return true
	}
	for _, prefix := range a.publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// ScopeCovers reports whether a grant scope admits a request path. Matching
// respects path-segment boundaries: scope /area/x covers /area/x and
// /area/x/sub, never /area/xy.
func ScopeCovers(scope, path string) bool {
	scope = strings.TrimSuffix(scope, "/")
	if scope == "" {
		return false
	}
	if path == scope || path == scope+"/" {
		return true
	}
	return strings.HasPrefix(path, scope+"/")
}
