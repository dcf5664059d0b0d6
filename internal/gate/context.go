package gate

import "context"

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey int

const decisionKey ctxKey = iota

// DecisionFromContext retrieves the authorization decision from context.
// Returns nil outside the gate middleware.
func DecisionFromContext(ctx context.Context) *Decision {
	if v := ctx.Value(decisionKey); v != nil {
		if d, ok := v.(*Decision); ok {
			return d
		}
	}
	return nil
}

// IsAdminFromContext returns true if the request was allowed with the
// admin role.
func IsAdminFromContext(ctx context.Context) bool {
	if d := DecisionFromContext(ctx); d != nil {
		return d.IsAdmin
	}
	return false
}

// AccountIDFromContext returns the authenticated account ID, or empty
// string for anonymous callers.
func AccountIDFromContext(ctx context.Context) string {
	if d := DecisionFromContext(ctx); d != nil {
		return d.AccountID
	}
	return ""
}

// WithDecision adds an authorization decision to the context.
func WithDecision(ctx context.Context, d *Decision) context.Context {
	return context.WithValue(ctx, decisionKey, d)
}
