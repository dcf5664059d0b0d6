package session

import (
	"context"
	"log/slog"
	"net/http"
)

// CookieName is the session cookie name.
const CookieName = "qrgate_session"

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey int

const sessionIDKey ctxKey = iota

// IDFromContext retrieves the session ID from context.
// Returns empty string if no session is set.
func IDFromContext(ctx context.Context) string {
	if v := ctx.Value(sessionIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithID adds a session ID to the context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// Middleware ensures every request carries a session: an existing cookie
// referencing a live session is reused, anything else gets a fresh one.
// The session ID is stored in the request context.
func Middleware(store Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string

			if cookie, err := r.Cookie(CookieName); err == nil {
				if _, ok := store.Get(r.Context(), cookie.Value); ok {
					id = cookie.Value
				}
			}

			if id == "" {
				newID, err := store.Create(r.Context())
				if err != nil {
					logger.Error("failed to create session", "error", err)
					http.Error(w, "Internal error", http.StatusInternalServerError)
					return
				}
				id = newID

				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   r.TLS != nil,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
		})
	}
}
