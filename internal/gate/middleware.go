package gate

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/idqr/qrgate/internal/metrics"
	"github.com/idqr/qrgate/internal/middleware"
	"github.com/idqr/qrgate/internal/session"
)

// EntryPoint is the public path denied callers are redirected to.
const EntryPoint = "/"

// Middleware enforces the authorizer on every request. Deny outcomes map
// to either a silent redirect to the entry point (no identity, no grant)
// or an explicit 403 with the punitive reason, so a legitimately blocked
// caller is never confused with an unknown token.
func Middleware(a *Authorizer, sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			in := Input{
				Path:     r.URL.Path,
				CallerIP: middleware.RealIP(r),
			}
			if sid := session.IDFromContext(r.Context()); sid != "" {
				in.Session = sessions.State(r.Context(), sid)
			}

			decision, err := a.Authorize(r.Context(), in)
			if err != nil {
				a.logger.Error("authorization failed", "path", in.Path, "error", err)
				http.Error(w, "Internal error", http.StatusInternalServerError)
				return
			}

			metrics.RecordAuthzDecision(decision.Outcome.String())

			switch decision.Outcome {
			case Allow:
				ctx := WithDecision(r.Context(), &decision)
				next.ServeHTTP(w, r.WithContext(ctx))

			case DenyRedirect:
				http.Redirect(w, r, EntryPoint, http.StatusSeeOther)

			case DenyIPBlocked:
				writeDenied(w, map[string]string{
					"error":  "ip_blocked",
					"reason": decision.Reason,
				})

			case DenyAccountBlocked:
				writeDenied(w, map[string]string{
					"error": "account_blocked",
				})

			case DenyAccountFrozen:
				writeDenied(w, map[string]string{
					"error":        "account_frozen",
					"frozen_until": decision.FrozenUntil.Format(time.RFC3339),
				})
			}
		})
	}
}

func writeDenied(w http.ResponseWriter, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	// Encoding errors are not critical since headers are already sent
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck
}
