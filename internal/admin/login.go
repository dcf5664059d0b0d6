package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/idqr/qrgate/internal/identity"
	"github.com/idqr/qrgate/internal/metrics"
	"github.com/idqr/qrgate/internal/middleware"
	"github.com/idqr/qrgate/internal/session"
	"github.com/idqr/qrgate/internal/storage"
)

// HandleLogin processes account login.
// POST /login
// Form data: code=<value>
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid form data")
		return
	}

	code := r.FormValue("code")
	ip := middleware.RealIP(r)

	account, err := h.identity.Authenticate(r.Context(), code, ip)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCode) {
			metrics.RecordLoginFailure()
			h.logger.Warn("failed login attempt", "remote_ip", ip)
			WriteError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid access code")
			return
		}
		h.logger.Error("login failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "login failed")
		return
	}

	// A blocked or frozen account may present a valid code; it still gets
	// the explicit explanation rather than a session.
	check, err := h.identity.CheckAccount(r.Context(), account.ID)
	if err != nil {
		h.logger.Error("login punitive check failed", "account_id", account.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "login failed")
		return
	}

	switch check.State {
	case identity.StateBlocked:
		WriteJSON(w, http.StatusForbidden, map[string]string{"error": "account_blocked"})
		return
	case identity.StateFrozen:
		WriteJSON(w, http.StatusForbidden, map[string]string{
			"error":        "account_frozen",
			"frozen_until": check.FrozenUntil.Format(time.RFC3339),
		})
		return
	}

	sid := session.IDFromContext(r.Context())
	if sid == "" {
		h.logger.Error("login without session", "account_id", account.ID)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "login failed")
		return
	}
	h.sessions.BindIdentity(r.Context(), sid, account.ID)

	h.logger.Info("login successful", "account_id", account.ID, "role", account.Role, "remote_ip", ip)

	WriteJSON(w, http.StatusOK, map[string]string{
		"account_id": account.ID,
		"role":       account.Role,
	})
}

// HandleLogout detaches the identity from the session. Any scan grant the
// session holds survives logout.
// POST /logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sid := session.IDFromContext(r.Context()); sid != "" {
		h.sessions.ClearIdentity(r.Context(), sid)
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// HandleEntry serves the public entry point callers are redirected to on
// denial.
// GET /
func (h *Handler) HandleEntry(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"service": "qrgate",
		"login":   "/login",
	})
}

// HandleBlockedPage is the punitive-state explanation page. It is public
// so a blocked caller can always see why they are denied.
// GET /blocked
func (h *Handler) HandleBlockedPage(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "denied"}

	sid := session.IDFromContext(r.Context())
	if sid != "" {
		if state := h.sessions.State(r.Context(), sid); state != nil && state.IdentityID != "" {
			check, err := h.identity.CheckAccount(r.Context(), state.IdentityID)
			if err == nil {
				switch check.State {
				case identity.StateBlocked:
					resp["reason"] = "account_blocked"
				case identity.StateFrozen:
					resp["reason"] = "account_frozen"
					resp["frozen_until"] = check.FrozenUntil.Format(time.RFC3339)
				default:
					resp["status"] = "clear"
				}
			}
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}

// WhoamiResponse describes the caller's identity as the gate saw it.
type WhoamiResponse struct {
	AccountID string `json:"account_id,omitempty"`
	Role      string `json:"role,omitempty"`
	Admin     bool   `json:"admin"`
}

// HandleWhoami reports the caller's identity.
// GET /dashboard/api/whoami
func (h *Handler) HandleWhoami(w http.ResponseWriter, r *http.Request) {
	resp := WhoamiResponse{}

	sid := session.IDFromContext(r.Context())
	if sid != "" {
		if state := h.sessions.State(r.Context(), sid); state != nil && state.IdentityID != "" {
			account, err := h.identity.Get(r.Context(), state.IdentityID)
			if err == nil {
				resp.AccountID = account.ID
				resp.Role = account.Role
				resp.Admin = account.Role == storage.RoleAdmin
			}
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}
