package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/idqr/qrgate/internal/gate"
	"github.com/idqr/qrgate/internal/identity"
	"github.com/idqr/qrgate/internal/storage"
)

// requireAdmin writes a 403 and returns false unless the gate allowed the
// request with the admin role. The gate has already evaluated precedence;
// this is the per-handler re-check for admin-only mutations.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !gate.IsAdminFromContext(r.Context()) {
		WriteError(w, http.StatusForbidden, ErrCodeAdminRequired, "admin role required")
		return false
	}
	return true
}

// AccountResponse represents an account in API responses. The code hash is
// never included.
type AccountResponse struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	FrozenUntil string `json:"frozen_until,omitempty"`
	KnownIP     string `json:"known_ip,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func accountResponse(a *storage.Account) AccountResponse {
	resp := AccountResponse{
		ID:        a.ID,
		Role:      a.Role,
		Status:    a.Status,
		KnownIP:   a.KnownIP,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
	if a.FrozenUntil != nil {
		resp.FrozenUntil = a.FrozenUntil.Format(time.RFC3339)
	}
	return resp
}

// CreateAccountRequest is the body for POST /dashboard/api/accounts.
type CreateAccountRequest struct {
	Role string `json:"role"`
}

// HandleCreateAccount creates an account with a generated access code.
// The code appears in this response and nowhere else.
// POST /dashboard/api/accounts
func (h *Handler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	account, code, err := h.identity.CreateAccount(r.Context(), req.Role)
	if err != nil {
		h.logger.Error("failed to create account", "error", err)
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "failed to create account")
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]string{
		"account_id":  account.ID,
		"role":        account.Role,
		"access_code": code,
	})
}

// HandleBlockAccount blocks an account, clearing any freeze.
// POST /dashboard/api/accounts/{id}/block
func (h *Handler) HandleBlockAccount(w http.ResponseWriter, r *http.Request) {
	h.punitiveAction(w, r, func(id string) error {
		return h.identity.Block(r.Context(), id)
	})
}

// HandleUnblockAccount clears a block.
// POST /dashboard/api/accounts/{id}/unblock
func (h *Handler) HandleUnblockAccount(w http.ResponseWriter, r *http.Request) {
	h.punitiveAction(w, r, func(id string) error {
		return h.identity.Unblock(r.Context(), id)
	})
}

// FreezeRequest is the body for the freeze endpoint.
type FreezeRequest struct {
	Duration string `json:"duration"` // Go duration string, e.g. "24h"
}

// HandleFreezeAccount freezes an account for a duration, clearing any block.
// POST /dashboard/api/accounts/{id}/freeze
func (h *Handler) HandleFreezeAccount(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req FreezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	d, err := time.ParseDuration(req.Duration)
	if err != nil || d <= 0 {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "duration must be a positive Go duration string")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.identity.Freeze(r.Context(), id, d); err != nil {
		h.writePunitiveErr(w, id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleUnfreezeAccount clears a freeze ahead of its deadline.
// POST /dashboard/api/accounts/{id}/unfreeze
func (h *Handler) HandleUnfreezeAccount(w http.ResponseWriter, r *http.Request) {
	h.punitiveAction(w, r, func(id string) error {
		return h.identity.Unfreeze(r.Context(), id)
	})
}

func (h *Handler) punitiveAction(w http.ResponseWriter, r *http.Request, action func(id string) error) {
	if !h.requireAdmin(w, r) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := action(id); err != nil {
		h.writePunitiveErr(w, id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writePunitiveErr(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, identity.ErrNotFound) {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "account not found")
		return
	}
	h.logger.Error("punitive action failed", "account_id", id, "error", err)
	WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "action failed")
}

// BlockIPRequest is the body for POST /dashboard/api/ips/block.
type BlockIPRequest struct {
	IP       string `json:"ip"`
	Reason   string `json:"reason"`
	Duration string `json:"duration,omitempty"` // empty = permanent
}

// HandleBlockIP blocks an IP, optionally with an expiry.
// POST /dashboard/api/ips/block
func (h *Handler) HandleBlockIP(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req BlockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	if req.IP == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "ip is required")
		return
	}

	var d time.Duration
	if req.Duration != "" {
		var err error
		d, err = time.ParseDuration(req.Duration)
		if err != nil || d <= 0 {
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "duration must be a positive Go duration string")
			return
		}
	}

	if err := h.identity.BlockIP(r.Context(), req.IP, req.Reason, d); err != nil {
		h.logger.Error("failed to block IP", "ip", req.IP, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to block IP")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnblockIPRequest is the body for POST /dashboard/api/ips/unblock.
type UnblockIPRequest struct {
	IP string `json:"ip"`
}

// HandleUnblockIP removes an IP block.
// POST /dashboard/api/ips/unblock
func (h *Handler) HandleUnblockIP(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req UnblockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	err := h.identity.UnblockIP(r.Context(), req.IP)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "IP is not blocked")
	case err != nil:
		h.logger.Error("failed to unblock IP", "ip", req.IP, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to unblock IP")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
