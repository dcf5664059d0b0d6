package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/idqr/qrgate/internal/gate"
	"github.com/idqr/qrgate/internal/qr"
	"github.com/idqr/qrgate/internal/storage"
	"github.com/idqr/qrgate/internal/token"
)

// TokenResponse represents a token in API responses.
type TokenResponse struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id,omitempty"`
	Target     string `json:"target"`
	ScanCount  int64  `json:"scan_count"`
	LastScanAt string `json:"last_scan_at,omitempty"`
	CreatedAt  string `json:"created_at"`
	ScanURL    string `json:"scan_url"`
}

func (h *Handler) tokenResponse(t *storage.QRToken) TokenResponse {
	resp := TokenResponse{
		ID:        t.ID,
		OwnerID:   t.OwnerID,
		Target:    t.Target,
		ScanCount: t.ScanCount,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
		ScanURL:   qr.ScanURL(h.baseURL, t.ID),
	}
	if t.LastScanAt != nil {
		resp.LastScanAt = t.LastScanAt.Format(time.RFC3339)
	}
	return resp
}

// CreateTokenRequest is the body for POST /dashboard/api/tokens.
type CreateTokenRequest struct {
	Target string `json:"target"`
}

// HandleCreateToken mints a new token.
// POST /dashboard/api/tokens
func (h *Handler) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	requesterID := gate.AccountIDFromContext(r.Context())
	if requesterID == "" {
		// A grant-holder can reach dashboard paths inside its scope but
		// has no identity to own a token.
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "authenticated account required")
		return
	}

	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	t, err := h.registry.Create(r.Context(), requesterID, req.Target)
	if err != nil {
		if errors.Is(err, token.ErrInvalidTarget) {
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidTarget, "target must be an internal path under the protected prefix")
			return
		}
		h.logger.Error("failed to create token", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to create token")
		return
	}

	WriteJSON(w, http.StatusCreated, h.tokenResponse(t))
}

// HandleListTokens lists tokens: all of them for admins, the requester's
// own otherwise. This doubles as the usage-statistics listing (scan counts
// and last-scan timestamps are included).
// GET /dashboard/api/tokens
func (h *Handler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	requesterID := gate.AccountIDFromContext(r.Context())
	if requesterID == "" {
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "authenticated account required")
		return
	}

	tokens, err := h.registry.List(r.Context(), requesterID, gate.IsAdminFromContext(r.Context()))
	if err != nil {
		h.logger.Error("failed to list tokens", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to list tokens")
		return
	}

	resp := make([]TokenResponse, 0, len(tokens))
	for _, t := range tokens {
		resp = append(resp, h.tokenResponse(t))
	}

	WriteJSON(w, http.StatusOK, resp)
}

// HandleGetToken returns one token.
// GET /dashboard/api/tokens/{id}
func (h *Handler) HandleGetToken(w http.ResponseWriter, r *http.Request) {
	t, ok := h.fetchVisibleToken(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, h.tokenResponse(t))
}

// HandleTokenImage renders the token's scan URL as a QR image.
// GET /dashboard/api/tokens/{id}/image
func (h *Handler) HandleTokenImage(w http.ResponseWriter, r *http.Request) {
	t, ok := h.fetchVisibleToken(w, r)
	if !ok {
		return
	}

	png, err := h.renderer.Render(qr.ScanURL(h.baseURL, t.ID))
	if err != nil {
		h.logger.Error("failed to render token image", "token_id", t.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to render image")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png) //nolint:errcheck
}

// HandleDeleteToken deletes a token. Owner or admin only.
// DELETE /dashboard/api/tokens/{id}
func (h *Handler) HandleDeleteToken(w http.ResponseWriter, r *http.Request) {
	requesterID := gate.AccountIDFromContext(r.Context())
	if requesterID == "" {
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "authenticated account required")
		return
	}

	id := chi.URLParam(r, "id")
	err := h.registry.Delete(r.Context(), id, requesterID, gate.IsAdminFromContext(r.Context()))
	switch {
	case errors.Is(err, token.ErrNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "token not found")
	case errors.Is(err, token.ErrForbidden):
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "only the owner or an admin may delete a token")
	case err != nil:
		h.logger.Error("failed to delete token", "token_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to delete token")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// fetchVisibleToken loads a token and enforces owner-or-admin visibility,
// writing the error response itself when the token may not be shown.
func (h *Handler) fetchVisibleToken(w http.ResponseWriter, r *http.Request) (*storage.QRToken, bool) {
	requesterID := gate.AccountIDFromContext(r.Context())
	if requesterID == "" {
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "authenticated account required")
		return nil, false
	}

	id := chi.URLParam(r, "id")
	t, err := h.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "token not found")
			return nil, false
		}
		h.logger.Error("failed to get token", "token_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to get token")
		return nil, false
	}

	if !gate.IsAdminFromContext(r.Context()) && t.OwnerID != requesterID {
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "only the owner or an admin may view this token")
		return nil, false
	}

	return t, true
}
