package admin

import (
	"github.com/go-chi/chi/v5"
)

// Routes returns the dashboard API routes, mounted under /dashboard/api.
// The gate middleware upstream decides reachability; handlers enforce
// owner/admin rules on top of that.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/whoami", h.HandleWhoami)

	// Token management
	r.Get("/tokens", h.HandleListTokens)
	r.Post("/tokens", h.HandleCreateToken)
	r.Get("/tokens/{id}", h.HandleGetToken)
	r.Get("/tokens/{id}/image", h.HandleTokenImage)
	r.Delete("/tokens/{id}", h.HandleDeleteToken)

	// Account management (admin only)
	r.Post("/accounts", h.HandleCreateAccount)
	r.Post("/accounts/{id}/block", h.HandleBlockAccount)
	r.Post("/accounts/{id}/unblock", h.HandleUnblockAccount)
	r.Post("/accounts/{id}/freeze", h.HandleFreezeAccount)
	r.Post("/accounts/{id}/unfreeze", h.HandleUnfreezeAccount)

	// IP block management (admin only)
	r.Post("/ips/block", h.HandleBlockIP)
	r.Post("/ips/unblock", h.HandleUnblockIP)

	// Runtime log level (admin only)
	r.Post("/loglevel", h.HandleSetLogLevel)

	return r
}
