package admin

import "net/http"

// HandleModulePage serves any protected dashboard page a grant or admin
// session may reach. Page content is the web layer's business; this core
// answers with the path so the gate's decision is observable.
// GET /dashboard/*
func (h *Handler) HandleModulePage(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"page": r.URL.Path,
	})
}
