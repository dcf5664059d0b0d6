package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// SetLogLevelRequest is the body for the log level endpoint.
type SetLogLevelRequest struct {
	Level string `json:"level"`
}

// HandleSetLogLevel changes the runtime log level.
// POST /dashboard/api/loglevel
// Body: {"level": "debug|info|warn|error"}
func (h *Handler) HandleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req SetLogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	var level slog.Level
	switch req.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "level must be one of: debug, info, warn, error")
		return
	}

	h.logLevel.Set(level)
	h.logger.Info("log level changed", "new_level", req.Level)

	WriteJSON(w, http.StatusOK, map[string]string{"level": req.Level})
}
