package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"

	"blog-serverless/internal/auth"
	"blog-serverless/internal/observability"
)

// CleanupHandler sweeps refresh-token slots whose JWT has expired. Expired
// tokens already fail verification lazily; the sweep keeps dead sessions from
// lingering in the users table. Guarded by a bearer cron secret.
type CleanupHandler struct {
	service    *auth.Service
	logger     *observability.Logger
	cronSecret string
	batchSize  int
}

func NewCleanupHandler(service *auth.Service, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		service:    service,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cleared, err := h.service.SweepExpiredSessions(r.Context(), h.batchSize)
	if err != nil {
		h.logger.Error("session_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("session_cleanup_completed", map[string]any{
		"cleared_sessions": cleared,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"cleared_sessions": cleared,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
