package emr

import (
	"encoding/json"
	"net/http"

	"github.com/medrx/telehealth-platform/pkg/logging"
)

// Handler exposes the provider-facing OAuth endpoints.
type Handler struct {
	client *DrChronoClient
	logger *logging.Logger
}

func NewHandler(client *DrChronoClient, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{client: client, logger: logger}
}

// Authorize handles GET /api/emr/auth/authorize requests
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	if !h.client.Enabled() {
		http.Error(w, "emr not configured", http.StatusServiceUnavailable)
		return
	}

	state := r.URL.Query().Get("state")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"authorization_url": h.client.AuthorizationURL(state),
	})
}

// Callback handles GET /api/emr/auth/callback requests
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	token, err := h.client.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error("emr code exchange failed", "error", err)
		http.Error(w, "failed to connect emr", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"connected":  true,
		"expires_at": token.ExpiresAt,
	})
}

// Refresh handles POST /api/emr/auth/refresh requests
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := h.client.tokens.Get(r.Context())
	if err != nil {
		http.Error(w, "emr not connected", http.StatusConflict)
		return
	}

	refreshed, err := h.client.Refresh(r.Context(), token.RefreshToken)
	if err != nil {
		h.logger.Error("emr token refresh failed", "error", err)
		http.Error(w, "failed to refresh emr token", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"connected":  true,
		"expires_at": refreshed.ExpiresAt,
	})
}
