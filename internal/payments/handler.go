package payments

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medrx/telehealth-platform/internal/booking"
	"github.com/medrx/telehealth-platform/pkg/logging"
)

// Handler exposes checkout session endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// CreateSessionRequest is the POST body for opening a checkout session.
type CreateSessionRequest struct {
	AppointmentID string `json:"appointmentId"`
}

// CreateSession handles POST /api/payments/checkout/session requests
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.AppointmentID == "" {
		http.Error(w, "missing appointmentId", http.StatusBadRequest)
		return
	}

	session, err := h.service.CreateSession(r.Context(), req.AppointmentID)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrAppointmentNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrNotPayable):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("failed to create checkout session",
				"error", err, "appointment_id", req.AppointmentID)
			http.Error(w, "failed to create checkout session", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

// Status handles GET /api/payments/checkout/status/{sessionID} requests
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	session, err := h.service.Status(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("failed to fetch checkout status", "error", err, "session_id", sessionID)
		http.Error(w, "failed to fetch checkout status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}
