package payments

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medrx/telehealth-platform/pkg/logging"
)

// FakeHandler completes fake checkout sessions in dev/demo environments.
// Mounted only when ALLOW_FAKE_PAYMENTS is set.
type FakeHandler struct {
	service *Service
	logger  *logging.Logger
}

func NewFakeHandler(service *Service, logger *logging.Logger) *FakeHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeHandler{service: service, logger: logger}
}

// Complete handles POST /payments/fake/{appointmentID}/complete requests
func (h *FakeHandler) Complete(w http.ResponseWriter, r *http.Request) {
	appointmentID := chi.URLParam(r, "appointmentID")
	if appointmentID == "" {
		http.Error(w, "missing appointment id", http.StatusBadRequest)
		return
	}

	session, err := h.service.repo.GetOpenByAppointment(r.Context(), appointmentID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "no open session for appointment", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	settled, err := h.service.Settle(r.Context(), session.ProviderSessionID, SessionCompleted, session.AmountCents)
	if err != nil {
		h.logger.Error("fake completion failed", "error", err, "appointment_id", appointmentID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.logger.Warn("fake payment completed", "appointment_id", appointmentID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settled)
}
