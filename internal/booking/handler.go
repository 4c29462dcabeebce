package booking

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medrx/telehealth-platform/internal/subscriptions"
	"github.com/medrx/telehealth-platform/pkg/logging"
)

// Handler handles HTTP requests for appointments
type Handler struct {
	scheduler *Scheduler
	logger    *logging.Logger
}

// NewHandler creates a new appointments handler
func NewHandler(scheduler *Scheduler, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// Book handles POST /api/appointments requests
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode booking request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.scheduler.Book(r.Context(), &req)
	if err != nil {
		h.writeBookError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

func (h *Handler) writeBookError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSlotTaken):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, subscriptions.ErrLimitExceeded):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, subscriptions.ErrNoActiveSubscription),
		errors.Is(err, ErrInvalidService):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case isValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("failed to book appointment", "error", err)
		http.Error(w, "failed to book appointment", http.StatusInternalServerError)
	}
}

// ListAppointmentsResponse is the response for listing a patient's appointments
type ListAppointmentsResponse struct {
	Appointments []*Appointment `json:"appointments"`
	Count        int            `json:"count"`
}

// ListByEmail handles GET /api/appointments?email= requests
func (h *Handler) ListByEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		http.Error(w, "missing email", http.StatusBadRequest)
		return
	}

	appts, err := h.scheduler.ListByEmail(r.Context(), email)
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListAppointmentsResponse{
		Appointments: appts,
		Count:        len(appts),
	})
}

// Get handles GET /api/appointments/{appointmentID} requests
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appointmentID")
	if id == "" {
		http.Error(w, "missing appointment id", http.StatusBadRequest)
		return
	}

	appt, err := h.scheduler.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get appointment", "error", err, "appointment_id", id)
		http.Error(w, "failed to get appointment", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appt)
}

// UpdateRequest is the PATCH body for appointment updates.
type UpdateRequest struct {
	Status *string `json:"status,omitempty"`
	Date   *string `json:"date,omitempty"`
	Time   *string `json:"time,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

// Update handles PATCH /api/appointments/{appointmentID} requests
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appointmentID")
	if id == "" {
		http.Error(w, "missing appointment id", http.StatusBadRequest)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	patch := UpdatePatch{Date: req.Date, Time: req.Time, Notes: req.Notes}
	if req.Status != nil {
		status := Status(*req.Status)
		if !status.Valid() {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		patch.Status = &status
	}

	appt, err := h.scheduler.Update(r.Context(), id, patch)
	if err != nil {
		switch {
		case errors.Is(err, ErrAppointmentNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrSlotTaken):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("failed to update appointment", "error", err, "appointment_id", id)
			http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appt)
}

func isValidationError(err error) bool {
	for _, v := range []error{
		ErrMissingName, ErrMissingEmail, ErrMissingPhone,
		ErrMissingService, ErrMissingSlot, ErrMissingTimezone,
		ErrInvalidServiceKind,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
