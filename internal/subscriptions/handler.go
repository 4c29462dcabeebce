package subscriptions

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/medrx/telehealth-platform/internal/patients"
	"github.com/medrx/telehealth-platform/pkg/logging"
)

// Handler handles HTTP requests for subscriptions
type Handler struct {
	ledger   *Ledger
	patients patients.Repository
	logger   *logging.Logger
}

// NewHandler creates a new subscriptions handler
func NewHandler(ledger *Ledger, patientsRepo patients.Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{ledger: ledger, patients: patientsRepo, logger: logger}
}

// CreateSubscriptionRequest is the request body for creating a subscription.
type CreateSubscriptionRequest struct {
	Email  string `json:"email"`
	PlanID string `json:"planId"`
}

// UpdateSubscriptionRequest is the request body for PATCH.
type UpdateSubscriptionRequest struct {
	Status string `json:"status,omitempty"`
	PlanID string `json:"planId,omitempty"`
}

// Create handles POST /api/subscriptions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.PlanID) == "" {
		http.Error(w, "email and planId are required", http.StatusBadRequest)
		return
	}

	patient, err := h.patients.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, patients.ErrPatientNotFound) {
			http.Error(w, "patient not found; book a visit or provide profile details first", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to load patient", "error", err)
		http.Error(w, "failed to create subscription", http.StatusInternalServerError)
		return
	}

	sub, err := h.ledger.Create(r.Context(), patient.ID, req.PlanID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPlan):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrAlreadySubscribed):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("failed to create subscription", "error", err)
			http.Error(w, "failed to create subscription", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sub)
}

// GetByEmail handles GET /api/subscriptions/email/{email}. A patient with no
// active subscription gets a null body, not an error.
func (h *Handler) GetByEmail(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	w.Header().Set("Content-Type", "application/json")

	patient, err := h.patients.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, patients.ErrPatientNotFound) {
			json.NewEncoder(w).Encode(map[string]any{"subscription": nil})
			return
		}
		h.logger.Error("failed to load patient", "error", err)
		http.Error(w, "failed to load subscription", http.StatusInternalServerError)
		return
	}

	sub, err := h.ledger.GetActive(r.Context(), patient.ID)
	if err != nil {
		if errors.Is(err, ErrNoActiveSubscription) {
			json.NewEncoder(w).Encode(map[string]any{"subscription": nil})
			return
		}
		h.logger.Error("failed to load subscription", "error", err)
		http.Error(w, "failed to load subscription", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{"subscription": sub})
}

// Update handles PATCH /api/subscriptions/{id}: plan change and/or a
// lifecycle transition.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriptionID")

	var req UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Status == "" && req.PlanID == "" {
		http.Error(w, "nothing to update", http.StatusBadRequest)
		return
	}
	if req.Status != "" && !Status(req.Status).Valid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	var (
		sub *Subscription
		err error
	)
	if req.PlanID != "" {
		sub, err = h.ledger.ChangePlan(r.Context(), id, req.PlanID)
		if err != nil {
			h.writeUpdateError(w, err)
			return
		}
	}
	if req.Status != "" {
		sub, err = h.ledger.SetStatus(r.Context(), id, Status(req.Status))
		if err != nil {
			h.writeUpdateError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}

// Usage handles GET /api/subscriptions/{id}/usage.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriptionID")

	usage, err := h.ledger.Usage(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load usage", "error", err, "subscription_id", id)
		http.Error(w, "failed to load usage", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"usage": usage})
}

func (h *Handler) writeUpdateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidPlan):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrAlreadySubscribed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("failed to update subscription", "error", err)
		http.Error(w, "failed to update subscription", http.StatusInternalServerError)
	}
}
