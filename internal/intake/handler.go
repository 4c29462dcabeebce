package intake

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/medrx/telehealth-platform/internal/patients"
	"github.com/medrx/telehealth-platform/pkg/logging"
)

// Handler exposes the intake endpoints.
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

// SubmitRequest is the POST body for a completed intake form.
type SubmitRequest struct {
	PatientID     string          `json:"patientId"`
	AppointmentID string          `json:"appointmentId,omitempty"`
	Questionnaire json.RawMessage `json:"questionnaire"`
}

// Submit handles POST /api/intake/submit requests
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := h.service.Submit(r.Context(), req.PatientID, req.AppointmentID, req.Questionnaire)
	if err != nil {
		switch {
		case errors.Is(err, ErrPatientRequired):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, patients.ErrPatientNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			h.logger.Error("failed to submit intake", "error", err)
			http.Error(w, "failed to submit intake", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sub)
}

// ConsentsRequest is the POST body for signed consents.
type ConsentsRequest struct {
	SubmissionID string          `json:"submissionId"`
	Consents     json.RawMessage `json:"consents"`
}

// Consents handles POST /api/intake/consents requests
func (h *Handler) Consents(w http.ResponseWriter, r *http.Request) {
	var req ConsentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SubmissionID == "" {
		http.Error(w, "missing submissionId", http.StatusBadRequest)
		return
	}

	sub, err := h.service.Consents(r.Context(), req.SubmissionID, req.Consents)
	if err != nil {
		if errors.Is(err, ErrSubmissionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("failed to record consents", "error", err)
		http.Error(w, "failed to record consents", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}

// TranscriptRequest is the POST body for voice-intake processing.
type TranscriptRequest struct {
	SubmissionID string `json:"submissionId"`
	Transcript   string `json:"transcript"`
}

// ProcessTranscript handles POST /api/voice/process-transcript requests
func (h *Handler) ProcessTranscript(w http.ResponseWriter, r *http.Request) {
	var req TranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SubmissionID == "" {
		http.Error(w, "missing submissionId", http.StatusBadRequest)
		return
	}

	sub, err := h.service.ProcessTranscript(r.Context(), req.SubmissionID, req.Transcript)
	if err != nil {
		switch {
		case errors.Is(err, ErrVoiceIntakeDisabled):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		case errors.Is(err, ErrEmptyTranscript):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrSubmissionNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			h.logger.Error("failed to process transcript", "error", err)
			http.Error(w, "failed to process transcript", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}
