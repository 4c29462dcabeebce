package intake

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/medrx/telehealth-platform/internal/emr"
	"github.com/medrx/telehealth-platform/internal/patients"
	"github.com/medrx/telehealth-platform/pkg/logging"
)

// ErrVoiceIntakeDisabled is returned when no extraction model is configured.
var ErrVoiceIntakeDisabled = errors.New("voice intake is not configured")

// Service runs the intake workflow: persist the submission, capture
// consents, extract voice transcripts and sync the patient into the EMR.
type Service struct {
	repo      Repository
	patients  patients.Repository
	relay     emr.Relay
	extractor *Extractor
	logger    *logging.Logger
}

// NewService wires the intake workflow. relay and extractor may be nil.
func NewService(repo Repository, patientsRepo patients.Repository, relay emr.Relay, extractor *Extractor, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:      repo,
		patients:  patientsRepo,
		relay:     relay,
		extractor: extractor,
		logger:    logger,
	}
}

// Submit persists the completed questionnaire and fires a best-effort EMR
// sync. EMR failures are logged; the submission always succeeds.
func (s *Service) Submit(ctx context.Context, patientID, appointmentID string, questionnaire json.RawMessage) (*Submission, error) {
	if patientID == "" {
		return nil, ErrPatientRequired
	}
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}

	sub := &Submission{
		ID:            uuid.New().String(),
		PatientID:     patientID,
		AppointmentID: appointmentID,
		Questionnaire: questionnaire,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("intake submitted",
		"submission_id", sub.ID, "patient_id", patientID, "appointment_id", appointmentID)

	s.syncToEMR(ctx, sub)
	return sub, nil
}

// Consents attaches the signed consent set to a submission.
func (s *Service) Consents(ctx context.Context, submissionID string, consents json.RawMessage) (*Submission, error) {
	sub, err := s.repo.SetConsents(ctx, submissionID, consents)
	if err != nil {
		return nil, err
	}
	s.logger.Info("intake consents recorded", "submission_id", submissionID)
	return sub, nil
}

// ProcessTranscript extracts structured medical history from a voice
// transcript and stores both on the submission.
func (s *Service) ProcessTranscript(ctx context.Context, submissionID, transcript string) (*Submission, error) {
	if s.extractor == nil {
		return nil, ErrVoiceIntakeDisabled
	}

	extracted, err := s.extractor.Extract(ctx, transcript)
	if err != nil {
		return nil, err
	}

	sub, err := s.repo.SetExtraction(ctx, submissionID, transcript, extracted)
	if err != nil {
		return nil, err
	}
	s.logger.Info("voice intake extracted", "submission_id", submissionID)
	return sub, nil
}

// Get returns a submission by id.
func (s *Service) Get(ctx context.Context, submissionID string) (*Submission, error) {
	return s.repo.GetByID(ctx, submissionID)
}

func (s *Service) syncToEMR(ctx context.Context, sub *Submission) {
	if s.relay == nil {
		return
	}
	patient, err := s.patients.GetByID(ctx, sub.PatientID)
	if err != nil {
		s.logger.Error("emr sync skipped, patient lookup failed",
			"error", err, "submission_id", sub.ID)
		return
	}

	first, last := splitName(patient.Name)
	rec := emr.PatientRecord{
		FirstName: first,
		LastName:  last,
		Email:     patient.Email,
		Phone:     patient.Phone,
		Address:   patient.Address,
		Note:      string(sub.Questionnaire),
	}
	if err := s.relay.SyncPatient(ctx, rec); err != nil {
		s.logger.Error("emr sync failed", "error", err, "submission_id", sub.ID)
		return
	}
	if err := s.repo.MarkEMRSynced(ctx, sub.ID); err != nil {
		s.logger.Error("failed to record emr sync", "error", err, "submission_id", sub.ID)
		return
	}
	sub.EMRSynced = true
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
