// Package intake handles pre-visit questionnaires, consent capture and
// voice-intake transcript extraction.
package intake

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrSubmissionNotFound is returned when no submission matches the id.
	ErrSubmissionNotFound = errors.New("intake submission not found")
	// ErrPatientRequired is returned when a submission has no patient.
	ErrPatientRequired = errors.New("patient id is required")
)

// Submission is one patient's completed intake package. Questionnaire and
// consent payloads stay schemaless; the clinical team reads them as-is.
type Submission struct {
	ID            string          `json:"id"`
	PatientID     string          `json:"patient_id"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	Questionnaire json.RawMessage `json:"questionnaire,omitempty"`
	Consents      json.RawMessage `json:"consents,omitempty"`
	Transcript    string          `json:"transcript,omitempty"`
	Extracted     json.RawMessage `json:"extracted,omitempty"`
	EMRSynced     bool            `json:"emr_synced"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
