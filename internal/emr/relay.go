// Package emr pushes patient demographics and intake notes into the
// practice's EMR. The relay is a best-effort collaborator; callers never
// fail a core operation on an EMR error.
package emr

import (
	"context"

	"github.com/medrx/telehealth-platform/pkg/logging"
)

// PatientRecord is the demographic slice synced into the EMR, plus an
// optional free-text clinical note.
type PatientRecord struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	DateOfBirth string
	Gender      string
	Address     string
	Note        string
}

// Relay syncs a patient into the EMR.
type Relay interface {
	SyncPatient(ctx context.Context, rec PatientRecord) error
}

// NopRelay is used when no EMR is connected.
type NopRelay struct {
	logger *logging.Logger
}

func NewNopRelay(logger *logging.Logger) *NopRelay {
	if logger == nil {
		logger = logging.Default()
	}
	return &NopRelay{logger: logger}
}

func (r *NopRelay) SyncPatient(ctx context.Context, rec PatientRecord) error {
	r.logger.Debug("emr relay disabled, skipping patient sync", "email", rec.Email)
	return nil
}

var _ Relay = (*NopRelay)(nil)
