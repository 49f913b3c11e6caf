package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrTreatmentNotFound    = errors.New("treatment not found")
	ErrInvalidRange         = errors.New("invalid date range")
)

// Directory is the read side the catalog computes slots from: practitioner
// templates, the treatment list, the patient registry, and blackout days.
type Directory interface {
	GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetTreatment(ctx context.Context, code string) (*Treatment, error)

	// ListBlackoutDays returns the blackout days (midnight UTC) affecting
	// the practitioner in [from, to], clinic-wide closures included.
	ListBlackoutDays(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]time.Time, error)
}
