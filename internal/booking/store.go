package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ayursutra/booking-engine/internal/catalog"
)

// ClaimInput carries everything the store needs to create one pending
// reservation over a run of contiguous slots.
type ClaimInput struct {
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	TreatmentCode  string
	Slots          []catalog.Slot
	Now            time.Time
	HoldTTL        time.Duration
}

// Store is the authoritative reservation state. All mutations are atomic and
// status-guarded: a transition observed by one caller is immediately visible
// to every other, and no caller can claim a slot key another active
// reservation holds.
type Store interface {
	// TryClaim atomically checks that none of the input's slot keys is
	// held by an active reservation and inserts one pending reservation
	// covering all of them. Partial claims are never observable; on any
	// conflict it fails with ErrSlotUnavailable and leaves nothing behind.
	TryClaim(ctx context.Context, in ClaimInput) (*Reservation, error)

	Get(ctx context.Context, id uuid.UUID) (*Reservation, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Reservation, error)

	// ActiveSlotKeys returns the slot keys held by active reservations for
	// the practitioner whose slot start falls in [from, to).
	ActiveSlotKeys(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) (map[string]struct{}, error)

	// Confirm moves pending -> confirmed, guarded by the expected version
	// and the hold deadline.
	Confirm(ctx context.Context, id uuid.UUID, expectedVersion int64, at time.Time) (*Reservation, error)

	// Cancel moves pending or confirmed -> cancelled and releases the slot
	// keys. Confirmed reservations are subject to the cancellation cutoff
	// unless bypassCutoff is set.
	Cancel(ctx context.Context, id uuid.UUID, expectedVersion int64, at time.Time, bypassCutoff bool) (*Reservation, error)

	// ExpireStalePending transitions every pending reservation whose hold
	// deadline has passed to expired, releasing its slot keys. Idempotent:
	// a reservation already moved by a racing sweep is skipped.
	ExpireStalePending(ctx context.Context, at time.Time) ([]Reservation, error)

	// CompletePast transitions confirmed reservations whose end time has
	// passed to completed. Idempotent like ExpireStalePending.
	CompletePast(ctx context.Context, at time.Time) ([]Reservation, error)
}
