package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/ayursutra/booking-engine/internal/catalog"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusCompleted Status = "completed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusExpired, StatusCompleted:
		return true
	}
	return false
}

// Initiator distinguishes patient-driven cancellations, which are subject to
// the cutoff window, from staff-driven ones, which bypass it.
type Initiator string

const (
	InitiatorPatient Initiator = "patient"
	InitiatorStaff   Initiator = "staff"
)

// Reservation is the persisted booking entity. A reservation spans one or
// more contiguous slots on a single practitioner's grid; while it is active
// (pending or confirmed) it owns every one of its slot keys.
type Reservation struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	TreatmentCode  string
	SlotKeys       []catalog.SlotKey
	Status         Status
	StartTime      time.Time
	EndTime        time.Time
	// Version increments on every mutation; callers present it back for
	// optimistic-concurrency checks.
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
	ConfirmedAt *time.Time
	CancelledAt *time.Time
}

// Active reports whether the reservation currently blocks its slot keys.
func (r *Reservation) Active() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}

func (r *Reservation) clone() *Reservation {
	c := *r
	c.SlotKeys = append([]catalog.SlotKey(nil), r.SlotKeys...)
	if r.ConfirmedAt != nil {
		t := *r.ConfirmedAt
		c.ConfirmedAt = &t
	}
	if r.CancelledAt != nil {
		t := *r.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}
