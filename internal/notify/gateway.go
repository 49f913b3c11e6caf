package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventReservationHeld    = "RESERVATION_HELD"
	EventBookingConfirmed   = "BOOKING_CONFIRMED"
	EventBookingCancelled   = "BOOKING_CANCELLED"
	EventBookingRescheduled = "BOOKING_RESCHEDULED"
	EventReservationExpired = "RESERVATION_EXPIRED"
	EventBookingCompleted   = "BOOKING_COMPLETED"
)

// Event describes one reservation lifecycle transition for downstream
// notification channels (SMS/email senders live outside this service).
type Event struct {
	Type           string            `json:"type"`
	ReservationID  uuid.UUID         `json:"reservation_id"`
	PatientID      uuid.UUID         `json:"patient_id"`
	PractitionerID uuid.UUID         `json:"practitioner_id"`
	StartTime      time.Time         `json:"start_time"`
	OccurredAt     time.Time         `json:"occurred_at"`
	Details        map[string]string `json:"details,omitempty"`
}

// Gateway delivers lifecycle events. Delivery is fire-and-forget from the
// booking engine's perspective: failures are logged, never surfaced to the
// caller, and never retried against already-booked state.
type Gateway interface {
	Publish(ctx context.Context, ev Event) error
}
