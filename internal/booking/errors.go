package booking

import "errors"

var (
	// ErrSlotUnavailable means another active reservation already owns at
	// least one of the requested slot keys. Callers should re-query
	// availability rather than retry the same slot.
	ErrSlotUnavailable = errors.New("slot already reserved")

	// ErrSlotNotBookable means the requested slot has already started.
	ErrSlotNotBookable = errors.New("slot is no longer bookable")

	// ErrVersionConflict means the caller's view of the reservation is
	// stale; refetch before retrying the transition.
	ErrVersionConflict = errors.New("reservation version conflict")

	// ErrInvalidTransition means the reservation is not in a state the
	// requested transition starts from.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrHoldExpired means the pending hold window has lapsed before the
	// reservation was confirmed.
	ErrHoldExpired = errors.New("reservation hold expired")

	// ErrCutoffViolation means a patient-initiated cancellation arrived
	// inside the cutoff window before the booking starts.
	ErrCutoffViolation = errors.New("cancellation cutoff violated")

	ErrReservationNotFound = errors.New("reservation not found")
)
