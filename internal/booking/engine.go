package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayursutra/booking-engine/internal/catalog"
	"github.com/ayursutra/booking-engine/internal/clock"
	"github.com/ayursutra/booking-engine/internal/config"
	"github.com/ayursutra/booking-engine/internal/notify"
	redisclient "github.com/ayursutra/booking-engine/internal/redis"
)

// claimRetries bounds retries of the atomic claim on transient storage
// failures. Domain conflicts are never retried.
const claimRetries = 3

// Engine enforces the reservation state machine. Callers never mutate
// reservations directly; every transition goes through the store's atomic
// operations.
type Engine struct {
	store   Store
	catalog *catalog.Catalog
	locker  redisclient.Locker
	gateway notify.Gateway
	clock   clock.Clock
	cfg     config.Config
	log     zerolog.Logger
}

func NewEngine(store Store, cat *catalog.Catalog, locker redisclient.Locker, gateway notify.Gateway, clk clock.Clock, cfg config.Config, log zerolog.Logger) *Engine {
	return &Engine{
		store:   store,
		catalog: cat,
		locker:  locker,
		gateway: gateway,
		clock:   clk,
		cfg:     cfg,
		log:     log,
	}
}

type BookInput struct {
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	Start          time.Time
	TreatmentCode  string
}

// Book places a pending hold over the minimum run of contiguous slots
// covering the treatment, starting at in.Start. Exactly one of any number of
// concurrent calls for the same slot wins; the rest get ErrSlotUnavailable.
func (e *Engine) Book(ctx context.Context, in BookInput) (*Reservation, error) {
	if _, err := e.catalog.Directory().GetPatient(ctx, in.PatientID); err != nil {
		return nil, err
	}
	treatment, err := e.catalog.Directory().GetTreatment(ctx, in.TreatmentCode)
	if err != nil {
		return nil, err
	}

	slots, err := e.catalog.ResolveSpan(ctx, in.PractitionerID, in.Start, *treatment)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	if !slots[0].Bookable(now) {
		return nil, fmt.Errorf("%w: starts at %s", ErrSlotNotBookable, slots[0].Start.Format(time.RFC3339))
	}

	created, err := e.claimSpan(ctx, ClaimInput{
		PatientID:      in.PatientID,
		PractitionerID: in.PractitionerID,
		TreatmentCode:  in.TreatmentCode,
		Slots:          slots,
		Now:            now,
		HoldTTL:        e.cfg.HoldTTL,
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, notify.EventReservationHeld, created, nil)
	return created, nil
}

// ConfirmBooking moves a pending reservation to confirmed.
func (e *Engine) ConfirmBooking(ctx context.Context, id uuid.UUID, version int64) (*Reservation, error) {
	r, err := e.store.Confirm(ctx, id, version, e.clock.Now())
	if err != nil {
		return nil, err
	}
	e.publish(ctx, notify.EventBookingConfirmed, r, nil)
	return r, nil
}

// CancelBooking cancels a pending or confirmed reservation. Staff-initiated
// cancellations bypass the cutoff window.
func (e *Engine) CancelBooking(ctx context.Context, id uuid.UUID, version int64, initiator Initiator) (*Reservation, error) {
	r, err := e.store.Cancel(ctx, id, version, e.clock.Now(), initiator == InitiatorStaff)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, notify.EventBookingCancelled, r, map[string]string{"initiator": string(initiator)})
	return r, nil
}

type RescheduleInput struct {
	ReservationID uuid.UUID
	Version       int64
	NewStart      time.Time
	Initiator     Initiator
}

// Reschedule moves an active reservation to a new start time. The new slots
// are claimed first; only then is the old reservation cancelled, so a failed
// claim leaves the original untouched. If cancelling the old reservation
// fails, the fresh claim is cancelled again as compensation; should even
// that fail, the fresh hold is still pending and lapses with the expiry
// sweep, so the patient never silently keeps two live bookings.
func (e *Engine) Reschedule(ctx context.Context, in RescheduleInput) (*Reservation, error) {
	old, err := e.store.Get(ctx, in.ReservationID)
	if err != nil {
		return nil, err
	}
	if !old.Active() {
		return nil, ErrInvalidTransition
	}
	if old.Version != in.Version {
		return nil, ErrVersionConflict
	}

	treatment, err := e.catalog.Directory().GetTreatment(ctx, old.TreatmentCode)
	if err != nil {
		return nil, err
	}
	slots, err := e.catalog.ResolveSpan(ctx, old.PractitionerID, in.NewStart, *treatment)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	if !slots[0].Bookable(now) {
		return nil, fmt.Errorf("%w: starts at %s", ErrSlotNotBookable, slots[0].Start.Format(time.RFC3339))
	}

	fresh, err := e.claimSpan(ctx, ClaimInput{
		PatientID:      old.PatientID,
		PractitionerID: old.PractitionerID,
		TreatmentCode:  old.TreatmentCode,
		Slots:          slots,
		Now:            now,
		HoldTTL:        e.cfg.HoldTTL,
	})
	if err != nil {
		return nil, err
	}

	if _, err := e.store.Cancel(ctx, old.ID, in.Version, now, in.Initiator == InitiatorStaff); err != nil {
		if _, cErr := e.store.Cancel(ctx, fresh.ID, fresh.Version, now, true); cErr != nil {
			e.log.Error().Err(cErr).
				Str("reservation_id", fresh.ID.String()).
				Msg("compensating cancel failed; hold will lapse with the expiry sweep")
		}
		return nil, err
	}

	// The patient already passed the confirmation step once; carry the
	// confirmed status over to the new reservation.
	if old.Status == StatusConfirmed {
		confirmed, cErr := e.store.Confirm(ctx, fresh.ID, fresh.Version, now)
		if cErr != nil {
			e.log.Error().Err(cErr).
				Str("reservation_id", fresh.ID.String()).
				Msg("confirm after reschedule failed; reservation left pending")
		} else {
			fresh = confirmed
		}
	}

	e.publish(ctx, notify.EventBookingRescheduled, fresh, map[string]string{
		"previous_reservation_id": old.ID.String(),
		"initiator":               string(in.Initiator),
	})
	return fresh, nil
}

// Availability returns the practitioner's free, still-bookable slots over
// the inclusive day range [from, to].
func (e *Engine) Availability(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]catalog.Slot, error) {
	slots, err := e.catalog.GenerateSlots(ctx, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}

	claimed, err := e.store.ActiveSlotKeys(ctx, practitionerID, slots[0].Start, slots[len(slots)-1].End)
	if err != nil {
		return nil, fmt.Errorf("load claimed slot keys: %w", err)
	}

	now := e.clock.Now()
	free := make([]catalog.Slot, 0, len(slots))
	for _, s := range slots {
		if !s.Bookable(now) {
			continue
		}
		if _, held := claimed[s.Key().String()]; held {
			continue
		}
		free = append(free, s)
	}
	return free, nil
}

func (e *Engine) GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	return e.store.Get(ctx, id)
}

func (e *Engine) ListReservationsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Reservation, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return e.store.ListByPatient(ctx, patientID, limit, offset)
}

// ExpireStalePending is called periodically by the sweep worker. Safe to run
// from concurrent workers; each transition is status-guarded in the store.
func (e *Engine) ExpireStalePending(ctx context.Context) (int, error) {
	expired, err := e.store.ExpireStalePending(ctx, e.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("expire stale pending: %w", err)
	}
	for i := range expired {
		e.publish(ctx, notify.EventReservationExpired, &expired[i], nil)
	}
	return len(expired), nil
}

// CompletePast moves confirmed reservations whose end time has passed to
// completed. Companion sweep to ExpireStalePending.
func (e *Engine) CompletePast(ctx context.Context) (int, error) {
	completed, err := e.store.CompletePast(ctx, e.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("complete past: %w", err)
	}
	for i := range completed {
		e.publish(ctx, notify.EventBookingCompleted, &completed[i], nil)
	}
	return len(completed), nil
}

// claimSpan runs the atomic claim under the per-slot lock, retrying only
// transient storage failures. Multi-slot claims lock the earliest key; the
// store's atomicity covers the rest of the run.
func (e *Engine) claimSpan(ctx context.Context, in ClaimInput) (*Reservation, error) {
	var created *Reservation

	err := e.locker.WithSlotLock(ctx, in.Slots[0].Key().String(), func(lockCtx context.Context) error {
		op := func() error {
			r, err := e.store.TryClaim(lockCtx, in)
			if err != nil {
				if errors.Is(err, ErrSlotUnavailable) {
					return backoff.Permanent(err)
				}
				return err
			}
			created = r
			return nil
		}
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), claimRetries), lockCtx)
		return backoff.Retry(op, policy)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: slot is being booked", ErrSlotUnavailable)
		}
		return nil, err
	}
	return created, nil
}

func (e *Engine) publish(ctx context.Context, eventType string, r *Reservation, details map[string]string) {
	ev := notify.Event{
		Type:           eventType,
		ReservationID:  r.ID,
		PatientID:      r.PatientID,
		PractitionerID: r.PractitionerID,
		StartTime:      r.StartTime,
		OccurredAt:     e.clock.Now(),
		Details:        details,
	}
	if err := e.gateway.Publish(ctx, ev); err != nil {
		e.log.Warn().Err(err).Str("event", eventType).Msg("publish booking event")
	}
}
