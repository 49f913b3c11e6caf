package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayursutra/booking-engine/internal/catalog"
)

// MemoryStore is an in-process Store guarded by a single mutex. It backs
// tests and local development; the Postgres store is the production one.
type MemoryStore struct {
	mu     sync.Mutex
	cutoff time.Duration

	byID map[uuid.UUID]*Reservation
	// active maps a canonical slot key to the reservation currently
	// holding it. Entries exist only for pending/confirmed reservations.
	active map[string]uuid.UUID
}

func NewMemoryStore(cancellationCutoff time.Duration) *MemoryStore {
	return &MemoryStore{
		cutoff: cancellationCutoff,
		byID:   make(map[uuid.UUID]*Reservation),
		active: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) TryClaim(_ context.Context, in ClaimInput) (*Reservation, error) {
	if len(in.Slots) == 0 {
		return nil, ErrSlotUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range in.Slots {
		if _, held := s.active[slot.Key().String()]; held {
			return nil, ErrSlotUnavailable
		}
	}

	keys := make([]catalog.SlotKey, 0, len(in.Slots))
	for _, slot := range in.Slots {
		keys = append(keys, slot.Key())
	}

	r := &Reservation{
		ID:             uuid.New(),
		PatientID:      in.PatientID,
		PractitionerID: in.PractitionerID,
		TreatmentCode:  in.TreatmentCode,
		SlotKeys:       keys,
		Status:         StatusPending,
		StartTime:      in.Slots[0].Start,
		EndTime:        in.Slots[len(in.Slots)-1].End,
		Version:        1,
		CreatedAt:      in.Now,
		UpdatedAt:      in.Now,
		ExpiresAt:      in.Now.Add(in.HoldTTL),
	}
	s.byID[r.ID] = r
	for _, k := range keys {
		s.active[k.String()] = r.ID
	}
	return r.clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	return r.clone(), nil
}

func (s *MemoryStore) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*Reservation
	for _, r := range s.byID {
		if r.PatientID == patientID {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.Before(all[j].StartTime) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	out := make([]Reservation, 0, len(all))
	for _, r := range all {
		out = append(out, *r.clone())
	}
	return out, nil
}

func (s *MemoryStore) ActiveSlotKeys(_ context.Context, practitionerID uuid.UUID, from, to time.Time) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[string]struct{})
	for _, id := range s.active {
		r := s.byID[id]
		if r.PractitionerID != practitionerID {
			continue
		}
		for _, k := range r.SlotKeys {
			if !k.Start.Before(from) && k.Start.Before(to) {
				keys[k.String()] = struct{}{}
			}
		}
	}
	return keys, nil
}

func (s *MemoryStore) Confirm(_ context.Context, id uuid.UUID, expectedVersion int64, at time.Time) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	if r.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	if r.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	if r.ExpiresAt.Before(at) {
		// The sweep has not caught it yet; settle it here.
		s.transitionLocked(r, StatusExpired, at)
		return nil, ErrHoldExpired
	}

	s.transitionLocked(r, StatusConfirmed, at)
	confirmed := at
	r.ConfirmedAt = &confirmed
	return r.clone(), nil
}

func (s *MemoryStore) Cancel(_ context.Context, id uuid.UUID, expectedVersion int64, at time.Time, bypassCutoff bool) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	if !r.Active() {
		return nil, ErrInvalidTransition
	}
	if r.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	if r.Status == StatusConfirmed && !bypassCutoff && r.StartTime.Sub(at) < s.cutoff {
		return nil, ErrCutoffViolation
	}

	s.transitionLocked(r, StatusCancelled, at)
	cancelled := at
	r.CancelledAt = &cancelled
	return r.clone(), nil
}

func (s *MemoryStore) ExpireStalePending(_ context.Context, at time.Time) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Reservation
	for _, r := range s.byID {
		if r.Status == StatusPending && r.ExpiresAt.Before(at) {
			s.transitionLocked(r, StatusExpired, at)
			expired = append(expired, *r.clone())
		}
	}
	return expired, nil
}

func (s *MemoryStore) CompletePast(_ context.Context, at time.Time) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completed []Reservation
	for _, r := range s.byID {
		if r.Status == StatusConfirmed && !r.EndTime.After(at) {
			s.transitionLocked(r, StatusCompleted, at)
			completed = append(completed, *r.clone())
		}
	}
	return completed, nil
}

// transitionLocked applies a status change and, for terminal states, frees
// the reservation's slot keys. Caller holds the mutex.
func (s *MemoryStore) transitionLocked(r *Reservation, to Status, at time.Time) {
	r.Status = to
	r.Version++
	r.UpdatedAt = at
	if to.Terminal() {
		for _, k := range r.SlotKeys {
			if s.active[k.String()] == r.ID {
				delete(s.active, k.String())
			}
		}
	}
}
