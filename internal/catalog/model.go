package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DayHours is one weekday's working-hours template for a practitioner.
// Minutes are offsets from midnight UTC; the grid step is SlotMinutes.
type DayHours struct {
	StartMinute int
	EndMinute   int
	SlotMinutes int
}

type Practitioner struct {
	ID          uuid.UUID
	Name        string
	Specialties []string
	// Hours holds the per-weekday template. A missing weekday means the
	// practitioner does not work that day.
	Hours     map[time.Weekday]DayHours
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Treatment struct {
	Code     string
	Name     string
	Duration time.Duration
	Cost     int
}

// SlotCount reports how many contiguous slots of the given grid step the
// treatment occupies.
func (t Treatment) SlotCount(slotMinutes int) int {
	if slotMinutes <= 0 {
		return 0
	}
	mins := int(t.Duration / time.Minute)
	n := mins / slotMinutes
	if mins%slotMinutes != 0 {
		n++
	}
	return n
}

// SlotKey identifies a bookable slot: one practitioner, one grid start time.
type SlotKey struct {
	PractitionerID uuid.UUID
	Start          time.Time
}

// String returns the canonical key used for uniqueness checks and locks.
func (k SlotKey) String() string {
	return fmt.Sprintf("%s|%s", k.PractitionerID, k.Start.UTC().Format(time.RFC3339))
}

// Slot is a derived time window on a practitioner's grid. Slots are never
// stored; they are recomputed from the working-hours template.
type Slot struct {
	PractitionerID uuid.UUID
	Start          time.Time
	End            time.Time
}

func (s Slot) Key() SlotKey {
	return SlotKey{PractitionerID: s.PractitionerID, Start: s.Start}
}

// Bookable reports whether the slot can still be claimed at the given
// instant. A slot whose start has already arrived is gone.
func (s Slot) Bookable(at time.Time) bool {
	return s.Start.After(at)
}
