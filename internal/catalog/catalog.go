package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Catalog computes the bookable time grid per practitioner from working-hour
// templates and blackout days. It holds no mutable state of its own; all
// reads go through the Directory.
type Catalog struct {
	dir Directory
}

func New(dir Directory) *Catalog {
	return &Catalog{dir: dir}
}

func (c *Catalog) Directory() Directory {
	return c.dir
}

// GenerateSlots returns the ordered candidate slots for a practitioner over
// the inclusive day range [from, to]. Blackout days produce no slots. The
// result is deterministic for fixed directory contents.
func (c *Catalog) GenerateSlots(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	fromDay := dayOf(from)
	toDay := dayOf(to)
	if toDay.Before(fromDay) {
		return nil, fmt.Errorf("%w: %s before %s", ErrInvalidRange, toDay.Format("2006-01-02"), fromDay.Format("2006-01-02"))
	}

	p, err := c.dir.GetPractitioner(ctx, practitionerID)
	if err != nil {
		return nil, err
	}

	blackouts, err := c.dir.ListBlackoutDays(ctx, practitionerID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("list blackout days: %w", err)
	}
	closed := make(map[time.Time]struct{}, len(blackouts))
	for _, d := range blackouts {
		closed[dayOf(d)] = struct{}{}
	}

	var slots []Slot
	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		if _, ok := closed[day]; ok {
			continue
		}
		hours, ok := p.Hours[day.Weekday()]
		if !ok {
			continue
		}
		slots = append(slots, daySlots(p.ID, day, hours)...)
	}
	return slots, nil
}

// ResolveSpan maps a requested start time and treatment onto the minimum run
// of contiguous slots covering the treatment's duration. The start must sit
// exactly on the practitioner's grid; the whole run must fit inside that
// day's working hours and the day must not be blacked out.
func (c *Catalog) ResolveSpan(ctx context.Context, practitionerID uuid.UUID, start time.Time, treatment Treatment) ([]Slot, error) {
	start = start.UTC()
	day := dayOf(start)

	p, err := c.dir.GetPractitioner(ctx, practitionerID)
	if err != nil {
		return nil, err
	}

	hours, ok := p.Hours[day.Weekday()]
	if !ok {
		return nil, fmt.Errorf("%w: no working hours on %s", ErrInvalidRange, day.Weekday())
	}

	minuteOfDay := start.Hour()*60 + start.Minute()
	if start.Second() != 0 || start.Nanosecond() != 0 ||
		minuteOfDay < hours.StartMinute ||
		(minuteOfDay-hours.StartMinute)%hours.SlotMinutes != 0 {
		return nil, fmt.Errorf("%w: start %s is not on the booking grid", ErrInvalidRange, start.Format(time.RFC3339))
	}

	count := treatment.SlotCount(hours.SlotMinutes)
	if count == 0 {
		return nil, fmt.Errorf("%w: treatment %s has no duration", ErrInvalidRange, treatment.Code)
	}
	if minuteOfDay+count*hours.SlotMinutes > hours.EndMinute {
		return nil, fmt.Errorf("%w: treatment %s does not fit before end of day", ErrInvalidRange, treatment.Code)
	}

	blackouts, err := c.dir.ListBlackoutDays(ctx, practitionerID, day, day)
	if err != nil {
		return nil, fmt.Errorf("list blackout days: %w", err)
	}
	if len(blackouts) > 0 {
		return nil, fmt.Errorf("%w: %s is a blackout day", ErrInvalidRange, day.Format("2006-01-02"))
	}

	slots := make([]Slot, 0, count)
	step := time.Duration(hours.SlotMinutes) * time.Minute
	for i := 0; i < count; i++ {
		s := start.Add(time.Duration(i) * step)
		slots = append(slots, Slot{PractitionerID: p.ID, Start: s, End: s.Add(step)})
	}
	return slots, nil
}

func daySlots(practitionerID uuid.UUID, day time.Time, hours DayHours) []Slot {
	if hours.SlotMinutes <= 0 || hours.EndMinute <= hours.StartMinute {
		return nil
	}
	var slots []Slot
	for m := hours.StartMinute; m+hours.SlotMinutes <= hours.EndMinute; m += hours.SlotMinutes {
		start := day.Add(time.Duration(m) * time.Minute)
		slots = append(slots, Slot{
			PractitionerID: practitionerID,
			Start:          start,
			End:            start.Add(time.Duration(hours.SlotMinutes) * time.Minute),
		})
	}
	return slots
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
