package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-memory Directory, used in tests and by the seed
// tool before data reaches Postgres.
type MemoryDirectory struct {
	mu            sync.RWMutex
	practitioners map[uuid.UUID]Practitioner
	patients      map[uuid.UUID]Patient
	treatments    map[string]Treatment
	// blackouts maps midnight-UTC day -> practitioner IDs closed that day;
	// uuid.Nil marks a clinic-wide closure.
	blackouts map[time.Time]map[uuid.UUID]struct{}
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		practitioners: make(map[uuid.UUID]Practitioner),
		patients:      make(map[uuid.UUID]Patient),
		treatments:    make(map[string]Treatment),
		blackouts:     make(map[time.Time]map[uuid.UUID]struct{}),
	}
}

func (d *MemoryDirectory) AddPractitioner(p Practitioner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.practitioners[p.ID] = p
}

func (d *MemoryDirectory) AddPatient(p Patient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[p.ID] = p
}

func (d *MemoryDirectory) AddTreatment(t Treatment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.treatments[t.Code] = t
}

// AddBlackout closes a day for one practitioner, or clinic-wide when
// practitionerID is uuid.Nil.
func (d *MemoryDirectory) AddBlackout(practitionerID uuid.UUID, day time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := dayOf(day)
	if d.blackouts[k] == nil {
		d.blackouts[k] = make(map[uuid.UUID]struct{})
	}
	d.blackouts[k][practitionerID] = struct{}{}
}

func (d *MemoryDirectory) GetPractitioner(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	return &p, nil
}

func (d *MemoryDirectory) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (d *MemoryDirectory) GetTreatment(_ context.Context, code string) (*Treatment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.treatments[code]
	if !ok {
		return nil, ErrTreatmentNotFound
	}
	return &t, nil
}

func (d *MemoryDirectory) ListBlackoutDays(_ context.Context, practitionerID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var days []time.Time
	for day := dayOf(from); !day.After(dayOf(to)); day = day.AddDate(0, 0, 1) {
		ids, ok := d.blackouts[day]
		if !ok {
			continue
		}
		if _, closed := ids[practitionerID]; closed {
			days = append(days, day)
			continue
		}
		if _, closed := ids[uuid.Nil]; closed {
			days = append(days, day)
		}
	}
	return days, nil
}

// DefaultTreatments is the clinic's standard treatment list.
func DefaultTreatments() []Treatment {
	return []Treatment{
		{Code: "abhyanga", Name: "Abhyanga (Full Body Massage)", Duration: 60 * time.Minute, Cost: 2500},
		{Code: "shirodhara", Name: "Shirodhara (Oil Pouring)", Duration: 45 * time.Minute, Cost: 3000},
		{Code: "panchakarma", Name: "Panchakarma Package", Duration: 90 * time.Minute, Cost: 5000},
		{Code: "nasya", Name: "Nasya (Nasal Therapy)", Duration: 30 * time.Minute, Cost: 1500},
		{Code: "basti", Name: "Basti (Medicated Enema)", Duration: 45 * time.Minute, Cost: 2000},
	}
}
