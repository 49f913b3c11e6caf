package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgDirectory reads practitioner templates, treatments, patients and
// blackout days from Postgres.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	var p Practitioner
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, specialties, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Specialties, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, fmt.Errorf("get practitioner: %w", err)
	}

	rows, err := d.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute, slot_minutes
		FROM working_hours
		WHERE practitioner_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	defer rows.Close()

	p.Hours = make(map[time.Weekday]DayHours)
	for rows.Next() {
		var weekday int
		var h DayHours
		if err := rows.Scan(&weekday, &h.StartMinute, &h.EndMinute, &h.SlotMinutes); err != nil {
			return nil, fmt.Errorf("scan working hours: %w", err)
		}
		p.Hours[time.Weekday(weekday)] = h
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate working hours: %w", err)
	}

	return &p, nil
}

func (d *PgDirectory) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

func (d *PgDirectory) GetTreatment(ctx context.Context, code string) (*Treatment, error) {
	var t Treatment
	var durationMinutes int
	err := d.pool.QueryRow(ctx, `
		SELECT code, name, duration_minutes, cost
		FROM treatments
		WHERE code = $1
	`, code).Scan(&t.Code, &t.Name, &durationMinutes, &t.Cost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTreatmentNotFound
		}
		return nil, fmt.Errorf("get treatment: %w", err)
	}
	t.Duration = time.Duration(durationMinutes) * time.Minute
	return &t, nil
}

func (d *PgDirectory) ListBlackoutDays(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT day
		FROM blackout_dates
		WHERE (practitioner_id = $1 OR practitioner_id IS NULL)
		  AND day BETWEEN $2 AND $3
		ORDER BY day
	`, practitionerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list blackout dates: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan blackout date: %w", err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blackout dates: %w", err)
	}
	return days, nil
}
