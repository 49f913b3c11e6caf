package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayursutra/booking-engine/internal/catalog"
)

// PgStore is the production Store. The no-double-booking invariant is
// enforced twice: by the status-guarded queries here and, as a backstop, by
// the partial unique index on reservation_slots(slot_key) WHERE NOT released.
type PgStore struct {
	pool   *pgxpool.Pool
	cutoff time.Duration
}

func NewPgStore(pool *pgxpool.Pool, cancellationCutoff time.Duration) *PgStore {
	return &PgStore{pool: pool, cutoff: cancellationCutoff}
}

const reservationColumns = `id, patient_id, practitioner_id, treatment_code, status,
	start_time, end_time, version, created_at, updated_at, expires_at, confirmed_at, cancelled_at`

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	err := row.Scan(
		&r.ID,
		&r.PatientID,
		&r.PractitionerID,
		&r.TreatmentCode,
		&r.Status,
		&r.StartTime,
		&r.EndTime,
		&r.Version,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.ExpiresAt,
		&r.ConfirmedAt,
		&r.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &r, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PgStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (s *PgStore) TryClaim(ctx context.Context, in ClaimInput) (*Reservation, error) {
	if len(in.Slots) == 0 {
		return nil, ErrSlotUnavailable
	}

	var created *Reservation
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO reservations (id, patient_id, practitioner_id, treatment_code, status,
				start_time, end_time, version, created_at, updated_at, expires_at)
			VALUES ($1, $2, $3, $4, 'pending', $5, $6, 1, $7, $7, $8)
			RETURNING `+reservationColumns+`
		`, uuid.New(), in.PatientID, in.PractitionerID, in.TreatmentCode,
			in.Slots[0].Start, in.Slots[len(in.Slots)-1].End, in.Now, in.Now.Add(in.HoldTTL))

		r, err := scanReservation(row)
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}

		for _, slot := range in.Slots {
			key := slot.Key()
			_, err := tx.Exec(ctx, `
				INSERT INTO reservation_slots (slot_key, slot_start, practitioner_id, reservation_id, released)
				VALUES ($1, $2, $3, $4, FALSE)
			`, key.String(), key.Start, key.PractitionerID, r.ID)
			if err != nil {
				if isUniqueViolation(err) {
					// Another active reservation owns this key. The
					// rollback discards the whole claim.
					return ErrSlotUnavailable
				}
				return fmt.Errorf("insert reservation slot: %w", err)
			}
			r.SlotKeys = append(r.SlotKeys, key)
		}

		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1
	`, id)
	r, err := scanReservation(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadSlotKeys(ctx, []*Reservation{r}); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PgStore) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE patient_id = $1
		ORDER BY start_time
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var result []Reservation
	var refs []*Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
		refs = append(refs, &result[len(result)-1])
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadSlotKeys(ctx, refs); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PgStore) ActiveSlotKeys(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slot_key
		FROM reservation_slots
		WHERE NOT released
		  AND practitioner_id = $1
		  AND slot_start >= $2 AND slot_start < $3
	`, practitionerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query active slot keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

func (s *PgStore) Confirm(ctx context.Context, id uuid.UUID, expectedVersion int64, at time.Time) (*Reservation, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE reservations
		SET status = 'confirmed',
		    confirmed_at = $3,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $1
		  AND status = 'pending'
		  AND version = $2
		  AND expires_at >= $3
		RETURNING `+reservationColumns+`
	`, id, expectedVersion, at)

	r, err := scanReservation(row)
	if err == nil {
		if err := s.loadSlotKeys(ctx, []*Reservation{r}); err != nil {
			return nil, err
		}
		return r, nil
	}
	if !errors.Is(err, ErrReservationNotFound) {
		return nil, fmt.Errorf("confirm reservation: %w", err)
	}
	return nil, s.classifyConfirmFailure(ctx, id, expectedVersion, at)
}

// classifyConfirmFailure re-reads the row to explain a guarded confirm that
// matched nothing. The lapsed-hold case is settled to expired here rather
// than waiting for the sweep.
func (s *PgStore) classifyConfirmFailure(ctx context.Context, id uuid.UUID, expectedVersion int64, at time.Time) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case r.Status != StatusPending:
		return ErrInvalidTransition
	case r.Version != expectedVersion:
		return ErrVersionConflict
	case r.ExpiresAt.Before(at):
		if expireErr := s.expireOne(ctx, r.ID, at); expireErr != nil {
			return fmt.Errorf("settle lapsed hold: %w", expireErr)
		}
		return ErrHoldExpired
	default:
		return ErrVersionConflict
	}
}

func (s *PgStore) Cancel(ctx context.Context, id uuid.UUID, expectedVersion int64, at time.Time, bypassCutoff bool) (*Reservation, error) {
	var cancelled *Reservation
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+reservationColumns+`
			FROM reservations
			WHERE id = $1
			FOR UPDATE
		`, id)
		r, err := scanReservation(row)
		if err != nil {
			return err
		}
		if !r.Active() {
			return ErrInvalidTransition
		}
		if r.Version != expectedVersion {
			return ErrVersionConflict
		}
		if r.Status == StatusConfirmed && !bypassCutoff && r.StartTime.Sub(at) < s.cutoff {
			return ErrCutoffViolation
		}

		row = tx.QueryRow(ctx, `
			UPDATE reservations
			SET status = 'cancelled',
			    cancelled_at = $2,
			    version = version + 1,
			    updated_at = $2
			WHERE id = $1
			RETURNING `+reservationColumns+`
		`, id, at)
		cancelled, err = scanReservation(row)
		if err != nil {
			return fmt.Errorf("cancel reservation: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE reservation_slots SET released = TRUE WHERE reservation_id = $1
		`, id)
		if err != nil {
			return fmt.Errorf("release reservation slots: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.loadSlotKeys(ctx, []*Reservation{cancelled}); err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *PgStore) ExpireStalePending(ctx context.Context, at time.Time) ([]Reservation, error) {
	return s.sweep(ctx, `
		UPDATE reservations
		SET status = 'expired',
		    version = version + 1,
		    updated_at = $1
		WHERE status = 'pending'
		  AND expires_at < $1
		RETURNING `+reservationColumns, at)
}

func (s *PgStore) CompletePast(ctx context.Context, at time.Time) ([]Reservation, error) {
	return s.sweep(ctx, `
		UPDATE reservations
		SET status = 'completed',
		    version = version + 1,
		    updated_at = $1
		WHERE status = 'confirmed'
		  AND end_time <= $1
		RETURNING `+reservationColumns, at)
}

// sweep runs one status-guarded bulk transition and releases the affected
// slot keys in the same transaction. A racing sweep matches zero rows.
func (s *PgStore) sweep(ctx context.Context, query string, at time.Time) ([]Reservation, error) {
	var moved []Reservation
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, at)
		if err != nil {
			return fmt.Errorf("sweep reservations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanReservation(rows)
			if err != nil {
				return err
			}
			moved = append(moved, *r)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		if len(moved) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(moved))
		for _, r := range moved {
			ids = append(ids, r.ID)
		}
		_, err = tx.Exec(ctx, `
			UPDATE reservation_slots SET released = TRUE WHERE reservation_id = ANY($1)
		`, ids)
		if err != nil {
			return fmt.Errorf("release swept slots: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	refs := make([]*Reservation, len(moved))
	for i := range moved {
		refs[i] = &moved[i]
	}
	if err := s.loadSlotKeys(ctx, refs); err != nil {
		return nil, err
	}
	return moved, nil
}

func (s *PgStore) expireOne(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE reservations
			SET status = 'expired', version = version + 1, updated_at = $2
			WHERE id = $1 AND status = 'pending'
		`, id, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// A racing sweep got there first.
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE reservation_slots SET released = TRUE WHERE reservation_id = $1
		`, id)
		return err
	})
}

func (s *PgStore) loadSlotKeys(ctx context.Context, rs []*Reservation) error {
	if len(rs) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Reservation, len(rs))
	ids := make([]uuid.UUID, 0, len(rs))
	for _, r := range rs {
		r.SlotKeys = nil
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT reservation_id, practitioner_id, slot_start
		FROM reservation_slots
		WHERE reservation_id = ANY($1)
		ORDER BY slot_start
	`, ids)
	if err != nil {
		return fmt.Errorf("load slot keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var resID, practitionerID uuid.UUID
		var start time.Time
		if err := rows.Scan(&resID, &practitionerID, &start); err != nil {
			return err
		}
		if r, ok := byID[resID]; ok {
			r.SlotKeys = append(r.SlotKeys, catalog.SlotKey{PractitionerID: practitionerID, Start: start.UTC()})
		}
	}
	return rows.Err()
}
