package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayursutra/booking-engine/internal/catalog"
	"github.com/ayursutra/booking-engine/internal/db"
	"github.com/ayursutra/booking-engine/migrations"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.Apply(context.Background(), pool); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedTreatments(context.Background(), pool); err != nil {
		log.Fatalf("seed treatments: %v", err)
	}
	if err := seedPractitioners(context.Background(), pool, 20); err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedTreatments(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("seeding treatments")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, t := range catalog.DefaultTreatments() {
		_, err := tx.Exec(ctx, `
			INSERT INTO treatments (code, name, duration_minutes, cost)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (code) DO NOTHING
		`, t.Code, t.Name, int(t.Duration/time.Minute), t.Cost)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("treatments seeded")
	return nil
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d practitioners", count)

	specialties := []string{
		"Panchakarma",
		"Kayachikitsa",
		"Rasayana",
		"Marma Therapy",
		"Shirodhara",
		"Nadi Pariksha",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, name, specialties, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, []string{specialty})
		if err != nil {
			return err
		}

		// Monday through Saturday, 09:00-17:00, 30-minute grid.
		for weekday := 1; weekday <= 6; weekday++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO working_hours (practitioner_id, weekday, start_minute, end_minute, slot_minutes)
				VALUES ($1, $2, $3, $4, $5)
			`, id, weekday, 9*60, 17*60, 30)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("practitioners seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
