package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayursutra/booking-engine/internal/config"
	"github.com/ayursutra/booking-engine/internal/db"
)

// The simulator drives concurrent booking traffic against a running
// api-server and reports how the slot race resolves: every slot should be
// won exactly once, everyone else should see a conflict.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	ConfirmRatio float64
	PatientLimit int
	PostgresDSN  string
}

type DataPool struct {
	Patients      []uuid.UUID
	Practitioners []uuid.UUID
	Treatments    []string

	mu       sync.RWMutex
	pendings []pendingBooking
}

type pendingBooking struct {
	ID      uuid.UUID
	Version int64
}

func (dp *DataPool) AddPending(id uuid.UUID, version int64) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.pendings = append(dp.pendings, pendingBooking{ID: id, Version: version})
}

func (dp *DataPool) TakePending() (pendingBooking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.pendings) == 0 {
		return pendingBooking{}, false
	}
	p := dp.pendings[len(dp.pendings)-1]
	dp.pendings = dp.pendings[:len(dp.pendings)-1]
	return p, true
}

type Metrics struct {
	Booked    int64
	Conflicts int64
	Confirmed int64
	Errors    int64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	pool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded: %d patients, %d practitioners, %d treatments",
		len(pool.Patients), len(pool.Practitioners), len(pool.Treatments))

	var metrics Metrics
	client := &http.Client{Timeout: 10 * time.Second}

	deadline := time.Now().Add(cfg.Duration)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				if rng.Float64() < cfg.ConfirmRatio {
					confirmOne(client, cfg, pool, &metrics)
				} else {
					bookOne(client, cfg, pool, rng, &metrics)
				}
			}
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()

	log.Printf("done: booked=%d conflicts=%d confirmed=%d errors=%d",
		atomic.LoadInt64(&metrics.Booked),
		atomic.LoadInt64(&metrics.Conflicts),
		atomic.LoadInt64(&metrics.Confirmed),
		atomic.LoadInt64(&metrics.Errors))
}

func bookOne(client *http.Client, cfg SimConfig, pool *DataPool, rng *rand.Rand, m *Metrics) {
	patient := pool.Patients[rng.Intn(len(pool.Patients))]
	practitioner := pool.Practitioners[rng.Intn(len(pool.Practitioners))]
	treatment := pool.Treatments[rng.Intn(len(pool.Treatments))]

	// Aim workers at a narrow window of tomorrow's grid so they collide.
	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	start := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(),
		9+rng.Intn(3), 30*rng.Intn(2), 0, 0, time.UTC)

	body, _ := json.Marshal(map[string]string{
		"patient_id":      patient.String(),
		"practitioner_id": practitioner.String(),
		"start_time":      start.Format(time.RFC3339),
		"treatment_code":  treatment,
	})

	resp, err := client.Post(cfg.APIBaseURL+"/bookings", "application/json", bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&m.Errors, 1)
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusCreated:
		var created struct {
			ID      uuid.UUID `json:"id"`
			Version int64     `json:"version"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
			pool.AddPending(created.ID, created.Version)
		}
		atomic.AddInt64(&m.Booked, 1)
	case http.StatusConflict:
		atomic.AddInt64(&m.Conflicts, 1)
	case http.StatusBadRequest:
		// Off-grid start or past slot; not a failure of the race.
	default:
		atomic.AddInt64(&m.Errors, 1)
	}
}

func confirmOne(client *http.Client, cfg SimConfig, pool *DataPool, m *Metrics) {
	p, ok := pool.TakePending()
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]int64{"version": p.Version})
	resp, err := client.Post(
		fmt.Sprintf("%s/bookings/%s/confirm", cfg.APIBaseURL, p.ID),
		"application/json", bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&m.Errors, 1)
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusOK {
		atomic.AddInt64(&m.Confirmed, 1)
	}
}

func loadSimConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 1000),
		PostgresDSN:  baseCfg.PostgresDSN,
	}
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Patients = append(dp.Patients, id)
	}

	prows, err := pool.Query(ctx, `SELECT id FROM practitioners`)
	if err != nil {
		return nil, fmt.Errorf("load practitioners: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var id uuid.UUID
		if err := prows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Practitioners = append(dp.Practitioners, id)
	}

	trows, err := pool.Query(ctx, `SELECT code FROM treatments`)
	if err != nil {
		return nil, fmt.Errorf("load treatments: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		var code string
		if err := trows.Scan(&code); err != nil {
			return nil, err
		}
		dp.Treatments = append(dp.Treatments, code)
	}

	if len(dp.Patients) == 0 || len(dp.Practitioners) == 0 || len(dp.Treatments) == 0 {
		return nil, fmt.Errorf("empty data pool; run cmd/seed first")
	}
	return dp, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
