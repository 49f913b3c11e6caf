package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayursutra/booking-engine/internal/booking"
	"github.com/ayursutra/booking-engine/internal/catalog"
	"github.com/ayursutra/booking-engine/internal/clock"
	"github.com/ayursutra/booking-engine/internal/config"
	"github.com/ayursutra/booking-engine/internal/notify"
	"github.com/ayursutra/booking-engine/internal/observability"
	redisclient "github.com/ayursutra/booking-engine/internal/redis"
)

var (
	testPractitioner = uuid.MustParse("7b3a1c9e-4f2d-4a8b-9c6e-1d5f8a2b3c4d")
	testPatient      = uuid.MustParse("a1111111-1111-4111-8111-111111111111")
)

// testNow is a Thursday; the practitioner works every weekday.
var testNow = time.Date(2025, 2, 20, 12, 0, 0, 0, time.UTC)

type nopGateway struct{}

func (nopGateway) Publish(context.Context, notify.Event) error { return nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dir := catalog.NewMemoryDirectory()
	hours := make(map[time.Weekday]catalog.DayHours)
	for d := time.Monday; d <= time.Saturday; d++ {
		hours[d] = catalog.DayHours{StartMinute: 9 * 60, EndMinute: 17 * 60, SlotMinutes: 30}
	}
	dir.AddPractitioner(catalog.Practitioner{ID: testPractitioner, Name: "Dr. Meera Singh", Hours: hours})
	dir.AddPatient(catalog.Patient{ID: testPatient, Name: "Asha Rao"})
	for _, tr := range catalog.DefaultTreatments() {
		dir.AddTreatment(tr)
	}

	cfg := config.Config{HoldTTL: 10 * time.Minute, CancellationCutoff: 24 * time.Hour}
	eng := booking.NewEngine(
		booking.NewMemoryStore(cfg.CancellationCutoff),
		catalog.New(dir),
		redisclient.NewNopLocker(),
		nopGateway{},
		clock.NewFixed(testNow),
		cfg,
		observability.NewLogger("test", "dev"),
	)

	log := observability.NewLogger("test", "dev")
	srv := httptest.NewServer(NewRouter(RouterConfig{Engine: eng, Log: log, Env: "test", Version: "test"}))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func bookSlot(t *testing.T, srv *httptest.Server, start time.Time, treatment string) map[string]any {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/bookings", BookRequest{
		PatientID:      testPatient.String(),
		PractitionerID: testPractitioner.String(),
		StartTime:      start.Format(time.RFC3339),
		TreatmentCode:  treatment,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	start := time.Date(2025, 2, 25, 10, 0, 0, 0, time.UTC)

	held := bookSlot(t, srv, start, "shirodhara")
	assert.Equal(t, "pending", held["status"])
	assert.Equal(t, float64(1), held["version"])
	assert.NotEmpty(t, held["expires_at"])
	assert.Len(t, held["slot_keys"], 2)

	id := held["id"].(string)

	resp, confirmed := doJSON(t, http.MethodPost, srv.URL+"/bookings/"+id+"/confirm", ConfirmRequest{Version: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "confirmed", confirmed["status"])
	assert.Equal(t, float64(2), confirmed["version"])
	assert.NotEmpty(t, confirmed["confirmed_at"])
	assert.Nil(t, confirmed["expires_at"])

	resp, got := doJSON(t, http.MethodGet, srv.URL+"/bookings/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "confirmed", got["status"])
}

func TestBookConflictOverHTTP(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	start := time.Date(2025, 2, 25, 10, 0, 0, 0, time.UTC)
	bookSlot(t, srv, start, "nasya")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/bookings", BookRequest{
		PatientID:      testPatient.String(),
		PractitionerID: testPractitioner.String(),
		StartTime:      start.Format(time.RFC3339),
		TreatmentCode:  "nasya",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "slot_unavailable", body["error"])
}

func TestErrorStatusMapping(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	start := time.Date(2025, 2, 25, 10, 0, 0, 0, time.UTC)

	book := func(patient, practitioner uuid.UUID, startTime, treatment string) (*http.Response, map[string]any) {
		return doJSON(t, http.MethodPost, srv.URL+"/bookings", BookRequest{
			PatientID:      patient.String(),
			PractitionerID: practitioner.String(),
			StartTime:      startTime,
			TreatmentCode:  treatment,
		})
	}

	t.Run("unknown practitioner is 404", func(t *testing.T) {
		resp, body := book(testPatient, uuid.New(), start.Format(time.RFC3339), "nasya")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "practitioner_not_found", body["error"])
	})

	t.Run("unknown patient is 404", func(t *testing.T) {
		resp, body := book(uuid.New(), testPractitioner, start.Format(time.RFC3339), "nasya")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "patient_not_found", body["error"])
	})

	t.Run("unknown treatment is 400", func(t *testing.T) {
		resp, body := book(testPatient, testPractitioner, start.Format(time.RFC3339), "cryotherapy")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "unknown_treatment", body["error"])
	})

	t.Run("off-grid start is 400", func(t *testing.T) {
		resp, body := book(testPatient, testPractitioner, start.Add(7*time.Minute).Format(time.RFC3339), "nasya")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_range", body["error"])
	})

	t.Run("past slot is 400", func(t *testing.T) {
		resp, body := book(testPatient, testPractitioner, testNow.Add(-2*time.Hour).Format(time.RFC3339), "nasya")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "slot_not_bookable", body["error"])
	})

	t.Run("malformed uuid is 400", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/bookings", BookRequest{
			PatientID: "not-a-uuid", PractitionerID: testPractitioner.String(),
			StartTime: start.Format(time.RFC3339), TreatmentCode: "nasya",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_patient_id", body["error"])
	})

	t.Run("stale version on confirm is 409", func(t *testing.T) {
		held := bookSlot(t, srv, time.Date(2025, 2, 25, 14, 0, 0, 0, time.UTC), "nasya")
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/bookings/"+held["id"].(string)+"/confirm", ConfirmRequest{Version: 99})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "version_conflict", body["error"])
	})

	t.Run("unknown reservation is 404", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, srv.URL+"/bookings/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "reservation_not_found", body["error"])
	})

	t.Run("bad initiator is 400", func(t *testing.T) {
		held := bookSlot(t, srv, time.Date(2025, 2, 25, 15, 0, 0, 0, time.UTC), "nasya")
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/bookings/"+held["id"].(string)+"/cancel", CancelRequest{Version: 1, Initiator: "robot"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_initiator", body["error"])
	})
}

func TestCancelCutoffOverHTTP(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	// Tomorrow morning: inside the 24h cutoff at testNow.
	start := time.Date(2025, 2, 21, 10, 0, 0, 0, time.UTC)

	held := bookSlot(t, srv, start, "nasya")
	id := held["id"].(string)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/bookings/"+id+"/confirm", ConfirmRequest{Version: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/bookings/"+id+"/cancel", CancelRequest{Version: 2, Initiator: "patient"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "cancellation_cutoff", body["error"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/bookings/"+id+"/cancel", CancelRequest{Version: 2, Initiator: "staff"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])
	assert.NotEmpty(t, body["cancelled_at"])
}

func TestRescheduleOverHTTP(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	oldStart := time.Date(2025, 2, 25, 10, 0, 0, 0, time.UTC)
	newStart := time.Date(2025, 2, 26, 14, 0, 0, 0, time.UTC)

	held := bookSlot(t, srv, oldStart, "nasya")
	oldID := held["id"].(string)

	resp, fresh := doJSON(t, http.MethodPost, srv.URL+"/bookings/"+oldID+"/reschedule", RescheduleRequest{
		Version: 1, NewStartTime: newStart.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, oldID, fresh["id"])
	assert.Equal(t, "pending", fresh["status"])
	assert.Equal(t, newStart.Format(time.RFC3339), fresh["start_time"])

	resp, old := doJSON(t, http.MethodGet, srv.URL+"/bookings/"+oldID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", old["status"])
}

func TestAvailabilityOverHTTP(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	bookSlot(t, srv, time.Date(2025, 2, 25, 10, 0, 0, 0, time.UTC), "abhyanga")

	resp, err := http.Get(fmt.Sprintf("%s/availability?practitioner_id=%s&from=2025-02-25&to=2025-02-25", srv.URL, testPractitioner))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var slots []SlotResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&slots))
	// 16 slots on the day, minus two held by the hour-long treatment.
	assert.Len(t, slots, 14)
	for _, s := range slots {
		assert.NotEqual(t, time.Date(2025, 2, 25, 10, 0, 0, 0, time.UTC), s.StartTime)
		assert.NotEqual(t, time.Date(2025, 2, 25, 10, 30, 0, 0, time.UTC), s.StartTime)
	}
}

func TestListBookingsOverHTTP(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	bookSlot(t, srv, time.Date(2025, 2, 25, 9, 0, 0, 0, time.UTC), "nasya")
	bookSlot(t, srv, time.Date(2025, 2, 25, 13, 0, 0, 0, time.UTC), "nasya")

	resp, err := http.Get(fmt.Sprintf("%s/bookings?patient_id=%s", srv.URL, testPatient))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []ReservationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.True(t, list[0].StartTime.Before(list[1].StartTime))
}

func TestLivenessOverHTTP(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health/live", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}
