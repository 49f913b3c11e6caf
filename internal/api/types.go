package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/ayursutra/booking-engine/internal/booking"
	"github.com/ayursutra/booking-engine/internal/catalog"
)

type BookRequest struct {
	PatientID      string `json:"patient_id"`
	PractitionerID string `json:"practitioner_id"`
	StartTime      string `json:"start_time"` // RFC3339
	TreatmentCode  string `json:"treatment_code"`
}

type ConfirmRequest struct {
	Version int64 `json:"version"`
}

type CancelRequest struct {
	Version   int64  `json:"version"`
	Initiator string `json:"initiator"` // patient (default) or staff
}

type RescheduleRequest struct {
	Version      int64  `json:"version"`
	NewStartTime string `json:"new_start_time"` // RFC3339
	Initiator    string `json:"initiator"`
}

type ReservationResponse struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	PractitionerID uuid.UUID  `json:"practitioner_id"`
	TreatmentCode  string     `json:"treatment_code"`
	Status         string     `json:"status"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	SlotKeys       []string   `json:"slot_keys"`
	Version        int64      `json:"version"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

func toReservationResponse(r *booking.Reservation) ReservationResponse {
	resp := ReservationResponse{
		ID:             r.ID,
		PatientID:      r.PatientID,
		PractitionerID: r.PractitionerID,
		TreatmentCode:  r.TreatmentCode,
		Status:         string(r.Status),
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		Version:        r.Version,
		ConfirmedAt:    r.ConfirmedAt,
		CancelledAt:    r.CancelledAt,
	}
	for _, k := range r.SlotKeys {
		resp.SlotKeys = append(resp.SlotKeys, k.String())
	}
	if r.Status == booking.StatusPending {
		expires := r.ExpiresAt
		resp.ExpiresAt = &expires
	}
	return resp
}

type SlotResponse struct {
	PractitionerID uuid.UUID `json:"practitioner_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
}

func toSlotResponses(slots []catalog.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			PractitionerID: s.PractitionerID,
			StartTime:      s.Start,
			EndTime:        s.End,
		})
	}
	return out
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
