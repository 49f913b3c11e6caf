package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ayursutra/booking-engine/internal/booking"
	"github.com/ayursutra/booking-engine/internal/catalog"
)

func availabilityHandler(eng *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		practitionerID, err := uuid.Parse(q.Get("practitioner_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}
		from, err := time.Parse("2006-01-02", q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be a YYYY-MM-DD date")
			return
		}
		to, err := time.Parse("2006-01-02", q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be a YYYY-MM-DD date")
			return
		}

		slots, err := eng.Availability(r.Context(), practitionerID, from, to)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func bookHandler(eng *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}
		start, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be RFC3339")
			return
		}

		res, err := eng.Book(r.Context(), booking.BookInput{
			PatientID:      patientID,
			PractitionerID: practitionerID,
			Start:          start,
			TreatmentCode:  req.TreatmentCode,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toReservationResponse(res))
	}
}

func confirmHandler(eng *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := reservationID(w, r)
		if !ok {
			return
		}

		var req ConfirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		res, err := eng.ConfirmBooking(r.Context(), id, req.Version)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func cancelHandler(eng *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := reservationID(w, r)
		if !ok {
			return
		}

		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		initiator, ok2 := parseInitiator(req.Initiator)
		if !ok2 {
			writeError(w, http.StatusBadRequest, "invalid_initiator", "initiator must be patient or staff")
			return
		}

		res, err := eng.CancelBooking(r.Context(), id, req.Version, initiator)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func rescheduleHandler(eng *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := reservationID(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		newStart, err := time.Parse(time.RFC3339, req.NewStartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_new_start_time", "new_start_time must be RFC3339")
			return
		}
		initiator, ok2 := parseInitiator(req.Initiator)
		if !ok2 {
			writeError(w, http.StatusBadRequest, "invalid_initiator", "initiator must be patient or staff")
			return
		}

		res, err := eng.Reschedule(r.Context(), booking.RescheduleInput{
			ReservationID: id,
			Version:       req.Version,
			NewStart:      newStart,
			Initiator:     initiator,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func getBookingHandler(eng *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := reservationID(w, r)
		if !ok {
			return
		}

		res, err := eng.GetReservation(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func listBookingsHandler(eng *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		patientID, err := uuid.Parse(q.Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		limit := intParam(q.Get("limit"), 20)
		offset := intParam(q.Get("offset"), 0)

		list, err := eng.ListReservationsByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		out := make([]ReservationResponse, 0, len(list))
		for i := range list {
			out = append(out, toReservationResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func reservationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_reservation_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseInitiator(s string) (booking.Initiator, bool) {
	switch s {
	case "", string(booking.InitiatorPatient):
		return booking.InitiatorPatient, true
	case string(booking.InitiatorStaff):
		return booking.InitiatorStaff, true
	}
	return "", false
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, catalog.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "reservation_not_found", err.Error())
	case errors.Is(err, catalog.ErrTreatmentNotFound):
		writeError(w, http.StatusBadRequest, "unknown_treatment", err.Error())
	case errors.Is(err, catalog.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, booking.ErrSlotNotBookable):
		writeError(w, http.StatusBadRequest, "slot_not_bookable", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrVersionConflict):
		writeError(w, http.StatusConflict, "version_conflict", err.Error())
	case errors.Is(err, booking.ErrHoldExpired):
		writeError(w, http.StatusConflict, "hold_expired", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrCutoffViolation):
		writeError(w, http.StatusForbidden, "cancellation_cutoff", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
