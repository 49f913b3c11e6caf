package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogGateway writes events to the log instead of a delivery channel. Used in
// dev and as the worker's gateway when Redis is not configured.
type LogGateway struct {
	log zerolog.Logger
}

func NewLogGateway(log zerolog.Logger) *LogGateway {
	return &LogGateway{log: log}
}

func (g *LogGateway) Publish(_ context.Context, ev Event) error {
	g.log.Info().
		Str("event", ev.Type).
		Str("reservation_id", ev.ReservationID.String()).
		Str("patient_id", ev.PatientID.String()).
		Str("practitioner_id", ev.PractitionerID.String()).
		Time("start_time", ev.StartTime).
		Msg("booking event")
	return nil
}
