package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the service logger: console output in dev, JSON
// elsewhere.
func NewLogger(serviceName, env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().
			Timestamp().
			Str("service", serviceName).
			Logger()
	}
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}
