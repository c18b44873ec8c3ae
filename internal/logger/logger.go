package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Init configures the global zerolog level and output and returns the root
// logger. JSON output is the default; set console=true for local runs.
func Init(level string, console bool) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	if console {
		return zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns a child logger tagged with the component name.
func WithComponent(log zerolog.Logger, component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
