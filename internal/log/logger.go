package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the API logger. Anything that is not production logs at debug.
func New(environment string) zerolog.Logger {
	level := "debug"
	if environment == "production" {
		level = "info"
	}
	return build(os.Stdout, environment, level)
}

// NewWithLevel builds a logger with an explicit level name, as the worker
// is configured.
func NewWithLevel(environment, level string) zerolog.Logger {
	return build(os.Stdout, environment, level)
}

func build(out io.Writer, environment, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    environment == "production",
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("env", environment).
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(level))
	return logger
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
