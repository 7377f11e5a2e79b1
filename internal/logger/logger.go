package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

func init() {
	// Quiet default until Init is called from the command line
	Logger = zerolog.New(os.Stderr).
		With().
		Timestamp().
		Logger()
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = Logger
}

// Levels accepted by Init and the log_level setting.
var Levels = []string{"debug", "info", "warn", "error"}

// ParseLevel maps a log_level setting onto a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q (use: %s)", level, strings.Join(Levels, ", "))
	}
}

// Init configures the global logger. Logs go to stderr so command output
// on stdout stays machine readable.
func Init(level string, pretty bool) {
	zlLevel, err := ParseLevel(level)
	SetLevel(zlLevel)

	var output io.Writer = os.Stderr
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Logger()
	log.Logger = Logger

	if err != nil {
		Logger.Warn().Err(err).Msg("Falling back to info level")
	}
}

// SetLevel changes the level without rebuilding the logger, used when the
// settings file is reloaded.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// WithComponent returns a logger with a component field set
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}
