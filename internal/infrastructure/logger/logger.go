package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// DefaultService names the process in every log line when Config.Service is empty.
const DefaultService = "ledger"

// Config holds logger configuration.
type Config struct {
	Level   string // trace, debug, info, warn, error; anything else is info
	Format  string // json or console
	Service string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// New builds the process logger. Console output is colourless unless it goes
// to stdout.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == FormatConsole {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.Output != nil,
		}
	}

	service := cfg.Service
	if service == "" {
		service = DefaultService
	}

	return zerolog.New(out).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
