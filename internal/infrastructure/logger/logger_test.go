package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"debug":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for input, want := range tests {
		assert.Equal(t, want, parseLevel(input), "parseLevel(%q)", input)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: FormatJSON, Level: "debug", Output: &buf})
	log.Debug().Str("entity_id", "ent_alice").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, DefaultService, line["service"])
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "ent_alice", line["entity_id"])
	assert.Contains(t, line, "time")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: FormatConsole, Service: "ledger-cli", Output: &buf})
	log.Info().Msg("hello")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "service=ledger-cli")
	assert.NotContains(t, out, "{")
	assert.NotContains(t, out, "\x1b[", "console output to a writer must be colourless")
}

func TestLevelFiltersMessages(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: FormatJSON, Level: "warn", Output: &buf})

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}
