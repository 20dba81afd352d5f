package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		" warn ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetup_JSONComponent(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	require.NoError(t, Setup(Options{Level: "debug", Format: "json", Output: &buf}))

	l := GetForComponent("keeper")
	l.Debug().Uint64("tick", 7).Msg("tick done")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "keeper", entry["component"])
	assert.Equal(t, "tick done", entry["message"])
	assert.Equal(t, float64(7), entry["tick"])
	assert.Equal(t, "debug", entry["level"])
}

func TestSetup_LevelFilters(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	require.NoError(t, Setup(Options{Level: "warn", Format: "json", Output: &buf}))

	Get().Info().Msg("hidden")
	assert.Zero(t, buf.Len())
	Get().Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetup_LogFile(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	path := filepath.Join(t.TempDir(), "allocator.log")
	var buf bytes.Buffer
	require.NoError(t, Setup(Options{Format: "json", Output: &buf, LogFile: path}))

	Get().Info().Msg("to both")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}

func TestSetup_UnknownFormat(t *testing.T) {
	assert.ErrorContains(t, Setup(Options{Format: "xml"}), "unknown log format")
}
