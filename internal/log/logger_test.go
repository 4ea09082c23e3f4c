package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Output: &buf})
	l.Debug().Str(FieldSink, "out.y4m").Int(FieldFrame, 3).Msg("frame written")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "out.y4m", entry[FieldSink])
	assert.EqualValues(t, 3, entry[FieldFrame])
	assert.Equal(t, "frame written", entry["message"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "json", Output: &buf})
	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	var buf bytes.Buffer
	l := New(Config{Level: "loud", Format: "json", Output: &buf})
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_LevelFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	var buf bytes.Buffer
	envLogger := New(Config{Format: "json", Output: &buf})
	envLogger.Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	infoLogger := New(Config{Level: "info", Format: "json", Output: &buf})
	infoLogger.Debug().Msg("hidden")
	assert.Zero(t, buf.Len(), "explicit level wins")
}

func TestNew_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Output: &buf})
	l.Info().Str(FieldScript, "in.avs").Msg("opened")
	assert.Contains(t, buf.String(), "opened")
	assert.Contains(t, buf.String(), "script=in.avs")
}
