package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"
)

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info", "json")
	require.NoError(t, err)

	log.Info().Str("component", "test").Msg("hello")

	var event map[string]any
	require.NoError(t, sonnet.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "hello", event["message"])
	assert.Equal(t, "test", event["component"])
	assert.Contains(t, event, "time")
}

func TestNewLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "warn", "json")
	require.NoError(t, err)

	log.Info().Msg("suppressed")
	assert.Zero(t, buf.Len())
	log.Warn().Msg("emitted")
	assert.NotZero(t, buf.Len())
}

func TestNewBadLevel(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud", "json")
	assert.Error(t, err)
}

func TestForCLIFallsBack(t *testing.T) {
	log := ForCLI("nonsense", "json")
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())
}
