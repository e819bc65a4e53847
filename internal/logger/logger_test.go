package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestInit_ScopedFields(t *testing.T) {
	t.Cleanup(func() {
		Logger = zerolog.Nop()
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	var buf bytes.Buffer
	Init(Options{Level: "debug", Output: &buf})

	log := WithRule("cooldown", "low-availability")
	log.Info().Msg("claimed")

	entry := lastLine(t, &buf)
	assert.Equal(t, "auditwatch", entry["service"])
	assert.Equal(t, "cooldown", entry["component"])
	assert.Equal(t, "low-availability", entry["rule_id"])
	assert.Equal(t, "claimed", entry["message"])

	targetLog := WithTarget("monitor", "cbe")
	targetLog.Debug().Msg("sampled")
	entry = lastLine(t, &buf)
	assert.Equal(t, "cbe", entry["target_id"])
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() {
		Logger = zerolog.Nop()
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	var buf bytes.Buffer
	Init(Options{Level: "chatty", Output: &buf})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	buf.Reset()
	log := WithComponent("x")
	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}
