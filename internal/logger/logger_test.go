package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Info("mun", "created mun-1")
	l.Error("payment", "stripe unavailable")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "MUN", entry.Category)
	assert.Equal(t, "created mun-1", entry.Message)
	assert.Equal(t, "logger_test.go", entry.File)

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "PAYMENT", entry.Category)
}

func TestHelpers_UseDomainCategories(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.LogSecurity("LOGIN_FAILED", "bad password for a@b.c")
	l.LogRegistration("CREATED", "reg-1", "pending")

	out := buf.String()
	assert.Contains(t, out, `"category":"SECURITY"`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `[CREATED] reg-1 - pending`)
}

func TestNop_DiscardsAndNilSafe(t *testing.T) {
	Nop().Info("X", "nothing")

	var l *Logger
	assert.NotPanics(t, func() { l.Info("X", "nil logger") })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, parseLevel("debug"))
	assert.Equal(t, ERROR, parseLevel("ERROR"))
	assert.Equal(t, INFO, parseLevel(""))
	assert.Equal(t, INFO, parseLevel("fatal"), "FATAL is not a valid threshold")
	assert.Equal(t, "INFO", LogLevel(42).String())
}
