package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"off", SilentLevel, false},
		{"loud", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: WarnLevel, Output: &buf})

	l.Info("hidden")
	l.Warn("shown", "round", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN: shown round=3")
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: DebugLevel, Output: &buf})

	child := l.With("component", "refiner")
	child.Debug("cut", "node", 7)
	l.Debug("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "cut component=refiner node=7")
	assert.NotContains(t, lines[1], "component")
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: InfoLevel, JSONOutput: true, Output: &buf})

	l.With("unit", "goal-1").Info("timed out", "budget", "2s")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "timed out", entry["message"])
	assert.Equal(t, "goal-1", entry["unit"])
	assert.Equal(t, "2s", entry["budget"])
}

func TestNop(t *testing.T) {
	l := Nop()
	assert.NotPanics(t, func() {
		l.Error("nothing to see")
		l.With("k", "v").Info("still nothing")
	})
}
