package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()

	var l Logger
	assert.True(t, l.IsZero())
	assert.NotPanics(t, func() { l.With(String("k", "v")).Error("nothing", Err(errors.New("x"))) })
	assert.False(t, Nop().IsZero())
}

func TestWriterFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("comp", "test"))
	l.Trace("dropped by level")
	l.Info("hello", Int("n", 3), Bool("ok", true), Err(errors.New("boom")), Stack(""), Err(nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "hello", m["message"])
	assert.Equal(t, "test", m["comp"])
	assert.Equal(t, float64(3), m["n"])
	assert.Equal(t, true, m["ok"])
	assert.Equal(t, "boom", m[zerolog.ErrorFieldName])
	assert.NotContains(t, m, "stack")
	assert.Contains(t, m["caller"], "logging_test.go:")
}

func TestEnabled(t *testing.T) {
	t.Parallel()

	l := NewWriter(&bytes.Buffer{}, "warn")
	assert.False(t, l.Enabled(LevelInfo))
	assert.True(t, l.Enabled(LevelError))
}

func TestStackTrace(t *testing.T) {
	t.Parallel()

	st := StackTrace(1, 4)
	assert.Contains(t, st, "TestStackTrace")
	assert.LessOrEqual(t, strings.Count(st, "\n"), 2*4)
}

func TestServiceFileSinkAndSampling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pewunit.log")
	svc, l := New(Config{
		Level:  "debug",
		File:   FileConfig{Enabled: true, Path: path},
		Sample: SampleConfig{Enabled: true, RatePerSec: 1},
	})
	t.Cleanup(func() { _ = svc.Close() })

	for range 50 {
		l.Debug("chatter")
	}
	l.Warn("kept")
	assert.Positive(t, svc.Dropped())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message":"kept"`)
	assert.Less(t, strings.Count(string(b), "chatter"), 50)

	// Apply swaps the level live for loggers handed out earlier.
	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	assert.False(t, l.Enabled(LevelWarn))
}
