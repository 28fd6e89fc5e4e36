package app

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pewunit/internal/config"
	"pewunit/internal/runner"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunOnceReportsFailuresAndMetrics(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
logging:
  level: error
  console: true
runner:
  seed: ""
storage:
  driver: file
  path: `+filepath.Join(dir, "store", "mem.json")+`
metrics:
  enabled: true
  path: `+filepath.Join(dir, "pewunit.prom")+`
`)

	failing := true
	a, err := New(path, func(r *runner.Runner) {
		r.Module("m", func(s *runner.Scope) {
			s.Test("a", func(as *runner.Assert) { as.Ok(true, "") })
			s.Test("b", func(as *runner.Assert) { as.Ok(!failing, "b works") })
		})
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background(), StopRunComplete) })

	end, err := a.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrRunFailed)
	assert.Equal(t, 1, end.TestCounts.Failed)
	assert.FileExists(t, filepath.Join(dir, "pewunit.prom"))

	failing = false
	end, err = a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runner.StatusPassed, end.Status)
	assert.Equal(t, 2, end.TestCounts.Passed)
}

func TestRunScheduledUntilCanceled(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
logging:
  level: error
  console: true
schedule:
  enabled: true
  spec: 20ms
`)

	var runs atomic.Int32
	a, err := New(path, func(r *runner.Runner) {
		runs.Add(1)
		r.Test("tick", func(as *runner.Assert) { as.Ok(true, "") })
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, a.Run(ctx))
	require.NoError(t, a.Stop(context.Background(), StopSignal))
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "runner:\n  test_timeout: soon\n")
	_, err := New(path, func(*runner.Runner) {})
	require.Error(t, err)

	_, err = New(filepath.Join(dir, "missing.yaml"), func(*runner.Runner) {})
	require.Error(t, err)
}

func TestMapRunnerConfig(t *testing.T) {
	t.Parallel()

	no := false
	got, err := mapRunnerConfig(&config.Config{Runner: config.RunnerConfig{
		Filter:      "  !slow ",
		Seed:        "abc",
		Reorder:     &no,
		TestTimeout: "2s",
	}})
	require.NoError(t, err)
	assert.Equal(t, runner.Config{
		Filter:          "!slow",
		Seed:            "abc",
		Reorder:         false,
		FailOnZeroTests: true,
		TestTimeout:     2 * time.Second,
	}, got)
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     *config.StorageConfig
		enabled bool
		wantErr bool
	}{
		{name: "absent"},
		{name: "none", cfg: &config.StorageConfig{Driver: "none"}},
		{name: "file", cfg: &config.StorageConfig{Driver: "File", Path: "./mem"}, enabled: true},
		{name: "sqlite", cfg: &config.StorageConfig{Driver: "sqlite", Path: "./mem.db", BusyTimeout: "2s"}, enabled: true},
		{name: "sqlite no path", cfg: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "unknown", cfg: &config.StorageConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, enabled, err := mapStorageConfig(&config.Config{Storage: tc.cfg})
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.enabled, enabled)
		})
	}
}

func TestMetricsPathDefault(t *testing.T) {
	t.Parallel()

	assert.Empty(t, metricsPath(&config.Config{}))
	assert.Equal(t, defaultMetricsPath, metricsPath(&config.Config{Metrics: &config.MetricsConfig{Enabled: true}}))
}
