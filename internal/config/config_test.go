package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBytesJSONAndYAML(t *testing.T) {
	t.Parallel()

	jsonCfg := []byte(`{
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
		"runner": {"filter": "!slow", "seed": "abc", "fail_on_zero_tests": false, "test_timeout": "2s"},
		"storage": {"driver": "file", "path": "./store"}
	}`)
	yamlCfg := []byte(`
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
runner:
  filter: "!slow"
  seed: abc
  fail_on_zero_tests: false
  test_timeout: 2s
storage:
  driver: file
  path: ./store
`)

	fromJSON, err := ParseBytes("config.json", jsonCfg)
	require.NoError(t, err)
	fromYAML, err := ParseBytes("config.yaml", yamlCfg)
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromYAML)
	assert.Equal(t, "!slow", fromJSON.Runner.Filter)
	assert.False(t, fromJSON.Runner.FailOnZeroTestsEnabled())
	assert.True(t, fromJSON.Runner.ReorderEnabled())
	require.NotNil(t, fromJSON.Storage)
	assert.Equal(t, "file", fromJSON.Storage.Driver)
}

func TestParseBytesYAMLNumbersAndEmpty(t *testing.T) {
	t.Parallel()

	cfg, err := ParseBytes("c.yml", []byte("runner:\n  test_timeout: 1500\n"))
	require.NoError(t, err)
	assert.Equal(t, Duration("1500"), cfg.Runner.TestTimeout)
	d, err := ParseDurationField("runner.test_timeout", cfg.Runner.TestTimeout)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	cfg, err = ParseBytes("c.yaml", []byte("\n"))
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)

	_, err = ParseBytes("c.json", []byte(`{"runner": {"test_timeout": true}}`))
	require.Error(t, err)
}

func TestParseBytesRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()

	_, err := ParseBytes("c.json", []byte(`{"runner": {"filtr": "x"}}`))
	require.Error(t, err)

	_, err = ParseBytes("c.json", []byte(`{"runner": {}} {}`))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty", cfg: Config{}},
		{name: "bad timeout", cfg: Config{Runner: RunnerConfig{TestTimeout: "soon"}}, wantErr: true},
		{name: "negative timeout", cfg: Config{Runner: RunnerConfig{TestTimeout: "-1s"}}, wantErr: true},
		{name: "bad regex filter", cfg: Config{Runner: RunnerConfig{Filter: "/(/"}}, wantErr: true},
		{name: "regex filter", cfg: Config{Runner: RunnerConfig{Filter: "!/^a.*b$/i"}}},
		{name: "sqlite without path", cfg: Config{Storage: &StorageConfig{Driver: "sqlite"}}, wantErr: true},
		{name: "file without path", cfg: Config{Storage: &StorageConfig{Driver: "file"}}, wantErr: true},
		{name: "storage none", cfg: Config{Storage: &StorageConfig{Driver: "none"}}},
		{name: "unknown driver", cfg: Config{Storage: &StorageConfig{Driver: "redis"}}, wantErr: true},
		{name: "schedule without spec", cfg: Config{Schedule: &ScheduleConfig{Enabled: true}}, wantErr: true},
		{name: "schedule bad tz", cfg: Config{Schedule: &ScheduleConfig{Enabled: true, Spec: "30s", Timezone: "Mars/Base"}}, wantErr: true},
		{name: "http bad addr", cfg: Config{HTTP: &HTTPConfig{Enabled: true, Addr: "nope"}}, wantErr: true},
		{name: "http bad timeout", cfg: Config{HTTP: &HTTPConfig{Enabled: true, ReadTimeout: "x"}}, wantErr: true},
		{name: "http ok", cfg: Config{HTTP: &HTTPConfig{Enabled: true, Addr: "127.0.0.1:0", Pprof: true}}},
		{name: "schedule ok", cfg: Config{Schedule: &ScheduleConfig{Enabled: true, Spec: "@every 1m", MinInterval: "10s"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&tc.cfg)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationOrDefault("x", "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	d, err = ParseDurationOrDefault("x", "250ms", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	d, err = ParseDurationOrDefault("x", "1500", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	_, err = ParseDurationField("x", "-1")
	require.ErrorContains(t, err, "must be >= 0")

	_, err = ParseDurationOrDefault("x", "abc", time.Second)
	require.ErrorContains(t, err, "x: invalid duration")
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	off := false
	oldCfg := &Config{Runner: RunnerConfig{ModuleIDs: []string{"a", "b"}}}
	newCfg := &Config{
		Runner:  RunnerConfig{ModuleIDs: []string{"b", "a"}, Reorder: &off},
		Metrics: &MetricsConfig{Enabled: true},
	}

	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"metrics", "runner"}, sections)
	assert.NotEmpty(t, attrs)

	sections, _ = SummarizeConfigChange(newCfg, newCfg)
	assert.Empty(t, sections)
}

func TestWatchPublishesChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pewunit.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"runner": {"filter": "a"}}`), 0o644))

	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	m.SetValidator(func(_ context.Context, cfg *Config) error { return Validate(cfg) })

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"runner": {"filter": "b"}}`), 0o644))

	select {
	case cfg := <-sub:
		require.NotNil(t, cfg)
		assert.Equal(t, "b", cfg.Runner.Filter)
		assert.Equal(t, "b", m.Get().Runner.Filter)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config publish")
	}

	cancel()
	<-done
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()

	m := NewManager("unused.json")
	sub := m.Subscribe(1)
	a, b := &Config{Runner: RunnerConfig{Seed: "a"}}, &Config{Runner: RunnerConfig{Seed: "b"}}
	m.publish(a)
	m.publish(b)

	assert.Same(t, b, <-sub)
	m.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok)
}

func TestReloadRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"runner": {"seed": "x"}}`), 0o644))
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	m.SetValidator(func(_ context.Context, cfg *Config) error { return Validate(cfg) })

	require.NoError(t, os.WriteFile(path, []byte(`{"runner": {"test_timeout": "soon"}}`), 0o644))
	m.reload(context.Background())
	assert.Equal(t, "x", m.Get().Runner.Seed)
}
