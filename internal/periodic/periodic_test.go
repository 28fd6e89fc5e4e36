package periodic

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "pewunit/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want ParsedSpec
	}{
		{"cron fields", "*/5 * * * *", ParsedSpec{Kind: SpecCron, Cron: "*/5 * * * *", Source: "cron"}},
		{"cron prefix", "cron: 0 3 * * *", ParsedSpec{Kind: SpecCron, Cron: "0 3 * * *", Source: "cron"}},
		{"descriptor", "@hourly", ParsedSpec{Kind: SpecCron, Cron: "@hourly", Source: "cron"}},
		{"duration", "55m", ParsedSpec{Kind: SpecInterval, Every: 55 * time.Minute, Source: "duration"}},
		{"hhmm", "02:30", ParsedSpec{Kind: SpecInterval, Every: 150 * time.Minute, Source: "hhmm"}},
		{"every prefix", "every: 10s", ParsedSpec{Kind: SpecInterval, Every: 10 * time.Second, Source: "duration"}},
		{"interval prefix hhmm", "Interval:1:05", ParsedSpec{Kind: SpecInterval, Every: 65 * time.Minute, Source: "hhmm"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSchedule(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "cron:", "every:", "0s", "-5m", "00:00", "1:75", "soon"} {
		_, err := ParseSchedule(raw)
		assert.Error(t, err, raw)
	}
}

func TestNewRejectsBadCron(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Spec: "cron: 61 * * * *"}, logx.Nop())
	require.Error(t, err)
}

func TestNextCron(t *testing.T) {
	t.Parallel()

	tr, err := New(Config{Spec: "0 3 * * *", Location: time.UTC}, logx.Nop())
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC), tr.Next(now))
}

func TestRunIntervalUntilCanceled(t *testing.T) {
	t.Parallel()

	tr, err := New(Config{Spec: "10ms"}, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var runs atomic.Int32
	err = tr.Run(ctx, func(context.Context) error {
		if runs.Add(1) == 3 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestRunMinIntervalDropsTicks(t *testing.T) {
	t.Parallel()

	tr, err := New(Config{Spec: "5ms", MinInterval: time.Hour}, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	var runs atomic.Int32
	require.NoError(t, tr.Run(ctx, func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	assert.Equal(t, int32(1), runs.Load())
}
