package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "pewunit/pkg/logx"
)

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = Open(Config{Driver: "None"}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
}

func TestStoreDrivers(t *testing.T) {
	t.Parallel()

	drivers := []struct {
		name string
		file string
	}{
		{"file", "state.json"},
		{"sqlite", "state.db"},
	}
	for _, d := range drivers {
		t.Run(d.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			cfg := Config{Driver: d.name, Path: filepath.Join(t.TempDir(), "nested", d.file), BusyTimeout: time.Second}

			st, err := Open(cfg, logx.Nop())
			require.NoError(t, err)

			a := FailureKey{Module: "Net > HTTP", Test: "get"}
			b := FailureKey{Module: "", Test: "loose"}
			require.NoError(t, st.PutFailure(ctx, a, 2))
			require.NoError(t, st.PutFailure(ctx, b, 1))
			require.NoError(t, st.PutFailure(ctx, a, 3))
			require.NoError(t, st.DeleteFailure(ctx, FailureKey{Module: "x", Test: "missing"}))
			require.NoError(t, st.AppendRun(ctx, RunRecord{RunID: "r1", Status: "failed", Tests: 2, FailedTests: 2}))

			got, err := st.LoadFailures(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[FailureKey]int{a: 3, b: 1}, got)
			require.NoError(t, st.Close())

			// Reopen: state survives.
			st, err = Open(cfg, logx.Nop())
			require.NoError(t, err)
			got, err = st.LoadFailures(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[FailureKey]int{a: 3, b: 1}, got)

			require.NoError(t, st.PutFailure(ctx, b, 0))
			got, err = st.LoadFailures(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[FailureKey]int{a: 3}, got)

			require.NoError(t, st.ClearFailures(ctx))
			got, err = st.LoadFailures(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)
			require.NoError(t, st.Close())

			st, err = Open(cfg, logx.Nop())
			require.NoError(t, err)
			got, err = st.LoadFailures(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)
			require.NoError(t, st.Close())
		})
	}
}

func TestFileStoreReplaysClearMarker(t *testing.T) {
	t.Parallel()

	out := map[FailureKey]int{}
	path := filepath.Join(t.TempDir(), "j.jsonl")
	lines := `{"module":"m","test":"a","count":1}
{"clear":true}
{"module":"m","test":"b","count":4}
not json
{"module":"m","test":"b"}
{"module":"m","test":"c","count":2}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o600))
	require.NoError(t, replayFailureJournal(path, out))
	assert.Equal(t, map[FailureKey]int{{Module: "m", Test: "c"}: 2}, out)
}
