package reporter

import (
	"context"
	"sync"
	"time"

	"pewunit/internal/eventbus"
	"pewunit/internal/runner"
	"pewunit/internal/storage"
	logx "pewunit/pkg/logx"
)

// storeTimeout bounds each write issued from the publishing goroutine.
const storeTimeout = 2 * time.Second

// FailureRecorder keeps the failure memory in sync with the run: a failed
// test stores its failed assertion count, a passing one clears its entry,
// and a fully green run clears everything. It also appends one RunRecord
// per run.
type FailureRecorder struct {
	store storage.Store
	log   logx.Logger
	seed  string

	mu     sync.Mutex
	loaded map[storage.FailureKey]int
}

func NewFailureRecorder(store storage.Store, log logx.Logger, seed string) *FailureRecorder {
	return &FailureRecorder{store: store, log: log, seed: seed, loaded: map[storage.FailureKey]int{}}
}

// Load reads the previous run's failures. It must be called before the
// runner is built so Lookup reflects them.
func (f *FailureRecorder) Load(ctx context.Context) error {
	got, err := f.store.LoadFailures(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.loaded = got
	f.mu.Unlock()
	f.log.Debug("failure memory loaded", logx.Int("tests", len(got)))
	return nil
}

// Lookup is a runner.FailureLookup over the loaded snapshot.
func (f *FailureRecorder) Lookup(module, test string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded[storage.FailureKey{Module: module, Test: test}]
}

// Handle is a bus listener. Store errors are logged, never propagated.
func (f *FailureRecorder) Handle(e eventbus.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	switch d := e.Data.(type) {
	case runner.TestDoneEvent:
		key := storage.FailureKey{Module: d.Module, Test: d.Name}
		var err error
		switch d.Status {
		case runner.StatusFailed:
			err = f.store.PutFailure(ctx, key, max(d.Failed, 1))
		case runner.StatusPassed, runner.StatusTodo:
			err = f.store.DeleteFailure(ctx, key)
		}
		if err != nil {
			f.log.Warn("failure memory write failed", logx.String("test", d.Name), logx.Err(err))
		}
	case runner.RunEndEvent:
		if d.Status == runner.StatusPassed && !d.Aborted {
			if err := f.store.ClearFailures(ctx); err != nil {
				f.log.Warn("failure memory clear failed", logx.Err(err))
			}
		}
		rec := storage.RunRecord{
			At:          e.Time,
			RunID:       d.RunID,
			Status:      d.Status,
			Aborted:     d.Aborted,
			Tests:       d.TestCounts.Total,
			FailedTests: d.TestCounts.Failed,
			Assertions:  d.Total,
			Failed:      d.Failed,
			TookMS:      d.Runtime.Milliseconds(),
			Seed:        f.seed,
		}
		if err := f.store.AppendRun(ctx, rec); err != nil {
			f.log.Warn("run history append failed", logx.Err(err))
		}
	}
}
