package runner

import (
	"time"

	"pewunit/internal/eventbus"
)

// Event types published on the bus.
const (
	EventRunStart    = "runStart"
	EventModuleStart = "moduleStart"
	EventModuleDone  = "moduleDone"
	EventTestStart   = "testStart"
	EventTestDone    = "testDone"
	EventAssertion   = "assertion"
	EventError       = "error"
	EventRunEnd      = "runEnd"
)

// Test statuses reported in TestDoneEvent.Status.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
	StatusTodo    = "todo"
	StatusAborted = "aborted"
)

// TestRef identifies a declared test.
type TestRef struct {
	Name   string
	TestID string
	Skip   bool
}

type ModuleInfo struct {
	Name     string
	ModuleID string
	Tests    []TestRef
}

type RunStartEvent struct {
	RunID string
	// TotalTests counts every declared test, including those the filters
	// or Only exclude.
	TotalTests int
	Modules    []ModuleInfo
}

type ModuleStartEvent struct {
	Name     string
	ModuleID string
	Tests    []TestRef
}

// ModuleDoneEvent counts assertions of the module and all its descendants.
type ModuleDoneEvent struct {
	Name     string
	ModuleID string
	Tests    []TestRef
	Failed   int
	Passed   int
	Total    int
	Runtime  time.Duration
}

type TestStartEvent struct {
	Name            string
	Module          string
	TestID          string
	PreviousFailure bool
}

// AssertionResult is the slim form of an assertion kept in TestDoneEvent.
type AssertionResult struct {
	Result  bool
	Message string
}

type TestDoneEvent struct {
	Name       string
	Module     string
	TestID     string
	Status     string
	Skipped    bool
	Todo       bool
	Aborted    bool
	Failed     int
	Passed     int
	Total      int
	Runtime    time.Duration
	Assertions []AssertionResult
	// Source is where the test was declared.
	Source string
}

// AssertionEvent is published for every pushed assertion. Actual and
// Expected are deep copies taken when the assertion was pushed.
type AssertionEvent struct {
	Module   string
	Test     string
	TestID   string
	Passed   bool
	Actual   any
	Expected any
	Negative bool
	Message  string
	Diff     string
	Stack    string
	Todo     bool
}

// ErrorEvent reports an uncaught error while no test was running.
type ErrorEvent struct {
	Message string
	Stack   string
}

type TestCounts struct {
	Passed  int
	Failed  int
	Skipped int
	Todo    int
	Aborted int
	Total   int
}

// RunEndEvent totals assertions across the run; TestCounts totals tests.
type RunEndEvent struct {
	RunID      string
	Status     string
	Passed     int
	Failed     int
	Total      int
	Runtime    time.Duration
	Aborted    bool
	TestCounts TestCounts
}

// outbox collects events under the runner lock. They are staged before the
// lock is released and delivered by flush after it, so listeners never run
// under the lock and see events in the order they were produced, whichever
// goroutine produced them.
type outbox []eventbus.Event

func (o *outbox) add(typ string, at time.Time, data any) {
	*o = append(*o, eventbus.Event{Type: typ, Time: at, Data: data})
}

func (r *Runner) stageLocked(out outbox) {
	r.staged = append(r.staged, out...)
}

// flush delivers staged events. When another goroutine is already
// delivering, the events are left to it.
func (r *Runner) flush() {
	for {
		if !r.pubMu.TryLock() {
			return
		}
		r.deliverStaged()
		r.pubMu.Unlock()

		// Events staged while pubMu was being released would be stranded.
		r.mu.Lock()
		empty := len(r.staged) == 0
		r.mu.Unlock()
		if empty {
			return
		}
	}
}

// flushWait delivers staged events, waiting out a concurrent deliverer so
// everything staged so far has reached the bus when it returns.
func (r *Runner) flushWait() {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	r.deliverStaged()
}

func (r *Runner) deliverStaged() {
	for {
		r.mu.Lock()
		evs := r.staged
		r.staged = nil
		r.mu.Unlock()
		if len(evs) == 0 {
			return
		}
		for _, e := range evs {
			r.bus.Publish(e)
		}
	}
}

func cloneRefs(in []TestRef) []TestRef {
	if len(in) == 0 {
		return nil
	}
	return append([]TestRef(nil), in...)
}
