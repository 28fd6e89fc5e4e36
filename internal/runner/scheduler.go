package runner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pewunit/internal/eventbus"
	logx "pewunit/pkg/logx"
)

type State int32

const (
	// StateIdle: tests may be declared; Run has not been called.
	StateIdle State = iota
	// StateDraining: the loop is executing queued steps.
	StateDraining
	// StateAwaitingAsync: the current test holds pause tokens.
	StateAwaitingAsync
	// StateFinished: runEnd was published.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateAwaitingAsync:
		return "awaiting_async"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

type runStats struct {
	all       int
	bad       int
	testCount int
}

// Runner owns the module tree, the queue and every piece of run state.
// One Runner performs exactly one run.
type Runner struct {
	cfg      Config
	sel      selection
	log      logx.Logger
	bus      eventbus.Bus
	clock    Clock
	newPRNG  PRNGFactory
	failures FailureLookup
	runID    string

	mu          sync.Mutex
	state       State
	root        *module
	modules     []*module // declaration order
	globalHooks [hookPhaseCount][]HookFunc
	queue       runQueue
	tasks       []func()
	onlyTest    bool
	onlyModule  bool
	current     *test
	blocking    bool
	stats       runStats
	counts      TestCounts
	// declared counts every test constructed before Run, valid or not.
	declared    int
	totalTests  int
	started     time.Time
	zeroGuarded bool
	aborted     bool
	abortErr    error

	timer    Timer
	timerGen uint64

	runCtx    context.Context
	cancelRun context.CancelFunc

	// staged holds events in the order they were produced under mu;
	// pubMu admits one goroutine at a time to deliver them.
	staged []eventbus.Event
	pubMu  sync.Mutex

	// ingress holds work posted from other goroutines (releases, timeouts,
	// uncaught errors, abort). Only the loop drains it.
	ingress []func()
	wake    chan struct{}
}

// New returns an idle runner. It fails only when cfg.Filter is an invalid
// regular expression.
func New(cfg Config, opts ...Option) (*Runner, error) {
	sel, err := newSelection(cfg)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:     cfg,
		sel:     sel,
		log:     logx.Nop(),
		bus:     eventbus.New(),
		clock:   realClock{},
		newPRNG: NewSeededPRNG,
		runID:   uuid.NewString(),
		wake:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}

	r.root = newModule("", nil, false, false, nil)
	r.modules = []*module{r.root}
	r.queue = runQueue{seed: cfg.Seed, newPRNG: r.newPRNG}
	r.runCtx, r.cancelRun = context.WithCancel(context.Background())
	return r, nil
}

func (r *Runner) RunID() string { return r.runID }

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Bus returns the bus events are published on.
func (r *Runner) Bus() eventbus.Bus { return r.bus }

// Run drains the queue on the calling goroutine and returns the runEnd
// payload. Cancelling ctx aborts the run the same way Abort does; runEnd is
// still published and the returned error is ctx.Err().
func (r *Runner) Run(ctx context.Context) (RunEndEvent, error) {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return RunEndEvent{}, ErrAlreadyStarted
	}
	r.state = StateDraining
	r.started = r.clock.Now()
	r.cancelRun()
	r.runCtx, r.cancelRun = context.WithCancel(ctx)
	r.totalTests = r.declared

	var out outbox
	out.add(EventRunStart, r.started, RunStartEvent{
		RunID:      r.runID,
		TotalTests: r.totalTests,
		Modules:    r.moduleInfosLocked(),
	})
	r.stageLocked(out)
	r.mu.Unlock()
	defer r.cancelRun()

	r.log.Info("run started",
		logx.String("run_id", r.runID),
		logx.Int("tests", r.totalTests),
		logx.String("seed", r.cfg.Seed),
	)
	r.flush()

	for {
		r.drainIngress()
		if err := ctx.Err(); err != nil {
			r.abort(err)
		}

		step, end, done := r.next()
		switch {
		case done:
			r.log.Info("run finished",
				logx.String("run_id", r.runID),
				logx.String("status", end.Status),
				logx.Int("tests", end.TestCounts.Total),
				logx.Int("failed_tests", end.TestCounts.Failed),
				logx.Int("assertions", end.Total),
				logx.Duration("runtime", end.Runtime),
				logx.Bool("aborted", end.Aborted),
			)
			r.mu.Lock()
			err := r.abortErr
			r.mu.Unlock()
			return end, err
		case step != nil:
			step()
		default:
			select {
			case <-r.wake:
			case <-ctx.Done():
			}
		}
	}
}

// Abort empties the queue. The running test, if any, is reported aborted
// once its current step returns; Run then publishes runEnd.
func (r *Runner) Abort() {
	r.post(func() { r.abort(ErrAborted) })
}

// ReportError records an error raised outside the scheduler's control. While
// a test runs it fails that test; otherwise it is published as an error
// event and recorded as a failing "global failure" test.
func (r *Runner) ReportError(err error) {
	if err == nil {
		return
	}
	msg, stack := err.Error(), callerSource()
	r.post(func() { r.uncaught(msg, stack) })
}

func (r *Runner) post(fn func()) {
	r.mu.Lock()
	r.ingress = append(r.ingress, fn)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) drainIngress() {
	for {
		r.mu.Lock()
		in := r.ingress
		r.ingress = nil
		r.mu.Unlock()
		if len(in) == 0 {
			return
		}
		for _, fn := range in {
			fn()
		}
	}
}

// next picks the step to run. step == nil && !done means the loop is
// blocked on pause tokens.
func (r *Runner) next() (step func(), end RunEndEvent, done bool) {
	r.mu.Lock()
	for {
		if r.blocking {
			r.state = StateAwaitingAsync
			r.mu.Unlock()
			return nil, RunEndEvent{}, false
		}
		r.state = StateDraining

		if len(r.tasks) > 0 {
			step = r.tasks[0]
			r.tasks[0] = nil
			r.tasks = r.tasks[1:]
			r.mu.Unlock()
			return step, RunEndEvent{}, false
		}
		if t := r.queue.shift(); t != nil {
			r.tasks = r.chainLocked(t)
			continue
		}
		if !r.aborted && !r.zeroGuarded && r.stats.testCount == 0 && r.cfg.FailOnZeroTests {
			r.zeroGuarded = true
			r.declareGlobalFailureLocked(zeroTestsMessage(r.cfg), "")
			continue
		}

		end, out := r.finishRunLocked()
		r.stageLocked(out)
		r.mu.Unlock()
		r.flushWait()
		return nil, end, true
	}
}

func (r *Runner) finishRunLocked() (RunEndEvent, outbox) {
	now := r.clock.Now()
	r.state = StateFinished
	r.stopTimerLocked()

	counts := r.counts
	counts.Total = counts.Passed + counts.Failed + counts.Skipped + counts.Todo + counts.Aborted
	status := StatusPassed
	if counts.Failed > 0 {
		status = StatusFailed
	}
	end := RunEndEvent{
		RunID:      r.runID,
		Status:     status,
		Passed:     r.stats.all - r.stats.bad,
		Failed:     r.stats.bad,
		Total:      r.stats.all,
		Runtime:    now.Sub(r.started),
		Aborted:    r.aborted,
		TestCounts: counts,
	}
	var out outbox
	out.add(EventRunEnd, now, end)
	return end, out
}

func (r *Runner) moduleInfosLocked() []ModuleInfo {
	out := make([]ModuleInfo, 0, len(r.modules))
	for _, m := range r.modules {
		if m.name == "" || !m.reported() {
			continue
		}
		out = append(out, m.info())
	}
	return out
}

func (r *Runner) countStatusLocked(status string) {
	switch status {
	case StatusPassed:
		r.counts.Passed++
	case StatusFailed:
		r.counts.Failed++
	case StatusSkipped:
		r.counts.Skipped++
	case StatusTodo:
		r.counts.Todo++
	case StatusAborted:
		r.counts.Aborted++
	}
}

// dropLocked accounts a queued test that will never run.
func (r *Runner) dropLocked(t *test) {
	t.module.addIgnored()
	if t.runnableTest {
		t.module.addPending(-1)
		t.runnableTest = false
	}
}

// completeModulesLocked publishes moduleDone for m and each ancestor that
// just became complete.
func (r *Runner) completeModulesLocked(m *module, now time.Time, out *outbox) {
	for ; m != nil && m.complete(); m = m.parent {
		if !m.started || m.done {
			continue
		}
		m.done = true
		out.add(EventModuleDone, now, ModuleDoneEvent{
			Name:     m.name,
			ModuleID: m.id,
			Tests:    cloneRefs(m.tests),
			Failed:   m.stats.bad,
			Passed:   m.stats.all - m.stats.bad,
			Total:    m.stats.all,
			Runtime:  now.Sub(m.stats.started),
		})
	}
}

func (r *Runner) abort(reason error) {
	r.mu.Lock()
	if r.aborted || r.state == StateFinished {
		r.mu.Unlock()
		return
	}
	r.aborted = true
	r.abortErr = reason
	now := r.clock.Now()

	var out outbox
	r.tasks = nil
	if t := r.current; t != nil {
		r.abortCurrentLocked(t, now, &out)
	}
	dropped := r.queue.clear()
	for _, t := range dropped {
		r.abortQueuedLocked(t, now, &out)
	}
	// Children are declared after their parents; walk backwards so they
	// complete first.
	for i := len(r.modules) - 1; i >= 0; i-- {
		r.completeModulesLocked(r.modules[i], now, &out)
	}
	r.stageLocked(out)
	r.mu.Unlock()

	r.cancelRun()
	r.log.Warn("run aborted", logx.Err(reason), logx.Int("dropped", len(dropped)))
	r.flush()
}

func (r *Runner) abortCurrentLocked(t *test, now time.Time, out *outbox) {
	r.cancelPausesLocked(t)
	r.stopTimerLocked()
	r.blocking = false

	n, bad := len(t.assertions), t.failedCount()
	r.stats.all += n
	r.stats.bad += bad
	t.module.addStats(n, bad)
	r.dropLocked(t)
	r.countStatusLocked(StatusAborted)

	t.finished = true
	t.aborted = true
	r.current = nil
	out.add(EventTestDone, now, TestDoneEvent{
		Name:       t.name,
		Module:     t.module.name,
		TestID:     t.id,
		Status:     StatusAborted,
		Skipped:    t.skip,
		Todo:       t.todo,
		Aborted:    true,
		Failed:     bad,
		Passed:     n - bad,
		Total:      n,
		Runtime:    now.Sub(t.started),
		Assertions: t.slimAssertions(),
		Source:     t.source,
	})
}

// abortQueuedLocked reports a test that was still queued as aborted without
// running it. Its modules are started first so every testDone falls between
// a moduleStart and a moduleDone.
func (r *Runner) abortQueuedLocked(t *test, now time.Time, out *outbox) {
	startModulesLocked(t.module, now, out)
	r.dropLocked(t)
	r.countStatusLocked(StatusAborted)
	t.finished = true
	t.aborted = true
	out.add(EventTestDone, now, TestDoneEvent{
		Name:       t.name,
		Module:     t.module.name,
		TestID:     t.id,
		Status:     StatusAborted,
		Skipped:    t.skip,
		Todo:       t.todo,
		Aborted:    true,
		Assertions: []AssertionResult{},
		Source:     t.source,
	})
}

func (r *Runner) uncaught(msg, stack string) {
	r.mu.Lock()
	if r.state == StateFinished {
		r.mu.Unlock()
		r.log.Warn("uncaught error after run end", logx.String("err", msg))
		return
	}

	var out outbox
	if t := r.current; t != nil {
		_ = r.pushLocked(t, Assertion{Message: "global failure: " + msg, Source: stack}, "", &out)
		r.stageLocked(out)
		r.mu.Unlock()
		r.flush()
		return
	}

	out.add(EventError, r.clock.Now(), ErrorEvent{Message: msg, Stack: stack})
	if !r.aborted {
		r.declareGlobalFailureLocked(msg, stack)
	}
	r.stageLocked(out)
	r.mu.Unlock()
	r.log.Error("uncaught error", logx.String("err", msg))
	r.flush()
}

// declareGlobalFailureLocked queues a synthetic test that fails with msg.
// It bypasses filters and Only. If the root module already reported
// moduleDone, a fresh unnamed module hosts the test so every module still
// completes exactly once.
func (r *Runner) declareGlobalFailureLocked(msg, stack string) {
	m := r.root
	if m.done {
		m = newModule("", nil, false, false, nil)
		r.modules = append(r.modules, m)
	}
	t := r.newTestLocked(m, testSpec{
		name: "global failure",
		body: func(a *Assert) {
			a.pushResult(Assertion{Message: msg, Source: stack}, "")
		},
		bypassFilter: true,
	})
	r.enqueueLocked(t)
}
