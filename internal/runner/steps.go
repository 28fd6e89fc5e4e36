package runner

import (
	"fmt"
	"maps"
	"strings"
	"time"

	logx "pewunit/pkg/logx"
)

// chainLocked expands a dequeued test into its ordered steps. Hook lists are
// resolved now; whether a before/after hook actually fires is decided when
// its step runs.
func (r *Runner) chainLocked(t *test) []func() {
	steps := []func(){func() { r.beforeTest(t) }}
	steps = append(steps, r.hookStepsLocked(t, HookBefore)...)
	steps = append(steps, func() { r.preserveEnv(t) })
	steps = append(steps, r.hookStepsLocked(t, HookBeforeEach)...)
	steps = append(steps, func() { r.runBody(t) })
	steps = append(steps, reversed(r.hookStepsLocked(t, HookAfterEach))...)
	steps = append(steps, reversed(r.hookStepsLocked(t, HookAfter))...)
	return append(steps, func() { r.finishTest(t) })
}

// hookStepsLocked lists the hooks of one phase: global hooks first (each
// phases only), then the module chain from the outermost ancestor down.
func (r *Runner) hookStepsLocked(t *test, phase HookPhase) []func() {
	if t.skip {
		return nil
	}
	var steps []func()
	if phase == HookBeforeEach || phase == HookAfterEach {
		for _, h := range r.globalHooks[phase] {
			steps = append(steps, r.globalHookStep(t, h, phase))
		}
	}
	var chain []*module
	for m := t.module; m != nil; m = m.parent {
		chain = append(chain, m)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, h := range chain[i].hooks[phase] {
			steps = append(steps, r.hookStep(t, h, phase, chain[i]))
		}
	}
	return steps
}

func reversed(in []func()) []func() {
	for i, j := 0, len(in)-1; i < j; i, j = i+1, j-1 {
		in[i], in[j] = in[j], in[i]
	}
	return in
}

func (r *Runner) hookStep(t *test, h HookFunc, phase HookPhase, owner *module) func() {
	return func() {
		r.mu.Lock()
		switch phase {
		case HookBefore:
			if owner.testsRun != 0 {
				r.mu.Unlock()
				return
			}
			t.preserveEnv = true
		case HookAfter:
			if owner.pending > 1 {
				r.mu.Unlock()
				return
			}
		}
		t.phase = phase.String()
		r.mu.Unlock()

		r.call(t, h, func(msg string) string {
			return fmt.Sprintf("%s failed on %s: %s", phase, t.name, msg)
		})
	}
}

func (r *Runner) globalHookStep(t *test, h HookFunc, phase HookPhase) func() {
	return func() {
		r.mu.Lock()
		t.phase = phase.String()
		r.mu.Unlock()

		r.call(t, h, func(msg string) string {
			return fmt.Sprintf("Global %s failed on %s: %s", phase, t.name, msg)
		})
	}
}

// call runs fn for t. A panic becomes a failed assertion whose message is
// built by failure, unless NoTryCatch lets it escape.
func (r *Runner) call(t *test, fn func(*Assert), failure func(msg string) string) (panicked bool) {
	if r.cfg.NoTryCatch {
		fn(t.assert)
		return false
	}
	defer func() {
		if v := recover(); v != nil {
			panicked = true
			stack := logx.StackTrace(3, 16)
			t.assert.pushResult(Assertion{Message: failure(panicMessage(v)), Source: stack}, "")
		}
	}()
	fn(t.assert)
	return false
}

func (r *Runner) beforeTest(t *test) {
	r.mu.Lock()
	now := r.clock.Now()

	var out outbox
	startModulesLocked(t.module, now, &out)

	r.current = t
	t.started = now
	t.env = maps.Clone(t.module.env)
	out.add(EventTestStart, now, TestStartEvent{
		Name:            t.name,
		Module:          t.module.name,
		TestID:          t.id,
		PreviousFailure: t.previousFailure,
	})
	r.stageLocked(out)
	r.mu.Unlock()

	r.log.Debug("test started",
		logx.String("module", t.module.name),
		logx.String("test", t.name),
		logx.String("test_id", t.id),
	)
	r.flush()
}

// startModulesLocked publishes moduleStart for m and every ancestor not yet
// started, outermost first.
func startModulesLocked(m *module, now time.Time, out *outbox) {
	var starting []*module
	for ; m != nil && !m.started; m = m.parent {
		starting = append(starting, m)
	}
	for i := len(starting) - 1; i >= 0; i-- {
		m := starting[i]
		m.started = true
		m.stats = moduleStats{started: now}
		out.add(EventModuleStart, now, ModuleStartEvent{Name: m.name, ModuleID: m.id, Tests: cloneRefs(m.tests)})
	}
}

// preserveEnv promotes the env written by a module's "before" hook to the
// module, so later tests of the module start from it.
func (r *Runner) preserveEnv(t *test) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.preserveEnv {
		t.module.env = t.env
		t.env = maps.Clone(t.module.env)
	}
}

func (r *Runner) runBody(t *test) {
	r.mu.Lock()
	t.phase = ""
	r.mu.Unlock()

	panicked := r.call(t, t.body, func(msg string) string {
		r.mu.Lock()
		n := len(t.assertions) + 1
		r.mu.Unlock()
		return fmt.Sprintf("Died on test #%d: %s\n%s", n, msg, t.source)
	})

	r.mu.Lock()
	var out outbox
	if panicked && r.blocking {
		r.cancelPausesLocked(t)
		r.resumeLocked()
	}
	if t.hasTimeout && t.timeout == 0 && len(t.pauses) > 0 {
		_ = r.pushLocked(t, Assertion{
			Message: "Test did not finish synchronously even though assert.timeout( 0 ) was used.",
			Source:  t.source,
		}, "", &out)
		r.cancelPausesLocked(t)
		r.resumeLocked()
	}
	r.stageLocked(out)
	r.mu.Unlock()
	r.flush()
}

func (r *Runner) finishTest(t *test) {
	r.mu.Lock()
	var out outbox
	fail := func(msg string) {
		_ = r.pushLocked(t, Assertion{Message: msg, Source: t.source}, "", &out)
	}

	if len(t.steps) > 0 {
		fail("Expected assert.verifySteps() to be called before end of test after using assert.step(). Unverified steps: " +
			strings.Join(t.steps, ", "))
	}
	switch {
	case r.cfg.RequireExpects && !t.hasExpected:
		fail("Expected number of assertions to be defined, but expect() was not called.")
	case t.hasExpected && t.expected != len(t.assertions):
		fail(fmt.Sprintf("Expected %d assertions, but %d were run", t.expected, len(t.assertions)))
	case !t.hasExpected && len(t.assertions) == 0:
		fail("Expected at least one assertion, but none were run - call expect(0) to accept zero assertions.")
	}

	now := r.clock.Now()
	runtime := now.Sub(t.started)
	if t.skip {
		runtime = 0
	}
	n, bad := len(t.assertions), t.failedCount()
	r.stats.all += n
	r.stats.bad += bad
	r.stats.testCount++
	t.module.addStats(n, bad)
	if t.skip {
		t.module.addIgnored()
	} else {
		t.module.addRun()
	}
	if t.runnableTest {
		t.module.addPending(-1)
		t.runnableTest = false
	}

	status := testStatus(t.skip, t.todo, bad)
	r.countStatusLocked(status)
	r.stopTimerLocked()
	t.finished = true
	r.current = nil

	out.add(EventTestDone, now, TestDoneEvent{
		Name:       t.name,
		Module:     t.module.name,
		TestID:     t.id,
		Status:     status,
		Skipped:    t.skip,
		Todo:       t.todo,
		Failed:     bad,
		Passed:     n - bad,
		Total:      n,
		Runtime:    runtime,
		Assertions: t.slimAssertions(),
		Source:     t.source,
	})
	r.completeModulesLocked(t.module, now, &out)
	r.stageLocked(out)
	r.mu.Unlock()

	r.log.Debug("test done",
		logx.String("module", t.module.name),
		logx.String("test", t.name),
		logx.String("status", status),
		logx.Int("assertions", n),
		logx.Int("failed", bad),
	)
	r.flush()
}
