package runner

import (
	"fmt"
	"strings"
	"time"

	logx "pewunit/pkg/logx"
)

// acquire registers a pause token on t, which must be running. The first
// token blocks the loop; every acquisition (re)arms the timeout.
func (r *Runner) acquire(t *test, count int) (*pauseToken, error) {
	if count < 1 {
		count = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != t || t.finished {
		return nil, &OutsideTestContextError{Test: t.name, Message: "assert.async()"}
	}

	tok := &pauseToken{id: t.nextPauseID, remaining: count}
	t.nextPauseID++
	t.pauses[tok.id] = tok
	r.blocking = true

	if d := r.timeoutLocked(t); d > 0 {
		r.armTimerLocked(t, d)
	}
	return tok, nil
}

func (r *Runner) timeoutLocked(t *test) time.Duration {
	if t.hasTimeout {
		return t.timeout
	}
	return r.cfg.TestTimeout
}

// release decrements tok. Releasing a cancelled token is a no-op; misuse
// panics with *InvalidReleaseError.
func (r *Runner) release(t *test, tok *pauseToken) {
	r.mu.Lock()
	if tok.cancelled {
		r.mu.Unlock()
		return
	}
	var err *InvalidReleaseError
	switch {
	case r.current == nil:
		err = &InvalidReleaseError{Reason: ReleaseAfterRun, Test: t.name, PauseID: tok.id}
	case r.current != t:
		err = &InvalidReleaseError{Reason: ReleaseOtherTest, Test: t.name, PauseID: tok.id}
	case tok.remaining <= 0:
		err = &InvalidReleaseError{Reason: ReleaseTwice, Test: t.name, PauseID: tok.id}
	}
	if err != nil {
		r.mu.Unlock()
		panic(err)
	}

	tok.remaining--
	if tok.remaining > 0 {
		r.mu.Unlock()
		return
	}
	delete(t.pauses, tok.id)
	last := len(t.pauses) == 0
	r.mu.Unlock()

	if last {
		r.post(func() { r.maybeResume(t) })
	}
}

func (r *Runner) maybeResume(t *test) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != t || len(t.pauses) > 0 {
		return
	}
	r.resumeLocked()
}

func (r *Runner) resumeLocked() {
	r.stopTimerLocked()
	r.blocking = false
}

// cancelPausesLocked invalidates every outstanding token of t.
func (r *Runner) cancelPausesLocked(t *test) {
	for _, tok := range t.pauses {
		tok.cancelled = true
	}
	clear(t.pauses)
}

func (r *Runner) armTimerLocked(t *test, d time.Duration) {
	r.stopTimerLocked()
	gen := r.timerGen
	r.timer = r.clock.AfterFunc(d, func() {
		r.post(func() { r.onTimeout(t, gen, d) })
	})
}

// stopTimerLocked disarms the timer and invalidates a timeout that already
// fired but has not been handled yet.
func (r *Runner) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerGen++
}

func (r *Runner) onTimeout(t *test, gen uint64, d time.Duration) {
	r.mu.Lock()
	if gen != r.timerGen || r.current != t || len(t.pauses) == 0 {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.cancelPausesLocked(t)

	var out outbox
	_ = r.pushLocked(t, Assertion{
		Message: fmt.Sprintf("Test took longer than %dms; test timed out.", d.Milliseconds()),
		Source:  t.source,
	}, "", &out)
	r.resumeLocked()
	r.stageLocked(out)
	r.mu.Unlock()

	r.log.Warn("test timed out",
		logx.String("module", t.module.name),
		logx.String("test", t.name),
		logx.Duration("timeout", d),
	)
	r.flush()
}

// settle handles a completed Future awaited by t.
func (r *Runner) settle(t *test, tok *pauseToken, phase string, err error) {
	r.mu.Lock()
	if tok.cancelled || r.current != t {
		r.mu.Unlock()
		return
	}
	if err == nil {
		r.mu.Unlock()
		r.release(t, tok)
		return
	}

	var out outbox
	_ = r.pushLocked(t, Assertion{Message: rejectionMessage(phase, t.name, err), Source: t.source}, "", &out)
	r.cancelPausesLocked(t)
	r.resumeLocked()
	r.stageLocked(out)
	r.mu.Unlock()
	r.flush()
}

// settleRejection records the outcome of Assert.Rejects and releases its
// token.
func (r *Runner) settleRejection(t *test, tok *pauseToken, err error, expected any, msg string) {
	r.mu.Lock()
	if tok.cancelled || r.current != t {
		r.mu.Unlock()
		return
	}
	as := Assertion{Message: msg, Source: t.source}
	if err == nil {
		as.Message = fmt.Sprintf("The future passed to `assert.rejects` in \"%s\" did not reject.", t.name)
	} else {
		as.Result, as.Expected = matchThrown(err, expected)
		as.Actual = err.Error()
	}
	var out outbox
	_ = r.pushLocked(t, as, "", &out)
	r.stageLocked(out)
	r.mu.Unlock()
	r.flush()

	r.release(t, tok)
}

func rejectionMessage(phase, name string, err error) string {
	where := "during"
	if phase != "" {
		where = strings.TrimSuffix(phase, "Each")
	}
	return fmt.Sprintf("Promise rejected %s \"%s\": %s", where, name, err.Error())
}
