package runner

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Assert is handed to test bodies and hooks. Its methods are safe to call
// from any goroutine while the test runs; using it after the test finished
// panics with *OutsideTestContextError.
type Assert struct {
	r *Runner
	t *test
}

// Result is a custom assertion outcome for PushResult.
type Result struct {
	Result   bool
	Actual   any
	Expected any
	Message  string
	Negative bool
}

func (a *Assert) Name() string   { return a.t.name }
func (a *Assert) Module() string { return a.t.module.name }
func (a *Assert) TestID() string { return a.t.id }

// Context is cancelled when the run ends or is aborted.
func (a *Assert) Context() context.Context {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.r.runCtx
}

// Env is the test's copy of its module environment. Writes made by a
// module "before" hook carry over to the following tests of the module.
func (a *Assert) Env() map[string]any {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.t.env
}

func (a *Assert) Ok(cond bool, msg string) {
	a.pushResult(Assertion{Result: cond, Actual: cond, Expected: true, Message: msg}, "")
}

func (a *Assert) NotOk(cond bool, msg string) {
	a.pushResult(Assertion{Result: !cond, Actual: cond, Expected: false, Message: msg, Negative: true}, "")
}

// Equal compares with ==. Values of different dynamic types, or of
// incomparable types, are never equal.
func (a *Assert) Equal(actual, expected any, msg string) {
	a.pushResult(Assertion{Result: shallowEqual(actual, expected), Actual: actual, Expected: expected, Message: msg}, "")
}

func (a *Assert) NotEqual(actual, expected any, msg string) {
	a.pushResult(Assertion{Result: !shallowEqual(actual, expected), Actual: actual, Expected: expected, Message: msg, Negative: true}, "")
}

// DeepEqual compares structurally, including unexported fields. A nil slice
// or map equals an empty one. Failures carry a diff (-expected +actual).
func (a *Assert) DeepEqual(actual, expected any, msg string) {
	ok, diff := deepEqual(actual, expected)
	a.pushResult(Assertion{Result: ok, Actual: actual, Expected: expected, Message: msg}, diff)
}

func (a *Assert) NotDeepEqual(actual, expected any, msg string) {
	ok, _ := deepEqual(actual, expected)
	a.pushResult(Assertion{Result: !ok, Actual: actual, Expected: expected, Message: msg, Negative: true}, "")
}

func (a *Assert) Fail(msg string) {
	a.pushResult(Assertion{Message: msg}, "")
}

func (a *Assert) PushResult(res Result) {
	a.pushResult(Assertion{
		Result:   res.Result,
		Actual:   res.Actual,
		Expected: res.Expected,
		Message:  res.Message,
		Negative: res.Negative,
	}, "")
}

// Throws calls fn and passes when it panics with a value matching expected.
// expected may be nil (any panic), an error (matched with errors.Is), a
// *regexp.Regexp (matched against the panic message) or a func(any) bool
// validator.
func (a *Assert) Throws(fn func(), expected any, msg string) {
	if fn == nil {
		a.pushResult(Assertion{Message: fmt.Sprintf("The value provided to `assert.throws` in \"%s\" was not a function.", a.t.name)}, "")
		return
	}
	checkExpected(expected, "Throws")

	thrown, panicked := recoverPanic(fn)
	as := Assertion{Expected: shownExpected(expected), Message: msg}
	if panicked {
		as.Result, as.Expected = matchThrown(thrown, expected)
		as.Actual = panicMessage(thrown)
	}
	a.pushResult(as, "")
}

// Rejects suspends the test until f completes and passes when f.Err matches
// expected, with the same rules as Throws. A future that completes without
// an error fails.
func (a *Assert) Rejects(f Future, expected any, msg string) {
	if f == nil {
		a.pushResult(Assertion{Message: fmt.Sprintf("The value provided to `assert.rejects` in \"%s\" was not a future.", a.t.name)}, "")
		return
	}
	checkExpected(expected, "Rejects")

	r, t := a.r, a.t
	tok, err := r.acquire(t, 1)
	if err != nil {
		panic(err)
	}
	r.mu.Lock()
	done := r.runCtx.Done()
	r.mu.Unlock()

	go func() {
		select {
		case <-f.Done():
		case <-done:
			return
		}
		r.post(func() { r.settleRejection(t, tok, f.Err(), expected, msg) })
	}()
}

func recoverPanic(fn func()) (v any, panicked bool) {
	defer func() {
		if v = recover(); v != nil {
			panicked = true
		}
	}()
	fn()
	return nil, false
}

// checkExpected panics on an expected value Throws and Rejects cannot match.
func checkExpected(expected any, method string) {
	switch expected.(type) {
	case nil, error, *regexp.Regexp, func(any) bool:
	case string:
		panic(fmt.Errorf("runner: assert.%s does not accept a string for expected; use a *regexp.Regexp or a validator func", method))
	default:
		panic(fmt.Errorf("runner: invalid expected type %T provided to assert.%s", expected, method))
	}
}

// matchThrown reports whether v matches expected and returns the value
// recorded as the assertion's Expected.
func matchThrown(v, expected any) (ok bool, shown any) {
	shown = shownExpected(expected)
	switch x := expected.(type) {
	case nil:
		return true, shown
	case *regexp.Regexp:
		return x.MatchString(panicMessage(v)), shown
	case error:
		err, isErr := v.(error)
		return isErr && errors.Is(err, x), shown
	case func(any) bool:
		defer func() {
			if p := recover(); p != nil {
				ok, shown = false, panicMessage(p)
			}
		}()
		return x(v), shown
	}
	return false, shown
}

func shownExpected(expected any) any {
	switch x := expected.(type) {
	case *regexp.Regexp:
		return x.String()
	case error:
		return x.Error()
	case func(any) bool:
		return nil
	}
	return expected
}

// Expect declares how many assertions the test must record.
func (a *Assert) Expect(n int) {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	a.t.expected = n
	a.t.hasExpected = true
}

// Expected returns the count set by Expect.
func (a *Assert) Expected() (int, bool) {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.t.expected, a.t.hasExpected
}

// Async suspends the test until the returned function has been called
// count times (at least once).
func (a *Assert) Async(count int) (release func()) {
	tok, err := a.r.acquire(a.t, count)
	if err != nil {
		panic(err)
	}
	return func() { a.r.release(a.t, tok) }
}

// Await suspends the test until f completes. A non-nil Err fails the test
// and cancels its other pauses.
func (a *Assert) Await(f Future) {
	r, t := a.r, a.t
	tok, err := r.acquire(t, 1)
	if err != nil {
		panic(err)
	}
	r.mu.Lock()
	phase, done := t.phase, r.runCtx.Done()
	r.mu.Unlock()

	go func() {
		select {
		case <-f.Done():
		case <-done:
			return
		}
		r.post(func() { r.settle(t, tok, phase, f.Err()) })
	}()
}

// Timeout overrides the run's test timeout for this test. 0 requires the
// test to finish synchronously. An armed timer restarts with the new value.
func (a *Assert) Timeout(d time.Duration) {
	r, t := a.r, a.t
	r.mu.Lock()
	defer r.mu.Unlock()
	t.timeout = d
	t.hasTimeout = true
	if r.timer != nil && r.current == t {
		r.stopTimerLocked()
		if d > 0 {
			r.armTimerLocked(t, d)
		}
	}
}

// Step records msg for a later VerifySteps and passes unless msg is empty.
func (a *Assert) Step(msg string) {
	as := Assertion{Result: msg != "", Message: msg}
	if msg == "" {
		as.Message = "You must provide a message to assert.step"
	}
	as.Source = callerSource()

	r := a.r
	r.mu.Lock()
	var out outbox
	err := r.pushLocked(a.t, as, "", &out)
	if err == nil {
		a.t.steps = append(a.t.steps, msg)
	}
	r.stageLocked(out)
	r.mu.Unlock()
	if err != nil {
		panic(err)
	}
	r.flush()
}

// VerifySteps compares the recorded steps with expected and resets them.
func (a *Assert) VerifySteps(expected []string, msg string) {
	r := a.r
	r.mu.Lock()
	got := a.t.steps
	a.t.steps = nil
	r.mu.Unlock()

	ok, diff := deepEqual(got, expected)
	a.pushResult(Assertion{Result: ok, Actual: got, Expected: expected, Message: msg}, diff)
}

func (a *Assert) pushResult(as Assertion, diff string) {
	if !as.Result && as.Source == "" {
		as.Source = callerSource()
	}
	r := a.r
	r.mu.Lock()
	var out outbox
	err := r.pushLocked(a.t, as, diff, &out)
	r.stageLocked(out)
	r.mu.Unlock()
	if err != nil {
		panic(err)
	}
	r.flush()
}

func (r *Runner) pushLocked(t *test, as Assertion, diff string, out *outbox) error {
	if r.current != t || t.finished {
		return &OutsideTestContextError{Test: t.name, Message: as.Message}
	}
	as.Actual, as.Expected = snapshot(as.Actual), snapshot(as.Expected)
	t.assertions = append(t.assertions, as)

	ev := AssertionEvent{
		Module:   t.module.name,
		Test:     t.name,
		TestID:   t.id,
		Passed:   as.Result,
		Actual:   as.Actual,
		Expected: as.Expected,
		Negative: as.Negative,
		Message:  as.Message,
		Todo:     t.todo,
	}
	if !as.Result {
		ev.Diff = diff
		ev.Stack = as.Source
	}
	out.add(EventAssertion, r.clock.Now(), ev)
	return nil
}

var deepOpts = cmp.Options{
	cmpopts.EquateEmpty(),
	cmp.Exporter(func(reflect.Type) bool { return true }),
}

func deepEqual(actual, expected any) (ok bool, diff string) {
	defer func() {
		if recover() != nil {
			ok, diff = reflect.DeepEqual(actual, expected), ""
		}
	}()
	if cmp.Equal(actual, expected, deepOpts) {
		return true, ""
	}
	return false, cmp.Diff(expected, actual, deepOpts)
}

func shallowEqual(actual, expected any) (eq bool) {
	if actual == nil || expected == nil {
		return actual == expected
	}
	if !reflect.TypeOf(actual).Comparable() || !reflect.TypeOf(expected).Comparable() {
		return false
	}
	// Comparable structs may still hold incomparable interface values.
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return actual == expected
}
