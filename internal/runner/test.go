package runner

import (
	"time"
)

// TestFunc is a test body.
type TestFunc func(a *Assert)

// EachFunc is a test body fed one element of an Each data set.
type EachFunc func(a *Assert, data any)

// Assertion is one recorded result. It is never modified once pushed.
type Assertion struct {
	Result   bool
	Message  string
	Actual   any
	Expected any
	Negative bool
	Source   string
}

type pauseToken struct {
	id        int
	remaining int
	cancelled bool
}

type test struct {
	name   string
	id     string
	module *module
	body   TestFunc
	assert *Assert
	source string

	skip bool
	todo bool
	// bypassFilter marks synthetic "global failure" tests.
	bypassFilter    bool
	previousFailure bool

	assertions  []Assertion
	expected    int
	hasExpected bool
	steps       []string

	pauses      map[int]*pauseToken
	nextPauseID int
	// timeout overrides Config.TestTimeout when hasTimeout is set.
	timeout    time.Duration
	hasTimeout bool

	env          map[string]any
	preserveEnv  bool
	phase        string
	started      time.Time
	finished     bool
	aborted      bool
	runnableTest bool // queued and not skipped; counted in module.pending
}

func (t *test) failedCount() int {
	n := 0
	for _, a := range t.assertions {
		if !a.Result {
			n++
		}
	}
	return n
}

func (t *test) slimAssertions() []AssertionResult {
	out := make([]AssertionResult, len(t.assertions))
	for i, a := range t.assertions {
		out[i] = AssertionResult{Result: a.Result, Message: a.Message}
	}
	return out
}

// testStatus follows the todo inversion: a todo test passes only while
// at least one of its assertions still fails.
func testStatus(skipped, todo bool, failed int) string {
	switch {
	case skipped:
		return StatusSkipped
	case (failed > 0) == todo:
		if todo {
			return StatusTodo
		}
		return StatusPassed
	default:
		return StatusFailed
	}
}
