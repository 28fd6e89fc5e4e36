package runner

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted = errors.New("runner: already started")
	ErrAborted        = errors.New("runner: aborted")
	ErrInvalidFilter  = errors.New("runner: invalid filter")
)

type ReleaseReason int

const (
	// ReleaseAfterRun: the token's test finished and no test is running.
	ReleaseAfterRun ReleaseReason = iota
	// ReleaseOtherTest: another test is running.
	ReleaseOtherTest
	// ReleaseTwice: the token was already fully released.
	ReleaseTwice
)

// InvalidReleaseError is raised (as a panic) when a pause token is released
// at the wrong time. It indicates misuse of the Assert API, not a test failure.
type InvalidReleaseError struct {
	Reason  ReleaseReason
	Test    string
	PauseID int
}

func (e *InvalidReleaseError) Error() string {
	var head string
	switch e.Reason {
	case ReleaseAfterRun:
		head = "Unexpected release of async pause after tests finished."
	case ReleaseOtherTest:
		head = "Unexpected release of async pause during a different test."
	default:
		head = "Tried to release async pause that was already released."
	}
	return fmt.Sprintf("%s\n> Test: %s [async #%d]", head, e.Test, e.PauseID)
}

// OutsideTestContextError is raised (as a panic) when an assertion is made
// on a test that is not running.
type OutsideTestContextError struct {
	Test    string
	Message string
}

func (e *OutsideTestContextError) Error() string {
	return fmt.Sprintf("Assertion occurred after test finished.\n> Test: %s\n> Message: %s\n", e.Test, e.Message)
}

// panicMessage renders a recovered value the way failure messages quote it.
func panicMessage(v any) string {
	switch x := v.(type) {
	case error:
		return x.Error()
	case string:
		return x
	default:
		return fmt.Sprint(v)
	}
}
