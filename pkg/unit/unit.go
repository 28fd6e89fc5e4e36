// Package unit is the public face of the pewunit scheduler: declare modules
// and tests on a Runner, then Run it.
//
//	r, _ := unit.New(unit.DefaultConfig())
//	r.Module("math", func(s *unit.Scope) {
//		s.Test("adds", func(a *unit.Assert) { a.Equal(1+1, 2, "sum") })
//	})
//	end, err := r.Run(ctx)
package unit

import "pewunit/internal/runner"

type (
	Runner       = runner.Runner
	Scope        = runner.Scope
	GlobalHooks  = runner.GlobalHooks
	Assert       = runner.Assert
	Result       = runner.Result
	Future       = runner.Future
	Config       = runner.Config
	Option       = runner.Option
	ModuleOption = runner.ModuleOption
	TestOption   = runner.TestOption
	TestFunc     = runner.TestFunc
	HookFunc     = runner.HookFunc
	EachFunc     = runner.EachFunc
	RunEndEvent  = runner.RunEndEvent
	TestCounts   = runner.TestCounts

	InvalidReleaseError     = runner.InvalidReleaseError
	OutsideTestContextError = runner.OutsideTestContextError
)

const (
	StatusPassed  = runner.StatusPassed
	StatusFailed  = runner.StatusFailed
	StatusSkipped = runner.StatusSkipped
	StatusTodo    = runner.StatusTodo
	StatusAborted = runner.StatusAborted
)

var (
	ErrAborted        = runner.ErrAborted
	ErrAlreadyStarted = runner.ErrAlreadyStarted
	ErrInvalidFilter  = runner.ErrInvalidFilter
)

var (
	New                  = runner.New
	DefaultConfig        = runner.DefaultConfig
	WithLogger           = runner.WithLogger
	WithBus              = runner.WithBus
	WithPreviousFailures = runner.WithPreviousFailures
	WithEnv              = runner.WithEnv
	WithTimeout          = runner.WithTimeout

	// Go runs fn on its own goroutine; Await it from a test body.
	Go      = runner.Go
	Settled = runner.Settled
)
