package runner

import (
	"time"

	"pewunit/internal/eventbus"
	logx "pewunit/pkg/logx"
)

// Config selects and orders the tests of one run.
//
// Defaults (DefaultConfig):
//   - reorder: true
//   - fail_on_zero_tests: true
//   - test_timeout: 0 (disabled)
type Config struct {
	// Filter is matched against "<module>: <test>". A leading "!" negates;
	// "/re/" or "/re/i" selects a regular expression, anything else is a
	// case-insensitive substring.
	Filter string
	// Module keeps tests whose module, or any ancestor, has this full name
	// (case-insensitive).
	Module    string
	ModuleIDs []string
	TestIDs   []string

	// Seed inserts queued tests at seeded pseudo-random positions.
	Seed string
	// Reorder runs tests with a previous failure ahead of the rest.
	Reorder bool

	FailOnZeroTests bool
	RequireExpects  bool
	// NoTryCatch lets panics from hooks and bodies propagate out of Run.
	NoTryCatch bool

	// TestTimeout applies to tests that suspend and set no timeout of their own.
	TestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Reorder: true, FailOnZeroTests: true}
}

// FailureLookup reports how many assertions failed for a test in the
// previous run (0 when unknown).
type FailureLookup func(module, test string) int

type Option func(*Runner)

func WithLogger(log logx.Logger) Option {
	return func(r *Runner) { r.log = log }
}

func WithBus(bus eventbus.Bus) Option {
	return func(r *Runner) {
		if bus != nil {
			r.bus = bus
		}
	}
}

func WithClock(c Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithPRNG swaps the generator used for seeded reordering.
func WithPRNG(f PRNGFactory) Option {
	return func(r *Runner) {
		if f != nil {
			r.newPRNG = f
		}
	}
}

// WithPreviousFailures marks tests that failed last time and, with
// Config.Reorder, moves them to the head of the queue.
func WithPreviousFailures(f FailureLookup) Option {
	return func(r *Runner) { r.failures = f }
}
