package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pewunit/internal/eventbus"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and fires due timers on the caller.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

type seqPRNG struct {
	vals []float64
	i    int
}

func (p *seqPRNG) Next() float64 {
	v := p.vals[p.i%len(p.vals)]
	p.i++
	return v
}

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func record(r *Runner) *recorder {
	rec := &recorder{}
	r.Bus().Listen(func(e eventbus.Event) {
		rec.mu.Lock()
		rec.events = append(rec.events, e)
		rec.mu.Unlock()
	})
	return rec
}

func (rec *recorder) all() []eventbus.Event {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]eventbus.Event(nil), rec.events...)
}

// trace renders events as short lines for order assertions.
func (rec *recorder) trace() []string {
	var out []string
	for _, e := range rec.all() {
		switch d := e.Data.(type) {
		case RunStartEvent:
			out = append(out, fmt.Sprintf("runStart %d", d.TotalTests))
		case ModuleStartEvent:
			out = append(out, "moduleStart "+d.Name)
		case ModuleDoneEvent:
			out = append(out, fmt.Sprintf("moduleDone %s %d/%d", d.Name, d.Failed, d.Total))
		case TestStartEvent:
			out = append(out, "testStart "+d.Name)
		case AssertionEvent:
			if d.Passed {
				out = append(out, "assertion pass")
			} else {
				out = append(out, "assertion fail")
			}
		case TestDoneEvent:
			out = append(out, fmt.Sprintf("testDone %s %s", d.Name, d.Status))
		case ErrorEvent:
			out = append(out, "error "+d.Message)
		case RunEndEvent:
			out = append(out, fmt.Sprintf("runEnd %d/%d", d.Failed, d.Total))
		}
	}
	return out
}

func (rec *recorder) testDones() []TestDoneEvent {
	var out []TestDoneEvent
	for _, e := range rec.all() {
		if d, ok := e.Data.(TestDoneEvent); ok {
			out = append(out, d)
		}
	}
	return out
}

func (rec *recorder) testDone(t *testing.T, name string) TestDoneEvent {
	t.Helper()
	for _, d := range rec.testDones() {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("no testDone for %q", name)
	return TestDoneEvent{}
}

func (rec *recorder) moduleDones() []ModuleDoneEvent {
	var out []ModuleDoneEvent
	for _, e := range rec.all() {
		if d, ok := e.Data.(ModuleDoneEvent); ok {
			out = append(out, d)
		}
	}
	return out
}

func (rec *recorder) started() []string {
	var out []string
	for _, e := range rec.all() {
		if d, ok := e.Data.(TestStartEvent); ok {
			out = append(out, d.Name)
		}
	}
	return out
}

func newTestRunner(t *testing.T, cfg Config, opts ...Option) (*Runner, *recorder) {
	t.Helper()
	r, err := New(cfg, opts...)
	require.NoError(t, err)
	return r, record(r)
}

func run(t *testing.T, r *Runner) RunEndEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	end, err := r.Run(ctx)
	require.NoError(t, err)
	return end
}

// catch returns the value fn panicked with, or nil.
func catch(fn func()) (v any) {
	defer func() { v = recover() }()
	fn()
	return nil
}

func assertionMessages(d TestDoneEvent) []string {
	out := make([]string, len(d.Assertions))
	for i, a := range d.Assertions {
		out[i] = a.Message
	}
	return out
}
