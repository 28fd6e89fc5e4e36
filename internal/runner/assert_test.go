package runner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestThrows(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		fn       func()
		expected any
		pass     bool
		actual   any
	}{
		{"any panic", func() { panic("x") }, nil, true, "x"},
		{"no panic", func() {}, nil, false, nil},
		{"errors.Is wrapped", func() { panic(fmt.Errorf("ctx: %w", errBoom)) }, errBoom, true, "ctx: boom"},
		{"errors.Is mismatch", func() { panic(errors.New("other")) }, errBoom, false, "other"},
		{"non-error panic vs error", func() { panic("boom") }, errBoom, false, "boom"},
		{"regexp match", func() { panic("index out of range [3]") }, regexp.MustCompile(`out of range`), true, "index out of range [3]"},
		{"regexp mismatch", func() { panic("nil map") }, regexp.MustCompile(`out of range`), false, "nil map"},
		{"validator", func() { panic(42) }, func(v any) bool { return v == 42 }, true, "42"},
		{"validator rejects", func() { panic(41) }, func(v any) bool { return v == 42 }, false, "41"},
		{"validator panics", func() { panic(1) }, func(any) bool { panic("bad validator") }, false, "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r, rec := newTestRunner(t, DefaultConfig())
			r.Test("throws", func(a *Assert) { a.Throws(tc.fn, tc.expected, "checked") })
			run(t, r)

			d := rec.testDone(t, "throws")
			assert.Equal(t, []string{"checked"}, assertionMessages(d))
			ev := assertionEvents(rec)
			require.Len(t, ev, 1)
			assert.Equal(t, tc.pass, ev[0].Passed)
			assert.Equal(t, tc.actual, ev[0].Actual)
			if tc.pass {
				assert.Equal(t, StatusPassed, d.Status)
			} else {
				assert.Equal(t, StatusFailed, d.Status)
			}
		})
	}
}

func TestThrowsRecordsExpected(t *testing.T) {
	t.Parallel()

	r, rec := newTestRunner(t, DefaultConfig())
	r.Test("shown", func(a *Assert) {
		a.Throws(func() { panic("x") }, regexp.MustCompile(`^x$`), "")
		a.Throws(func() { panic(errBoom) }, errBoom, "")
		a.Throws(func() { panic("x") }, func(any) bool { panic("validator broke") }, "")
	})
	run(t, r)

	ev := assertionEvents(rec)
	require.Len(t, ev, 3)
	assert.Equal(t, "^x$", ev[0].Expected)
	assert.Equal(t, "boom", ev[1].Expected)
	assert.Equal(t, "validator broke", ev[2].Expected)
}

func TestThrowsMisuse(t *testing.T) {
	t.Parallel()

	r, rec := newTestRunner(t, DefaultConfig())
	var stringExpected, intExpected any
	r.Test("nil fn", func(a *Assert) { a.Throws(nil, nil, "") })
	r.Test("bad expected", func(a *Assert) {
		a.Expect(0)
		stringExpected = catch(func() { a.Throws(func() {}, "boom", "") })
		intExpected = catch(func() { a.Throws(func() {}, 3, "") })
	})
	run(t, r)

	assert.Equal(t, []string{"The value provided to `assert.throws` in \"nil fn\" was not a function."},
		assertionMessages(rec.testDone(t, "nil fn")))
	require.Error(t, stringExpected.(error))
	assert.Contains(t, stringExpected.(error).Error(), "does not accept a string")
	require.Error(t, intExpected.(error))
	assert.Contains(t, intExpected.(error).Error(), "invalid expected type int")
}

func TestRejects(t *testing.T) {
	t.Parallel()

	r, rec := newTestRunner(t, DefaultConfig())
	r.Module("M", func(s *Scope) {
		s.Test("matches", func(a *Assert) {
			a.Rejects(Go(a.Context(), func(ctx context.Context) error {
				return fmt.Errorf("dial: %w", errBoom)
			}), errBoom, "wrapped")
		})
		s.Test("any error", func(a *Assert) {
			a.Rejects(Settled(errors.New("whatever")), nil, "any")
		})
		s.Test("mismatch", func(a *Assert) {
			a.Rejects(Settled(errors.New("timeout")), regexp.MustCompile(`refused`), "regexp")
		})
		s.Test("resolves", func(a *Assert) {
			a.Rejects(Go(a.Context(), func(ctx context.Context) error { return nil }), nil, "")
		})
		s.Test("panic in future", func(a *Assert) {
			a.Rejects(Go(a.Context(), func(ctx context.Context) error { panic("kaboom") }),
				func(v any) bool { return strings.Contains(v.(error).Error(), "kaboom") }, "validator")
		})
		s.Test("nil future", func(a *Assert) { a.Rejects(nil, nil, "") })
	})
	run(t, r)

	assert.Equal(t, StatusPassed, rec.testDone(t, "matches").Status)
	assert.Equal(t, StatusPassed, rec.testDone(t, "any error").Status)
	assert.Equal(t, StatusPassed, rec.testDone(t, "panic in future").Status)

	mismatch := rec.testDone(t, "mismatch")
	assert.Equal(t, StatusFailed, mismatch.Status)
	assert.Equal(t, []string{"regexp"}, assertionMessages(mismatch))

	resolves := rec.testDone(t, "resolves")
	assert.Equal(t, StatusFailed, resolves.Status)
	assert.Equal(t, []string{"The future passed to `assert.rejects` in \"resolves\" did not reject."}, assertionMessages(resolves))

	assert.Equal(t, []string{"The value provided to `assert.rejects` in \"nil future\" was not a future."},
		assertionMessages(rec.testDone(t, "nil future")))
}

func TestRejectsAfterTimeoutIsIgnored(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	r, rec := newTestRunner(t, Config{TestTimeout: 50 * time.Millisecond}, WithClock(clock))
	block := make(chan struct{})
	r.Test("slow", func(a *Assert) {
		a.Rejects(Go(context.Background(), func(ctx context.Context) error {
			<-block
			return errBoom
		}), errBoom, "late")
		clock.Advance(100 * time.Millisecond)
	})
	run(t, r)
	close(block)

	assert.Equal(t, []string{"Test took longer than 50ms; test timed out."}, assertionMessages(rec.testDone(t, "slow")))
}

func assertionEvents(rec *recorder) []AssertionEvent {
	var out []AssertionEvent
	for _, e := range rec.all() {
		if d, ok := e.Data.(AssertionEvent); ok {
			out = append(out, d)
		}
	}
	return out
}

type node struct {
	Name string
	Tags []string
	Next *node
	note string
}

func TestSnapshotCopiesDeeply(t *testing.T) {
	t.Parallel()

	loop := &node{Name: "a", Tags: []string{"x"}, note: "kept"}
	loop.Next = loop
	got := snapshot(loop).(*node)
	require.NotSame(t, loop, got)
	assert.Same(t, got, got.Next)
	assert.Equal(t, "kept", got.note)

	loop.Tags[0] = "changed"
	assert.Equal(t, []string{"x"}, got.Tags)

	m := map[string][]int{"k": {1}}
	mc := snapshot(m).(map[string][]int)
	m["k"][0] = 2
	assert.Equal(t, []int{1}, mc["k"])

	fn := func() {}
	assert.NotNil(t, snapshot(fn))
	assert.Nil(t, snapshot(nil))
	assert.Equal(t, 3, snapshot(3))
}

func TestAssertionValuesAreSnapshots(t *testing.T) {
	t.Parallel()

	r, rec := newTestRunner(t, DefaultConfig())
	r.Test("mutates", func(a *Assert) {
		got := []string{"a"}
		a.DeepEqual(got, []string{"a"}, "")
		got[0] = "b"
	})
	run(t, r)

	ev := assertionEvents(rec)
	require.Len(t, ev, 1)
	assert.Equal(t, []string{"a"}, ev[0].Actual)
}
