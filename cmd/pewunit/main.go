package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pewunit/internal/app"
	"pewunit/pkg/unit"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config json/yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, smoke)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	runErr := a.Run(ctx)

	reason := app.StopRunComplete
	switch {
	case ctx.Err() != nil:
		reason = app.StopSignal
	case runErr != nil && !errors.Is(runErr, app.ErrRunFailed):
		reason = app.StopFatalError
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if runErr != nil {
		if !errors.Is(runErr, app.ErrRunFailed) {
			fmt.Println("fatal:", runErr)
		}
		os.Exit(1)
	}
}

// smoke exercises the scheduler end to end: hooks, async pauses and
// awaited futures.
func smoke(r *unit.Runner) {
	r.Module("smoke", func(s *unit.Scope) {
		s.BeforeEach(func(a *unit.Assert) { a.Env()["started"] = time.Now() })

		s.Test("sync", func(a *unit.Assert) {
			a.Expect(1)
			a.Equal(2+2, 4, "arithmetic")
		})
		s.Test("async", func(a *unit.Assert) {
			done := a.Async(1)
			go func() {
				time.Sleep(10 * time.Millisecond)
				a.Ok(true, "released from goroutine")
				done()
			}()
		}, unit.WithTimeout(time.Second))
		s.Test("await", func(a *unit.Assert) {
			a.Await(unit.Go(a.Context(), func(ctx context.Context) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(5 * time.Millisecond):
					return nil
				}
			}))
			a.Step("resolved")
			a.VerifySteps([]string{"resolved"}, "steps")
		})
		s.Each("squares", []int{1, 2, 3}, func(a *unit.Assert, v any) {
			n := v.(int)
			a.Ok(n*n >= n, "square is not smaller")
		})
	})
}
