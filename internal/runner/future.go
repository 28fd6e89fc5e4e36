package runner

import (
	"context"
	"fmt"
)

// Future is an asynchronous result awaited with Assert.Await.
type Future interface {
	Done() <-chan struct{}
	// Err is valid once Done is closed.
	Err() error
}

type future struct {
	done chan struct{}
	err  error
}

func (f *future) Done() <-chan struct{} { return f.done }
func (f *future) Err() error            { return f.err }

// Go runs fn on a new goroutine. A panic in fn completes the future with an
// error.
func Go(ctx context.Context, fn func(ctx context.Context) error) Future {
	f := &future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if v := recover(); v != nil {
				f.err = fmt.Errorf("panic: %s", panicMessage(v))
			}
		}()
		f.err = fn(ctx)
	}()
	return f
}

// Settled returns a completed future.
func Settled(err error) Future {
	f := &future{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}
