package work

import (
	"context"
	"fmt"
)

// Submit runs fn in its own goroutine and returns a channel that receives exactly one
// outcome and is then closed. A panic in fn is delivered as an error.
func Submit[T any](ctx context.Context, fn func(context.Context) (T, error)) <-chan Outcome[T] {
	out := make(chan Outcome[T], 1)
	go func() {
		defer close(out)
		defer func() {
			if p := recover(); p != nil {
				var zero T
				out <- Outcome[T]{Value: zero, Err: fmt.Errorf("run panicked: %v", p)}
			}
		}()

		value, err := fn(ctx)
		out <- Outcome[T]{Value: value, Err: err}
	}()
	return out
}
