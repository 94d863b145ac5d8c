package serial

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
)

// Future is the result of an asynchronous operation. It resolves exactly
// once with either a value or an error.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(v T, err error) {
	f.value = v
	f.err = err
	close(f.done)
}

// Done returns a channel closed when the future resolves.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the future resolves or ctx is done, whichever comes
// first. An abandoned operation still releases its resources in the
// background.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// submit schedules fn on the engine's worker pool. A context cancelled
// before the work starts skips it entirely; fn itself observes the context
// at field boundaries.
func submit[T any](e *Engine, ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	var zero T

	if e.closed.Load() {
		f.complete(zero, ErrEngineClosed)
		return f
	}
	err := e.workers.Submit(func() {
		if err := ctx.Err(); err != nil {
			f.complete(zero, err)
			return
		}
		f.complete(fn(ctx))
	})
	if err != nil {
		// Close may race with the e.closed check above; keep the error
		// kind uniform for callers.
		if errors.Is(err, ants.ErrPoolClosed) {
			err = ErrEngineClosed
		}
		f.complete(zero, err)
	}
	return f
}

// SerializeAsync schedules Serialize on the worker pool. The future
// resolves with the same result or error kinds as the synchronous call;
// cancellation is honored at field boundaries and any acquired buffer is
// released.
func (e *Engine) SerializeAsync(ctx context.Context, v any) *Future[[]byte] {
	return submit(e, ctx, func(ctx context.Context) ([]byte, error) {
		return e.serialize(ctx, v)
	})
}

// DeserializeAsync schedules decoding of data into a fresh T on the
// worker pool.
func DeserializeAsync[T any](ctx context.Context, e *Engine, data []byte) *Future[T] {
	return submit(e, ctx, func(ctx context.Context) (T, error) {
		var v T
		err := e.deserialize(ctx, data, &v)
		return v, err
	})
}
