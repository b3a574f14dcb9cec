package async

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/semaphore"

	"github.com/anishgillella/Voice-Receptionist/pkg/utils/errutil"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

// Dispatch executes handler in a new goroutine on a background context that
// keeps the caller's logger. Errors and panics are logged.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	bgCtx := detach(ctx)

	go func() {
		defer recoverPanic(bgCtx)
		if err := handler(bgCtx); err != nil {
			_ = errutil.Handle(bgCtx, goerr.Unwrap(err), "async handler failed")
		}
	}()
}

// Pool runs handlers asynchronously with at most n in flight.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a pool; n <= 0 is treated as 1.
func NewPool(n int64) *Pool {
	if n <= 0 {
		n = 1
	}
	return &Pool{sem: semaphore.NewWeighted(n)}
}

// Dispatch waits for a free slot on the background context, then runs handler.
func (p *Pool) Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	Dispatch(ctx, func(ctx context.Context) error {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return goerr.Wrap(err, "failed to acquire worker slot")
		}
		defer p.sem.Release(1)
		return handler(ctx)
	})
}

// Wait blocks until every running handler has finished or ctx is done.
func (p *Pool) Wait(ctx context.Context, n int64) error {
	if err := p.sem.Acquire(ctx, n); err != nil {
		return goerr.Wrap(err, "failed to drain worker pool")
	}
	p.sem.Release(n)
	return nil
}

func detach(ctx context.Context) context.Context {
	bgCtx := context.Background()
	if logger := logging.From(ctx); logger != nil {
		bgCtx = logging.With(bgCtx, logger)
	}
	return bgCtx
}

func recoverPanic(ctx context.Context) {
	if r := recover(); r != nil {
		logging.From(ctx).Error("panic in async handler", "panic", r)
	}
}
