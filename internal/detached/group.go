// Package detached runs fire-and-forget background work whose completion is
// never required by the caller that spawned it.
package detached

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/watkajtys/earthquake-sub007/internal/observability"
)

// Group tracks outstanding detached tasks.
type Group struct {
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
	wg      sync.WaitGroup
}

// NewGroup creates a Group whose tasks each run under timeout (0 = no limit).
func NewGroup(timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Group {
	return &Group{timeout: timeout, logger: logger, metrics: metrics}
}

// Go runs fn in the background. The task context inherits values from parent
// but not its cancellation, so a finished request does not abort the task.
// Errors and panics are logged and counted, never returned.
func (g *Group) Go(parent context.Context, name string, fn func(ctx context.Context) error) {
	ctx := context.WithoutCancel(parent)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		var cancel context.CancelFunc = func() {}
		if g.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
		}
		defer cancel()

		if err := g.run(ctx, fn); err != nil {
			g.metrics.DetachedFailures.WithLabelValues(name).Inc()
			g.logger.Error("detached task failed", "task", name, "error", err)
		}
	}()
}

// Wait blocks until every task started so far has finished.
func (g *Group) Wait() {
	g.wg.Wait()
}

// WaitContext is Wait bounded by ctx; it returns ctx.Err() if tasks are still running.
func (g *Group) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Group) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
