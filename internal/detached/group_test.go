package detached

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watkajtys/earthquake-sub007/internal/observability"
)

func TestGroup_WaitAwaitsTasks(t *testing.T) {
	g := NewGroup(time.Second, slog.Default(), observability.NewMetricsForTesting())

	var done atomic.Int32
	for range 5 {
		g.Go(context.Background(), "count", func(context.Context) error {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
			return nil
		})
	}
	g.Wait()
	assert.Equal(t, int32(5), done.Load())
}

func TestGroup_SurvivesParentCancellation(t *testing.T) {
	g := NewGroup(time.Second, slog.Default(), observability.NewMetricsForTesting())

	parent, cancel := context.WithCancel(context.Background())
	var taskErr error
	g.Go(parent, "detached", func(ctx context.Context) error {
		cancel()
		time.Sleep(10 * time.Millisecond)
		taskErr = ctx.Err()
		return nil
	})
	g.Wait()
	assert.NoError(t, taskErr)
}

func TestGroup_FailuresAreLoggedAndCounted(t *testing.T) {
	var buf bytes.Buffer
	metrics := observability.NewMetricsForTesting()
	g := NewGroup(time.Second, slog.New(slog.NewTextHandler(&buf, nil)), metrics)

	g.Go(context.Background(), "cache-put", func(context.Context) error { return errors.New("disk full") })
	g.Go(context.Background(), "upsert", func(context.Context) error { panic("boom") })
	g.Wait()

	assert.Contains(t, buf.String(), "disk full")
	assert.Contains(t, buf.String(), "panic: boom")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.DetachedFailures.WithLabelValues("cache-put")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.DetachedFailures.WithLabelValues("upsert")), 0)
}

func TestGroup_TaskTimeout(t *testing.T) {
	g := NewGroup(20*time.Millisecond, slog.Default(), observability.NewMetricsForTesting())

	var taskErr error
	g.Go(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		taskErr = ctx.Err()
		return taskErr
	})
	g.Wait()
	assert.ErrorIs(t, taskErr, context.DeadlineExceeded)
}

func TestGroup_WaitContext(t *testing.T) {
	g := NewGroup(0, slog.Default(), observability.NewMetricsForTesting())
	release := make(chan struct{})
	g.Go(context.Background(), "blocked", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, g.WaitContext(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, g.WaitContext(context.Background()))
}
