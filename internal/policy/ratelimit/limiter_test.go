package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/grant-discovery/internal/grant"
	"github.com/JakeFAU/grant-discovery/internal/metrics"
)

func TestLimiterWaitDelaysSameHost(t *testing.T) {
	t.Parallel()
	metrics.Init()

	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://test.com/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://test.com/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.com/1"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for i := 0; i < 20; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://a.com"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://a.com"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Wait(ctx, "https://a.com"))
}

type countingFetcher struct {
	calls atomic.Int32
}

func (c *countingFetcher) Fetch(_ context.Context, req grant.FetchRequest) (grant.FetchResponse, error) {
	c.calls.Add(1)
	return grant.FetchResponse{URL: req.URL, StatusCode: 200}, nil
}

func TestWrapDelegatesAfterWaiting(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	f := New(Config{DefaultRPS: 0.1, DefaultBurst: 1}).Wrap(next)

	resp, err := f.Fetch(context.Background(), grant.FetchRequest{URL: "https://a.com/x"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, grant.FetchRequest{URL: "https://a.com/y"})
	var fetchErr *grant.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, int32(1), next.calls.Load())
}
