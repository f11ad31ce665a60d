package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

func newTestLimiter(maxCalls int, window time.Duration) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := New(maxCalls, window)
	l.now = clock.now
	l.sleep = clock.sleep
	return l, clock
}

func TestWaitUnderLimit(t *testing.T) {
	l, clock := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background()))
		l.Record()
	}
	assert.Empty(t, clock.sleeps)
	assert.Equal(t, 3, l.Len())
}

func TestWaitBlocksWhenWindowFull(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	require.NoError(t, l.Wait(context.Background()))
	l.Record()
	clock.t = clock.t.Add(10 * time.Second)
	require.NoError(t, l.Wait(context.Background()))
	l.Record()

	// Window is full; oldest call is 10s old, so the next caller waits the
	// remaining 50s.
	require.NoError(t, l.Wait(context.Background()))
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 50*time.Second, clock.sleeps[0])
}

func TestWaitPassesOnceOldestExpires(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute)

	require.NoError(t, l.Wait(context.Background()))
	l.Record()
	clock.t = clock.t.Add(time.Minute)

	require.NoError(t, l.Wait(context.Background()))
	assert.Empty(t, clock.sleeps)
}

func TestWaitCancelled(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	l.sleep = sleepCtx

	require.NoError(t, l.Wait(context.Background()))
	l.Record()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecordEvictsOldest(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	l.Record()
	clock.t = clock.t.Add(time.Second)
	l.Record()
	clock.t = clock.t.Add(time.Second)
	l.Record()

	assert.Equal(t, 2, l.Len())
	// The surviving oldest entry is the second record.
	assert.Equal(t, clock.t.Add(-time.Second), l.calls[0])
}

func TestBackoffSleepsFullWindowAndClears(t *testing.T) {
	l, clock := newTestLimiter(3, time.Minute)

	l.Record()
	l.Record()
	require.Equal(t, 2, l.Len())

	require.NoError(t, l.Backoff(context.Background()))
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, time.Minute, clock.sleeps[0])
	assert.Equal(t, 0, l.Len())
}

func TestBackoffCancelledKeepsWindow(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)
	l.sleep = sleepCtx

	l.Record()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Backoff(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, l.Len())
}
