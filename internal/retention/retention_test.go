package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls  atomic.Int32
	onCall func(n int32)
	err    error
}

func (c *countingSweeper) Sweep(context.Context) (int, error) {
	n := c.calls.Add(1)
	if c.onCall != nil {
		c.onCall(n)
	}
	return 3, c.err
}

func TestNewRejectsBadCron(t *testing.T) {
	_, err := New("every now and then", &countingSweeper{})
	assert.Error(t, err)

	_, err = Start(context.Background(), "61 * * * *", &countingSweeper{})
	assert.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	n, err := RunOnce(context.Background(), &countingSweeper{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = RunOnce(context.Background(), &countingSweeper{err: errors.New("disk gone")})
	assert.Error(t, err)
}

func TestRunSweepsEachTickUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := &countingSweeper{onCall: func(n int32) {
		if n == 3 {
			cancel()
		}
	}}
	s, err := New("*/30 * * * *", sw)
	require.NoError(t, err)

	var waits []time.Duration
	s.now = func() time.Time { return time.Date(2024, 1, 1, 10, 10, 0, 0, time.UTC) }
	s.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.GreaterOrEqual(t, sw.calls.Load(), int32(3))
	require.NotEmpty(t, waits)
	// 10:10 to the 10:30 tick, measured on the scheduler's clock
	for _, d := range waits {
		assert.Equal(t, 20*time.Minute, d)
	}
}

func TestStartStops(t *testing.T) {
	sw := &countingSweeper{}
	cancel, err := Start(context.Background(), "0 3 * * *", sw)
	require.NoError(t, err)
	cancel()
	assert.Zero(t, sw.calls.Load())
}
