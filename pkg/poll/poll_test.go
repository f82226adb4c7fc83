package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryRunsPerInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32

	task := Every(clock, time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	defer task.Stop()

	require.Never(t, func() bool { return calls.Load() > 0 }, 30*time.Millisecond, 5*time.Millisecond)

	for i := int32(1); i <= 3; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
		require.Eventually(t, func() bool { return calls.Load() == i }, time.Second, 5*time.Millisecond)
	}
}

func TestImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32

	task := Every(clock, time.Minute, func(context.Context) error {
		calls.Add(1)
		return nil
	}, Immediately())
	defer task.Stop()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestErrorsDoNotStopTask(t *testing.T) {
	clock := clockwork.NewFakeClock()
	boom := errors.New("backend unreachable")
	var calls, errs atomic.Int32

	task := Every(clock, 100*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return boom
	}, WithErrorHandler(func(err error) {
		assert.ErrorIs(t, err, boom)
		errs.Add(1)
	}))
	defer task.Stop()

	for i := int32(1); i <= 3; i++ {
		clock.BlockUntil(1)
		clock.Advance(100 * time.Millisecond)
		require.Eventually(t, func() bool { return errs.Load() == i }, time.Second, 5*time.Millisecond)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestStopHaltsTask(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32

	task := Every(clock, time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	task.Stop()
	task.Stop()

	select {
	case <-task.Done():
	default:
		t.Fatal("Done() not closed after Stop")
	}

	clock.Advance(5 * time.Second)
	require.Never(t, func() bool { return calls.Load() > 0 }, 30*time.Millisecond, 5*time.Millisecond)
}

func TestStopCancelsInFlightPoll(t *testing.T) {
	clock := clockwork.NewFakeClock()
	started := make(chan struct{})
	var reported atomic.Int32

	task := Every(clock, time.Second, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, Immediately(), WithErrorHandler(func(error) { reported.Add(1) }))

	<-started
	task.Stop()
	assert.Equal(t, int32(0), reported.Load(), "cancellation is not reported as a poll error")
}
