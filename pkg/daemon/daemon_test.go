package daemon

import (
	"context"
	"io/ioutil"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	"github.com/yurykabanov/securevault/pkg/schedule"
)

var start = time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	return logger
}

type scheduleFunc func(time.Time) time.Time

func (f scheduleFunc) Next(t time.Time) time.Time {
	return f(t)
}

func runAsync(d *Daemon, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemon_TriggersAtScheduledTime(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := schedule.Parse(schedule.Spec{Type: schedule.TypeDaily, Time: "10:00:03"})
	require.NoError(t, err)

	clk := testclock.NewClock(start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	triggeredAt := make(chan time.Time, 1)
	d := New(discardLogger(), s, clk, func(ctx context.Context) error {
		triggeredAt <- clk.Now()
		cancel()
		return nil
	})

	done := runAsync(d, ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, clk.WaitAdvance(time.Second, 5*time.Second, 1))
	}

	select {
	case at := <-triggeredAt:
		assert.True(t, at.Equal(start.Add(3*time.Second)), "triggered at %s", at)
	case <-time.After(5 * time.Second):
		t.Fatal("backup was not triggered")
	}

	waitDone(t, done)
}

func TestDaemon_DueTimeConsumedOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// every 2 seconds
	s := scheduleFunc(func(t time.Time) time.Time {
		return t.Truncate(2 * time.Second).Add(2 * time.Second)
	})

	runs := atomic.NewInt32(0)
	triggered := make(chan struct{}, 10)

	d := New(discardLogger(), s, clk, func(ctx context.Context) error {
		runs.Inc()
		triggered <- struct{}{}
		return nil
	})
	d.tick = time.Hour

	done := runAsync(d, ctx)

	require.NoError(t, clk.WaitAdvance(2*time.Second, 5*time.Second, 1))
	<-triggered

	// the daemon is now waiting for the following slot without re-firing
	require.NoError(t, clk.WaitAdvance(time.Second, 5*time.Second, 1))
	assert.Equal(t, int32(1), runs.Load())

	cancel()
	waitDone(t, done)
}

func TestDaemon_CancelWhileSleeping(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := schedule.Parse(schedule.Spec{Type: schedule.TypeDaily, Time: "23:00:00"})
	require.NoError(t, err)

	clk := testclock.NewClock(start)
	ctx, cancel := context.WithCancel(context.Background())

	d := New(discardLogger(), s, clk, func(ctx context.Context) error {
		t.Error("must not trigger")
		return nil
	})

	done := runAsync(d, ctx)

	require.NoError(t, clk.WaitAdvance(time.Second, 5*time.Second, 1))
	cancel()

	waitDone(t, done)
}

func TestDaemon_TriggerErrorDoesNotBackOff(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := scheduleFunc(func(t time.Time) time.Time {
		return t.Add(time.Second)
	})

	runs := atomic.NewInt32(0)
	d := New(discardLogger(), s, clk, func(ctx context.Context) error {
		if runs.Inc() == 2 {
			cancel()
		}
		return errors.New("backup failed")
	})

	done := runAsync(d, ctx)

	require.NoError(t, clk.WaitAdvance(time.Second, 5*time.Second, 1))
	require.NoError(t, clk.WaitAdvance(time.Second, 5*time.Second, 1))

	waitDone(t, done)
	assert.Equal(t, int32(2), runs.Load())
}

func TestDaemon_PanicBacksOff(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := atomic.NewInt32(0)
	s := scheduleFunc(func(t time.Time) time.Time {
		if calls.Inc() == 1 {
			panic("broken schedule")
		}
		return t.Add(time.Second)
	})

	triggeredAt := make(chan time.Time, 1)
	d := New(discardLogger(), s, clk, func(ctx context.Context) error {
		triggeredAt <- clk.Now()
		cancel()
		return nil
	})
	d.tick = time.Minute

	done := runAsync(d, ctx)

	// backoff, then the one second until the next slot
	require.NoError(t, clk.WaitAdvance(time.Minute, 5*time.Second, 1))
	require.NoError(t, clk.WaitAdvance(time.Second, 5*time.Second, 1))

	select {
	case at := <-triggeredAt:
		assert.True(t, at.Equal(start.Add(61*time.Second)), "triggered at %s", at)
		assert.Equal(t, int32(2), calls.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("backup was not triggered after backoff")
	}

	waitDone(t, done)
}

func TestDaemon_ZeroNextTimeBacksOff(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(start)
	ctx, cancel := context.WithCancel(context.Background())

	s := scheduleFunc(func(time.Time) time.Time {
		return time.Time{}
	})

	d := New(discardLogger(), s, clk, func(ctx context.Context) error {
		t.Error("must not trigger")
		return nil
	})

	done := runAsync(d, ctx)

	// one waiter: the backoff sleep
	require.NoError(t, clk.WaitAdvance(time.Second, 5*time.Second, 1))
	cancel()

	waitDone(t, done)
}
