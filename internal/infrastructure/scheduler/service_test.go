package scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lockstep-labs/chand/internal/core/ports"
	timescheduler "github.com/lockstep-labs/chand/internal/infrastructure/scheduler/gocron"
	"github.com/stretchr/testify/require"
)

func TestScheduleTask(t *testing.T) {
	t.Parallel()

	svc := newScheduler(t)

	var called atomic.Bool
	err := svc.ScheduleTaskOnce(svc.AddNow(1), func() {
		called.Store(true)
	})
	require.NoError(t, err)
	require.False(t, called.Load())

	require.Eventually(t, called.Load, 3*time.Second, 50*time.Millisecond)
}

func TestScheduleTaskInThePast(t *testing.T) {
	t.Parallel()

	svc := newScheduler(t)
	require.False(t, svc.AfterNow(svc.AddNow(-10)))

	var called atomic.Bool
	err := svc.ScheduleTaskOnce(svc.AddNow(-10), func() {
		called.Store(true)
	})
	require.NoError(t, err)
	require.Eventually(t, called.Load, time.Second, 10*time.Millisecond)
}

func TestScheduleTaskEvery(t *testing.T) {
	t.Parallel()

	svc := newScheduler(t)

	var count atomic.Int32
	err := svc.ScheduleTaskEvery(200*time.Millisecond, func() {
		count.Add(1)
	})
	require.NoError(t, err)
	require.Zero(t, count.Load())

	require.Eventually(t, func() bool {
		return count.Load() >= 3
	}, 3*time.Second, 50*time.Millisecond)

	require.Error(t, svc.ScheduleTaskEvery(0, func() {}))
}

func TestSchedulerClock(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_000, 0)
	testClock := clock.NewTestClock(start)
	svc := timescheduler.NewScheduler(timescheduler.WithClock(testClock))

	require.Equal(t, start.Unix()+10, svc.AddNow(10))
	require.True(t, svc.AfterNow(start.Unix()+1))

	testClock.SetTime(start.Add(time.Minute))
	require.False(t, svc.AfterNow(start.Unix()+1))
}

func newScheduler(t *testing.T) ports.SchedulerService {
	svc := timescheduler.NewScheduler()
	svc.Start()
	t.Cleanup(svc.Stop)
	return svc
}
