package dispatch

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func TestScheduleDelayFiresOnce(t *testing.T) {
	q := New("test.delay", Serial)
	defer q.Close()

	var fired int32
	q.ScheduleDelay("save", 20*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})
	assert.True(t, waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&fired) == 1 }))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestScheduleDelayReschedulingExtends(t *testing.T) {
	q := New("test.delay-extend", Serial)
	defer q.Close()

	var fireTime time.Time
	q.ScheduleDelay("save", 40*time.Millisecond, func() { fireTime = time.Now() })
	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	q.ScheduleDelay("save", 40*time.Millisecond, func() { fireTime = time.Now() })

	assert.True(t, waitFor(t, time.Second, func() bool { return !fireTime.IsZero() }))
	assert.GreaterOrEqual(t, fireTime.Sub(start), 35*time.Millisecond)
}

func TestScheduleCoalesceKeepsEarlierFireTime(t *testing.T) {
	q := New("test.coalesce", Serial)
	defer q.Close()

	start := time.Now()
	var fireTime time.Time
	var fired int32
	q.ScheduleCoalesce("save", 30*time.Millisecond, func() {
		fireTime = time.Now()
		atomic.AddInt32(&fired, 1)
	})
	time.Sleep(10 * time.Millisecond)
	// A later-requested, longer delay must not push the fire time out.
	q.ScheduleCoalesce("save", 60*time.Millisecond, func() {
		fireTime = time.Now()
		atomic.AddInt32(&fired, 1)
	})

	assert.True(t, waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&fired) == 1 }))
	assert.Less(t, fireTime.Sub(start), 50*time.Millisecond)
}

func TestScheduleThrottleDropsDuringWindow(t *testing.T) {
	q := New("test.throttle", Serial)
	defer q.Close()

	var fireCount int32
	for i := 0; i < 5; i++ {
		q.ScheduleThrottle("clicks", 40*time.Millisecond, func() {
			atomic.AddInt32(&fireCount, 1)
		})
		time.Sleep(5 * time.Millisecond)
	}

	assert.True(t, waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&fireCount) == 1 }))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fireCount))
}

func TestCancelTimerStopsIt(t *testing.T) {
	q := New("test.cancel", Serial)
	defer q.Close()

	var fired int32
	q.ScheduleDelay("save", 20*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})
	q.CancelTimer("save")
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestCancelAllTimers(t *testing.T) {
	q := New("test.cancel-all", Serial)
	defer q.Close()

	q.ScheduleDelay("a", time.Second, func() {})
	q.ScheduleDelay("b", time.Second, func() {})
	assert.Equal(t, 2, q.TimerCount())
	q.CancelAllTimers()
	assert.Equal(t, 0, q.TimerCount())
}

func TestTimerCountReflectsPendingTimers(t *testing.T) {
	q := New("test.count", Serial)
	defer q.Close()

	assert.Equal(t, 0, q.TimerCount())
	q.ScheduleDelay("a", 30*time.Millisecond, func() {})
	assert.Equal(t, 1, q.TimerCount())
	assert.True(t, waitFor(t, time.Second, func() bool { return q.TimerCount() == 0 }))
}
