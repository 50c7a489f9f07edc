package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialSyncRunsEveryCall(t *testing.T) {
	q := New("test.serial", Serial)
	defer q.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Sync(context.Background(), func(ctx context.Context) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			})
		}(i)
	}
	wg.Wait()
	assert.Len(t, order, 20)
}

func TestSerialAsyncEventuallyRuns(t *testing.T) {
	q := New("test.serial-async", Serial)
	defer q.Close()

	done := make(chan struct{})
	q.Async(context.Background(), func(ctx context.Context) {
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async work never ran")
	}
}

func TestIsCurrentQueueDetectsNesting(t *testing.T) {
	q := New("test.nesting", Serial)
	defer q.Close()

	var sawSelf bool
	q.Sync(context.Background(), func(ctx context.Context) {
		sawSelf = q.IsCurrentQueue(ctx)
	})
	assert.True(t, sawSelf)
	assert.False(t, q.IsCurrentQueue(context.Background()))
}

func TestIsInCurrentQueueStackAcrossNestedQueues(t *testing.T) {
	outer := New("test.outer", Serial)
	inner := New("test.inner", Serial)
	defer outer.Close()
	defer inner.Close()

	var outerVisible, innerIsCurrent bool
	outer.Sync(context.Background(), func(ctx context.Context) {
		inner.Sync(ctx, func(ctx context.Context) {
			outerVisible = outer.IsInCurrentQueueStack(ctx)
			innerIsCurrent = inner.IsCurrentQueue(ctx)
		})
	})
	assert.True(t, outerVisible)
	assert.True(t, innerIsCurrent)
}

func TestSelfDeadlockPolicyExecuteRunsInline(t *testing.T) {
	q := New("test.self-execute", Serial) // default policy: Execute
	defer q.Close()

	var ran bool
	q.Sync(context.Background(), func(ctx context.Context) {
		q.Sync(ctx, func(ctx context.Context) {
			ran = true
		})
	})
	assert.True(t, ran)
}

func TestSelfDeadlockPolicySkip(t *testing.T) {
	q := New("test.self-skip", Serial, WithPolicy(PolicySkip))
	defer q.Close()

	var ran bool
	q.Sync(context.Background(), func(ctx context.Context) {
		q.Sync(ctx, func(ctx context.Context) {
			ran = true
		})
	})
	assert.False(t, ran)
}

func TestSelfDeadlockPolicyAssertPanics(t *testing.T) {
	q := New("test.self-assert", Serial, WithPolicy(PolicyAssert))
	defer q.Close()

	assert.Panics(t, func() {
		q.Sync(context.Background(), func(ctx context.Context) {
			q.Sync(ctx, func(ctx context.Context) {})
		})
	})
}

func TestConcurrentBarrierExcludesRegularDispatch(t *testing.T) {
	q := New("test.concurrent", Concurrent)

	var active int32
	var maxObserved int32
	var wg sync.WaitGroup
	const n = 20
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			q.Sync(context.Background(), func(ctx context.Context) {
				cur := atomic.AddInt32(&active, 1)
				for {
					old := atomic.LoadInt32(&maxObserved)
					if cur <= old || atomic.CompareAndSwapInt32(&maxObserved, old, cur) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
			})
		}()
	}

	var barrierRan bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.BarrierSync(context.Background(), func(ctx context.Context) {
			barrierRan = true
			assert.Equal(t, int32(0), atomic.LoadInt32(&active))
		})
	}()

	wg.Wait()
	assert.True(t, barrierRan)
}

func TestSharedReturnsSingleton(t *testing.T) {
	a := Shared()
	b := Shared()
	require.Same(t, a, b)
}
