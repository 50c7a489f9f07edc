package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClockStartsAtZero(t *testing.T) {
	c := NewDeterministicClock()
	assert.Equal(t, int64(0), c.Current())
}

func TestDeterministicClockIncrementsMonotonically(t *testing.T) {
	c := NewDeterministicClock()
	assert.Equal(t, int64(1), c.Now())
	assert.Equal(t, int64(2), c.Now())
	assert.Equal(t, int64(3), c.Now())
	assert.Equal(t, int64(3), c.Current())
}

func TestDeterministicClockReset(t *testing.T) {
	c := NewDeterministicClock()
	c.Now()
	c.Now()
	c.Reset()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Now())
}

func TestDeterministicClockThreadSafe(t *testing.T) {
	c := NewDeterministicClock()
	const goroutines, perGoroutine = 50, 50

	var wg sync.WaitGroup
	results := make(chan int64, goroutines*perGoroutine)
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				results <- c.Now()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for v := range results {
		require.False(t, seen[v], "duplicate %d", v)
		seen[v] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}
