package dispatch

import "sync"

// sharedConcurrent is the process-wide lazily-initialized concurrent
// queue described in spec §9 ("Globally-shared concurrent queue"). Every
// call to Shared() returns the same instance; initialization happens at
// most once regardless of how many goroutines race to call it first.
var (
	sharedOnce sync.Once
	shared     *Queue
)

// Shared returns the global concurrent queue, initializing it on first use.
func Shared() *Queue {
	sharedOnce.Do(func() {
		shared = New("dispatch.shared-concurrent", Concurrent)
	})
	return shared
}
