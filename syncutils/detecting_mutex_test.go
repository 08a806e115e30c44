package syncutils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
)

func init() {
	ConfigureDeadlockDetection(0, func() {})
}

func TestDetectingMutex_MutualExclusion(t *testing.T) {
	mutex := NewDetectingMutex("counter", NewWaitGraph(nil))

	var (
		counter int
		wg      sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				mutex.Lock()
				counter++
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5000, counter)
	assert.Equal(t, "counter", mutex.Name())
}

func TestDetectingMutex_ReportsCycle(t *testing.T) {
	detected := atomic.NewBool(false)
	graph := NewWaitGraph(func(cycle Cycle) {
		if len(cycle) == 2 {
			detected.Store(true)
		}
	})

	lockA := NewDetectingMutex("a", graph)
	lockB := NewDetectingMutex("b", graph)

	aLocked := make(chan struct{})
	bLocked := make(chan struct{})

	go func() {
		lockA.Lock()
		close(aLocked)
		<-bLocked
		lockB.Lock()
	}()

	go func() {
		lockB.Lock()
		close(bLocked)
		<-aLocked

		// wait until the first goroutine blocks on b before closing the cycle
		for graph.Size() == 0 {
			time.Sleep(time.Millisecond)
		}
		lockA.Lock()
	}()

	// the two goroutines stay blocked, cycles are reported but never broken
	assert.Eventually(t, detected.Load, 2*time.Second, 5*time.Millisecond)
}
