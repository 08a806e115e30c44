package objectlock

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/iotaledger/entitycache/syncutils"
)

func TestTable_LockIdentity(t *testing.T) {
	for _, detecting := range []bool{false, true} {
		t.Run(fmt.Sprintf("detecting=%v", detecting), func(t *testing.T) {
			table := New(WithDeadlockDetection(detecting), WithDeadlockTimeout(0))

			first := table.LockFor("player", "1")
			second := table.LockFor("player", "1")
			assert.Same(t, first, second)
			assert.NotSame(t, first, table.LockFor("player", "2"))
			assert.NotSame(t, first, table.LockFor("item", "1"))

			require.IsType(t, &instanceLock{}, first)
			if detecting {
				assert.IsType(t, &syncutils.DetectingMutex{}, first.(*instanceLock).Locker)
			} else {
				assert.IsType(t, &syncutils.Mutex{}, first.(*instanceLock).Locker)
			}
		})
	}
}

func TestTable_ConcurrentFirstAccess(t *testing.T) {
	const goroutines = 64

	table := New()

	var (
		start sync.WaitGroup
		done  sync.WaitGroup
	)
	locks := make([]syncutils.Locker, goroutines)

	start.Add(1)
	for i := 0; i < goroutines; i++ {
		done.Add(1)
		go func(i int) {
			defer done.Done()

			start.Wait()
			locks[i] = table.LockFor("player", "contended")
		}(i)
	}
	start.Done()
	done.Wait()

	for _, lock := range locks {
		require.Same(t, locks[0], lock)
	}
	assert.Equal(t, 1, table.Count("player"))
}

func TestTable_TieLock(t *testing.T) {
	table := New()

	assert.Same(t, table.TieLockFor("player"), table.TieLockFor("player"))
	assert.NotSame(t, table.TieLockFor("player"), table.TieLockFor("item"))
	assert.NotSame(t, table.TieLockFor("player"), table.LockFor("player", "1"))

	// the tie lock is not counted as an instance lock
	assert.Equal(t, 1, table.Count("player"))
}

func TestTable_CountAndEvict(t *testing.T) {
	table := New()
	assert.Zero(t, table.Count("player"))

	for i := 0; i < 10; i++ {
		table.LockFor("player", fmt.Sprint(i))
	}
	table.LockFor("item", "1")

	assert.Equal(t, 10, table.Count("player"))
	assert.Equal(t, 1, table.Count("item"))
	assert.Equal(t, []string{"item", "player"}, table.Types())

	evicted := table.LockFor("player", "3")
	table.Evict("player", "3")
	table.Evict("unknown", "3")
	assert.Equal(t, 9, table.Count("player"))

	// after eviction a fresh lock is created
	assert.NotSame(t, evicted, table.LockFor("player", "3"))
}

func TestTable_EvictKeepsUsedLocks(t *testing.T) {
	table := New()

	held := table.Lock("player", "1")
	table.Evict("player", "1")
	assert.Equal(t, 1, table.Count("player"))
	assert.Same(t, held, table.LockFor("player", "1"))

	// a waiter keeps the lock as well
	waiting := make(chan struct{})
	acquired := make(chan struct{})
	go func() {
		close(waiting)
		lock := table.Lock("player", "1")
		close(acquired)
		lock.Unlock()
	}()
	<-waiting
	require.Eventually(t, func() bool {
		return held.(*instanceLock).users.Load() == 2
	}, 2*time.Second, time.Millisecond)

	held.Unlock()
	<-acquired
	require.Eventually(t, func() bool {
		return held.(*instanceLock).users.Load() == 0
	}, 2*time.Second, time.Millisecond)

	table.Evict("player", "1")
	assert.Zero(t, table.Count("player"))
}

func TestTable_LockSkipsEvictedLock(t *testing.T) {
	table := New()

	stale := table.LockFor("player", "1")
	table.Evict("player", "1")

	// a lock fetched before the eviction is not exclusive anymore, Lock hands out the current one
	lock := table.Lock("player", "1")
	assert.NotSame(t, stale, lock)
	assert.Same(t, lock, table.LockFor("player", "1"))
	lock.Unlock()
}

func TestTable_LockWithConcurrentEvictions(t *testing.T) {
	table := New()

	var (
		counter int
		wg      sync.WaitGroup
		stop    = make(chan struct{})
		evicter sync.WaitGroup
	)

	evicter.Add(1)
	go func() {
		defer evicter.Done()

		for {
			select {
			case <-stop:
				return
			default:
				table.Evict("player", "1")
			}
		}
	}()

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				lock := table.Lock("player", "1")
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	close(stop)
	evicter.Wait()

	assert.Equal(t, 2000, counter)
}

func TestTable_MutualExclusion(t *testing.T) {
	table := New()

	var (
		counter int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				lock := table.LockFor("player", "1")
				lock.Lock()
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2000, counter)
}

func TestTable_DeadlockHandler(t *testing.T) {
	detected := atomic.NewString("")
	table := New(
		WithDeadlockDetection(true),
		WithDeadlockTimeout(0),
		WithDeadlockHandler(func(cycle syncutils.Cycle) {
			detected.Store(cycle.String())
		}),
	)
	require.True(t, table.DeadlockDetection())

	lock := table.LockFor("player", "1")
	go func() {
		lock.Lock()
		// acquiring the same instance lock twice from one goroutine never returns
		lock.Lock()
	}()

	assert.Eventually(t, func() bool {
		return detected.Load() != ""
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, detected.Load(), "player#1")
}
