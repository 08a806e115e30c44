package objectlock

import (
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/iotaledger/entitycache/syncutils"
)

// Table maps entity instances, identified by entity type and key, to their dedicated locks.
//
// Entries are not reclaimed automatically: the owner of the cache entry calls Evict once the entry is gone.
type Table struct {
	holders cmap.ConcurrentMap[string, *Holder]
	newLock func(name string) syncutils.Locker
	graph   *syncutils.WaitGraph
	options *Options
}

// New creates a new Table. Without options it hands out plain mutexes.
func New(opts ...Option) *Table {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	t := &Table{
		holders: cmap.New[*Holder](),
		options: &options,
	}

	if !options.deadlockDetection {
		t.newLock = func(string) syncutils.Locker {
			return &syncutils.Mutex{}
		}

		return t
	}

	handler := options.deadlockHandler
	if handler == nil {
		handler = t.logDeadlock
	}

	syncutils.ConfigureDeadlockDetection(options.deadlockTimeout, func() {
		t.logPotentialDeadlock()
	})

	t.graph = syncutils.NewWaitGraph(handler)
	t.newLock = func(name string) syncutils.Locker {
		return syncutils.NewDetectingMutex(name, t.graph)
	}

	return t
}

// Holder returns the holder of the given entity type, creating it on first access.
func (t *Table) Holder(entityType string) *Holder {
	if holder, exists := t.holders.Get(entityType); exists {
		return holder
	}

	t.holders.SetIfAbsent(entityType, newHolder(entityType, t.newLock))

	holder, _ := t.holders.Get(entityType)

	return holder
}

// LockFor returns the lock of a single entity instance.
func (t *Table) LockFor(entityType, key string) syncutils.Locker {
	return t.Holder(entityType).LockFor(key)
}

// Lock acquires the canonical lock of a single entity instance and returns it. Unlike locking the result of LockFor,
// it never ends up holding a lock that was evicted concurrently.
func (t *Table) Lock(entityType, key string) syncutils.Locker {
	return t.Holder(entityType).Lock(key)
}

// TieLockFor returns the lock shared by all instances of the given entity type.
func (t *Table) TieLockFor(entityType string) syncutils.Locker {
	return t.Holder(entityType).TieLock()
}

// Count returns the number of instance locks of the given entity type.
func (t *Table) Count(entityType string) int {
	holder, exists := t.holders.Get(entityType)
	if !exists {
		return 0
	}

	return holder.Count()
}

// Evict removes the lock of an entity instance whose cache entry was removed.
// A lock that is held or waited for stays, so a caller holding it must not expect it to be gone. Goroutines that
// fetched the lock with LockFor before the eviction still get the old lock, Lock is safe against that.
func (t *Table) Evict(entityType, key string) {
	if holder, exists := t.holders.Get(entityType); exists {
		holder.Evict(key)
	}
}

// Types returns the sorted entity types that have a holder.
func (t *Table) Types() []string {
	types := t.holders.Keys()
	sort.Strings(types)

	return types
}

// DeadlockDetection returns whether the table hands out detecting locks.
func (t *Table) DeadlockDetection() bool {
	return t.options.deadlockDetection
}

func (t *Table) logDeadlock(cycle syncutils.Cycle) {
	if t.options.logger != nil {
		t.options.logger.Errorf("deadlock detected: %s", cycle)
	}
}

func (t *Table) logPotentialDeadlock() {
	if t.options.logger != nil {
		t.options.logger.Error("potential deadlock reported by lock order / timeout detection")
	}
}
