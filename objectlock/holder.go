package objectlock

import (
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/atomic"

	"github.com/iotaledger/entitycache/syncutils"
)

// instanceLock counts the goroutines holding or waiting for it, only unused locks are evicted.
type instanceLock struct {
	syncutils.Locker

	users atomic.Int32
}

// Lock acquires the lock.
func (l *instanceLock) Lock() {
	l.users.Inc()
	l.Locker.Lock()
}

// Unlock releases the lock.
func (l *instanceLock) Unlock() {
	l.Locker.Unlock()
	l.users.Dec()
}

// Holder keeps the instance locks of a single entity type plus the type's tie lock.
type Holder struct {
	entityType string
	tieLock    syncutils.Locker
	locks      cmap.ConcurrentMap[string, *instanceLock]
	newLock    func(name string) syncutils.Locker
}

func newHolder(entityType string, newLock func(name string) syncutils.Locker) *Holder {
	return &Holder{
		entityType: entityType,
		tieLock:    newLock(entityType + "#tie"),
		locks:      cmap.New[*instanceLock](),
		newLock:    newLock,
	}
}

// LockFor returns the canonical lock of the instance with the given key, creating it on first access.
func (h *Holder) LockFor(key string) syncutils.Locker {
	if lock, exists := h.locks.Get(key); exists {
		return lock
	}

	// losing a creation race is fine, everybody re-reads the winner
	h.locks.SetIfAbsent(key, &instanceLock{Locker: h.newLock(h.entityType + "#" + key)})

	lock, _ := h.locks.Get(key)

	return lock
}

// Lock acquires the canonical lock of the instance and returns it for the Unlock.
// A lock that was evicted between LockFor and acquiring it is released again and the new canonical lock is used.
func (h *Holder) Lock(key string) syncutils.Locker {
	for {
		lock := h.LockFor(key)
		lock.Lock()

		if current, exists := h.locks.Get(key); exists && current == lock {
			return lock
		}

		lock.Unlock()
	}
}

// TieLock returns the lock shared by all instances of the type.
func (h *Holder) TieLock() syncutils.Locker {
	return h.tieLock
}

// Evict forgets the lock of the given instance unless a goroutine holds or waits for it.
// It returns whether the lock is gone.
func (h *Holder) Evict(key string) bool {
	h.locks.RemoveCb(key, func(_ string, lock *instanceLock, exists bool) bool {
		return exists && lock.users.Load() == 0
	})

	return !h.locks.Has(key)
}

// Count returns the number of instance locks currently held in the table.
func (h *Holder) Count() int {
	return h.locks.Count()
}

// EntityType returns the entity type of the holder.
func (h *Holder) EntityType() string {
	return h.entityType
}
