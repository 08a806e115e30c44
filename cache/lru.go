package cache

import (
	"sync"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/iotaledger/entitycache/persist"
)

// LRU is a Store bounded by size that drops the least recently used entries.
// Evicted objects that are not settled are parked outside of the bound and stay reachable until they are, so the
// next access never reloads a state the storage did not catch up with. Parked objects are released by later evictions.
type LRU struct {
	entries *lru.Cache[string, persist.Object]
	onEvict EvictionHandler

	// mutex makes an eviction and the parking of the evicted object a single step for readers
	mutex  sync.RWMutex
	parked map[string]persist.Object
}

// NewLRU creates an LRU holding at most size settled entries. onEvict may be nil.
func NewLRU(size int, onEvict EvictionHandler) (*LRU, error) {
	l := &LRU{
		onEvict: onEvict,
		parked:  make(map[string]persist.Object),
	}

	entries, err := lru.NewWithEvict[string, persist.Object](size, l.evicted)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create lru cache")
	}
	l.entries = entries

	return l, nil
}

// Get returns the cached object and marks it as recently used.
func (l *LRU) Get(key string) (persist.Object, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if object, exists := l.entries.Get(key); exists {
		return object, true
	}

	object, parked := l.parked[key]

	return object, parked
}

// Put stores the object, nil stores a tombstone.
func (l *LRU) Put(key string, object persist.Object) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	delete(l.parked, key)
	l.entries.Add(key, object)
}

// Remove drops the entry.
func (l *LRU) Remove(key string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.entries.Remove(key)

	if object, parked := l.parked[key]; parked {
		delete(l.parked, key)
		l.release(key, object)
	}
}

// Len returns the number of entries, parked ones included.
func (l *LRU) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.entries.Len() + len(l.parked)
}

// Parked returns the number of evicted entries that wait to be settled.
func (l *LRU) Parked() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return len(l.parked)
}

// evicted is called by Add and Remove of the entries, with the mutex held.
func (l *LRU) evicted(key string, object persist.Object) {
	if object != nil && !persist.Settled(object) {
		l.parked[key] = object
	} else {
		l.release(key, object)
	}

	for parkedKey, parkedObject := range l.parked {
		if persist.Settled(parkedObject) {
			delete(l.parked, parkedKey)
			l.release(parkedKey, parkedObject)
		}
	}
}

func (l *LRU) release(key string, object persist.Object) {
	if l.onEvict != nil {
		l.onEvict(key, object)
	}
}

var _ Store = &LRU{}
