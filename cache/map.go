package cache

import (
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/iotaledger/entitycache/persist"
)

// Map is an unbounded Store backed by a sharded concurrent map.
type Map struct {
	entries cmap.ConcurrentMap[string, persist.Object]
}

// NewMap creates an empty Map.
func NewMap() *Map {
	return &Map{entries: cmap.New[persist.Object]()}
}

// Get returns the cached object. A tombstone is returned as (nil, true).
func (m *Map) Get(key string) (persist.Object, bool) {
	return m.entries.Get(key)
}

// Put stores the object, nil stores a tombstone.
func (m *Map) Put(key string, object persist.Object) {
	m.entries.Set(key, object)
}

// PutIfAbsent stores the object unless the key is present and returns the object that is cached afterwards.
func (m *Map) PutIfAbsent(key string, object persist.Object) (persist.Object, bool) {
	if m.entries.SetIfAbsent(key, object) {
		return object, true
	}

	existing, _ := m.entries.Get(key)

	return existing, false
}

// Remove drops the entry.
func (m *Map) Remove(key string) {
	m.entries.Remove(key)
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return m.entries.Count()
}

// Keys returns the keys of all entries.
func (m *Map) Keys() []string {
	return m.entries.Keys()
}

var _ Store = &Map{}
