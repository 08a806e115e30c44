// Package cache contains the live caches cached entities are kept in.
// All caches distinguish a missing entry from a tombstone, a nil Object left behind by a delete.
package cache

import (
	"github.com/iotaledger/entitycache/persist"
)

// Store is a live cache.
type Store interface {
	persist.Cache

	// Remove drops the entry, tombstones included.
	Remove(key string)
	// Len returns the number of entries, tombstones included.
	Len() int
}

// EvictionHandler is called when a cache drops an entry on its own, tombstones are reported with a nil Object.
type EvictionHandler func(key string, object persist.Object)
