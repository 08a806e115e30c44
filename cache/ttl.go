package cache

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jellydator/ttlcache/v2"

	"github.com/iotaledger/entitycache/persist"
)

// TTL is a Store whose entries expire when they were not accessed for the configured duration.
// Objects that are not settled do not expire, their lifetime is extended instead.
//
// The ttlcache only keeps the clock, the entries themselves live in objects: ttlcache hides expired items before it
// processed them and reports expirations asynchronously, an unsettled object must stay visible during both.
type TTL struct {
	entries  *ttlcache.Cache
	onExpire EvictionHandler

	mutex   sync.RWMutex
	objects map[string]persist.Object
}

// tombstone is stored for nil objects, ttlcache does not keep nil values apart from missing ones.
type tombstone struct{}

// NewTTL creates a TTL store. onExpire may be nil.
func NewTTL(ttl time.Duration, onExpire EvictionHandler) (*TTL, error) {
	c := &TTL{
		entries:  ttlcache.NewCache(),
		onExpire: onExpire,
		objects:  make(map[string]persist.Object),
	}

	if err := c.entries.SetTTL(ttl); err != nil {
		return nil, errors.Wrap(err, "failed to set TTL of the cache")
	}

	c.entries.SetCheckExpirationCallback(func(_ string, value interface{}) bool {
		object, _ := value.(persist.Object)

		return object == nil || persist.Settled(object)
	})
	c.entries.SetExpirationReasonCallback(c.expired)

	return c, nil
}

// Get returns the cached object and extends its lifetime.
func (c *TTL) Get(key string) (persist.Object, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	object, exists := c.objects[key]
	if exists {
		// fails for entries that expired but were not processed yet, their expiration re-checks them
		_, _ = c.entries.Get(key)
	}

	return object, exists
}

// Put stores the object, nil stores a tombstone.
func (c *TTL) Put(key string, object persist.Object) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.objects[key] = object
	// only fails on a closed cache
	_ = c.entries.Set(key, entryValue(object))
}

// Remove drops the entry.
func (c *TTL) Remove(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.objects, key)
	// fails with ttlcache.ErrNotFound for missing keys
	_ = c.entries.Remove(key)
}

// Len returns the number of entries.
func (c *TTL) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.objects)
}

// Close stops the expiration goroutine of the cache.
func (c *TTL) Close() error {
	return c.entries.Close()
}

func (c *TTL) expired(key string, reason ttlcache.EvictionReason, value interface{}) {
	if reason != ttlcache.Expired {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	object, exists := c.objects[key]
	if !exists || entryValue(object) != value {
		// removed or replaced in the meantime
		return
	}

	// touched by a caller since the expiration was decided
	if object != nil && !persist.Settled(object) {
		_ = c.entries.Set(key, value)

		return
	}

	delete(c.objects, key)
	if c.onExpire != nil {
		c.onExpire(key, object)
	}
}

func entryValue(object persist.Object) interface{} {
	if object == nil {
		return tombstone{}
	}

	return object
}

var _ Store = &TTL{}
