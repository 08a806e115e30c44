package persist

import (
	"fmt"
	"sort"
	"sync"

	"github.com/emirpasic/gods/sets/hashset"
	"go.uber.org/atomic"
)

// Object is the type-erased view of a CacheObject the schedulers operate on.
type Object interface {
	// EntityType returns the type the entity belongs to, batches and locks are grouped by it.
	EntityType() string
	// Key returns the stable key of the entity within its type.
	Key() string
	// EntityValue returns the wrapped entity.
	EntityValue() any
	// Status returns the current persistence status.
	Status() Status
	// EditVersion returns the number of mutations that required persistence.
	EditVersion() int64
	// DBVersion returns the edit version that was last written, or is being written, to the storage.
	DBVersion() int64
	// UpdateProcessing returns whether an update action is already scheduled.
	UpdateProcessing() bool
	// ModifiedFields returns the sorted names of the fields changed since the last successful update.
	ModifiedFields() []string

	compareAndSwapStatus(old, new Status) bool
	increaseEditVersion() int64
	advanceDBVersion(expected, target int64) (previous int64, advanced bool)
	rollbackDBVersion(target, previous int64)
	startUpdate() bool
	finishUpdate()
	startDelete() bool
	finishDelete()
	isDeleting() bool
	drainModifiedFields() []string
	restoreModifiedFields(fields []string)
	pin()
	unpin()
	isPinned() bool
}

// Settled returns whether the storage holds the latest state of the object and nothing is about to change that: no
// action is pending or being written and no caller pinned the object. Caches only drop settled objects, everything
// else would be reloaded from an outdated storage state.
func Settled(object Object) bool {
	return object.Status() != StatusTransient &&
		!object.UpdateProcessing() &&
		!object.isDeleting() &&
		!object.isPinned() &&
		object.DBVersion() >= object.EditVersion()
}

// CacheObject wraps a cached entity together with the metadata needed to persist it.
type CacheObject[E any] struct {
	entityType string
	key        string
	entity     E

	status           atomic.Uint32
	editVersion      atomic.Int64
	dbVersion        atomic.Int64
	updateProcessing atomic.Bool
	deleting         atomic.Bool
	pins             atomic.Int32

	modifiedFields      *hashset.Set
	modifiedFieldsMutex sync.Mutex
}

// NewCacheObject wraps an entity that does not exist in the storage yet.
func NewCacheObject[E any](entityType, key string, entity E) *CacheObject[E] {
	return &CacheObject[E]{
		entityType:     entityType,
		key:            key,
		entity:         entity,
		modifiedFields: hashset.New(),
	}
}

// NewPersistedCacheObject wraps an entity that was loaded from the storage.
func NewPersistedCacheObject[E any](entityType, key string, entity E) *CacheObject[E] {
	c := NewCacheObject(entityType, key, entity)
	c.status.Store(uint32(StatusPersisted))

	return c
}

// Entity returns the wrapped entity.
func (c *CacheObject[E]) Entity() E {
	return c.entity
}

// EntityValue returns the wrapped entity as an untyped value.
func (c *CacheObject[E]) EntityValue() any {
	return c.entity
}

// EntityType returns the type of the entity.
func (c *CacheObject[E]) EntityType() string {
	return c.entityType
}

// Key returns the key of the entity.
func (c *CacheObject[E]) Key() string {
	return c.key
}

// Status returns the current persistence status.
func (c *CacheObject[E]) Status() Status {
	return Status(c.status.Load())
}

// EditVersion returns the current edit version.
func (c *CacheObject[E]) EditVersion() int64 {
	return c.editVersion.Load()
}

// DBVersion returns the edit version that was last handed to the storage.
func (c *CacheObject[E]) DBVersion() int64 {
	return c.dbVersion.Load()
}

// UpdateProcessing returns whether an update action for the object is pending.
func (c *CacheObject[E]) UpdateProcessing() bool {
	return c.updateProcessing.Load()
}

// Deleting returns whether a delete action for the object is in flight.
func (c *CacheObject[E]) Deleting() bool {
	return c.deleting.Load()
}

// Pin keeps the object from being dropped by a cache until the matching Unpin.
func (c *CacheObject[E]) Pin() {
	c.pin()
}

// Unpin releases a Pin.
func (c *CacheObject[E]) Unpin() {
	c.unpin()
}

// MarkModified records fields that changed, they are handed to storages supporting dynamic updates.
func (c *CacheObject[E]) MarkModified(fields ...string) {
	if len(fields) == 0 {
		return
	}

	c.modifiedFieldsMutex.Lock()
	defer c.modifiedFieldsMutex.Unlock()

	for _, field := range fields {
		c.modifiedFields.Add(field)
	}
}

// ModifiedFields returns the sorted names of all modified fields.
func (c *CacheObject[E]) ModifiedFields() []string {
	c.modifiedFieldsMutex.Lock()
	defer c.modifiedFieldsMutex.Unlock()

	return sortedFields(c.modifiedFields)
}

// String returns a human-readable version of the CacheObject.
func (c *CacheObject[E]) String() string {
	return fmt.Sprintf("CacheObject{type: %s, key: %s, status: %s, editVersion: %d, dbVersion: %d, updateProcessing: %t}",
		c.entityType, c.key, c.Status(), c.EditVersion(), c.DBVersion(), c.UpdateProcessing())
}

func (c *CacheObject[E]) compareAndSwapStatus(old, new Status) bool {
	return c.status.CompareAndSwap(uint32(old), uint32(new))
}

func (c *CacheObject[E]) increaseEditVersion() int64 {
	return c.editVersion.Inc()
}

// advanceDBVersion moves the db version from expected to target. If another action already moved it, the move still
// succeeds as long as the current value is below target, which keeps the db version monotonic without dropping a
// write whose captured version was overtaken by an older action.
func (c *CacheObject[E]) advanceDBVersion(expected, target int64) (int64, bool) {
	if c.dbVersion.CompareAndSwap(expected, target) {
		return expected, true
	}

	for {
		current := c.dbVersion.Load()
		if current >= target {
			return current, false
		}

		if c.dbVersion.CompareAndSwap(current, target) {
			return current, true
		}
	}
}

// rollbackDBVersion undoes a failed write unless a newer action already advanced the version.
func (c *CacheObject[E]) rollbackDBVersion(target, previous int64) {
	c.dbVersion.CompareAndSwap(target, previous)
}

func (c *CacheObject[E]) startUpdate() bool {
	return c.updateProcessing.CompareAndSwap(false, true)
}

func (c *CacheObject[E]) finishUpdate() {
	c.updateProcessing.Store(false)
}

func (c *CacheObject[E]) startDelete() bool {
	return c.deleting.CompareAndSwap(false, true)
}

func (c *CacheObject[E]) finishDelete() {
	c.deleting.Store(false)
}

func (c *CacheObject[E]) isDeleting() bool {
	return c.deleting.Load()
}

func (c *CacheObject[E]) drainModifiedFields() []string {
	c.modifiedFieldsMutex.Lock()
	defer c.modifiedFieldsMutex.Unlock()

	fields := sortedFields(c.modifiedFields)
	c.modifiedFields.Clear()

	return fields
}

func (c *CacheObject[E]) restoreModifiedFields(fields []string) {
	c.MarkModified(fields...)
}

func (c *CacheObject[E]) pin() {
	c.pins.Inc()
}

func (c *CacheObject[E]) unpin() {
	c.pins.Dec()
}

func (c *CacheObject[E]) isPinned() bool {
	return c.pins.Load() > 0
}

func sortedFields(set *hashset.Set) []string {
	if set.Size() == 0 {
		return nil
	}

	fields := make([]string, 0, set.Size())
	for _, value := range set.Values() {
		fields = append(fields, value.(string))
	}
	sort.Strings(fields)

	return fields
}

var _ Object = &CacheObject[any]{}
