package persist

import (
	"context"
	"time"
)

// Record is what a storage receives for a single entity.
type Record struct {
	Key    string
	Entity any
	// ModifiedFields is only set on updates of types with dynamic updates enabled. An empty slice means a full write.
	ModifiedFields []string
}

// StorageAccess writes single entities to the backing storage.
type StorageAccess interface {
	Save(ctx context.Context, entityType string, record Record) error
	Update(ctx context.Context, entityType string, record Record) error
	Delete(ctx context.Context, entityType string, record Record) error
}

// BatchStorageAccess is implemented by storages that can write many entities of a type at once.
// The BatchScheduler prefers it over single writes.
type BatchStorageAccess interface {
	SaveAll(ctx context.Context, entityType string, records []Record) error
	UpdateAll(ctx context.Context, entityType string, records []Record) error
	DeleteAll(ctx context.Context, entityType string, records []Record) error
}

// Cache is the in-memory store the objects live in. Putting a nil Object leaves a tombstone behind.
type Cache interface {
	Get(key string) (Object, bool)
	Put(key string, object Object)
}

// RuleSource provides the persistence rules.
type RuleSource interface {
	// DelayWait returns the debounce delay between submitting an action and executing it.
	DelayWait() time.Duration
}

// DynamicUpdateRule is optionally implemented by a RuleSource to enable field level updates for a type.
type DynamicUpdateRule interface {
	DynamicUpdate(entityType string) bool
}

// DiagnosticRenderer renders an entity for failure logs.
type DiagnosticRenderer interface {
	Render(entity any) string
}

// LockEvicter drops the instance lock of a deleted entity.
type LockEvicter interface {
	Evict(entityType, key string)
}

// Scheduler is the interface shared by all persistence strategies.
type Scheduler interface {
	// HandleSave schedules writing a Transient object. It returns whether an action was scheduled.
	HandleSave(object Object, storage StorageAccess) bool
	// HandleUpdate records a mutation of the object and schedules an update unless one is already pending.
	HandleUpdate(object Object, storage StorageAccess) bool
	// HandleDelete schedules removing a Persisted object. On success it is replaced by a tombstone in the cache.
	HandleDelete(object Object, storage StorageAccess, key string, cache Cache) bool
	// Pending returns the number of actions that were not executed yet.
	Pending() int
	// LogUnpersistedEntities logs every pending action whose entity was not persisted yet and returns their count.
	LogUnpersistedEntities() int
	// Shutdown stops accepting actions and flushes the pending ones.
	Shutdown() error
}
