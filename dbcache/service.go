// Package dbcache ties the instance locks, a live cache and a persist scheduler together into a typed entity cache.
package dbcache

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/iotaledger/entitycache/cache"
	"github.com/iotaledger/entitycache/logger"
	"github.com/iotaledger/entitycache/objectlock"
	"github.com/iotaledger/entitycache/persist"
	"github.com/iotaledger/entitycache/syncutils"
)

var (
	// ErrEntityNotFound is returned for keys that are neither cached nor known to the loader.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrEntityExists is returned when creating an entity under a key that is already cached.
	ErrEntityExists = errors.New("entity already exists")
	// ErrEntityNotPersisted is returned when deleting an entity whose initial save did not complete yet.
	ErrEntityNotPersisted = errors.New("entity not persisted yet")
	// ErrEntityDeleting is returned when mutating an entity whose delete is in flight.
	ErrEntityDeleting = errors.New("entity is being deleted")
)

// Loader reads an entity from the storage. A nil entity means the key does not exist.
type Loader[E any] func(ctx context.Context, key string) (*E, error)

// Mutation changes an entity in place and returns the names of the changed fields, nil means "everything".
type Mutation[E any] func(entity *E) []string

// Info is a snapshot of the state of a Service.
type Info struct {
	EntityType string
	Cached     int
	Locks      int
	Pending    int
}

// String returns a human-readable version of the Info.
func (i Info) String() string {
	return fmt.Sprintf("Info{type: %s, cached: %d, locks: %d, pending: %d}", i.EntityType, i.Cached, i.Locks, i.Pending)
}

// Service caches the entities of one type and hands every mutation to the persist scheduler.
//
// The entity of a cached object is only touched while its instance lock is held. Storages receive a copy taken under
// that lock, so they never race with a running mutation.
type Service[E any] struct {
	*logger.WrappedLogger

	entityType string
	cache      cache.Store
	locks      *objectlock.Table
	scheduler  persist.Scheduler
	storage    persist.StorageAccess
	loader     Loader[E]
	loads      singleflight.Group
}

// New creates a Service for the given entity type.
func New[E any](entityType string, store cache.Store, locks *objectlock.Table, scheduler persist.Scheduler, storage persist.StorageAccess, opts ...Option[E]) *Service[E] {
	s := &Service[E]{
		WrappedLogger: logger.NewWrappedLogger(logger.NewNopLogger()),
		entityType:    entityType,
		cache:         store,
		locks:         locks,
		scheduler:     scheduler,
		storage:       newSnapshotStorage[E](storage, locks),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// EntityType returns the type of the managed entities.
func (s *Service[E]) EntityType() string {
	return s.entityType
}

// Create caches a new entity and schedules its initial save.
func (s *Service[E]) Create(key string, entity *E) (*persist.CacheObject[*E], error) {
	lock := s.locks.Lock(s.entityType, key)

	if existing, exists := s.cache.Get(key); exists && existing != nil {
		lock.Unlock()

		return nil, errors.Wrapf(ErrEntityExists, "%s#%s", s.entityType, key)
	}

	object := persist.NewCacheObject(s.entityType, key, entity)
	s.cache.Put(key, object)
	lock.Unlock()

	if !s.scheduler.HandleSave(object, s.storage) {
		s.LogWarnf("initial save of %s#%s was not scheduled", s.entityType, key)
	}

	return object, nil
}

// Get returns a copy of the entity.
func (s *Service[E]) Get(ctx context.Context, key string) (E, error) {
	var snapshot E

	object, lock, err := s.acquire(ctx, key)
	if err != nil {
		return snapshot, err
	}
	defer object.Unpin()
	defer lock.Unlock()

	if object.Status() == persist.StatusDeleted {
		return snapshot, errors.Wrapf(ErrEntityNotFound, "%s#%s", s.entityType, key)
	}

	return *object.Entity(), nil
}

// Update applies the mutation under the instance lock and schedules persisting it.
func (s *Service[E]) Update(ctx context.Context, key string, mutation Mutation[E]) error {
	object, lock, err := s.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer object.Unpin()

	switch {
	case object.Status() == persist.StatusDeleted:
		lock.Unlock()

		return errors.Wrapf(ErrEntityNotFound, "%s#%s", s.entityType, key)
	case object.Deleting():
		lock.Unlock()

		return errors.Wrapf(ErrEntityDeleting, "%s#%s", s.entityType, key)
	}

	object.MarkModified(mutation(object.Entity())...)
	lock.Unlock()

	// false only means an update is pending already, it picks up this mutation as well
	s.scheduler.HandleUpdate(object, s.storage)

	return nil
}

// Delete schedules removing the entity. The cache entry turns into a tombstone once the storage confirmed it.
func (s *Service[E]) Delete(ctx context.Context, key string) error {
	object, lock, err := s.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer object.Unpin()
	lock.Unlock()

	switch object.Status() {
	case persist.StatusTransient:
		return errors.Wrapf(ErrEntityNotPersisted, "%s#%s", s.entityType, key)
	case persist.StatusDeleted:
		return errors.Wrapf(ErrEntityNotFound, "%s#%s", s.entityType, key)
	}

	if !s.scheduler.HandleDelete(object, s.storage, key, s.cache) && !object.Deleting() {
		return errors.Wrapf(persist.ErrSchedulerStopped, "delete of %s#%s", s.entityType, key)
	}

	return nil
}

// Info returns the current counters of the Service.
func (s *Service[E]) Info() Info {
	return Info{
		EntityType: s.entityType,
		Cached:     s.cache.Len(),
		Locks:      s.locks.Count(s.entityType),
		Pending:    s.scheduler.Pending(),
	}
}

// acquire returns the cached object pinned and with its instance lock held. The pin keeps caches from dropping the
// object until the caller handed its mutation to the scheduler. An object that was dropped before it got pinned is
// looked up again.
func (s *Service[E]) acquire(ctx context.Context, key string) (*persist.CacheObject[*E], syncutils.Locker, error) {
	for {
		object, err := s.object(ctx, key)
		if err != nil {
			return nil, nil, err
		}

		object.Pin()
		lock := s.locks.Lock(s.entityType, key)

		if current, _ := s.cached(key); current == object {
			return object, lock, nil
		}

		lock.Unlock()
		object.Unpin()

		if err := ctx.Err(); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to access %s#%s", s.entityType, key)
		}
	}
}

// object returns the cached object, loading it on a miss. Concurrent misses of the same key share one load.
func (s *Service[E]) object(ctx context.Context, key string) (*persist.CacheObject[*E], error) {
	if object, exists := s.cached(key); exists {
		if object == nil {
			return nil, errors.Wrapf(ErrEntityNotFound, "%s#%s", s.entityType, key)
		}

		return object, nil
	}

	if s.loader == nil {
		return nil, errors.Wrapf(ErrEntityNotFound, "%s#%s", s.entityType, key)
	}

	value, err, _ := s.loads.Do(key, func() (interface{}, error) {
		return s.load(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	return value.(*persist.CacheObject[*E]), nil
}

func (s *Service[E]) load(ctx context.Context, key string) (*persist.CacheObject[*E], error) {
	entity, err := s.loader(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s#%s", s.entityType, key)
	}

	lock := s.locks.Lock(s.entityType, key)
	defer lock.Unlock()

	// a Create may have won the race against the storage read
	if object, exists := s.cached(key); exists {
		if object == nil {
			return nil, errors.Wrapf(ErrEntityNotFound, "%s#%s", s.entityType, key)
		}

		return object, nil
	}

	if entity == nil {
		s.cache.Put(key, nil)

		return nil, errors.Wrapf(ErrEntityNotFound, "%s#%s", s.entityType, key)
	}

	object := persist.NewPersistedCacheObject(s.entityType, key, entity)
	s.cache.Put(key, object)

	s.LogDebugf("loaded %s#%s", s.entityType, key)

	return object, nil
}

// cached returns the cached object, (nil, true) for tombstones.
func (s *Service[E]) cached(key string) (*persist.CacheObject[*E], bool) {
	object, exists := s.cache.Get(key)
	if !exists {
		return nil, false
	}

	if object == nil {
		return nil, true
	}

	typed, ok := object.(*persist.CacheObject[*E])
	if !ok {
		s.LogErrorf("cache entry %s#%s has unexpected type %T", s.entityType, key, object)

		return nil, false
	}

	return typed, true
}
