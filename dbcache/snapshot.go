package dbcache

import (
	"context"

	"github.com/iotaledger/entitycache/objectlock"
	"github.com/iotaledger/entitycache/persist"
)

// snapshotStorage hands shallow copies of the entities to the wrapped storage. The copy is taken under the instance
// lock, so encoding it cannot observe a half applied mutation.
type snapshotStorage[E any] struct {
	storage persist.StorageAccess
	locks   *objectlock.Table
}

// snapshotBatchStorage additionally forwards batched writes.
type snapshotBatchStorage[E any] struct {
	*snapshotStorage[E]
	batch persist.BatchStorageAccess
}

func newSnapshotStorage[E any](storage persist.StorageAccess, locks *objectlock.Table) persist.StorageAccess {
	s := &snapshotStorage[E]{storage: storage, locks: locks}

	if batch, ok := storage.(persist.BatchStorageAccess); ok {
		return &snapshotBatchStorage[E]{snapshotStorage: s, batch: batch}
	}

	return s
}

func (s *snapshotStorage[E]) Save(ctx context.Context, entityType string, record persist.Record) error {
	return s.storage.Save(ctx, entityType, s.snapshot(entityType, record))
}

func (s *snapshotStorage[E]) Update(ctx context.Context, entityType string, record persist.Record) error {
	return s.storage.Update(ctx, entityType, s.snapshot(entityType, record))
}

func (s *snapshotStorage[E]) Delete(ctx context.Context, entityType string, record persist.Record) error {
	return s.storage.Delete(ctx, entityType, s.snapshot(entityType, record))
}

func (s *snapshotStorage[E]) snapshot(entityType string, record persist.Record) persist.Record {
	entity, ok := record.Entity.(*E)
	if !ok || entity == nil {
		return record
	}

	lock := s.locks.Lock(entityType, record.Key)
	copied := *entity
	lock.Unlock()

	record.Entity = &copied

	return record
}

func (s *snapshotStorage[E]) snapshots(entityType string, records []persist.Record) []persist.Record {
	copied := make([]persist.Record, len(records))
	for i, record := range records {
		copied[i] = s.snapshot(entityType, record)
	}

	return copied
}

func (s *snapshotBatchStorage[E]) SaveAll(ctx context.Context, entityType string, records []persist.Record) error {
	return s.batch.SaveAll(ctx, entityType, s.snapshots(entityType, records))
}

func (s *snapshotBatchStorage[E]) UpdateAll(ctx context.Context, entityType string, records []persist.Record) error {
	return s.batch.UpdateAll(ctx, entityType, s.snapshots(entityType, records))
}

func (s *snapshotBatchStorage[E]) DeleteAll(ctx context.Context, entityType string, records []persist.Record) error {
	return s.batch.DeleteAll(ctx, entityType, s.snapshots(entityType, records))
}
