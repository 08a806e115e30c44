// Package kvstorage persists entities as msgpack documents in a kvstore.KVStore, one realm per entity type.
package kvstorage

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/iotaledger/entitycache/kvstore"
	"github.com/iotaledger/entitycache/persist"
)

// ErrRecordNotFound is returned when a record does not exist.
var ErrRecordNotFound = errors.New("record not found")

// Storage implements persist.StorageAccess and persist.BatchStorageAccess.
type Storage struct {
	store kvstore.KVStore
}

// New creates a Storage writing into the given store.
func New(store kvstore.KVStore) *Storage {
	return &Storage{store: store}
}

// Save writes the whole entity.
func (s *Storage) Save(ctx context.Context, entityType string, record persist.Record) error {
	return s.SaveAll(ctx, entityType, []persist.Record{record})
}

// Update writes the entity, or only its modified fields if the record carries them.
func (s *Storage) Update(ctx context.Context, entityType string, record persist.Record) error {
	return s.UpdateAll(ctx, entityType, []persist.Record{record})
}

// Delete removes the entity.
func (s *Storage) Delete(ctx context.Context, entityType string, record persist.Record) error {
	return s.DeleteAll(ctx, entityType, []persist.Record{record})
}

// SaveAll writes the entities in one batch.
func (s *Storage) SaveAll(ctx context.Context, entityType string, records []persist.Record) error {
	return s.batched(ctx, entityType, func(realm kvstore.KVStore, batch kvstore.BatchedMutations) error {
		for _, record := range records {
			bytes, err := msgpack.Marshal(record.Entity)
			if err != nil {
				return errors.Wrapf(err, "failed to encode %s#%s", entityType, record.Key)
			}

			if err := batch.Set([]byte(record.Key), bytes); err != nil {
				return err
			}
		}

		return nil
	})
}

// UpdateAll writes the entities in one batch. Records with modified fields are merged into the stored document.
func (s *Storage) UpdateAll(ctx context.Context, entityType string, records []persist.Record) error {
	return s.batched(ctx, entityType, func(realm kvstore.KVStore, batch kvstore.BatchedMutations) error {
		for _, record := range records {
			bytes, err := s.encodeUpdate(realm, record)
			if err != nil {
				return errors.Wrapf(err, "failed to encode %s#%s", entityType, record.Key)
			}

			if err := batch.Set([]byte(record.Key), bytes); err != nil {
				return err
			}
		}

		return nil
	})
}

// DeleteAll removes the entities in one batch.
func (s *Storage) DeleteAll(ctx context.Context, entityType string, records []persist.Record) error {
	return s.batched(ctx, entityType, func(_ kvstore.KVStore, batch kvstore.BatchedMutations) error {
		for _, record := range records {
			if err := batch.Delete([]byte(record.Key)); err != nil {
				return err
			}
		}

		return nil
	})
}

// Load decodes the stored entity into target.
func (s *Storage) Load(entityType, key string, target any) error {
	realm, err := s.realm(entityType)
	if err != nil {
		return err
	}

	bytes, err := realm.Get([]byte(key))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return errors.Wrapf(ErrRecordNotFound, "%s#%s", entityType, key)
		}

		return err
	}

	return errors.Wrapf(msgpack.Unmarshal(bytes, target), "failed to decode %s#%s", entityType, key)
}

// Keys returns the keys of all stored entities of the type.
func (s *Storage) Keys(entityType string) ([]string, error) {
	realm, err := s.realm(entityType)
	if err != nil {
		return nil, err
	}

	var keys []string
	if err := realm.IterateKeys(kvstore.EmptyPrefix, func(key kvstore.Key) bool {
		keys = append(keys, string(key))

		return true
	}); err != nil {
		return nil, err
	}

	return keys, nil
}

func (s *Storage) encodeUpdate(realm kvstore.KVStore, record persist.Record) ([]byte, error) {
	if len(record.ModifiedFields) == 0 {
		return msgpack.Marshal(record.Entity)
	}

	stored, err := realm.Get([]byte(record.Key))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, errors.Wrapf(ErrRecordNotFound, "%s", record.Key)
		}

		return nil, err
	}

	document := make(map[string]any)
	if err := msgpack.Unmarshal(stored, &document); err != nil {
		return nil, err
	}

	current, err := toDocument(record.Entity)
	if err != nil {
		return nil, err
	}

	for _, field := range record.ModifiedFields {
		if value, exists := current[field]; exists {
			document[field] = value
		}
	}

	return msgpack.Marshal(document)
}

func (s *Storage) batched(ctx context.Context, entityType string, fill func(realm kvstore.KVStore, batch kvstore.BatchedMutations) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	realm, err := s.realm(entityType)
	if err != nil {
		return err
	}

	batch, err := realm.Batched()
	if err != nil {
		return err
	}

	if err := fill(realm, batch); err != nil {
		batch.Cancel()

		return err
	}

	return batch.Commit()
}

func (s *Storage) realm(entityType string) (kvstore.KVStore, error) {
	return s.store.WithRealm([]byte(entityType + "/"))
}

func toDocument(entity any) (map[string]any, error) {
	bytes, err := msgpack.Marshal(entity)
	if err != nil {
		return nil, err
	}

	document := make(map[string]any)
	if err := msgpack.Unmarshal(bytes, &document); err != nil {
		return nil, err
	}

	return document, nil
}

var (
	_ persist.StorageAccess      = &Storage{}
	_ persist.BatchStorageAccess = &Storage{}
)
