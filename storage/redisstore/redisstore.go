// Package redisstore persists entities as Redis hashes, one hash per entity with one msgpack encoded value per field.
// Field level updates therefore only touch the modified hash fields.
package redisstore

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/iotaledger/entitycache/persist"
)

// ErrRecordNotFound is returned when a record does not exist.
var ErrRecordNotFound = errors.New("record not found")

// Storage implements persist.StorageAccess and persist.BatchStorageAccess on top of Redis.
type Storage struct {
	client redis.UniversalClient
	prefix string
}

// New creates a Storage that namespaces all its keys with prefix.
func New(client redis.UniversalClient, prefix string) *Storage {
	return &Storage{
		client: client,
		prefix: prefix,
	}
}

// Save writes the whole entity.
func (s *Storage) Save(ctx context.Context, entityType string, record persist.Record) error {
	return s.SaveAll(ctx, entityType, []persist.Record{record})
}

// Update writes the modified fields of the entity, or all of them if the record carries none.
func (s *Storage) Update(ctx context.Context, entityType string, record persist.Record) error {
	return s.UpdateAll(ctx, entityType, []persist.Record{record})
}

// Delete removes the entity.
func (s *Storage) Delete(ctx context.Context, entityType string, record persist.Record) error {
	return s.DeleteAll(ctx, entityType, []persist.Record{record})
}

// SaveAll writes the entities in one transaction.
func (s *Storage) SaveAll(ctx context.Context, entityType string, records []persist.Record) error {
	documents, err := encodeAll(records)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, record := range records {
			key := s.entityKey(entityType, record.Key)
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, documents[i])
			pipe.SAdd(ctx, s.indexKey(entityType), record.Key)
		}

		return nil
	})

	return errors.Wrapf(err, "failed to save %d entities of %s", len(records), entityType)
}

// UpdateAll writes the entities in one transaction.
func (s *Storage) UpdateAll(ctx context.Context, entityType string, records []persist.Record) error {
	documents, err := encodeAll(records)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, record := range records {
			key := s.entityKey(entityType, record.Key)

			document := documents[i]
			if len(record.ModifiedFields) > 0 {
				document = selectFields(document, record.ModifiedFields)
			} else {
				pipe.Del(ctx, key)
				pipe.SAdd(ctx, s.indexKey(entityType), record.Key)
			}

			if len(document) > 0 {
				pipe.HSet(ctx, key, document)
			}
		}

		return nil
	})

	return errors.Wrapf(err, "failed to update %d entities of %s", len(records), entityType)
}

// DeleteAll removes the entities in one transaction.
func (s *Storage) DeleteAll(ctx context.Context, entityType string, records []persist.Record) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, record := range records {
			pipe.Del(ctx, s.entityKey(entityType, record.Key))
			pipe.SRem(ctx, s.indexKey(entityType), record.Key)
		}

		return nil
	})

	return errors.Wrapf(err, "failed to delete %d entities of %s", len(records), entityType)
}

// Load decodes the stored entity into target.
func (s *Storage) Load(ctx context.Context, entityType, key string, target any) error {
	fields, err := s.client.HGetAll(ctx, s.entityKey(entityType, key)).Result()
	if err != nil {
		return errors.Wrapf(err, "failed to load %s#%s", entityType, key)
	}
	if len(fields) == 0 {
		return errors.Wrapf(ErrRecordNotFound, "%s#%s", entityType, key)
	}

	document := make(map[string]any, len(fields))
	for field, encoded := range fields {
		var value any
		if encoded == "" {
			// an empty field holds no value
			document[field] = nil

			continue
		}
		if err := msgpack.Unmarshal([]byte(encoded), &value); err != nil {
			return errors.Wrapf(err, "failed to decode field %s of %s#%s", field, entityType, key)
		}
		document[field] = value
	}

	bytes, err := msgpack.Marshal(document)
	if err != nil {
		return err
	}

	return errors.Wrapf(msgpack.Unmarshal(bytes, target), "failed to decode %s#%s", entityType, key)
}

// Keys returns the sorted keys of all stored entities of the type.
func (s *Storage) Keys(ctx context.Context, entityType string) ([]string, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey(entityType)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", entityType)
	}
	sort.Strings(keys)

	return keys, nil
}

func (s *Storage) entityKey(entityType, key string) string {
	return s.prefix + ":" + entityType + ":" + key
}

func (s *Storage) indexKey(entityType string) string {
	return s.prefix + ":" + entityType
}

// encodeAll turns every entity into a map of field name to msgpack encoded value.
func encodeAll(records []persist.Record) ([]map[string]any, error) {
	documents := make([]map[string]any, len(records))
	for i, record := range records {
		bytes, err := msgpack.Marshal(record.Entity)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode %s", record.Key)
		}

		fields := make(map[string]msgpack.RawMessage)
		if err := msgpack.Unmarshal(bytes, &fields); err != nil {
			return nil, errors.Wrapf(err, "entity %s is not encoded as a map", record.Key)
		}

		document := make(map[string]any, len(fields))
		for field, raw := range fields {
			// nil values decode to an empty message, stored as is they could not be decoded again
			if len(raw) == 0 {
				raw = msgpack.RawMessage{msgpcode.Nil}
			}
			document[field] = []byte(raw)
		}
		documents[i] = document
	}

	return documents, nil
}

func selectFields(document map[string]any, fields []string) map[string]any {
	selected := make(map[string]any, len(fields))
	for _, field := range fields {
		if value, exists := document[field]; exists {
			selected[field] = value
		}
	}

	return selected
}

var (
	_ persist.StorageAccess      = &Storage{}
	_ persist.BatchStorageAccess = &Storage{}
)
