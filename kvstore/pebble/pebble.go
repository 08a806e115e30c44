// Package pebble implements kvstore.KVStore on top of pebble.
package pebble

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"go.uber.org/atomic"

	"github.com/iotaledger/entitycache/kvstore"
)

// pebbleStore implements the KVStore interface around a pebble instance.
type pebbleStore struct {
	instance *pebble.DB
	closed   *atomic.Bool
	dbPrefix []byte
}

// New creates a new KVStore with the underlying pebbleDB.
func New(db *pebble.DB) kvstore.KVStore {
	return &pebbleStore{
		instance: db,
		closed:   atomic.NewBool(false),
	}
}

func (s *pebbleStore) WithRealm(realm kvstore.Realm) (kvstore.KVStore, error) {
	if s.closed.Load() {
		return nil, kvstore.ErrStoreClosed
	}

	return &pebbleStore{
		instance: s.instance,
		closed:   s.closed,
		dbPrefix: kvstore.CopyBytes(realm),
	}, nil
}

func (s *pebbleStore) Realm() kvstore.Realm {
	return kvstore.CopyBytes(s.dbPrefix)
}

func (s *pebbleStore) getIterBounds(prefix kvstore.KeyPrefix) ([]byte, []byte) {
	start := kvstore.ConcatBytes(s.dbPrefix, prefix)
	if len(start) == 0 {
		// no bounds
		return nil, nil
	}

	return start, kvstore.KeyPrefixUpperBound(start)
}

func (s *pebbleStore) iterate(prefix kvstore.KeyPrefix, consumer func(it *pebble.Iterator) bool, direction ...kvstore.IterDirection) error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	start, end := s.getIterBounds(prefix)

	it := s.instance.NewIter(&pebble.IterOptions{LowerBound: start, UpperBound: end})
	defer it.Close()

	startFunc, moveFunc := it.First, it.Next
	if kvstore.GetIterDirection(direction...) == kvstore.IterDirectionBackward {
		startFunc, moveFunc = it.Last, it.Prev
	}

	for startFunc(); it.Valid(); moveFunc() {
		if !consumer(it) {
			break
		}
	}

	return nil
}

func (s *pebbleStore) Iterate(prefix kvstore.KeyPrefix, consumerFunc kvstore.IteratorKeyValueConsumerFunc, direction ...kvstore.IterDirection) error {
	return s.iterate(prefix, func(it *pebble.Iterator) bool {
		return consumerFunc(kvstore.CopyBytes(it.Key())[len(s.dbPrefix):], kvstore.CopyBytes(it.Value()))
	}, direction...)
}

func (s *pebbleStore) IterateKeys(prefix kvstore.KeyPrefix, consumerFunc kvstore.IteratorKeyConsumerFunc, direction ...kvstore.IterDirection) error {
	return s.iterate(prefix, func(it *pebble.Iterator) bool {
		return consumerFunc(kvstore.CopyBytes(it.Key())[len(s.dbPrefix):])
	}, direction...)
}

func (s *pebbleStore) Clear() error {
	return s.DeletePrefix(kvstore.EmptyPrefix)
}

func (s *pebbleStore) Get(key kvstore.Key) (kvstore.Value, error) {
	if s.closed.Load() {
		return nil, kvstore.ErrStoreClosed
	}

	val, closer, err := s.instance.Get(kvstore.ConcatBytes(s.dbPrefix, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, kvstore.ErrKeyNotFound
		}

		return nil, err
	}

	value := kvstore.CopyBytes(val)
	if err := closer.Close(); err != nil {
		return nil, err
	}

	return value, nil
}

func (s *pebbleStore) Set(key kvstore.Key, value kvstore.Value) error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	return s.instance.Set(kvstore.ConcatBytes(s.dbPrefix, key), value, pebble.NoSync)
}

func (s *pebbleStore) Has(key kvstore.Key) (bool, error) {
	if s.closed.Load() {
		return false, kvstore.ErrStoreClosed
	}

	_, closer, err := s.instance.Get(kvstore.ConcatBytes(s.dbPrefix, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := closer.Close(); err != nil {
		return true, err
	}

	return true, nil
}

func (s *pebbleStore) Delete(key kvstore.Key) error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	return s.instance.Delete(kvstore.ConcatBytes(s.dbPrefix, key), pebble.NoSync)
}

func (s *pebbleStore) DeletePrefix(prefix kvstore.KeyPrefix) error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	start, end := s.getIterBounds(prefix)
	if start == nil || end == nil {
		// DeleteRange does not work without range, so we have to iterate over all keys and delete them
		batch := s.instance.NewBatch()
		defer func() { _ = batch.Close() }()

		if err := s.iterate(prefix, func(it *pebble.Iterator) bool {
			return batch.Delete(kvstore.CopyBytes(it.Key()), nil) == nil
		}); err != nil {
			return err
		}

		return batch.Commit(pebble.NoSync)
	}

	return s.instance.DeleteRange(start, end, pebble.NoSync)
}

func (s *pebbleStore) Batched() (kvstore.BatchedMutations, error) {
	if s.closed.Load() {
		return nil, kvstore.ErrStoreClosed
	}

	return kvstore.NewBatchedMutations(s.dbPrefix, func(setOperations map[string]kvstore.Value, deleteOperations map[string]struct{}) error {
		writeBatch := s.instance.NewBatch()
		defer func() { _ = writeBatch.Close() }()

		for key, value := range setOperations {
			if err := writeBatch.Set([]byte(key), value, nil); err != nil {
				return errors.Wrap(err, "failed to set key")
			}
		}
		for key := range deleteOperations {
			if err := writeBatch.Delete([]byte(key), nil); err != nil {
				return errors.Wrap(err, "failed to delete key")
			}
		}

		return writeBatch.Commit(pebble.NoSync)
	}, s.closed.Load), nil
}

func (s *pebbleStore) Flush() error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	return s.instance.Flush()
}

func (s *pebbleStore) Close() error {
	if s.closed.Swap(true) {
		// was already closed
		return nil
	}

	return s.instance.Close()
}

var _ kvstore.KVStore = &pebbleStore{}
