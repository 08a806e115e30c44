// Package badger implements kvstore.KVStore on top of BadgerDB.
package badger

import (
	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v2"
	"go.uber.org/atomic"

	"github.com/iotaledger/entitycache/kvstore"
)

// badgerStore implements the KVStore interface around a BadgerDB instance.
type badgerStore struct {
	instance *badger.DB
	closed   *atomic.Bool
	dbPrefix []byte
}

// New creates a new KVStore with the underlying BadgerDB.
func New(db *badger.DB) kvstore.KVStore {
	return &badgerStore{
		instance: db,
		closed:   atomic.NewBool(false),
	}
}

func (s *badgerStore) WithRealm(realm kvstore.Realm) (kvstore.KVStore, error) {
	if s.closed.Load() {
		return nil, kvstore.ErrStoreClosed
	}

	return &badgerStore{
		instance: s.instance,
		closed:   s.closed,
		dbPrefix: kvstore.CopyBytes(realm),
	}, nil
}

func (s *badgerStore) Realm() kvstore.Realm {
	return kvstore.CopyBytes(s.dbPrefix)
}

// builds a key usable for the badger instance using the realm and the given prefix.
func (s *badgerStore) buildKeyPrefix(prefix kvstore.KeyPrefix) kvstore.KeyPrefix {
	return kvstore.ConcatBytes(s.dbPrefix, prefix)
}

// iterate walks the keys with the given prefix, values are only fetched if withValues is set.
func (s *badgerStore) iterate(prefix kvstore.KeyPrefix, withValues bool, consumer func(key kvstore.Key, value kvstore.Value) bool, direction ...kvstore.IterDirection) error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	return s.instance.View(func(txn *badger.Txn) error {
		keyPrefix := s.buildKeyPrefix(prefix)
		backward := kvstore.GetIterDirection(direction...) == kvstore.IterDirectionBackward

		iteratorOptions := badger.DefaultIteratorOptions
		iteratorOptions.Prefix = keyPrefix
		iteratorOptions.PrefetchValues = withValues
		iteratorOptions.Reverse = backward

		it := txn.NewIterator(iteratorOptions)
		defer it.Close()

		start := func() { it.Rewind() }
		if backward && len(keyPrefix) > 0 {
			// reverse iteration seeks to the largest key <= the seek key
			upperBound := kvstore.KeyPrefixUpperBound(keyPrefix)
			if upperBound == nil {
				return errors.New("no upper bound for prefix")
			}
			start = func() {
				it.Seek(upperBound)
				if it.Valid() && !it.ValidForPrefix(keyPrefix) {
					it.Next()
				}
			}
		} else if len(keyPrefix) > 0 {
			start = func() { it.Seek(keyPrefix) }
		}

		for start(); it.ValidForPrefix(keyPrefix); it.Next() {
			item := it.Item()

			var value []byte
			if withValues {
				var err error
				if value, err = item.ValueCopy(nil); err != nil {
					return errors.Wrap(err, "failed to read value")
				}
			}

			if !consumer(item.KeyCopy(nil)[len(s.dbPrefix):], value) {
				break
			}
		}

		return nil
	})
}

func (s *badgerStore) Iterate(prefix kvstore.KeyPrefix, consumerFunc kvstore.IteratorKeyValueConsumerFunc, direction ...kvstore.IterDirection) error {
	return s.iterate(prefix, true, consumerFunc, direction...)
}

func (s *badgerStore) IterateKeys(prefix kvstore.KeyPrefix, consumerFunc kvstore.IteratorKeyConsumerFunc, direction ...kvstore.IterDirection) error {
	return s.iterate(prefix, false, func(key kvstore.Key, _ kvstore.Value) bool {
		return consumerFunc(key)
	}, direction...)
}

func (s *badgerStore) Clear() error {
	return s.DeletePrefix(kvstore.EmptyPrefix)
}

func (s *badgerStore) Get(key kvstore.Key) (kvstore.Value, error) {
	if s.closed.Load() {
		return nil, kvstore.ErrStoreClosed
	}

	var value []byte
	err := s.instance.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kvstore.ConcatBytes(s.dbPrefix, key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)

		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, kvstore.ErrKeyNotFound
	}

	return value, err
}

func (s *badgerStore) Set(key kvstore.Key, value kvstore.Value) error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	return s.instance.Update(func(txn *badger.Txn) error {
		return txn.Set(kvstore.ConcatBytes(s.dbPrefix, key), value)
	})
}

func (s *badgerStore) Has(key kvstore.Key) (bool, error) {
	if s.closed.Load() {
		return false, kvstore.ErrStoreClosed
	}

	err := s.instance.View(func(txn *badger.Txn) error {
		_, err := txn.Get(kvstore.ConcatBytes(s.dbPrefix, key))

		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func (s *badgerStore) Delete(key kvstore.Key) error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	return s.instance.Update(func(txn *badger.Txn) error {
		return txn.Delete(kvstore.ConcatBytes(s.dbPrefix, key))
	})
}

func (s *badgerStore) DeletePrefix(prefix kvstore.KeyPrefix) error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	var keys [][]byte
	if err := s.IterateKeys(prefix, func(key kvstore.Key) bool {
		keys = append(keys, kvstore.ConcatBytes(s.dbPrefix, key))

		return true
	}); err != nil {
		return err
	}

	writeBatch := s.instance.NewWriteBatch()
	for _, key := range keys {
		if err := writeBatch.Delete(key); err != nil {
			writeBatch.Cancel()

			return errors.Wrap(err, "failed to delete key")
		}
	}

	return writeBatch.Flush()
}

func (s *badgerStore) Batched() (kvstore.BatchedMutations, error) {
	if s.closed.Load() {
		return nil, kvstore.ErrStoreClosed
	}

	return kvstore.NewBatchedMutations(s.dbPrefix, func(setOperations map[string]kvstore.Value, deleteOperations map[string]struct{}) error {
		writeBatch := s.instance.NewWriteBatch()
		for key, value := range setOperations {
			if err := writeBatch.Set([]byte(key), value); err != nil {
				writeBatch.Cancel()

				return errors.Wrap(err, "failed to set key")
			}
		}
		for key := range deleteOperations {
			if err := writeBatch.Delete([]byte(key)); err != nil {
				writeBatch.Cancel()

				return errors.Wrap(err, "failed to delete key")
			}
		}

		return writeBatch.Flush()
	}, s.closed.Load), nil
}

func (s *badgerStore) Flush() error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	return s.instance.Sync()
}

func (s *badgerStore) Close() error {
	if s.closed.Swap(true) {
		// was already closed
		return nil
	}

	return s.instance.Close()
}

var _ kvstore.KVStore = &badgerStore{}
