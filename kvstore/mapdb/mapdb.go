// Package mapdb provides an in-memory implementation of kvstore.KVStore backed by an ordered tree.
// It is a lightweight drop-in replacement for tests and single-process setups.
package mapdb

import (
	"bytes"
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"
	"go.uber.org/atomic"

	"github.com/iotaledger/entitycache/kvstore"
)

// sortedMap is the tree shared by all realms of a mapDB.
type sortedMap struct {
	tree  *redblacktree.Tree
	mutex sync.RWMutex
}

// mapDB is a simple implementation of KVStore using a red-black tree.
type mapDB struct {
	m      *sortedMap
	realm  []byte
	closed *atomic.Bool
}

// NewMapDB creates a kvstore.KVStore implementation purely based on memory.
func NewMapDB() kvstore.KVStore {
	return &mapDB{
		m:      &sortedMap{tree: redblacktree.NewWithStringComparator()},
		closed: atomic.NewBool(false),
	}
}

func (s *mapDB) WithRealm(realm kvstore.Realm) (kvstore.KVStore, error) {
	if s.closed.Load() {
		return nil, kvstore.ErrStoreClosed
	}

	return &mapDB{
		m:      s.m,
		realm:  kvstore.CopyBytes(realm),
		closed: s.closed,
	}, nil
}

func (s *mapDB) Realm() kvstore.Realm {
	return kvstore.CopyBytes(s.realm)
}

func (s *mapDB) Iterate(prefix kvstore.KeyPrefix, consumerFunc kvstore.IteratorKeyValueConsumerFunc, direction ...kvstore.IterDirection) error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	for _, entry := range s.collect(prefix, direction...) {
		if !consumerFunc(entry.key, entry.value) {
			break
		}
	}

	return nil
}

func (s *mapDB) IterateKeys(prefix kvstore.KeyPrefix, consumerFunc kvstore.IteratorKeyConsumerFunc, direction ...kvstore.IterDirection) error {
	return s.Iterate(prefix, func(key kvstore.Key, _ kvstore.Value) bool {
		return consumerFunc(key)
	}, direction...)
}

func (s *mapDB) Clear() error {
	return s.DeletePrefix(kvstore.EmptyPrefix)
}

func (s *mapDB) Get(key kvstore.Key) (kvstore.Value, error) {
	if s.closed.Load() {
		return nil, kvstore.ErrStoreClosed
	}

	s.m.mutex.RLock()
	defer s.m.mutex.RUnlock()

	value, exists := s.m.tree.Get(string(kvstore.ConcatBytes(s.realm, key)))
	if !exists {
		return nil, kvstore.ErrKeyNotFound
	}

	return kvstore.CopyBytes(value.([]byte)), nil
}

func (s *mapDB) Set(key kvstore.Key, value kvstore.Value) error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	s.m.mutex.Lock()
	defer s.m.mutex.Unlock()

	s.m.tree.Put(string(kvstore.ConcatBytes(s.realm, key)), kvstore.CopyBytes(value))

	return nil
}

func (s *mapDB) Has(key kvstore.Key) (bool, error) {
	if s.closed.Load() {
		return false, kvstore.ErrStoreClosed
	}

	s.m.mutex.RLock()
	defer s.m.mutex.RUnlock()

	_, exists := s.m.tree.Get(string(kvstore.ConcatBytes(s.realm, key)))

	return exists, nil
}

func (s *mapDB) Delete(key kvstore.Key) error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	s.m.mutex.Lock()
	defer s.m.mutex.Unlock()

	s.m.tree.Remove(string(kvstore.ConcatBytes(s.realm, key)))

	return nil
}

func (s *mapDB) DeletePrefix(prefix kvstore.KeyPrefix) error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	s.m.mutex.Lock()
	defer s.m.mutex.Unlock()

	for _, key := range s.keysWithPrefix(kvstore.ConcatBytes(s.realm, prefix)) {
		s.m.tree.Remove(key)
	}

	return nil
}

func (s *mapDB) Batched() (kvstore.BatchedMutations, error) {
	if s.closed.Load() {
		return nil, kvstore.ErrStoreClosed
	}

	return kvstore.NewBatchedMutations(s.realm, func(setOperations map[string]kvstore.Value, deleteOperations map[string]struct{}) error {
		s.m.mutex.Lock()
		defer s.m.mutex.Unlock()

		for key, value := range setOperations {
			s.m.tree.Put(key, value)
		}
		for key := range deleteOperations {
			s.m.tree.Remove(key)
		}

		return nil
	}, s.closed.Load), nil
}

func (s *mapDB) Flush() error {
	if s.closed.Load() {
		return kvstore.ErrStoreClosed
	}

	return nil
}

func (s *mapDB) Close() error {
	s.closed.Store(true)

	return nil
}

type entry struct {
	key   kvstore.Key
	value kvstore.Value
}

// collect copies the matching entries, so that consumers may write to the store while iterating.
func (s *mapDB) collect(prefix kvstore.KeyPrefix, direction ...kvstore.IterDirection) []entry {
	fullPrefix := kvstore.ConcatBytes(s.realm, prefix)

	s.m.mutex.RLock()
	defer s.m.mutex.RUnlock()

	var entries []entry
	s.walk(fullPrefix, func(key string, value []byte) {
		entries = append(entries, entry{
			key:   []byte(key)[len(s.realm):],
			value: kvstore.CopyBytes(value),
		})
	})

	if kvstore.GetIterDirection(direction...) == kvstore.IterDirectionBackward {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	return entries
}

func (s *mapDB) keysWithPrefix(fullPrefix []byte) []string {
	var keys []string
	s.walk(fullPrefix, func(key string, _ []byte) {
		keys = append(keys, key)
	})

	return keys
}

// walk visits the keys with the given prefix in ascending order, starting at the first key >= prefix.
func (s *mapDB) walk(fullPrefix []byte, visit func(key string, value []byte)) {
	start, found := s.m.tree.Ceiling(string(fullPrefix))
	if !found {
		return
	}

	it := s.m.tree.IteratorAt(start)
	for {
		key := it.Key().(string)
		if !bytes.HasPrefix([]byte(key), fullPrefix) {
			return
		}
		visit(key, it.Value().([]byte))

		if !it.Next() {
			return
		}
	}
}
