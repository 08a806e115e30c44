package kvstore

import (
	"sync"
)

// CommitFunc writes the collected operations of a BatchedMutations. Keys already carry the realm.
type CommitFunc func(setOperations map[string]Value, deleteOperations map[string]struct{}) error

// batchedMutations collects mutations in memory until they are committed.
type batchedMutations struct {
	realm            Realm
	commit           CommitFunc
	closed           func() bool
	setOperations    map[string]Value
	deleteOperations map[string]struct{}
	operationsMutex  sync.Mutex
}

// NewBatchedMutations creates a BatchedMutations that hands its operations to commit.
// closed reports whether the underlying store was closed in the meantime.
func NewBatchedMutations(realm Realm, commit CommitFunc, closed func() bool) BatchedMutations {
	return &batchedMutations{
		realm:            realm,
		commit:           commit,
		closed:           closed,
		setOperations:    make(map[string]Value),
		deleteOperations: make(map[string]struct{}),
	}
}

func (b *batchedMutations) Set(key Key, value Value) error {
	stringKey := string(ConcatBytes(b.realm, key))

	b.operationsMutex.Lock()
	defer b.operationsMutex.Unlock()

	delete(b.deleteOperations, stringKey)
	b.setOperations[stringKey] = CopyBytes(value)

	return nil
}

func (b *batchedMutations) Delete(key Key) error {
	stringKey := string(ConcatBytes(b.realm, key))

	b.operationsMutex.Lock()
	defer b.operationsMutex.Unlock()

	delete(b.setOperations, stringKey)
	b.deleteOperations[stringKey] = struct{}{}

	return nil
}

func (b *batchedMutations) Cancel() {
	b.operationsMutex.Lock()
	defer b.operationsMutex.Unlock()

	b.setOperations = make(map[string]Value)
	b.deleteOperations = make(map[string]struct{})
}

func (b *batchedMutations) Commit() error {
	if b.closed() {
		return ErrStoreClosed
	}

	b.operationsMutex.Lock()
	defer b.operationsMutex.Unlock()

	return b.commit(b.setOperations, b.deleteOperations)
}
