package persist

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

var errStorage = errors.New("storage unavailable")

type testEntity struct {
	mutex sync.RWMutex
	Name  string
	Value int
}

func (e *testEntity) set(value int) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.Value = value
}

func (e *testEntity) value() int {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.Value
}

func newTestObject(key string, value int) *CacheObject[*testEntity] {
	return NewCacheObject("player", key, &testEntity{Name: key, Value: value})
}

type storageCall struct {
	kind       ActionKind
	entityType string
	key        string
	value      int
	fields     []string
	bulk       int
}

type testStorage struct {
	mutex sync.Mutex
	calls []storageCall
	// stored holds the last written value per key
	stored map[string]int

	failures  int
	failTypes map[string]bool
	panics    int
}

func newTestStorage() *testStorage {
	return &testStorage{
		stored:    make(map[string]int),
		failTypes: make(map[string]bool),
	}
}

func (s *testStorage) Save(_ context.Context, entityType string, record Record) error {
	return s.write(ActionSave, entityType, 0, record)
}

func (s *testStorage) Update(_ context.Context, entityType string, record Record) error {
	return s.write(ActionUpdate, entityType, 0, record)
}

func (s *testStorage) Delete(_ context.Context, entityType string, record Record) error {
	return s.write(ActionDelete, entityType, 0, record)
}

func (s *testStorage) write(kind ActionKind, entityType string, bulk int, record Record) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.panics > 0 {
		s.panics--
		panic("storage exploded")
	}

	value := record.Entity.(*testEntity).value()
	s.calls = append(s.calls, storageCall{kind: kind, entityType: entityType, key: record.Key, value: value, fields: record.ModifiedFields, bulk: bulk})

	if s.failTypes[entityType] {
		return errStorage
	}
	if s.failures > 0 {
		s.failures--

		return errStorage
	}

	if kind == ActionDelete {
		delete(s.stored, entityType+"#"+record.Key)
	} else {
		s.stored[entityType+"#"+record.Key] = value
	}

	return nil
}

func (s *testStorage) setFailures(count int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.failures = count
}

func (s *testStorage) failType(entityType string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.failTypes[entityType] = true
}

func (s *testStorage) setPanics(count int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.panics = count
}

func (s *testStorage) recorded() []storageCall {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return append([]storageCall(nil), s.calls...)
}

func (s *testStorage) count(kind ActionKind) int {
	count := 0
	for _, call := range s.recorded() {
		if call.kind == kind {
			count++
		}
	}

	return count
}

func (s *testStorage) storedValue(entityType, key string) (int, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	value, exists := s.stored[entityType+"#"+key]

	return value, exists
}

// testBulkStorage additionally implements BatchStorageAccess.
type testBulkStorage struct {
	*testStorage
}

func (s *testBulkStorage) SaveAll(_ context.Context, entityType string, records []Record) error {
	return s.writeAll(ActionSave, entityType, records)
}

func (s *testBulkStorage) UpdateAll(_ context.Context, entityType string, records []Record) error {
	return s.writeAll(ActionUpdate, entityType, records)
}

func (s *testBulkStorage) DeleteAll(_ context.Context, entityType string, records []Record) error {
	return s.writeAll(ActionDelete, entityType, records)
}

func (s *testBulkStorage) writeAll(kind ActionKind, entityType string, records []Record) error {
	var err error
	for _, record := range records {
		err = errors.CombineErrors(err, s.write(kind, entityType, len(records), record))
	}

	return err
}

type testCache struct {
	mutex   sync.Mutex
	objects map[string]Object
}

func newTestCache() *testCache {
	return &testCache{objects: make(map[string]Object)}
}

func (c *testCache) Get(key string) (Object, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	object, exists := c.objects[key]

	return object, exists
}

func (c *testCache) Put(key string, object Object) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.objects[key] = object
}

type testEvicter struct {
	mutex   sync.Mutex
	evicted []string
}

func (e *testEvicter) Evict(entityType, key string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.evicted = append(e.evicted, entityType+"#"+key)
}

func (e *testEvicter) all() []string {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return append([]string(nil), e.evicted...)
}

// fastOptions keep the loops of the tests responsive.
func fastOptions(opts ...Option) []Option {
	return append([]Option{
		WithCheckInterval(5 * time.Millisecond),
		WithDrainPolicy(3, 10*time.Millisecond),
	}, opts...)
}
