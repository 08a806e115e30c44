package dbcache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/iotaledger/entitycache/cache"
	"github.com/iotaledger/entitycache/kvstore/mapdb"
	"github.com/iotaledger/entitycache/objectlock"
	"github.com/iotaledger/entitycache/persist"
	"github.com/iotaledger/entitycache/storage/kvstorage"
)

type player struct {
	Name  string
	Level int
	Gold  int64
}

type testEnv struct {
	storage   *kvstorage.Storage
	locks     *objectlock.Table
	scheduler persist.Scheduler
	service   *Service[player]
}

func newTestEnv(t *testing.T, opts ...Option[player]) *testEnv {
	env := &testEnv{
		storage: kvstorage.New(mapdb.NewMapDB()),
		locks:   objectlock.New(),
	}
	env.scheduler = persist.NewDelayedScheduler(
		persist.NewStaticRules(20*time.Millisecond, "player"),
		persist.WithCheckInterval(5*time.Millisecond),
		persist.WithDrainPolicy(3, 10*time.Millisecond),
		persist.WithLockEvicter(env.locks),
	)
	env.service = New[player]("player", cache.NewMap(), env.locks, env.scheduler, env.storage, opts...)

	t.Cleanup(func() {
		_ = env.scheduler.Shutdown()
	})

	return env
}

func (e *testEnv) stored(key string) (*player, error) {
	loaded := &player{}
	if err := e.storage.Load("player", key, loaded); err != nil {
		return nil, err
	}

	return loaded, nil
}

func (e *testEnv) loader(calls *atomic.Int32) Loader[player] {
	return func(_ context.Context, key string) (*player, error) {
		if calls != nil {
			calls.Inc()
		}

		loaded, err := e.stored(key)
		if errors.Is(err, kvstorage.ErrRecordNotFound) {
			return nil, nil
		}

		return loaded, err
	}
}

func TestService_CreateGet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	object, err := env.service.Create("1", &player{Name: "alice", Level: 1})
	require.NoError(t, err)
	assert.Equal(t, persist.StatusTransient, object.Status())

	_, err = env.service.Create("1", &player{Name: "bob"})
	assert.True(t, errors.Is(err, ErrEntityExists))

	got, err := env.service.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, player{Name: "alice", Level: 1}, got)

	// the returned value is a copy
	got.Level = 99
	again, err := env.service.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Level)

	require.Eventually(t, func() bool {
		return object.Status() == persist.StatusPersisted
	}, 2*time.Second, 5*time.Millisecond)

	stored, err := env.stored("1")
	require.NoError(t, err)
	assert.Equal(t, &player{Name: "alice", Level: 1}, stored)

	_, err = env.service.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrEntityNotFound))
}

func TestService_UpdatePersists(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.service.Create("1", &player{Name: "alice"})
	require.NoError(t, err)

	require.NoError(t, env.service.Update(ctx, "1", func(p *player) []string {
		p.Level = 5

		return []string{"Level"}
	}))

	require.Eventually(t, func() bool {
		stored, err := env.stored("1")

		return err == nil && stored.Level == 5
	}, 2*time.Second, 5*time.Millisecond)

	err = env.service.Update(ctx, "missing", func(p *player) []string { return nil })
	assert.True(t, errors.Is(err, ErrEntityNotFound))
}

func TestService_ConcurrentUpdatesAreNotLost(t *testing.T) {
	const (
		keys       = 5
		goroutines = 10
		increments = 50
	)

	ctx := context.Background()
	env := newTestEnv(t)

	for i := 0; i < keys; i++ {
		_, err := env.service.Create(fmt.Sprint(i), &player{Name: fmt.Sprint(i)})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < keys; i++ {
		for j := 0; j < goroutines; j++ {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()

				for k := 0; k < increments; k++ {
					assert.NoError(t, env.service.Update(ctx, key, func(p *player) []string {
						p.Gold++

						return []string{"Gold"}
					}))
				}
			}(fmt.Sprint(i))
		}
	}
	wg.Wait()

	require.NoError(t, env.scheduler.Shutdown())

	for i := 0; i < keys; i++ {
		got, err := env.service.Get(ctx, fmt.Sprint(i))
		require.NoError(t, err)
		assert.EqualValues(t, goroutines*increments, got.Gold)

		stored, err := env.stored(fmt.Sprint(i))
		require.NoError(t, err)
		assert.EqualValues(t, goroutines*increments, stored.Gold)
	}
}

func TestService_LoaderIsShared(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.storage.Save(ctx, "player", persist.Record{Key: "1", Entity: &player{Name: "alice", Level: 7}}))

	calls := atomic.NewInt32(0)
	load := env.loader(calls)
	env.service = New[player]("player", cache.NewMap(), env.locks, env.scheduler, env.storage, WithLoader[player](func(ctx context.Context, key string) (*player, error) {
		time.Sleep(100 * time.Millisecond)

		return load(ctx, key)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			got, err := env.service.Get(ctx, "1")
			assert.NoError(t, err)
			assert.Equal(t, 7, got.Level)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())

	// loaded entities are Persisted, updates go straight to the storage
	require.NoError(t, env.service.Update(ctx, "1", func(p *player) []string {
		p.Level = 8

		return []string{"Level"}
	}))
	require.Eventually(t, func() bool {
		stored, err := env.stored("1")

		return err == nil && stored.Level == 8
	}, 2*time.Second, 5*time.Millisecond)
}

func TestService_MissingKeysAreTombstoned(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	calls := atomic.NewInt32(0)
	env.service = New[player]("player", cache.NewMap(), env.locks, env.scheduler, env.storage, WithLoader[player](env.loader(calls)))

	for i := 0; i < 3; i++ {
		_, err := env.service.Get(ctx, "ghost")
		assert.True(t, errors.Is(err, ErrEntityNotFound))
	}
	assert.EqualValues(t, 1, calls.Load())

	// a tombstone does not block creating the entity
	_, err := env.service.Create("ghost", &player{Name: "ghost"})
	require.NoError(t, err)

	got, err := env.service.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", got.Name)
}

func TestService_EvictionKeepsPendingWrites(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.storage.Save(ctx, "player", persist.Record{Key: "a", Entity: &player{Name: "a", Gold: 1}}))
	require.NoError(t, env.storage.Save(ctx, "player", persist.Record{Key: "b", Entity: &player{Name: "b"}}))

	store, err := cache.NewLRU(1, func(key string, _ persist.Object) {
		env.locks.Evict("player", key)
	})
	require.NoError(t, err)
	env.service = New[player]("player", store, env.locks, env.scheduler, env.storage, WithLoader[player](env.loader(nil)))

	addGold := func(amount int64) Mutation[player] {
		return func(p *player) []string {
			p.Gold += amount

			return []string{"Gold"}
		}
	}

	require.NoError(t, env.service.Update(ctx, "a", addGold(1)))
	// loading b pushes a out of the bound while its update is pending
	_, err = env.service.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Parked())

	require.NoError(t, env.service.Update(ctx, "a", addGold(10)))
	require.NoError(t, env.scheduler.Shutdown())

	stored, err := env.stored("a")
	require.NoError(t, err)
	assert.EqualValues(t, 12, stored.Gold)
}

func TestService_ConcurrentUpdatesWithEvictions(t *testing.T) {
	const (
		keys       = 8
		goroutines = 4
		increments = 50
	)

	ctx := context.Background()
	env := newTestEnv(t)
	for i := 0; i < keys; i++ {
		require.NoError(t, env.storage.Save(ctx, "player", persist.Record{Key: fmt.Sprint(i), Entity: &player{Name: fmt.Sprint(i)}}))
	}

	store, err := cache.NewLRU(2, func(key string, _ persist.Object) {
		env.locks.Evict("player", key)
	})
	require.NoError(t, err)
	env.service = New[player]("player", store, env.locks, env.scheduler, env.storage, WithLoader[player](env.loader(nil)))

	var wg sync.WaitGroup
	for i := 0; i < keys; i++ {
		for j := 0; j < goroutines; j++ {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()

				for k := 0; k < increments; k++ {
					assert.NoError(t, env.service.Update(ctx, key, func(p *player) []string {
						p.Gold++

						return []string{"Gold"}
					}))
				}
			}(fmt.Sprint(i))
		}
	}
	wg.Wait()

	require.NoError(t, env.scheduler.Shutdown())

	for i := 0; i < keys; i++ {
		stored, err := env.stored(fmt.Sprint(i))
		require.NoError(t, err)
		assert.EqualValues(t, goroutines*increments, stored.Gold, "key %d", i)
	}
}

func TestService_LoaderError(t *testing.T) {
	errBroken := errors.New("broken")

	env := newTestEnv(t, WithLoader[player](func(context.Context, string) (*player, error) {
		return nil, errBroken
	}))

	_, err := env.service.Get(context.Background(), "1")
	assert.True(t, errors.Is(err, errBroken))
	assert.False(t, errors.Is(err, ErrEntityNotFound))
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	object, err := env.service.Create("1", &player{Name: "alice"})
	require.NoError(t, err)

	err = env.service.Delete(ctx, "1")
	assert.True(t, errors.Is(err, ErrEntityNotPersisted))

	require.Eventually(t, func() bool {
		return object.Status() == persist.StatusPersisted
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, env.service.Delete(ctx, "1"))
	// a second delete while the first one is in flight is accepted
	require.NoError(t, env.service.Delete(ctx, "1"))

	err = env.service.Update(ctx, "1", func(p *player) []string { return nil })
	assert.True(t, errors.Is(err, ErrEntityDeleting))

	require.Eventually(t, func() bool {
		_, err := env.service.Get(ctx, "1")

		return errors.Is(err, ErrEntityNotFound)
	}, 2*time.Second, 5*time.Millisecond)

	_, err = env.stored("1")
	assert.True(t, errors.Is(err, kvstorage.ErrRecordNotFound))
	assert.Equal(t, persist.StatusDeleted, object.Status())

	require.Eventually(t, func() bool {
		return env.locks.Count("player") == 0
	}, 2*time.Second, 5*time.Millisecond)

	err = env.service.Delete(ctx, "1")
	assert.True(t, errors.Is(err, ErrEntityNotFound))
}

func TestService_DeleteAfterShutdown(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.service.Create("1", &player{Name: "alice"})
	require.NoError(t, err)
	require.NoError(t, env.scheduler.Shutdown())

	err = env.service.Delete(ctx, "1")
	assert.True(t, errors.Is(err, persist.ErrSchedulerStopped))
}

func TestService_Info(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		_, err := env.service.Create(fmt.Sprint(i), &player{})
		require.NoError(t, err)
	}

	info := env.service.Info()
	assert.Equal(t, "player", info.EntityType)
	assert.Equal(t, 3, info.Cached)
	assert.Equal(t, 3, info.Locks)
	assert.Contains(t, info.String(), "cached: 3")

	require.NoError(t, env.scheduler.Shutdown())
	assert.Zero(t, env.service.Info().Pending)
}

func TestSnapshotStorage(t *testing.T) {
	locks := objectlock.New()

	single := newSnapshotStorage[player](&recordingStorage{}, locks)
	_, isBatch := single.(persist.BatchStorageAccess)
	assert.False(t, isBatch)

	batched := newSnapshotStorage[player](kvstorage.New(mapdb.NewMapDB()), locks)
	_, isBatch = batched.(persist.BatchStorageAccess)
	assert.True(t, isBatch)

	recorder := &recordingStorage{}
	storage := newSnapshotStorage[player](recorder, locks)

	original := &player{Name: "alice"}
	require.NoError(t, storage.Save(context.Background(), "player", persist.Record{Key: "1", Entity: original}))
	require.Len(t, recorder.records, 1)
	assert.NotSame(t, original, recorder.records[0].Entity)
	assert.Equal(t, original, recorder.records[0].Entity)
}

type recordingStorage struct {
	records []persist.Record
}

func (s *recordingStorage) Save(_ context.Context, _ string, record persist.Record) error {
	s.records = append(s.records, record)

	return nil
}

func (s *recordingStorage) Update(_ context.Context, _ string, record persist.Record) error {
	s.records = append(s.records, record)

	return nil
}

func (s *recordingStorage) Delete(_ context.Context, _ string, record persist.Record) error {
	s.records = append(s.records, record)

	return nil
}
