package kvstorage_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotaledger/entitycache/kvstore/mapdb"
	"github.com/iotaledger/entitycache/persist"
	"github.com/iotaledger/entitycache/storage/kvstorage"
)

type player struct {
	Name  string
	Level int
	Gold  int64
}

func TestStorage_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	storage := kvstorage.New(mapdb.NewMapDB())

	require.NoError(t, storage.Save(ctx, "player", persist.Record{Key: "1", Entity: &player{Name: "alice", Level: 3}}))
	require.NoError(t, storage.SaveAll(ctx, "player", []persist.Record{
		{Key: "2", Entity: &player{Name: "bob"}},
		{Key: "3", Entity: &player{Name: "carol"}},
	}))
	require.NoError(t, storage.Save(ctx, "item", persist.Record{Key: "1", Entity: &player{Name: "sword"}}))

	loaded := &player{}
	require.NoError(t, storage.Load("player", "1", loaded))
	assert.Equal(t, &player{Name: "alice", Level: 3}, loaded)

	keys, err := storage.Keys("player")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, keys)

	require.NoError(t, storage.DeleteAll(ctx, "player", []persist.Record{{Key: "2"}, {Key: "3"}}))
	keys, err = storage.Keys("player")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, keys)

	require.NoError(t, storage.Delete(ctx, "player", persist.Record{Key: "1"}))
	err = storage.Load("player", "1", loaded)
	assert.True(t, errors.Is(err, kvstorage.ErrRecordNotFound))

	// other types are untouched
	require.NoError(t, storage.Load("item", "1", loaded))
	assert.Equal(t, "sword", loaded.Name)
}

func TestStorage_DynamicUpdate(t *testing.T) {
	ctx := context.Background()
	storage := kvstorage.New(mapdb.NewMapDB())

	require.NoError(t, storage.Save(ctx, "player", persist.Record{Key: "1", Entity: &player{Name: "alice", Level: 1, Gold: 10}}))

	// only Level is written, the stale Gold value of the record is ignored
	require.NoError(t, storage.Update(ctx, "player", persist.Record{
		Key:            "1",
		Entity:         &player{Name: "alice", Level: 2, Gold: 0},
		ModifiedFields: []string{"Level"},
	}))

	loaded := &player{}
	require.NoError(t, storage.Load("player", "1", loaded))
	assert.Equal(t, &player{Name: "alice", Level: 2, Gold: 10}, loaded)

	// a full update replaces the document
	require.NoError(t, storage.Update(ctx, "player", persist.Record{Key: "1", Entity: &player{Name: "alice", Level: 5}}))
	require.NoError(t, storage.Load("player", "1", loaded))
	assert.Equal(t, &player{Name: "alice", Level: 5}, loaded)

	err := storage.Update(ctx, "player", persist.Record{Key: "missing", Entity: &player{}, ModifiedFields: []string{"Level"}})
	assert.True(t, errors.Is(err, kvstorage.ErrRecordNotFound))
}

func TestStorage_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	storage := kvstorage.New(mapdb.NewMapDB())
	assert.ErrorIs(t, storage.Save(ctx, "player", persist.Record{Key: "1", Entity: &player{}}), context.Canceled)
}
