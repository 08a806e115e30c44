package persist

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheObject_Defaults(t *testing.T) {
	object := newTestObject("1", 1)
	assert.Equal(t, StatusTransient, object.Status())
	assert.Zero(t, object.EditVersion())
	assert.Zero(t, object.DBVersion())
	assert.False(t, object.UpdateProcessing())
	assert.Equal(t, "player", object.EntityType())
	assert.Equal(t, "1", object.Key())
	assert.Equal(t, 1, object.Entity().value())

	loaded := NewPersistedCacheObject("player", "2", &testEntity{})
	assert.Equal(t, StatusPersisted, loaded.Status())
}

func TestCacheObject_AdvanceDBVersion(t *testing.T) {
	object := newTestObject("1", 1)
	object.editVersion.Store(5)

	previous, advanced := object.advanceDBVersion(0, 2)
	require.True(t, advanced)
	assert.EqualValues(t, 0, previous)
	assert.EqualValues(t, 2, object.DBVersion())

	// captured version was overtaken by an older action, the newer target still wins
	previous, advanced = object.advanceDBVersion(0, 4)
	require.True(t, advanced)
	assert.EqualValues(t, 2, previous)
	assert.EqualValues(t, 4, object.DBVersion())

	// never moves backwards
	_, advanced = object.advanceDBVersion(2, 3)
	assert.False(t, advanced)
	assert.EqualValues(t, 4, object.DBVersion())

	object.rollbackDBVersion(4, 2)
	assert.EqualValues(t, 2, object.DBVersion())

	// a rollback of an overtaken write does nothing
	object.dbVersion.Store(5)
	object.rollbackDBVersion(4, 2)
	assert.EqualValues(t, 5, object.DBVersion())
}

func TestCacheObject_ConcurrentAdvanceIsMonotonic(t *testing.T) {
	object := newTestObject("1", 1)
	object.editVersion.Store(100)

	var wg sync.WaitGroup
	for target := int64(1); target <= 100; target++ {
		wg.Add(1)
		go func(target int64) {
			defer wg.Done()

			object.advanceDBVersion(0, target)
		}(target)
	}
	wg.Wait()

	assert.EqualValues(t, 100, object.DBVersion())
}

func TestCacheObject_ModifiedFields(t *testing.T) {
	object := newTestObject("1", 1)
	assert.Empty(t, object.ModifiedFields())

	object.MarkModified("value", "name", "value")
	object.MarkModified()
	assert.Equal(t, []string{"name", "value"}, object.ModifiedFields())

	drained := object.drainModifiedFields()
	assert.Equal(t, []string{"name", "value"}, drained)
	assert.Empty(t, object.ModifiedFields())

	object.MarkModified("level")
	object.restoreModifiedFields(drained)
	assert.Equal(t, []string{"level", "name", "value"}, object.ModifiedFields())
}

func TestCacheObject_Flags(t *testing.T) {
	object := newTestObject("1", 1)

	require.True(t, object.startUpdate())
	assert.False(t, object.startUpdate())
	assert.True(t, object.UpdateProcessing())
	object.finishUpdate()
	assert.True(t, object.startUpdate())

	require.True(t, object.startDelete())
	assert.False(t, object.startDelete())
	object.finishDelete()
	assert.False(t, object.isDeleting())
}

func TestSettled(t *testing.T) {
	object := newTestObject("1", 1)
	assert.False(t, Settled(object))

	object.compareAndSwapStatus(StatusTransient, StatusPersisted)
	assert.True(t, Settled(object))

	object.Pin()
	assert.False(t, Settled(object))
	object.Unpin()

	require.True(t, object.startUpdate())
	assert.False(t, Settled(object))
	object.finishUpdate()

	// an edit the storage did not see yet
	object.increaseEditVersion()
	assert.False(t, Settled(object))
	_, advanced := object.advanceDBVersion(0, 1)
	require.True(t, advanced)
	assert.True(t, Settled(object))

	require.True(t, object.startDelete())
	assert.False(t, Settled(object))
}

func TestAction_Valid(t *testing.T) {
	storage := newTestStorage()
	object := newTestObject("1", 1)

	save := newAction(ActionSave, object, storage, 0, 0)
	assert.True(t, save.Valid())

	update := newAction(ActionUpdate, object, storage, object.increaseEditVersion(), 0)
	// an update is only valid once the object exists in the storage
	assert.False(t, update.Valid())

	object.compareAndSwapStatus(StatusTransient, StatusPersisted)
	assert.False(t, save.Valid())
	assert.True(t, update.Valid())

	// a newer mutation makes the action stale
	object.increaseEditVersion()
	assert.False(t, update.Valid())

	remove := newAction(ActionDelete, object, storage, object.increaseEditVersion(), 0)
	assert.True(t, remove.Valid())
	object.compareAndSwapStatus(StatusPersisted, StatusDeleted)
	assert.False(t, remove.Valid())

	assert.Contains(t, remove.String(), "delete player#1")
}
