package persist

import (
	"fmt"
	"time"
)

// ActionKind is the kind of storage call an Action results in.
type ActionKind uint8

const (
	// ActionSave writes a new entity.
	ActionSave ActionKind = iota
	// ActionUpdate rewrites an existing entity.
	ActionUpdate
	// ActionDelete removes an entity.
	ActionDelete
)

// String returns a human-readable version of the ActionKind.
func (k ActionKind) String() string {
	switch k {
	case ActionSave:
		return "save"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Action is a pending persistence operation for one object.
type Action struct {
	kind    ActionKind
	object  Object
	storage StorageAccess

	// only set for deletes
	key   string
	cache Cache

	editVersion int64
	dbVersion   int64
	createdAt   time.Time
}

func newAction(kind ActionKind, object Object, storage StorageAccess, editVersion, dbVersion int64) *Action {
	return &Action{
		kind:        kind,
		object:      object,
		storage:     storage,
		editVersion: editVersion,
		dbVersion:   dbVersion,
		createdAt:   time.Now(),
	}
}

// Kind returns the kind of the action.
func (a *Action) Kind() ActionKind {
	return a.kind
}

// Object returns the object the action persists.
func (a *Action) Object() Object {
	return a.object
}

// EditVersion returns the edit version the action was submitted for.
func (a *Action) EditVersion() int64 {
	return a.editVersion
}

// CreatedAt returns the submission time.
func (a *Action) CreatedAt() time.Time {
	return a.createdAt
}

// Valid returns whether executing the action would still result in a storage call.
func (a *Action) Valid() bool {
	switch a.kind {
	case ActionSave:
		return a.object.Status() == StatusTransient
	case ActionUpdate:
		return a.object.Status() == StatusPersisted &&
			!a.object.isDeleting() &&
			a.object.EditVersion() == a.editVersion &&
			a.object.DBVersion() < a.editVersion
	case ActionDelete:
		return a.object.Status() == StatusPersisted &&
			a.object.EditVersion() == a.editVersion &&
			a.object.DBVersion() < a.editVersion
	default:
		return false
	}
}

// String returns a human-readable version of the Action.
func (a *Action) String() string {
	return fmt.Sprintf("%s %s#%s (editVersion: %d, dbVersion: %d)", a.kind, a.object.EntityType(), a.object.Key(), a.editVersion, a.dbVersion)
}

func (a *Action) record(modifiedFields []string) Record {
	return Record{
		Key:            a.object.Key(),
		Entity:         a.object.EntityValue(),
		ModifiedFields: modifiedFields,
	}
}
