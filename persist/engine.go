package persist

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iotaledger/entitycache/logger"
)

var (
	// ErrSchedulerStopped is logged for actions handed to a scheduler that was shut down.
	ErrSchedulerStopped = errors.New("persist scheduler stopped")
	// ErrDrainFailed is returned by Shutdown if pending actions could not be flushed.
	ErrDrainFailed = errors.New("failed to flush pending persist actions")
)

// engine contains the parts shared by all schedulers: the producer side, the shutdown gate and the execution of
// single actions.
type engine struct {
	*logger.WrappedLogger

	rules   RuleSource
	options *Options
	push    func(action *Action)

	stopped        bool
	stoppedMutex   sync.RWMutex
	shutdownSignal chan struct{}
	loopDone       chan struct{}
	shutdownOnce   sync.Once
}

func newEngine(name string, rules RuleSource, options *Options) *engine {
	return &engine{
		WrappedLogger:  logger.NewWrappedLogger(options.logger.Named(name)),
		rules:          rules,
		options:        options,
		shutdownSignal: make(chan struct{}),
		loopDone:       make(chan struct{}),
	}
}

// HandleSave schedules writing a Transient object.
func (e *engine) HandleSave(object Object, storage StorageAccess) bool {
	return e.accept(ActionSave, object, func() *Action {
		if object.Status() != StatusTransient {
			return nil
		}

		return newAction(ActionSave, object, storage, object.EditVersion(), object.DBVersion())
	})
}

// HandleUpdate records a mutation and schedules an update unless one is pending already.
func (e *engine) HandleUpdate(object Object, storage StorageAccess) bool {
	return e.accept(ActionUpdate, object, func() *Action {
		if object.Status() == StatusDeleted || object.isDeleting() || !object.startUpdate() {
			return nil
		}

		return newAction(ActionUpdate, object, storage, object.increaseEditVersion(), object.DBVersion())
	})
}

// HandleDelete schedules removing a Persisted object.
func (e *engine) HandleDelete(object Object, storage StorageAccess, key string, cache Cache) bool {
	return e.accept(ActionDelete, object, func() *Action {
		if object.Status() != StatusPersisted || !object.startDelete() {
			return nil
		}

		action := newAction(ActionDelete, object, storage, object.increaseEditVersion(), object.DBVersion())
		action.key = key
		action.cache = cache

		return action
	})
}

func (e *engine) accept(kind ActionKind, object Object, create func() *Action) bool {
	e.stoppedMutex.RLock()
	defer e.stoppedMutex.RUnlock()

	if e.stopped {
		e.LogWarnf("%s %s#%s not scheduled: %s", kind, object.EntityType(), object.Key(), ErrSchedulerStopped)

		return false
	}

	action := create()
	if action == nil {
		return false
	}

	e.push(action)
	e.options.metrics.Submitted.WithLabelValues(kind.String()).Inc()
	e.options.metrics.Pending.Inc()

	return true
}

// dequeued marks actions as taken out of the queues.
func (e *engine) dequeued(count int) {
	e.options.metrics.Pending.Sub(float64(count))
}

// stop closes the producer side, waits for the consumer and runs drain exactly once.
func (e *engine) stop(drain func() error) (err error) {
	e.shutdownOnce.Do(func() {
		e.stoppedMutex.Lock()
		e.stopped = true
		e.stoppedMutex.Unlock()

		close(e.shutdownSignal)
		<-e.loopDone

		err = drain()
	})

	return err
}

// execute runs the action against its storage. It returns whether a storage call was made.
func (e *engine) execute(action *Action) (executed bool, err error) {
	// pinned before the update flag is released, the object is not settled until the write returned
	action.object.pin()
	defer action.object.unpin()

	switch action.kind {
	case ActionSave:
		executed, err = e.executeSave(action)
	case ActionUpdate:
		executed, err = e.executeUpdate(action)
	case ActionDelete:
		executed, err = e.executeDelete(action)
	default:
		panic(fmt.Sprintf("unknown action kind %d", action.kind))
	}

	e.account(action, executed, err)

	return executed, err
}

func (e *engine) executeSave(action *Action) (bool, error) {
	object := action.object
	if object.Status() != StatusTransient {
		return false, nil
	}

	if err := e.call(action, func(record Record) error {
		ctx, cancel := e.options.storageContext()
		defer cancel()

		return action.storage.Save(ctx, object.EntityType(), record)
	}, nil); err != nil {
		return true, err
	}
	e.completeSave(action)

	return true, nil
}

func (e *engine) executeUpdate(action *Action) (bool, error) {
	object := action.object
	object.finishUpdate()

	previous, claimed := e.claim(action)
	if !claimed {
		return false, nil
	}

	fields := e.drainFields(object)
	if err := e.call(action, func(record Record) error {
		ctx, cancel := e.options.storageContext()
		defer cancel()

		return action.storage.Update(ctx, object.EntityType(), record)
	}, fields); err != nil {
		e.revert(action, previous, fields)

		return true, err
	}

	return true, nil
}

func (e *engine) executeDelete(action *Action) (bool, error) {
	previous, claimed := e.claim(action)
	if !claimed {
		action.object.finishDelete()

		return false, nil
	}

	if err := e.call(action, func(record Record) error {
		ctx, cancel := e.options.storageContext()
		defer cancel()

		return action.storage.Delete(ctx, action.object.EntityType(), record)
	}, nil); err != nil {
		e.revert(action, previous, nil)

		return true, err
	}
	e.completeDelete(action)

	return true, nil
}

// claim moves the db version of the object to the submitted edit version. It fails for stale actions.
func (e *engine) claim(action *Action) (previous int64, claimed bool) {
	return e.claimAs(action, action.object.Status())
}

// claimAs is claim with the status the object will have once the actions ahead of it are written.
func (e *engine) claimAs(action *Action, status Status) (previous int64, claimed bool) {
	object := action.object
	if object.EditVersion() > action.editVersion || status != StatusPersisted {
		return 0, false
	}
	if action.kind == ActionUpdate && object.isDeleting() {
		return 0, false
	}

	if previous, claimed = object.advanceDBVersion(action.dbVersion, action.editVersion); !claimed {
		return 0, false
	}

	// a newer action overtook us after the CAS
	if object.DBVersion() > action.editVersion {
		return 0, false
	}

	return previous, true
}

// revert undoes the effects of claim after a failed storage call.
func (e *engine) revert(action *Action, previous int64, fields []string) {
	action.object.rollbackDBVersion(action.editVersion, previous)
	action.object.restoreModifiedFields(fields)

	if action.kind == ActionDelete {
		action.object.finishDelete()
	}
}

func (e *engine) completeSave(action *Action) {
	action.object.compareAndSwapStatus(StatusTransient, StatusPersisted)
}

func (e *engine) completeDelete(action *Action) {
	object := action.object
	if !object.compareAndSwapStatus(StatusPersisted, StatusDeleted) {
		return
	}

	if action.cache != nil {
		action.cache.Put(action.key, nil)
	}
	if e.options.lockEvicter != nil {
		e.options.lockEvicter.Evict(object.EntityType(), action.key)
	}
}

// discard releases the flags an action holds without executing it.
func (e *engine) discard(action *Action) {
	switch action.kind {
	case ActionUpdate:
		action.object.finishUpdate()
	case ActionDelete:
		action.object.finishDelete()
	}

	e.account(action, false, nil)
}

func (e *engine) drainFields(object Object) []string {
	fields := object.drainModifiedFields()

	dynamic, ok := e.rules.(DynamicUpdateRule)
	if !ok || !dynamic.DynamicUpdate(object.EntityType()) {
		return nil
	}

	return fields
}

// call runs a storage call and turns panics into errors.
func (e *engine) call(action *Action, storageCall func(record Record) error, fields []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("storage panicked: %s\n%s", fmt.Sprint(r), debug.Stack())
		}
	}()

	if err = storageCall(action.record(fields)); err != nil {
		return errors.Wrapf(err, "failed to %s %s#%s", action.kind, action.object.EntityType(), action.object.Key())
	}

	return nil
}

func (e *engine) account(action *Action, executed bool, err error) {
	metrics := e.options.metrics

	switch {
	case err != nil:
		metrics.Failed.WithLabelValues(action.kind.String()).Inc()
		e.logFailure(action, err)
	case executed:
		metrics.Executed.WithLabelValues(action.kind.String()).Inc()
	default:
		metrics.Discarded.WithLabelValues(action.kind.String()).Inc()
		e.LogDebugw("discarded stale action", "action", action.String())
	}
}

func (e *engine) logFailure(action *Action, err error) {
	// a newer action carries the current state, rendering this one would be misleading
	if !action.Valid() {
		e.LogErrorw("persist action failed", "action", action.String(), "error", err)

		return
	}

	e.LogErrorw("persist action failed", "action", action.String(), "error", err, "entity", e.options.renderer.Render(action.object.EntityValue()))
}

func (e *engine) logUnpersisted(action *Action) bool {
	if !action.Valid() {
		return false
	}

	e.LogWarnw("possibly unpersisted entity",
		"action", action.String(),
		"age", time.Since(action.createdAt).Truncate(time.Millisecond),
		"entity", e.options.renderer.Render(action.object.EntityValue()),
	)

	return true
}
