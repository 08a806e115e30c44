package persist

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"

	"github.com/iotaledger/entitycache/backoff"
	"github.com/iotaledger/entitycache/ds/mpsc"
	"github.com/iotaledger/entitycache/timeutil"
	"github.com/iotaledger/entitycache/workerpool"
)

// BatchScheduler collects the actions of a delay window and writes them as per-type batches.
// Producers push into the active one of two queues. At every flush boundary the consumer flips the active index and
// drains the retired queue, so producers never wait for a flush.
type BatchScheduler struct {
	*engine

	queues [2]*mpsc.Queue[*Action]
	active atomic.Uint32
	pool   *workerpool.Pool
}

// NewBatchScheduler creates a BatchScheduler and starts its consumer.
func NewBatchScheduler(rules RuleSource, opts ...Option) (*BatchScheduler, error) {
	options := newOptions(opts...)

	pool, err := workerpool.New(options.workerCount)
	if err != nil {
		return nil, err
	}

	s := &BatchScheduler{
		engine: newEngine("BatchScheduler", rules, options),
		queues: [2]*mpsc.Queue[*Action]{mpsc.New[*Action](), mpsc.New[*Action]()},
		pool:   pool,
	}
	s.push = func(action *Action) {
		s.queues[s.active.Load()].Push(action)
	}

	go s.run()

	return s, nil
}

// Pending returns the number of actions that were not flushed yet.
func (s *BatchScheduler) Pending() int {
	return s.queues[0].Len() + s.queues[1].Len()
}

// LogUnpersistedEntities logs the entities of all pending valid actions.
func (s *BatchScheduler) LogUnpersistedEntities() int {
	count := 0
	for _, queue := range s.retiredFirst() {
		queue.ForEach(func(action *Action) bool {
			if s.logUnpersisted(action) {
				count++
			}

			return true
		})
	}

	return count
}

// Shutdown stops the consumer and flushes all pending actions. Only the first call does anything.
func (s *BatchScheduler) Shutdown() error {
	defer s.pool.Release()

	return s.stop(s.drain)
}

func (s *BatchScheduler) run() {
	defer close(s.loopDone)

	for {
		// a producer that loaded the active index right before a flip pushes into the retired queue
		if straggling := s.queues[1-s.active.Load()]; straggling.Len() > 0 {
			if !timeutil.Sleep(s.shutdownSignal, s.rules.DelayWait()) {
				return
			}

			s.flush(drainQueue(straggling))

			continue
		}

		if s.queues[s.active.Load()].IsEmpty() {
			if !timeutil.Sleep(s.shutdownSignal, s.options.checkInterval) {
				return
			}

			continue
		}

		retired := s.flip()

		// everything in the retired queue was pushed before the flip, after the delay it is old enough
		if !timeutil.Sleep(s.shutdownSignal, s.rules.DelayWait()) {
			return
		}

		s.flush(drainQueue(retired))
	}
}

// flip switches the active queue and returns the retired one.
func (s *BatchScheduler) flip() *mpsc.Queue[*Action] {
	for {
		current := s.active.Load()
		if s.active.CompareAndSwap(current, 1-current) {
			return s.queues[current]
		}
	}
}

// retiredFirst returns both queues, the older one first.
func (s *BatchScheduler) retiredFirst() []*mpsc.Queue[*Action] {
	active := s.active.Load()

	return []*mpsc.Queue[*Action]{s.queues[1-active], s.queues[active]}
}

// flush writes the actions as per-type batches and returns the actions whose storage call failed.
// Failed actions are rolled back, so they are valid again for another flush.
func (s *BatchScheduler) flush(actions []*Action) (failed []*Action, err error) {
	s.dequeued(len(actions))
	if len(actions) == 0 {
		return nil, nil
	}
	s.options.metrics.Flushes.Inc()

	batches := s.fold(actions)

	tasks := make([]workerpool.Task, len(batches))
	for i, batch := range batches {
		batch := batch
		tasks[i] = workerpool.Task{
			Name: batch.entityType,
			Func: func() error { return s.flushBatch(batch) },
		}
	}

	for i, taskErr := range s.pool.RunAll(tasks) {
		if taskErr == nil {
			continue
		}

		s.LogErrorf("flushing %s failed: %s", batches[i].entityType, taskErr)
		err = errors.CombineErrors(err, taskErr)

		failed = append(failed, batches[i].failed...)
		for _, action := range batches[i].unfinished() {
			batches[i].done(action)

			// the task died before the storage call
			if action.kind != ActionSave {
				s.revert(action, batches[i].previous[action], nil)
			}
			s.account(action, true, taskErr)
			failed = append(failed, action)
		}
	}

	return failed, err
}

// fold groups the still valid actions by entity type. Updates and deletes claim their db version here.
func (s *BatchScheduler) fold(actions []*Action) []*typeBatch {
	batchesByType := make(map[string]*typeBatch)
	batchFor := func(action *Action) *typeBatch {
		entityType := action.object.EntityType()
		batch, exists := batchesByType[entityType]
		if !exists {
			batch = newTypeBatch(entityType, action.storage)
			batchesByType[entityType] = batch
		}

		return batch
	}

	// objects saved by this flush count as Persisted for the updates behind their save
	saving := make(map[Object]struct{})
	for _, action := range actions {
		if action.kind != ActionSave {
			continue
		}

		if action.object.Status() != StatusTransient {
			s.discard(action)

			continue
		}
		saving[action.object] = struct{}{}
		action.object.pin()
		s.addTo(batchFor(action), action, 0)
	}

	for _, action := range actions {
		switch action.kind {
		case ActionUpdate:
			// pinned before the update flag is released, the object stays pinned until the action is done
			action.object.pin()
			action.object.finishUpdate()

			status := action.object.Status()
			if _, saved := saving[action.object]; saved && status == StatusTransient {
				status = StatusPersisted
			}

			previous, claimed := s.claimAs(action, status)
			if !claimed {
				action.object.unpin()
				s.discard(action)

				continue
			}
			s.addTo(batchFor(action), action, previous)

		case ActionDelete:
			action.object.pin()

			previous, claimed := s.claim(action)
			if !claimed {
				action.object.unpin()
				s.discard(action)

				continue
			}
			s.addTo(batchFor(action), action, previous)
		}
	}

	batches := lo.Values(batchesByType)
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].entityType < batches[j].entityType
	})

	return batches
}

// addTo adds a pinned action to the batch, which unpins it once the action is done.
func (s *BatchScheduler) addTo(batch *typeBatch, action *Action, previous int64) {
	if !batch.add(action, previous) {
		action.object.unpin()
		s.account(action, false, nil)
	}
}

func (s *BatchScheduler) flushBatch(batch *typeBatch) error {
	var err error

	saves := lo.Filter(batch.saves, func(action *Action, _ int) bool {
		return action.object.Status() == StatusTransient
	})
	for _, action := range lo.Without(batch.saves, saves...) {
		batch.done(action)
		s.discard(action)
	}
	err = errors.CombineErrors(err, s.persist(batch, ActionSave, saves, nil))

	// an update whose save did not go through stays behind it
	updates := lo.Filter(batch.updates, func(action *Action, _ int) bool {
		return action.object.Status() == StatusPersisted
	})
	for _, action := range lo.Without(batch.updates, updates...) {
		batch.done(action)
		s.revert(action, batch.previous[action], nil)
		batch.failed = append(batch.failed, action)
		s.account(action, false, nil)
	}

	fields := make(map[*Action][]string, len(updates))
	for _, action := range updates {
		fields[action] = s.drainFields(action.object)
	}
	err = errors.CombineErrors(err, s.persist(batch, ActionUpdate, updates, fields))

	deletes := lo.Filter(batch.deletes, func(action *Action, _ int) bool {
		return action.object.Status() == StatusPersisted
	})
	for _, action := range lo.Without(batch.deletes, deletes...) {
		batch.done(action)
		s.revert(action, batch.previous[action], nil)
		s.discard(action)
	}
	err = errors.CombineErrors(err, s.persist(batch, ActionDelete, deletes, nil))

	return err
}

// persist writes the actions of one kind, with a bulk call if the storage supports it.
func (s *BatchScheduler) persist(batch *typeBatch, kind ActionKind, actions []*Action, fields map[*Action][]string) error {
	if len(actions) == 0 {
		return nil
	}

	bulk, isBulk := batch.storage.(BatchStorageAccess)
	if !isBulk {
		var err error
		for _, action := range actions {
			if callErr := s.persistSingle(batch, action, fields[action]); callErr != nil {
				err = errors.CombineErrors(err, callErr)
			}
		}

		return err
	}

	records := lo.Map(actions, func(action *Action, _ int) Record {
		return action.record(fields[action])
	})

	err := s.safeCall(func() error {
		ctx, cancel := s.options.storageContext()
		defer cancel()

		switch kind {
		case ActionSave:
			return bulk.SaveAll(ctx, batch.entityType, records)
		case ActionUpdate:
			return bulk.UpdateAll(ctx, batch.entityType, records)
		default:
			return bulk.DeleteAll(ctx, batch.entityType, records)
		}
	})
	if err != nil {
		err = errors.Wrapf(err, "failed to %s %d entities of %s", kind, len(actions), batch.entityType)
	}

	for _, action := range actions {
		s.finish(batch, action, err, fields[action])
	}

	return err
}

func (s *BatchScheduler) persistSingle(batch *typeBatch, action *Action, fields []string) error {
	err := s.call(action, func(record Record) error {
		ctx, cancel := s.options.storageContext()
		defer cancel()

		switch action.kind {
		case ActionSave:
			return action.storage.Save(ctx, batch.entityType, record)
		case ActionUpdate:
			return action.storage.Update(ctx, batch.entityType, record)
		default:
			return action.storage.Delete(ctx, batch.entityType, record)
		}
	}, fields)
	s.finish(batch, action, err, fields)

	return err
}

// finish applies the outcome of a storage call to the action.
func (s *BatchScheduler) finish(batch *typeBatch, action *Action, err error, fields []string) {
	batch.done(action)

	if err != nil {
		if action.kind != ActionSave {
			s.revert(action, batch.previous[action], fields)
		}
		batch.failed = append(batch.failed, action)
		s.account(action, true, err)

		return
	}

	switch action.kind {
	case ActionSave:
		s.completeSave(action)
	case ActionDelete:
		s.completeDelete(action)
	}
	s.account(action, true, nil)
}

func (s *BatchScheduler) safeCall(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("storage panicked: %v", r)
		}
	}()

	return f()
}

func (s *BatchScheduler) drain() error {
	var pending []*Action
	for _, queue := range s.retiredFirst() {
		pending = append(pending, drainQueue(queue)...)
	}
	if len(pending) == 0 {
		return nil
	}
	s.LogInfof("flushing %d pending actions", len(pending))

	attempt := 0
	if err := backoff.Retry(backoff.MaxRetries(backoff.ConstantBackOff(s.options.drainBackoff), s.options.drainAttempts-1), func() error {
		attempt++

		var err error
		if pending, err = s.flush(pending); err != nil {
			// retried actions are counted as pending again
			s.options.metrics.Pending.Add(float64(len(pending)))
			s.LogWarnf("flushing pending actions failed (attempt %d/%d), %d left: %s", attempt, s.options.drainAttempts, len(pending), err)
		}

		return err
	}); err != nil {
		s.dequeued(len(pending))
		for _, action := range pending {
			s.logUnpersisted(action)
		}

		return errors.Mark(errors.Wrapf(err, "%d actions left", len(pending)), ErrDrainFailed)
	}

	return nil
}

func drainQueue(queue *mpsc.Queue[*Action]) []*Action {
	actions := make([]*Action, 0, queue.Len())
	for action, ok := queue.Pop(); ok; action, ok = queue.Pop() {
		actions = append(actions, action)
	}

	return actions
}

// typeBatch holds the actions of one entity type within a flush.
type typeBatch struct {
	entityType string
	storage    StorageAccess

	saves   []*Action
	updates []*Action
	deletes []*Action

	// previous keeps the db version an update or delete claimed from, for the rollback
	previous map[*Action]int64
	seen     map[ActionKind]map[Object]struct{}
	pending  map[*Action]struct{}
	failed   []*Action
}

func newTypeBatch(entityType string, storage StorageAccess) *typeBatch {
	return &typeBatch{
		entityType: entityType,
		storage:    storage,
		previous:   make(map[*Action]int64),
		seen: map[ActionKind]map[Object]struct{}{
			ActionSave:   {},
			ActionUpdate: {},
			ActionDelete: {},
		},
		pending: make(map[*Action]struct{}),
	}
}

func (b *typeBatch) add(action *Action, previous int64) bool {
	if _, duplicate := b.seen[action.kind][action.object]; duplicate {
		return false
	}
	b.seen[action.kind][action.object] = struct{}{}
	b.pending[action] = struct{}{}

	switch action.kind {
	case ActionSave:
		b.saves = append(b.saves, action)
	case ActionUpdate:
		b.previous[action] = previous
		b.updates = append(b.updates, action)
	case ActionDelete:
		b.previous[action] = previous
		b.deletes = append(b.deletes, action)
	}

	return true
}

func (b *typeBatch) done(action *Action) {
	if _, pending := b.pending[action]; !pending {
		return
	}

	delete(b.pending, action)
	action.object.unpin()
}

// unfinished returns the actions that never reached the storage.
func (b *typeBatch) unfinished() []*Action {
	return lo.Keys(b.pending)
}

var _ Scheduler = &BatchScheduler{}
