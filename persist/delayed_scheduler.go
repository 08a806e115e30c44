package persist

import (
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	"github.com/iotaledger/entitycache/backoff"
	"github.com/iotaledger/entitycache/ds/mpsc"
	"github.com/iotaledger/entitycache/timeutil"
)

// DelayedScheduler executes every action on its own, once it is older than the delay of the rules.
// Actions are executed one at a time, in submission order, by a single consumer goroutine.
type DelayedScheduler struct {
	*engine

	queue *mpsc.Queue[*Action]
	// delayed holds the action the consumer is currently waiting for, so that shutdown can still flush it.
	delayed atomic.Pointer[Action]
}

// NewDelayedScheduler creates a DelayedScheduler and starts its consumer.
func NewDelayedScheduler(rules RuleSource, opts ...Option) *DelayedScheduler {
	s := &DelayedScheduler{
		engine: newEngine("DelayedScheduler", rules, newOptions(opts...)),
		queue:  mpsc.New[*Action](),
	}
	s.push = s.queue.Push

	go s.run()

	return s
}

// Pending returns the number of actions that were not executed yet.
func (s *DelayedScheduler) Pending() int {
	pending := s.queue.Len()
	if s.delayed.Load() != nil {
		pending++
	}

	return pending
}

// LogUnpersistedEntities logs the entities of all pending valid actions.
func (s *DelayedScheduler) LogUnpersistedEntities() int {
	count := 0
	if action := s.delayed.Load(); action != nil && s.logUnpersisted(action) {
		count++
	}

	s.queue.ForEach(func(action *Action) bool {
		if s.logUnpersisted(action) {
			count++
		}

		return true
	})

	return count
}

// Shutdown stops the consumer and flushes all pending actions. Only the first call does anything.
func (s *DelayedScheduler) Shutdown() error {
	return s.stop(s.drain)
}

func (s *DelayedScheduler) run() {
	defer close(s.loopDone)

	for {
		action, ok := s.queue.Pop()
		if !ok {
			if !timeutil.Sleep(s.shutdownSignal, s.options.checkInterval) {
				return
			}

			continue
		}

		if !action.Valid() {
			s.dequeued(1)
			s.discard(action)

			continue
		}

		s.delayed.Store(action)
		if !timeutil.Sleep(s.shutdownSignal, s.rules.DelayWait()-time.Since(action.createdAt)) {
			// the action stays in the slot for the drain
			return
		}
		s.delayed.Store(nil)
		s.dequeued(1)

		if _, err := s.execute(action); err != nil {
			if !timeutil.Sleep(s.shutdownSignal, s.options.checkInterval) {
				return
			}
		}
	}
}

func (s *DelayedScheduler) drain() error {
	pending := make([]*Action, 0, s.queue.Len()+1)
	if action := s.delayed.Swap(nil); action != nil {
		pending = append(pending, action)
	}
	for action, ok := s.queue.Pop(); ok; action, ok = s.queue.Pop() {
		pending = append(pending, action)
	}
	s.dequeued(len(pending))

	if len(pending) == 0 {
		return nil
	}
	s.LogInfof("flushing %d pending actions", len(pending))

	attempt := 0
	if err := backoff.Retry(backoff.MaxRetries(backoff.ConstantBackOff(s.options.drainBackoff), s.options.drainAttempts-1), func() error {
		attempt++

		var err error
		if pending, err = s.executeAll(pending); err != nil {
			s.LogWarnf("flushing pending actions failed (attempt %d/%d), %d left: %s", attempt, s.options.drainAttempts, len(pending), err)
		}

		return err
	}); err != nil {
		for _, action := range pending {
			s.logUnpersisted(action)
		}

		return errors.Mark(errors.Wrapf(err, "%d actions left", len(pending)), ErrDrainFailed)
	}

	return nil
}

// executeAll executes the actions in order and returns the failed ones.
func (s *DelayedScheduler) executeAll(actions []*Action) (failed []*Action, err error) {
	for _, action := range actions {
		if _, executeErr := s.execute(action); executeErr != nil {
			failed = append(failed, action)
			err = errors.CombineErrors(err, executeErr)
		}
	}

	return failed, err
}

var _ Scheduler = &DelayedScheduler{}
