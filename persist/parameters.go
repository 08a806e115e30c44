package persist

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iotaledger/entitycache/logger"
)

const (
	// StrategyDelayed executes every action on its own after the delay.
	StrategyDelayed = "delayed"
	// StrategyBatch groups the actions of a delay window into per-type batches.
	StrategyBatch = "batch"
)

// ErrUnknownStrategy is returned for an unsupported persist strategy.
var ErrUnknownStrategy = errors.New("unknown persist strategy")

// Parameters contains the configuration parameters of the persistence engine.
type Parameters struct {
	// Strategy selects the scheduler.
	Strategy string `default:"delayed" usage:"the persist strategy (delayed|batch)"`
	// DelayWait is the debounce delay.
	DelayWait time.Duration `default:"1s" usage:"the time an action waits before it gets executed"`
	// CheckInterval is the idle sleep of the consumer.
	CheckInterval time.Duration `default:"1s" usage:"the sleep of the consumer when there is nothing to do or a storage call failed"`
	// DrainAttempts is the number of flush attempts on shutdown.
	DrainAttempts int `default:"3" usage:"the number of attempts to flush pending actions on shutdown"`
	// DrainBackoff is the pause between drain attempts.
	DrainBackoff time.Duration `default:"3s" usage:"the pause between two drain attempts"`
	// StorageTimeout bounds a single storage call.
	StorageTimeout time.Duration `default:"0s" usage:"the timeout of a single storage call (0 disables)"`
	// BatchWorkers is the number of types flushed concurrently.
	BatchWorkers int `default:"8" usage:"the number of entity types the batch strategy flushes concurrently"`
	// DynamicUpdateTypes lists the entity types that are updated field by field.
	DynamicUpdateTypes []string `default:"" usage:"the entity types whose updates only write the modified fields"`
}

// Rules returns the rule source described by the parameters.
func (p *Parameters) Rules() *StaticRules {
	return NewStaticRules(p.DelayWait, p.DynamicUpdateTypes...)
}

// ToOptions converts the parameters into scheduler options.
func (p *Parameters) ToOptions() []Option {
	return []Option{
		WithCheckInterval(p.CheckInterval),
		WithDrainPolicy(p.DrainAttempts, p.DrainBackoff),
		WithStorageTimeout(p.StorageTimeout),
		WithWorkerCount(p.BatchWorkers),
	}
}

// New creates the scheduler selected by the parameters.
func New(params *Parameters, log *logger.Logger, opts ...Option) (Scheduler, error) {
	opts = append(append(params.ToOptions(), WithLogger(log)), opts...)

	switch params.Strategy {
	case StrategyDelayed, "":
		return NewDelayedScheduler(params.Rules(), opts...), nil
	case StrategyBatch:
		return NewBatchScheduler(params.Rules(), opts...)
	default:
		return nil, errors.Wrapf(ErrUnknownStrategy, "%q", params.Strategy)
	}
}
