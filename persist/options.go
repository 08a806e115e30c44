package persist

import (
	"context"
	"time"

	"github.com/iotaledger/entitycache/logger"
)

const (
	// DefaultCheckInterval is the time the consumer sleeps when there is nothing to do or a storage call failed.
	DefaultCheckInterval = 1000 * time.Millisecond
	// DefaultDrainAttempts is the number of attempts to flush the pending actions on shutdown.
	DefaultDrainAttempts = 3
	// DefaultDrainBackoff is the time between two drain attempts.
	DefaultDrainBackoff = 3 * time.Second
	// DefaultWorkerCount is the number of entity types the BatchScheduler flushes concurrently.
	DefaultWorkerCount = 8
)

// Options define options for the schedulers.
type Options struct {
	logger         *logger.Logger
	checkInterval  time.Duration
	drainAttempts  int
	drainBackoff   time.Duration
	storageTimeout time.Duration
	workerCount    int
	renderer       DiagnosticRenderer
	metrics        *Metrics
	lockEvicter    LockEvicter
}

// Option is a function setting an Options field.
type Option func(*Options)

func newOptions(opts ...Option) *Options {
	options := &Options{
		checkInterval: DefaultCheckInterval,
		drainAttempts: DefaultDrainAttempts,
		drainBackoff:  DefaultDrainBackoff,
		workerCount:   DefaultWorkerCount,
		renderer:      JSONRenderer{},
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.logger == nil {
		options.logger = logger.NewNopLogger()
	}
	if options.metrics == nil {
		options.metrics = NewMetrics("")
	}
	if options.drainAttempts < 1 {
		options.drainAttempts = 1
	}
	if options.workerCount < 1 {
		options.workerCount = 1
	}

	return options
}

// WithLogger sets the logger of the scheduler.
func WithLogger(log *logger.Logger) Option {
	return func(o *Options) {
		o.logger = log
	}
}

// WithCheckInterval sets the idle and failure sleep of the consumer loop.
func WithCheckInterval(interval time.Duration) Option {
	return func(o *Options) {
		o.checkInterval = interval
	}
}

// WithDrainPolicy sets the number of flush attempts on shutdown and the pause between them.
func WithDrainPolicy(attempts int, backoff time.Duration) Option {
	return func(o *Options) {
		o.drainAttempts = attempts
		o.drainBackoff = backoff
	}
}

// WithStorageTimeout bounds every storage call. 0 means no timeout.
func WithStorageTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.storageTimeout = timeout
	}
}

// WithWorkerCount sets the number of entity types that are flushed concurrently by the BatchScheduler.
func WithWorkerCount(count int) Option {
	return func(o *Options) {
		o.workerCount = count
	}
}

// WithRenderer sets the renderer used for entities in failure logs.
func WithRenderer(renderer DiagnosticRenderer) Option {
	return func(o *Options) {
		o.renderer = renderer
	}
}

// WithMetrics sets the metrics the scheduler reports to.
func WithMetrics(metrics *Metrics) Option {
	return func(o *Options) {
		o.metrics = metrics
	}
}

// WithLockEvicter sets the lock table whose instance locks are dropped for deleted entities.
func WithLockEvicter(evicter LockEvicter) Option {
	return func(o *Options) {
		o.lockEvicter = evicter
	}
}

func (o *Options) storageContext() (context.Context, context.CancelFunc) {
	if o.storageTimeout <= 0 {
		return context.WithCancel(context.Background())
	}

	return context.WithTimeout(context.Background(), o.storageTimeout)
}
