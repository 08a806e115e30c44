package objectlock

import (
	"time"

	"github.com/iotaledger/entitycache/logger"
	"github.com/iotaledger/entitycache/syncutils"
)

// Options define options for a Table.
type Options struct {
	deadlockDetection bool
	deadlockTimeout   time.Duration
	deadlockHandler   syncutils.DeadlockHandler
	logger            *logger.Logger
}

// Option is a function setting an Options field.
type Option func(*Options)

var defaultOptions = Options{
	deadlockTimeout: 30 * time.Second,
}

// WithDeadlockDetection hands out DetectingMutex instances instead of plain mutexes.
func WithDeadlockDetection(enabled bool) Option {
	return func(o *Options) {
		o.deadlockDetection = enabled
	}
}

// WithDeadlockTimeout sets how long a detecting lock may be held before go-deadlock reports it. 0 disables the check.
func WithDeadlockTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.deadlockTimeout = timeout
	}
}

// WithDeadlockHandler replaces the default handler, which logs detected cycles.
func WithDeadlockHandler(handler syncutils.DeadlockHandler) Option {
	return func(o *Options) {
		o.deadlockHandler = handler
	}
}

// WithLogger sets the logger used to report detected deadlocks.
func WithLogger(log *logger.Logger) Option {
	return func(o *Options) {
		o.logger = log
	}
}
