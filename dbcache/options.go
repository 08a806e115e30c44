package dbcache

import (
	"github.com/iotaledger/entitycache/logger"
)

// Option is a function setting a Service field.
type Option[E any] func(*Service[E])

// WithLoader sets the function cache misses are resolved with. Without a loader a miss means ErrEntityNotFound.
func WithLoader[E any](loader Loader[E]) Option[E] {
	return func(s *Service[E]) {
		s.loader = loader
	}
}

// WithLogger sets the logger of the Service.
func WithLogger[E any](log *logger.Logger) Option[E] {
	return func(s *Service[E]) {
		s.WrappedLogger = logger.NewWrappedLogger(log)
	}
}
