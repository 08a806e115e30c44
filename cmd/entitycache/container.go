package main

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"github.com/iotaledger/entitycache/cache"
	"github.com/iotaledger/entitycache/dbcache"
	"github.com/iotaledger/entitycache/logger"
	"github.com/iotaledger/entitycache/objectlock"
	"github.com/iotaledger/entitycache/persist"
)

// ErrUnknownCache is returned for unsupported cache kinds.
var ErrUnknownCache = errors.New("unknown cache kind")

const metricsNamespace = "entitycache"

// buildContainer registers the constructors of all components. Nothing is constructed before the first Invoke.
func buildContainer(params *parameters) (*dig.Container, error) {
	container := dig.New()

	providers := []interface{}{
		func() *parameters { return params },
		newRootLogger,
		prometheus.NewRegistry,
		newLockTable,
		newScheduler,
		newBackend,
		newCacheStore,
		newAccounts,
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return nil, errors.Wrap(err, "failed to provide component")
		}
	}

	return container, nil
}

func newRootLogger(params *parameters) (*logger.Logger, error) {
	return logger.NewRootLogger(params.Logger)
}

func newLockTable(params *parameters, log *logger.Logger) *objectlock.Table {
	return objectlock.New(append(params.Locks.ToOptions(), objectlock.WithLogger(log.Named("locks")))...)
}

func newScheduler(params *parameters, log *logger.Logger, locks *objectlock.Table, registry *prometheus.Registry) (persist.Scheduler, error) {
	metrics := persist.NewMetrics(metricsNamespace)
	if err := metrics.Register(registry); err != nil {
		return nil, err
	}

	return persist.New(&params.Persist, log, persist.WithMetrics(metrics), persist.WithLockEvicter(locks))
}

func newCacheStore(params *parameters, log *logger.Logger, locks *objectlock.Table) (cache.Store, error) {
	// caches only drop settled entries, the next access reloads them from the storage
	onEvict := func(key string, _ persist.Object) {
		log.Debugf("evicted %s#%s", accountType, key)
		locks.Evict(accountType, key)
	}

	switch params.Cache.Kind {
	case cacheMap:
		return cache.NewMap(), nil
	case cacheLRU:
		return cache.NewLRU(params.Cache.Size, onEvict)
	case cacheTTL:
		return cache.NewTTL(params.Cache.TTL, onEvict)
	default:
		return nil, errors.Wrapf(ErrUnknownCache, "%q", params.Cache.Kind)
	}
}

func newAccounts(log *logger.Logger, store cache.Store, locks *objectlock.Table, scheduler persist.Scheduler, b *backend) *dbcache.Service[Account] {
	return dbcache.New[Account](accountType, store, locks, scheduler, b.storage,
		dbcache.WithLoader(b.loader),
		dbcache.WithLogger[Account](log.Named(accountType)),
	)
}
