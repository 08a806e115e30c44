package main

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/iotaledger/entitycache/dbcache"
	"github.com/iotaledger/entitycache/logger"
)

// workloadStats counts the operations issued by the clients.
type workloadStats struct {
	Created  atomic.Int64
	Updated  atomic.Int64
	Deleted  atomic.Int64
	Rejected atomic.Int64
}

// workload creates accounts and lets concurrent clients move balance between them.
type workload struct {
	*logger.WrappedLogger

	params   WorkloadParameters
	accounts *dbcache.Service[Account]
	stats    workloadStats

	keys      []string
	keysMutex sync.RWMutex
}

func newWorkload(params WorkloadParameters, log *logger.Logger, accounts *dbcache.Service[Account]) *workload {
	return &workload{
		WrappedLogger: logger.NewWrappedLogger(log),
		params:        params,
		accounts:      accounts,
	}
}

// Run seeds the accounts and mutates them until the context is done or the configured duration passed.
func (w *workload) Run(ctx context.Context) error {
	for i := 0; i < w.params.Accounts; i++ {
		if err := w.create(); err != nil {
			return err
		}
	}
	w.LogInfof("created %d accounts", w.params.Accounts)

	ctx, cancel := context.WithTimeout(ctx, w.params.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < w.params.Workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()

			w.client(ctx, rand.New(rand.NewSource(seed))) //nolint:gosec // workload randomness
		}(time.Now().UnixNano() + int64(i))
	}
	wg.Wait()

	w.LogInfof("workload done: created %d, updated %d, deleted %d, rejected %d",
		w.stats.Created.Load(), w.stats.Updated.Load(), w.stats.Deleted.Load(), w.stats.Rejected.Load())

	return nil
}

func (w *workload) client(ctx context.Context, random *rand.Rand) {
	for ctx.Err() == nil {
		key, ok := w.randomKey(random)
		if !ok {
			return
		}

		var err error
		switch roll := random.Float64(); {
		case roll < w.params.DeleteRatio:
			if err = w.accounts.Delete(ctx, key); err == nil {
				w.stats.Deleted.Inc()
				w.forget(key)
				err = w.create()
			}
		default:
			amount := random.Int63n(100)
			err = w.accounts.Update(ctx, key, func(account *Account) []string {
				account.Balance += amount
				account.Moves++

				return []string{"Balance", "Moves"}
			})
			if err == nil {
				w.stats.Updated.Inc()
			}
		}

		if err != nil {
			w.reject(key, err)
		}
	}
}

func (w *workload) create() error {
	key := uuid.NewString()
	if _, err := w.accounts.Create(key, &Account{ID: key, Owner: "owner-" + key[:8]}); err != nil {
		return errors.Wrap(err, "failed to create account")
	}
	w.stats.Created.Inc()

	w.keysMutex.Lock()
	defer w.keysMutex.Unlock()

	w.keys = append(w.keys, key)

	return nil
}

func (w *workload) reject(key string, err error) {
	w.stats.Rejected.Inc()

	switch {
	case errors.Is(err, dbcache.ErrEntityNotPersisted), errors.Is(err, dbcache.ErrEntityDeleting), errors.Is(err, dbcache.ErrEntityNotFound):
		w.LogDebugf("operation on %s rejected: %s", key, err)
	default:
		w.LogWarnf("operation on %s failed: %s", key, err)
	}
}

func (w *workload) randomKey(random *rand.Rand) (string, bool) {
	w.keysMutex.RLock()
	defer w.keysMutex.RUnlock()

	if len(w.keys) == 0 {
		return "", false
	}

	return w.keys[random.Intn(len(w.keys))], true
}

func (w *workload) forget(key string) {
	w.keysMutex.Lock()
	defer w.keysMutex.Unlock()

	for i, existing := range w.keys {
		if existing == key {
			w.keys[i] = w.keys[len(w.keys)-1]
			w.keys = w.keys[:len(w.keys)-1]

			return
		}
	}
}
