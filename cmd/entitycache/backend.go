package main

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
	badgerdb "github.com/dgraph-io/badger/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iotaledger/entitycache/dbcache"
	"github.com/iotaledger/entitycache/kvstore"
	"github.com/iotaledger/entitycache/kvstore/badger"
	"github.com/iotaledger/entitycache/kvstore/mapdb"
	"github.com/iotaledger/entitycache/kvstore/pebble"
	"github.com/iotaledger/entitycache/logger"
	"github.com/iotaledger/entitycache/persist"
	"github.com/iotaledger/entitycache/storage/kvstorage"
	"github.com/iotaledger/entitycache/storage/redisstore"
	"github.com/iotaledger/entitycache/storage/sqlstore"
)

// ErrUnknownBackend is returned for unsupported storage backends.
var ErrUnknownBackend = errors.New("unknown storage backend")

// backend is an opened storage together with the matching loader.
type backend struct {
	name    string
	storage persist.StorageAccess
	loader  dbcache.Loader[Account]
	close   func() error
}

func newBackend(params *parameters, log *logger.Logger) (*backend, error) {
	storageParams := params.Storage

	switch storageParams.Backend {
	case backendMapDB:
		return newKVBackend(storageParams.Backend, mapdb.NewMapDB()), nil

	case backendBadger:
		var (
			db  *badgerdb.DB
			err error
		)
		if storageParams.InMemory {
			db, err = badger.CreateInMemoryDB()
		} else {
			db, err = badger.CreateDB(filepath.Join(storageParams.Directory, backendBadger))
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to open badger")
		}

		return newKVBackend(storageParams.Backend, badger.New(db)), nil

	case backendPebble:
		db, err := pebble.CreateDB(filepath.Join(storageParams.Directory, backendPebble))
		if err != nil {
			return nil, errors.Wrap(err, "failed to open pebble")
		}

		return newKVBackend(storageParams.Backend, pebble.New(db)), nil

	case backendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     storageParams.Redis.Address,
			Password: storageParams.Redis.Password,
			DB:       storageParams.Redis.DB,
		})
		storage := redisstore.New(client, storageParams.Redis.Prefix)

		return &backend{
			name:    storageParams.Backend,
			storage: storage,
			loader:  redisLoader(storage),
			close:   client.Close,
		}, nil

	case backendSQL:
		db, err := sqlstore.Open(log.Named("sql"), storageParams.SQL)
		if err != nil {
			return nil, err
		}

		storage := sqlstore.New(db)
		if err := storage.Migrate(&Account{}); err != nil {
			return nil, err
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "failed to access the sql connection pool")
		}

		return &backend{
			name:    storageParams.Backend,
			storage: storage,
			loader:  sqlLoader(storage),
			close:   sqlDB.Close,
		}, nil

	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", storageParams.Backend)
	}
}

func newKVBackend(name string, store kvstore.KVStore) *backend {
	storage := kvstorage.New(store)

	return &backend{
		name:    name,
		storage: storage,
		loader:  kvLoader(storage),
		close: func() error {
			if err := store.Flush(); err != nil {
				return err
			}

			return store.Close()
		},
	}
}
