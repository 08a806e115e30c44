package main

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/iotaledger/entitycache/dbcache"
	"github.com/iotaledger/entitycache/storage/kvstorage"
	"github.com/iotaledger/entitycache/storage/redisstore"
	"github.com/iotaledger/entitycache/storage/sqlstore"
)

const accountType = "account"

// Account is the entity the workload operates on.
type Account struct {
	ID      string `gorm:"primaryKey"`
	Owner   string
	Balance int64
	Moves   int64
}

// notFoundAsNil turns the "record not found" error of a storage into the nil entity a dbcache.Loader reports.
func notFoundAsNil(account *Account, err error, notFound error) (*Account, error) {
	if errors.Is(err, notFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return account, nil
}

func kvLoader(storage *kvstorage.Storage) dbcache.Loader[Account] {
	return func(_ context.Context, key string) (*Account, error) {
		account := &Account{}

		return notFoundAsNil(account, storage.Load(accountType, key, account), kvstorage.ErrRecordNotFound)
	}
}

func redisLoader(storage *redisstore.Storage) dbcache.Loader[Account] {
	return func(ctx context.Context, key string) (*Account, error) {
		account := &Account{}

		return notFoundAsNil(account, storage.Load(ctx, accountType, key, account), redisstore.ErrRecordNotFound)
	}
}

func sqlLoader(storage *sqlstore.Storage) dbcache.Loader[Account] {
	return func(ctx context.Context, key string) (*Account, error) {
		account := &Account{ID: key}

		return notFoundAsNil(account, storage.Load(ctx, account), sqlstore.ErrRecordNotFound)
	}
}
