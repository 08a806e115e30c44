package main

import (
	"time"

	"github.com/iotaledger/entitycache/logger"
	"github.com/iotaledger/entitycache/objectlock"
	"github.com/iotaledger/entitycache/persist"
	"github.com/iotaledger/entitycache/storage/sqlstore"
)

const (
	backendMapDB  = "mapdb"
	backendBadger = "badger"
	backendPebble = "pebble"
	backendRedis  = "redis"
	backendSQL    = "sql"

	cacheMap = "map"
	cacheLRU = "lru"
	cacheTTL = "ttl"
)

// StorageParameters select and configure the storage the accounts are written to.
type StorageParameters struct {
	Backend   string `default:"mapdb" usage:"the storage backend (mapdb|badger|pebble|redis|sql)"`
	Directory string `default:"data/kv" usage:"the database directory of the badger and pebble backends"`
	InMemory  bool   `default:"false" usage:"run badger without touching the disk"`

	Redis struct {
		Address  string `default:"localhost:6379" usage:"the address of the redis server"`
		Password string `default:"" usage:"the password of the redis server"`
		DB       int    `default:"0" usage:"the redis database index"`
		Prefix   string `default:"entitycache" usage:"the prefix of all keys written to redis"`
	}

	SQL sqlstore.Parameters
}

// CacheParameters configure the live cache of the accounts.
type CacheParameters struct {
	Kind string        `default:"map" usage:"the cache kind (map|lru|ttl)"`
	Size int           `default:"100000" usage:"the maximum number of entries of the lru cache"`
	TTL  time.Duration `default:"10m" usage:"the idle time after which ttl cache entries expire"`
}

// WorkloadParameters shape the generated traffic.
type WorkloadParameters struct {
	Accounts    int           `default:"1000" usage:"the number of accounts created up front"`
	Workers     int           `default:"16" usage:"the number of concurrent clients"`
	Duration    time.Duration `default:"10s" usage:"how long the clients mutate accounts"`
	DeleteRatio float64       `default:"0.01" usage:"the share of operations that delete an account"`
}

// parameters is the root of all bound configuration parameters.
type parameters struct {
	Logger   logger.Config
	Locks    objectlock.Parameters
	Persist  persist.Parameters
	Storage  StorageParameters
	Cache    CacheParameters
	Workload WorkloadParameters
}
