package badger

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v2"
)

// CreateDB creates a new BadgerDB instance in the given directory, which is created if needed.
func CreateDB(directory string, optionalOptions ...badger.Options) (*badger.DB, error) {
	var opts badger.Options

	if len(optionalOptions) > 0 {
		opts = optionalOptions[0]
	} else {
		if err := os.MkdirAll(directory, 0o700); err != nil {
			return nil, errors.Wrap(err, "could not create directory")
		}

		opts = badger.DefaultOptions(directory)
		opts.Logger = nil
		opts.LevelSizeMultiplier = 10
		opts.MaxLevels = 7
		opts.NumCompactors = 2 // Compactions can be expensive. Only run 2.
		opts.NumLevelZeroTables = 5
		opts.NumLevelZeroTablesStall = 10
		opts.NumMemtables = 5
		opts.SyncWrites = true
		opts.NumVersionsToKeep = 1
		opts.CompactL0OnClose = true
		opts.ValueLogFileSize = 1<<30 - 1
		opts.ValueLogMaxEntries = 1000000
		opts.ValueThreshold = 32
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "could not open new DB")
	}

	return db, nil
}

// CreateInMemoryDB creates a BadgerDB instance that keeps everything in memory.
func CreateInMemoryDB() (*badger.DB, error) {
	return CreateDB("", badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}
