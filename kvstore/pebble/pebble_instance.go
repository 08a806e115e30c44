package pebble

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// CreateDB creates a new pebble instance in the given directory, which is created if needed.
func CreateDB(directory string, optionalOptions ...*pebble.Options) (*pebble.DB, error) {
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return nil, errors.Wrap(err, "could not create directory")
	}

	opts := &pebble.Options{}
	if len(optionalOptions) > 0 {
		opts = optionalOptions[0]
	}

	db, err := pebble.Open(directory, opts)
	if err != nil {
		return nil, errors.Wrap(err, "could not open new DB")
	}

	return db, nil
}
