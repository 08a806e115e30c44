package mapdb_test

import (
	"testing"

	"github.com/iotaledger/entitycache/kvstore"
	"github.com/iotaledger/entitycache/kvstore/kvtest"
	"github.com/iotaledger/entitycache/kvstore/mapdb"
)

func TestMapDB(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kvstore.KVStore {
		return mapdb.NewMapDB()
	})
}
