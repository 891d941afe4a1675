package state

import (
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
)

// OpenDatabase opens or creates the state database under dataDir. An empty
// dataDir gives an in-memory database.
func OpenDatabase(dataDir string) (ethdb.Database, error) {
	logger := log.New("module", "statestore")

	if dataDir == "" {
		logger.Info("Using in-memory state database")
		return rawdb.NewMemoryDatabase(), nil
	}

	path := filepath.Join(dataDir, "txpoold")
	db, err := rawdb.NewPebbleDBDatabase(path, 64, 64, "txpoold/db/", false, false)
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}
	logger.Info("State database opened", "path", path)
	return db, nil
}
