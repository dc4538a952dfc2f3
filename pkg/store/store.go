// Package store implements storedefs.Sink on top of bbolt.
package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/npc-cli/jsh/pkg/logutil"
	"github.com/npc-cli/jsh/pkg/store/storedefs"
)

var logger = logutil.GetLogger("[store] ")

// DBStore is a storedefs.Sink backed by a database file.
type DBStore interface {
	storedefs.Sink
	Close() error
}

// Each initializer is run in its own transaction when a database is opened.
var initDB = map[string](func(*bolt.Tx) error){}

type dbStore struct {
	db *bolt.DB
}

// NewStore opens the database at the given path, creating it if needed.
func NewStore(dbname string) (DBStore, error) {
	db, err := bolt.Open(dbname, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbname, err)
	}
	for name, fn := range initDB {
		if err := db.Update(fn); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	logger.Infow("opened database", "path", dbname)
	return &dbStore{db}, nil
}

// Close closes the database.
func (s *dbStore) Close() error {
	return s.db.Close()
}
