package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog/log"
)

// BadgerDB implements KeyValue and represents the application's connection
// to BadgerDB.
//
// Badger has no hook into its own compaction, so reclamation runs in a
// maintenance goroutine owned by the BadgerDB: every cleanup interval it
// sweeps all records through the Filter and then garbage-collects the value
// log. The sweep reads from a snapshot and removes each rejected record in
// its own transaction, so it never holds locks that foreground reads and
// writes would wait on.
type BadgerDB struct {
	connection *badger.DB
	filter     Filter
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once
}

// NewBadgerDB initializes the BadgerDB embedded database. If filter is not
// nil, it also starts the maintenance loop. It is up to the caller to close
// the database with Close().
func NewBadgerDB(conf *KVConfig, filter Filter) (*BadgerDB, error) {
	// Open the Badger database at dirPath.
	// See: https://dgraph.io/docs/badger/get-started/#opening-a-database
	opts := badger.DefaultOptions(conf.StorageDirPath)
	if conf.InMemory {
		// Badger refuses a directory in diskless mode
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(newBadgerLogger())
	if conf.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(conf.ValueLogFileSize)
	}

	db, err := badger.Open(opts)

	if err != nil {
		return &BadgerDB{}, fmt.Errorf("can't open the db connection: %v", err)
	}

	bdb := &BadgerDB{
		connection: db,
		filter:     filter,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	if filter != nil && conf.CleanupInterval > 0 {
		t := time.NewTicker(conf.CleanupInterval)
		go func() {
			defer t.Stop()
			bdb.maintain(t.C)
		}()
	} else {
		close(bdb.doneCh)
	}

	return bdb, nil
}

// maintain reclaims records every time tick fires until the database is
// closed.
func (db *BadgerDB) maintain(tick <-chan time.Time) {
	defer close(db.doneCh)
	for {
		select {
		case <-db.stopCh:
			return
		case <-tick:
			db.Maintain()
		}
	}
}

// Maintain runs a single reclamation pass followed by value log garbage
// collection. Errors are logged rather than returned since nobody is
// waiting on the maintenance loop.
func (db *BadgerDB) Maintain() {
	if db.filter == nil {
		return
	}
	n, err := db.Sweep(db.filter)
	if err != nil {
		log.Error().Err(err).Int("removed", n).Msg("error reclaiming expired records")
	} else if n > 0 {
		log.Info().Int("removed", n).Msg("reclaimed expired records")
	}

	if err := db.Cleanup(); err != nil {
		log.Error().Err(err).Msg("error cleaning up the database")
	}
}

// Put upserts an entry
func (db *BadgerDB) Put(entry KVEntry) error {
	err := db.connection.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(entry.Key, entry.Value)
		err := txn.SetEntry(e)
		if err != nil {
			return fmt.Errorf("could not set the KV pair: %v", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %v", err)
	}
	return nil
}

// Read returns an entry by key.
func (db *BadgerDB) Read(key []byte) (KVEntry, error) {
	var val []byte
	// See: https://dgraph.io/docs/badger/get-started/#read-only-transactions
	err := db.connection.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)

		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("can't retrieve a value for the key provided: %v", err)
		}

		// We copy values rather than return them directly because item.Value()
		// is considered undefined behavior outside a transaction.
		// https://godoc.org/github.com/dgraph-io/badger#Item.Value
		val, err = item.ValueCopy(nil)

		if err != nil {
			return fmt.Errorf("can't copy the value from the database: %v", err)
		}
		return nil
	})
	if err != nil {
		return KVEntry{}, err
	}
	return KVEntry{
		Key:   key,
		Value: val,
	}, nil
}

// Delete removes a key. Badger records a tombstone whether or not the key
// exists, so deleting an absent key succeeds.
func (db *BadgerDB) Delete(key []byte) error {
	err := db.connection.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("can't delete the key: %v", err)
	}
	return nil
}

// CompareAndDelete reads and deletes the key in one read-write transaction.
// Badger's transactions are serializable: if another transaction removes or
// rewrites the key after we read it, our commit fails with ErrConflict, so
// only one of any number of concurrent callers can win.
func (db *BadgerDB) CompareAndDelete(entry KVEntry) error {
	err := db.connection.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(entry.Key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("can't retrieve a value for the key provided: %v", err)
		}

		var same bool
		err = item.Value(func(v []byte) error {
			same = bytes.Equal(v, entry.Value)
			return nil
		})
		if err != nil {
			return fmt.Errorf("can't read the value from the database: %v", err)
		}
		if !same {
			return ErrNotFound
		}

		return txn.Delete(entry.Key)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, badger.ErrConflict):
		return ErrNotFound
	default:
		return fmt.Errorf("can't delete the key: %v", err)
	}
}

// versionedKey identifies a record as it was seen by a sweep
type versionedKey struct {
	key     []byte
	version uint64
}

// Sweep runs f over every record in a read-only snapshot and removes the
// ones it rejects. A rejected record is only removed if it hasn't been
// rewritten since the snapshot was taken.
func (db *BadgerDB) Sweep(f Filter) (int, error) {
	var doomed []versionedKey
	err := db.connection.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				if f(item.Key(), v) == Remove {
					doomed = append(doomed, versionedKey{
						key:     item.KeyCopy(nil),
						version: item.Version(),
					})
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("can't read a value during the sweep: %v", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, vk := range doomed {
		ok, err := db.deleteVersion(vk)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// deleteVersion removes vk.key if its latest version is still vk.version.
// It reports whether the key was removed. Losing a race with a writer is
// not an error: the next sweep sees the new value.
func (db *BadgerDB) deleteVersion(vk versionedKey) (bool, error) {
	err := db.connection.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(vk.key)
		if err != nil {
			return err
		}
		if item.Version() != vk.version {
			return ErrNotFound
		}
		return txn.Delete(vk.key)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, badger.ErrKeyNotFound),
		errors.Is(err, badger.ErrConflict):
		return false, nil
	default:
		return false, fmt.Errorf("can't reclaim a record: %v", err)
	}
}

// Cleanup performs BadgerDB's garbage collection routine with the
// recommended discardRatio.
//
// See: https://pkg.go.dev/github.com/ipsn/go-ipfs/gxlibs/github.com/dgraph-io/badger#DB.RunValueLogGC
//
// Removing records only writes tombstones; this is the only time their
// space is actually given back.
func (db *BadgerDB) Cleanup() error {
	var discardRatio float64 = .5
	err := db.connection.RunValueLogGC(discardRatio)
	// If the GC determines that it can't rewrite anything, don't worry the
	// caller--just skip it. The same goes for in-memory databases, which
	// have no value log.
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	if err != nil {
		return err
	}
	return nil
}

// Close stops the maintenance loop and tears down the database connection.
// You should defer this. Calling Close more than once is safe.
func (db *BadgerDB) Close() error {
	var err error
	db.closeOnce.Do(func() {
		close(db.stopCh)
		<-db.doneCh
		if cerr := db.connection.Close(); cerr != nil {
			err = fmt.Errorf("could not close the database: %v", cerr)
		}
	})
	return err
}
