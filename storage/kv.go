package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/alecthomas/units"
)

// minCleanupInterval keeps the maintenance loop from spinning on a
// misconfigured interval. Sweeping walks every key, so there's no reason
// to do it more than once a second.
const minCleanupInterval = time.Second

// Badger refuses value log files outside [1MB, 2GB)
const (
	minValueLogFileSize = 1 << 20
	maxValueLogFileSize = 2 << 30
)

// ErrNotFound is returned when a key is absent. CompareAndDelete also
// returns it when the stored value no longer matches, since from the
// caller's point of view the record it saw is gone.
var ErrNotFound = errors.New("key not found")

// KVConfig contains settings specific to BadgerDB connections
type KVConfig struct {
	StorageDirPath string
	// Keep everything in memory. Used for tests and throwaway instances.
	InMemory bool
	// How often the maintenance loop reclaims expired records
	CleanupInterval time.Duration
	// Size of each value log file in bytes. Zero keeps Badger's default.
	ValueLogFileSize int64
}

// UnmarshalYAML parses a user-provided YAML configuration, returning any
// parsing errors.
func (c *KVConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]string)
	err := unmarshal(&v)

	if err != nil {
		return fmt.Errorf("can't parse the storage config: %v", err)
	}

	c.StorageDirPath = v["storageDir"]

	if m, ok := v["inMemory"]; ok {
		c.InMemory = m == "true"
	}

	if !c.InMemory && c.StorageDirPath == "" {
		return errors.New("the storage config must include a storage directory")
	}

	ci, ok := v["cleanupInterval"]
	if !ok {
		return errors.New("the storage config must include a cleanup interval")
	}
	d, err := time.ParseDuration(ci)
	if err != nil {
		return fmt.Errorf("can't parse the cleanup interval as a duration: %v", err)
	}
	c.CleanupInterval = d

	if s, ok := v["valueLogFileSize"]; ok {
		b, err := units.ParseBase2Bytes(s)
		if err != nil {
			return fmt.Errorf("can't parse the value log file size: %v", err)
		}
		c.ValueLogFileSize = int64(b)
	}

	return nil
}

// CheckAndSetDefaults validates c and either returns a copy of c with
// default settings applied or returns an error due to an invalid
// configuration
func (c *KVConfig) CheckAndSetDefaults() (KVConfig, error) {
	if !c.InMemory && c.StorageDirPath == "" {
		return KVConfig{}, errors.New("the storage config must include a storage directory")
	}

	if c.CleanupInterval < minCleanupInterval {
		return KVConfig{}, fmt.Errorf(
			"the cleanup interval must be at least %v, not %v",
			minCleanupInterval,
			c.CleanupInterval,
		)
	}

	if c.ValueLogFileSize != 0 &&
		(c.ValueLogFileSize < minValueLogFileSize || c.ValueLogFileSize >= maxValueLogFileSize) {
		return KVConfig{}, fmt.Errorf(
			"the value log file size must be between %v and %v, not %v",
			units.Base2Bytes(minValueLogFileSize),
			units.Base2Bytes(maxValueLogFileSize),
			units.Base2Bytes(c.ValueLogFileSize),
		)
	}

	return *c, nil
}

// Decision is a Filter's verdict on one stored record
type Decision int

const (
	// Keep leaves the record in place
	Keep Decision = iota
	// Remove deletes the record, unless it has been rewritten since the
	// Filter saw it
	Remove
)

// Filter decides whether a stored record should be reclaimed. It is called
// from the engine's maintenance loop, outside of any client request, and
// must not modify key or value.
type Filter func(key, value []byte) Decision

// KeyValue exposes a common interface for performing CRUD operations on an
// underlying storage layer. Implementations must be safe for concurrent use
// without any external locking.
//
// Implentations need to include connection logic in code to initialize
// a Store.
type KeyValue interface {
	// Replace the value of a key or create it if it doesn't exist
	Put(KVEntry) error
	// Return a copy of the value stored at key, or ErrNotFound
	Read(key []byte) (KVEntry, error)
	// Remove a key. Removing an absent key is not an error.
	Delete(key []byte) error
	// Remove the key only if it still holds exactly the given value.
	// When several callers race to remove the same value, at most one
	// succeeds and the rest get ErrNotFound.
	CompareAndDelete(KVEntry) error
	// Run f over every record and remove the ones it rejects. Returns the
	// number of records removed.
	Sweep(f Filter) (int, error)
	// Cleanup performs routine compaction of the underlying files
	Cleanup() error
	// Drain/tear down the connection, or something analogous for
	// an embedded database
	Close() error
}

// KVEntry is what we'll write to and read from the KV store
type KVEntry struct {
	Key   []byte
	Value []byte
}
