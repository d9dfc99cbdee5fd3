package storage

import (
	"bytes"
	"sync"
)

// MemDB is a KeyValue that keeps everything in a map guarded by a mutex.
// It has no maintenance loop; callers that need reclamation call Sweep
// themselves. It is meant for tests and for embedding the store in other
// programs without touching the disk.
//
// The zero value is not usable; create one with NewMemDB.
type MemDB struct {
	mtx  sync.RWMutex
	data map[string][]byte
}

// NewMemDB returns an empty MemDB.
func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// Put stores a copy of the entry's value.
func (m *MemDB) Put(entry KVEntry) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.data[string(entry.Key)] = clone(entry.Value)
	return nil
}

// Read returns a copy of the value stored at key.
func (m *MemDB) Read(key []byte) (KVEntry, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	v, ok := m.data[string(key)]
	if !ok {
		return KVEntry{}, ErrNotFound
	}
	return KVEntry{
		Key:   key,
		Value: clone(v),
	}, nil
}

// Delete is a no-op for absent keys.
func (m *MemDB) Delete(key []byte) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	delete(m.data, string(key))
	return nil
}

// CompareAndDelete holds the write lock across the comparison and the
// delete.
func (m *MemDB) CompareAndDelete(entry KVEntry) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	v, ok := m.data[string(entry.Key)]
	if !ok || !bytes.Equal(v, entry.Value) {
		return ErrNotFound
	}
	delete(m.data, string(entry.Key))
	return nil
}

// Sweep holds the write lock for the whole pass, so f must not call back
// into m.
func (m *MemDB) Sweep(f Filter) (int, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	removed := 0
	for k, v := range m.data {
		if f([]byte(k), v) == Remove {
			delete(m.data, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored keys, whether or not they're expired.
func (m *MemDB) Len() int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	return len(m.data)
}

// Cleanup always returns nil since there are no files to compact.
func (m *MemDB) Cleanup() error {
	return nil
}

// Close is no-op
func (m *MemDB) Close() error {
	return nil
}
