package paste

import (
	"errors"
	"sync"
	"testing"
	"testing/quick"
	"time"

	"github.com/ptgott/one-paste/entry"
	"github.com/ptgott/one-paste/slug"
	"github.com/ptgott/one-paste/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable clock shared between a test and its Store
type fakeClock struct {
	mtx sync.Mutex
	t   time.Time
}

func newFakeClock(sec int64) *fakeClock {
	return &fakeClock{t: time.Unix(sec, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.t
}

func (c *fakeClock) Set(sec int64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.t = time.Unix(sec, 0)
}

func newTestStore(t *testing.T, kv storage.KeyValue, clock *fakeClock) *Store {
	t.Helper()
	s, err := New(kv, Options{Now: clock.Now})
	require.NoError(t, err)
	return s
}

// putEntry encodes e and stores it under key
func putEntry(t *testing.T, s *Store, key string, e entry.Entry) {
	t.Helper()
	require.NoError(t, s.Put(key, entry.Encode(e)))
}

func TestScenarioA(t *testing.T) {
	clock := newFakeClock(1000)
	s := newTestStore(t, storage.NewMemDB(), clock)

	e, err := entry.New([]byte("hello"), entry.NewFields{Lang: "markup"}, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), e.CreatedAt)
	assert.Equal(t, uint64(0), e.ExpiryAt)
	putEntry(t, s, "abc", e)

	clock.Set(999999)
	got, err := s.Get("abc")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got.Payload))
	assert.Equal(t, "markup", got.Lang)
}

func TestScenarioB(t *testing.T) {
	clock := newFakeClock(0)
	s := newTestStore(t, storage.NewMemDB(), clock)

	e, err := entry.New([]byte("secret"), entry.NewFields{Burn: true}, clock.Now())
	require.NoError(t, err)
	putEntry(t, s, "xyz", e)

	got, err := s.Get("xyz")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(got.Payload))
	assert.True(t, got.Burn)

	for i := 0; i < 3; i++ {
		_, err = s.Get("xyz")
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestScenarioC(t *testing.T) {
	clock := newFakeClock(0)
	s := newTestStore(t, storage.NewMemDB(), clock)

	e, err := entry.New([]byte("brief"), entry.NewFields{TTL: time.Second}, clock.Now())
	require.NoError(t, err)
	require.Equal(t, uint64(1), e.ExpiryAt)
	putEntry(t, s, "ttl", e)

	_, err = s.Get("ttl")
	require.NoError(t, err)

	clock.Set(1)
	_, err = s.Get("ttl")
	assert.ErrorIs(t, err, ErrNotFound)
	// Expiry is idempotent
	_, err = s.Get("ttl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetNeverExpires(t *testing.T) {
	clock := newFakeClock(0)
	kv := storage.NewMemDB()
	s := newTestStore(t, kv, clock)
	putEntry(t, s, "forever", entry.Entry{Payload: []byte("p"), Lang: "go"})

	for _, now := range []int64{0, 1, 1 << 20, 1 << 40, 1 << 62} {
		clock.Set(now)
		_, err := s.Get("forever")
		assert.NoError(t, err, "now=%v", now)
	}
	assert.Equal(t, 1, kv.Len())
}

func TestGetExpiredDeletesLazily(t *testing.T) {
	clock := newFakeClock(100)
	kv := storage.NewMemDB()
	s := newTestStore(t, kv, clock)
	putEntry(t, s, "old", entry.Entry{ExpiryAt: 50, Payload: []byte("p"), Lang: "go"})

	_, err := s.Get("old")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, kv.Len(), "the expired record should have been deleted by the read")
}

func TestGetCorruptRecord(t *testing.T) {
	clock := newFakeClock(0)
	kv := storage.NewMemDB()
	s := newTestStore(t, kv, clock)
	require.NoError(t, s.Put("bad", []byte{1, 2, 3}))

	_, err := s.Get("bad")
	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, entry.ErrCorruptRecord)
	// Corrupt records are surfaced, never dropped
	assert.Equal(t, 1, kv.Len())
}

func TestDeleteIsIdempotent(t *testing.T) {
	clock := newFakeClock(0)
	s := newTestStore(t, storage.NewMemDB(), clock)

	require.NoError(t, s.Delete("never-existed"))
	_, err := s.Get("never-existed")
	assert.ErrorIs(t, err, ErrNotFound)

	putEntry(t, s, "k", entry.Entry{Payload: []byte("p"), Lang: "go"})
	require.NoError(t, s.Delete("k"))
	require.NoError(t, s.Delete("k"))
	_, err = s.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutOverwrites(t *testing.T) {
	clock := newFakeClock(0)
	s := newTestStore(t, storage.NewMemDB(), clock)

	putEntry(t, s, "k", entry.Entry{Payload: []byte("first"), Lang: "go"})
	putEntry(t, s, "k", entry.Entry{Payload: []byte("second"), Lang: "go"})

	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got.Payload))
}

func TestConcurrentBurnReaders(t *testing.T) {
	dbs := map[string]func(t *testing.T) storage.KeyValue{
		"memdb": func(t *testing.T) storage.KeyValue {
			return storage.NewMemDB()
		},
		"badger": func(t *testing.T) storage.KeyValue {
			db, err := storage.NewBadgerDB(&storage.KVConfig{StorageDirPath: t.TempDir()}, nil)
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			return db
		},
	}

	for name, open := range dbs {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock(0)
			s := newTestStore(t, open(t), clock)

			for round := 0; round < 10; round++ {
				putEntry(t, s, "burn", entry.Entry{Payload: []byte("once"), Lang: "go", Burn: true})

				var wg sync.WaitGroup
				var mtx sync.Mutex
				served := 0
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						e, err := s.Get("burn")
						if err == nil {
							mtx.Lock()
							served++
							mtx.Unlock()
							assert.Equal(t, "once", string(e.Payload))
							return
						}
						assert.ErrorIs(t, err, ErrNotFound)
					}()
				}
				wg.Wait()
				require.Equal(t, 1, served, "round %v", round)
			}
		})
	}
}

func TestCreate(t *testing.T) {
	clock := newFakeClock(500)
	g, err := slug.NewGenerator("abc", 6)
	require.NoError(t, err)
	s, err := New(storage.NewMemDB(), Options{
		Now:         clock.Now,
		Slugs:       g,
		DefaultTTL:  time.Hour,
		DefaultLang: "plaintext",
	})
	require.NoError(t, err)

	key, e, err := s.Create(Draft{Data: []byte("hi")})
	require.NoError(t, err)
	assert.Len(t, key, 6)
	assert.Equal(t, uint64(500), e.CreatedAt)
	assert.Equal(t, uint64(500+3600), e.ExpiryAt)
	assert.Equal(t, "plaintext", e.Lang)

	got, err := s.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got.Payload))

	// An explicit TTL of zero overrides the default
	key, e, err = s.Create(Draft{Data: []byte("forever"), HasTTL: true, Lang: "go", Encrypted: true})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), e.ExpiryAt)
	got, err = s.Get(key)
	require.NoError(t, err)
	assert.True(t, got.Encrypted)
	assert.Equal(t, "go", got.Lang)

	_, _, err = s.Create(Draft{Data: []byte("x"), HasTTL: true, TTL: -time.Second})
	assert.Error(t, err)
}

func TestNewRejectsNegativeDefaultTTL(t *testing.T) {
	_, err := New(storage.NewMemDB(), Options{DefaultTTL: -time.Minute})
	assert.Error(t, err)
}

func TestReclamationAgreement(t *testing.T) {
	// For any record and time, the hook removes the record exactly when a
	// read at the same time would call it expired.
	if err := quick.Check(func(created, expiry, now uint64, burn bool) bool {
		b := entry.Encode(entry.Entry{
			CreatedAt: created,
			ExpiryAt:  expiry,
			Payload:   []byte("p"),
			Lang:      "go",
			Burn:      burn,
		})

		// Keep times within what time.Unix can represent
		now = now >> 2
		clock := newFakeClock(int64(now))
		s, err := New(storage.NewMemDB(), Options{Now: clock.Now})
		if err != nil {
			return false
		}
		if err := s.Put("k", b); err != nil {
			return false
		}
		_, err = s.Get("k")
		expired := errors.Is(err, ErrNotFound)

		return (ReclamationHook(b, now) == storage.Remove) == expired
	}, &quick.Config{MaxCount: 5000}); err != nil {
		t.Error(err)
	}
}

func TestReclamationIgnoresBurn(t *testing.T) {
	b := entry.Encode(entry.Entry{Payload: []byte("p"), Lang: "go", Burn: true})
	assert.Equal(t, storage.Keep, ReclamationHook(b, 1<<40))
}

func TestReclamationKeepsCorruptRecords(t *testing.T) {
	assert.Equal(t, storage.Keep, ReclamationHook([]byte("garbage"), 0))
}

func TestSweep(t *testing.T) {
	clock := newFakeClock(1000)
	kv := storage.NewMemDB()
	s := newTestStore(t, kv, clock)

	putEntry(t, s, "expired", entry.Entry{ExpiryAt: 1000, Payload: []byte("p"), Lang: "go"})
	putEntry(t, s, "live", entry.Entry{ExpiryAt: 1001, Payload: []byte("p"), Lang: "go"})
	putEntry(t, s, "forever", entry.Entry{Payload: []byte("p"), Lang: "go"})
	putEntry(t, s, "burn", entry.Entry{Payload: []byte("p"), Lang: "go", Burn: true})
	require.NoError(t, s.Put("corrupt", []byte("not a record")))

	n, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 4, kv.Len())

	clock.Set(1001)
	n, err = s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, kv.Len())
}

func TestBadgerMaintenanceReclaims(t *testing.T) {
	clock := newFakeClock(10)
	db, err := storage.NewBadgerDB(&storage.KVConfig{
		StorageDirPath:  t.TempDir(),
		CleanupInterval: 10 * time.Millisecond,
	}, NewFilter(clock.Now, zerologNop))
	require.NoError(t, err)
	defer db.Close()

	s := newTestStore(t, db, clock)
	putEntry(t, s, "soon", entry.Entry{CreatedAt: 10, ExpiryAt: 20, Payload: []byte("p"), Lang: "go"})

	clock.Set(20)
	require.Eventually(t, func() bool {
		_, err := db.Read([]byte("soon"))
		return errors.Is(err, storage.ErrNotFound)
	}, 5*time.Second, 10*time.Millisecond)
}
