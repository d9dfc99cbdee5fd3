package entry

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultLang is the syntax hint stored when the creator doesn't supply one
// and no other default is configured.
const DefaultLang = "markup"

// Entry is a single stored paste: a payload plus the metadata the store
// needs to decide when to stop serving it. Entries are never mutated once
// written.
type Entry struct {
	// Seconds since the Unix epoch at write time
	CreatedAt uint64
	// Seconds since the Unix epoch after which the entry is expired. Zero
	// means the entry never expires.
	ExpiryAt uint64
	Payload  []byte
	Lang     string
	// Burn entries are served to exactly one reader
	Burn bool
	// Encrypted is a hint for clients. The store never looks inside the
	// payload.
	Encrypted bool
}

// NewFields are the caller-controlled parts of a new Entry.
type NewFields struct {
	// TTL is truncated to whole seconds. Zero means "never expires".
	TTL       time.Duration
	Lang      string
	Burn      bool
	Encrypted bool
}

// New builds an Entry created at now. An empty f.Lang falls back to
// DefaultLang. The caller owns data; New doesn't copy it.
func New(data []byte, f NewFields, now time.Time) (Entry, error) {
	if f.TTL < 0 {
		return Entry{}, fmt.Errorf("the TTL can't be negative: %v", f.TTL)
	}

	ts := now.Unix()
	if ts < 0 {
		return Entry{}, errors.New("the creation time is before the Unix epoch")
	}
	created := uint64(ts)

	var expiry uint64
	if ttl := uint64(f.TTL / time.Second); ttl > 0 {
		if ttl > math.MaxUint64-created {
			return Entry{}, fmt.Errorf("a TTL of %v overflows the expiry timestamp", f.TTL)
		}
		expiry = created + ttl
	}

	l := f.Lang
	if l == "" {
		l = DefaultLang
	}

	return Entry{
		CreatedAt: created,
		ExpiryAt:  expiry,
		Payload:   data,
		Lang:      l,
		Burn:      f.Burn,
		Encrypted: f.Encrypted,
	}, nil
}

// ExpiresAt returns the expiry deadline as a time.Time. The second return
// value is false for entries that never expire.
func (e Entry) ExpiresAt() (time.Time, bool) {
	if e.ExpiryAt == 0 {
		return time.Time{}, false
	}
	if e.ExpiryAt > math.MaxInt64 {
		return time.Unix(math.MaxInt64, 0), true
	}
	return time.Unix(int64(e.ExpiryAt), 0), true
}
