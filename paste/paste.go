package paste

import (
	"errors"
	"fmt"
	"time"

	"github.com/ptgott/one-paste/entry"
	"github.com/ptgott/one-paste/slug"
	"github.com/ptgott/one-paste/storage"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound means the paste is absent, expired or already burned.
	// Callers can't tell these apart on purpose.
	ErrNotFound = errors.New("paste not found")
	// ErrInternal means the stored record couldn't be decoded or the
	// engine failed while reading it.
	ErrInternal = errors.New("internal storage error")
	// ErrEngine means the engine failed to write or delete a record.
	ErrEngine = errors.New("storage engine error")
)

// Options configures a Store. Everything is fixed once the Store is built.
type Options struct {
	// Clock used for creation times and expiry checks. Defaults to
	// time.Now.
	Now func() time.Time
	// Slugs generates keys for Create. Defaults to a generator with the
	// nanoid alphabet and length.
	Slugs *slug.Generator
	// DefaultTTL applies when a Draft doesn't set its own. Zero keeps
	// pastes forever.
	DefaultTTL time.Duration
	// DefaultLang applies when a Draft has no lang.
	DefaultLang string
	Logger      zerolog.Logger
}

// Store is the gateway between callers and the key-value engine. It decodes
// records, enforces expiry and burn-after-reading on every read, and
// supplies the Filter the engine uses to reclaim expired records in the
// background. A Store is safe for concurrent use.
type Store struct {
	kv          storage.KeyValue
	now         func() time.Time
	slugs       *slug.Generator
	defaultTTL  time.Duration
	defaultLang string
	log         zerolog.Logger
}

// New returns a Store backed by kv. The Store doesn't own kv; closing it is
// up to the caller.
func New(kv storage.KeyValue, opts Options) (*Store, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Slugs == nil {
		g, err := slug.NewGenerator(slug.DefaultAlphabet, slug.DefaultLength)
		if err != nil {
			return nil, err
		}
		opts.Slugs = g
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("the default TTL can't be negative: %v", opts.DefaultTTL)
	}
	if opts.DefaultLang == "" {
		opts.DefaultLang = entry.DefaultLang
	}

	return &Store{
		kv:          kv,
		now:         opts.Now,
		slugs:       opts.Slugs,
		defaultTTL:  opts.DefaultTTL,
		defaultLang: opts.DefaultLang,
		log:         opts.Logger,
	}, nil
}

// Put stores an encoded record verbatim under key, replacing whatever was
// there. The record isn't validated.
func (s *Store) Put(key string, b []byte) error {
	err := s.kv.Put(storage.KVEntry{
		Key:   []byte(key),
		Value: b,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngine, err)
	}
	return nil
}

// Get returns the entry stored under key.
//
// An expired entry is deleted and reported as ErrNotFound, even though the
// background sweep would remove it eventually. A burn entry is removed
// before it is returned, with a compare-and-delete, so that of any number of
// concurrent readers at most one receives it. The deletes on this path are
// best-effort: when they fail the caller still gets ErrNotFound, and the
// sweep cleans up later.
func (s *Store) Get(key string) (entry.Entry, error) {
	kv, err := s.kv.Read([]byte(key))
	if errors.Is(err, storage.ErrNotFound) {
		return entry.Entry{}, ErrNotFound
	}
	if err != nil {
		return entry.Entry{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	e, err := entry.Decode(kv.Value)
	if err != nil {
		s.log.Error().Err(err).Str("slug", key).Msg("can't decode a stored paste")
		return entry.Entry{}, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	if entry.IsExpired(e.ExpiryAt, entry.Unix(s.now())) {
		if err := s.kv.CompareAndDelete(kv); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Err(err).Str("slug", key).Msg("can't delete an expired paste")
		}
		return entry.Entry{}, ErrNotFound
	}

	if e.Burn {
		err := s.kv.CompareAndDelete(kv)
		if errors.Is(err, storage.ErrNotFound) {
			// Another reader got here first
			return entry.Entry{}, ErrNotFound
		}
		if err != nil {
			s.log.Warn().Err(err).Str("slug", key).Msg("can't burn a paste")
			return entry.Entry{}, ErrNotFound
		}
		s.log.Debug().Str("slug", key).Msg("burned a paste after reading")
	}

	return e, nil
}

// Delete removes the paste under key. Deleting an absent paste is not an
// error.
func (s *Store) Delete(key string) error {
	if err := s.kv.Delete([]byte(key)); err != nil {
		return fmt.Errorf("%w: %v", ErrEngine, err)
	}
	return nil
}

// Draft is a paste that hasn't been stored yet.
type Draft struct {
	Data []byte
	// TTL is only used if HasTTL is set; otherwise the Store's default TTL
	// applies. A TTL of zero keeps the paste forever.
	TTL       time.Duration
	HasTTL    bool
	Lang      string
	Burn      bool
	Encrypted bool
}

// Create encodes d as a new entry and stores it under a freshly generated
// slug, which it returns along with the entry.
//
// Slugs aren't checked for collisions. If a new slug happens to match an
// existing one, the new paste replaces the old one.
func (s *Store) Create(d Draft) (string, entry.Entry, error) {
	f := entry.NewFields{
		TTL:       s.defaultTTL,
		Lang:      d.Lang,
		Burn:      d.Burn,
		Encrypted: d.Encrypted,
	}
	if d.HasTTL {
		f.TTL = d.TTL
	}
	if f.Lang == "" {
		f.Lang = s.defaultLang
	}

	e, err := entry.New(d.Data, f, s.now())
	if err != nil {
		return "", entry.Entry{}, err
	}

	key, err := s.slugs.Generate()
	if err != nil {
		return "", entry.Entry{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if err := s.Put(key, entry.Encode(e)); err != nil {
		return "", entry.Entry{}, err
	}

	s.log.Debug().
		Str("slug", key).
		Int("size", len(e.Payload)).
		Uint64("expiry", e.ExpiryAt).
		Bool("burn", e.Burn).
		Msg("stored a new paste")

	return key, e, nil
}

// DefaultTTL is the TTL applied to drafts without their own.
func (s *Store) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Filter returns the reclamation Filter for the Store's clock. It is the
// same Filter NewFilter builds, for engines that are swept by hand.
func (s *Store) Filter() storage.Filter {
	return NewFilter(s.now, s.log)
}

// Sweep runs one reclamation pass over the Store's engine.
func (s *Store) Sweep() (int, error) {
	return s.kv.Sweep(s.Filter())
}
