package paste

import (
	"time"

	"github.com/ptgott/one-paste/entry"
	"github.com/ptgott/one-paste/storage"

	"github.com/rs/zerolog"
)

// judge applies the expiration policy to a stored record. It never looks at
// the burn flag: whether a record has been read is only known on the read
// path.
func judge(value []byte, now uint64) (storage.Decision, error) {
	e, err := entry.Decode(value)
	if err != nil {
		return storage.Keep, err
	}
	if entry.IsExpired(e.ExpiryAt, now) {
		return storage.Remove, nil
	}
	return storage.Keep, nil
}

// ReclamationHook decides whether the engine may discard a stored record at
// now (seconds since the epoch). It returns Remove exactly when Get at the
// same time would treat the record as expired. Records that can't be
// decoded are kept, so that Get reports them as ErrInternal instead of
// them silently vanishing.
func ReclamationHook(value []byte, now uint64) storage.Decision {
	d, _ := judge(value, now)
	return d
}

// NewFilter adapts ReclamationHook to the engine's maintenance callback,
// reading the time from now on every call. It exists separately from Store
// because the engine needs its Filter before the Store can be built.
func NewFilter(now func() time.Time, log zerolog.Logger) storage.Filter {
	if now == nil {
		now = time.Now
	}
	return func(key, value []byte) storage.Decision {
		d, err := judge(value, entry.Unix(now()))
		if err != nil {
			log.Warn().Err(err).Str("slug", string(key)).Msg("keeping a record that can't be decoded")
		}
		return d
	}
}
