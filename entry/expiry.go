package entry

import "time"

// IsExpired reports whether a record with the given expiry timestamp is
// expired at now. Both timestamps are seconds since the Unix epoch, and an
// expiryAt of zero never expires.
//
// The read path and the background reclamation hook must both decide
// expiration with this function and nothing else, so that they always agree.
func IsExpired(expiryAt, now uint64) bool {
	return expiryAt != 0 && now >= expiryAt
}

// Unix converts t to the unsigned seconds used by IsExpired. Times before
// the epoch become zero.
func Unix(t time.Time) uint64 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}
