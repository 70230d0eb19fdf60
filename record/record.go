// Package record defines the unit stored by the cache: a value with
// opaque flags and an absolute expiration.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// thirtyDays is the boundary (in seconds) below which an expiration
// input is treated as relative to now, and above which it is treated
// as an absolute Unix timestamp.
const thirtyDays = 30 * 24 * 3600

// Never is the sentinel expiration meaning "does not expire".
const Never int64 = 0

// Record is a cache entry: a byte value, opaque flags, and an
// absolute expiration in milliseconds since the epoch (0 = never).
type Record struct {
	Value      []byte
	Flags      uint32
	Expiration int64 // ms since epoch; 0 = never
}

// New builds a Record from wire-level inputs. expirationSeconds follows
// the memcached convention: 0 means never, a value up to thirtyDays is
// relative to now, anything larger is an absolute Unix timestamp (in
// seconds).
func New(value []byte, expirationSeconds int64, flags uint32) *Record {
	return &Record{
		Value:      value,
		Flags:      flags,
		Expiration: computeExpiration(expirationSeconds, time.Now()),
	}
}

// NewAt is New with an explicit reference time, for deterministic tests.
func NewAt(value []byte, expirationSeconds int64, flags uint32, now time.Time) *Record {
	return &Record{
		Value:      value,
		Flags:      flags,
		Expiration: computeExpiration(expirationSeconds, now),
	}
}

func computeExpiration(expirationSeconds int64, now time.Time) int64 {
	if expirationSeconds == 0 {
		return Never
	}
	if expirationSeconds < 0 {
		// Negative input can never be "now or later"; isValid will
		// always report false for it, matching the reference behavior
		// of constructing the record but it being immediately invalid.
		return now.UnixMilli() - 1
	}
	if expirationSeconds <= thirtyDays {
		return now.UnixMilli() + expirationSeconds*1000
	}
	return expirationSeconds * 1000
}

// IsValid reports whether the record has not expired as of nowMs
// (milliseconds since epoch).
func (r *Record) IsValid(nowMs int64) bool {
	return r.Expiration == Never || nowMs < r.Expiration
}

// SizeBytes estimates the record's stored size; the cache sums it for
// the "bytes" stats entry. Size-bounded eviction does not use it.
func (r *Record) SizeBytes() int {
	return len(r.Value) + 12 // flags + expiration, roughly
}

// String implements fmt.Stringer for debug logging, mirroring the
// debug-string convention used throughout the wire types.
func (r Record) String() string {
	return fmt.Sprintf("{Record flags=%d, expiration=%d, len=%d}", r.Flags, r.Expiration, len(r.Value))
}

// MarshalValue serializes an arbitrary in-process value to the
// canonical byte form stored in a Record. Strings and []byte pass
// through unchanged; everything else is JSON-encoded.
func MarshalValue(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return json.Marshal(v)
	}
}

// UnmarshalValue inverts MarshalValue for the embeddable read path: a
// value that looks like a JSON object is decoded back into its
// in-process form; anything else is returned as a string. The "looks
// like JSON" check matches the client's decode contract (starts with
// "{" and ends with "}"), so the two read paths agree.
func UnmarshalValue(b []byte) any {
	if len(b) >= 2 && b[0] == '{' && b[len(b)-1] == '}' {
		var out any
		if err := json.Unmarshal(b, &out); err == nil {
			return out
		}
	}
	return string(b)
}
