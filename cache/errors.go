package cache

import "errors"

const libPrefix = "gocached"

var (
	// ErrCacheMiss means that a get/getRecord failed because the key
	// wasn't present or had already expired.
	ErrCacheMiss = errors.New(libPrefix + ": cache miss")

	// ErrNotStored means that add/replace/append/prepend failed because
	// their storage precondition was not satisfied.
	ErrNotStored = errors.New(libPrefix + ": item not stored")

	// ErrKeyExists means that the key is already present. Cache's own
	// Add reports that case as ErrNotStored; the protocol layer maps
	// both errors to NOT_STORED.
	ErrKeyExists = errors.New(libPrefix + ": key already exists")

	// ErrNonNumeric means that incr/decr targeted a value that cannot be
	// parsed as a 64-bit unsigned integer.
	ErrNonNumeric = errors.New(libPrefix + ": cannot increment or decrement non-numeric value")

	// ErrMalformedKey is returned when an invalid key is used. Keys must
	// be at most 250 bytes long and contain no whitespace or control
	// characters.
	ErrMalformedKey = errors.New(libPrefix + ": key is too long or contains invalid characters")
)
