package client

import "errors"

const libPrefix = "gocached"

var (
	// ErrCacheMiss means a Get found no live value for the key.
	ErrCacheMiss = errors.New(libPrefix + ": cache miss")

	// ErrNotStored means a conditional write (Add/Replace/Append/
	// Prepend) failed because its precondition was not satisfied.
	ErrNotStored = errors.New(libPrefix + ": item not stored")

	// ErrNotFound means Delete/Incr/Decr/Touch targeted a missing key.
	ErrNotFound = errors.New(libPrefix + ": not found")

	// ErrTimeout means no bytes arrived within the connection's
	// configured timeout.
	ErrTimeout = errors.New(libPrefix + ": timeout")

	// ErrNoServers means the Client has no configured endpoints.
	ErrNoServers = errors.New(libPrefix + ": no servers configured or available")

	// ErrInvalidAddr means an endpoint string could not be parsed as
	// host:port.
	ErrInvalidAddr = errors.New(libPrefix + ": invalid address for server")

	// ErrNotConfigured means InitFromEnv found neither
	// MEMCACHED_SERVERS nor MEMCACHED_HEADLESS_SERVICE_ADDRESS set.
	ErrNotConfigured = errors.New(libPrefix + ": not complete configuration")

	// ErrServerError wraps an unrecognized "SERVER_ERROR ..." response.
	ErrServerError = errors.New(libPrefix + ": server error")

	// ErrBadResponse wraps a response the client could not parse at all.
	ErrBadResponse = errors.New(libPrefix + ": malformed server response")
)

// resumableError reports whether err is only a protocol-level
// response and not a transport failure: connections that only ever
// saw a protocol-level miss are still healthy and may be returned to
// the pool.
func resumableError(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrCacheMiss),
		errors.Is(err, ErrNotStored),
		errors.Is(err, ErrNotFound):
		return true
	}
	return false
}
