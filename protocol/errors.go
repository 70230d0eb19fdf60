package protocol

import (
	"errors"

	"github.com/nkyo/gocached/cache"
)

func isNotStored(err error) bool {
	return errors.Is(err, cache.ErrNotStored) || errors.Is(err, cache.ErrKeyExists)
}

func isNonNumeric(err error) bool {
	return errors.Is(err, cache.ErrNonNumeric)
}

func isCacheMiss(err error) bool {
	return errors.Is(err, cache.ErrCacheMiss)
}
