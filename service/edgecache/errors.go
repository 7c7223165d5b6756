package edgecache

import "errors"

var (
	ErrResponseNotStorable = errors.New("response is not storable in the edge cache")
	ErrCacheDisabled       = errors.New("edge cache is disabled")
)
