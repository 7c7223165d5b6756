package edgecache

import (
	"context"
	"fmt"
	"time"

	"github.com/edgerelay/rpc-edge-proxy/clients/cache"
	"github.com/edgerelay/rpc-edge-proxy/logging"
	"github.com/edgerelay/rpc-edge-proxy/metrics"
)

// EdgeStore is the read-through / write-through wrapper over the shared
// key-value response cache. It can work with any backend implementing
// the cache.Cache interface.
type EdgeStore struct {
	cacheClient cache.Cache
	edgeTTL     time.Duration
	enabled     bool

	*logging.ServiceLogger
}

// NewEdgeStore returns a new EdgeStore writing entries with the
// provided edge TTL
func NewEdgeStore(
	cacheClient cache.Cache,
	edgeTTL time.Duration,
	enabled bool,
	logger *logging.ServiceLogger,
) *EdgeStore {
	return &EdgeStore{
		cacheClient:   cacheClient,
		edgeTTL:       edgeTTL,
		enabled:       enabled,
		ServiceLogger: logger,
	}
}

// IsEnabled returns whether the edge cache is enabled
func (s *EdgeStore) IsEnabled() bool {
	return s.enabled
}

// Lookup attempts to read a cached response for the provided key.
// A miss is signalled with cache.ErrNotFound and is not an error
// condition for callers, it simply triggers an origin fetch.
func (s *EdgeStore) Lookup(ctx context.Context, key string) (*CachedResponse, error) {
	if !s.enabled {
		return nil, ErrCacheDisabled
	}

	data, err := s.cacheClient.Get(ctx, key)
	if err == cache.ErrNotFound {
		metrics.CacheOperationsTotal.WithLabelValues("lookup", "miss").Inc()
		return nil, err
	}
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues("lookup", "error").Inc()
		s.Logger.Error().
			Str("key", key).
			Err(err).
			Msg("error during edge cache lookup")
		return nil, err
	}

	response, err := UnmarshalCachedResponse(data)
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues("lookup", "error").Inc()
		s.Logger.Error().
			Str("key", key).
			Err(err).
			Msg("can't unmarshal cached response")
		return nil, err
	}

	metrics.CacheOperationsTotal.WithLabelValues("lookup", "hit").Inc()

	return response, nil
}

// Store writes a successful origin response under the provided key,
// stamped with the edge cache-control header and the configured TTL.
// Unsuccessful responses are rejected with ErrResponseNotStorable.
func (s *EdgeStore) Store(ctx context.Context, key string, response *CachedResponse) error {
	if !s.enabled {
		return ErrCacheDisabled
	}

	if !response.IsSuccess() {
		return ErrResponseNotStorable
	}

	if response.Header == nil {
		response.Header = make(map[string]string)
	}
	response.Header["Cache-Control"] = fmt.Sprintf("public, max-age=%d", int(s.edgeTTL.Seconds()))

	data, err := response.Marshal()
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues("store", "error").Inc()
		return err
	}

	if err := s.cacheClient.Set(ctx, key, data, s.edgeTTL); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues("store", "error").Inc()
		s.Logger.Error().
			Str("key", key).
			Err(err).
			Msg("error during edge cache store")
		return err
	}

	metrics.CacheOperationsTotal.WithLabelValues("store", "ok").Inc()

	return nil
}

// Healthcheck reports whether the cache backend is reachable
func (s *EdgeStore) Healthcheck(ctx context.Context) error {
	return s.cacheClient.Healthcheck(ctx)
}
