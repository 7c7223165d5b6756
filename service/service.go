// package service provides functions and methods
// for creating and running the api of the rpc edge proxy
package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgerelay/rpc-edge-proxy/clients/cache"
	"github.com/edgerelay/rpc-edge-proxy/clients/database"
	"github.com/edgerelay/rpc-edge-proxy/config"
	"github.com/edgerelay/rpc-edge-proxy/logging"
	"github.com/edgerelay/rpc-edge-proxy/service/edgecache"
)

// ProxyService represents an instance of the rpc edge proxy API
type ProxyService struct {
	server *http.Server
	config config.Config

	edgeStore *edgecache.EdgeStore
	writeBack *edgecache.WriteBackQueue
	formatter *edgecache.Formatter
	fetcher   *OriginFetcher
	db        database.MetricsDatabase

	*logging.ServiceLogger
}

// New returns a new ProxyService with the specified config and error (if any)
func New(ctx context.Context, cfg config.Config, serviceLogger *logging.ServiceLogger) (*ProxyService, error) {
	cacheClient, err := createCacheClient(cfg, serviceLogger)
	if err != nil {
		return nil, fmt.Errorf("error creating cache client: %w", err)
	}

	db, err := database.New(ctx, cfg, serviceLogger)
	if err != nil {
		return nil, fmt.Errorf("error creating metric database client: %w", err)
	}

	edgeStore := edgecache.NewEdgeStore(cacheClient, cfg.EdgeCacheTTL, cfg.CacheEnabled, serviceLogger)

	service := &ProxyService{
		config:        cfg,
		edgeStore:     edgeStore,
		writeBack:     edgecache.NewWriteBackQueue(edgeStore, serviceLogger),
		formatter:     edgecache.NewFormatter(cfg.BrowserCacheTTL, serviceLogger),
		fetcher:       NewOriginFetcher(NewProviderPool(cfg.Providers), cfg.ProviderTimeout, cfg.ProviderMaxAttempts, cfg.ProviderInitialBackoff, serviceLogger),
		db:            db,
		ServiceLogger: serviceLogger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthcheck", createHealthcheckHandler(service))
	mux.HandleFunc("/servicecheck", createServicecheckHandler(service))
	mux.Handle("/metrics", promhttp.Handler())

	// the proxied traffic entry point: request id tagging, body
	// decoding, then metric observation around the method dispatch
	handler := createRootRequestHandler(service)
	handler = createMetricsMiddleware(handler, db, serviceLogger)
	handler = createRequestDecodingMiddleware(handler, serviceLogger)
	handler = createRequestIDMiddleware(handler, serviceLogger)

	mux.HandleFunc("/", handler)

	service.server = &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ProxyServicePort),
		Handler: mux,
	}

	return service, nil
}

// createCacheClient creates the cache backend for the configured
// deployment: redis when an endpoint is configured, otherwise the
// bounded in-memory backend
func createCacheClient(cfg config.Config, serviceLogger *logging.ServiceLogger) (cache.Cache, error) {
	if !cfg.CacheEnabled {
		return cache.NewInMemoryCache()
	}

	if cfg.RedisEndpointURL == "" {
		serviceLogger.Info().Msg("no redis endpoint configured, using in-memory cache backend")
		return cache.NewInMemoryCache()
	}

	return cache.NewRedisCache(&cache.RedisConfig{
		Address:  cfg.RedisEndpointURL,
		Password: cfg.RedisPassword,
	}, serviceLogger)
}

// Handler returns the root handler of the proxy service,
// used by tests to drive the full pipeline without a listener
func (p *ProxyService) Handler() http.Handler {
	return p.server.Handler
}

// Run runs the proxy service, returning error (if any) in the event
// the proxy service stops
func (p *ProxyService) Run() error {
	p.Info().Msg(fmt.Sprintf("listening on port %s with %d providers", p.config.ProxyServicePort, p.fetcher.pool.Size()))

	return p.server.ListenAndServe()
}

// Stop shuts the service down, draining any deferred cache writes that
// have been accepted but not yet completed
func (p *ProxyService) Stop(ctx context.Context) error {
	err := p.server.Shutdown(ctx)

	p.writeBack.Stop()

	return err
}
