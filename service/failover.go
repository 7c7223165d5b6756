package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/edgerelay/rpc-edge-proxy/logging"
	"github.com/edgerelay/rpc-edge-proxy/metrics"
	"github.com/edgerelay/rpc-edge-proxy/service/edgecache"
)

// ErrProvidersExhausted is returned when every configured fetch attempt
// against the provider pool has failed for a single request
var ErrProvidersExhausted = errors.New("all providers exhausted")

// ProviderPool is the ordered set of interchangeable upstream endpoints,
// fixed at startup and never mutated at runtime
type ProviderPool struct {
	providers []url.URL
}

// NewProviderPool returns a ProviderPool over the provided endpoints
func NewProviderPool(providers []url.URL) ProviderPool {
	return ProviderPool{providers: providers}
}

// Random picks a provider uniformly at random from the pool. A provider
// that just failed can be re-selected immediately; the fetcher's backoff
// damps hot-looping on a bad pool.
func (p ProviderPool) Random() url.URL {
	return p.providers[rand.Intn(len(p.providers))]
}

// Size returns the number of providers in the pool
func (p ProviderPool) Size() int {
	return len(p.providers)
}

// OriginFetcher performs timed fetch attempts against randomly selected
// providers, retrying with exponential backoff until an attempt succeeds
// or the attempt budget is exhausted
type OriginFetcher struct {
	pool           ProviderPool
	httpClient     *http.Client
	attemptTimeout time.Duration
	maxAttempts    int
	initialBackoff time.Duration

	*logging.ServiceLogger
}

// NewOriginFetcher returns a new OriginFetcher over the provided pool
func NewOriginFetcher(
	pool ProviderPool,
	attemptTimeout time.Duration,
	maxAttempts int,
	initialBackoff time.Duration,
	logger *logging.ServiceLogger,
) *OriginFetcher {
	return &OriginFetcher{
		pool: pool,
		// per-attempt deadlines come from the request context,
		// the client itself stays unbounded
		httpClient:     &http.Client{},
		attemptTimeout: attemptTimeout,
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
		ServiceLogger:  logger,
	}
}

// Fetch returns a successful response from some provider in the pool,
// or ErrProvidersExhausted once the attempt budget is spent. Each
// attempt gets a fresh provider, a fresh body reader, and its own
// timeout; a timed out, errored, or non-2xx attempt is logged and
// retried, never surfaced to the caller.
func (f *OriginFetcher) Fetch(ctx context.Context, inbound *http.Request, body []byte) (*edgecache.CachedResponse, error) {
	var response *edgecache.CachedResponse

	attempt := func() error {
		provider := f.pool.Random()

		fetched, err := f.fetchOnce(ctx, inbound, body, provider)
		if err != nil {
			// a canceled inbound request ends the loop, a failed
			// attempt does not
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}

			f.Logger.Info().
				Str("provider", provider.Host).
				Str("url", inbound.URL.String()).
				Err(err).
				Msg("origin fetch attempt failed, retrying with a fresh provider")
			return err
		}

		response = fetched
		return nil
	}

	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.InitialInterval = f.initialBackoff

	err := backoff.Retry(attempt, backoff.WithMaxRetries(retryBackoff, uint64(f.maxAttempts-1)))
	if err != nil {
		metrics.ProviderExhaustedTotal.Inc()
		return nil, fmt.Errorf("%w: %v", ErrProvidersExhausted, err)
	}

	return response, nil
}

// fetchOnce performs a single timed attempt against the chosen provider
func (f *OriginFetcher) fetchOnce(ctx context.Context, inbound *http.Request, body []byte, provider url.URL) (*edgecache.CachedResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
	defer cancel()

	targetURL := rewriteURL(inbound.URL, provider)

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	outbound, err := http.NewRequestWithContext(attemptCtx, inbound.Method, targetURL.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	outbound.Header = inbound.Header.Clone()
	outbound.Host = provider.Host

	fetchedAt := time.Now()

	resp, err := f.httpClient.Do(outbound)
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded {
			metrics.ProviderAttemptsTotal.WithLabelValues(provider.Host, "timeout").Inc()
			return nil, fmt.Errorf("provider %s timed out after %v", provider.Host, f.attemptTimeout)
		}

		metrics.ProviderAttemptsTotal.WithLabelValues(provider.Host, "network_error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ProviderAttemptsTotal.WithLabelValues(provider.Host, "network_error").Inc()
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ProviderAttemptsTotal.WithLabelValues(provider.Host, "bad_status").Inc()
		return nil, fmt.Errorf("provider %s returned status %d", provider.Host, resp.StatusCode)
	}

	metrics.ProviderAttemptsTotal.WithLabelValues(provider.Host, "success").Inc()

	f.Logger.Debug().
		Str("provider", provider.Host).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(fetchedAt)).
		Msg("origin fetch attempt succeeded")

	return edgecache.NewCachedResponse(responseBody, resp.Header, resp.StatusCode), nil
}

// rewriteURL rewrites the inbound URL's scheme, host, and path to the
// chosen provider's, preserving the inbound query string. The inbound
// path never reaches the origin, providers serve a fixed endpoint.
func rewriteURL(inbound *url.URL, provider url.URL) url.URL {
	target := *inbound

	target.Scheme = provider.Scheme
	target.Host = provider.Host
	target.Path = provider.Path
	target.RawPath = provider.RawPath

	return target
}
