package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/edgerelay/rpc-edge-proxy/decode"
	"github.com/edgerelay/rpc-edge-proxy/logging"
	"github.com/edgerelay/rpc-edge-proxy/service/edgecache"
)

const (
	CacheStatusHeaderKey     = "X-Edge-Proxy-Cache-Status"
	CacheHitHeaderValue      = "HIT"
	CacheMissHeaderValue     = "MISS"
	CacheBypassHeaderValue   = "BYPASS"
	AllowedMethodsAllowValue = "GET, HEAD, POST, OPTIONS"

	jsonRPCParseErrorCode    = -32700
	jsonRPCInternalErrorCode = -32603
)

// createRootRequestHandler creates the single entry point handler for
// proxied traffic, dispatching by http method: OPTIONS to the CORS
// preflight handler, POST to the body-keyed cache pipeline, GET to the
// URL-keyed cache pipeline, and everything else straight to the origin
func createRootRequestHandler(service *ProxyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodOptions:
			service.handlePreflight(w, r)
		case http.MethodPost:
			service.handlePost(w, r)
		default:
			service.handleGet(w, r)
		}
	}
}

// handlePreflight answers OPTIONS requests. A request carrying the
// three CORS preflight headers gets a permissive preflight response
// with the requested headers echoed back; anything else gets a plain
// capability probe response.
func (p *ProxyService) handlePreflight(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	requestMethod := r.Header.Get("Access-Control-Request-Method")
	requestHeaders := r.Header.Get("Access-Control-Request-Headers")

	if origin != "" && requestMethod != "" && requestHeaders != "" {
		p.Logger.Debug().
			Str("origin", origin).
			Str("requested_headers", requestHeaders).
			Msg("answering cors preflight request")

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,HEAD,POST,OPTIONS")
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Allow", AllowedMethodsAllowValue)
	w.WriteHeader(http.StatusNoContent)
}

// handleGet serves GET requests cached under their own URL. Any other
// non-POST, non-OPTIONS method is proxied without touching the cache:
// a HEAD response has no body, and storing it under the shared URL key
// would blank out the entry GETs are served from.
func (p *ProxyService) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response, err := p.fetcher.Fetch(r.Context(), r, nil)
		if err != nil {
			p.writeProviderFailure(w, nil, err)
			return
		}

		w.Header().Set(CacheStatusHeaderKey, CacheBypassHeaderValue)
		p.formatter.WriteResponse(w, response, nil)
		return
	}

	key := edgecache.RequestKey(p.config.CachePrefix, r.URL)

	if cached := p.lookup(r.Context(), key); cached != nil {
		w.Header().Set(CacheStatusHeaderKey, CacheHitHeaderValue)
		p.formatter.WriteResponse(w, cached, nil)
		return
	}

	response, err := p.fetcher.Fetch(r.Context(), r, nil)
	if err != nil {
		p.writeProviderFailure(w, nil, err)
		return
	}

	p.scheduleStore(key, response)

	w.Header().Set(CacheStatusHeaderKey, CacheMissHeaderValue)
	p.formatter.WriteResponse(w, response, nil)
}

// handlePost serves JSON-RPC POST requests, cached under the key
// derived from the request params unless the RPC method is in the
// bypass set. The request id is spliced back into every response body
// because cached bodies are shared across callers with different ids.
func (p *ProxyService) handlePost(w http.ResponseWriter, r *http.Request) {
	decodedRequest, ok := r.Context().Value(DecodedRequestContextKey).(*decode.JSONRPCRequestEnvelope)
	if !ok {
		p.Logger.Error().Msg("can't find decoded request envelope in request context")
		writeJSONRPCError(w, p.ServiceLogger, nil, jsonRPCParseErrorCode, "invalid request body", http.StatusBadRequest)
		return
	}

	rawBody, _ := r.Context().Value(RawRequestBodyContextKey).([]byte)

	extra := map[string]json.RawMessage{
		"id": requestID(decodedRequest),
	}

	if decode.IsBypassMethod(decodedRequest.Method) {
		p.Logger.Debug().
			Str("rpc_method", decodedRequest.Method).
			Msg("bypassing edge cache for time-sensitive method")

		response, err := p.fetcher.Fetch(r.Context(), r, rawBody)
		if err != nil {
			p.writeProviderFailure(w, decodedRequest, err)
			return
		}

		w.Header().Set(CacheStatusHeaderKey, CacheBypassHeaderValue)
		p.formatter.WriteResponse(w, response, extra)
		return
	}

	key, err := edgecache.QueryKey(p.config.CachePrefix, r.URL.Path, decodedRequest.Params)
	if err != nil {
		p.Logger.Error().
			Err(err).
			Msg("can't derive cache key for request params")
		writeJSONRPCError(w, p.ServiceLogger, decodedRequest, jsonRPCInternalErrorCode, "internal error", http.StatusInternalServerError)
		return
	}

	if cached := p.lookup(r.Context(), key); cached != nil {
		w.Header().Set(CacheStatusHeaderKey, CacheHitHeaderValue)
		p.formatter.WriteResponse(w, cached, extra)
		return
	}

	response, err := p.fetcher.Fetch(r.Context(), r, rawBody)
	if err != nil {
		p.writeProviderFailure(w, decodedRequest, err)
		return
	}

	p.scheduleStore(key, response)

	w.Header().Set(CacheStatusHeaderKey, CacheMissHeaderValue)
	p.formatter.WriteResponse(w, response, extra)
}

// lookup reads through the edge store, treating every failure mode,
// disabled cache included, as a miss
func (p *ProxyService) lookup(ctx context.Context, key string) *edgecache.CachedResponse {
	cached, err := p.edgeStore.Lookup(ctx, key)
	if err != nil {
		return nil
	}
	return cached
}

// scheduleStore enqueues a deferred write of a successful origin
// response; failures and non-storable responses are the queue's concern
func (p *ProxyService) scheduleStore(key string, response *edgecache.CachedResponse) {
	if !p.edgeStore.IsEnabled() || !response.IsSuccess() {
		return
	}

	p.writeBack.Enqueue(key, response)
}

// writeProviderFailure maps a failed failover loop to a terminal
// client-visible error response
func (p *ProxyService) writeProviderFailure(w http.ResponseWriter, decodedRequest *decode.JSONRPCRequestEnvelope, err error) {
	p.Logger.Error().
		Err(err).
		Msg("request failed every provider attempt")

	if errors.Is(err, ErrProvidersExhausted) {
		writeJSONRPCError(w, p.ServiceLogger, decodedRequest, jsonRPCInternalErrorCode, "all providers exhausted", http.StatusBadGateway)
		return
	}

	writeJSONRPCError(w, p.ServiceLogger, decodedRequest, jsonRPCInternalErrorCode, "internal error", http.StatusInternalServerError)
}

// requestID returns the raw request id to echo back to the client,
// normalizing an absent id to json null
func requestID(decodedRequest *decode.JSONRPCRequestEnvelope) json.RawMessage {
	if decodedRequest == nil || len(decodedRequest.ID) == 0 {
		return json.RawMessage("null")
	}
	return decodedRequest.ID
}

// writeJSONRPCError writes a json-rpc error envelope with the provided
// code and message, echoing the request id when one was decoded
func writeJSONRPCError(w http.ResponseWriter, serviceLogger *logging.ServiceLogger, decodedRequest *decode.JSONRPCRequestEnvelope, code int, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)

	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      requestID(decodedRequest),
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	}

	if err := json.NewEncoder(w).Encode(body); err != nil {
		serviceLogger.Error().
			Err(err).
			Msg("error encoding json-rpc error response")
	}
}

// createHealthcheckHandler creates a health check handler function that
// will respond 200 ok if the proxy service is able to connect to
// its dependencies and functioning as expected
func createHealthcheckHandler(service *ProxyService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var combinedErrors error

		service.Debug().Msg("/healthcheck called")

		err := service.db.HealthCheck()
		if err != nil {
			combinedErrors = errors.Join(combinedErrors, fmt.Errorf("proxy service unable to connect to metric database"))
		}

		if service.edgeStore.IsEnabled() {
			err := service.edgeStore.Healthcheck(r.Context())
			if err != nil {
				service.Logger.Error().
					Err(err).
					Msg("cache healthcheck failed")

				combinedErrors = errors.Join(combinedErrors, fmt.Errorf("proxy service unable to connect to cache: %v", err))
			}
		}

		if combinedErrors != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(combinedErrors.Error()))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("proxy service is healthy"))
	}
}

// createServicecheckHandler creates a service check handler function that
// will respond 200 ok if the proxy service is running
func createServicecheckHandler(service *ProxyService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		service.Debug().Msg("/servicecheck called")

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("proxy service is in service"))
	}
}
