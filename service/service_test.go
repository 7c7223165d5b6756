package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgerelay/rpc-edge-proxy/config"
	"github.com/edgerelay/rpc-edge-proxy/service"
)

// newTestProxy builds a full proxy service pipeline backed by the
// in-memory cache and the provided origin, returning the proxy test
// server and a counter of origin hits
func newTestProxy(t *testing.T, originHandler http.HandlerFunc) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var originHits atomic.Int64

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originHits.Add(1)
		originHandler(w, r)
	}))
	t.Cleanup(origin.Close)

	providersRaw := origin.URL
	providers, err := config.ParseRawProviderURLs(providersRaw)
	require.NoError(t, err)

	cfg := config.Config{
		LogLevel:               "ERROR",
		ProxyServicePort:       "0",
		ProvidersRaw:           providersRaw,
		Providers:              providers,
		ProviderTimeout:        time.Second,
		ProviderMaxAttempts:    3,
		ProviderInitialBackoff: time.Millisecond,
		EdgeCacheTTL:           60 * time.Second,
		BrowserCacheTTL:        0,
		CacheEnabled:           true,
		CachePrefix:            "edge",
	}

	proxy, err := service.New(context.Background(), cfg, testLogger(t))
	require.NoError(t, err)

	server := httptest.NewServer(proxy.Handler())
	t.Cleanup(server.Close)

	return server, &originHits
}

func TestE2ETestGetIsCachedAfterFirstFetch(t *testing.T) {
	server, originHits := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":42}`))
	})

	resp, err := http.Get(server.URL + "/v1/foo")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"result":42}`, string(body))
	require.Equal(t, "max-age=0", resp.Header.Get("Cache-Control"))
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, service.CacheMissHeaderValue, resp.Header.Get(service.CacheStatusHeaderKey))
	require.EqualValues(t, 1, originHits.Load())

	// the write-back is deferred, poll until the cache serves a hit
	require.Eventually(t, func() bool {
		resp, err := http.Get(server.URL + "/v1/foo")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		return resp.Header.Get(service.CacheStatusHeaderKey) == service.CacheHitHeaderValue
	}, time.Second, 10*time.Millisecond)

	hitsAfterCached := originHits.Load()

	resp, err = http.Get(server.URL + "/v1/foo")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, service.CacheHitHeaderValue, resp.Header.Get(service.CacheStatusHeaderKey))
	require.Equal(t, hitsAfterCached, originHits.Load(), "a cached get must not fetch from the origin")
}

func TestE2ETestHeadRequestsDoNotPoisonGetCache(t *testing.T) {
	server, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":42}`))
	})

	headResp, err := http.Head(server.URL + "/v1/foo")
	require.NoError(t, err)
	headResp.Body.Close()

	require.Equal(t, http.StatusOK, headResp.StatusCode)
	require.Equal(t, service.CacheBypassHeaderValue, headResp.Header.Get(service.CacheStatusHeaderKey))

	// the body-less HEAD response must never be stored under the key
	// GETs for the same URL are served from
	resp, err := http.Get(server.URL + "/v1/foo")
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	require.Equal(t, service.CacheMissHeaderValue, resp.Header.Get(service.CacheStatusHeaderKey))
	require.JSONEq(t, `{"result":42}`, string(body))

	// once the deferred write lands, the hit still carries the GET body
	require.Eventually(t, func() bool {
		resp, err := http.Get(server.URL + "/v1/foo")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		if resp.Header.Get(service.CacheStatusHeaderKey) != service.CacheHitHeaderValue {
			return false
		}

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"result":42}`, string(body))
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestE2ETestPostPreservesRequestID(t *testing.T) {
	server, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x10"}`))
	})

	post := func(body string) map[string]interface{} {
		resp, err := http.Post(server.URL+"/", "application/json", bytes.NewReader([]byte(body)))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var decoded map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
		return decoded
	}

	first := post(`{"jsonrpc":"2.0","id":"abc","method":"eth_call","params":[{"to":"0x1"},"latest"]}`)
	require.Equal(t, "abc", first["id"], "the response id must echo the request id, not the origin's")
	require.Equal(t, "0x10", first["result"])

	// wait for the deferred store, then confirm a cached response
	// still carries the new caller's id
	require.Eventually(t, func() bool {
		resp, err := http.Post(server.URL+"/", "application/json", bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":"xyz","method":"eth_call","params":[{"to":"0x1"},"latest"]}`)))
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		return resp.Header.Get(service.CacheStatusHeaderKey) == service.CacheHitHeaderValue
	}, time.Second, 10*time.Millisecond)

	cached := post(`{"jsonrpc":"2.0","id":"second-caller","method":"eth_call","params":[{"to":"0x1"},"latest"]}`)
	require.Equal(t, "second-caller", cached["id"])
	require.Equal(t, "0x10", cached["result"])
}

func TestE2ETestBypassMethodsAreNeverCached(t *testing.T) {
	server, originHits := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x100"}`))
	})

	body := `{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber","params":[]}`

	for i := 0; i < 3; i++ {
		resp, err := http.Post(server.URL+"/", "application/json", bytes.NewReader([]byte(body)))
		require.NoError(t, err)
		resp.Body.Close()

		require.Equal(t, service.CacheBypassHeaderValue, resp.Header.Get(service.CacheStatusHeaderKey))
	}

	require.EqualValues(t, 3, originHits.Load(), "every bypassed request must reach the origin")
}

func TestE2ETestMalformedPostBodyIsRejected(t *testing.T) {
	server, originHits := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	resp, err := http.Post(server.URL+"/", "application/json", bytes.NewReader([]byte(`{"jsonrpc":`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Contains(t, decoded, "error")
	require.EqualValues(t, 0, originHits.Load(), "a rejected request must not reach the origin")
}

func TestE2ETestExhaustedProvidersReturnBadGateway(t *testing.T) {
	server, originHits := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	resp, err := http.Get(server.URL + "/v1/foo")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.EqualValues(t, 3, originHits.Load(), "the fetcher must stop after the configured attempt budget")

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Contains(t, decoded, "error")
}

func TestE2ETestCORSPreflight(t *testing.T) {
	server, originHits := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	t.Run("full preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, server.URL+"/", nil)
		require.NoError(t, err)

		req.Header.Set("Origin", "https://dapp.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Custom")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		require.Equal(t, "GET,HEAD,POST,OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
		require.Equal(t, "86400", resp.Header.Get("Access-Control-Max-Age"))
		require.Equal(t, "Content-Type, X-Custom", resp.Header.Get("Access-Control-Allow-Headers"))
	})

	t.Run("capability probe", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, server.URL+"/", nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		require.Equal(t, "GET, HEAD, POST, OPTIONS", resp.Header.Get("Allow"))
		require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})

	require.EqualValues(t, 0, originHits.Load(), "preflight requests must never reach the origin")
}

func TestE2ETestServicecheck(t *testing.T) {
	server, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	resp, err := http.Get(server.URL + "/servicecheck")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestE2ETestHealthcheck(t *testing.T) {
	server, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	resp, err := http.Get(server.URL + "/healthcheck")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnitTestNewWithValidConfigCreatesProxyServiceWithoutError(t *testing.T) {
	providers, err := config.ParseRawProviderURLs("https://rpc-a.example.com/v1")
	require.NoError(t, err)

	cfg := config.Config{
		LogLevel:               "ERROR",
		ProxyServicePort:       "7777",
		ProvidersRaw:           "https://rpc-a.example.com/v1",
		Providers:              providers,
		ProviderTimeout:        time.Second,
		ProviderMaxAttempts:    3,
		ProviderInitialBackoff: time.Millisecond,
		EdgeCacheTTL:           time.Minute,
		CacheEnabled:           true,
		CachePrefix:            "edge",
	}

	_, err = service.New(context.Background(), cfg, testLogger(t))
	require.NoError(t, err)
}
