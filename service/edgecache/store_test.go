package edgecache_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgerelay/rpc-edge-proxy/clients/cache"
	"github.com/edgerelay/rpc-edge-proxy/service/edgecache"
)

func newTestStore(t *testing.T, enabled bool) (*edgecache.EdgeStore, *cache.InMemoryCache) {
	t.Helper()

	backing, err := cache.NewInMemoryCache()
	require.NoError(t, err)

	return edgecache.NewEdgeStore(backing, 60*time.Second, enabled, testLogger(t)), backing
}

func TestUnitTestStoreStampsEdgeCacheControl(t *testing.T) {
	store, backing := newTestStore(t, true)

	response := edgecache.NewCachedResponse([]byte(`{"result":42}`), http.Header{}, http.StatusOK)

	err := store.Store(context.Background(), "edge:/v1/foo", response)
	require.NoError(t, err)

	data, err := backing.Get(context.Background(), "edge:/v1/foo")
	require.NoError(t, err)

	stored, err := edgecache.UnmarshalCachedResponse(data)
	require.NoError(t, err)
	require.Equal(t, "public, max-age=60", stored.Header["Cache-Control"])
	require.Equal(t, []byte(`{"result":42}`), stored.Body)
}

func TestUnitTestStoreRejectsUnsuccessfulResponses(t *testing.T) {
	store, backing := newTestStore(t, true)

	response := edgecache.NewCachedResponse([]byte(`upstream broke`), http.Header{}, http.StatusBadGateway)

	err := store.Store(context.Background(), "edge:/v1/foo", response)
	require.ErrorIs(t, err, edgecache.ErrResponseNotStorable)
	require.Empty(t, backing.Keys())
}

func TestUnitTestLookupMissReturnsNotFound(t *testing.T) {
	store, _ := newTestStore(t, true)

	_, err := store.Lookup(context.Background(), "edge:/no/such/key")
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestUnitTestDisabledStoreRefusesReadsAndWrites(t *testing.T) {
	store, backing := newTestStore(t, false)

	response := edgecache.NewCachedResponse([]byte(`{"result":42}`), http.Header{}, http.StatusOK)

	err := store.Store(context.Background(), "edge:/v1/foo", response)
	require.ErrorIs(t, err, edgecache.ErrCacheDisabled)

	_, err = store.Lookup(context.Background(), "edge:/v1/foo")
	require.ErrorIs(t, err, edgecache.ErrCacheDisabled)

	require.Empty(t, backing.Keys())
}

func TestUnitTestWriteBackQueueCompletesAllAcceptedWrites(t *testing.T) {
	store, backing := newTestStore(t, true)
	queue := edgecache.NewWriteBackQueue(store, testLogger(t))

	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("edge:/v1/foo/%d", i)
		queue.Enqueue(key, edgecache.NewCachedResponse([]byte(`{"result":42}`), http.Header{}, http.StatusOK))
	}

	queue.Stop()

	require.Len(t, backing.Keys(), 500)
}

func TestUnitTestNewCachedResponseDropsConnectionScopedHeaders(t *testing.T) {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Content-Length", "13")
	header.Set("Connection", "keep-alive")

	response := edgecache.NewCachedResponse([]byte(`{"result":42}`), header, http.StatusOK)

	require.Equal(t, "application/json", response.Header["Content-Type"])
	require.NotContains(t, response.Header, "Content-Length")
	require.NotContains(t, response.Header, "Connection")
}
