// Package edgecache implements the edge cache layer of the proxy:
// deriving stable cache keys from JSON-RPC request params, reading and
// writing cached responses through a cache.Cache backend, scheduling
// write-backs so they never delay the client response, and formatting
// outbound responses with the browser cache-control and CORS headers.
package edgecache
