package edgecache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
)

// SyntheticPathPrefix marks cache keys derived from POST bodies,
// keeping them disjoint from GET request keys
const SyntheticPathPrefix = "/posts"

// SyntheticQueryPath derives the synthetic GET path that identifies a
// POST body in the edge cache: the original request path prefixed with
// "/posts" and suffixed with the lowercase hex sha256 digest of the
// canonical json serialization of the request params. Two bodies with
// deep-equal params map to the same path; differing params map to
// different paths with overwhelming probability.
func SyntheticQueryPath(originalPath string, params []interface{}) (string, error) {
	serializedParams, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("can't serialize request params: %w", err)
	}

	digest := sha256.Sum256(serializedParams)

	return SyntheticPathPrefix + originalPath + hex.EncodeToString(digest[:]), nil
}

// QueryKey derives the cache key for a POST request with the provided
// params, namespaced under the configured cache prefix
func QueryKey(cachePrefix string, originalPath string, params []interface{}) (string, error) {
	syntheticPath, err := SyntheticQueryPath(originalPath, params)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s:%s", cachePrefix, syntheticPath), nil
}

// RequestKey derives the cache key for a GET request, which is cached
// under its own URL
func RequestKey(cachePrefix string, requestURL *url.URL) string {
	return fmt.Sprintf("%s:%s", cachePrefix, requestURL.RequestURI())
}
