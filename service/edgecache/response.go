package edgecache

import (
	"encoding/json"
	"net/http"
)

// CachedResponse is the value stored in the edge cache for every
// cacheable request: the origin response body, a flattened header map,
// and the origin status. Entries are immutable once written; new writes
// overwrite, never merge.
type CachedResponse struct {
	Body   []byte            `json:"body"`
	Header map[string]string `json:"header"`
	Status int               `json:"status"`
}

// headers that must not be replayed from the cache: the formatter may
// change the body length, and connection-scoped headers never apply to
// a different connection
var uncacheableHeaders = map[string]struct{}{
	"Content-Length":    {},
	"Transfer-Encoding": {},
	"Connection":        {},
	"Keep-Alive":        {},
}

// NewCachedResponse flattens an origin response into a CachedResponse
func NewCachedResponse(body []byte, header http.Header, status int) *CachedResponse {
	headerMap := make(map[string]string, len(header))
	for name := range header {
		if _, skip := uncacheableHeaders[http.CanonicalHeaderKey(name)]; skip {
			continue
		}
		headerMap[name] = header.Get(name)
	}

	return &CachedResponse{
		Body:   body,
		Header: headerMap,
		Status: status,
	}
}

// IsSuccess reports whether the origin response carried a success
// status; only successful responses are written to the edge cache
func (r *CachedResponse) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}

// Marshal marshals a CachedResponse for storage in the cache backend
func (r *CachedResponse) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalCachedResponse unmarshals cache backend bytes into a
// CachedResponse and error (if any)
func UnmarshalCachedResponse(data []byte) (*CachedResponse, error) {
	var response CachedResponse
	err := json.Unmarshal(data, &response)
	return &response, err
}
