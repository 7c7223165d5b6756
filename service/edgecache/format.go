package edgecache

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/edgerelay/rpc-edge-proxy/logging"
)

// Formatter normalizes every outbound response: the browser
// cache-control header always replaces whatever the origin or the edge
// cache supplied, CORS headers are always permissive, and request
// scoped JSON fields (the RPC id) can be spliced back into the body.
type Formatter struct {
	browserTTL time.Duration

	*logging.ServiceLogger
}

// NewFormatter returns a Formatter stamping responses with the
// provided browser TTL
func NewFormatter(browserTTL time.Duration, logger *logging.ServiceLogger) *Formatter {
	return &Formatter{
		browserTTL:    browserTTL,
		ServiceLogger: logger,
	}
}

// MergeFields shallow-merges the extra fields on top of the provided
// JSON object body, extra fields winning on key collision, and returns
// the re-serialized body. A body that is not a JSON object is passed
// through unchanged.
func MergeFields(body []byte, extra map[string]json.RawMessage) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return body, fmt.Errorf("can't parse response body as json object: %w", err)
	}

	for name, value := range extra {
		fields[name] = value
	}

	return json.Marshal(fields)
}

// WriteResponse writes the provided response to the client with the
// formatter's header contract applied. If extra fields are supplied
// they are merged into the JSON body before writing.
func (f *Formatter) WriteResponse(w http.ResponseWriter, response *CachedResponse, extra map[string]json.RawMessage) {
	body := response.Body

	if len(extra) > 0 {
		merged, err := MergeFields(body, extra)
		if err != nil {
			f.Logger.Error().
				Err(err).
				Msg("can't splice extra fields into response body, passing body through unchanged")
		} else {
			body = merged
		}
	}

	for name, value := range response.Header {
		w.Header().Set(name, value)
	}

	// the client never sees the edge cache-control value
	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", int(f.browserTTL.Seconds())))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Method", "*")
	w.Header().Set("Access-Control-Allow-Headers", "*")

	status := response.Status
	if status == 0 {
		status = http.StatusOK
	}

	w.WriteHeader(status)

	if _, err := w.Write(body); err != nil {
		f.Logger.Error().
			Err(err).
			Msg("error writing formatted response to client")
	}
}
