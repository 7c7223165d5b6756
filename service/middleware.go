package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/negroni"

	"github.com/edgerelay/rpc-edge-proxy/clients/database"
	"github.com/edgerelay/rpc-edge-proxy/decode"
	"github.com/edgerelay/rpc-edge-proxy/logging"
	"github.com/edgerelay/rpc-edge-proxy/metrics"
)

const (
	DecodedRequestContextKey = "X-EDGE-PROXY-DECODED-REQUEST-BODY"
	RawRequestBodyContextKey = "X-EDGE-PROXY-RAW-REQUEST-BODY"
	RequestIDContextKey      = "X-EDGE-PROXY-REQUEST-ID"

	RequestIDHeaderKey = "X-Request-Id"

	// upper bound on accepted request body size
	maxRequestBodyBytes = 1 << 20
)

// createRequestIDMiddleware returns a handler that tags every request
// with a request id, echoed back on the response and attached to the
// request context for log correlation
func createRequestIDMiddleware(next http.HandlerFunc, serviceLogger *logging.ServiceLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeaderKey)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeaderKey, requestID)

		serviceLogger.Trace().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Msg("request received")

		requestIDContext := context.WithValue(r.Context(), RequestIDContextKey, requestID)

		next.ServeHTTP(w, r.WithContext(requestIDContext))
	}
}

// createRequestDecodingMiddleware returns a handler that reads and
// decodes the body of POST requests, repopulating the body for
// downstream consumers and adding the decoded JSON-RPC envelope and the
// raw body bytes to the request context. A POST body that is not a
// valid JSON-RPC request is rejected with a 400 parse error response
// instead of being forwarded.
func createRequestDecodingMiddleware(next http.HandlerFunc, serviceLogger *logging.ServiceLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		var rawBody []byte

		if r.Body != nil {
			var err error

			rawBody, err = io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
			if err != nil {
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}

			// repopulate the request body for the ultimate consumer of this request
			r.Body = io.NopCloser(bytes.NewReader(rawBody))
		}

		decodedRequest, err := decode.DecodeRequestEnvelope(rawBody)
		if err != nil {
			serviceLogger.Debug().
				Err(err).
				Str("body", string(rawBody)).
				Msg("rejecting request with undecodable body")

			writeJSONRPCError(w, serviceLogger, nil, jsonRPCParseErrorCode, fmt.Sprintf("invalid request body: %s", err), http.StatusBadRequest)
			return
		}

		decodedContext := context.WithValue(r.Context(), DecodedRequestContextKey, decodedRequest)
		decodedContext = context.WithValue(decodedContext, RawRequestBodyContextKey, rawBody)

		next.ServeHTTP(w, r.WithContext(decodedContext))
	}
}

// createMetricsMiddleware returns a handler that wraps the response
// writer to observe the final status, records prometheus metrics for
// the request, and saves a proxied request metric out of band of the
// request-response cycle
func createMetricsMiddleware(next http.HandlerFunc, db database.MetricsDatabase, serviceLogger *logging.ServiceLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestAt := time.Now()

		lrw := negroni.NewResponseWriter(w)

		next.ServeHTTP(lrw, r)

		requestRoundtrip := time.Since(requestAt)

		status := lrw.Status()
		if status == 0 {
			status = http.StatusOK
		}

		cacheStatus := lrw.Header().Get(CacheStatusHeaderKey)
		if cacheStatus == "" {
			cacheStatus = "none"
		}

		metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(status), cacheStatus).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method).Observe(requestRoundtrip.Seconds())

		metric := &database.ProxiedRequestMetric{
			MethodName:                  r.Method,
			ResponseLatencyMilliseconds: float64(requestRoundtrip.Milliseconds()),
			Hostname:                    r.Host,
			RequestIP:                   r.RemoteAddr,
			ResponseStatus:              status,
			CacheHit:                    cacheStatus == CacheHitHeaderValue,
			RequestTime:                 requestAt,
		}

		if decodedRequest, ok := r.Context().Value(DecodedRequestContextKey).(*decode.JSONRPCRequestEnvelope); ok {
			metric.MethodName = decodedRequest.Method

			if decodedRequest.HasBlockNumberParam() {
				if blockNumber, err := decode.ParseBlockNumberFromParams(decodedRequest.Method, decodedRequest.Params); err == nil {
					metric.BlockNumber = &blockNumber
				}
			}
		}

		// persisting the metric never delays the response
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := db.SaveProxiedRequestMetric(ctx, metric); err != nil {
				serviceLogger.Error().
					Err(err).
					Msg("can't save proxied request metric")
			}
		}()
	}
}
