// package decode provides functions for decoding JSON-RPC request
// envelopes sent to the proxied blockchain provider endpoints and for
// classifying the decoded requests for caching and metric purposes
package decode

import (
	"encoding/json"
	"errors"
	"fmt"

	cosmosmath "cosmossdk.io/math"
)

// These block tags are special strings used to reference blocks in JSON-RPC
// see https://ethereum.org/en/developers/docs/apis/json-rpc/#default-block
const (
	BlockTagLatest    = "latest"
	BlockTagPending   = "pending"
	BlockTagEarliest  = "earliest"
	BlockTagFinalized = "finalized"
	BlockTagSafe      = "safe"
	// "empty" is not in the spec, it is our encoding for requests made with a nil block tag param.
	BlockTagEmpty = "empty"
)

// Errors that might result from decoding parts or the whole of
// a JSON-RPC request
var (
	ErrInvalidJSONBody      = errors.New("request body is not valid json")
	ErrInvalidRPCRequest    = errors.New("request is not a valid json-rpc request")
	ErrNoBlockNumberParam   = errors.New("request method has no block number param")
	ErrInvalidBlockTagParam = errors.New("request has an invalid block tag param")
)

// CacheBypassMethods are JSON-RPC methods whose results change every block
// and so must always be fetched fresh from a provider, never served from
// or written to the edge cache
var CacheBypassMethods = []string{
	"eth_blockNumber",
	"eth_estimateGas",
}

// IsBypassMethod returns true when the provided JSON-RPC method must
// never be read from or written to the edge cache
func IsBypassMethod(method string) bool {
	for _, bypassMethod := range CacheBypassMethods {
		if method == bypassMethod {
			return true
		}
	}
	return false
}

// Mapping of the position of the block number param for a given method name,
// used to enrich proxied request metrics with the requested block height
var MethodNameToBlockNumberParamIndex = map[string]int{
	"eth_getBalance":                          1,
	"eth_getStorageAt":                        2,
	"eth_getTransactionCount":                 1,
	"eth_getBlockTransactionCountByNumber":    0,
	"eth_getUncleCountByBlockNumber":          0,
	"eth_getCode":                             1,
	"eth_getBlockByNumber":                    0,
	"eth_getTransactionByBlockNumberAndIndex": 0,
	"eth_getUncleByBlockNumberAndIndex":       1,
	"eth_call":                                1,
}

// Mapping of string tag values used in the eth api to
// normalized int values that can be stored as the block number
// for the proxied request metric
// see https://ethereum.org/en/developers/docs/apis/json-rpc/#default-block
var BlockTagToNumberCodec = map[string]int64{
	BlockTagLatest:    -1,
	BlockTagPending:   -2,
	BlockTagEarliest:  -3,
	BlockTagFinalized: -4,
	BlockTagSafe:      -5,
	BlockTagEmpty:     -6,
}

// JSONRPCRequestEnvelope wraps expected values present in a request
// to the RPC endpoint of a blockchain node API
// https://www.jsonrpc.org/specification
type JSONRPCRequestEnvelope struct {
	JSONRPCVersion string `json:"jsonrpc"`
	// ID is kept as raw json so that string, number and null ids
	// round-trip back to the client byte for byte
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []interface{}   `json:"params"`
}

// DecodeRequestEnvelope attempts to decode the provided bytes into
// a JSONRPCRequestEnvelope for use by the service to derive cache keys
// and apply the cache bypass policy, returning the decoded request
// and error (if any)
func DecodeRequestEnvelope(body []byte) (*JSONRPCRequestEnvelope, error) {
	var request JSONRPCRequestEnvelope
	if err := json.Unmarshal(body, &request); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJSONBody, err)
	}

	if request.Method == "" {
		return nil, fmt.Errorf("%w: missing method field", ErrInvalidRPCRequest)
	}

	return &request, nil
}

// HasBlockNumberParam checks if the request method carries a block number param.
// If it does, one can safely call ParseBlockNumberFromParams on the request.
func (r *JSONRPCRequestEnvelope) HasBlockNumberParam() bool {
	paramIndex, exists := MethodNameToBlockNumberParamIndex[r.Method]
	return exists && paramIndex < len(r.Params)
}

// ParseBlockNumberFromParams parses the block number associated with a request
// for use in proxied request metrics, normalizing block tags through
// BlockTagToNumberCodec, returning the block number and error (if any)
func ParseBlockNumberFromParams(methodName string, params []interface{}) (int64, error) {
	paramIndex, exists := MethodNameToBlockNumberParamIndex[methodName]

	if !exists || paramIndex >= len(params) {
		return 0, ErrNoBlockNumberParam
	}

	// capture requests made with empty block tag params
	if params[paramIndex] == nil {
		return BlockTagToNumberCodec[BlockTagEmpty], nil
	}

	tag, isString := params[paramIndex].(string)

	if !isString {
		return 0, fmt.Errorf("%w: error decoding block number param from params %+v at index %d", ErrInvalidBlockTagParam, params, paramIndex)
	}

	blockNumber, exists := BlockTagToNumberCodec[tag]

	if !exists {
		parsed, valid := cosmosmath.NewIntFromString(tag)
		if !valid {
			return 0, fmt.Errorf("%w: unable to parse tag %s to integer", ErrInvalidBlockTagParam, tag)
		}

		blockNumber = parsed.Int64()
	}

	return blockNumber, nil
}
