// Package rpc implements a newline-delimited JSON-RPC 2.0 server that speaks
// the MCP lifecycle (initialize, tools/list, tools/call) over a duplex stream.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Error codes. The first five are defined by JSON-RPC 2.0; the remaining ones
// are application codes in the implementation-defined server error range.
const (
	CodeParseError     = jsonrpc.CodeParseError
	CodeInvalidRequest = jsonrpc.CodeInvalidRequest
	CodeMethodNotFound = jsonrpc.CodeMethodNotFound
	CodeInvalidParams  = jsonrpc.CodeInvalidParams
	CodeInternalError  = jsonrpc.CodeInternalError

	// CodeUnauthorized reports that the broker holds no usable credential.
	CodeUnauthorized = -32001
	// CodeNotInitialized reports a call made before initialize completed.
	CodeNotInitialized = -32002
)

const (
	methodInitialize    = "initialize"
	methodPing          = "ping"
	methodListTools     = "tools/list"
	methodCallTool      = "tools/call"
	methodListPrompts   = "prompts/list"
	methodListResources = "resources/list"

	notificationInitialized = "notifications/initialized"
	notificationCancelled   = "notifications/cancelled"
)

// DefaultProtocolVersion is advertised when no protocol version is configured.
const DefaultProtocolVersion = "2025-06-18"

// NewError returns a JSON-RPC error carrying code.
func NewError(code int64, format string, args ...any) *jsonrpc.Error {
	return &jsonrpc.Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode reports the JSON-RPC code carried by err, or CodeInternalError
// when err carries none.
func ErrorCode(err error) int64 {
	var wireErr *jsonrpc.Error
	if errors.As(err, &wireErr) {
		return wireErr.Code
	}
	return CodeInternalError
}

// wireResponse is the on-the-wire form of a response. Unlike the SDK encoder
// it always carries "id", which is null when the request id is unknown.
type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

func toWireError(err error) *jsonrpc.Error {
	var wireErr *jsonrpc.Error
	if errors.As(err, &wireErr) {
		return wireErr
	}
	return &jsonrpc.Error{Code: CodeInternalError, Message: err.Error()}
}

// encodeResponse renders one newline-terminated response frame.
func encodeResponse(id jsonrpc.ID, result any, rerr error) []byte {
	resp := wireResponse{JSONRPC: "2.0", ID: id.Raw()}
	if rerr != nil {
		resp.Error = toWireError(rerr)
	} else {
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = NewError(CodeInternalError, "marshaling result failed: %v", err)
		} else {
			resp.Result = raw
		}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		// Only reachable with a malformed error Data payload.
		data, _ = json.Marshal(wireResponse{
			JSONRPC: "2.0",
			ID:      id.Raw(),
			Error:   NewError(CodeInternalError, "marshaling response failed"),
		})
	}
	return append(data, '\n')
}

// recoverID extracts a usable id from a frame that failed JSON-RPC decoding.
func recoverID(raw []byte) jsonrpc.ID {
	var envelope struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return jsonrpc.ID{}
	}
	id, err := jsonrpc.MakeID(envelope.ID)
	if err != nil {
		return jsonrpc.ID{}
	}
	return id
}

var leadingID = regexp.MustCompile(`"id"\s*:\s*("(?:[^"\\]|\\.)*"|-?[0-9]+)`)

// recoverPrefixID finds the id of a frame of which only the first bytes
// were kept. The first "id" member in the prefix wins.
func recoverPrefixID(prefix []byte) jsonrpc.ID {
	m := leadingID.FindSubmatch(prefix)
	if m == nil {
		return jsonrpc.ID{}
	}
	var v any
	if err := json.Unmarshal(m[1], &v); err != nil {
		return jsonrpc.ID{}
	}
	id, err := jsonrpc.MakeID(v)
	if err != nil {
		return jsonrpc.ID{}
	}
	return id
}
