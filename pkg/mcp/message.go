// Package mcp provides JSON-RPC 2.0 envelope types and wire-format helpers
// shared between the WebSocket acceptor and the request coordinator.
package mcp

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Direction indicates which population of connections an Envelope
// originated from.
type Direction int

const (
	// FromCaller indicates a message received from a caller (robot) client.
	FromCaller Direction = iota
	// FromToolServer indicates a message received from a tool server.
	FromToolServer
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case FromCaller:
		return "caller->router"
	case FromToolServer:
		return "server->router"
	default:
		return "unknown"
	}
}

// Envelope wraps a decoded JSON-RPC message with router metadata. It keeps
// both the raw bytes (for passthrough and for extracting the id, which the
// SDK's jsonrpc.ID type does not round-trip through interface{} reliably)
// and the decoded message (for method/shape inspection).
type Envelope struct {
	// Raw contains the original bytes of the message.
	Raw []byte

	// Direction records which side the message arrived from.
	Direction Direction

	// Decoded is the parsed JSON-RPC message. Concrete type is either
	// *jsonrpc.Request or *jsonrpc.Response. Nil if parsing failed.
	Decoded jsonrpc.Message

	// ReceivedAt records when the router read this message off the wire.
	ReceivedAt time.Time
}

// IsRequest returns true if the message is a JSON-RPC request.
func (e *Envelope) IsRequest() bool {
	if e.Decoded == nil {
		return false
	}
	_, ok := e.Decoded.(*jsonrpc.Request)
	return ok
}

// IsResponse returns true if the message is a JSON-RPC response.
func (e *Envelope) IsResponse() bool {
	if e.Decoded == nil {
		return false
	}
	_, ok := e.Decoded.(*jsonrpc.Response)
	return ok
}

// Method returns the method name if this is a request, empty string
// otherwise.
func (e *Envelope) Method() string {
	req, ok := e.Decoded.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return req.Method
}

// IsToolCall returns true if this is a tools/call request.
func (e *Envelope) IsToolCall() bool {
	return e.Method() == "tools/call"
}

// Request returns the underlying Request, or nil if this is not a request.
func (e *Envelope) Request() *jsonrpc.Request {
	req, _ := e.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying Response, or nil if this is not a
// response.
func (e *Envelope) Response() *jsonrpc.Response {
	resp, _ := e.Decoded.(*jsonrpc.Response)
	return resp
}

// RawID extracts the "id" field from the raw message bytes as
// json.RawMessage, preserving its original JSON type (number, string, or
// absent). The SDK's jsonrpc.ID type doesn't marshal correctly through
// interface{}, so the router always reads ids off the raw bytes instead of
// trusting the decoded form.
func (e *Envelope) RawID() json.RawMessage {
	return ExtractID(e.Raw)
}

// ToolName returns params.name for a tools/call request, or ("", false) if
// this is not a tools/call request or the field is missing.
func (e *Envelope) ToolName() (string, bool) {
	if !e.IsToolCall() {
		return "", false
	}
	req := e.Request()
	if req == nil {
		return "", false
	}
	return ExtractParamName(req.Params)
}
