package mcp

import (
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// EncodeMessage serializes a JSON-RPC message to its wire format, delegating
// to the SDK's jsonrpc package.
func EncodeMessage(msg jsonrpc.Message) ([]byte, error) {
	return jsonrpc.EncodeMessage(msg)
}

// DecodeMessage deserializes wire-format bytes into a *jsonrpc.Request or
// *jsonrpc.Response, delegating to the SDK's jsonrpc package.
func DecodeMessage(data []byte) (jsonrpc.Message, error) {
	return jsonrpc.DecodeMessage(data)
}

// WrapEnvelope decodes raw JSON-RPC bytes and wraps them in an Envelope
// carrying dir and the current timestamp. If decoding fails, err is
// returned and the Envelope is nil; callers that still want to preserve the
// raw bytes for passthrough should construct an Envelope manually with
// Decoded left nil.
func WrapEnvelope(raw []byte, dir Direction) (*Envelope, error) {
	decoded, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Raw:        raw,
		Direction:  dir,
		Decoded:    decoded,
		ReceivedAt: time.Now(),
	}, nil
}
