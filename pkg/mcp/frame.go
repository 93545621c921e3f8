package mcp

import "encoding/json"

// rawFrame is the generic shape shared by every JSON-RPC 2.0 envelope the
// router builds or inspects. Fields are left as json.RawMessage so partial
// frames (errors, notifications, results of unknown shape) round-trip
// without forcing a concrete Go type on every possible payload.
type rawFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// ExtractID reads the "id" field out of raw JSON-RPC bytes, preserving its
// original JSON type. Returns nil if absent, null, or the bytes don't parse.
func ExtractID(raw []byte) json.RawMessage {
	var f rawFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	if len(f.ID) == 0 || string(f.ID) == "null" {
		return nil
	}
	return f.ID
}

// ExtractMethod reads the "method" field out of raw JSON-RPC bytes.
func ExtractMethod(raw []byte) string {
	var f rawFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return ""
	}
	return f.Method
}

// ExtractParamName reads params.name out of a tools/call request's raw
// params bytes.
func ExtractParamName(params json.RawMessage) (string, bool) {
	if len(params) == 0 {
		return "", false
	}
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return "", false
	}
	return p.Name, true
}

// WithID returns a copy of raw with its top-level "id" field replaced by id.
func WithID(raw []byte, id json.RawMessage) ([]byte, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	generic["id"] = id
	return json.Marshal(generic)
}

// ResultField reads the "result" field of a raw JSON-RPC response.
func ResultField(raw []byte) json.RawMessage {
	var f rawFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return f.Result
}

// ErrorField reads the "error" field of a raw JSON-RPC response.
func ErrorField(raw []byte) json.RawMessage {
	var f rawFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return f.Error
}

// HasResultKey reports whether raw's "result" object contains key.
func HasResultKey(raw []byte, key string) bool {
	result := ResultField(raw)
	if len(result) == 0 {
		return false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(result, &m); err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}

// ResultArray reads result[key] of raw as a JSON array of raw elements.
func ResultArray(raw []byte, key string) []json.RawMessage {
	result := ResultField(raw)
	if len(result) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(result, &m); err != nil {
		return nil
	}
	field, ok := m[key]
	if !ok {
		return nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(field, &arr); err != nil {
		return nil
	}
	return arr
}

// ErrorFrame builds a JSON-RPC error response frame.
func ErrorFrame(id json.RawMessage, code int, message string, data any) ([]byte, error) {
	type errObj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    any    `json:"data,omitempty"`
	}
	frame := struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Error   errObj          `json:"error"`
	}{
		JSONRPC: "2.0",
		ID:      id,
		Error:   errObj{Code: code, Message: message, Data: data},
	}
	return json.Marshal(frame)
}

// ResultFrame builds a JSON-RPC success response frame with the given
// result object.
func ResultFrame(id json.RawMessage, result any) ([]byte, error) {
	frame := struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  any             `json:"result"`
	}{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	return json.Marshal(frame)
}

// Error code registry (JSON-RPC 2.0 reserved range plus the router's
// implementation-defined server-error codes).
const (
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternalError   = -32603
	CodeToolNotConnected = -32001
	CodeForwardFailed    = -32002
)
