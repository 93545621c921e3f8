package coordinator

import (
	"encoding/json"

	"github.com/sentinel-gate/mcp-endpoint/pkg/mcp"
)

// aggregate implements the fan-in aggregation rules: when every expected
// server has responded, the individual per-server frames are combined into
// one reply addressed to the original caller id.
//
//   - If any response carries result.tools, flatten those arrays, each
//     descriptor stamped with its server_id.
//   - Else if any response carries result.content, flatten those arrays
//     unchanged (content elements are not stamped).
//   - Else, wrap each response's result (or error, stamped with server_id)
//     into a generic "responses" list.
func aggregate(p *pendingResponse) ([]byte, error) {
	hasTools := false
	hasContent := false
	for _, raw := range p.received {
		if mcp.HasResultKey(raw, "tools") {
			hasTools = true
		}
		if mcp.HasResultKey(raw, "content") {
			hasContent = true
		}
	}

	var result map[string]any
	switch {
	case hasTools:
		result = map[string]any{"tools": flattenStamped(p.received, "tools")}
	case hasContent:
		result = map[string]any{"content": flatten(p.received, "content")}
	default:
		result = map[string]any{"responses": genericResponses(p.received)}
	}
	result["total_servers"] = len(p.expected)
	result["responded_servers"] = len(p.received)

	return mcp.ResultFrame(p.originalID, result)
}

// flattenStamped flattens result[key] arrays across every response that has
// one, stamping each element with the originating server_id.
func flattenStamped(received map[string]json.RawMessage, key string) []json.RawMessage {
	var out []json.RawMessage
	for serverID, raw := range received {
		for _, entry := range mcp.ResultArray(raw, key) {
			out = append(out, stampServerID(entry, serverID))
		}
	}
	return out
}

// flatten flattens result[key] arrays across every response that has one,
// leaving each element untouched.
func flatten(received map[string]json.RawMessage, key string) []json.RawMessage {
	var out []json.RawMessage
	for _, raw := range received {
		out = append(out, mcp.ResultArray(raw, key)...)
	}
	return out
}

// genericResponses wraps every response's result (or error) into one entry
// per server, stamped with server_id.
func genericResponses(received map[string]json.RawMessage) []json.RawMessage {
	var out []json.RawMessage
	for serverID, raw := range received {
		if errObj := mcp.ErrorField(raw); len(errObj) > 0 {
			out = append(out, stampServerID(wrapField("error", errObj), serverID))
			continue
		}
		if result := mcp.ResultField(raw); len(result) > 0 {
			out = append(out, stampServerID(result, serverID))
			continue
		}
		out = append(out, stampServerID(json.RawMessage(`{}`), serverID))
	}
	return out
}

// stampServerID adds a "server_id" field to a JSON object, leaving
// non-object values (or malformed JSON) untouched.
func stampServerID(raw json.RawMessage, serverID string) json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	if m == nil {
		m = make(map[string]json.RawMessage)
	}
	stamped, err := json.Marshal(serverID)
	if err != nil {
		return raw
	}
	m["server_id"] = stamped
	out, err := json.Marshal(m)
	if err != nil {
		return raw
	}
	return out
}

// wrapField wraps raw under the given key, e.g. {"error": raw}.
func wrapField(key string, raw json.RawMessage) json.RawMessage {
	out, err := json.Marshal(map[string]json.RawMessage{key: raw})
	if err != nil {
		return raw
	}
	return out
}
