package coordinator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_ContentIsNotStamped(t *testing.T) {
	p := &pendingResponse{
		originalID: json.RawMessage(`1`),
		expected:   map[string]struct{}{"srv1": {}},
		received: map[string]json.RawMessage{
			"srv1": json.RawMessage(`{"jsonrpc":"2.0","id":"x","result":{"content":[{"type":"text","text":"ok"}]}}`),
		},
	}

	raw, err := aggregate(p)
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	result := frame["result"].(map[string]any)
	content := result["content"].([]any)
	require.Len(t, content, 1)

	item := content[0].(map[string]any)
	assert.Equal(t, "ok", item["text"])
	_, hasServerID := item["server_id"]
	assert.False(t, hasServerID, "content elements must not be stamped with server_id")
}

func TestAggregate_ToolsAreStamped(t *testing.T) {
	p := &pendingResponse{
		originalID: json.RawMessage(`1`),
		expected:   map[string]struct{}{"srv1": {}},
		received: map[string]json.RawMessage{
			"srv1": json.RawMessage(`{"jsonrpc":"2.0","id":"x","result":{"tools":[{"name":"calc"}]}}`),
		},
	}

	raw, err := aggregate(p)
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	result := frame["result"].(map[string]any)
	tools := result["tools"].([]any)
	require.Len(t, tools, 1)

	item := tools[0].(map[string]any)
	assert.Equal(t, "calc", item["name"])
	assert.Equal(t, "srv1", item["server_id"])
}
