package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractID_Number(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call"}`)
	assert.JSONEq(t, "7", string(ExtractID(raw)))
}

func TestExtractID_Notification(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","method":"notify"}`)
	assert.Nil(t, ExtractID(raw))
}

func TestExtractParamName(t *testing.T) {
	name, ok := ExtractParamName(json.RawMessage(`{"name":"calc","arguments":{"x":1}}`))
	require.True(t, ok)
	assert.Equal(t, "calc", name)
}

func TestExtractParamName_Missing(t *testing.T) {
	_, ok := ExtractParamName(json.RawMessage(`{"arguments":{}}`))
	assert.False(t, ok)
}

func TestWithID_ReplacesID(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call"}`)
	out, err := WithID(raw, json.RawMessage(`"uuid_n_7"`))
	require.NoError(t, err)
	assert.Equal(t, `"uuid_n_7"`, string(ExtractID(out)))
	assert.Equal(t, "tools/call", ExtractMethod(out))
}

func TestHasResultKey_And_ResultArray(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":1,"result":{"tools":[{"name":"a"},{"name":"b"}]}}`)
	assert.True(t, HasResultKey(raw, "tools"))
	assert.False(t, HasResultKey(raw, "content"))

	arr := ResultArray(raw, "tools")
	require.Len(t, arr, 2)
	assert.JSONEq(t, `{"name":"a"}`, string(arr[0]))
}

func TestErrorFrame(t *testing.T) {
	raw, err := ErrorFrame(json.RawMessage("5"), CodeMethodNotFound, "tool not found", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":5,"error":{"code":-32601,"message":"tool not found"}}`, string(raw))
}

func TestResultFrame(t *testing.T) {
	raw, err := ResultFrame(json.RawMessage(`"q"`), map[string]any{"value": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"q","result":{"value":1}}`, string(raw))
}
