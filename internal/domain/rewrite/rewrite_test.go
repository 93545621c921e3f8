package rewrite

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteParseRoundTrip_Number(t *testing.T) {
	id, err := Rewrite("caller-1", json.RawMessage("42"))
	require.NoError(t, err)
	assert.Equal(t, "caller-1_n_42", id)

	caller, original, ok := Parse(id)
	require.True(t, ok)
	assert.Equal(t, "caller-1", caller)
	assert.JSONEq(t, "42", string(original))
}

func TestRewriteParseRoundTrip_String(t *testing.T) {
	id, err := Rewrite("caller-2", json.RawMessage(`"req-abc"`))
	require.NoError(t, err)

	caller, original, ok := Parse(id)
	require.True(t, ok)
	assert.Equal(t, "caller-2", caller)
	assert.JSONEq(t, `"req-abc"`, string(original))
}

func TestRewrite_PayloadWithUnderscores(t *testing.T) {
	id, err := Rewrite("caller-3", json.RawMessage(`"a_b_c"`))
	require.NoError(t, err)

	caller, original, ok := Parse(id)
	require.True(t, ok)
	assert.Equal(t, "caller-3", caller)
	assert.JSONEq(t, `"a_b_c"`, string(original))
}

func TestRewrite_NullID(t *testing.T) {
	id, err := Rewrite("caller-4", json.RawMessage("null"))
	require.NoError(t, err)

	caller, original, ok := Parse(id)
	require.True(t, ok)
	assert.Equal(t, "caller-4", caller)
	assert.Equal(t, json.RawMessage(`""`), original)
}

func TestParse_NotRewritten(t *testing.T) {
	_, _, ok := Parse("some-plain-id")
	assert.False(t, ok)

	_, _, ok = Parse("")
	assert.False(t, ok)
}

func TestParse_UnknownTag(t *testing.T) {
	_, _, ok := Parse("caller_x_payload")
	assert.False(t, ok)
}

func TestRewrite_InvalidID(t *testing.T) {
	_, err := Rewrite("caller-5", json.RawMessage("{}"))
	assert.Error(t, err)
}
