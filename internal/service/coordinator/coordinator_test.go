package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sentinel-gate/mcp-endpoint/internal/domain/catalog"
	"github.com/sentinel-gate/mcp-endpoint/internal/domain/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSocket struct {
	mu     sync.Mutex
	writes [][]byte
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeSocket) WriteControl(int, []byte, time.Time) error { return nil }
func (f *fakeSocket) Close() error                               { return nil }

func (f *fakeSocket) last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1]
}

func (f *fakeSocket) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func setup() (*registry.Registry, *catalog.Catalog, *Coordinator) {
	reg := registry.New()
	cat := catalog.New(reg)
	co := New(reg, cat)
	return reg, cat, co
}

func TestHandleCallerMessage_SingleServerRoundtrip(t *testing.T) {
	reg, cat, co := setup()
	toolSock := &fakeSocket{}
	reg.RegisterTool("agentA", "srv1", toolSock)
	cat.Update("agentA", "srv1", []registry.ToolDescriptor{{Name: "calc"}})

	callerSock := &fakeSocket{}
	callerUUID := reg.RegisterCaller("agentA", callerSock)

	req := []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"calc","arguments":{"x":1}}}`)
	co.HandleCallerMessage(context.Background(), "agentA", callerUUID, req)

	require.Equal(t, 1, toolSock.count())
	forwarded := toolSock.last()
	rewrittenID := assertFieldString(t, forwarded, "id")
	assert.Contains(t, rewrittenID, callerUUID)

	toolResp := []byte(`{"jsonrpc":"2.0","id":"` + rewrittenID + `","result":{"content":[{"type":"text","text":"ok"}]}}`)
	co.HandleToolServerMessage("agentA", "srv1", toolResp)

	require.Equal(t, 1, callerSock.count())
	reply := callerSock.last()
	assert.Contains(t, string(reply), `"id":7`)
	assert.Contains(t, string(reply), `"text":"ok"`)
	assert.Contains(t, string(reply), `"total_servers":1`)
}

func TestHandleCallerMessage_FanOutAggregation(t *testing.T) {
	reg, _, co := setup()
	socks := map[string]*fakeSocket{"srv1": {}, "srv2": {}, "srv3": {}}
	for id, s := range socks {
		reg.RegisterTool("agentA", id, s)
	}
	callerSock := &fakeSocket{}
	callerUUID := reg.RegisterCaller("agentA", callerSock)

	req := []byte(`{"jsonrpc":"2.0","id":"q","method":"custom/broadcast"}`)
	co.HandleCallerMessage(context.Background(), "agentA", callerUUID, req)

	for id, s := range socks {
		require.Equal(t, 1, s.count(), id)
		rewrittenID := assertFieldString(t, s.last(), "id")
		resp := []byte(`{"jsonrpc":"2.0","id":"` + rewrittenID + `","result":{"value":1}}`)
		co.HandleToolServerMessage("agentA", id, resp)
	}

	require.Equal(t, 1, callerSock.count())
	reply := string(callerSock.last())
	assert.Contains(t, reply, `"id":"q"`)
	assert.Contains(t, reply, `"total_servers":3`)
	assert.Contains(t, reply, `"responded_servers":3`)
}

func TestHandleCallerMessage_ToolNotConnected(t *testing.T) {
	reg, _, co := setup()
	callerSock := &fakeSocket{}
	callerUUID := reg.RegisterCaller("agentB", callerSock)

	req := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"x"}}`)
	co.HandleCallerMessage(context.Background(), "agentB", callerUUID, req)

	require.Equal(t, 1, callerSock.count())
	assert.Contains(t, string(callerSock.last()), "-32001")
}

func TestHandleCallerMessage_ToolLookupMiss(t *testing.T) {
	reg, cat, co := setup()
	reg.RegisterTool("agentA", "srv1", &fakeSocket{})
	cat.Update("agentA", "srv1", []registry.ToolDescriptor{{Name: "calc"}})

	callerSock := &fakeSocket{}
	callerUUID := reg.RegisterCaller("agentA", callerSock)

	req := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"missing"}}`)
	co.HandleCallerMessage(context.Background(), "agentA", callerUUID, req)

	require.Equal(t, 1, callerSock.count())
	assert.Contains(t, string(callerSock.last()), `-32601`)
}

func TestSweepExpired_SurfacesInternalError(t *testing.T) {
	reg, cat, co := setup()
	reg.RegisterTool("agentA", "srv1", &fakeSocket{})
	cat.Update("agentA", "srv1", []registry.ToolDescriptor{{Name: "calc"}})

	callerSock := &fakeSocket{}
	callerUUID := reg.RegisterCaller("agentA", callerSock)
	co.pendingTimeout = time.Millisecond

	req := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"calc"}}`)
	co.HandleCallerMessage(context.Background(), "agentA", callerUUID, req)

	time.Sleep(5 * time.Millisecond)
	co.sweepExpired()

	require.Equal(t, 1, callerSock.count())
	assert.Contains(t, string(callerSock.last()), "-32603")
}

func assertFieldString(t *testing.T, raw []byte, field string) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	v, ok := m[field]
	require.True(t, ok)
	s, ok := v.(string)
	require.True(t, ok, "expected %s field to be a string, got %T", field, v)
	return s
}
