package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSocket struct {
	mu       sync.Mutex
	writes   [][]byte
	closed   bool
	controls [][]byte
	failNext bool
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return assert.AnError
	}
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeSocket) WriteControl(_ int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, data)
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestRegisterTool_NoPriorConnection(t *testing.T) {
	r := New()
	sock := &fakeSocket{}

	conn := r.RegisterTool("agentA", "srv1", sock)

	require.NotNil(t, conn)
	assert.True(t, r.IsToolConnected("agentA", "srv1"))
	assert.NotEmpty(t, conn.ConnectionUUID)
}

func TestRegisterTool_Displacement(t *testing.T) {
	r := New()
	oldSock := &fakeSocket{}
	newSock := &fakeSocket{}

	r.RegisterTool("agentA", "srv1", oldSock)
	conn := r.RegisterTool("agentA", "srv1", newSock)

	assert.True(t, oldSock.wasClosed())
	require.Len(t, oldSock.controls, 1)

	got, ok := r.Server("agentA", "srv1")
	require.True(t, ok)
	assert.Same(t, conn, got)
}

func TestRegisterCaller_NeverDisplaces(t *testing.T) {
	r := New()
	id1 := r.RegisterCaller("agentA", &fakeSocket{})
	id2 := r.RegisterCaller("agentA", &fakeSocket{})

	assert.NotEqual(t, id1, id2)
	assert.True(t, r.IsCallerConnected(id1))
	assert.True(t, r.IsCallerConnected(id2))
	assert.Len(t, r.ListCallersOf("agentA"), 2)
}

func TestUnregister_Idempotent(t *testing.T) {
	r := New()
	r.UnregisterTool("agentA", "srv1")
	r.UnregisterCaller("no-such-caller")
}

func TestSendToTool_MissingConnection(t *testing.T) {
	r := New()
	assert.False(t, r.SendToTool("agentA", "srv1", []byte("{}")))
}

func TestSendToTool_FailureUnregisters(t *testing.T) {
	r := New()
	sock := &fakeSocket{failNext: true}
	r.RegisterTool("agentA", "srv1", sock)

	ok := r.SendToTool("agentA", "srv1", []byte("{}"))

	assert.False(t, ok)
	assert.False(t, r.IsToolConnected("agentA", "srv1"))
}

func TestSendToCaller_RoundTrip(t *testing.T) {
	r := New()
	sock := &fakeSocket{}
	id := r.RegisterCaller("agentA", sock)

	ok := r.SendToCaller(id, []byte(`{"jsonrpc":"2.0"}`))

	require.True(t, ok)
	require.Len(t, sock.writes, 1)
	assert.JSONEq(t, `{"jsonrpc":"2.0"}`, string(sock.writes[0]))
}

func TestListServersOf_ScopedToAgent(t *testing.T) {
	r := New()
	r.RegisterTool("agentA", "srv1", &fakeSocket{})
	r.RegisterTool("agentB", "srv1", &fakeSocket{})

	servers := r.ListServersOf("agentA")

	require.Len(t, servers, 1)
	assert.Equal(t, "srv1", servers[0].ServerID)
}

func TestStats_ReflectsOccupancy(t *testing.T) {
	r := New()
	conn := r.RegisterTool("agentA", "srv1", &fakeSocket{})
	conn.SetTools([]ToolDescriptor{{Name: "calc"}})
	r.RegisterCaller("agentA", &fakeSocket{})

	stats := r.Stats()

	assert.Equal(t, 1, stats.TotalToolServers)
	assert.Equal(t, 1, stats.TotalCallers)
	assert.Equal(t, 1, stats.Agents["agentA"].ToolServers)
	assert.Equal(t, 1, stats.Agents["agentA"].Callers)
	assert.Equal(t, 1, stats.Agents["agentA"].ToolCounts["srv1"])
}

func TestToolServerConnection_SetToolsStampsServerID(t *testing.T) {
	r := New()
	conn := r.RegisterTool("agentA", "srv1", &fakeSocket{})

	conn.SetTools([]ToolDescriptor{{Name: "calc"}})

	tool, ok := conn.Tool("calc")
	require.True(t, ok)
	assert.Equal(t, "srv1", tool.ServerID)
}

func TestTouch_UpdatesLastActivity(t *testing.T) {
	r := New()
	conn := r.RegisterTool("agentA", "srv1", &fakeSocket{})
	before := conn.LastActivity()

	time.Sleep(time.Millisecond)
	r.TouchTool("agentA", "srv1")

	assert.True(t, conn.LastActivity().After(before))
}

func TestSweepIdle_ClosesStaleToolAndCallerConnections(t *testing.T) {
	r := New()
	toolSocket := &fakeSocket{}
	callerSocket := &fakeSocket{}
	r.RegisterTool("agentA", "srv1", toolSocket)
	r.RegisterCaller("agentB", callerSocket)

	now := time.Now().Add(time.Hour)
	closed := r.SweepIdle(now, 10*time.Second)

	assert.Equal(t, 2, closed)
	assert.True(t, toolSocket.wasClosed())
	assert.True(t, callerSocket.wasClosed())
	assert.False(t, r.IsToolConnected("agentA", "srv1"))
}

func TestSweepIdle_LeavesActiveConnections(t *testing.T) {
	r := New()
	socket := &fakeSocket{}
	r.RegisterTool("agentA", "srv1", socket)

	closed := r.SweepIdle(time.Now(), time.Hour)

	assert.Equal(t, 0, closed)
	assert.False(t, socket.wasClosed())
	assert.True(t, r.IsToolConnected("agentA", "srv1"))
}
