// Package registry owns the live set of tool-server and caller WebSocket
// connections. It provides lookup, insertion with displacement, and teardown,
// serialized by a single mutex so that registration, lookup, and teardown are
// atomic with respect to each other.
package registry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Socket is the minimal surface the registry needs from a WebSocket
// connection. *websocket.Conn satisfies it; tests use a fake.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// ToolDescriptor is the JSON object returned by a tool server's tools/list
// entry, with an added ServerID field stamped by the Catalog.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	ServerID    string          `json:"server_id,omitempty"`
}

// ToolServerConnection is a live connection from one tool server, unique
// within the pair (AgentID, ServerID).
type ToolServerConnection struct {
	AgentID        string
	ServerID       string
	ConnectionUUID string
	ConnectedAt    time.Time

	mu           sync.RWMutex
	socket       Socket
	tools        map[string]ToolDescriptor
	serverInfo   json.RawMessage
	lastActivity time.Time
}

// Touch records that a message was just received on this connection.
func (c *ToolServerConnection) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity returns the time of the most recent Touch, or ConnectedAt if
// none has happened yet.
func (c *ToolServerConnection) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

// Tools returns a snapshot of the currently published tool descriptors.
func (c *ToolServerConnection) Tools() []ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	return out
}

// SetTools replaces the full set of published tools, stamping ServerID on
// each descriptor.
func (c *ToolServerConnection) SetTools(tools []ToolDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[string]ToolDescriptor, len(tools))
	for _, t := range tools {
		t.ServerID = c.ServerID
		m[t.Name] = t
	}
	c.tools = m
}

// Tool looks up one published tool by name.
func (c *ToolServerConnection) Tool(name string) (ToolDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[name]
	return t, ok
}

// SetServerInfo stashes the result of a successful initialize handshake.
func (c *ToolServerConnection) SetServerInfo(info json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverInfo = info
}

// ServerInfo returns the last stashed initialize result, or nil.
func (c *ToolServerConnection) ServerInfo() json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// CallerConnection is a live connection from one caller (robot) client.
type CallerConnection struct {
	AgentID        string
	ConnectionUUID string
	ConnectedAt    time.Time

	mu           sync.RWMutex
	socket       Socket
	lastActivity time.Time
}

// Touch records that a message was just received on this connection.
func (c *CallerConnection) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity returns the time of the most recent Touch, or ConnectedAt if
// none has happened yet.
func (c *CallerConnection) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

type toolKey struct {
	agentID  string
	serverID string
}

// Registry holds every live tool-server and caller connection. The zero
// value is not usable; construct with New.
type Registry struct {
	mu      sync.RWMutex
	tools   map[toolKey]*ToolServerConnection
	callers map[string]*CallerConnection
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		tools:   make(map[toolKey]*ToolServerConnection),
		callers: make(map[string]*CallerConnection),
	}
}

// RegisterTool binds socket as the live connection for (agentID, serverID).
// If a connection already exists for that pair, the new one takes its slot
// and the old socket is then closed with close code 1000 and reason
// "connection replaced" before RegisterTool returns, so no send through the
// registry can reach the displaced socket after RegisterTool returns.
func (r *Registry) RegisterTool(agentID, serverID string, socket Socket) *ToolServerConnection {
	key := toolKey{agentID, serverID}

	r.mu.Lock()
	old, existed := r.tools[key]
	conn := &ToolServerConnection{
		AgentID:        agentID,
		ServerID:       serverID,
		ConnectionUUID: uuid.NewString(),
		ConnectedAt:    time.Now(),
		socket:         socket,
		tools:          make(map[string]ToolDescriptor),
	}
	conn.lastActivity = conn.ConnectedAt
	r.tools[key] = conn
	r.mu.Unlock()

	if existed {
		closeDisplaced(old.socket)
	}
	return conn
}

// RegisterCaller mints a fresh UUID for socket and adds it to the caller
// pool under agentID. It never displaces an existing caller.
func (r *Registry) RegisterCaller(agentID string, socket Socket) string {
	id := uuid.NewString()
	conn := &CallerConnection{
		AgentID:        agentID,
		ConnectionUUID: id,
		ConnectedAt:    time.Now(),
		socket:         socket,
	}
	conn.lastActivity = conn.ConnectedAt

	r.mu.Lock()
	r.callers[id] = conn
	r.mu.Unlock()

	return id
}

// UnregisterTool removes the tool-server entry for (agentID, serverID), if
// present and still owned by the same connection. Idempotent.
func (r *Registry) UnregisterTool(agentID, serverID string) {
	key := toolKey{agentID, serverID}

	r.mu.Lock()
	delete(r.tools, key)
	r.mu.Unlock()
}

// UnregisterCaller removes the caller entry for callerUUID. Idempotent.
func (r *Registry) UnregisterCaller(callerUUID string) {
	r.mu.Lock()
	delete(r.callers, callerUUID)
	r.mu.Unlock()
}

// SendToTool writes message to the tool server bound to (agentID, serverID).
// Returns false if no connection exists or the write failed; a failed write
// also unregisters the connection since the socket is presumed dead.
func (r *Registry) SendToTool(agentID, serverID string, message []byte) bool {
	key := toolKey{agentID, serverID}

	r.mu.RLock()
	conn, ok := r.tools[key]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	if err := conn.socket.WriteMessage(websocket.TextMessage, message); err != nil {
		r.mu.Lock()
		if current, still := r.tools[key]; still && current == conn {
			delete(r.tools, key)
		}
		r.mu.Unlock()
		return false
	}
	return true
}

// SendToCaller writes message to the caller identified by callerUUID.
// Returns false if no connection exists or the write failed; a failed write
// also unregisters the connection.
func (r *Registry) SendToCaller(callerUUID string, message []byte) bool {
	r.mu.RLock()
	conn, ok := r.callers[callerUUID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	if err := conn.socket.WriteMessage(websocket.TextMessage, message); err != nil {
		r.mu.Lock()
		if current, still := r.callers[callerUUID]; still && current == conn {
			delete(r.callers, callerUUID)
		}
		r.mu.Unlock()
		return false
	}
	return true
}

// IsToolConnected reports whether a tool server is currently bound to
// (agentID, serverID).
func (r *Registry) IsToolConnected(agentID, serverID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[toolKey{agentID, serverID}]
	return ok
}

// IsCallerConnected reports whether callerUUID is currently registered.
func (r *Registry) IsCallerConnected(callerUUID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.callers[callerUUID]
	return ok
}

// ListServersOf returns a snapshot of every ToolServerConnection bound to
// agentID.
func (r *Registry) ListServersOf(agentID string) []*ToolServerConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ToolServerConnection
	for key, conn := range r.tools {
		if key.agentID == agentID {
			out = append(out, conn)
		}
	}
	return out
}

// ListCallersOf returns a snapshot of every CallerConnection under agentID.
func (r *Registry) ListCallersOf(agentID string) []*CallerConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*CallerConnection
	for _, conn := range r.callers {
		if conn.AgentID == agentID {
			out = append(out, conn)
		}
	}
	return out
}

// Server looks up a single tool-server connection.
func (r *Registry) Server(agentID, serverID string) (*ToolServerConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.tools[toolKey{agentID, serverID}]
	return conn, ok
}

// Stats is a structured snapshot of registry occupancy, mirroring the
// connection accounting an operator dashboard would want: total tool-server
// and caller counts, plus a per-agent breakdown of server and tool counts.
type Stats struct {
	TotalToolServers int                  `json:"total_tool_servers"`
	TotalCallers     int                  `json:"total_callers"`
	Agents           map[string]AgentStat `json:"agents"`
}

// AgentStat is the per-agent slice of Stats.
type AgentStat struct {
	ToolServers int            `json:"tool_servers"`
	Callers     int            `json:"callers"`
	ToolCounts  map[string]int `json:"tool_counts"` // server_id -> tool count
}

// Stats returns a structured snapshot of the registry's current occupancy.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		TotalToolServers: len(r.tools),
		TotalCallers:     len(r.callers),
		Agents:           make(map[string]AgentStat),
	}

	for key, conn := range r.tools {
		a := s.Agents[key.agentID]
		if a.ToolCounts == nil {
			a.ToolCounts = make(map[string]int)
		}
		a.ToolServers++
		a.ToolCounts[key.serverID] = len(conn.Tools())
		s.Agents[key.agentID] = a
	}
	for _, conn := range r.callers {
		a := s.Agents[conn.AgentID]
		if a.ToolCounts == nil {
			a.ToolCounts = make(map[string]int)
		}
		a.Callers++
		s.Agents[conn.AgentID] = a
	}

	return s
}

// TouchTool records activity on the tool-server connection bound to
// (agentID, serverID), if one is currently registered.
func (r *Registry) TouchTool(agentID, serverID string) {
	r.mu.RLock()
	conn, ok := r.tools[toolKey{agentID, serverID}]
	r.mu.RUnlock()
	if ok {
		conn.Touch()
	}
}

// TouchCaller records activity on the caller connection identified by
// callerUUID, if one is currently registered.
func (r *Registry) TouchCaller(callerUUID string) {
	r.mu.RLock()
	conn, ok := r.callers[callerUUID]
	r.mu.RUnlock()
	if ok {
		conn.Touch()
	}
}

// SweepIdle closes and unregisters every tool-server and caller connection
// whose last recorded activity is older than maxIdle relative to now. It
// returns the number of connections closed.
func (r *Registry) SweepIdle(now time.Time, maxIdle time.Duration) int {
	var stale []Socket

	r.mu.Lock()
	for key, conn := range r.tools {
		if now.Sub(conn.LastActivity()) > maxIdle {
			stale = append(stale, conn.socket)
			delete(r.tools, key)
		}
	}
	for id, conn := range r.callers {
		if now.Sub(conn.LastActivity()) > maxIdle {
			stale = append(stale, conn.socket)
			delete(r.callers, id)
		}
	}
	r.mu.Unlock()

	for _, socket := range stale {
		closeIdle(socket)
	}
	return len(stale)
}

// closeIdle sends a graceful close control frame for an idle timeout and
// closes the socket. Failures are ignored: the socket is being discarded
// either way.
func closeIdle(socket Socket) {
	payload := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "idle timeout")
	_ = socket.WriteControl(websocket.CloseMessage, payload, time.Now().Add(time.Second))
	_ = socket.Close()
}

// closeDisplaced sends a graceful close control frame and closes the socket.
// Failures are ignored: the socket is being discarded either way.
func closeDisplaced(socket Socket) {
	payload := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "connection replaced")
	_ = socket.WriteControl(websocket.CloseMessage, payload, time.Now().Add(time.Second))
	_ = socket.Close()
}
