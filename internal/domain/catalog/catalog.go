// Package catalog resolves tool names to the tool-server connection that
// publishes them. The Registry's per-connection tool maps are the single
// source of truth (each ToolServerConnection owns its own tools); the
// Catalog layers a secondary name index on top for O(1) resolution and
// keeps a ledger of name conflicts across servers of the same agent.
package catalog

import (
	"sync"

	"github.com/sentinel-gate/mcp-endpoint/internal/domain/registry"
)

const (
	// MaxToolsPerServer bounds the number of tools a single tool server may
	// publish, guarding against a malicious or misbehaving server exhausting
	// router memory with an oversized tools/list.
	MaxToolsPerServer = 1000

	// MaxToolsPerAgent bounds the total number of tools indexed across all
	// servers of one agent.
	MaxToolsPerAgent = 10000
)

// Conflict records that ToolName was published by more than one server of
// the same agent; Winner is the server whose descriptor resolve() returns.
type Conflict struct {
	AgentID  string
	ToolName string
	Winner   string
	Loser    string
}

type agentIndex struct {
	// byName maps tool name -> server_id, first publisher wins.
	byName map[string]string
}

// Catalog resolves (agent_id, tool_name) to a server_id and serves
// aggregated tool listings, backed by a Registry for the authoritative tool
// data.
type Catalog struct {
	reg *registry.Registry

	mu        sync.RWMutex
	index     map[string]*agentIndex // agent_id -> index
	conflicts []Conflict
}

// New constructs a Catalog layered on top of reg.
func New(reg *registry.Registry) *Catalog {
	return &Catalog{
		reg:   reg,
		index: make(map[string]*agentIndex),
	}
}

// Update replaces the tool-server connection's published tools and refreshes
// the name index for agentID. tools are truncated to MaxToolsPerServer.
func (c *Catalog) Update(agentID, serverID string, tools []registry.ToolDescriptor) {
	conn, ok := c.reg.Server(agentID, serverID)
	if !ok {
		return
	}

	if len(tools) > MaxToolsPerServer {
		tools = tools[:MaxToolsPerServer]
	}
	conn.SetTools(tools)

	c.reindex(agentID)
}

// reindex rebuilds the name index for agentID by scanning every connected
// server's published tools, recording a Conflict whenever a later server
// republishes a name an earlier server already owns.
func (c *Catalog) reindex(agentID string) {
	servers := c.reg.ListServersOf(agentID)

	c.mu.RLock()
	var prev map[string]string
	if old, ok := c.index[agentID]; ok {
		prev = old.byName
	}
	c.mu.RUnlock()

	idx := &agentIndex{byName: make(map[string]string)}
	var conflicts []Conflict
	total := 0

	// A name keeps its previous owner while that server still publishes it.
	for _, srv := range servers {
		for _, t := range srv.Tools() {
			if total < MaxToolsPerAgent && prev[t.Name] == srv.ServerID {
				idx.byName[t.Name] = srv.ServerID
				total++
			}
		}
	}

	for _, srv := range servers {
		for _, t := range srv.Tools() {
			if total >= MaxToolsPerAgent {
				break
			}
			if winner, exists := idx.byName[t.Name]; exists {
				if winner != srv.ServerID {
					conflicts = append(conflicts, Conflict{
						AgentID:  agentID,
						ToolName: t.Name,
						Winner:   winner,
						Loser:    srv.ServerID,
					})
				}
				continue
			}
			idx.byName[t.Name] = srv.ServerID
			total++
		}
	}

	c.mu.Lock()
	c.index[agentID] = idx
	if len(conflicts) > 0 {
		c.conflicts = append(c.conflicts, conflicts...)
	}
	c.mu.Unlock()
}

// Invalidate rebuilds agentID's name index from the Registry's current
// connections. Called on tool-server connection teardown, after the
// Registry has unregistered serverID, so departed servers' tools drop out
// of Resolve immediately instead of lingering until the next Update.
func (c *Catalog) Invalidate(agentID, serverID string) {
	c.reindex(agentID)
}

// Resolve returns the server_id publishing toolName for agentID. First
// publisher wins when the name is duplicated across servers of the agent.
func (c *Catalog) Resolve(agentID, toolName string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.index[agentID]
	if !ok {
		return "", false
	}
	serverID, ok := idx.byName[toolName]
	return serverID, ok
}

// List returns every tool descriptor currently published by agentID's tool
// servers, flattened and stamped with server_id.
func (c *Catalog) List(agentID string) []registry.ToolDescriptor {
	var out []registry.ToolDescriptor
	for _, srv := range c.reg.ListServersOf(agentID) {
		out = append(out, srv.Tools()...)
	}
	return out
}

// Conflicts returns a copy of every recorded name conflict, across all
// agents, most recent last.
func (c *Catalog) Conflicts() []Conflict {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Conflict, len(c.conflicts))
	copy(out, c.conflicts)
	return out
}
