// Package coordinator implements the fan-out/fan-in request coordinator:
// it routes one inbound caller request to one or many tool servers,
// tracks the outstanding correlation, and aggregates responses into a
// single reply.
package coordinator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentinel-gate/mcp-endpoint/internal/domain/catalog"
	"github.com/sentinel-gate/mcp-endpoint/internal/domain/registry"
	"github.com/sentinel-gate/mcp-endpoint/internal/domain/rewrite"
	"github.com/sentinel-gate/mcp-endpoint/pkg/mcp"
)

// DefaultPendingTimeout is how long a PendingResponse may remain
// unresolved before the sweeper expires it and surfaces InternalError to
// the still-connected caller.
const DefaultPendingTimeout = 60 * time.Second

// pendingResponse tracks one in-flight fan-out correlation.
type pendingResponse struct {
	originalID json.RawMessage
	callerUUID string
	agentID    string
	expected   map[string]struct{}
	received   map[string]json.RawMessage
	createdAt  time.Time
}

// Coordinator implements the Request Coordinator (component D). It is safe
// for concurrent use by many reader goroutines, one per connection.
type Coordinator struct {
	reg *registry.Registry
	cat *catalog.Catalog

	logger *slog.Logger
	tracer trace.Tracer

	pendingTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingResponse // rewritten id -> pending
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPendingTimeout overrides DefaultPendingTimeout.
func WithPendingTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.pendingTimeout = d }
}

// WithLogger overrides the default discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// New constructs a Coordinator over reg and cat.
func New(reg *registry.Registry, cat *catalog.Catalog, opts ...Option) *Coordinator {
	c := &Coordinator{
		reg:            reg,
		cat:            cat,
		logger:         slog.New(slog.DiscardHandler),
		tracer:         otel.Tracer("mcp-endpoint/coordinator"),
		pendingTimeout: DefaultPendingTimeout,
		pending:        make(map[string]*pendingResponse),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunSweeper blocks, periodically expiring pending correlations older than
// the configured timeout, until ctx is cancelled. Grounded on the
// ticker-plus-ctx.Done() shape used by the cache refresh loop this router's
// tool discovery path descends from.
func (c *Coordinator) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *Coordinator) sweepExpired() {
	deadline := time.Now().Add(-c.pendingTimeout)

	var expired []*pendingResponse
	c.mu.Lock()
	for id, p := range c.pending {
		if p.createdAt.Before(deadline) {
			expired = append(expired, p)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, p := range expired {
		c.logger.Warn("pending response timed out", "caller_uuid", p.callerUUID, "expected", len(p.expected))
		frame, err := mcp.ErrorFrame(p.originalID, mcp.CodeInternalError, "pending response timed out", nil)
		if err != nil {
			continue
		}
		c.reg.SendToCaller(p.callerUUID, frame)
	}
}

// HandleCallerMessage processes one inbound message from the caller
// identified by callerUUID under agentID.
func (c *Coordinator) HandleCallerMessage(ctx context.Context, agentID, callerUUID string, raw []byte) {
	env, err := mcp.WrapEnvelope(raw, mcp.FromCaller)
	if err != nil {
		c.logger.Debug("dropping malformed caller frame", "agent_id", agentID, "error", err)
		return
	}
	if !env.IsRequest() {
		// Non-request frames (e.g. a caller echoing a response) carry no
		// forwarding contract; drop.
		return
	}

	id := env.RawID()

	switch env.Method() {
	case "tools/list":
		c.serveToolsListLocally(agentID, callerUUID, id)
	case "tools/call":
		c.routeToolCall(ctx, agentID, callerUUID, id, env)
	default:
		c.fanOut(ctx, agentID, callerUUID, id, raw)
	}
}

// serveToolsListLocally answers tools/list from the Catalog without a
// round trip to any tool server.
func (c *Coordinator) serveToolsListLocally(agentID, callerUUID string, id json.RawMessage) {
	if id == nil {
		return
	}
	tools := c.cat.List(agentID)
	frame, err := mcp.ResultFrame(id, map[string]any{
		"tools":             tools,
		"total_servers":     len(c.reg.ListServersOf(agentID)),
		"responded_servers": len(c.reg.ListServersOf(agentID)),
	})
	if err != nil {
		return
	}
	c.reg.SendToCaller(callerUUID, frame)
}

// routeToolCall implements the tools/call single-target path.
func (c *Coordinator) routeToolCall(ctx context.Context, agentID, callerUUID string, id json.RawMessage, env *mcp.Envelope) {
	name, ok := env.ToolName()
	if !ok {
		c.replyError(callerUUID, id, mcp.CodeInvalidParams, "params.name is required")
		return
	}

	// No tool server bound to the agent at all is a connectivity problem,
	// distinct from a resolvable-but-unknown tool name below.
	if len(c.reg.ListServersOf(agentID)) == 0 {
		c.replyError(callerUUID, id, mcp.CodeToolNotConnected, "no tool server connected for agent")
		return
	}

	serverID, ok := c.cat.Resolve(agentID, name)
	if !ok {
		c.replyError(callerUUID, id, mcp.CodeMethodNotFound, "tool not found: "+name)
		return
	}
	if !c.reg.IsToolConnected(agentID, serverID) {
		c.replyError(callerUUID, id, mcp.CodeToolNotConnected, "tool server not connected: "+serverID)
		return
	}

	_, span := c.tracer.Start(ctx, "coordinator.tools_call")
	defer span.End()

	rewritten, err := rewrite.Rewrite(callerUUID, id)
	if err != nil {
		c.replyError(callerUUID, id, mcp.CodeInternalError, "failed to rewrite id")
		return
	}
	forwarded, err := mcp.WithID(env.Raw, json.RawMessage(`"`+rewritten+`"`))
	if err != nil {
		c.replyError(callerUUID, id, mcp.CodeInternalError, "failed to build forwarded frame")
		return
	}

	c.registerPending(rewritten, id, callerUUID, agentID, []string{serverID})

	if !c.reg.SendToTool(agentID, serverID, forwarded) {
		c.removePending(rewritten)
		c.replyError(callerUUID, id, mcp.CodeForwardFailed, "failed to forward to tool server")
	}
}

// fanOut implements the generic-method fan-out path: one rewritten frame
// forwarded to every currently-connected tool server of agentID.
func (c *Coordinator) fanOut(ctx context.Context, agentID, callerUUID string, id json.RawMessage, raw []byte) {
	servers := c.reg.ListServersOf(agentID)
	if len(servers) == 0 {
		c.replyError(callerUUID, id, mcp.CodeToolNotConnected, "no tool server connected for agent")
		return
	}

	_, span := c.tracer.Start(ctx, "coordinator.fan_out")
	defer span.End()

	var rewritten string
	var err error
	if id != nil {
		rewritten, err = rewrite.Rewrite(callerUUID, id)
		if err != nil {
			c.replyError(callerUUID, id, mcp.CodeInternalError, "failed to rewrite id")
			return
		}
		raw, err = mcp.WithID(raw, json.RawMessage(`"`+rewritten+`"`))
		if err != nil {
			c.replyError(callerUUID, id, mcp.CodeInternalError, "failed to build forwarded frame")
			return
		}
	}

	serverIDs := make([]string, len(servers))
	for i, srv := range servers {
		serverIDs[i] = srv.ServerID
	}
	if id != nil {
		c.registerPending(rewritten, id, callerUUID, agentID, serverIDs)
	}

	sent := 0
	for _, srv := range servers {
		if c.reg.SendToTool(agentID, srv.ServerID, raw) {
			sent++
		}
	}

	if sent == 0 {
		if id != nil {
			c.removePending(rewritten)
			c.replyError(callerUUID, id, mcp.CodeForwardFailed, "failed to forward to any tool server")
		}
	}
}

// HandleToolServerMessage processes one inbound message from the tool
// server identified by (agentID, serverID).
func (c *Coordinator) HandleToolServerMessage(agentID, serverID string, raw []byte) {
	if !json.Valid(raw) {
		c.logger.Debug("dropping malformed tool-server frame", "agent_id", agentID, "server_id", serverID)
		return
	}

	if info := initializeResult(raw); info != nil {
		if conn, ok := c.reg.Server(agentID, serverID); ok {
			conn.SetServerInfo(info)
		}
	}

	if mcp.HasResultKey(raw, "tools") {
		c.updateToolList(agentID, serverID, raw)
	}

	id := mcp.ExtractID(raw)
	if id == nil {
		return
	}
	idStr := string(id)
	if len(idStr) >= 2 && idStr[0] == '"' {
		idStr = idStr[1 : len(idStr)-1]
	}

	c.mu.Lock()
	p, ok := c.pending[idStr]
	if ok {
		if p.received == nil {
			p.received = make(map[string]json.RawMessage)
		}
		p.received[serverID] = raw
		complete := len(p.received) >= len(p.expected)
		if complete {
			delete(c.pending, idStr)
		}
		c.mu.Unlock()

		if complete {
			c.deliverAggregate(p)
		}
		return
	}
	c.mu.Unlock()

	// Not a tracked correlation: unsolicited notification or a late
	// response after its pending entry already expired. The rewritten id
	// still yields a caller uuid; forward with the original id restored if
	// that caller is still connected, otherwise drop.
	callerUUID, original, ok := rewrite.Parse(idStr)
	if !ok {
		return
	}
	restored, err := mcp.WithID(raw, original)
	if err != nil {
		return
	}
	c.reg.SendToCaller(callerUUID, restored)
}

func (c *Coordinator) updateToolList(agentID, serverID string, raw []byte) {
	entries := mcp.ResultArray(raw, "tools")
	tools := make([]registry.ToolDescriptor, 0, len(entries))
	for _, e := range entries {
		var t registry.ToolDescriptor
		if err := json.Unmarshal(e, &t); err != nil {
			continue
		}
		tools = append(tools, t)
	}
	c.cat.Update(agentID, serverID, tools)
}

func initializeResult(raw []byte) json.RawMessage {
	if !mcp.HasResultKey(raw, "protocolVersion") {
		return nil
	}
	return mcp.ResultField(raw)
}

func (c *Coordinator) registerPending(rewrittenID string, originalID json.RawMessage, callerUUID, agentID string, expected []string) {
	p := &pendingResponse{
		originalID: originalID,
		callerUUID: callerUUID,
		agentID:    agentID,
		expected:   make(map[string]struct{}, len(expected)),
		received:   make(map[string]json.RawMessage),
		createdAt:  time.Now(),
	}
	for _, s := range expected {
		p.expected[s] = struct{}{}
	}

	c.mu.Lock()
	c.pending[rewrittenID] = p
	c.mu.Unlock()
}

func (c *Coordinator) removePending(rewrittenID string) {
	c.mu.Lock()
	delete(c.pending, rewrittenID)
	c.mu.Unlock()
}

// replyError sends a JSON-RPC error frame directly to callerUUID.
func (c *Coordinator) replyError(callerUUID string, id json.RawMessage, code int, message string) {
	frame, err := mcp.ErrorFrame(id, code, message, nil)
	if err != nil {
		return
	}
	c.reg.SendToCaller(callerUUID, frame)
}

// deliverAggregate builds the aggregated reply per the aggregation rules
// and sends it to p's caller.
func (c *Coordinator) deliverAggregate(p *pendingResponse) {
	frame, err := aggregate(p)
	if err != nil {
		errFrame, ferr := mcp.ErrorFrame(p.originalID, mcp.CodeInternalError, err.Error(), map[string]string{"details": err.Error()})
		if ferr == nil {
			c.reg.SendToCaller(p.callerUUID, errFrame)
		}
		return
	}
	c.reg.SendToCaller(p.callerUUID, frame)
}
