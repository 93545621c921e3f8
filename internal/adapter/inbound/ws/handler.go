package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// tokenClaim is the shape of the urlencoded JSON carried in the "token"
// query parameter on both WebSocket endpoints.
type tokenClaim struct {
	AgentID string `json:"agentId"`
}

func parseToken(raw string) (agentID string, ok bool) {
	if raw == "" {
		return "", false
	}
	var claim tokenClaim
	if err := json.Unmarshal([]byte(raw), &claim); err != nil {
		return "", false
	}
	if claim.AgentID == "" {
		return "", false
	}
	return claim.AgentID, true
}

// handleToolServer upgrades GET /mcp_endpoint/mcp/?token=...&server_id=...
// and runs its read loop until the socket closes.
func (t *Transport) handleToolServer(w http.ResponseWriter, r *http.Request) {
	agentID, ok := parseToken(r.URL.Query().Get("token"))
	serverID := r.URL.Query().Get("server_id")
	if !ok || serverID == "" {
		t.rejectMissingClaim(w, r)
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("websocket upgrade failed", "error", err, "path", r.URL.Path)
		return
	}

	t.metrics.ConnectionsTotal.WithLabelValues("tool_server").Inc()
	t.metrics.ActiveConnections.WithLabelValues("tool_server").Inc()
	defer t.metrics.ActiveConnections.WithLabelValues("tool_server").Dec()

	if _, existed := t.reg.Server(agentID, serverID); existed {
		t.metrics.Displacements.Inc()
	}
	t.reg.RegisterTool(agentID, serverID, conn)
	defer t.cat.Invalidate(agentID, serverID)
	defer t.reg.UnregisterTool(agentID, serverID)

	t.logger.Info("tool server connected", "agent_id", agentID, "server_id", serverID)
	t.readLoop(conn, func(raw []byte) {
		t.reg.TouchTool(agentID, serverID)
		t.metrics.MessagesTotal.WithLabelValues("tool_to_router").Inc()
		t.coord.HandleToolServerMessage(agentID, serverID, raw)
	})
	t.logger.Info("tool server disconnected", "agent_id", agentID, "server_id", serverID)
}

// handleCaller upgrades GET /mcp_endpoint/call/?token=... and runs its read
// loop until the socket closes.
func (t *Transport) handleCaller(w http.ResponseWriter, r *http.Request) {
	agentID, ok := parseToken(r.URL.Query().Get("token"))
	if !ok {
		t.rejectMissingClaim(w, r)
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("websocket upgrade failed", "error", err, "path", r.URL.Path)
		return
	}

	t.metrics.ConnectionsTotal.WithLabelValues("caller").Inc()
	t.metrics.ActiveConnections.WithLabelValues("caller").Inc()
	defer t.metrics.ActiveConnections.WithLabelValues("caller").Dec()

	callerUUID := t.reg.RegisterCaller(agentID, conn)
	defer t.reg.UnregisterCaller(callerUUID)

	t.logger.Info("caller connected", "agent_id", agentID, "connection_uuid", callerUUID)
	t.readLoop(conn, func(raw []byte) {
		t.reg.TouchCaller(callerUUID)
		t.metrics.MessagesTotal.WithLabelValues("caller_to_router").Inc()
		t.coord.HandleCallerMessage(r.Context(), agentID, callerUUID, raw)
	})
	t.logger.Info("caller disconnected", "agent_id", agentID, "connection_uuid", callerUUID)
}

// rejectMissingClaim completes the handshake and then immediately closes
// with status 1008, since Upgrade requires a successful handshake before a
// close frame can be written.
func (t *Transport) rejectMissingClaim(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	payload := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "missing agentId or server_id")
	_ = conn.WriteControl(websocket.CloseMessage, payload, time.Now().Add(time.Second))
	_ = conn.Close()
}

// readLoop reads text frames from conn until it errors or closes, invoking
// dispatch with each frame's payload. It never lets a panic or protocol
// error escape to the caller of handleToolServer/handleCaller.
func (t *Transport) readLoop(conn *websocket.Conn, dispatch func(raw []byte)) {
	defer func() {
		if rec := recover(); rec != nil {
			t.logger.Error("read loop panic", "panic", rec)
		}
	}()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		dispatch(data)
	}
}
