// Package ws provides the WebSocket transport adapter for the router: it
// upgrades the two fixed endpoints, feeds frames into the coordinator, and
// serves the accompanying health and metrics surfaces.
package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments exposed on /metrics.
type Metrics struct {
	ConnectionsTotal  *prometheus.CounterVec
	ActiveConnections *prometheus.GaugeVec
	MessagesTotal     *prometheus.CounterVec
	ForwardFailures   prometheus.Counter
	Displacements     prometheus.Counter
}

// NewMetrics creates and registers every metric with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ConnectionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_endpoint",
				Name:      "connections_total",
				Help:      "Total WebSocket connections accepted, by role",
			},
			[]string{"role"}, // role=tool_server|caller
		),
		ActiveConnections: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "mcp_endpoint",
				Name:      "active_connections",
				Help:      "Currently connected sockets, by role",
			},
			[]string{"role"},
		),
		MessagesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_endpoint",
				Name:      "messages_total",
				Help:      "Total frames routed, by direction",
			},
			[]string{"direction"}, // direction=caller_to_router|router_to_tool|tool_to_router|router_to_caller
		),
		ForwardFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcp_endpoint",
				Name:      "forward_failures_total",
				Help:      "Total failed forwards to a tool server or caller",
			},
		),
		Displacements: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcp_endpoint",
				Name:      "tool_displacements_total",
				Help:      "Total tool-server connections closed due to displacement",
			},
		),
	}
}
