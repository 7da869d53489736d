// Package metrics exposes Prometheus instrumentation for the runtime.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tool dispatch
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herd_tool_calls_total",
			Help: "Total tool invocations by tool name and outcome",
		},
		[]string{"tool", "outcome"},
	)

	// Message bus
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herd_bus_messages_sent_total",
			Help: "Messages accepted by the bus, by message type",
		},
		[]string{"type"},
	)

	MessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "herd_bus_messages_delivered_total",
			Help: "Messages handed to readers (broadcast reads counted per reader)",
		},
	)

	MessagesExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "herd_bus_messages_expired_total",
			Help: "Messages pruned after exceeding the 1-hour TTL",
		},
	)

	BusDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "herd_bus_depth",
			Help: "Live messages currently on the hot list",
		},
	)

	// Checkins
	CheckinsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "herd_checkins_total",
			Help: "Heartbeats recorded via herd_checkin",
		},
	)

	CheckinsTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "herd_checkins_tracked",
			Help: "Heartbeat entries currently held by the registry",
		},
	)

	// Sessions and agent processes
	ChatSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "herd_chat_sessions_active",
			Help: "Live chat-thread sessions held by the session manager",
		},
	)

	AgentProcsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "herd_agent_procs_running",
			Help: "Detached agent subprocesses currently tracked",
		},
	)

	// API
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herd_api_requests_total",
			Help: "API requests by route and status",
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		ToolCalls,
		MessagesSent,
		MessagesDelivered,
		MessagesExpired,
		BusDepth,
		CheckinsTotal,
		CheckinsTracked,
		ChatSessionsActive,
		AgentProcsRunning,
		APIRequestsTotal,
	)
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
