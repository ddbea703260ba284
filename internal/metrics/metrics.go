package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmesh_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentmesh_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentmesh_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	AgentsJoined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentmesh_agents_joined_total",
			Help: "Total agents that joined a room for the first time",
		},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmesh_messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"delivery"}, // "broadcast" or "direct"
	)

	MessagesMarkedRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentmesh_messages_marked_read_total",
			Help: "Total read receipts recorded",
		},
	)

	TasksCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentmesh_tasks_created_total",
			Help: "Total tasks created",
		},
	)

	TasksUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentmesh_tasks_updated_total",
			Help: "Total task updates",
		},
	)
)
