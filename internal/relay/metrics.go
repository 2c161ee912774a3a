package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_connections_total",
		Help: "Total transport connections accepted",
	})

	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_active_sessions",
		Help: "Currently registered player sessions",
	})

	metricActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_active_rooms",
		Help: "Currently live rooms",
	})

	metricRoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_rooms_created_total",
		Help: "Total rooms created",
	})

	metricUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_updates_total",
		Help: "Sync events relayed, by kind",
	}, []string{"kind"})

	metricEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_evictions_total",
		Help: "Sessions evicted by the stale sweeper",
	})

	metricRequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_request_errors_total",
		Help: "Rejected requests, by error code",
	}, []string{"code"})
)
