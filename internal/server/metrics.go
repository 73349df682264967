package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connected_clients",
		Help: "Number of WebSocket clients currently registered in a room.",
	})

	messagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_relayed_total",
		Help: "Total number of inbound payloads broadcast to a room.",
	})

	deliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_clients_dropped_total",
		Help: "Total number of clients dropped because their send queue overflowed.",
	})
)

// MetricsHandler exposes Prometheus metrics at /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
