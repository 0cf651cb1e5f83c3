package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the overlay service
type Metrics struct {
	// WebSocket gateway metrics
	Connections *prometheus.GaugeVec
	Messages    *prometheus.CounterVec

	// Dispatch metrics
	AlertsDispatched  *prometheus.CounterVec
	BroadcastDuration *prometheus.HistogramVec
	DeliveryFailures  *prometheus.CounterVec
}
