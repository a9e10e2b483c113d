// Package metrics exposes the client's Prometheus instrumentation.
//
//   - trade_client_rest_requests_total{exchange,method}  – HTTP requests issued
//   - trade_client_stream_frames_total{exchange}         – stream frames received
//   - trade_client_stream_reconnects_total{exchange}     – stream reconnect attempts
//   - trade_client_orders_total{exchange,op}             – create/cancel dispatches
//
// Registered in init(); serve them with promhttp at /metrics if the embedding
// application wants scraping.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RestRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_client_rest_requests_total",
			Help: "HTTP requests issued",
		},
		[]string{"exchange", "method"},
	)

	StreamFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_client_stream_frames_total",
			Help: "Stream frames received",
		},
		[]string{"exchange"},
	)

	StreamReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_client_stream_reconnects_total",
			Help: "Stream reconnect attempts",
		},
		[]string{"exchange"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_client_orders_total",
			Help: "Order operations dispatched",
		},
		[]string{"exchange", "op"},
	)
)

func init() {
	prometheus.MustRegister(RestRequests, StreamFrames, StreamReconnects, Orders)
}
