package tcp

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connected_sessions",
		Help: "Number of currently connected sessions",
	})

	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_requests_total",
		Help: "Total requests processed by route and response code",
	}, []string{"route", "code"})

	DispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_dispatch_seconds",
		Help:    "Time to dispatch each route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	BroadcastDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_broadcast_drops_total",
		Help: "Broadcast frames dropped because a member sink was full or closed",
	})
)

func init() {
	prometheus.MustRegister(ConnectedSessions)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(BroadcastDrops)
}
