package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapedit_requests_total",
		Help: "Total number of API requests",
	}, []string{"method", "route", "status"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mapedit_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"method", "route"})
	ListCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapedit_list_cache_hits_total",
		Help: "Total feature list cache hits",
	})
	ListCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapedit_list_cache_misses_total",
		Help: "Total feature list cache misses",
	})
	FeatureMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapedit_feature_mutations_total",
		Help: "Committed feature mutations by type",
	}, []string{"type"})
	EventSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mapedit_event_subscribers",
		Help: "Open change feed subscriptions",
	})
	EventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapedit_events_dropped_total",
		Help: "Change events dropped for slow subscribers",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(ListCacheHitsTotal)
	prometheus.MustRegister(ListCacheMissesTotal)
	prometheus.MustRegister(FeatureMutationsTotal)
	prometheus.MustRegister(EventSubscribers)
	prometheus.MustRegister(EventsDroppedTotal)
}

// Handler 暴露已注册指标，挂载在 /metrics
func Handler() http.Handler { return promhttp.Handler() }
