package session

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carbonsvc_session_cache_hits_total",
		Help: "Session state loads served from memory.",
	})

	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carbonsvc_session_cache_misses_total",
		Help: "Session state loads that read the durable store.",
	})

	cacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbonsvc_session_cache_evictions_total",
			Help: "Session state entries removed from memory, by reason.",
		},
		[]string{"reason"},
	)

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "carbonsvc_sessions_active",
		Help: "Number of live session records.",
	})
)

func init() {
	prometheus.MustRegister(cacheHitsTotal)
	prometheus.MustRegister(cacheMissesTotal)
	prometheus.MustRegister(cacheEvictionsTotal)
	prometheus.MustRegister(activeSessions)
}
