package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	engineCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vizql_engine_cache_hits_total",
			Help: "Total number of engine handle cache hits.",
		},
	)
	engineCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vizql_engine_cache_misses_total",
			Help: "Total number of engine handle cache misses.",
		},
	)
	engineCacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vizql_engine_cache_evictions_total",
			Help: "Total number of engine handles evicted by the LRU bound.",
		},
	)
	engineHandles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vizql_engine_handles",
			Help: "Current number of cached engine handles.",
		},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vizql_sessions_active",
			Help: "Current number of live sessions.",
		},
	)
	sessionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vizql_sessions_expired_total",
			Help: "Total number of sessions removed by idle expiry.",
		},
	)
	remoteQuerySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vizql_remote_query_duration_seconds",
			Help:    "Remote relational query latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	localQuerySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vizql_local_query_duration_seconds",
			Help:    "Local analytic query latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizql_uploads_total",
			Help: "Total number of uploaded tables by source format.",
		},
		[]string{"format"},
	)
)

func init() {
	prometheus.MustRegister(
		engineCacheHitsTotal,
		engineCacheMissesTotal,
		engineCacheEvictionsTotal,
		engineHandles,
		sessionsActive,
		sessionsExpiredTotal,
		remoteQuerySeconds,
		localQuerySeconds,
		uploadsTotal,
	)
}

func EngineCacheHit() {
	engineCacheHitsTotal.Inc()
}

func EngineCacheMiss() {
	engineCacheMissesTotal.Inc()
}

func EngineCacheEviction() {
	engineCacheEvictionsTotal.Inc()
}

func SetEngineHandles(count int) {
	if count < 0 {
		count = 0
	}
	engineHandles.Set(float64(count))
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	sessionsActive.Set(float64(count))
}

func SessionsExpired(count int) {
	if count > 0 {
		sessionsExpiredTotal.Add(float64(count))
	}
}

func ObserveRemoteQuery(elapsed time.Duration) {
	remoteQuerySeconds.Observe(elapsed.Seconds())
}

func ObserveLocalQuery(elapsed time.Duration) {
	localQuerySeconds.Observe(elapsed.Seconds())
}

func UploadAccepted(format string) {
	uploadsTotal.WithLabelValues(format).Inc()
}
