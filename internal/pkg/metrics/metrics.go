package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servegate_redemptions_total",
		Help: "The total number of redemption attempts by outcome",
	}, []string{"outcome"})

	LedgerAppends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servegate_ledger_appends_total",
		Help: "Total events appended to the audit ledger",
	}, []string{"action"})

	RateLimitRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servegate_rate_limit_rejects_total",
		Help: "Total requests rejected by the sliding-window limiter",
	}, []string{"action"})

	CsrfRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "servegate_csrf_rejects_total",
		Help: "Total state-changing requests rejected by the CSRF guard",
	})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "servegate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
