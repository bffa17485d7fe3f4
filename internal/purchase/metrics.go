package purchase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	purchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtu_purchases_total",
		Help: "Purchase attempts by service, provider and outcome.",
	}, []string{"service", "provider", "outcome"})

	purchaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vtu_purchase_duration_seconds",
		Help:    "End-to-end purchase latency including the provider call.",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "provider"})

	refundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtu_refunds_total",
		Help: "Automatic refunds issued after failed provider calls.",
	}, []string{"service", "provider"})

	sweeperResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtu_sweeper_resolutions_total",
		Help: "Stale pending transactions resolved by the reconciliation sweeper.",
	}, []string{"outcome"})
)
