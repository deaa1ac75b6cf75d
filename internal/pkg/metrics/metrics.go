package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 结算与库存账本的核心指标。
// result 标签取值: committed / aborted。
// reason 标签取值: insufficient_stock / empty_cart / busy / internal 等。
var (
	CheckoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "checkout_total",
		Help:      "Checkout attempts by final result.",
	}, []string{"result", "reason"})

	CheckoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "storefront",
		Name:      "checkout_duration_seconds",
		Help:      "End-to-end checkout latency.",
		Buckets:   prometheus.DefBuckets,
	})

	ReserveConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "inventory_reserve_conflicts_total",
		Help:      "Reserve attempts rejected for insufficient available stock.",
	})

	LockTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "inventory_lock_timeouts_total",
		Help:      "Per-product lock acquisitions that timed out.",
	})

	// ReleaseClamps 不应增长；任何增长都意味着上游的预占记账出了问题。
	ReleaseClamps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "inventory_release_clamps_total",
		Help:      "Release operations clamped to keep reserved stock non-negative.",
	})

	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "inventory_invariant_violations_total",
		Help:      "Fatal reservation-protocol violations detected by the ledger.",
	})
)
