// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orderhub"

var (
	// CheckoutTotal 按结果统计结账次数：success / insufficient / rejected / fault
	CheckoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_total",
		Help:      "Checkout attempts by outcome.",
	}, []string{"outcome"})

	// TransitionTotal 按目标状态和结果统计状态流转
	TransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transition_total",
		Help:      "Order state transition requests by target state and outcome.",
	}, []string{"to", "outcome"})

	OrdersLive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "orders",
		Help:      "Orders currently held by the hub.",
	})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscribers",
		Help:      "Registered hub subscribers.",
	})

	// SnapshotsCoalesced 订阅者队列满时被新快照替换掉的旧快照数
	SnapshotsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_coalesced_total",
		Help:      "Pending snapshots replaced by a newer one because a subscriber queue was full.",
	})

	SequenceLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sequence_lock_wait_seconds",
		Help:      "Time spent acquiring the sequence store lock.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})

	SequenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sequence_errors_total",
		Help:      "Sequence store failures by kind.",
	}, []string{"kind"})
)
