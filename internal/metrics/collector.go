package metrics

import (
	"github.com/MarcoPoloResearchLab/feedsync/internal/materialize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "feedsync"

// Collector exports poll cycle metrics.
type Collector struct {
	cyclesTotal        *prometheus.CounterVec
	cycleDuration      *prometheus.HistogramVec
	fetchedTotal       *prometheus.CounterVec
	appliedTotal       *prometheus.CounterVec
	kindFailuresTotal  *prometheus.CounterVec
	pendingEvictions   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	pendingGauge       *prometheus.GaugeVec
}

// NewCollector registers the cycle metrics on registerer.
func NewCollector(registerer prometheus.Registerer) *Collector {
	factory := promauto.With(registerer)
	return &Collector{
		cyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Poll cycles by group and outcome",
			},
			[]string{"group", "outcome"},
		),
		cycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Poll cycle duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"group"},
		),
		fetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetched_transactions_total",
				Help:      "Transactions fetched from the node",
			},
			[]string{"group"},
		),
		appliedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "applied_transactions_total",
				Help:      "Transactions applied to the local view by kind",
			},
			[]string{"group", "kind"},
		),
		kindFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kind_failures_total",
				Help:      "Kind units of work that rolled back",
			},
			[]string{"group", "kind"},
		),
		pendingEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pending_evictions_total",
				Help:      "Pending transactions evicted after reaching the attempt limit",
			},
			[]string{"group"},
		),
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications derived from applied transactions",
			},
			[]string{"group"},
		),
		pendingGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_transactions",
				Help:      "Transactions waiting for their parent",
			},
			[]string{"group"},
		),
	}
}

// ObserveCycle records one cycle report.
func (c *Collector) ObserveCycle(report materialize.CycleReport) {
	group := report.GroupID
	c.cyclesTotal.WithLabelValues(group, outcome(report)).Inc()
	c.cycleDuration.WithLabelValues(group).Observe(report.Duration.Seconds())
	if report.FetchFailed {
		return
	}
	c.fetchedTotal.WithLabelValues(group).Add(float64(report.Fetched))
	for kind, count := range report.Applied {
		c.appliedTotal.WithLabelValues(group, string(kind)).Add(float64(count))
	}
	for _, kind := range report.FailedKinds {
		c.kindFailuresTotal.WithLabelValues(group, string(kind)).Inc()
	}
	c.pendingEvictions.WithLabelValues(group).Add(float64(report.Evicted))
	c.notificationsTotal.WithLabelValues(group).Add(float64(report.Notifications))
	c.pendingGauge.WithLabelValues(group).Set(float64(report.Pending))
}

func outcome(report materialize.CycleReport) string {
	switch {
	case report.FetchFailed:
		return "fetch_failed"
	case len(report.FailedKinds) > 0:
		return "partial"
	}
	return "ok"
}
