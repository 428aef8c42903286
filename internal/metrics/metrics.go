// Package metrics holds the Prometheus instruments shared by the sync engine,
// the relay and the event bus. All collectors are registered with the default
// registry, so the REST gateway only needs promhttp.Handler() to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OutboxAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventario_outbox_appended_total",
			Help: "Outbox entries appended, by operation.",
		}, []string{"operation"})

	OutboxAcknowledgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventario_outbox_acknowledged_total",
			Help: "Outbox entries flipped from pending to synced.",
		})

	OutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventario_outbox_pending",
			Help: "Outbox entries currently awaiting delivery.",
		})

	RecordsSyncedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventario_records_synced_total",
			Help: "Records that converged to the synced state.",
		})

	MutationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventario_mutation_errors_total",
			Help: "Failed mutations, by operation and error kind.",
		}, []string{"operation", "kind"})

	RelayPushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventario_relay_push_total",
			Help: "Relay push attempts, by result.",
		}, []string{"result"}) // result: delivered|failed

	RelayPushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inventario_relay_push_duration_seconds",
			Help:    "Latency of a single relay push to the remote.",
			Buckets: prometheus.DefBuckets,
		})

	BusDroppedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventario_bus_dropped_events_total",
			Help: "Events dropped because a subscriber buffer was full.",
		})
)

func init() {
	prometheus.MustRegister(
		OutboxAppendedTotal,
		OutboxAcknowledgedTotal,
		OutboxPending,
		RecordsSyncedTotal,
		MutationErrorsTotal,
		RelayPushTotal,
		RelayPushDuration,
		BusDroppedEventsTotal,
	)
}
