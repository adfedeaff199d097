package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the custody service.
type Metrics struct {
	// --- Instruction processing ---
	InstructionsApplied  *prometheus.CounterVec
	InstructionsRejected *prometheus.CounterVec
	InstructionDuration  *prometheus.HistogramVec
	EventsEmitted        *prometheus.CounterVec

	// --- Custody state ---
	VaultsTotal   prometheus.Gauge
	TVL           prometheus.Gauge
	RegistryPaused prometheus.Gauge
	DelegateCount prometheus.Gauge

	// --- Indexer persistence ---
	IndexEventsWritten  prometheus.Counter
	IndexBatchSize      prometheus.Histogram
	IndexBatchDuration  prometheus.Histogram
	IndexErrors         *prometheus.CounterVec
	IndexRetry          prometheus.Counter
	IndexDrops          prometheus.Counter

	// --- Reconciliation ---
	ReconcileRuns         prometheus.Counter
	ReconcileDiscrepancies prometheus.Gauge
	ReconcileDuration     prometheus.Histogram

	// --- Publisher ---
	PublishedEvents *prometheus.CounterVec
	PublishErrors   prometheus.Counter
	PublishDrops    prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		InstructionsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_instructions_applied_total",
			Help: "Instructions successfully committed",
		}, []string{"instruction"}),

		InstructionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_instructions_rejected_total",
			Help: "Instructions rejected (authorization, gates, arithmetic)",
		}, []string{"instruction", "code"}),

		InstructionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_instruction_duration_seconds",
			Help:    "Time to execute a single instruction",
			Buckets: latencyBuckets,
		}, []string{"instruction"}),

		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_events_emitted_total",
			Help: "Custody events emitted",
		}, []string{"event"}),

		VaultsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_vaults_total",
			Help: "Number of vaults",
		}),

		TVL: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_tvl_units",
			Help: "Sum of vault totals, in asset base units",
		}),

		RegistryPaused: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_registry_paused",
			Help: "1 when balance mutations are paused",
		}),

		DelegateCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_delegate_count",
			Help: "Delegates enrolled in the registry",
		}),

		IndexEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_index_events_written_total",
			Help: "Events written to Postgres",
		}),

		IndexBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_index_batch_size",
			Help:    "Events per index batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		IndexBatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_index_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		IndexErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_index_errors_total",
			Help: "Indexer persistence errors",
		}, []string{"error_type"}),

		IndexRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_index_retry_total",
			Help: "Indexer batch retries",
		}),

		IndexDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_index_drops_total",
			Help: "Events dropped due to full indexer channel",
		}),

		ReconcileRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_reconcile_runs_total",
			Help: "Reconciliation sweeps completed",
		}),

		ReconcileDiscrepancies: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_reconcile_discrepancies",
			Help: "Vaults whose total diverges from custody balance, last sweep",
		}),

		ReconcileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_reconcile_duration_seconds",
			Help:    "Reconciliation sweep duration",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),

		PublishedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_published_events_total",
			Help: "Events published to NATS",
		}, []string{"subject"}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_errors_total",
			Help: "NATS publish failures",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
