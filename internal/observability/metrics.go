package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the portfolio engine.
type Metrics struct {
	// --- Portfolio Store ---
	StoreTradesRecorded prometheus.Counter
	StoreTradesDeduped  prometheus.Counter
	StoreTradesRejected *prometheus.CounterVec
	StoreHistoryEvicted prometheus.Counter
	StoreHistoryLength  prometheus.Gauge
	StoreMutationDur    *prometheus.HistogramVec
	StoreOpenPositions  prometheus.Gauge

	// --- Ledger recomputation ---
	LedgerRecomputes   prometheus.Counter
	LedgerRecomputeDur prometheus.Histogram

	// --- Synchronizer ---
	SyncState           prometheus.Gauge
	SyncReconnects      prometheus.Counter
	SyncMessages        *prometheus.CounterVec
	SyncMessagesDropped *prometheus.CounterVec
	SyncFallbackPolls   prometheus.Counter
	SyncPollErrors      prometheus.Counter
	SyncRefreshes       *prometheus.CounterVec
	SyncLastSyncedAt    prometheus.Gauge

	// --- Stream transport ---
	StreamConnects    prometheus.Counter
	StreamDisconnects prometheus.Counter

	// --- Query channel ---
	QueryRequests *prometheus.CounterVec
	QueryErrors   *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// --- Session persistence ---
	SessionFlushes     prometheus.Counter
	SessionFlushErrors prometheus.Counter
	SessionFlushDur    prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	mutationBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005, 0.0001,
		0.00025, 0.0005, 0.001, 0.002, 0.005,
	}

	queryBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0,
	}

	return &Metrics{
		// Portfolio Store
		StoreTradesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_store_trades_recorded_total",
			Help: "Trades appended to the session history",
		}),

		StoreTradesDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_store_trades_deduped_total",
			Help: "Repeat trade IDs ignored as no-ops",
		}),

		StoreTradesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_store_trades_rejected_total",
			Help: "Structurally invalid trades rejected before the ledger",
		}, []string{"reason"}),

		StoreHistoryEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_store_history_evicted_total",
			Help: "Oldest trades evicted past the history cap",
		}),

		StoreHistoryLength: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "paper_store_history_length",
			Help: "Current trade history length",
		}),

		StoreMutationDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paper_store_mutation_duration_seconds",
			Help:    "Time holding the store write lock per mutation",
			Buckets: mutationBuckets,
		}, []string{"op"}),

		StoreOpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "paper_store_open_positions",
			Help: "Number of open positions",
		}),

		// Ledger
		LedgerRecomputes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_ledger_recomputes_total",
			Help: "Full ledger recomputations over the trade history",
		}),

		LedgerRecomputeDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "paper_ledger_recompute_duration_seconds",
			Help:    "Ledger recomputation duration",
			Buckets: mutationBuckets,
		}),

		// Synchronizer
		SyncState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "paper_sync_state",
			Help: "Connection state (0=disconnected, 1=connecting, 2=connected)",
		}),

		SyncReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_sync_reconnects_total",
			Help: "Reconnect attempts scheduled",
		}),

		SyncMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_sync_messages_total",
			Help: "Stream messages dispatched to the store",
		}, []string{"kind"}),

		SyncMessagesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_sync_messages_dropped_total",
			Help: "Stream messages dropped (malformed, unknown kind)",
		}, []string{"reason"}),

		SyncFallbackPolls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_sync_fallback_polls_total",
			Help: "Fallback polls issued while disconnected",
		}),

		SyncPollErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_sync_poll_errors_total",
			Help: "Fallback polls that failed",
		}),

		SyncRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_sync_refreshes_total",
			Help: "Manual and deferred refreshes",
		}, []string{"scope"}),

		SyncLastSyncedAt: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "paper_sync_last_synced_timestamp_seconds",
			Help: "Unix time of the last successful store update",
		}),

		// Stream transport
		StreamConnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_stream_connects_total",
			Help: "Successful stream connections",
		}),

		StreamDisconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_stream_disconnects_total",
			Help: "Stream disconnects (close or error)",
		}),

		// Query channel
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_query_requests_total",
			Help: "Request/reply queries issued",
		}, []string{"subject"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_query_errors_total",
			Help: "Request/reply queries that failed",
		}, []string{"subject"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paper_query_duration_seconds",
			Help:    "Request/reply round-trip duration",
			Buckets: queryBuckets,
		}, []string{"subject"}),

		// Session persistence
		SessionFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_session_flushes_total",
			Help: "Session snapshots written to Postgres",
		}),

		SessionFlushErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_session_flush_errors_total",
			Help: "Session snapshot writes that failed",
		}),

		SessionFlushDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "paper_session_flush_duration_seconds",
			Help:    "Session snapshot write duration",
			Buckets: queryBuckets,
		}),
	}
}
