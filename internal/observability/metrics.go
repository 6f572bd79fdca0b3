package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	webhookCounter        *prometheus.CounterVec
	withdrawalCounter     *prometheus.CounterVec
	railAttemptCounter    *prometheus.CounterVec
	stuckWithdrawalsGauge prometheus.Gauge
	journalDriftGauge     prometheus.Gauge
	outboxDispatchCounter *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		webhookCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deposit_webhook_total",
			Help: "Deposit webhook reconciliation outcomes",
		}, []string{"outcome"})

		withdrawalCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "withdrawal_transitions_total",
			Help: "Withdrawal state machine transitions",
		}, []string{"to"})

		railAttemptCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rail_transfer_attempts_total",
			Help: "Outbound rail transfer attempt outcomes",
		}, []string{"result"})

		stuckWithdrawalsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "withdrawals_stuck_processing",
			Help: "Withdrawals sitting in PROCESSING past the staleness cutoff",
		})

		journalDriftGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journal_balance_drift_accounts",
			Help: "Accounts whose journal no longer replays to the stored balance",
		})

		outboxDispatchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_dispatch_total",
			Help: "Outbox event dispatch outcomes",
		}, []string{"result"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			webhookCounter,
			withdrawalCounter,
			railAttemptCounter,
			stuckWithdrawalsGauge,
			journalDriftGauge,
			outboxDispatchCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementWebhookOutcome(outcome string) {
	if webhookCounter == nil {
		return
	}
	webhookCounter.WithLabelValues(outcome).Inc()
}

func IncrementWithdrawalTransition(to string) {
	if withdrawalCounter == nil {
		return
	}
	withdrawalCounter.WithLabelValues(to).Inc()
}

func IncrementRailAttempt(result string) {
	if railAttemptCounter == nil {
		return
	}
	railAttemptCounter.WithLabelValues(result).Inc()
}

func SetStuckWithdrawals(count int64) {
	if stuckWithdrawalsGauge == nil {
		return
	}
	stuckWithdrawalsGauge.Set(float64(count))
}

func SetJournalDrift(count int64) {
	if journalDriftGauge == nil {
		return
	}
	journalDriftGauge.Set(float64(count))
}

func IncrementOutboxDispatch(result string) {
	if outboxDispatchCounter == nil {
		return
	}
	outboxDispatchCounter.WithLabelValues(result).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
