package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	ledgerImbalanceCounter *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	loansOpenedCounter     prometheus.Counter
	loansSettledCounter    *prometheus.CounterVec
	settlementReserve      *prometheus.CounterVec
	treasuryGauge          *prometheus.GaugeVec
	expiredLoansGauge      prometheus.Gauge
	eventPublishCounter    *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "treasury_ledger_imbalance_total",
			Help: "Number of times a treasury counter diverged from its custody account or journal",
		}, []string{"ledger"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		loansOpenedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loans_opened_total",
			Help: "Loans issued",
		})

		loansSettledCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loans_settled_total",
			Help: "Loans closed by repayment or liquidation",
		}, []string{"path"})

		settlementReserve = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_reserve_units_total",
			Help: "Reserve asset (whole units) returned, kept as surplus, or lost as shortfall at settlement",
		}, []string{"kind"})

		treasuryGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "treasury_reserve_units",
			Help: "Treasury counters in whole reserve units",
		}, []string{"ledger"})

		expiredLoansGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loans_expired_open",
			Help: "Loans past their deadline that are not yet settled",
		})

		eventPublishCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidation_events_published_total",
			Help: "Liquidation notification publish outcomes",
		}, []string{"backend", "result"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerImbalanceCounter,
			idempotencyCounter,
			loansOpenedCounter,
			loansSettledCounter,
			settlementReserve,
			treasuryGauge,
			expiredLoansGauge,
			eventPublishCounter,
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

func IncrementLedgerImbalance(ledger string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(ledger).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementLoansOpened() {
	if loansOpenedCounter == nil {
		return
	}
	loansOpenedCounter.Inc()
}

// ObserveSettlement records a closed loan and its reserve outcome in base units.
func ObserveSettlement(path string, returned, surplus, shortfall uint64) {
	if loansSettledCounter == nil {
		return
	}
	loansSettledCounter.WithLabelValues(path).Inc()
	settlementReserve.WithLabelValues("returned").Add(reserveUnits(returned))
	settlementReserve.WithLabelValues("surplus").Add(reserveUnits(surplus))
	settlementReserve.WithLabelValues("shortfall").Add(reserveUnits(shortfall))
}

func SetTreasury(balance, surplus uint64) {
	if treasuryGauge == nil {
		return
	}
	treasuryGauge.WithLabelValues(domain.LedgerBalance).Set(reserveUnits(balance))
	treasuryGauge.WithLabelValues(domain.LedgerSurplus).Set(reserveUnits(surplus))
}

func SetExpiredOpenLoans(n int64) {
	if expiredLoansGauge == nil {
		return
	}
	expiredLoansGauge.Set(float64(n))
}

func IncrementEventPublish(backend, result string) {
	if eventPublishCounter == nil {
		return
	}
	eventPublishCounter.WithLabelValues(backend, result).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func reserveUnits(baseUnits uint64) float64 {
	return domain.NewReserveAmount(baseUnits).ToDecimal().InexactFloat64()
}
