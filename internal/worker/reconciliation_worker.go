package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayo6706/poolcredit/internal/observability"
	"github.com/ayo6706/poolcredit/internal/service"
	"go.uber.org/zap"
)

// Reconciler checks the treasury ledgers.
type Reconciler interface {
	Run(ctx context.Context) (*service.ReconciliationReport, error)
}

// ReconciliationWorker compares the treasury counters with custody and the journal on
// a fixed interval, starting with one pass at startup.
type ReconciliationWorker struct {
	svc      Reconciler
	interval time.Duration
	last     atomic.Pointer[service.ReconciliationReport]
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewReconciliationWorker(svc Reconciler) *ReconciliationWorker {
	return &ReconciliationWorker{
		svc:      svc,
		interval: time.Hour,
		stopCh:   make(chan struct{}),
	}
}

func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// LastReport returns the most recent successful report, or nil before the first one.
func (w *ReconciliationWorker) LastReport() *service.ReconciliationReport {
	return w.last.Load()
}

func (w *ReconciliationWorker) Start(ctx context.Context) {
	zap.L().Info("reconciliation worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	_, _ = w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("reconciliation worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("reconciliation worker stop signal received")
			return
		case <-ticker.C:
			_, _ = w.ProcessOnce(ctx)
		}
	}
}

func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce runs one reconciliation pass. Each ledger that disagrees is logged on
// its own line so an operator can see which counter drifted.
func (w *ReconciliationWorker) ProcessOnce(ctx context.Context) (*service.ReconciliationReport, error) {
	report, err := w.svc.Run(ctx)
	if err != nil {
		observability.IncrementWorkerRun("reconciliation", "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return nil, err
	}
	w.last.Store(report)

	if report.Balanced {
		observability.IncrementWorkerRun("reconciliation", "success")
		return report, nil
	}
	observability.IncrementWorkerRun("reconciliation", "imbalanced")
	for _, check := range report.Checks {
		if check.Balanced {
			continue
		}
		zap.L().Warn("treasury ledger imbalanced",
			zap.String("ledger", check.Ledger),
			zap.Uint64("counter", check.Counter),
			zap.Uint64("custody", check.Custody),
			zap.Stringer("journal", check.Journal),
		)
	}
	return report, nil
}
