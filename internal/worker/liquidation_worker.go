package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/ayo6706/poolcredit/internal/observability"
	"github.com/ayo6706/poolcredit/internal/service"
	"go.uber.org/zap"
)

// ExpiredLoanSource lists loans past their self-settlement window.
type ExpiredLoanSource interface {
	ExpiredOpenLoans(ctx context.Context, limit int32) ([]models.Loan, int64, error)
}

// Liquidator force-settles an expired loan.
type Liquidator interface {
	Liquidate(ctx context.Context, req service.SettleRequest) (*service.SettlementResult, error)
}

// LiquidationWorker polls for expired open loans. It always exports the backlog gauge
// and, when given a keeper identity, liquidates each loan with zero slippage floors.
type LiquidationWorker struct {
	loans        ExpiredLoanSource
	liquidator   Liquidator
	keeper       string
	pollInterval time.Duration
	batchSize    int32
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// NewLiquidationWorker creates a worker that only monitors until WithKeeper is set.
func NewLiquidationWorker(loans ExpiredLoanSource, liquidator Liquidator) *LiquidationWorker {
	return &LiquidationWorker{
		loans:        loans,
		liquidator:   liquidator,
		pollInterval: 30 * time.Second,
		batchSize:    20,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *LiquidationWorker) WithPollInterval(interval time.Duration) *LiquidationWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithBatchSize sets how many expired loans one pass handles.
func (w *LiquidationWorker) WithBatchSize(size int32) *LiquidationWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// WithKeeper enables auto-liquidation signed by keeper.
func (w *LiquidationWorker) WithKeeper(keeper string) *LiquidationWorker {
	w.keeper = keeper
	return w
}

// Start runs until Stop is called or the context is canceled.
func (w *LiquidationWorker) Start(ctx context.Context) {
	zap.L().Info("liquidation worker starting",
		zap.Duration("interval", w.pollInterval),
		zap.Int32("batch_size", w.batchSize),
		zap.Bool("auto_liquidate", w.keeper != ""),
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("liquidation worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("liquidation worker stop signal received")
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				zap.L().Error("liquidation pass failed", zap.Error(err))
			}
		}
	}
}

// Stop signals the worker to stop.
func (w *LiquidationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *LiquidationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce runs a single pass and returns how many loans it liquidated. A loan that
// fails to liquidate is logged and skipped; the next pass retries it.
func (w *LiquidationWorker) ProcessOnce(ctx context.Context) (int, error) {
	loans, total, err := w.loans.ExpiredOpenLoans(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("liquidation", "failed")
		return 0, err
	}
	observability.SetExpiredOpenLoans(total)
	if w.keeper == "" {
		if total > 0 {
			zap.L().Warn("expired loans awaiting liquidation", zap.Int64("count", total))
		}
		observability.IncrementWorkerRun("liquidation", "success")
		return 0, nil
	}

	liquidated := 0
	for _, loan := range loans {
		_, err := w.liquidator.Liquidate(ctx, service.SettleRequest{Pool: loan.Pool, Caller: w.keeper})
		switch {
		case err == nil:
			liquidated++
		case errors.Is(err, domain.ErrLoanAlreadyRepaid), errors.Is(err, domain.ErrConcurrentUpdate):
			// settled or locked by someone else in the meantime
			zap.L().Debug("skipping loan", zap.String("pool", loan.Pool), zap.Error(err))
		default:
			zap.L().Error("liquidation failed", zap.String("pool", loan.Pool), zap.Error(err))
		}
	}
	observability.SetExpiredOpenLoans(total - int64(liquidated))
	observability.IncrementWorkerRun("liquidation", "success")
	return liquidated, nil
}

func (w *LiquidationWorker) String() string {
	return fmt.Sprintf("LiquidationWorker(interval=%v, batch=%d, keeper=%q)", w.pollInterval, w.batchSize, w.keeper)
}
