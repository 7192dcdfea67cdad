package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayo6706/poolcredit/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReconciler struct {
	runs   atomic.Int32
	report *service.ReconciliationReport
	err    error
}

func (c *countingReconciler) Run(context.Context) (*service.ReconciliationReport, error) {
	c.runs.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	if c.report != nil {
		return c.report, nil
	}
	return &service.ReconciliationReport{Balanced: true}, nil
}

func TestReconciliationWorker_RunsAtStartup(t *testing.T) {
	rec := &countingReconciler{}
	w := NewReconciliationWorker(rec).WithInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return rec.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	require.NotNil(t, w.LastReport())
	assert.True(t, w.LastReport().Balanced)
}

func TestReconciliationWorker_ProcessOnce(t *testing.T) {
	imbalanced := &service.ReconciliationReport{
		Balanced: false,
		Checks: []service.LedgerCheck{
			{Ledger: "balance", Counter: 10, Custody: 10, Journal: decimal.NewFromInt(10), Balanced: true},
			{Ledger: "surplus", Counter: 5, Custody: 4, Journal: decimal.NewFromInt(5), Balanced: false},
		},
	}
	w := NewReconciliationWorker(&countingReconciler{report: imbalanced})
	report, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Balanced)
	assert.Same(t, imbalanced, w.LastReport())

	failing := NewReconciliationWorker(&countingReconciler{err: errors.New("db down")})
	_, err = failing.ProcessOnce(context.Background())
	assert.Error(t, err)
	assert.Nil(t, failing.LastReport())
}
