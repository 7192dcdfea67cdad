package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/poolcredit/internal/custody"
	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/ayo6706/poolcredit/internal/observability"
	"github.com/ayo6706/poolcredit/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerCheck compares one treasury counter with its custody account and its journal.
type LedgerCheck struct {
	Ledger   string          `json:"ledger"`
	Counter  uint64          `json:"counter"`
	Custody  uint64          `json:"custody"`
	Journal  decimal.Decimal `json:"journal"`
	Balanced bool            `json:"balanced"`
}

// ReconciliationReport is the outcome of one reconciliation run.
type ReconciliationReport struct {
	Checks   []LedgerCheck `json:"checks"`
	Balanced bool          `json:"balanced"`
}

// ReconciliationService verifies that the treasury counters match both the reserve held in
// custody and the journaled entries.
type ReconciliationService struct {
	store QueryStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run checks balance against the vault account and surplus against the surplus account.
// Imbalances are reported, logged and counted; they are not errors.
func (s *ReconciliationService) Run(ctx context.Context) (*ReconciliationReport, error) {
	var (
		cfg    models.TreasuryConfig
		report = &ReconciliationReport{Balanced: true}
	)
	// The counter, custody and journal reads share one snapshot; a deposit committing
	// between them must not look like drift.
	err := s.store.RunInReadTx(ctx, func(qtx repository.Querier) error {
		var err error
		cfg, err = qtx.GetTreasuryConfig(ctx)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrInvalidTreasury
			}
			return fmt.Errorf("get treasury config: %w", err)
		}
		for _, l := range []struct {
			ledger  string
			counter uint64
			account string
		}{
			{domain.LedgerBalance, cfg.Balance, cfg.VaultAccount},
			{domain.LedgerSurplus, cfg.Surplus, cfg.SurplusAccount},
		} {
			held, err := custody.Balance(ctx, qtx, l.account)
			if err != nil {
				return fmt.Errorf("read %s custody: %w", l.ledger, err)
			}
			net, err := qtx.GetTreasuryEntryNet(ctx, l.ledger)
			if err != nil {
				return fmt.Errorf("run %s net query: %w", l.ledger, err)
			}
			check := LedgerCheck{Ledger: l.ledger, Counter: l.counter, Custody: held, Journal: net}
			check.Balanced = held == l.counter && net.Equal(decimal.NewFromUint64(l.counter))
			report.Checks = append(report.Checks, check)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, check := range report.Checks {
		if check.Balanced {
			continue
		}
		report.Balanced = false
		observability.IncrementLedgerImbalance(check.Ledger)
		zap.L().Error("CRITICAL: treasury ledger imbalance detected",
			zap.String("ledger", check.Ledger),
			zap.Uint64("counter", check.Counter),
			zap.Uint64("custody", check.Custody),
			zap.Stringer("journal_net", check.Journal),
		)
	}
	if report.Balanced {
		zap.L().Info("Treasury ledgers balanced", zap.Uint64("balance", cfg.Balance), zap.Uint64("surplus", cfg.Surplus))
	}
	return report, nil
}
