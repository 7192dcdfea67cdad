package service

import (
	"context"
	"fmt"
	"math"

	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/ayo6706/poolcredit/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// journal applies treasury counter changes to a locked TreasuryConfig and records one
// entry per change. Every change must sit next to the token transfer it mirrors.
type journal struct {
	cfg     *models.TreasuryConfig
	actor   string
	entries []models.TreasuryEntry
}

func newJournal(cfg *models.TreasuryConfig, actor string) *journal {
	return &journal{cfg: cfg, actor: actor}
}

func (j *journal) counter(ledger string) *uint64 {
	if ledger == domain.LedgerSurplus {
		return &j.cfg.Surplus
	}
	return &j.cfg.Balance
}

func (j *journal) credit(ledger string, amount uint64, reason string) error {
	if amount == 0 {
		return nil
	}
	c := j.counter(ledger)
	if *c > math.MaxUint64-amount {
		return fmt.Errorf("treasury %s: %w", ledger, domain.ErrArithmeticOverflow)
	}
	*c += amount
	j.record(ledger, domain.DirectionCredit, amount, reason)
	return nil
}

// debit decrements with saturation at zero. Saturation means the counter and the vault
// disagree; it is logged and left for reconciliation to flag.
func (j *journal) debit(ledger string, amount uint64, reason string) {
	if amount == 0 {
		return
	}
	c := j.counter(ledger)
	next, saturated := saturatingSub(*c, amount)
	if saturated {
		zap.L().Error("treasury counter saturated at zero",
			zap.String("ledger", ledger),
			zap.String("reason", reason),
			zap.Uint64("counter", *c),
			zap.Uint64("amount", amount),
		)
	}
	*c = next
	j.record(ledger, domain.DirectionDebit, amount, reason)
}

func (j *journal) record(ledger, direction string, amount uint64, reason string) {
	j.entries = append(j.entries, models.TreasuryEntry{
		ID:        uuid.New(),
		Ledger:    ledger,
		Direction: direction,
		Amount:    amount,
		Reason:    reason,
		Actor:     j.actor,
	})
}

// flush persists the entries and the updated counters. pool may be empty.
func (j *journal) flush(ctx context.Context, qtx repository.Querier, pool string) error {
	for _, e := range j.entries {
		if pool != "" {
			p := pool
			e.Pool = &p
		}
		if err := qtx.InsertTreasuryEntry(ctx, e); err != nil {
			return fmt.Errorf("insert treasury entry: %w", err)
		}
	}
	rows, err := qtx.UpdateTreasuryConfig(ctx, *j.cfg)
	if err != nil {
		return fmt.Errorf("update treasury config: %w", err)
	}
	return requireExactlyOne(rows, "update treasury config")
}
