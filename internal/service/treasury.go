package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/poolcredit/internal/custody"
	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/ayo6706/poolcredit/internal/observability"
	"github.com/ayo6706/poolcredit/internal/repository"
	"go.uber.org/zap"
)

// VaultService owns the treasury record: the lending balance, the surplus, the fee policy
// and the paused flag.
type VaultService struct {
	store        QueryStore
	audit        *AuditService
	reserveAsset string
	maxFixedFee  uint64
}

func NewVaultService(store QueryStore, reserveAsset string) *VaultService {
	return &VaultService{
		store:        store,
		audit:        NewAuditService(store),
		reserveAsset: reserveAsset,
	}
}

// WithMaxFixedFee caps the fee SetFee accepts. Zero leaves the fee unbounded.
func (s *VaultService) WithMaxFixedFee(max uint64) *VaultService {
	s.maxFixedFee = max
	return s
}

type InitializeTreasuryRequest struct {
	Administrator string
	Syncer        string
	Verifier      string
	FixedFee      uint64
}

// InitializeTreasury creates the singleton treasury record and its custody accounts.
// It can succeed only once.
func (s *VaultService) InitializeTreasury(ctx context.Context, req InitializeTreasuryRequest) (*models.TreasuryConfig, error) {
	req.Administrator = strings.TrimSpace(req.Administrator)
	if req.Administrator == "" {
		return nil, domain.ErrUnauthorized
	}
	if err := s.checkFee(req.FixedFee); err != nil {
		return nil, err
	}

	var cfg models.TreasuryConfig
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		if _, err := qtx.GetTreasuryConfigForUpdate(ctx); err == nil {
			return domain.ErrInvalidTreasury
		} else if !isNotFound(err) {
			return fmt.Errorf("get treasury config: %w", err)
		}

		treasury := custody.TreasuryAuthority().Subject()
		vault, err := custody.EnsureAccount(ctx, qtx, custody.VaultAccount(), treasury, s.reserveAsset)
		if err != nil {
			return fmt.Errorf("create vault account: %w", err)
		}
		surplus, err := custody.EnsureAccount(ctx, qtx, custody.SurplusAccount(), treasury, s.reserveAsset)
		if err != nil {
			return fmt.Errorf("create surplus account: %w", err)
		}

		cfg = models.TreasuryConfig{
			Administrator:  req.Administrator,
			Syncer:         req.Syncer,
			Verifier:       req.Verifier,
			FixedFee:       req.FixedFee,
			ReserveAsset:   s.reserveAsset,
			VaultAccount:   vault.Address,
			SurplusAccount: surplus.Address,
		}
		if err := qtx.InsertTreasuryConfig(ctx, cfg); err != nil {
			if repository.IsUniqueViolation(err) {
				return domain.ErrInvalidTreasury
			}
			return fmt.Errorf("insert treasury config: %w", err)
		}

		return s.audit.Record(ctx, qtx, auditEntry{
			EntityType: "treasury",
			EntityID:   domain.SeedConfig,
			Actor:      req.Administrator,
			Action:     "initialized",
			NextState:  "ACTIVE",
			Metadata:   map[string]any{"syncer": req.Syncer, "verifier": req.Verifier, "fixed_fee": req.FixedFee},
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("treasury initialized", zap.String("administrator", cfg.Administrator), zap.Uint64("fixed_fee", cfg.FixedFee))
	return s.Treasury(ctx)
}

// Treasury returns the current treasury record.
func (s *VaultService) Treasury(ctx context.Context) (*models.TreasuryConfig, error) {
	cfg, err := s.store.Queries().GetTreasuryConfig(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrInvalidTreasury
		}
		return nil, fmt.Errorf("get treasury config: %w", err)
	}
	return &cfg, nil
}

// Deposit moves amount of the reserve asset from the caller into the vault. Anyone may deposit.
func (s *VaultService) Deposit(ctx context.Context, caller string, amount uint64) (*models.TreasuryConfig, error) {
	if amount == 0 {
		return nil, domain.ErrInvalidAmount
	}
	return s.mutate(ctx, caller, "deposit", func(qtx repository.Querier, cfg *models.TreasuryConfig, j *journal) error {
		if err := custody.Transfer(ctx, qtx, custody.TransferParams{
			From:      custody.AssociatedAccount(caller, cfg.ReserveAsset),
			To:        cfg.VaultAccount,
			Asset:     cfg.ReserveAsset,
			Amount:    amount,
			Authority: custody.Signer(caller),
		}); err != nil {
			return fmt.Errorf("deposit transfer: %w", err)
		}
		return j.credit(domain.LedgerBalance, amount, domain.EntryReasonDeposit)
	})
}

// Withdraw moves amount from the vault to the administrator.
func (s *VaultService) Withdraw(ctx context.Context, caller string, amount uint64) (*models.TreasuryConfig, error) {
	if amount == 0 {
		return nil, domain.ErrInvalidAmount
	}
	return s.mutate(ctx, caller, "withdraw", func(qtx repository.Querier, cfg *models.TreasuryConfig, j *journal) error {
		if caller != cfg.Administrator {
			return domain.ErrUnauthorized
		}
		if amount > cfg.Balance {
			return domain.ErrInsufficientBalance
		}
		if err := s.payAdministrator(ctx, qtx, cfg, cfg.VaultAccount, amount); err != nil {
			return fmt.Errorf("withdraw transfer: %w", err)
		}
		j.debit(domain.LedgerBalance, amount, domain.EntryReasonWithdraw)
		return nil
	})
}

// WithdrawSurplus moves settlement surplus to the administrator.
func (s *VaultService) WithdrawSurplus(ctx context.Context, caller string, amount uint64) (*models.TreasuryConfig, error) {
	if amount == 0 {
		return nil, domain.ErrInvalidAmount
	}
	return s.mutate(ctx, caller, "withdraw_surplus", func(qtx repository.Querier, cfg *models.TreasuryConfig, j *journal) error {
		if caller != cfg.Administrator {
			return domain.ErrUnauthorized
		}
		if amount > cfg.Surplus {
			return domain.ErrInsufficientBalance
		}
		if err := s.payAdministrator(ctx, qtx, cfg, cfg.SurplusAccount, amount); err != nil {
			return fmt.Errorf("surplus transfer: %w", err)
		}
		j.debit(domain.LedgerSurplus, amount, domain.EntryReasonSurplusWithdraw)
		return nil
	})
}

// SetFee replaces the fixed loan fee.
func (s *VaultService) SetFee(ctx context.Context, caller string, fee uint64) (*models.TreasuryConfig, error) {
	if err := s.checkFee(fee); err != nil {
		return nil, err
	}
	return s.mutate(ctx, caller, "fee_updated", func(qtx repository.Querier, cfg *models.TreasuryConfig, _ *journal) error {
		if caller != cfg.Administrator {
			return domain.ErrUnauthorized
		}
		cfg.FixedFee = fee
		return nil
	})
}

// SetPaused stops or resumes loan issuance.
func (s *VaultService) SetPaused(ctx context.Context, caller string, paused bool) (*models.TreasuryConfig, error) {
	action := "unpaused"
	if paused {
		action = "paused"
	}
	return s.mutate(ctx, caller, action, func(qtx repository.Querier, cfg *models.TreasuryConfig, _ *journal) error {
		if caller != cfg.Administrator {
			return domain.ErrUnauthorized
		}
		cfg.Paused = paused
		return nil
	})
}

func (s *VaultService) checkFee(fee uint64) error {
	if s.maxFixedFee > 0 && fee > s.maxFixedFee {
		return domain.ErrInvalidFee
	}
	return nil
}

func (s *VaultService) payAdministrator(ctx context.Context, qtx repository.Querier, cfg *models.TreasuryConfig, from string, amount uint64) error {
	dst, err := custody.EnsureAssociatedAccount(ctx, qtx, cfg.Administrator, cfg.ReserveAsset)
	if err != nil {
		return err
	}
	return custody.Transfer(ctx, qtx, custody.TransferParams{
		From:      from,
		To:        dst.Address,
		Asset:     cfg.ReserveAsset,
		Amount:    amount,
		Authority: custody.TreasuryAuthority(),
	})
}

// mutate runs fn against the locked treasury record and persists the result with an
// audit entry in the same transaction.
func (s *VaultService) mutate(ctx context.Context, caller, action string, fn func(qtx repository.Querier, cfg *models.TreasuryConfig, j *journal) error) (*models.TreasuryConfig, error) {
	var out models.TreasuryConfig
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		cfg, err := qtx.GetTreasuryConfigForUpdate(ctx)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrInvalidTreasury
			}
			return fmt.Errorf("lock treasury config: %w", err)
		}
		before := cfg

		j := newJournal(&cfg, caller)
		if err := fn(qtx, &cfg, j); err != nil {
			return err
		}
		if err := j.flush(ctx, qtx, ""); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, qtx, auditEntry{
			EntityType: "treasury",
			EntityID:   domain.SeedConfig,
			Actor:      caller,
			Action:     action,
			PrevState:  treasuryState(before),
			NextState:  treasuryState(cfg),
			Metadata: map[string]any{
				"balance_before":   before.Balance,
				"balance_after":    cfg.Balance,
				"surplus_before":   before.Surplus,
				"surplus_after":    cfg.Surplus,
				"fixed_fee_before": before.FixedFee,
				"fixed_fee_after":  cfg.FixedFee,
			},
		}); err != nil {
			return err
		}
		out = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.SetTreasury(out.Balance, out.Surplus)
	zap.L().Info("treasury updated",
		zap.String("action", action),
		zap.String("caller", caller),
		zap.Uint64("balance", out.Balance),
		zap.Uint64("surplus", out.Surplus),
	)
	return &out, nil
}

func treasuryState(cfg models.TreasuryConfig) string {
	if cfg.Paused {
		return "PAUSED"
	}
	return "ACTIVE"
}
