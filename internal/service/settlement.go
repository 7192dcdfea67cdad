package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/poolcredit/internal/amm"
	"github.com/ayo6706/poolcredit/internal/custody"
	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/events"
	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/ayo6706/poolcredit/internal/observability"
	"github.com/ayo6706/poolcredit/internal/repository"
	"go.uber.org/zap"
)

// SettlementService closes loans: by the borrower before the deadline (Repay) or by
// anyone after it (Liquidate).
type SettlementService struct {
	store     QueryStore
	amm       amm.Protocol
	audit     *AuditService
	publisher events.Publisher
	now       Clock
}

func NewSettlementService(store QueryStore, protocol amm.Protocol, publisher events.Publisher) *SettlementService {
	if publisher == nil {
		publisher = events.NewLogPublisher(nil)
	}
	return &SettlementService{
		store:     store,
		amm:       protocol,
		audit:     NewAuditService(store),
		publisher: publisher,
		now:       systemClock,
	}
}

// WithClock overrides the time source.
func (s *SettlementService) WithClock(now Clock) *SettlementService {
	if now != nil {
		s.now = now
	}
	return s
}

// SettleRequest identifies the loan and the redemption bounds. LPAmount zero redeems the
// whole custodied balance.
type SettleRequest struct {
	Pool             string
	Caller           string
	LPAmount         uint64
	MinReserveOut    uint64
	MinCollateralOut uint64
}

// SettlementResult reports what the redemption produced and where the reserve went.
type SettlementResult struct {
	Loan               models.Loan `json:"loan"`
	Path               string      `json:"path"`
	LPRedeemed         uint64      `json:"lp_redeemed"`
	ReserveReceived    uint64      `json:"reserve_received"`
	ReserveReturned    uint64      `json:"reserve_returned"`
	Surplus            uint64      `json:"surplus"`
	Shortfall          uint64      `json:"shortfall"`
	CollateralReceived uint64      `json:"collateral_received"`
}

// Repay settles the caller's own loan. It fails with ErrLoanExpired after the deadline.
func (s *SettlementService) Repay(ctx context.Context, req SettleRequest) (*SettlementResult, error) {
	return s.settle(ctx, req, domain.SettlementPathRepay)
}

// Liquidate settles any loan past its deadline and notifies subscribers.
func (s *SettlementService) Liquidate(ctx context.Context, req SettleRequest) (*SettlementResult, error) {
	res, err := s.settle(ctx, req, domain.SettlementPathLiquidation)
	if err != nil {
		return nil, err
	}

	evt := events.LoanLiquidated{
		Pool:       res.Loan.Pool,
		Borrower:   res.Loan.Borrower,
		Liquidator: req.Caller,
		Amount:     res.ReserveReturned,
		Timestamp:  res.Loan.SettledAt.Unix(),
	}
	if err := s.publisher.PublishLiquidation(ctx, evt); err != nil {
		observability.IncrementEventPublish(s.publisher.Name(), "error")
		zap.L().Error("publish liquidation event failed", zap.String("pool", evt.Pool), zap.Error(err))
	} else {
		observability.IncrementEventPublish(s.publisher.Name(), "ok")
	}
	return res, nil
}

func (s *SettlementService) settle(ctx context.Context, req SettleRequest, path string) (*SettlementResult, error) {
	if req.Caller == "" {
		return nil, domain.ErrUnauthorized
	}

	var res SettlementResult
	var treasury models.TreasuryConfig
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		cfg, err := qtx.GetTreasuryConfigForUpdate(ctx)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrInvalidTreasury
			}
			return fmt.Errorf("lock treasury config: %w", err)
		}
		loan, err := qtx.GetLoanForUpdate(ctx, req.Pool)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrLoanNotFound
			}
			return fmt.Errorf("lock loan: %w", err)
		}
		prevState := loanStatus(loan)
		nextState := statusForPath(path)
		if err := checkLoanTransition(loan, nextState); err != nil {
			return err
		}

		now := s.now()
		switch path {
		case domain.SettlementPathRepay:
			if req.Caller != loan.Borrower {
				return domain.ErrUnauthorized
			}
			if loan.Expired(now) {
				return domain.ErrLoanExpired
			}
		case domain.SettlementPathLiquidation:
			if !loan.Expired(now) {
				return domain.ErrLoanNotExpired
			}
		}

		// The caller receives the released LP and whatever collateral the pool returns;
		// only the reserve side flows back to the treasury.
		custodied, err := custody.Balance(ctx, qtx, loan.LPCustodyAccount)
		if err != nil {
			return err
		}
		lp := req.LPAmount
		if lp == 0 {
			lp = custodied
		}
		if lp == 0 || lp > custodied {
			return domain.ErrInsufficientTokenBalance
		}

		receiver := req.Caller
		receiverLP, err := custody.EnsureAssociatedAccount(ctx, qtx, receiver, loan.LPAsset)
		if err != nil {
			return fmt.Errorf("receiver lp account: %w", err)
		}
		if err := custody.Transfer(ctx, qtx, custody.TransferParams{
			From:      loan.LPCustodyAccount,
			To:        receiverLP.Address,
			Asset:     loan.LPAsset,
			Amount:    lp,
			Authority: custody.LoanAuthority(loan.Pool),
		}); err != nil {
			return fmt.Errorf("release lp: %w", err)
		}

		reserveAcct, err := custody.EnsureAssociatedAccount(ctx, qtx, receiver, cfg.ReserveAsset)
		if err != nil {
			return fmt.Errorf("receiver reserve account: %w", err)
		}
		collateralAcct, err := custody.EnsureAssociatedAccount(ctx, qtx, receiver, loan.CollateralAsset)
		if err != nil {
			return fmt.Errorf("receiver collateral account: %w", err)
		}
		reserveBefore, collateralBefore := reserveAcct.Amount, collateralAcct.Amount

		removal := amm.RemoveLiquidityRequest{
			Pool:     loan.Pool,
			LPAsset:  loan.LPAsset,
			Owner:    receiver,
			LPAmount: lp,
		}
		if loan.ReserveIsAsset0 {
			removal.Asset0, removal.Asset1 = cfg.ReserveAsset, loan.CollateralAsset
			removal.MinAmount0, removal.MinAmount1 = req.MinReserveOut, req.MinCollateralOut
		} else {
			removal.Asset0, removal.Asset1 = loan.CollateralAsset, cfg.ReserveAsset
			removal.MinAmount0, removal.MinAmount1 = req.MinCollateralOut, req.MinReserveOut
		}
		if _, err := s.amm.RemoveLiquidity(ctx, qtx, removal); err != nil {
			return fmt.Errorf("remove liquidity: %w", err)
		}

		reserveAfter, err := custody.Balance(ctx, qtx, reserveAcct.Address)
		if err != nil {
			return err
		}
		collateralAfter, err := custody.Balance(ctx, qtx, collateralAcct.Address)
		if err != nil {
			return err
		}
		if reserveAfter < reserveBefore || collateralAfter < collateralBefore {
			return fmt.Errorf("receiver balances decreased during redemption")
		}
		received := reserveAfter - reserveBefore
		collateralReceived := collateralAfter - collateralBefore

		returned := min(received, loan.PrincipalReserveAmount)
		surplus := received - returned
		shortfall := loan.PrincipalReserveAmount - returned

		j := newJournal(&cfg, req.Caller)
		if err := custody.Transfer(ctx, qtx, custody.TransferParams{
			From:      reserveAcct.Address,
			To:        cfg.VaultAccount,
			Asset:     cfg.ReserveAsset,
			Amount:    returned,
			Authority: custody.Signer(receiver),
		}); err != nil {
			return fmt.Errorf("return principal: %w", err)
		}
		if err := j.credit(domain.LedgerBalance, returned, domain.EntryReasonSettlement); err != nil {
			return err
		}
		if err := custody.Transfer(ctx, qtx, custody.TransferParams{
			From:      reserveAcct.Address,
			To:        cfg.SurplusAccount,
			Asset:     cfg.ReserveAsset,
			Amount:    surplus,
			Authority: custody.Signer(receiver),
		}); err != nil {
			return fmt.Errorf("collect surplus: %w", err)
		}
		if err := j.credit(domain.LedgerSurplus, surplus, domain.EntryReasonSurplus); err != nil {
			return err
		}

		loan.PrincipalReserveAmount, _ = saturatingSub(loan.PrincipalReserveAmount, returned+surplus)
		loan.PrincipalCollateralAmount, _ = saturatingSub(loan.PrincipalCollateralAmount, collateralReceived)
		loan.LPAmount, _ = saturatingSub(loan.LPAmount, lp)
		loan.Repaid = true
		loan.SettledVia = path
		loan.SettledBy = req.Caller
		loan.ReserveReturned = returned
		loan.SurplusReserveAmount = surplus
		loan.CollateralReceived = collateralReceived
		loan.SettledAt = &now

		rows, err := qtx.UpdateLoan(ctx, loan)
		if err != nil {
			return fmt.Errorf("update loan: %w", err)
		}
		if err := requireExactlyOne(rows, "update loan"); err != nil {
			return err
		}
		if err := j.flush(ctx, qtx, loan.Pool); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, qtx, auditEntry{
			EntityType: "loan",
			EntityID:   loan.Pool,
			Actor:      req.Caller,
			Action:     path,
			PrevState:  prevState,
			NextState:  nextState,
			Metadata: map[string]any{
				"lp_redeemed":         lp,
				"reserve_received":    received,
				"reserve_returned":    returned,
				"surplus":             surplus,
				"shortfall":           shortfall,
				"collateral_received": collateralReceived,
			},
		}); err != nil {
			return err
		}

		res = SettlementResult{
			Loan:               loan,
			Path:               path,
			LPRedeemed:         lp,
			ReserveReceived:    received,
			ReserveReturned:    returned,
			Surplus:            surplus,
			Shortfall:          shortfall,
			CollateralReceived: collateralReceived,
		}
		treasury = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.ObserveSettlement(path, res.ReserveReturned, res.Surplus, res.Shortfall)
	observability.SetTreasury(treasury.Balance, treasury.Surplus)
	logFields := []zap.Field{
		zap.String("pool", res.Loan.Pool),
		zap.String("path", path),
		zap.String("caller", req.Caller),
		zap.Uint64("reserve_returned", res.ReserveReturned),
		zap.Uint64("surplus", res.Surplus),
		zap.Uint64("shortfall", res.Shortfall),
	}
	if res.Shortfall > 0 {
		zap.L().Warn("loan settled with shortfall", logFields...)
	} else {
		zap.L().Info("loan settled", logFields...)
	}
	return &res, nil
}
