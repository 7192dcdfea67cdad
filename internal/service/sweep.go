package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/poolcredit/internal/amm"
	"github.com/ayo6706/poolcredit/internal/custody"
	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/ayo6706/poolcredit/internal/observability"
	"github.com/ayo6706/poolcredit/internal/repository"
	"go.uber.org/zap"
)

// SweepRequest names a closed loan whose custody account still holds LP.
type SweepRequest struct {
	Pool             string
	Caller           string
	MinReserveOut    uint64
	MinCollateralOut uint64
}

// SweepResult reports the residual redemption. Reserve goes to the surplus ledger and
// collateral to the administrator.
type SweepResult struct {
	Loan               models.Loan `json:"loan"`
	LPRedeemed         uint64      `json:"lp_redeemed"`
	ReserveRecovered   uint64      `json:"reserve_recovered"`
	CollateralReceived uint64      `json:"collateral_received"`
}

// SweepResidualLP redeems the LP a partial settlement left in custody. Only the
// administrator may sweep, and only after the loan is closed.
func (s *SettlementService) SweepResidualLP(ctx context.Context, req SweepRequest) (*SweepResult, error) {
	var res SweepResult
	var treasury models.TreasuryConfig
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		cfg, err := qtx.GetTreasuryConfigForUpdate(ctx)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrInvalidTreasury
			}
			return fmt.Errorf("lock treasury config: %w", err)
		}
		if req.Caller == "" || req.Caller != cfg.Administrator {
			return domain.ErrUnauthorized
		}
		loan, err := qtx.GetLoanForUpdate(ctx, req.Pool)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrLoanNotFound
			}
			return fmt.Errorf("lock loan: %w", err)
		}
		if !loan.Repaid {
			return domain.ErrLoanNotSettled
		}
		lp, err := custody.Balance(ctx, qtx, loan.LPCustodyAccount)
		if err != nil {
			return err
		}
		if lp == 0 {
			return domain.ErrInsufficientTokenBalance
		}

		// The treasury authority redeems on its own associated accounts, then splits the
		// proceeds so no reserve is left outside the journaled ledgers.
		treasuryAuth := custody.TreasuryAuthority()
		holder := treasuryAuth.Subject()
		holderLP, err := custody.EnsureAssociatedAccount(ctx, qtx, holder, loan.LPAsset)
		if err != nil {
			return fmt.Errorf("treasury lp account: %w", err)
		}
		if err := custody.Transfer(ctx, qtx, custody.TransferParams{
			From:      loan.LPCustodyAccount,
			To:        holderLP.Address,
			Asset:     loan.LPAsset,
			Amount:    lp,
			Authority: custody.LoanAuthority(loan.Pool),
		}); err != nil {
			return fmt.Errorf("release residual lp: %w", err)
		}

		removal := amm.RemoveLiquidityRequest{
			Pool:     loan.Pool,
			LPAsset:  loan.LPAsset,
			Owner:    holder,
			LPAmount: lp,
		}
		if loan.ReserveIsAsset0 {
			removal.Asset0, removal.Asset1 = cfg.ReserveAsset, loan.CollateralAsset
			removal.MinAmount0, removal.MinAmount1 = req.MinReserveOut, req.MinCollateralOut
		} else {
			removal.Asset0, removal.Asset1 = loan.CollateralAsset, cfg.ReserveAsset
			removal.MinAmount0, removal.MinAmount1 = req.MinCollateralOut, req.MinReserveOut
		}
		out, err := s.amm.RemoveLiquidity(ctx, qtx, removal)
		if err != nil {
			return fmt.Errorf("remove liquidity: %w", err)
		}
		reserveOut, collateralOut := out.Amount1, out.Amount0
		if loan.ReserveIsAsset0 {
			reserveOut, collateralOut = out.Amount0, out.Amount1
		}

		j := newJournal(&cfg, req.Caller)
		if err := custody.Transfer(ctx, qtx, custody.TransferParams{
			From:      custody.AssociatedAccount(holder, cfg.ReserveAsset),
			To:        cfg.SurplusAccount,
			Asset:     cfg.ReserveAsset,
			Amount:    reserveOut,
			Authority: treasuryAuth,
		}); err != nil {
			return fmt.Errorf("collect residual reserve: %w", err)
		}
		if err := j.credit(domain.LedgerSurplus, reserveOut, domain.EntryReasonResidualSweep); err != nil {
			return err
		}
		adminCollateral, err := custody.EnsureAssociatedAccount(ctx, qtx, cfg.Administrator, loan.CollateralAsset)
		if err != nil {
			return fmt.Errorf("administrator collateral account: %w", err)
		}
		if err := custody.Transfer(ctx, qtx, custody.TransferParams{
			From:      custody.AssociatedAccount(holder, loan.CollateralAsset),
			To:        adminCollateral.Address,
			Asset:     loan.CollateralAsset,
			Amount:    collateralOut,
			Authority: treasuryAuth,
		}); err != nil {
			return fmt.Errorf("forward residual collateral: %w", err)
		}

		loan.LPAmount, _ = saturatingSub(loan.LPAmount, lp)
		loan.SurplusReserveAmount += reserveOut
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
			Action:     "residual_lp_swept",
			Metadata: map[string]any{
				"lp_redeemed":         lp,
				"reserve_recovered":   reserveOut,
				"collateral_received": collateralOut,
			},
		}); err != nil {
			return err
		}

		res = SweepResult{Loan: loan, LPRedeemed: lp, ReserveRecovered: reserveOut, CollateralReceived: collateralOut}
		treasury = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.SetTreasury(treasury.Balance, treasury.Surplus)
	zap.L().Info("residual lp swept",
		zap.String("pool", req.Pool),
		zap.Uint64("lp", res.LPRedeemed),
		zap.Uint64("reserve_recovered", res.ReserveRecovered),
	)
	return &res, nil
}
