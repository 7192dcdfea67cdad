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

const (
	defaultLoanPageSize = 50
	maxLoanPageSize     = 200
)

// LoanService issues loans that seed a new AMM pool and keeps their LP receipt in custody.
type LoanService struct {
	store        QueryStore
	amm          amm.Protocol
	audit        *AuditService
	reserveAsset string
	now          Clock
}

func NewLoanService(store QueryStore, protocol amm.Protocol, reserveAsset string) *LoanService {
	return &LoanService{
		store:        store,
		amm:          protocol,
		audit:        NewAuditService(store),
		reserveAsset: reserveAsset,
		now:          systemClock,
	}
}

// WithClock overrides the time source.
func (s *LoanService) WithClock(now Clock) *LoanService {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateLoanRequest describes the pool the borrower wants financed. Exactly one of the
// two assets must be the reserve asset; that side is the principal.
type CreateLoanRequest struct {
	Borrower        string
	Asset0          string
	Asset1          string
	Amount0         uint64
	Amount1         uint64
	OpenTime        uint64
	DurationSeconds int64
	// CustodyOwner is the identity the LP custody is registered to. It must be the administrator.
	CustodyOwner string
}

type loanTerms struct {
	reserveIsAsset0  bool
	principal        uint64
	collateralAsset  string
	collateralAmount uint64
}

func (s *LoanService) terms(req CreateLoanRequest) (loanTerms, error) {
	isReserve0 := req.Asset0 == s.reserveAsset
	isReserve1 := req.Asset1 == s.reserveAsset
	if isReserve0 == isReserve1 {
		return loanTerms{}, domain.ErrInvalidWrappedSolMint
	}
	if req.Asset0 >= req.Asset1 {
		return loanTerms{}, domain.ErrInvalidMintAccount
	}
	if isReserve0 {
		return loanTerms{true, req.Amount0, req.Asset1, req.Amount1}, nil
	}
	return loanTerms{false, req.Amount1, req.Asset0, req.Amount0}, nil
}

// CreateLoan validates the request against the treasury and the collateral asset, then in
// one unit of work charges the fee, lends the principal, seeds the pool, moves the LP
// receipt into custody and records the loan.
func (s *LoanService) CreateLoan(ctx context.Context, req CreateLoanRequest) (*models.Loan, error) {
	if req.Borrower == "" {
		return nil, domain.ErrUnauthorized
	}

	var loan models.Loan
	var treasury models.TreasuryConfig
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		cfg, err := qtx.GetTreasuryConfigForUpdate(ctx)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrInvalidTreasury
			}
			return fmt.Errorf("lock treasury config: %w", err)
		}
		if cfg.Paused {
			return domain.ErrProgramPaused
		}

		t, err := s.terms(req)
		if err != nil {
			return err
		}
		if !domain.IsAllowedPrincipal(t.principal) {
			return domain.ErrInvalidInitSolAmount
		}
		if cfg.Balance < t.principal {
			return domain.ErrInsufficientBalance
		}
		if err := checkCollateral(ctx, qtx, t.collateralAsset, t.collateralAmount); err != nil {
			return err
		}
		if req.DurationSeconds != domain.LoanDurationSeconds {
			return domain.ErrInvalidDuration
		}

		now := s.now()
		j := newJournal(&cfg, req.Borrower)
		borrowerReserve, err := custody.EnsureAssociatedAccount(ctx, qtx, req.Borrower, cfg.ReserveAsset)
		if err != nil {
			return fmt.Errorf("borrower reserve account: %w", err)
		}

		fee := cfg.FixedFee
		if err := custody.Transfer(ctx, qtx, custody.TransferParams{
			From:      borrowerReserve.Address,
			To:        cfg.VaultAccount,
			Asset:     cfg.ReserveAsset,
			Amount:    fee,
			Authority: custody.Signer(req.Borrower),
		}); err != nil {
			return fmt.Errorf("collect fee: %w", err)
		}
		if err := j.credit(domain.LedgerBalance, fee, domain.EntryReasonLoanFee); err != nil {
			return err
		}

		if err := custody.Transfer(ctx, qtx, custody.TransferParams{
			From:      cfg.VaultAccount,
			To:        borrowerReserve.Address,
			Asset:     cfg.ReserveAsset,
			Amount:    t.principal,
			Authority: custody.TreasuryAuthority(),
		}); err != nil {
			return fmt.Errorf("lend principal: %w", err)
		}
		j.debit(domain.LedgerBalance, t.principal, domain.EntryReasonLoanPrincipal)

		pool, err := s.amm.InitializePool(ctx, qtx, amm.InitializePoolRequest{
			Creator:  req.Borrower,
			Asset0:   req.Asset0,
			Asset1:   req.Asset1,
			Amount0:  req.Amount0,
			Amount1:  req.Amount1,
			OpenTime: req.OpenTime,
		})
		if err != nil {
			return fmt.Errorf("initialize pool: %w", err)
		}

		lpAmount, err := custody.Balance(ctx, qtx, pool.CreatorLPAccount)
		if err != nil {
			return fmt.Errorf("read minted lp: %w", err)
		}

		if req.CustodyOwner != cfg.Administrator {
			return domain.ErrUnauthorized
		}
		custodyAcct, err := custody.EnsureAccount(ctx, qtx, custody.LPCustodyAccount(pool.Address), custody.LoanAuthority(pool.Address).Subject(), pool.LPAsset)
		if err != nil {
			return fmt.Errorf("lp custody account: %w", err)
		}
		if err := custody.Transfer(ctx, qtx, custody.TransferParams{
			From:      pool.CreatorLPAccount,
			To:        custodyAcct.Address,
			Asset:     pool.LPAsset,
			Amount:    lpAmount,
			Authority: custody.Signer(req.Borrower),
		}); err != nil {
			return fmt.Errorf("custody lp: %w", err)
		}

		loan = models.Loan{
			Pool:                      pool.Address,
			Borrower:                  req.Borrower,
			LPAsset:                   pool.LPAsset,
			CollateralAsset:           t.collateralAsset,
			ReserveIsAsset0:           t.reserveIsAsset0,
			PrincipalReserveAmount:    t.principal,
			PrincipalCollateralAmount: t.collateralAmount,
			FeePaid:                   fee,
			LPCustodyAccount:          custodyAcct.Address,
			LPAmount:                  lpAmount,
			StartTime:                 now,
			DurationSeconds:           req.DurationSeconds,
		}
		if err := qtx.InsertLoan(ctx, loan); err != nil {
			if repository.IsUniqueViolation(err) {
				return domain.ErrLoanExists
			}
			return fmt.Errorf("insert loan: %w", err)
		}
		if err := j.flush(ctx, qtx, pool.Address); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, qtx, auditEntry{
			EntityType: "loan",
			EntityID:   pool.Address,
			Actor:      req.Borrower,
			Action:     "opened",
			NextState:  domain.LoanStatusOpen,
			Metadata: map[string]any{
				"principal":  t.principal,
				"collateral": t.collateralAmount,
				"fee":        fee,
				"lp_amount":  lpAmount,
			},
		}); err != nil {
			return err
		}
		treasury = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementLoansOpened()
	observability.SetTreasury(treasury.Balance, treasury.Surplus)
	zap.L().Info("loan opened",
		zap.String("pool", loan.Pool),
		zap.String("borrower", loan.Borrower),
		zap.Uint64("principal", loan.PrincipalReserveAmount),
		zap.Uint64("lp_amount", loan.LPAmount),
	)
	return s.GetLoan(ctx, loan.Pool)
}

// checkCollateral requires the whole supply in the pool and no remaining mint or freeze authority.
func checkCollateral(ctx context.Context, qtx repository.Querier, assetID string, amount uint64) error {
	asset, err := qtx.GetAsset(ctx, assetID)
	if err != nil {
		if isNotFound(err) {
			return domain.ErrInvalidMintAccount
		}
		return fmt.Errorf("get collateral asset: %w", err)
	}
	if asset.Supply != amount {
		return domain.ErrInsufficientTokenBalance
	}
	if asset.MintAuthority != nil {
		return domain.ErrMintAuthorityNotRevoked
	}
	if asset.FreezeAuthority != nil {
		return domain.ErrFreezeAuthorityNotRevoked
	}
	return nil
}

// SendLPTokens moves whatever LP the caller still holds for the loan's pool into the
// loan's custody account, creating the account if needed.
func (s *LoanService) SendLPTokens(ctx context.Context, caller, pool string) (*models.Loan, uint64, error) {
	var moved uint64
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		loan, err := qtx.GetLoanForUpdate(ctx, pool)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrLoanNotFound
			}
			return fmt.Errorf("lock loan: %w", err)
		}
		if loan.Repaid {
			return domain.ErrLoanAlreadyRepaid
		}

		src := custody.AssociatedAccount(caller, loan.LPAsset)
		moved, err = custody.Balance(ctx, qtx, src)
		if err != nil {
			return err
		}
		if moved == 0 {
			return domain.ErrInsufficientTokenBalance
		}
		custodyAcct, err := custody.EnsureAccount(ctx, qtx, custody.LPCustodyAccount(pool), custody.LoanAuthority(pool).Subject(), loan.LPAsset)
		if err != nil {
			return fmt.Errorf("lp custody account: %w", err)
		}
		if err := custody.Transfer(ctx, qtx, custody.TransferParams{
			From:      src,
			To:        custodyAcct.Address,
			Asset:     loan.LPAsset,
			Amount:    moved,
			Authority: custody.Signer(caller),
		}); err != nil {
			return err
		}

		loan.LPAmount += moved
		rows, err := qtx.UpdateLoan(ctx, loan)
		if err != nil {
			return fmt.Errorf("update loan: %w", err)
		}
		if err := requireExactlyOne(rows, "update loan"); err != nil {
			return err
		}
		return s.audit.Record(ctx, qtx, auditEntry{
			EntityType: "loan",
			EntityID:   pool,
			Actor:      caller,
			Action:     "lp_tokens_sent",
			Metadata:   map[string]any{"lp_amount": moved},
		})
	})
	if err != nil {
		return nil, 0, err
	}
	loan, err := s.GetLoan(ctx, pool)
	if err != nil {
		return nil, 0, err
	}
	return loan, moved, nil
}

// GetLoan returns the loan keyed by pool.
func (s *LoanService) GetLoan(ctx context.Context, pool string) (*models.Loan, error) {
	loan, err := s.store.Queries().GetLoan(ctx, pool)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return &loan, nil
}

// ListLoans returns a page of borrower's loans, newest first.
func (s *LoanService) ListLoans(ctx context.Context, borrower string, limit, offset int32) ([]models.Loan, error) {
	if limit <= 0 {
		limit = defaultLoanPageSize
	}
	if limit > maxLoanPageSize {
		limit = maxLoanPageSize
	}
	if offset < 0 {
		offset = 0
	}
	loans, err := s.store.Queries().ListLoansByBorrower(ctx, repository.ListLoansByBorrowerParams{
		Borrower: borrower,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}

// ExpiredOpenLoans returns up to limit unsettled loans past their deadline, oldest first,
// and the total number of such loans.
func (s *LoanService) ExpiredOpenLoans(ctx context.Context, limit int32) ([]models.Loan, int64, error) {
	nowUnix := s.now().Unix()
	queries := s.store.Queries()
	total, err := queries.CountExpiredOpenLoans(ctx, nowUnix)
	if err != nil {
		return nil, 0, fmt.Errorf("count expired loans: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}
	loans, err := queries.ListExpiredOpenLoans(ctx, repository.ListExpiredOpenLoansParams{NowUnix: nowUnix, Limit: limit})
	if err != nil {
		return nil, 0, fmt.Errorf("list expired loans: %w", err)
	}
	return loans, total, nil
}
