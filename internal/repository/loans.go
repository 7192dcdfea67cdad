package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const loanColumns = `pool, borrower, lp_asset, collateral_asset, reserve_is_asset0,
	principal_reserve_amount, principal_collateral_amount, fee_paid, lp_custody_account, lp_amount,
	start_time, duration_seconds, repaid, settled_via, settled_by, reserve_returned,
	surplus_reserve_amount, collateral_received, settled_at, created_at, updated_at`

// loanAmounts are the NUMERIC columns of a loan row.
type loanAmounts struct {
	principalReserve, principalCollateral, fee, lp decimal.Decimal
	returned, surplus, collateralReceived          decimal.Decimal
}

func (a loanAmounts) apply(loan *models.Loan) error {
	fields := []struct {
		name string
		dst  *uint64
		src  decimal.Decimal
	}{
		{"principal_reserve_amount", &loan.PrincipalReserveAmount, a.principalReserve},
		{"principal_collateral_amount", &loan.PrincipalCollateralAmount, a.principalCollateral},
		{"fee_paid", &loan.FeePaid, a.fee},
		{"lp_amount", &loan.LPAmount, a.lp},
		{"reserve_returned", &loan.ReserveReturned, a.returned},
		{"surplus_reserve_amount", &loan.SurplusReserveAmount, a.surplus},
		{"collateral_received", &loan.CollateralReceived, a.collateralReceived},
	}
	for _, f := range fields {
		v, err := fromNumeric(f.src)
		if err != nil {
			return fmt.Errorf("loan %s %s: %w", loan.Pool, f.name, err)
		}
		*f.dst = v
	}
	return nil
}

func loanAmountsOf(loan models.Loan) loanAmounts {
	return loanAmounts{
		principalReserve:    toNumeric(loan.PrincipalReserveAmount),
		principalCollateral: toNumeric(loan.PrincipalCollateralAmount),
		fee:                 toNumeric(loan.FeePaid),
		lp:                  toNumeric(loan.LPAmount),
		returned:            toNumeric(loan.ReserveReturned),
		surplus:             toNumeric(loan.SurplusReserveAmount),
		collateralReceived:  toNumeric(loan.CollateralReceived),
	}
}

func scanLoan(row pgx.Row) (models.Loan, error) {
	var (
		loan       models.Loan
		a          loanAmounts
		settledVia *string
		settledBy  *string
	)
	err := row.Scan(
		&loan.Pool,
		&loan.Borrower,
		&loan.LPAsset,
		&loan.CollateralAsset,
		&loan.ReserveIsAsset0,
		&a.principalReserve,
		&a.principalCollateral,
		&a.fee,
		&loan.LPCustodyAccount,
		&a.lp,
		&loan.StartTime,
		&loan.DurationSeconds,
		&loan.Repaid,
		&settledVia,
		&settledBy,
		&a.returned,
		&a.surplus,
		&a.collateralReceived,
		&loan.SettledAt,
		&loan.CreatedAt,
		&loan.UpdatedAt,
	)
	if err != nil {
		return loan, err
	}
	if settledVia != nil {
		loan.SettledVia = *settledVia
	}
	if settledBy != nil {
		loan.SettledBy = *settledBy
	}
	return loan, a.apply(&loan)
}

func collectLoans(rows pgx.Rows) ([]models.Loan, error) {
	defer rows.Close()
	var loans []models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

const insertLoan = `
INSERT INTO loans (
	pool, borrower, lp_asset, collateral_asset, reserve_is_asset0,
	principal_reserve_amount, principal_collateral_amount, fee_paid, lp_custody_account, lp_amount,
	start_time, duration_seconds, repaid, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())`

func (q *Queries) InsertLoan(ctx context.Context, loan models.Loan) error {
	a := loanAmountsOf(loan)
	_, err := q.db.Exec(ctx, insertLoan,
		loan.Pool,
		loan.Borrower,
		loan.LPAsset,
		loan.CollateralAsset,
		loan.ReserveIsAsset0,
		a.principalReserve,
		a.principalCollateral,
		a.fee,
		loan.LPCustodyAccount,
		a.lp,
		loan.StartTime,
		loan.DurationSeconds,
		loan.Repaid,
	)
	return err
}

const getLoan = `SELECT ` + loanColumns + ` FROM loans WHERE pool = $1`

func (q *Queries) GetLoan(ctx context.Context, pool string) (models.Loan, error) {
	return scanLoan(q.db.QueryRow(ctx, getLoan, pool))
}

const getLoanForUpdate = getLoan + ` FOR UPDATE NOWAIT`

func (q *Queries) GetLoanForUpdate(ctx context.Context, pool string) (models.Loan, error) {
	return scanLoan(q.db.QueryRow(ctx, getLoanForUpdate, pool))
}

// updateLoan refuses to reopen a repaid loan: the repaid flag only ever moves to true.
const updateLoan = `
UPDATE loans
SET principal_reserve_amount = $2,
	principal_collateral_amount = $3,
	lp_amount = $4,
	repaid = $5,
	settled_via = NULLIF($6, ''),
	settled_by = NULLIF($7, ''),
	reserve_returned = $8,
	surplus_reserve_amount = $9,
	collateral_received = $10,
	settled_at = $11,
	updated_at = NOW()
WHERE pool = $1 AND (repaid = FALSE OR $5 = TRUE)`

func (q *Queries) UpdateLoan(ctx context.Context, loan models.Loan) (int64, error) {
	a := loanAmountsOf(loan)
	tag, err := q.db.Exec(ctx, updateLoan,
		loan.Pool,
		a.principalReserve,
		a.principalCollateral,
		a.lp,
		loan.Repaid,
		loan.SettledVia,
		loan.SettledBy,
		a.returned,
		a.surplus,
		a.collateralReceived,
		loan.SettledAt,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listLoansByBorrower = `
SELECT ` + loanColumns + `
FROM loans
WHERE borrower = $1
ORDER BY created_at DESC, pool
LIMIT $2 OFFSET $3`

func (q *Queries) ListLoansByBorrower(ctx context.Context, arg ListLoansByBorrowerParams) ([]models.Loan, error) {
	rows, err := q.db.Query(ctx, listLoansByBorrower, arg.Borrower, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectLoans(rows)
}

const expiredOpenLoansWhere = `
WHERE repaid = FALSE
  AND EXTRACT(EPOCH FROM start_time)::BIGINT + duration_seconds < $1`

const listExpiredOpenLoans = `
SELECT ` + loanColumns + `
FROM loans` + expiredOpenLoansWhere + `
ORDER BY start_time ASC
LIMIT $2`

func (q *Queries) ListExpiredOpenLoans(ctx context.Context, arg ListExpiredOpenLoansParams) ([]models.Loan, error) {
	rows, err := q.db.Query(ctx, listExpiredOpenLoans, arg.NowUnix, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectLoans(rows)
}

const countExpiredOpenLoans = `SELECT COUNT(*) FROM loans` + expiredOpenLoansWhere

func (q *Queries) CountExpiredOpenLoans(ctx context.Context, nowUnix int64) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countExpiredOpenLoans, nowUnix).Scan(&n)
	return n, err
}
