package repository

import (
	"context"

	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/shopspring/decimal"
)

// Querier is the data access contract used by the services. *Queries implements it on
// Postgres; testutil/memstore implements it in memory.
//
// Lookups return pgx.ErrNoRows when the record does not exist. Inserts that collide with
// an existing key return a *pgconn.PgError with code 23505. ForUpdate variants lock the
// row until the surrounding transaction ends and fail with 55P03 instead of waiting.
type Querier interface {
	GetTreasuryConfig(ctx context.Context) (models.TreasuryConfig, error)
	GetTreasuryConfigForUpdate(ctx context.Context) (models.TreasuryConfig, error)
	InsertTreasuryConfig(ctx context.Context, cfg models.TreasuryConfig) error
	UpdateTreasuryConfig(ctx context.Context, cfg models.TreasuryConfig) (int64, error)
	InsertTreasuryEntry(ctx context.Context, entry models.TreasuryEntry) error
	GetTreasuryEntryNet(ctx context.Context, ledger string) (decimal.Decimal, error)

	InsertLoan(ctx context.Context, loan models.Loan) error
	GetLoan(ctx context.Context, pool string) (models.Loan, error)
	GetLoanForUpdate(ctx context.Context, pool string) (models.Loan, error)
	UpdateLoan(ctx context.Context, loan models.Loan) (int64, error)
	ListLoansByBorrower(ctx context.Context, arg ListLoansByBorrowerParams) ([]models.Loan, error)
	ListExpiredOpenLoans(ctx context.Context, arg ListExpiredOpenLoansParams) ([]models.Loan, error)
	CountExpiredOpenLoans(ctx context.Context, nowUnix int64) (int64, error)

	InsertAsset(ctx context.Context, asset models.Asset) error
	GetAsset(ctx context.Context, id string) (models.Asset, error)
	GetAssetForUpdate(ctx context.Context, id string) (models.Asset, error)
	UpdateAsset(ctx context.Context, asset models.Asset) (int64, error)
	InsertTokenAccount(ctx context.Context, account models.TokenAccount) error
	GetTokenAccount(ctx context.Context, address string) (models.TokenAccount, error)
	GetTokenAccountForUpdate(ctx context.Context, address string) (models.TokenAccount, error)
	SetTokenAccountAmount(ctx context.Context, address string, amount uint64) (int64, error)

	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error)
}

type ListLoansByBorrowerParams struct {
	Borrower string
	Limit    int32
	Offset   int32
}

type ListExpiredOpenLoansParams struct {
	NowUnix int64
	Limit   int32
}

type InsertAuditLogParams struct {
	EntityType string
	EntityID   string
	Actor      *string
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

var _ Querier = (*Queries)(nil)
