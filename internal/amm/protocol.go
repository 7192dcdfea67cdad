// Package amm is the boundary to the external constant-product pool protocol.
package amm

import (
	"context"

	"github.com/ayo6706/poolcredit/internal/custody"
	"github.com/ayo6706/poolcredit/internal/domain"
)

// Protocol is the two-call surface of the external AMM. Both calls run inside the caller's
// unit of work and move tokens through the same ledger, so a rejection rolls back everything.
type Protocol interface {
	// InitializePool creates a pool funded from the creator's associated accounts and mints
	// the LP receipt to the creator's associated LP account.
	InitializePool(ctx context.Context, ledger custody.TokenStore, req InitializePoolRequest) (Pool, error)
	// RemoveLiquidity burns LP held by the owner and pays both sides to the owner's
	// associated accounts, failing when either side is below its minimum.
	RemoveLiquidity(ctx context.Context, ledger custody.TokenStore, req RemoveLiquidityRequest) (Withdrawal, error)
}

type InitializePoolRequest struct {
	Creator  string
	Asset0   string
	Asset1   string
	Amount0  uint64
	Amount1  uint64
	OpenTime uint64
}

type Pool struct {
	Address          string
	LPAsset          string
	LPDecimals       int32
	CreatorLPAccount string
	LPMinted         uint64
}

type RemoveLiquidityRequest struct {
	Pool       string
	LPAsset    string
	Owner      string
	Asset0     string
	Asset1     string
	LPAmount   uint64
	MinAmount0 uint64
	MinAmount1 uint64
}

type Withdrawal struct {
	Amount0 uint64
	Amount1 uint64
}

var (
	ErrPoolExists            = domain.NewError("PoolExists", domain.ClassExternal, "amm: pool already exists")
	ErrPoolNotFound          = domain.NewError("PoolNotFound", domain.ClassExternal, "amm: pool not found")
	ErrSlippageExceeded      = domain.NewError("SlippageExceeded", domain.ClassExternal, "amm: withdrawal below minimum amount")
	ErrInsufficientLiquidity = domain.NewError("InsufficientLiquidity", domain.ClassExternal, "amm: initial liquidity too low")
	ErrZeroAmount            = domain.NewError("ZeroTradingTokens", domain.ClassExternal, "amm: amount must be greater than zero")
)
