package amm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ayo6706/poolcredit/internal/custody"
	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	// LockedLiquidity is minted at pool creation to an account nobody controls.
	LockedLiquidity uint64 = 100
	LPDecimals      int32  = 9

	authoritySeed = "amm_authority"
	poolSeed      = "amm_pool"
	lpMintSeed    = "amm_lp_mint"
	vaultSeed     = "amm_vault"
	lockSeed      = "amm_lp_lock"
)

// Simulator is an in-process constant-product AMM whose vaults and LP asset live in the
// shared asset ledger. It ignores the open time.
type Simulator struct {
	authority custody.Authority
}

func NewSimulator() *Simulator {
	return &Simulator{authority: custody.Derived(authoritySeed)}
}

// PoolAddress is the address of the pool for an ordered asset pair.
func PoolAddress(asset0, asset1 string) string {
	return custody.DeriveAddress(poolSeed, asset0, asset1)
}

// LPAsset is the LP receipt asset of pool.
func LPAsset(pool string) string {
	return custody.DeriveAddress(lpMintSeed, pool)
}

func vaultAddress(pool, asset string) string {
	return custody.DeriveAddress(vaultSeed, pool, asset)
}

func (s *Simulator) InitializePool(ctx context.Context, ledger custody.TokenStore, req InitializePoolRequest) (Pool, error) {
	if req.Asset0 >= req.Asset1 {
		return Pool{}, fmt.Errorf("amm: asset pair must be ordered: %w", domain.ErrInvalidMintAccount)
	}
	if req.Amount0 == 0 || req.Amount1 == 0 {
		return Pool{}, ErrZeroAmount
	}

	pool := PoolAddress(req.Asset0, req.Asset1)
	lpAsset := LPAsset(pool)
	if _, err := ledger.GetAsset(ctx, lpAsset); err == nil {
		return Pool{}, ErrPoolExists
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Pool{}, fmt.Errorf("amm: lookup lp asset: %w", err)
	}

	liquidity := new(big.Int).Sqrt(new(big.Int).Mul(
		new(big.Int).SetUint64(req.Amount0),
		new(big.Int).SetUint64(req.Amount1),
	))
	if !liquidity.IsUint64() || liquidity.Uint64() <= LockedLiquidity {
		return Pool{}, ErrInsufficientLiquidity
	}
	creatorLP := liquidity.Uint64() - LockedLiquidity

	creator := custody.Signer(req.Creator)
	for _, side := range []struct {
		asset  string
		amount uint64
	}{{req.Asset0, req.Amount0}, {req.Asset1, req.Amount1}} {
		vault, err := custody.EnsureAccount(ctx, ledger, vaultAddress(pool, side.asset), s.authority.Subject(), side.asset)
		if err != nil {
			return Pool{}, fmt.Errorf("amm: create vault: %w", err)
		}
		if err := custody.Transfer(ctx, ledger, custody.TransferParams{
			From:      custody.AssociatedAccount(req.Creator, side.asset),
			To:        vault.Address,
			Asset:     side.asset,
			Amount:    side.amount,
			Authority: creator,
		}); err != nil {
			return Pool{}, fmt.Errorf("amm: deposit %s: %w", side.asset, err)
		}
	}

	mintAuthority := s.authority.Subject()
	if err := ledger.InsertAsset(ctx, models.Asset{ID: lpAsset, Decimals: LPDecimals, MintAuthority: &mintAuthority}); err != nil {
		return Pool{}, fmt.Errorf("amm: create lp asset: %w", err)
	}
	creatorAcct, err := custody.EnsureAssociatedAccount(ctx, ledger, req.Creator, lpAsset)
	if err != nil {
		return Pool{}, fmt.Errorf("amm: create lp account: %w", err)
	}
	lockAcct, err := custody.EnsureAccount(ctx, ledger, custody.DeriveAddress(lockSeed, pool), custody.DeriveAddress(lockSeed), lpAsset)
	if err != nil {
		return Pool{}, fmt.Errorf("amm: create lp lock account: %w", err)
	}
	if err := custody.MintTo(ctx, ledger, lpAsset, creatorAcct.Address, creatorLP, s.authority); err != nil {
		return Pool{}, fmt.Errorf("amm: mint lp: %w", err)
	}
	if err := custody.MintTo(ctx, ledger, lpAsset, lockAcct.Address, LockedLiquidity, s.authority); err != nil {
		return Pool{}, fmt.Errorf("amm: mint locked lp: %w", err)
	}

	zap.L().Debug("amm pool initialized",
		zap.String("pool", pool),
		zap.Uint64("amount0", req.Amount0),
		zap.Uint64("amount1", req.Amount1),
		zap.Uint64("lp_minted", creatorLP),
	)

	return Pool{
		Address:          pool,
		LPAsset:          lpAsset,
		LPDecimals:       LPDecimals,
		CreatorLPAccount: creatorAcct.Address,
		LPMinted:         creatorLP,
	}, nil
}

func (s *Simulator) RemoveLiquidity(ctx context.Context, ledger custody.TokenStore, req RemoveLiquidityRequest) (Withdrawal, error) {
	if req.LPAmount == 0 {
		return Withdrawal{}, ErrZeroAmount
	}
	if PoolAddress(req.Asset0, req.Asset1) != req.Pool || LPAsset(req.Pool) != req.LPAsset {
		return Withdrawal{}, ErrPoolNotFound
	}
	lp, err := ledger.GetAsset(ctx, req.LPAsset)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Withdrawal{}, ErrPoolNotFound
		}
		return Withdrawal{}, fmt.Errorf("amm: lookup lp asset: %w", err)
	}
	if lp.Supply == 0 {
		return Withdrawal{}, ErrPoolNotFound
	}
	if req.LPAmount > lp.Supply {
		return Withdrawal{}, fmt.Errorf("amm: redeem %d of supply %d: %w", req.LPAmount, lp.Supply, domain.ErrInsufficientTokenBalance)
	}

	vault0 := vaultAddress(req.Pool, req.Asset0)
	vault1 := vaultAddress(req.Pool, req.Asset1)
	reserve0, err := custody.Balance(ctx, ledger, vault0)
	if err != nil {
		return Withdrawal{}, err
	}
	reserve1, err := custody.Balance(ctx, ledger, vault1)
	if err != nil {
		return Withdrawal{}, err
	}

	out := Withdrawal{
		Amount0: proRata(reserve0, req.LPAmount, lp.Supply),
		Amount1: proRata(reserve1, req.LPAmount, lp.Supply),
	}
	if out.Amount0 < req.MinAmount0 || out.Amount1 < req.MinAmount1 {
		return Withdrawal{}, fmt.Errorf("%w: got %d/%d, want at least %d/%d", ErrSlippageExceeded, out.Amount0, out.Amount1, req.MinAmount0, req.MinAmount1)
	}

	if err := custody.Burn(ctx, ledger, req.LPAsset, custody.AssociatedAccount(req.Owner, req.LPAsset), req.LPAmount, custody.Signer(req.Owner)); err != nil {
		return Withdrawal{}, fmt.Errorf("amm: burn lp: %w", err)
	}
	for _, side := range []struct {
		asset, vault string
		amount       uint64
	}{{req.Asset0, vault0, out.Amount0}, {req.Asset1, vault1, out.Amount1}} {
		dst, err := custody.EnsureAssociatedAccount(ctx, ledger, req.Owner, side.asset)
		if err != nil {
			return Withdrawal{}, fmt.Errorf("amm: receiver account: %w", err)
		}
		if err := custody.Transfer(ctx, ledger, custody.TransferParams{
			From:      side.vault,
			To:        dst.Address,
			Asset:     side.asset,
			Amount:    side.amount,
			Authority: s.authority,
		}); err != nil {
			return Withdrawal{}, fmt.Errorf("amm: withdraw %s: %w", side.asset, err)
		}
	}
	return out, nil
}

// proRata is floor(reserve * lp / supply).
func proRata(reserve, lp, supply uint64) uint64 {
	v := new(big.Int).Mul(new(big.Int).SetUint64(reserve), new(big.Int).SetUint64(lp))
	v.Quo(v, new(big.Int).SetUint64(supply))
	return v.Uint64()
}

var _ Protocol = (*Simulator)(nil)
