package custody

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/jackc/pgx/v5"
)

// TokenStore is the slice of the repository the ledger needs. repository.Querier satisfies it.
type TokenStore interface {
	InsertAsset(ctx context.Context, asset models.Asset) error
	GetAsset(ctx context.Context, id string) (models.Asset, error)
	GetAssetForUpdate(ctx context.Context, id string) (models.Asset, error)
	UpdateAsset(ctx context.Context, asset models.Asset) (int64, error)
	InsertTokenAccount(ctx context.Context, account models.TokenAccount) error
	GetTokenAccount(ctx context.Context, address string) (models.TokenAccount, error)
	GetTokenAccountForUpdate(ctx context.Context, address string) (models.TokenAccount, error)
	SetTokenAccountAmount(ctx context.Context, address string, amount uint64) (int64, error)
}

// TransferParams describes one token movement.
type TransferParams struct {
	From      string
	To        string
	Asset     string
	Amount    uint64
	Authority Authority
}

// Transfer moves Amount of Asset from From to To. The authority must own From.
// A zero amount is a no-op.
func Transfer(ctx context.Context, q TokenStore, p TransferParams) error {
	if p.Amount == 0 || p.From == p.To {
		return nil
	}
	src, err := lockAccount(ctx, q, p.From)
	if err != nil {
		return fmt.Errorf("transfer source: %w", err)
	}
	if p.Authority.IsZero() || src.Owner != p.Authority.Subject() {
		return fmt.Errorf("transfer from %s: %w", p.From, domain.ErrUnauthorized)
	}
	if src.Asset != p.Asset {
		return fmt.Errorf("transfer source holds %s, not %s: %w", src.Asset, p.Asset, domain.ErrInvalidMintAccount)
	}
	if src.Amount < p.Amount {
		return fmt.Errorf("transfer %d from %s holding %d: %w", p.Amount, p.From, src.Amount, domain.ErrInsufficientTokenBalance)
	}

	dst, err := lockAccount(ctx, q, p.To)
	if err != nil {
		return fmt.Errorf("transfer destination: %w", err)
	}
	if dst.Asset != p.Asset {
		return fmt.Errorf("transfer destination holds %s, not %s: %w", dst.Asset, p.Asset, domain.ErrInvalidMintAccount)
	}
	if dst.Amount > math.MaxUint64-p.Amount {
		return fmt.Errorf("transfer to %s: %w", p.To, domain.ErrArithmeticOverflow)
	}

	if err := setAmount(ctx, q, src.Address, src.Amount-p.Amount); err != nil {
		return err
	}
	return setAmount(ctx, q, dst.Address, dst.Amount+p.Amount)
}

// MintTo creates amount new units of asset into the account at to. Only the asset's
// mint authority may mint.
func MintTo(ctx context.Context, q TokenStore, assetID, to string, amount uint64, authority Authority) error {
	if amount == 0 {
		return nil
	}
	asset, err := q.GetAssetForUpdate(ctx, assetID)
	if err != nil {
		return assetLookupError(assetID, err)
	}
	if asset.MintAuthority == nil || authority.IsZero() || *asset.MintAuthority != authority.Subject() {
		return fmt.Errorf("mint %s: %w", assetID, domain.ErrUnauthorized)
	}
	if asset.Supply > math.MaxUint64-amount {
		return fmt.Errorf("mint %s: %w", assetID, domain.ErrArithmeticOverflow)
	}

	dst, err := lockAccount(ctx, q, to)
	if err != nil {
		return fmt.Errorf("mint destination: %w", err)
	}
	if dst.Asset != assetID {
		return fmt.Errorf("mint destination holds %s: %w", dst.Asset, domain.ErrInvalidMintAccount)
	}
	if dst.Amount > math.MaxUint64-amount {
		return fmt.Errorf("mint to %s: %w", to, domain.ErrArithmeticOverflow)
	}

	asset.Supply += amount
	if err := updateAsset(ctx, q, asset); err != nil {
		return err
	}
	return setAmount(ctx, q, dst.Address, dst.Amount+amount)
}

// Burn destroys amount units held at from. The authority must own the account.
func Burn(ctx context.Context, q TokenStore, assetID, from string, amount uint64, authority Authority) error {
	if amount == 0 {
		return nil
	}
	src, err := lockAccount(ctx, q, from)
	if err != nil {
		return fmt.Errorf("burn source: %w", err)
	}
	if authority.IsZero() || src.Owner != authority.Subject() {
		return fmt.Errorf("burn from %s: %w", from, domain.ErrUnauthorized)
	}
	if src.Asset != assetID {
		return fmt.Errorf("burn source holds %s: %w", src.Asset, domain.ErrInvalidMintAccount)
	}
	if src.Amount < amount {
		return fmt.Errorf("burn %d from %s holding %d: %w", amount, from, src.Amount, domain.ErrInsufficientTokenBalance)
	}
	asset, err := q.GetAssetForUpdate(ctx, assetID)
	if err != nil {
		return assetLookupError(assetID, err)
	}
	if asset.Supply < amount {
		return fmt.Errorf("burn %d of %s with supply %d: %w", amount, assetID, asset.Supply, domain.ErrInsufficientTokenBalance)
	}

	asset.Supply -= amount
	if err := updateAsset(ctx, q, asset); err != nil {
		return err
	}
	return setAmount(ctx, q, src.Address, src.Amount-amount)
}

// EnsureAccount returns the account at address, creating an empty one owned by owner
// when it does not exist yet. An existing account must match owner and asset.
func EnsureAccount(ctx context.Context, q TokenStore, address, owner, asset string) (models.TokenAccount, error) {
	acc, err := q.GetTokenAccount(ctx, address)
	if err == nil {
		if acc.Asset != asset {
			return acc, fmt.Errorf("account %s holds %s, not %s: %w", address, acc.Asset, asset, domain.ErrInvalidMintAccount)
		}
		if acc.Owner != owner {
			return acc, fmt.Errorf("account %s is owned by another authority: %w", address, domain.ErrUnauthorized)
		}
		return acc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return acc, fmt.Errorf("get token account: %w", err)
	}

	if _, err := q.GetAsset(ctx, asset); err != nil {
		return acc, assetLookupError(asset, err)
	}
	acc = models.TokenAccount{Address: address, Owner: owner, Asset: asset}
	if err := q.InsertTokenAccount(ctx, acc); err != nil {
		return acc, fmt.Errorf("create token account: %w", err)
	}
	return acc, nil
}

// EnsureAssociatedAccount creates owner's canonical account for asset on first use.
func EnsureAssociatedAccount(ctx context.Context, q TokenStore, owner, asset string) (models.TokenAccount, error) {
	return EnsureAccount(ctx, q, AssociatedAccount(owner, asset), owner, asset)
}

// Balance returns the amount held at address, zero when the account does not exist.
func Balance(ctx context.Context, q TokenStore, address string) (uint64, error) {
	acc, err := q.GetTokenAccount(ctx, address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get token account: %w", err)
	}
	return acc.Amount, nil
}

func lockAccount(ctx context.Context, q TokenStore, address string) (models.TokenAccount, error) {
	acc, err := q.GetTokenAccountForUpdate(ctx, address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return acc, fmt.Errorf("account %s: %w", address, domain.ErrAccountNotFound)
		}
		return acc, fmt.Errorf("lock token account: %w", err)
	}
	return acc, nil
}

func setAmount(ctx context.Context, q TokenStore, address string, amount uint64) error {
	rows, err := q.SetTokenAccountAmount(ctx, address, amount)
	if err != nil {
		return fmt.Errorf("set token account amount: %w", err)
	}
	if rows != 1 {
		return fmt.Errorf("set token account amount affected %d rows", rows)
	}
	return nil
}

func updateAsset(ctx context.Context, q TokenStore, asset models.Asset) error {
	rows, err := q.UpdateAsset(ctx, asset)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	if rows != 1 {
		return fmt.Errorf("update asset affected %d rows", rows)
	}
	return nil
}

func assetLookupError(assetID string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("asset %s: %w", assetID, domain.ErrInvalidMintAccount)
	}
	return fmt.Errorf("get asset: %w", err)
}
