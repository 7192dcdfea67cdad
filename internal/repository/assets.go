package repository

import (
	"context"

	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const assetColumns = `id, decimals, supply, mint_authority, freeze_authority, created_at`

func scanAsset(row pgx.Row) (models.Asset, error) {
	var (
		asset  models.Asset
		supply decimal.Decimal
	)
	if err := row.Scan(&asset.ID, &asset.Decimals, &supply, &asset.MintAuthority, &asset.FreezeAuthority, &asset.CreatedAt); err != nil {
		return asset, err
	}
	var err error
	asset.Supply, err = fromNumeric(supply)
	return asset, err
}

const insertAsset = `
INSERT INTO assets (id, decimals, supply, mint_authority, freeze_authority, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())`

func (q *Queries) InsertAsset(ctx context.Context, asset models.Asset) error {
	_, err := q.db.Exec(ctx, insertAsset, asset.ID, asset.Decimals, toNumeric(asset.Supply), asset.MintAuthority, asset.FreezeAuthority)
	return err
}

const getAsset = `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

func (q *Queries) GetAsset(ctx context.Context, id string) (models.Asset, error) {
	return scanAsset(q.db.QueryRow(ctx, getAsset, id))
}

func (q *Queries) GetAssetForUpdate(ctx context.Context, id string) (models.Asset, error) {
	return scanAsset(q.db.QueryRow(ctx, getAsset+` FOR UPDATE NOWAIT`, id))
}

const updateAsset = `
UPDATE assets
SET supply = $2, mint_authority = $3, freeze_authority = $4
WHERE id = $1`

func (q *Queries) UpdateAsset(ctx context.Context, asset models.Asset) (int64, error) {
	tag, err := q.db.Exec(ctx, updateAsset, asset.ID, toNumeric(asset.Supply), asset.MintAuthority, asset.FreezeAuthority)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const tokenAccountColumns = `address, owner, asset, amount, created_at, updated_at`

func scanTokenAccount(row pgx.Row) (models.TokenAccount, error) {
	var (
		acc    models.TokenAccount
		amount decimal.Decimal
	)
	if err := row.Scan(&acc.Address, &acc.Owner, &acc.Asset, &amount, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return acc, err
	}
	var err error
	acc.Amount, err = fromNumeric(amount)
	return acc, err
}

const insertTokenAccount = `
INSERT INTO token_accounts (address, owner, asset, amount, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())`

func (q *Queries) InsertTokenAccount(ctx context.Context, account models.TokenAccount) error {
	_, err := q.db.Exec(ctx, insertTokenAccount, account.Address, account.Owner, account.Asset, toNumeric(account.Amount))
	return err
}

const getTokenAccount = `SELECT ` + tokenAccountColumns + ` FROM token_accounts WHERE address = $1`

func (q *Queries) GetTokenAccount(ctx context.Context, address string) (models.TokenAccount, error) {
	return scanTokenAccount(q.db.QueryRow(ctx, getTokenAccount, address))
}

func (q *Queries) GetTokenAccountForUpdate(ctx context.Context, address string) (models.TokenAccount, error) {
	return scanTokenAccount(q.db.QueryRow(ctx, getTokenAccount+` FOR UPDATE NOWAIT`, address))
}

const setTokenAccountAmount = `UPDATE token_accounts SET amount = $2, updated_at = NOW() WHERE address = $1`

func (q *Queries) SetTokenAccountAmount(ctx context.Context, address string, amount uint64) (int64, error) {
	tag, err := q.db.Exec(ctx, setTokenAccountAmount, address, toNumeric(amount))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
