package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const treasuryColumns = `balance, surplus, administrator, syncer, verifier, fixed_fee, paused,
	reserve_asset, vault_account, surplus_account, created_at, updated_at`

func scanTreasuryConfig(row pgx.Row) (models.TreasuryConfig, error) {
	var (
		cfg              models.TreasuryConfig
		balance, surplus decimal.Decimal
		fee              decimal.Decimal
	)
	err := row.Scan(
		&balance,
		&surplus,
		&cfg.Administrator,
		&cfg.Syncer,
		&cfg.Verifier,
		&fee,
		&cfg.Paused,
		&cfg.ReserveAsset,
		&cfg.VaultAccount,
		&cfg.SurplusAccount,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return cfg, err
	}
	if cfg.Balance, err = fromNumeric(balance); err != nil {
		return cfg, fmt.Errorf("treasury balance: %w", err)
	}
	if cfg.Surplus, err = fromNumeric(surplus); err != nil {
		return cfg, fmt.Errorf("treasury surplus: %w", err)
	}
	if cfg.FixedFee, err = fromNumeric(fee); err != nil {
		return cfg, fmt.Errorf("treasury fixed_fee: %w", err)
	}
	return cfg, nil
}

const getTreasuryConfig = `SELECT ` + treasuryColumns + ` FROM treasury_config WHERE id = 1`

func (q *Queries) GetTreasuryConfig(ctx context.Context) (models.TreasuryConfig, error) {
	return scanTreasuryConfig(q.db.QueryRow(ctx, getTreasuryConfig))
}

const getTreasuryConfigForUpdate = getTreasuryConfig + ` FOR UPDATE NOWAIT`

func (q *Queries) GetTreasuryConfigForUpdate(ctx context.Context) (models.TreasuryConfig, error) {
	return scanTreasuryConfig(q.db.QueryRow(ctx, getTreasuryConfigForUpdate))
}

const insertTreasuryConfig = `
INSERT INTO treasury_config (
	id, balance, surplus, administrator, syncer, verifier, fixed_fee, paused,
	reserve_asset, vault_account, surplus_account, created_at, updated_at
) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())`

func (q *Queries) InsertTreasuryConfig(ctx context.Context, cfg models.TreasuryConfig) error {
	_, err := q.db.Exec(ctx, insertTreasuryConfig,
		toNumeric(cfg.Balance),
		toNumeric(cfg.Surplus),
		cfg.Administrator,
		cfg.Syncer,
		cfg.Verifier,
		toNumeric(cfg.FixedFee),
		cfg.Paused,
		cfg.ReserveAsset,
		cfg.VaultAccount,
		cfg.SurplusAccount,
	)
	return err
}

const updateTreasuryConfig = `
UPDATE treasury_config
SET balance = $1, surplus = $2, fixed_fee = $3, paused = $4, updated_at = NOW()
WHERE id = 1`

// UpdateTreasuryConfig persists the mutable fields. Identities and custody accounts are
// fixed at initialization.
func (q *Queries) UpdateTreasuryConfig(ctx context.Context, cfg models.TreasuryConfig) (int64, error) {
	tag, err := q.db.Exec(ctx, updateTreasuryConfig, toNumeric(cfg.Balance), toNumeric(cfg.Surplus), toNumeric(cfg.FixedFee), cfg.Paused)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const insertTreasuryEntry = `
INSERT INTO treasury_entries (id, ledger, direction, amount, reason, pool, actor, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

func (q *Queries) InsertTreasuryEntry(ctx context.Context, entry models.TreasuryEntry) error {
	id := entry.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := q.db.Exec(ctx, insertTreasuryEntry, id, entry.Ledger, entry.Direction, toNumeric(entry.Amount), entry.Reason, entry.Pool, entry.Actor)
	return err
}

const getTreasuryEntryNet = `
SELECT COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0)
FROM treasury_entries
WHERE ledger = $1`

// GetTreasuryEntryNet returns credits minus debits journaled for a ledger. The sum can
// leave the u64 range in either direction, so it stays a decimal.
func (q *Queries) GetTreasuryEntryNet(ctx context.Context, ledger string) (decimal.Decimal, error) {
	var net decimal.Decimal
	err := q.db.QueryRow(ctx, getTreasuryEntryNet, ledger).Scan(&net)
	return net, err
}
