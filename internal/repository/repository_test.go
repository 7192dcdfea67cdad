package repository

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/ayo6706/poolcredit/internal/db"
	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/ayo6706/poolcredit/internal/testutil/dblock"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = godotenv.Load("../../.env") // Load from root
}

// integrationStore connects to DATABASE_URL, applies the schema and empties every table.
// The pool is closed and the database lock released when the test ends.
func integrationStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
	release := dblock.Acquire()
	t.Cleanup(release)

	ctx := context.Background()
	pool, err := db.Connect(ctx, os.Getenv("DATABASE_URL"), db.PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.EnsureSchema(ctx, pool))
	_, err = pool.Exec(ctx, "TRUNCATE TABLE loans, treasury_entries, treasury_config, token_accounts, assets, audit_log, idempotency_keys CASCADE")
	require.NoError(t, err)
	return NewStore(pool)
}

func TestAssetsAndTokenAccounts(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	q := store.Queries()

	authority := "alice"
	// 1e10 whole tokens at 9 decimals is past the signed 64-bit range
	const supply uint64 = 10_000_000_000_000_000_000
	require.NoError(t, q.InsertAsset(ctx, models.Asset{ID: "meme", Decimals: 9, Supply: supply, MintAuthority: &authority}))
	asset, err := q.GetAsset(ctx, "meme")
	require.NoError(t, err)
	assert.Equal(t, supply, asset.Supply)

	err = q.InsertAsset(ctx, models.Asset{ID: "meme", Decimals: 6})
	assert.True(t, IsUniqueViolation(err))

	_, err = q.GetAsset(ctx, "missing")
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	require.NoError(t, q.InsertTokenAccount(ctx, models.TokenAccount{Address: "acct-1", Owner: "alice", Asset: "meme"}))
	rows, err := q.SetTokenAccountAmount(ctx, "acct-1", math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	acc, err := q.GetTokenAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), acc.Amount)
	assert.Equal(t, "alice", acc.Owner)

	err = q.InsertTokenAccount(ctx, models.TokenAccount{Address: "acct-2", Owner: "bob", Asset: "unknown"})
	assert.Error(t, err)
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.RunInTx(ctx, func(q Querier) error {
		if err := q.InsertAsset(ctx, models.Asset{ID: "wsol", Decimals: 9}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Queries().GetAsset(ctx, "wsol")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestRunInTx_LockConflictIsConcurrentUpdate(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	require.NoError(t, store.Queries().InsertAsset(ctx, models.Asset{ID: "wsol", Decimals: 9}))

	err := store.RunInTx(ctx, func(q Querier) error {
		if _, err := q.GetAssetForUpdate(ctx, "wsol"); err != nil {
			return err
		}
		inner := store.RunInTx(ctx, func(q2 Querier) error {
			_, err := q2.GetAssetForUpdate(ctx, "wsol")
			return err
		})
		assert.ErrorIs(t, inner, domain.ErrConcurrentUpdate)
		return nil
	})
	require.NoError(t, err)
}

func TestIdempotencyKeys(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	q := store.Postgres()

	params := ReserveIdempotencyKeyParams{IdempotencyKey: "alice:k1", RequestHash: "h1", Method: "POST", Path: "/v1/loans"}
	row, err := q.ReserveIdempotencyKey(ctx, params)
	require.NoError(t, err)
	assert.True(t, row.InProgress)

	_, err = q.ReserveIdempotencyKey(ctx, params)
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	_, err = q.FinalizeIdempotencyKey(ctx, FinalizeIdempotencyKeyParams{IdempotencyKey: "alice:k1", RequestHash: "other", ResponseStatus: 201})
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	row, err = q.FinalizeIdempotencyKey(ctx, FinalizeIdempotencyKeyParams{
		IdempotencyKey: "alice:k1",
		RequestHash:    "h1",
		ResponseStatus: 201,
		ResponseBody:   []byte(`{"pool":"p"}`),
		ContentType:    "application/json",
	})
	require.NoError(t, err)
	assert.False(t, row.InProgress)
	assert.Equal(t, int32(201), row.ResponseStatus)
}
