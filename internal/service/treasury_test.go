package service

import (
	"context"
	"testing"

	"github.com/ayo6706/poolcredit/internal/custody"
	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/testutil/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeTreasury(t *testing.T) {
	f := newFixture(t, nil)

	cfg := f.treasury()
	assert.Equal(t, admin, cfg.Administrator)
	assert.Equal(t, "syncer", cfg.Syncer)
	assert.Equal(t, "verifier", cfg.Verifier)
	assert.Equal(t, fixedFee, cfg.FixedFee)
	assert.Equal(t, reserveID, cfg.ReserveAsset)
	assert.Equal(t, custody.VaultAccount(), cfg.VaultAccount)
	assert.Equal(t, custody.SurplusAccount(), cfg.SurplusAccount)
	assert.Equal(t, treasuryDeposit, cfg.Balance)
	assert.False(t, cfg.Paused)

	_, err := f.vault.InitializeTreasury(f.ctx, InitializeTreasuryRequest{Administrator: "mallory"})
	assert.ErrorIs(t, err, domain.ErrInvalidTreasury)
	assert.Equal(t, admin, f.treasury().Administrator)
}

func TestTreasury_NotInitialized(t *testing.T) {
	svc := NewVaultService(memstore.New(), reserveID)

	_, err := svc.Treasury(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidTreasury)
	_, err = svc.Deposit(context.Background(), admin, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTreasury)
}

func TestDeposit(t *testing.T) {
	f := newFixture(t, nil)
	f.mintReserve("bob", 3_000)

	cfg, err := f.vault.Deposit(f.ctx, "bob", 3_000)
	require.NoError(t, err)
	assert.Equal(t, treasuryDeposit+3_000, cfg.Balance)
	assert.Equal(t, cfg.Balance, f.balanceOf(cfg.VaultAccount))
	assert.Zero(t, f.reserveOf("bob"))

	_, err = f.vault.Deposit(f.ctx, "bob", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.vault.Deposit(f.ctx, "bob", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientTokenBalance)
	assert.Equal(t, treasuryDeposit+3_000, f.treasury().Balance)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, nil)

	cfg, err := f.vault.Withdraw(f.ctx, admin, 1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, treasuryDeposit-1_000_000_000, cfg.Balance)
	assert.Equal(t, uint64(1_000_000_000), f.reserveOf(admin))
	assert.Equal(t, cfg.Balance, f.balanceOf(cfg.VaultAccount))
}

func TestWithdraw_NonAdministratorRejected(t *testing.T) {
	f := newFixture(t, nil)
	auditBefore := len(f.store.AuditLog())

	_, err := f.vault.Withdraw(f.ctx, borrower, 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Equal(t, treasuryDeposit, f.treasury().Balance)
	assert.Equal(t, treasuryDeposit, f.balanceOf(custody.VaultAccount()))
	assert.Len(t, f.store.AuditLog(), auditBefore)
}

func TestWithdraw_MoreThanBalance(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.vault.Withdraw(f.ctx, admin, treasuryDeposit+1)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, treasuryDeposit, f.treasury().Balance)
}

func TestSetFee(t *testing.T) {
	f := newFixture(t, nil)
	f.vault.WithMaxFixedFee(500_000_000)

	cfg, err := f.vault.SetFee(f.ctx, admin, 250_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(250_000_000), cfg.FixedFee)

	_, err = f.vault.SetFee(f.ctx, admin, 500_000_001)
	assert.ErrorIs(t, err, domain.ErrInvalidFee)

	_, err = f.vault.SetFee(f.ctx, borrower, 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, uint64(250_000_000), f.treasury().FixedFee)
}

func TestSetPaused(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.vault.SetPaused(f.ctx, borrower, true)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	cfg, err := f.vault.SetPaused(f.ctx, admin, true)
	require.NoError(t, err)
	assert.True(t, cfg.Paused)

	audit := f.store.AuditLog()
	last := audit[len(audit)-1]
	assert.Equal(t, "paused", last.Action)
	require.NotNil(t, last.PrevState)
	require.NotNil(t, last.NextState)
	assert.Equal(t, "ACTIVE", *last.PrevState)
	assert.Equal(t, "PAUSED", *last.NextState)
}

func TestTreasuryJournal(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.vault.Withdraw(f.ctx, admin, 5)
	require.NoError(t, err)

	entries := f.store.TreasuryEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EntryReasonDeposit, entries[0].Reason)
	assert.Equal(t, domain.DirectionCredit, entries[0].Direction)
	assert.Equal(t, domain.EntryReasonWithdraw, entries[1].Reason)
	assert.Equal(t, domain.DirectionDebit, entries[1].Direction)
	assert.Equal(t, uint64(5), entries[1].Amount)
	assert.Equal(t, admin, entries[1].Actor)
}
