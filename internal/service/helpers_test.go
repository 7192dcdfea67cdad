package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/poolcredit/internal/amm"
	"github.com/ayo6706/poolcredit/internal/custody"
	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/events"
	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/ayo6706/poolcredit/internal/testutil/memstore"
	"github.com/stretchr/testify/require"
)

const (
	admin    = "admin"
	borrower = "alice"
	keeper   = "keeper"

	// reserveID sorts after collateralID, so the reserve is asset1 of the pool.
	reserveID    = "wsol"
	collateralID = "meme"

	fixedFee         uint64 = 100_000_000
	treasuryDeposit  uint64 = 20_000_000_000
	principal        uint64 = 5_000_000_000
	collateralSupply uint64 = 5_000_000_000
)

var startTime = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      *memstore.Store
	vault      *VaultService
	assets     *AssetService
	loans      *LoanService
	settlement *SettlementService
	publisher  *recordingPublisher
	now        time.Time
}

// newFixture initializes a treasury funded with 20e9 and a fixed fee of 1e8, and gives
// the borrower exactly enough reserve to pay the fee.
func newFixture(t *testing.T, protocol amm.Protocol) *fixture {
	t.Helper()
	if protocol == nil {
		protocol = amm.NewSimulator()
	}
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		store:     memstore.New(),
		publisher: &recordingPublisher{},
		now:       startTime,
	}
	clock := func() time.Time { return f.now }
	f.vault = NewVaultService(f.store, reserveID)
	f.assets = NewAssetService(f.store)
	f.loans = NewLoanService(f.store, protocol, reserveID).WithClock(clock)
	f.settlement = NewSettlementService(f.store, protocol, f.publisher).WithClock(clock)

	_, err := f.assets.RegisterAsset(f.ctx, admin, RegisterAssetRequest{ID: reserveID, Decimals: domain.ReserveDecimals})
	require.NoError(t, err)
	_, err = f.vault.InitializeTreasury(f.ctx, InitializeTreasuryRequest{Administrator: admin, Syncer: "syncer", Verifier: "verifier", FixedFee: fixedFee})
	require.NoError(t, err)

	f.mintReserve(admin, treasuryDeposit)
	_, err = f.vault.Deposit(f.ctx, admin, treasuryDeposit)
	require.NoError(t, err)
	f.mintReserve(borrower, fixedFee)
	return f
}

func (f *fixture) mintReserve(owner string, amount uint64) {
	f.t.Helper()
	_, err := f.assets.MintTo(f.ctx, admin, reserveID, owner, amount)
	require.NoError(f.t, err)
}

type collateralOpts struct {
	keepMint   bool
	keepFreeze bool
}

// issueCollateral creates a freezable asset owned by the borrower, mints supply to them
// and revokes the authorities unless told otherwise.
func (f *fixture) issueCollateral(id string, supply uint64, opts collateralOpts) {
	f.t.Helper()
	_, err := f.assets.RegisterAsset(f.ctx, borrower, RegisterAssetRequest{ID: id, Decimals: 9, Freezable: true})
	require.NoError(f.t, err)
	_, err = f.assets.MintTo(f.ctx, borrower, id, borrower, supply)
	require.NoError(f.t, err)
	if !opts.keepMint {
		_, err = f.assets.RevokeAuthority(f.ctx, borrower, id, AuthorityMint)
		require.NoError(f.t, err)
	}
	if !opts.keepFreeze {
		_, err = f.assets.RevokeAuthority(f.ctx, borrower, id, AuthorityFreeze)
		require.NoError(f.t, err)
	}
}

func (f *fixture) loanRequest() CreateLoanRequest {
	return CreateLoanRequest{
		Borrower:        borrower,
		Asset0:          collateralID,
		Asset1:          reserveID,
		Amount0:         collateralSupply,
		Amount1:         principal,
		DurationSeconds: domain.LoanDurationSeconds,
		CustodyOwner:    admin,
	}
}

// openLoan issues the standard collateral and opens a 5e9 loan against it.
func (f *fixture) openLoan() *models.Loan {
	f.t.Helper()
	f.issueCollateral(collateralID, collateralSupply, collateralOpts{})
	loan, err := f.loans.CreateLoan(f.ctx, f.loanRequest())
	require.NoError(f.t, err)
	return loan
}

func (f *fixture) treasury() *models.TreasuryConfig {
	f.t.Helper()
	cfg, err := f.vault.Treasury(f.ctx)
	require.NoError(f.t, err)
	return cfg
}

func (f *fixture) balanceOf(address string) uint64 {
	f.t.Helper()
	amount, err := custody.Balance(f.ctx, f.store.Queries(), address)
	require.NoError(f.t, err)
	return amount
}

func (f *fixture) reserveOf(owner string) uint64 {
	return f.balanceOf(custody.AssociatedAccount(owner, reserveID))
}

// reserveSkew wraps the simulator and forces the reserve side of every removal to a
// fixed amount by minting or burning the difference at the receiver.
type reserveSkew struct {
	*amm.Simulator
	reserveOut uint64
}

func (r *reserveSkew) RemoveLiquidity(ctx context.Context, ledger custody.TokenStore, req amm.RemoveLiquidityRequest) (amm.Withdrawal, error) {
	out, err := r.Simulator.RemoveLiquidity(ctx, ledger, req)
	if err != nil {
		return out, err
	}
	dst := custody.AssociatedAccount(req.Owner, reserveID)
	switch {
	case r.reserveOut > out.Amount1:
		err = custody.MintTo(ctx, ledger, reserveID, dst, r.reserveOut-out.Amount1, custody.Signer(admin))
	case r.reserveOut < out.Amount1:
		err = custody.Burn(ctx, ledger, reserveID, dst, out.Amount1-r.reserveOut, custody.Signer(req.Owner))
	}
	if err != nil {
		return amm.Withdrawal{}, err
	}
	out.Amount1 = r.reserveOut
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.LoanLiquidated
	err    error
}

func (p *recordingPublisher) PublishLiquidation(_ context.Context, evt events.LoanLiquidated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) published() []events.LoanLiquidated {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.LoanLiquidated(nil), p.events...)
}
