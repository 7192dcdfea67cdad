package service

import (
	"math"
	"testing"

	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAsset(t *testing.T) {
	f := newFixture(t, nil)

	asset, err := f.assets.RegisterAsset(f.ctx, "bob", RegisterAssetRequest{ID: " bonk ", Decimals: 5, Freezable: true})
	require.NoError(t, err)
	assert.Equal(t, "bonk", asset.ID)
	require.NotNil(t, asset.MintAuthority)
	require.NotNil(t, asset.FreezeAuthority)
	assert.Equal(t, "bob", *asset.MintAuthority)

	_, err = f.assets.RegisterAsset(f.ctx, "carol", RegisterAssetRequest{ID: "bonk", Decimals: 5})
	assert.ErrorIs(t, err, domain.ErrAssetExists)

	_, err = f.assets.RegisterAsset(f.ctx, "bob", RegisterAssetRequest{ID: "bad", Decimals: 19})
	assert.ErrorIs(t, err, domain.ErrInvalidMintAccount)

	_, err = f.assets.Asset(f.ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidMintAccount)
}

func TestMintTo(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.assets.MintTo(f.ctx, borrower, reserveID, borrower, 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.assets.MintTo(f.ctx, admin, reserveID, borrower, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	acct, err := f.assets.MintTo(f.ctx, admin, reserveID, "bob", 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), acct.Amount)
	assert.Equal(t, "bob", acct.Owner)

	bal, err := f.assets.Balance(f.ctx, "bob", reserveID)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), bal)

	asset, err := f.assets.Asset(f.ctx, reserveID)
	require.NoError(t, err)
	assert.Equal(t, treasuryDeposit+fixedFee+42, asset.Supply)
}

func TestMintTo_FullUnsignedRange(t *testing.T) {
	f := newFixture(t, nil)
	const supply uint64 = 10_000_000_000_000_000_000
	_, err := f.assets.RegisterAsset(f.ctx, borrower, RegisterAssetRequest{ID: "big", Decimals: 9})
	require.NoError(t, err)

	acct, err := f.assets.MintTo(f.ctx, borrower, "big", borrower, supply)
	require.NoError(t, err)
	assert.Equal(t, supply, acct.Amount)

	_, err = f.assets.MintTo(f.ctx, borrower, "big", borrower, math.MaxUint64-supply+1)
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
	bal, err := f.assets.Balance(f.ctx, borrower, "big")
	require.NoError(t, err)
	assert.Equal(t, supply, bal)
}

func TestRevokeAuthority(t *testing.T) {
	f := newFixture(t, nil)
	f.issueCollateral(collateralID, 10, collateralOpts{keepMint: true, keepFreeze: true})

	_, err := f.assets.RevokeAuthority(f.ctx, "mallory", collateralID, AuthorityMint)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	asset, err := f.assets.RevokeAuthority(f.ctx, borrower, collateralID, AuthorityMint)
	require.NoError(t, err)
	assert.Nil(t, asset.MintAuthority)
	assert.NotNil(t, asset.FreezeAuthority)

	// revocation is permanent
	_, err = f.assets.RevokeAuthority(f.ctx, borrower, collateralID, AuthorityMint)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.assets.MintTo(f.ctx, borrower, collateralID, borrower, 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.assets.RevokeAuthority(f.ctx, borrower, collateralID, AuthorityKind("owner"))
	assert.ErrorIs(t, err, domain.ErrInvalidMintAccount)
}
