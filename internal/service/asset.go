package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/poolcredit/internal/custody"
	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/ayo6706/poolcredit/internal/repository"
	"go.uber.org/zap"
)

// AuthorityKind selects which asset authority to revoke.
type AuthorityKind string

const (
	AuthorityMint   AuthorityKind = "mint"
	AuthorityFreeze AuthorityKind = "freeze"
)

// AssetService manages the asset ledger: registration, minting and authority revocation.
type AssetService struct {
	store QueryStore
	audit *AuditService
}

func NewAssetService(store QueryStore) *AssetService {
	return &AssetService{store: store, audit: NewAuditService(store)}
}

type RegisterAssetRequest struct {
	ID        string
	Decimals  int32
	Freezable bool
}

// RegisterAsset creates an asset with the caller as mint authority, and as freeze
// authority when Freezable is set.
func (s *AssetService) RegisterAsset(ctx context.Context, caller string, req RegisterAssetRequest) (*models.Asset, error) {
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || req.Decimals < 0 || req.Decimals > 18 {
		return nil, domain.ErrInvalidMintAccount
	}
	if caller == "" {
		return nil, domain.ErrUnauthorized
	}

	asset := models.Asset{ID: req.ID, Decimals: req.Decimals, MintAuthority: &caller}
	if req.Freezable {
		freeze := caller
		asset.FreezeAuthority = &freeze
	}
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		if err := qtx.InsertAsset(ctx, asset); err != nil {
			if repository.IsUniqueViolation(err) {
				return domain.ErrAssetExists
			}
			return fmt.Errorf("insert asset: %w", err)
		}
		return s.audit.Record(ctx, qtx, auditEntry{
			EntityType: "asset",
			EntityID:   req.ID,
			Actor:      caller,
			Action:     "registered",
			NextState:  "ACTIVE",
			Metadata:   map[string]any{"decimals": req.Decimals, "freezable": req.Freezable},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Asset(ctx, req.ID)
}

// Asset returns a registered asset.
func (s *AssetService) Asset(ctx context.Context, id string) (*models.Asset, error) {
	asset, err := s.store.Queries().GetAsset(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrInvalidMintAccount
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return &asset, nil
}

// MintTo mints amount of asset into owner's associated account. The caller must hold
// the asset's mint authority.
func (s *AssetService) MintTo(ctx context.Context, caller, assetID, owner string, amount uint64) (*models.TokenAccount, error) {
	if amount == 0 {
		return nil, domain.ErrInvalidAmount
	}
	if owner == "" {
		return nil, domain.ErrAccountNotFound
	}
	var out models.TokenAccount
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		acc, err := custody.EnsureAssociatedAccount(ctx, qtx, owner, assetID)
		if err != nil {
			return err
		}
		if err := custody.MintTo(ctx, qtx, assetID, acc.Address, amount, custody.Signer(caller)); err != nil {
			return err
		}
		out, err = qtx.GetTokenAccount(ctx, acc.Address)
		if err != nil {
			return fmt.Errorf("reload token account: %w", err)
		}
		return s.audit.Record(ctx, qtx, auditEntry{
			EntityType: "asset",
			EntityID:   assetID,
			Actor:      caller,
			Action:     "minted",
			Metadata:   map[string]any{"owner": owner, "amount": amount},
		})
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("asset minted", zap.String("asset", assetID), zap.String("owner", owner), zap.Uint64("amount", amount))
	return &out, nil
}

// RevokeAuthority permanently clears the mint or freeze authority. Only the current
// holder may revoke it.
func (s *AssetService) RevokeAuthority(ctx context.Context, caller, assetID string, kind AuthorityKind) (*models.Asset, error) {
	var out models.Asset
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		asset, err := qtx.GetAssetForUpdate(ctx, assetID)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrInvalidMintAccount
			}
			return fmt.Errorf("lock asset: %w", err)
		}

		var target **string
		switch kind {
		case AuthorityMint:
			target = &asset.MintAuthority
		case AuthorityFreeze:
			target = &asset.FreezeAuthority
		default:
			return fmt.Errorf("unknown authority kind %q: %w", kind, domain.ErrInvalidMintAccount)
		}
		if *target == nil || **target != caller {
			return domain.ErrUnauthorized
		}
		*target = nil

		rows, err := qtx.UpdateAsset(ctx, asset)
		if err != nil {
			return fmt.Errorf("update asset: %w", err)
		}
		if err := requireExactlyOne(rows, "update asset"); err != nil {
			return err
		}
		out = asset
		return s.audit.Record(ctx, qtx, auditEntry{
			EntityType: "asset",
			EntityID:   assetID,
			Actor:      caller,
			Action:     "authority_revoked",
			PrevState:  string(kind),
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns owner's associated balance of asset.
func (s *AssetService) Balance(ctx context.Context, owner, assetID string) (uint64, error) {
	return custody.Balance(ctx, s.store.Queries(), custody.AssociatedAccount(owner, assetID))
}
