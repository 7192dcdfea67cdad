package models

import (
	"time"

	"github.com/google/uuid"
)

// TreasuryConfig is the singleton treasury record. Balance counts reserve base units
// available for lending; Surplus counts settlement proceeds above principal.
type TreasuryConfig struct {
	Balance        uint64    `json:"balance"`
	Surplus        uint64    `json:"surplus"`
	Administrator  string    `json:"administrator"`
	Syncer         string    `json:"syncer"`
	Verifier       string    `json:"verifier"`
	FixedFee       uint64    `json:"fixed_fee"`
	Paused         bool      `json:"paused"`
	ReserveAsset   string    `json:"reserve_asset"`
	VaultAccount   string    `json:"vault_account"`
	SurplusAccount string    `json:"surplus_account"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Loan is keyed by the pool it financed.
type Loan struct {
	Pool                      string     `json:"pool"`
	Borrower                  string     `json:"borrower"`
	LPAsset                   string     `json:"lp_asset"`
	CollateralAsset           string     `json:"collateral_asset"`
	ReserveIsAsset0           bool       `json:"reserve_is_asset0"`
	PrincipalReserveAmount    uint64     `json:"principal_reserve_amount"`
	PrincipalCollateralAmount uint64     `json:"principal_collateral_amount"`
	FeePaid                   uint64     `json:"fee_paid"`
	LPCustodyAccount          string     `json:"lp_custody_account"`
	LPAmount                  uint64     `json:"lp_amount"`
	StartTime                 time.Time  `json:"start_time"`
	DurationSeconds           int64      `json:"duration_seconds"`
	Repaid                    bool       `json:"repaid"`
	SettledVia                string     `json:"settled_via,omitempty"`
	SettledBy                 string     `json:"settled_by,omitempty"`
	ReserveReturned           uint64     `json:"reserve_returned"`
	SurplusReserveAmount      uint64     `json:"surplus_reserve_amount"`
	CollateralReceived        uint64     `json:"collateral_received"`
	SettledAt                 *time.Time `json:"settled_at,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

// DeadlineUnix is the last second at which the borrower may still repay.
func (l Loan) DeadlineUnix() int64 {
	return l.StartTime.Unix() + l.DurationSeconds
}

// Expired reports whether now is strictly past the deadline.
func (l Loan) Expired(now time.Time) bool {
	return now.Unix() > l.DeadlineUnix()
}

// Asset is a fungible token registered in the asset ledger.
type Asset struct {
	ID              string    `json:"id"`
	Decimals        int32     `json:"decimals"`
	Supply          uint64    `json:"supply"`
	MintAuthority   *string   `json:"mint_authority"`
	FreezeAuthority *string   `json:"freeze_authority"`
	CreatedAt       time.Time `json:"created_at"`
}

// TokenAccount holds a balance of one asset for one owner.
type TokenAccount struct {
	Address   string    `json:"address"`
	Owner     string    `json:"owner"`
	Asset     string    `json:"asset"`
	Amount    uint64    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TreasuryEntry journals one movement of a treasury counter.
type TreasuryEntry struct {
	ID        uuid.UUID `json:"id"`
	Ledger    string    `json:"ledger"`    // "balance" or "surplus"
	Direction string    `json:"direction"` // "debit" or "credit"
	Amount    uint64    `json:"amount"`
	Reason    string    `json:"reason"`
	Pool      *string   `json:"pool,omitempty"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}
