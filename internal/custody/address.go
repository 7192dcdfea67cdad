// Package custody implements the simulated token program: deterministic account
// addresses, custody authorities and the balance-moving primitives.
package custody

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/ayo6706/poolcredit/internal/domain"
)

const associatedSeed = "associated"

// DeriveAddress maps seeds to a stable address. Seeds are length-prefixed so
// ("ab","c") and ("a","bc") never collide.
func DeriveAddress(seeds ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, seed := range seeds {
		binary.BigEndian.PutUint64(n[:], uint64(len(seed)))
		h.Write(n[:])
		h.Write([]byte(seed))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AssociatedAccount is the canonical token account of owner for asset.
func AssociatedAccount(owner, asset string) string {
	return DeriveAddress(associatedSeed, owner, asset)
}

// VaultAccount holds the treasury reserve.
func VaultAccount() string {
	return DeriveAddress(domain.SeedVault)
}

// SurplusAccount holds settlement proceeds above principal.
func SurplusAccount() string {
	return DeriveAddress(domain.SeedSurplus)
}

// LPCustodyAccount holds the LP receipt of the loan financing pool.
func LPCustodyAccount(pool string) string {
	return DeriveAddress(domain.SeedLPToken, pool)
}
