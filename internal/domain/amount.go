package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Amount is a token quantity in base units together with the asset's decimals.
// Balances are kept as integer base units; decimals only matter for display and input parsing.
type Amount struct {
	BaseUnits uint64
	Decimals  int32
}

// NewReserveAmount wraps base units of the reserve asset.
func NewReserveAmount(units uint64) Amount {
	return Amount{BaseUnits: units, Decimals: ReserveDecimals}
}

// ToDecimal converts base units to whole units.
func (a Amount) ToDecimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(a.BaseUnits), -a.Decimals)
}

// String returns the whole-unit representation, e.g. "5.3".
func (a Amount) String() string {
	return a.ToDecimal().String()
}

// FromDecimal converts whole units to base units. Fractions below one base unit,
// negative values and values beyond uint64 are rejected.
func FromDecimal(d decimal.Decimal, decimals int32) (uint64, error) {
	if d.Sign() < 0 {
		return 0, fmt.Errorf("negative amount %s", d.String())
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d.String(), decimals)
	}
	units := shifted.BigInt()
	if !units.IsUint64() {
		return 0, fmt.Errorf("amount %s overflows base units", d.String())
	}
	return units.Uint64(), nil
}

// Loan principals are fixed denominations of whole reserve units.
var allowedPrincipalUnits = []int64{2, 5, 10, 20}

var allowedPrincipals = buildAllowedPrincipals()

func buildAllowedPrincipals() []uint64 {
	out := make([]uint64, 0, len(allowedPrincipalUnits))
	for _, units := range allowedPrincipalUnits {
		v, err := FromDecimal(decimal.NewFromInt(units), ReserveDecimals)
		if err != nil {
			panic(err)
		}
		out = append(out, v)
	}
	return out
}

// AllowedPrincipals returns the permitted principal reserve amounts in base units.
func AllowedPrincipals() []uint64 {
	out := make([]uint64, len(allowedPrincipals))
	copy(out, allowedPrincipals)
	return out
}

// IsAllowedPrincipal reports whether amount is one of the fixed loan denominations.
func IsAllowedPrincipal(amount uint64) bool {
	for _, v := range allowedPrincipals {
		if v == amount {
			return true
		}
	}
	return false
}
