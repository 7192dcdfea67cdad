package handler

import (
	"errors"

	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/shopspring/decimal"
)

// amountField accepts a quantity either in base units or in whole units of the asset.
type amountField struct {
	Amount        uint64           `json:"amount"`
	AmountDecimal *decimal.Decimal `json:"amount_decimal,omitempty"`
}

func (a amountField) baseUnits(decimals int32) (uint64, error) {
	if a.AmountDecimal == nil {
		return a.Amount, nil
	}
	if a.Amount != 0 {
		return 0, errors.New("set either amount or amount_decimal, not both")
	}
	return domain.FromDecimal(*a.AmountDecimal, decimals)
}

// displayAmount renders reserve base units in whole units.
func displayAmount(units uint64) string {
	return domain.NewReserveAmount(units).String()
}
