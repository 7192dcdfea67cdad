package repository

import (
	"math"
	"testing"

	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericAmounts(t *testing.T) {
	for _, v := range []uint64{0, 1, math.MaxInt64, 10_000_000_000_000_000_000, math.MaxUint64} {
		got, err := fromNumeric(toNumeric(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestFromNumeric_OutOfRange(t *testing.T) {
	tests := []struct {
		name string
		in   decimal.Decimal
	}{
		{"negative", decimal.NewFromInt(-1)},
		{"fractional", decimal.RequireFromString("1.5")},
		{"above u64", decimal.RequireFromString("18446744073709551616")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromNumeric(tt.in)
			assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
		})
	}
}
