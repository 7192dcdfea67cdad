package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const (
	pgUniqueViolation    = "23505"
	pgLockNotAvailable   = "55P03"
	pgCheckViolation     = "23514"
	pgSerializationError = "40001"
)

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	return hasPgCode(err, pgUniqueViolation)
}

// IsLockNotAvailable reports whether a NOWAIT row lock could not be acquired.
func IsLockNotAvailable(err error) bool {
	return hasPgCode(err, pgLockNotAvailable) || hasPgCode(err, pgSerializationError)
}

// IsCheckViolation reports whether a CHECK constraint rejected the write.
func IsCheckViolation(err error) bool {
	return hasPgCode(err, pgCheckViolation)
}

func hasPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// toNumeric encodes base units for a NUMERIC(20,0) column, which holds the full u64 range.
func toNumeric(v uint64) decimal.Decimal {
	return decimal.NewFromUint64(v)
}

// fromNumeric decodes a NUMERIC(20,0) column back to base units. A value outside u64 can
// only come from a hand-edited row and is reported as an overflow.
func fromNumeric(d decimal.Decimal) (uint64, error) {
	if d.IsNegative() || !d.IsInteger() {
		return 0, fmt.Errorf("amount %s in store: %w", d, domain.ErrArithmeticOverflow)
	}
	b := d.BigInt()
	if !b.IsUint64() {
		return 0, fmt.Errorf("amount %s in store: %w", d, domain.ErrArithmeticOverflow)
	}
	return b.Uint64(), nil
}
