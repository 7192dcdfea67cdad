package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}

// saturatingSub returns a-b, or zero when b exceeds a.
func saturatingSub(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, true
	}
	return a - b, false
}

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Clock returns the current time. Services take one so tests can move it.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
