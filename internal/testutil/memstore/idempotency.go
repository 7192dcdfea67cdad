package memstore

import (
	"context"
	"sync"

	"github.com/ayo6706/poolcredit/internal/repository"
	"github.com/jackc/pgx/v5"
)

// Keys is an in-memory idempotency key table with the same no-row semantics as the
// Postgres queries.
type Keys struct {
	mu   sync.Mutex
	rows map[string]repository.IdempotencyKey
}

func NewKeys() *Keys {
	return &Keys{rows: map[string]repository.IdempotencyKey{}}
}

func (k *Keys) GetIdempotencyKey(_ context.Context, key string) (repository.IdempotencyKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	row, ok := k.rows[key]
	if !ok {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	return row, nil
}

func (k *Keys) ReserveIdempotencyKey(_ context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.rows[arg.IdempotencyKey]; ok {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	row := repository.IdempotencyKey{
		IdempotencyKey: arg.IdempotencyKey,
		RequestHash:    arg.RequestHash,
		Method:         arg.Method,
		Path:           arg.Path,
		InProgress:     true,
	}
	k.rows[arg.IdempotencyKey] = row
	return row, nil
}

func (k *Keys) FinalizeIdempotencyKey(_ context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	row, ok := k.rows[arg.IdempotencyKey]
	if !ok || row.RequestHash != arg.RequestHash {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	row.InProgress = false
	row.ResponseStatus = arg.ResponseStatus
	row.ResponseBody = append([]byte(nil), arg.ResponseBody...)
	row.ContentType = arg.ContentType
	k.rows[arg.IdempotencyKey] = row
	return row, nil
}
