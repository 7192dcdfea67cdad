package service

import (
	"context"

	"github.com/ayo6706/poolcredit/internal/repository"
)

// QueryStore defines the minimal data access contract required by services.
type QueryStore interface {
	Queries() repository.Querier
	RunInTx(ctx context.Context, fn func(q repository.Querier) error) error
	// RunInReadTx gives fn one consistent snapshot for multi-read checks.
	RunInReadTx(ctx context.Context, fn func(q repository.Querier) error) error
}
