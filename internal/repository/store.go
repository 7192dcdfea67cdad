package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store scopes the lending engine's queries to the pool or to one transaction.
type Store struct {
	db      *pgxpool.Pool
	queries *Queries
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db, queries: New(db)}
}

// Queries returns the query set bound to the pool. Reads through it take no locks.
func (s *Store) Queries() Querier {
	return s.queries
}

// Postgres exposes the concrete query set, which also carries the idempotency key queries.
func (s *Store) Postgres() *Queries {
	return s.queries
}

// RunInTx runs fn in a read-committed transaction. Every settlement locks its rows with
// NOWAIT, so a conflict anywhere in fn or at commit surfaces as domain.ErrConcurrentUpdate
// and the caller decides whether to retry.
func (s *Store) RunInTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(s.queries.WithTx(tx)); err != nil {
		return asConcurrentUpdate(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return asConcurrentUpdate(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// RunInReadTx runs fn in a read-only repeatable-read transaction, so every read in fn
// sees the same committed snapshot.
func (s *Store) RunInReadTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(s.queries.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit read transaction: %w", err)
	}
	return nil
}

func asConcurrentUpdate(err error) error {
	if IsLockNotAvailable(err) {
		return fmt.Errorf("%w: %v", domain.ErrConcurrentUpdate, err)
	}
	return err
}
