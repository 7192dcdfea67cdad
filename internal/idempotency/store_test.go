package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/poolcredit/internal/testutil/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, memstore.NewKeys(), time.Minute)

	_, err := s.Lookup(ctx, "k1", "h1")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Reserve(ctx, "k1", "h1", "POST", "/v1/treasury/deposit")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Reserve(ctx, "k1", "h1", "POST", "/v1/treasury/deposit")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Lookup(ctx, "k1", "h1")
	assert.ErrorIs(t, err, ErrInProgress)
	_, err = s.Lookup(ctx, "k1", "other")
	assert.ErrorIs(t, err, ErrHashMismatch)

	rec, err := s.Finalize(ctx, "k1", "h1", 201, []byte(`{"ok":true}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "postgres", rec.ServedBy)

	rec, err = s.Lookup(ctx, "k1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)
	assert.JSONEq(t, `{"ok":true}`, string(rec.Body))

	_, err = s.Finalize(ctx, "missing", "h1", 200, nil, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWaitForCompletion(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, memstore.NewKeys(), time.Minute)
	_, err := s.Reserve(ctx, "k", "h", "POST", "/x")
	require.NoError(t, err)

	go func() {
		time.Sleep(60 * time.Millisecond)
		_, _ = s.Finalize(ctx, "k", "h", 200, []byte("done"), "text/plain")
	}()

	rec, err := s.WaitForCompletion(ctx, "k", "h")
	require.NoError(t, err)
	assert.Equal(t, "done", string(rec.Body))

	_, err = s.Reserve(ctx, "stuck", "h", "POST", "/x")
	require.NoError(t, err)
	short, cancel := context.WithTimeout(ctx, 80*time.Millisecond)
	defer cancel()
	_, err = s.WaitForCompletion(short, "stuck", "h")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForCompletion_HashMismatchIsNotRetried(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, memstore.NewKeys(), time.Minute, WithPollInterval(5*time.Millisecond))
	_, err := s.Reserve(ctx, "k", "h", "POST", "/x")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = s.WaitForCompletion(short, "k", "different")
	assert.ErrorIs(t, err, ErrHashMismatch)
}
