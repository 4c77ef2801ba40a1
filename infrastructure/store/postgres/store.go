// Package postgres provides a ports.Store backed by PostgreSQL through a
// pgx connection pool. Every unit of work runs in a SERIALIZABLE
// transaction and submissions are read with SELECT ... FOR UPDATE, so a
// decision and the aggregate it was based on always come from one
// consistent snapshot. Serialization failures surface as retryable
// ports.StoreError values.
//
// JSON columns are decoded on read through the payload package, which also
// accepts rows written by older producers that stored string-encoded JSON.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/ports"
)

//go:embed schema.sql
var schema string

// PostgreSQL error codes that mean "rerun the whole transaction".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

var _ ports.Store = (*Store)(nil)

// Store is a PostgreSQL ports.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool to databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, ports.NewStoreError("Ping", "database", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err))
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

// Close closes the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables the store needs. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return classify("Migrate", "schema", err)
	}
	return nil
}

// WithTx implements ports.Store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return classify("Begin", "transaction", err)
	}
	defer func() { _ = pgxTx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &tx{tx: pgxTx}); err != nil {
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return classify("Commit", "transaction", err)
	}
	return nil
}

// classify wraps a driver error in a ports.StoreError whose chain tells the
// engine whether the transaction may be rerun.
func classify(op, entity string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && (pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected):
		return ports.NewStoreError(op, entity, fmt.Errorf("%w: %w", ports.ErrSerializationFailure, err))
	case errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err):
		return ports.NewStoreError(op, entity, fmt.Errorf("%w: %w", ports.ErrTimeout, err))
	case errors.Is(err, context.Canceled):
		return ports.NewStoreError(op, entity, err)
	case pgErr == nil && pgconn.SafeToRetry(err):
		return ports.NewStoreError(op, entity, fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err))
	}
	return ports.NewStoreError(op, entity, err)
}

// notFound maps pgx.ErrNoRows to a domain.NotFoundError and classifies
// everything else.
func notFound(op, entity, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewNotFoundError(entity, id)
	}
	return classify(op, entity, err)
}
