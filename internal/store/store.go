package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrUnknownStudent is returned when a payment references a student that does not exist.
var ErrUnknownStudent = errors.New("store: unknown student")

const foreignKeyViolation = "23503"

// Store reads reference data and student profiles and appends to the payment log.
type Store struct {
	Pool *pgxpool.Pool
	Now  func() time.Time
}

// New wraps a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool, Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// readOnly runs fn inside a repeatable-read, read-only transaction so multi-table reads
// observe one consistent state.
func (s *Store) readOnly(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return errors.Join(ErrUnknownStudent, err)
	}
	return err
}
