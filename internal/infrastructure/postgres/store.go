package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/restaurant-pos/internal/application"
	domcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	dominv "github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/restaurant-pos/internal/domain/order"
	dompay "github.com/Zhima-Mochi/restaurant-pos/internal/domain/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

var errReadOnly = errors.New("postgres: write in read-only unit of work")

// Store runs units of work as read-committed transactions. Row locks
// (SELECT … FOR UPDATE) and transaction-scoped advisory locks provide the
// serialization the repositories promise.
type Store struct {
	pool *pgxpool.Pool
}

func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

var _ application.UnitOfWork = (*Store)(nil)

func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, true, fn)
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}, false, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, writable bool, fn func(ctx context.Context, tx application.Tx) error) error {
	ptx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return errs.Persistence("postgres: begin", err)
	}
	defer func() { _ = ptx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &tx{q: ptx, writable: writable}); err != nil {
		return err
	}
	if err := ptx.Commit(ctx); err != nil {
		return errs.Persistence("postgres: commit", mapError(err))
	}
	return nil
}

type tx struct {
	q        pgx.Tx
	writable bool
}

func (t *tx) Orders() domorder.Repository   { return orderRepository{t} }
func (t *tx) Inventory() dominv.Repository  { return inventoryRepository{t} }
func (t *tx) Coupons() domcoupon.Repository { return couponRepository{t} }
func (t *tx) Payments() dompay.Repository   { return paymentRepository{t} }

func (t *tx) checkWritable() error {
	if !t.writable {
		return errReadOnly
	}
	return nil
}

// forUpdate is the locking clause of reads in a read-write unit of work.
func (t *tx) forUpdate() string {
	if t.writable {
		return " FOR UPDATE"
	}
	return ""
}

// lockKey takes a transaction-scoped advisory lock on key.
func (t *tx) lockKey(ctx context.Context, key string) error {
	if !t.writable {
		return nil
	}
	if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("postgres: advisory lock %s: %w", key, err)
	}
	return nil
}

// mapError turns unique violations into conflicts. Other errors pass through
// for the caller to wrap as persistence failures.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s: %w", errs.ErrConflict, pgErr.ConstraintName, err)
	}
	return err
}

func isConstraint(err error, name string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.ConstraintName == name
}
