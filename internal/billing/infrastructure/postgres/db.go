package postgres

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"

	billing "hostel-billing/internal/billing/domain"
)

const (
	uniqueViolation         = "23505"
	paymentIdempotencyIndex = "uq_invoice_payments_idempotency"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// conflictOr maps unique violations onto ConcurrentModificationError.
// A repeated payment idempotency key maps onto ErrDuplicatePayment instead.
func conflictOr(err error, key string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	if pgErr.ConstraintName == paymentIdempotencyIndex {
		return errors.Wrapf(billing.ErrDuplicatePayment, "payment key on %s", key)
	}
	return &billing.ConcurrentModificationError{Key: key}
}
