// Package store provides the Data Access Layer for Daffodil.
// It handles all direct interactions with PostgreSQL using the pgx driver and
// translates driver errors into the apperr kinds.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// Compile-time checks that PostgresStore implements every repository.
var (
	_ UserRepository       = (*PostgresStore)(nil)
	_ OrderRepository      = (*PostgresStore)(nil)
	_ SegmentRepository    = (*PostgresStore)(nil)
	_ ExperimentRepository = (*PostgresStore)(nil)
	_ MembershipRepository = (*PostgresStore)(nil)
)

// PostgreSQL error codes the store reacts to.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgSerializationFail   = "40001"
	pgDeadlockDetected    = "40P01"
	pgTooManyConnections  = "53300"
	pgAdminShutdown       = "57P01"
	pgCannotConnectNow    = "57P03"
)

// PostgresStore implements all repositories on top of a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	validation.AssertNotNil(db, "store: database pool")
	return &PostgresStore{db: db}
}

// mapError wraps a driver error with the operation name and the matching apperr kind.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return fmt.Errorf("%s: %w (%s)", op, apperr.ErrConflict, pgErr.ConstraintName)
		case pgErr.Code == pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, apperr.ErrNotFound, pgErr.Detail)
		case pgErr.Code == pgSerializationFail, pgErr.Code == pgDeadlockDetected,
			pgErr.Code == pgTooManyConnections, pgErr.Code == pgAdminShutdown,
			pgErr.Code == pgCannotConnectNow,
			len(pgErr.Code) == 5 && pgErr.Code[:2] == "08": // connection exception class
			return apperr.Unavailable("postgres", fmt.Errorf("%s: %w", op, err))
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if isTransient(err) {
		return apperr.Unavailable("postgres", fmt.Errorf("%s: %w", op, err))
	}

	return fmt.Errorf("%s: %w", op, err)
}

// isTransient reports connectivity failures that are worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
