package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const day = 24 * time.Hour

// CreateOrder persists a new order. The user row is created on first order.
func (s *PostgresStore) CreateOrder(ctx context.Context, o *Order) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, o.UserID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, user_id, amount, city, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, o.ID, o.UserID, o.Amount, o.City, o.CreatedAt)
		return err
	})
	if err != nil {
		return mapError("failed to create order", err)
	}
	return nil
}

// OrderStats aggregates the user's orders in a single round trip.
// A user with no orders yields zero counts and nil last-order fields.
func (s *PostgresStore) OrderStats(ctx context.Context, userID string, now time.Time, windows []int) (*OrderStats, error) {
	stats := &OrderStats{WindowCounts: make(map[int]int64, len(windows))}

	batch := &pgx.Batch{}
	batch.Queue(`
		SELECT count(*), COALESCE(sum(amount), 0)::float8, max(created_at)
		FROM orders
		WHERE user_id = $1
	`, userID).QueryRow(func(row pgx.Row) error {
		return row.Scan(&stats.TotalOrders, &stats.LTV, &stats.LastOrderAt)
	})

	batch.Queue(`
		SELECT city
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID).QueryRow(func(row pgx.Row) error {
		err := row.Scan(&stats.LastCity)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	})

	for _, n := range windows {
		cutoff := now.Add(-time.Duration(n) * day)
		batch.Queue(`
			SELECT count(*)
			FROM orders
			WHERE user_id = $1 AND created_at >= $2
		`, userID, cutoff).QueryRow(func(row pgx.Row) error {
			var count int64
			if err := row.Scan(&count); err != nil {
				return err
			}
			stats.WindowCounts[n] = count
			return nil
		})
	}

	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return nil, mapError(fmt.Sprintf("failed to load order stats for %q", userID), err)
	}
	return stats, nil
}

// HasOrderAfter reports whether userID placed an order strictly after t.
func (s *PostgresStore) HasOrderAfter(ctx context.Context, userID string, t time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders WHERE user_id = $1 AND created_at > $2
		)
	`, userID, t).Scan(&exists)
	if err != nil {
		return false, mapError("failed to check newer orders", err)
	}
	return exists, nil
}

// ListDormantUsers returns the users whose latest order happened before cutoff,
// ordered by (last order, user id) descending so pages can resume from a cursor.
func (s *PostgresStore) ListDormantUsers(ctx context.Context, cutoff time.Time, after *DormantUser, limit int) ([]DormantUser, error) {
	query := `
		SELECT user_id, max(created_at) AS last_order_at
		FROM orders
		GROUP BY user_id
		HAVING max(created_at) < $1`
	args := []any{cutoff}
	if after != nil {
		query += ` AND (max(created_at), user_id) < ($2, $3)`
		args = append(args, after.LastOrderAt, after.UserID)
	}
	query += ` ORDER BY last_order_at DESC, user_id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("failed to list dormant users", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowToStructByPos[DormantUser])
	if err != nil {
		return nil, mapError("failed to scan dormant users", err)
	}
	return users, nil
}
