package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ReplaceMemberships swaps the user's membership set in one transaction.
// A transaction-scoped advisory lock serializes concurrent replaces for the
// same user so readers always observe one complete snapshot.
func (s *PostgresStore) ReplaceMemberships(ctx context.Context, userID string, segmentIDs []string) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_segment_memberships WHERE user_id = $1`, userID); err != nil {
			return err
		}
		if len(segmentIDs) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(segmentIDs))
		for _, id := range dedupe(segmentIDs) {
			rows = append(rows, []any{userID, id})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"user_segment_memberships"},
			[]string{"user_id", "segment_id"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
	if err != nil {
		return mapError(fmt.Sprintf("failed to replace memberships for %q", userID), err)
	}
	return nil
}

// HasMemberships reports whether any membership row exists for userID.
func (s *PostgresStore) HasMemberships(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_segment_memberships WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, mapError("failed to check memberships", err)
	}
	return exists, nil
}

// ListMemberships returns the user's segment ids in ascending order.
func (s *PostgresStore) ListMemberships(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT segment_id
		FROM user_segment_memberships
		WHERE user_id = $1
		ORDER BY segment_id ASC
	`, userID)
	if err != nil {
		return nil, mapError("failed to list memberships", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError("failed to scan memberships", err)
	}
	return ids, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
