package store

import (
	"context"
)

// CreateUser registers userID. Registering an existing user is not an error.
func (s *PostgresStore) CreateUser(ctx context.Context, userID string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		return false, mapError("failed to create user", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UserExists reports whether userID is registered.
func (s *PostgresStore) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, mapError("failed to check user", err)
	}
	return exists, nil
}
