package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const segmentColumns = `id, name, description, rules, created_at, updated_at`

// CreateSegment inserts a new segment. ID must be set by the caller;
// timestamps are filled from the database.
func (s *PostgresStore) CreateSegment(ctx context.Context, seg *Segment) error {
	query := `
		INSERT INTO segments (id, name, description, rules)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRow(ctx, query, seg.ID, seg.Name, seg.Description, []byte(seg.Rules)).
		Scan(&seg.CreatedAt, &seg.UpdatedAt)
	if err != nil {
		return mapError(fmt.Sprintf("failed to create segment %q", seg.Name), err)
	}
	return nil
}

// GetSegment fetches a segment by id.
func (s *PostgresStore) GetSegment(ctx context.Context, id string) (*Segment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = $1`, id)
	seg, err := scanSegment(row)
	if err != nil {
		return nil, mapError(fmt.Sprintf("failed to get segment %q", id), err)
	}
	return seg, nil
}

// GetSegmentByName fetches a segment by its unique name.
func (s *PostgresStore) GetSegmentByName(ctx context.Context, name string) (*Segment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+segmentColumns+` FROM segments WHERE name = $1`, name)
	seg, err := scanSegment(row)
	if err != nil {
		return nil, mapError(fmt.Sprintf("failed to get segment %q", name), err)
	}
	return seg, nil
}

// ListSegments returns every segment ordered by creation time.
func (s *PostgresStore) ListSegments(ctx context.Context) ([]*Segment, error) {
	rows, err := s.db.Query(ctx, `SELECT `+segmentColumns+` FROM segments ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, mapError("failed to list segments", err)
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, mapError("failed to scan segment", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("error iterating segments", err)
	}
	return segments, nil
}

// ListSegmentsPage retrieves a page of segments and the total count.
func (s *PostgresStore) ListSegmentsPage(ctx context.Context, limit, offset int) ([]*Segment, int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM segments`).Scan(&total); err != nil {
		return nil, 0, mapError("failed to count segments", err)
	}

	if total == 0 || int64(offset) >= total {
		return []*Segment{}, total, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+segmentColumns+`
		FROM segments
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, mapError("failed to list segments", err)
	}
	defer rows.Close()

	segments := make([]*Segment, 0, limit)
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, 0, mapError("failed to scan segment", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError("error iterating segments", err)
	}
	return segments, total, nil
}

func scanSegment(row pgx.Row) (*Segment, error) {
	var (
		seg   Segment
		rules []byte
	)
	if err := row.Scan(&seg.ID, &seg.Name, &seg.Description, &rules, &seg.CreatedAt, &seg.UpdatedAt); err != nil {
		return nil, err
	}
	seg.Rules = rules
	return &seg, nil
}
