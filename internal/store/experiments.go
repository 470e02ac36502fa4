package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const linkSegmentsQuery = `
	INSERT INTO experiment_segments (experiment_id, segment_id)
	SELECT $1, unnest($2::text[])
	ON CONFLICT DO NOTHING
`

// CreateExperiment inserts the experiment and its segment links atomically.
func (s *PostgresStore) CreateExperiment(ctx context.Context, e *Experiment) error {
	variants, err := json.Marshal(e.Variants)
	if err != nil {
		return fmt.Errorf("failed to encode variants: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO experiments (id, name, status, variants)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at
		`, e.ID, e.Name, e.Status, variants).Scan(&e.CreatedAt); err != nil {
			return err
		}

		if len(e.SegmentIDs) == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, linkSegmentsQuery, e.ID, e.SegmentIDs)
		return err
	})
	if err != nil {
		return mapError(fmt.Sprintf("failed to create experiment %q", e.Name), err)
	}
	return nil
}

// GetExperiment fetches an experiment and its segment ids by id.
func (s *PostgresStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	exp, err := s.getExperiment(ctx, `e.id = $1`, id)
	if err != nil {
		return nil, mapError(fmt.Sprintf("failed to get experiment %q", id), err)
	}
	return exp, nil
}

// GetExperimentByName fetches an experiment and its segment ids by name.
func (s *PostgresStore) GetExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	exp, err := s.getExperiment(ctx, `e.name = $1`, name)
	if err != nil {
		return nil, mapError(fmt.Sprintf("failed to get experiment %q", name), err)
	}
	return exp, nil
}

func (s *PostgresStore) getExperiment(ctx context.Context, where string, arg string) (*Experiment, error) {
	row := s.db.QueryRow(ctx, experimentSelect+` WHERE `+where+` GROUP BY e.id`, arg)
	return scanExperiment(row)
}

// LinkSegments adds missing experiment-segment links. Existing links are kept.
func (s *PostgresStore) LinkSegments(ctx context.Context, experimentID string, segmentIDs []string) (int64, error) {
	if len(segmentIDs) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, linkSegmentsQuery, experimentID, segmentIDs)
	if err != nil {
		return 0, mapError(fmt.Sprintf("failed to link segments to %q", experimentID), err)
	}
	return tag.RowsAffected(), nil
}

const experimentSelect = `
	SELECT e.id, e.name, e.status, e.variants, e.created_at,
	       COALESCE(array_agg(es.segment_id ORDER BY es.segment_id)
	                FILTER (WHERE es.segment_id IS NOT NULL), '{}')
	FROM experiments e
	LEFT JOIN experiment_segments es ON es.experiment_id = e.id
`

// ListActiveExperiments returns active experiments with their linked segments.
func (s *PostgresStore) ListActiveExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.Query(ctx, experimentSelect+`
		WHERE e.status = 'active'
		GROUP BY e.id
		ORDER BY e.created_at ASC, e.id ASC
	`)
	if err != nil {
		return nil, mapError("failed to list active experiments", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, mapError("failed to scan experiment", err)
		}
		experiments = append(experiments, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("error iterating experiments", err)
	}
	return experiments, nil
}

func scanExperiment(row pgx.Row) (*Experiment, error) {
	var (
		exp      Experiment
		variants []byte
	)
	if err := row.Scan(&exp.ID, &exp.Name, &exp.Status, &variants, &exp.CreatedAt, &exp.SegmentIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(variants, &exp.Variants); err != nil {
		return nil, fmt.Errorf("corrupt variants for experiment %q: %w", exp.ID, err)
	}
	return &exp, nil
}
