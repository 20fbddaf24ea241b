package postgres

import (
	"context"
	"fmt"

	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

// ExerciseRepository implements practice.ExerciseRepository.
type ExerciseRepository struct {
	db Querier
}

// NewExerciseRepository creates an ExerciseRepository.
func NewExerciseRepository(db Querier) *ExerciseRepository {
	return &ExerciseRepository{db: db}
}

// ListExercises returns every exercise ordered by id.
func (r *ExerciseRepository) ListExercises(ctx context.Context) ([]practice.Exercise, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, segment_id, default_tempo, default_duration_seconds
		FROM exercises
		ORDER BY id`)
	if err != nil {
		return nil, shared.WrapError("practice", "ListExercises", shared.ErrServiceUnavailable, "query exercises", err)
	}
	defer rows.Close()

	var exercises []practice.Exercise
	for rows.Next() {
		var ex practice.Exercise
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.Description, &ex.SegmentID, &ex.DefaultTempo, &ex.DefaultDurationSeconds); err != nil {
			return nil, fmt.Errorf("postgres: scan exercise: %w", err)
		}
		exercises = append(exercises, ex)
	}
	return exercises, rows.Err()
}

// ListSegments returns every segment ordered by sort order.
func (r *ExerciseRepository) ListSegments(ctx context.Context) ([]practice.Segment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, sort_order, start_date, end_date
		FROM segments
		ORDER BY sort_order, id`)
	if err != nil {
		return nil, shared.WrapError("practice", "ListSegments", shared.ErrServiceUnavailable, "query segments", err)
	}
	defer rows.Close()

	var segments []practice.Segment
	for rows.Next() {
		var seg practice.Segment
		if err := rows.Scan(&seg.ID, &seg.Name, &seg.Order, &seg.StartDate, &seg.EndDate); err != nil {
			return nil, fmt.Errorf("postgres: scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// SaveExercise upserts an exercise.
func (r *ExerciseRepository) SaveExercise(ctx context.Context, ex practice.Exercise) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO exercises (id, name, description, segment_id, default_tempo, default_duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			segment_id = EXCLUDED.segment_id,
			default_tempo = EXCLUDED.default_tempo,
			default_duration_seconds = EXCLUDED.default_duration_seconds`,
		ex.ID, ex.Name, ex.Description, ex.SegmentID, ex.DefaultTempo, ex.DefaultDurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("postgres: save exercise %s: %w", ex.ID, err)
	}
	return nil
}

// SaveSegment upserts a segment.
func (r *ExerciseRepository) SaveSegment(ctx context.Context, seg practice.Segment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO segments (id, name, sort_order, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			sort_order = EXCLUDED.sort_order,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date`,
		seg.ID, seg.Name, seg.Order, seg.StartDate, seg.EndDate,
	)
	if err != nil {
		return fmt.Errorf("postgres: save segment %s: %w", seg.ID, err)
	}
	return nil
}
