package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aulago/classroom-api/internal/models"
)

const snapshotColumns = "id, teacher_id, period, assignments_created, total_submissions, graded_submissions, grading_rate, average_grading_time_hours, average_grade, feedback_quality_score, created_at, updated_at"

// PerformanceRepository manages persistence for performance snapshots.
type PerformanceRepository struct {
	db *sqlx.DB
}

// NewPerformanceRepository constructs a PerformanceRepository.
func NewPerformanceRepository(db *sqlx.DB) *PerformanceRepository {
	return &PerformanceRepository{db: db}
}

// Upsert inserts the snapshot or overwrites the existing one for the same
// (teacher_id, period) key.
func (r *PerformanceRepository) Upsert(ctx context.Context, snapshot *models.PerformanceSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = now
	}
	snapshot.UpdatedAt = now

	const query = `INSERT INTO performance_snapshots (id, teacher_id, period, assignments_created, total_submissions, graded_submissions, grading_rate, average_grading_time_hours, average_grade, feedback_quality_score, created_at, updated_at)
		VALUES (:id, :teacher_id, :period, :assignments_created, :total_submissions, :graded_submissions, :grading_rate, :average_grading_time_hours, :average_grade, :feedback_quality_score, :created_at, :updated_at)
		ON CONFLICT (teacher_id, period) DO UPDATE SET
			assignments_created = EXCLUDED.assignments_created,
			total_submissions = EXCLUDED.total_submissions,
			graded_submissions = EXCLUDED.graded_submissions,
			grading_rate = EXCLUDED.grading_rate,
			average_grading_time_hours = EXCLUDED.average_grading_time_hours,
			average_grade = EXCLUDED.average_grade,
			feedback_quality_score = EXCLUDED.feedback_quality_score,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, snapshot); err != nil {
		return fmt.Errorf("upsert performance snapshot: %w", err)
	}
	return nil
}

// FindLatestByTeacher returns the most recent stored snapshot for a teacher
// by period descending, or sql.ErrNoRows when none exists.
func (r *PerformanceRepository) FindLatestByTeacher(ctx context.Context, teacherID string) (*models.PerformanceSnapshot, error) {
	query := fmt.Sprintf("SELECT %s FROM performance_snapshots WHERE teacher_id = $1 ORDER BY period DESC LIMIT 1", snapshotColumns)
	var snapshot models.PerformanceSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, teacherID); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// FindByTeacherAndPeriod fetches one snapshot by its natural key.
func (r *PerformanceRepository) FindByTeacherAndPeriod(ctx context.Context, teacherID, period string) (*models.PerformanceSnapshot, error) {
	query := fmt.Sprintf("SELECT %s FROM performance_snapshots WHERE teacher_id = $1 AND period = $2", snapshotColumns)
	var snapshot models.PerformanceSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, teacherID, period); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
