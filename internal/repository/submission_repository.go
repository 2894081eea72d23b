package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aulago/classroom-api/internal/models"
)

const submissionColumns = "id, assignment_id, student_id, files, comment, submitted_at, grade, feedback, graded_at, status"

// SubmissionRepository manages persistence for submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs a SubmissionRepository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// IsUniqueViolation reports whether the error is a Postgres unique
// constraint violation, used to surface duplicate submissions racing past
// the application-level pre-check.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Create inserts a new submission record. The unique index on
// (assignment_id, student_id) is the final authority on duplicates.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}

	const query = `INSERT INTO submissions (id, assignment_id, student_id, files, comment, submitted_at, grade, feedback, graded_at, status)
		VALUES (:id, :assignment_id, :student_id, :files, :comment, :submitted_at, :grade, :feedback, :graded_at, :status)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// FindByID fetches a submission by ID.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := fmt.Sprintf("SELECT %s FROM submissions WHERE id = $1", submissionColumns)
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// FindByAssignmentAndStudent fetches the unique submission for a pair, if any.
func (r *SubmissionRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	query := fmt.Sprintf("SELECT %s FROM submissions WHERE assignment_id = $1 AND student_id = $2", submissionColumns)
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListByStudent returns a student's submissions, newest first.
func (r *SubmissionRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Submission, error) {
	query := fmt.Sprintf("SELECT %s FROM submissions WHERE student_id = $1 ORDER BY submitted_at DESC", submissionColumns)
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, studentID); err != nil {
		return nil, fmt.Errorf("list student submissions: %w", err)
	}
	return submissions, nil
}

// ListByAssignment returns every submission for one assignment.
func (r *SubmissionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error) {
	query := fmt.Sprintf("SELECT %s FROM submissions WHERE assignment_id = $1 ORDER BY submitted_at ASC", submissionColumns)
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list assignment submissions: %w", err)
	}
	return submissions, nil
}

// ListByAssignmentIDs returns all submissions referencing any of the given
// assignments. Submissions are not bounded by any time window; late arrivals
// still attribute to their assignment.
func (r *SubmissionRepository) ListByAssignmentIDs(ctx context.Context, assignmentIDs []string) ([]models.Submission, error) {
	if len(assignmentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM submissions WHERE assignment_id IN (?)", submissionColumns), assignmentIDs)
	if err != nil {
		return nil, fmt.Errorf("build submissions query: %w", err)
	}
	query = r.db.Rebind(query)
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, fmt.Errorf("list submissions by assignments: %w", err)
	}
	return submissions, nil
}

// FindByStudentAndAssignments maps assignment id to the student's submission
// for annotation of visible assignment listings.
func (r *SubmissionRepository) FindByStudentAndAssignments(ctx context.Context, studentID string, assignmentIDs []string) (map[string]models.Submission, error) {
	if len(assignmentIDs) == 0 {
		return map[string]models.Submission{}, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM submissions WHERE student_id = ? AND assignment_id IN (?)", submissionColumns), studentID, assignmentIDs)
	if err != nil {
		return nil, fmt.Errorf("build student submissions query: %w", err)
	}
	query = r.db.Rebind(query)
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, fmt.Errorf("map student submissions: %w", err)
	}
	byAssignment := make(map[string]models.Submission, len(submissions))
	for _, sub := range submissions {
		byAssignment[sub.AssignmentID] = sub
	}
	return byAssignment, nil
}

// StatsByAssignments returns per-assignment submission counters for a
// teacher's assignment listing.
func (r *SubmissionRepository) StatsByAssignments(ctx context.Context, assignmentIDs []string) (map[string]models.SubmissionStats, error) {
	if len(assignmentIDs) == 0 {
		return map[string]models.SubmissionStats{}, nil
	}
	query, args, err := sqlx.In(`SELECT assignment_id, COUNT(*) AS total, COUNT(grade) AS graded FROM submissions WHERE assignment_id IN (?) GROUP BY assignment_id`, assignmentIDs)
	if err != nil {
		return nil, fmt.Errorf("build stats query: %w", err)
	}
	query = r.db.Rebind(query)

	rows := []struct {
		AssignmentID string `db:"assignment_id"`
		Total        int    `db:"total"`
		Graded       int    `db:"graded"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("collect submission stats: %w", err)
	}

	stats := make(map[string]models.SubmissionStats, len(rows))
	for _, row := range rows {
		stats[row.AssignmentID] = models.SubmissionStats{
			Total:   row.Total,
			Graded:  row.Graded,
			Pending: row.Total - row.Graded,
		}
	}
	return stats, nil
}

// ListReferencedFilePaths collects every storage path referenced by any
// submission, used by the upload janitor to spare live files.
func (r *SubmissionRepository) ListReferencedFilePaths(ctx context.Context) (map[string]struct{}, error) {
	var fileSets []models.SubmissionFiles
	if err := r.db.SelectContext(ctx, &fileSets, `SELECT files FROM submissions`); err != nil {
		return nil, fmt.Errorf("list referenced files: %w", err)
	}
	paths := make(map[string]struct{})
	for _, files := range fileSets {
		for _, file := range files {
			paths[file.StoragePath] = struct{}{}
		}
	}
	return paths, nil
}

// CountByTeacher returns the lifetime submission count across all of a
// teacher's assignments.
func (r *SubmissionRepository) CountByTeacher(ctx context.Context, teacherID string) (int, error) {
	const query = `SELECT COUNT(*) FROM submissions s JOIN assignments a ON a.id = s.assignment_id WHERE a.teacher_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, teacherID); err != nil {
		return 0, fmt.Errorf("count teacher submissions: %w", err)
	}
	return count, nil
}

// SetGrade persists the grading fields of a submission.
func (r *SubmissionRepository) SetGrade(ctx context.Context, submission *models.Submission) error {
	const query = `UPDATE submissions SET grade = :grade, feedback = :feedback, graded_at = :graded_at, status = :status WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	return nil
}
