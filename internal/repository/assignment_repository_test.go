package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aulago/classroom-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func assignmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "description", "instructions", "teacher_id", "due_date", "max_points", "is_published", "created_at", "updated_at"})
}

func TestAssignmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec("INSERT INTO assignments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	assignment := &models.Assignment{
		Title:       "Algebra homework",
		Description: "Solve the exercises",
		TeacherID:   "t1",
		DueDate:     time.Now().Add(48 * time.Hour),
		MaxPoints:   10,
		IsPublished: true,
	}
	require.NoError(t, repo.Create(context.Background(), assignment))
	assert.NotEmpty(t, assignment.ID)
	assert.False(t, assignment.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryListPublished(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	now := time.Now()
	rows := assignmentRows().
		AddRow("a1", "First", "Description", nil, "t1", now.Add(24*time.Hour), 10, true, now, now).
		AddRow("a2", "Second", "Description", nil, "t2", now.Add(48*time.Hour), 20, true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, description, instructions, teacher_id, due_date, max_points, is_published, created_at, updated_at FROM assignments WHERE is_published = TRUE ORDER BY due_date ASC")).
		WillReturnRows(rows)

	assignments, err := repo.ListPublished(context.Background())
	require.NoError(t, err)
	assert.Len(t, assignments, 2)
	assert.Equal(t, "a1", assignments[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryListByTeacherCreatedBetween(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	now := time.Now()
	start := now.Add(-30 * 24 * time.Hour)
	rows := assignmentRows().
		AddRow("a1", "Windowed", "Description", nil, "t1", now, 10, true, now.Add(-time.Hour), now)
	mock.ExpectQuery("SELECT .+ FROM assignments WHERE teacher_id = \\$1 AND created_at >= \\$2 AND created_at < \\$3").
		WithArgs("t1", start, now).
		WillReturnRows(rows)

	assignments, err := repo.ListByTeacherCreatedBetween(context.Background(), "t1", start, now)
	require.NoError(t, err)
	assert.Len(t, assignments, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryCountByTeacher(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM assignments WHERE teacher_id = $1")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := repo.CountByTeacher(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryDeleteCascade(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submissions WHERE assignment_id = $1")).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM assignments WHERE id = $1")).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteCascade(context.Background(), "a1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryDeleteCascadeRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submissions WHERE assignment_id = $1")).
		WithArgs("a1").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	require.Error(t, repo.DeleteCascade(context.Background(), "a1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
