package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aulago/classroom-api/internal/models"
)

func snapshotRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "teacher_id", "period", "assignments_created", "total_submissions", "graded_submissions", "grading_rate", "average_grading_time_hours", "average_grade", "feedback_quality_score", "created_at", "updated_at"})
}

func TestPerformanceRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPerformanceRepository(db)

	mock.ExpectExec("INSERT INTO performance_snapshots .+ ON CONFLICT \\(teacher_id, period\\) DO UPDATE SET").
		WillReturnResult(sqlmock.NewResult(1, 1))

	snapshot := &models.PerformanceSnapshot{
		TeacherID:   "t1",
		Period:      "current",
		GradingRate: 75,
	}
	require.NoError(t, repo.Upsert(context.Background(), snapshot))
	assert.NotEmpty(t, snapshot.ID)
	assert.False(t, snapshot.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceRepositoryFindLatestByTeacher(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPerformanceRepository(db)

	now := time.Now()
	rows := snapshotRows().
		AddRow("p1", "t1", "2024-03", 3, 10, 8, 80.0, 12.5, 7.8, 3.5, now, now)
	mock.ExpectQuery("SELECT .+ FROM performance_snapshots WHERE teacher_id = \\$1 ORDER BY period DESC LIMIT 1").
		WithArgs("t1").
		WillReturnRows(rows)

	snapshot, err := repo.FindLatestByTeacher(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", snapshot.Period)
	assert.Equal(t, 80.0, snapshot.GradingRate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceRepositoryFindLatestByTeacherNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPerformanceRepository(db)

	mock.ExpectQuery("SELECT .+ FROM performance_snapshots WHERE teacher_id = \\$1").
		WithArgs("t1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindLatestByTeacher(context.Background(), "t1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceRepositoryFindByTeacherAndPeriod(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPerformanceRepository(db)

	now := time.Now()
	rows := snapshotRows().
		AddRow("p1", "t1", "current", 1, 4, 2, 50.0, 3.0, 7.75, 3.5, now, now)
	mock.ExpectQuery("SELECT .+ FROM performance_snapshots WHERE teacher_id = \\$1 AND period = \\$2").
		WithArgs("t1", "current").
		WillReturnRows(rows)

	snapshot, err := repo.FindByTeacherAndPeriod(context.Background(), "t1", "current")
	require.NoError(t, err)
	assert.Equal(t, 50.0, snapshot.GradingRate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
