package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aulago/classroom-api/internal/models"
	appErrors "github.com/aulago/classroom-api/pkg/errors"
)

type mockAssignmentRepo struct {
	items     map[string]*models.Assignment
	published []models.Assignment
	byTeacher []models.Assignment
	deleted   []string
}

func (m *mockAssignmentRepo) Create(ctx context.Context, assignment *models.Assignment) error {
	if m.items == nil {
		m.items = make(map[string]*models.Assignment)
	}
	if assignment.ID == "" {
		assignment.ID = "generated"
	}
	cp := *assignment
	m.items[assignment.ID] = &cp
	return nil
}

func (m *mockAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if assignment, ok := m.items[id]; ok {
		cp := *assignment
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) ListPublished(ctx context.Context) ([]models.Assignment, error) {
	return m.published, nil
}

func (m *mockAssignmentRepo) ListByTeacher(ctx context.Context, teacherID string) ([]models.Assignment, error) {
	return m.byTeacher, nil
}

func (m *mockAssignmentRepo) Update(ctx context.Context, assignment *models.Assignment) error {
	cp := *assignment
	m.items[assignment.ID] = &cp
	return nil
}

func (m *mockAssignmentRepo) DeleteCascade(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.items, id)
	return nil
}

type mockSubmissionReader struct {
	byAssignment map[string]models.Submission
	stats        map[string]models.SubmissionStats
}

func (m *mockSubmissionReader) FindByStudentAndAssignments(ctx context.Context, studentID string, assignmentIDs []string) (map[string]models.Submission, error) {
	return m.byAssignment, nil
}

func (m *mockSubmissionReader) StatsByAssignments(ctx context.Context, assignmentIDs []string) (map[string]models.SubmissionStats, error) {
	return m.stats, nil
}

func newAssignmentService(repo *mockAssignmentRepo, subs *mockSubmissionReader, now time.Time) *AssignmentService {
	svc := NewAssignmentService(repo, subs, validator.New(), zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc
}

func TestAssignmentServiceCreateDefaults(t *testing.T) {
	repo := &mockAssignmentRepo{}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newAssignmentService(repo, &mockSubmissionReader{}, now)

	assignment, err := svc.Create(context.Background(), "teacher-1", CreateAssignmentRequest{
		Title:       "Algebra homework",
		Description: "Solve the attached exercises",
		DueDate:     now.Add(72 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 10, assignment.MaxPoints)
	assert.True(t, assignment.IsPublished)
	assert.Equal(t, "teacher-1", assignment.TeacherID)
	assert.Len(t, repo.items, 1)
}

func TestAssignmentServiceCreatePastDueDate(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	svc := newAssignmentService(&mockAssignmentRepo{}, &mockSubmissionReader{}, now)

	_, err := svc.Create(context.Background(), "teacher-1", CreateAssignmentRequest{
		Title:       "Algebra homework",
		Description: "Solve the attached exercises",
		DueDate:     now.Add(-time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceListVisibleAnnotatesStudents(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockAssignmentRepo{
		published: []models.Assignment{
			{ID: "a1", Title: "First"},
			{ID: "a2", Title: "Second"},
		},
	}
	subs := &mockSubmissionReader{
		byAssignment: map[string]models.Submission{
			"a1": {ID: "s1", AssignmentID: "a1", StudentID: "student-1"},
		},
	}
	svc := newAssignmentService(repo, subs, now)

	visible, err := svc.ListVisible(context.Background(), models.RoleStudent, "student-1")
	require.NoError(t, err)
	require.Len(t, visible, 2)

	require.NotNil(t, visible[0].Submitted)
	assert.True(t, *visible[0].Submitted)
	require.NotNil(t, visible[0].Submission)
	assert.Equal(t, "s1", visible[0].Submission.ID)

	require.NotNil(t, visible[1].Submitted)
	assert.False(t, *visible[1].Submitted)
	assert.Nil(t, visible[1].Submission)
}

func TestAssignmentServiceListVisibleTeachersUnannotated(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockAssignmentRepo{published: []models.Assignment{{ID: "a1"}}}
	svc := newAssignmentService(repo, &mockSubmissionReader{}, now)

	visible, err := svc.ListVisible(context.Background(), models.RoleTeacher, "teacher-1")
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Nil(t, visible[0].Submitted)
}

func TestAssignmentServiceListForOwnerStats(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockAssignmentRepo{byTeacher: []models.Assignment{{ID: "a1"}}}
	subs := &mockSubmissionReader{
		stats: map[string]models.SubmissionStats{
			"a1": {Total: 4, Graded: 3, Pending: 1},
		},
	}
	svc := newAssignmentService(repo, subs, now)

	owned, err := svc.ListForOwner(context.Background(), "teacher-1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, 4, owned[0].Stats.Total)
	assert.Equal(t, 1, owned[0].Stats.Pending)
}

func TestAssignmentServiceUpdateForbiddenForNonOwner(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockAssignmentRepo{
		items: map[string]*models.Assignment{
			"a1": {ID: "a1", TeacherID: "teacher-1"},
		},
	}
	svc := newAssignmentService(repo, &mockSubmissionReader{}, now)

	title := "Updated title"
	_, err := svc.Update(context.Background(), "a1", "teacher-2", UpdateAssignmentRequest{Title: &title})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceUpdatePatchesFields(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockAssignmentRepo{
		items: map[string]*models.Assignment{
			"a1": {ID: "a1", TeacherID: "teacher-1", Title: "Old title", MaxPoints: 10},
		},
	}
	svc := newAssignmentService(repo, &mockSubmissionReader{}, now)

	title := "Fresh title"
	points := 20
	updated, err := svc.Update(context.Background(), "a1", "teacher-1", UpdateAssignmentRequest{
		Title:     &title,
		MaxPoints: &points,
	})
	require.NoError(t, err)
	assert.Equal(t, "Fresh title", updated.Title)
	assert.Equal(t, 20, updated.MaxPoints)
}

func TestAssignmentServiceDeleteCascades(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockAssignmentRepo{
		items: map[string]*models.Assignment{
			"a1": {ID: "a1", TeacherID: "teacher-1"},
		},
	}
	svc := newAssignmentService(repo, &mockSubmissionReader{}, now)

	require.NoError(t, svc.Delete(context.Background(), "a1", "teacher-1"))
	assert.Equal(t, []string{"a1"}, repo.deleted)
}

func TestAssignmentServiceDeleteNotFound(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	svc := newAssignmentService(&mockAssignmentRepo{}, &mockSubmissionReader{}, now)

	err := svc.Delete(context.Background(), "missing", "teacher-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
