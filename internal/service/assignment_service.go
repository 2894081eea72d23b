package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aulago/classroom-api/internal/models"
	appErrors "github.com/aulago/classroom-api/pkg/errors"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListPublished(ctx context.Context) ([]models.Assignment, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Assignment, error)
	Update(ctx context.Context, assignment *models.Assignment) error
	DeleteCascade(ctx context.Context, id string) error
}

type assignmentSubmissionReader interface {
	FindByStudentAndAssignments(ctx context.Context, studentID string, assignmentIDs []string) (map[string]models.Submission, error)
	StatsByAssignments(ctx context.Context, assignmentIDs []string) (map[string]models.SubmissionStats, error)
}

// canModifyAssignment is the single ownership predicate gating assignment
// mutation and submission grading.
func canModifyAssignment(assignment *models.Assignment, requesterID string) bool {
	return assignment != nil && assignment.TeacherID == requesterID
}

// CreateAssignmentRequest represents payload for creating assignments.
type CreateAssignmentRequest struct {
	Title        string    `json:"title" validate:"required,min=5,max=200"`
	Description  string    `json:"description" validate:"required,min=10"`
	Instructions *string   `json:"instructions" validate:"omitempty"`
	DueDate      time.Time `json:"due_date" validate:"required"`
	MaxPoints    *int      `json:"max_points" validate:"omitempty,min=1,max=100"`
}

// UpdateAssignmentRequest represents a partial assignment patch.
type UpdateAssignmentRequest struct {
	Title        *string    `json:"title" validate:"omitempty,min=5,max=200"`
	Description  *string    `json:"description" validate:"omitempty,min=10"`
	Instructions *string    `json:"instructions" validate:"omitempty"`
	DueDate      *time.Time `json:"due_date"`
	MaxPoints    *int       `json:"max_points" validate:"omitempty,min=1,max=100"`
	IsPublished  *bool      `json:"is_published"`
}

// AssignmentService governs the assignment lifecycle: creation,
// ownership-gated mutation, and cascade deletion.
type AssignmentService struct {
	repo        assignmentRepository
	submissions assignmentSubmissionReader
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(repo assignmentRepository, submissions assignmentSubmissionReader, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, submissions: submissions, validator: validate, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Create persists a new published assignment owned by ownerID.
func (s *AssignmentService) Create(ctx context.Context, ownerID string, req CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	// Boundary validation already rejects past dates; re-check defensively.
	if !req.DueDate.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "due date must be in the future")
	}

	maxPoints := 10
	if req.MaxPoints != nil {
		maxPoints = *req.MaxPoints
	}

	assignment := &models.Assignment{
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		Instructions: normalizeOptional(req.Instructions),
		TeacherID:    ownerID,
		DueDate:      req.DueDate.UTC(),
		MaxPoints:    maxPoints,
		IsPublished:  true,
	}

	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return assignment, nil
}

// Get returns an assignment by id.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

// ListVisible returns all published assignments ordered by due date
// ascending. Student requesters additionally see whether they already
// submitted, and their submission when present.
func (s *AssignmentService) ListVisible(ctx context.Context, requesterRole models.UserRole, requesterID string) ([]models.VisibleAssignment, error) {
	assignments, err := s.repo.ListPublished(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}

	visible := make([]models.VisibleAssignment, 0, len(assignments))

	if requesterRole != models.RoleStudent {
		for _, assignment := range assignments {
			visible = append(visible, models.VisibleAssignment{Assignment: assignment})
		}
		return visible, nil
	}

	ids := make([]string, len(assignments))
	for i, assignment := range assignments {
		ids[i] = assignment.ID
	}
	byAssignment, err := s.submissions.FindByStudentAndAssignments(ctx, requesterID, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission state")
	}

	for _, assignment := range assignments {
		entry := models.VisibleAssignment{Assignment: assignment}
		submitted := false
		if submission, ok := byAssignment[assignment.ID]; ok {
			submitted = true
			sub := submission
			entry.Submission = &sub
		}
		entry.Submitted = &submitted
		visible = append(visible, entry)
	}
	return visible, nil
}

// ListForOwner returns ownerID's assignments, newest first, each annotated
// with submission stats.
func (s *AssignmentService) ListForOwner(ctx context.Context, ownerID string) ([]models.OwnedAssignment, error) {
	assignments, err := s.repo.ListByTeacher(ctx, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher assignments")
	}

	ids := make([]string, len(assignments))
	for i, assignment := range assignments {
		ids[i] = assignment.ID
	}
	stats, err := s.submissions.StatsByAssignments(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission stats")
	}

	owned := make([]models.OwnedAssignment, 0, len(assignments))
	for _, assignment := range assignments {
		owned = append(owned, models.OwnedAssignment{
			Assignment: assignment,
			Stats:      stats[assignment.ID],
		})
	}
	return owned, nil
}

// Update applies a patch to an assignment owned by requesterID.
func (s *AssignmentService) Update(ctx context.Context, id, requesterID string, req UpdateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	assignment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canModifyAssignment(assignment, requesterID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not own this assignment")
	}

	if req.Title != nil {
		assignment.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		assignment.Description = strings.TrimSpace(*req.Description)
	}
	if req.Instructions != nil {
		assignment.Instructions = normalizeOptional(req.Instructions)
	}
	if req.DueDate != nil {
		if !req.DueDate.After(s.now()) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "due date must be in the future")
		}
		assignment.DueDate = req.DueDate.UTC()
	}
	if req.MaxPoints != nil {
		assignment.MaxPoints = *req.MaxPoints
	}
	if req.IsPublished != nil {
		assignment.IsPublished = *req.IsPublished
	}

	if err := s.repo.Update(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}
	return assignment, nil
}

// Delete removes an assignment owned by requesterID together with all of
// its submissions.
func (s *AssignmentService) Delete(ctx context.Context, id, requesterID string) error {
	assignment, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canModifyAssignment(assignment, requesterID) {
		return appErrors.Clone(appErrors.ErrForbidden, "you do not own this assignment")
	}

	if err := s.repo.DeleteCascade(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	s.logger.Info("assignment deleted",
		zap.String("assignment_id", id),
		zap.String("teacher_id", requesterID),
	)
	return nil
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
