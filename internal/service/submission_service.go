package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aulago/classroom-api/internal/models"
	"github.com/aulago/classroom-api/internal/repository"
	appErrors "github.com/aulago/classroom-api/pkg/errors"
)

type submissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error)
	SetGrade(ctx context.Context, submission *models.Submission) error
}

type submissionAssignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

// uploadStore is the binary file collaborator; the service only references
// files by metadata and releases staged files on failed submissions.
type uploadStore interface {
	Delete(storagePath string) error
}

// downloadSigner mints signed download tokens for stored submission files.
type downloadSigner interface {
	Generate(submissionID, relPath string) (string, time.Time, error)
}

// SubmitRequest represents payload for creating a submission. Files are
// staged by the transport layer and passed in as metadata.
type SubmitRequest struct {
	AssignmentID string  `json:"assignment_id" validate:"required"`
	Comment      *string `json:"comment" validate:"omitempty,max=500"`
}

// GradeRequest represents payload for grading a submission.
type GradeRequest struct {
	Grade    float64 `json:"grade" validate:"min=0"`
	Feedback *string `json:"feedback" validate:"omitempty,max=1000"`
}

// FileDownload describes a signed download grant for one submission file.
type FileDownload struct {
	Filename  string    `json:"filename"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SubmissionService governs the submission lifecycle: creation with
// duplicate prevention and lateness classification, and grading.
type SubmissionService struct {
	repo        submissionRepository
	assignments submissionAssignmentReader
	uploads     uploadStore
	signer      downloadSigner
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(repo submissionRepository, assignments submissionAssignmentReader, uploads uploadStore, signer downloadSigner, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		repo:        repo,
		assignments: assignments,
		uploads:     uploads,
		signer:      signer,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// classifySubmission fixes the lateness status at creation time. It is
// never re-evaluated afterwards.
func classifySubmission(submittedAt, dueDate time.Time) models.SubmissionStatus {
	if submittedAt.After(dueDate) {
		return models.StatusLate
	}
	return models.StatusSubmitted
}

// Submit creates a submission for studentID against an assignment. The
// provided files were already staged in the upload store; on any failure
// they are released before the error propagates.
func (s *SubmissionService) Submit(ctx context.Context, studentID string, req SubmitRequest, files []models.SubmissionFile) (*models.Submission, error) {
	submission, err := s.submit(ctx, studentID, req, files)
	if err != nil {
		s.releaseFiles(files)
		return nil, err
	}
	return submission, nil
}

func (s *SubmissionService) submit(ctx context.Context, studentID string, req SubmitRequest, files []models.SubmissionFile) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	assignment, err := s.assignments.FindByID(ctx, req.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	now := s.now()
	if now.After(assignment.DueDate) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignment past due")
	}

	if _, err := s.repo.FindByAssignmentAndStudent(ctx, assignment.ID, studentID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate submission")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing submission")
	}

	submission := &models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    studentID,
		Files:        models.SubmissionFiles(files),
		Comment:      normalizeOptional(req.Comment),
		SubmittedAt:  now,
		Status:       classifySubmission(now, assignment.DueDate),
	}

	if err := s.repo.Create(ctx, submission); err != nil {
		// The unique index catches duplicates racing past the pre-check.
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate submission")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	return submission, nil
}

// Grade assigns a grade to a submission. Only the teacher owning the
// parent assignment may grade it.
func (s *SubmissionService) Grade(ctx context.Context, submissionID, graderID string, req GradeRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	submission, err := s.findByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	assignment, err := s.assignments.FindByID(ctx, submission.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if !canModifyAssignment(assignment, graderID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not own this assignment")
	}

	if req.Grade < 0 || req.Grade > float64(assignment.MaxPoints) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grade must be between 0 and %d", assignment.MaxPoints))
	}

	now := s.now()
	grade := req.Grade
	submission.Grade = &grade
	submission.Feedback = normalizeOptional(req.Feedback)
	submission.GradedAt = &now
	submission.Status = models.StatusGraded

	if err := s.repo.SetGrade(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}

	// Cached performance payloads for this teacher are now stale.
	if s.cache.Enabled() {
		_ = s.cache.Invalidate(ctx, fmt.Sprintf("performance:%s:*", assignment.TeacherID))
	}
	return submission, nil
}

// ListForStudent returns studentID's submissions, newest first.
func (s *SubmissionService) ListForStudent(ctx context.Context, studentID string) ([]models.Submission, error) {
	submissions, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// ListForAssignment returns every submission for an assignment. Only the
// owning teacher may list them.
func (s *SubmissionService) ListForAssignment(ctx context.Context, assignmentID, requesterID string) ([]models.Submission, error) {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if !canModifyAssignment(assignment, requesterID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not own this assignment")
	}

	submissions, err := s.repo.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// GetByID returns a submission visible to the requester: the submitting
// student, the assignment's teacher, or a director.
func (s *SubmissionService) GetByID(ctx context.Context, id, requesterID string, requesterRole models.UserRole) (*models.Submission, error) {
	submission, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, submission, requesterID, requesterRole); err != nil {
		return nil, err
	}
	return submission, nil
}

// FileDownloadURL mints a signed download token for one of the
// submission's stored files.
func (s *SubmissionService) FileDownloadURL(ctx context.Context, submissionID string, fileIndex int, requesterID string, requesterRole models.UserRole) (*FileDownload, error) {
	submission, err := s.findByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, submission, requesterID, requesterRole); err != nil {
		return nil, err
	}
	if fileIndex < 0 || fileIndex >= len(submission.Files) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission file not found")
	}

	file := submission.Files[fileIndex]
	token, expiresAt, err := s.signer.Generate(submission.ID, file.StoragePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return &FileDownload{Filename: file.Filename, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *SubmissionService) findByID(ctx context.Context, id string) (*models.Submission, error) {
	submission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

func (s *SubmissionService) authorizeRead(ctx context.Context, submission *models.Submission, requesterID string, requesterRole models.UserRole) error {
	if requesterRole == models.RoleDirector || submission.StudentID == requesterID {
		return nil
	}
	assignment, err := s.assignments.FindByID(ctx, submission.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if !canModifyAssignment(assignment, requesterID) {
		return appErrors.Clone(appErrors.ErrForbidden, "you cannot view this submission")
	}
	return nil
}

func (s *SubmissionService) releaseFiles(files []models.SubmissionFile) {
	if s.uploads == nil {
		return
	}
	for _, file := range files {
		if err := s.uploads.Delete(file.StoragePath); err != nil {
			s.logger.Warn("failed to release staged file",
				zap.String("storage_path", file.StoragePath),
				zap.Error(err),
			)
		}
	}
}
