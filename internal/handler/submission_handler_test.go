package handler

import (
	"bytes"
	"context"
	"database/sql"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aulago/classroom-api/internal/middleware"
	"github.com/aulago/classroom-api/internal/models"
	"github.com/aulago/classroom-api/internal/service"
	"github.com/aulago/classroom-api/pkg/storage"
)

type submissionRepoStub struct {
	created []*models.Submission
}

func (s *submissionRepoStub) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = "created"
	}
	cp := *submission
	s.created = append(s.created, &cp)
	return nil
}

func (s *submissionRepoStub) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	return nil, sql.ErrNoRows
}

func (s *submissionRepoStub) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	return nil, sql.ErrNoRows
}

func (s *submissionRepoStub) ListByStudent(ctx context.Context, studentID string) ([]models.Submission, error) {
	return nil, nil
}

func (s *submissionRepoStub) ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error) {
	return nil, nil
}

func (s *submissionRepoStub) SetGrade(ctx context.Context, submission *models.Submission) error {
	return nil
}

type assignmentReaderStub struct{}

func (s *assignmentReaderStub) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	return &models.Assignment{ID: id, TeacherID: "teacher-1", DueDate: time.Now().Add(24 * time.Hour), MaxPoints: 10}, nil
}

type downloadSignerStub struct{}

func (s *downloadSignerStub) Generate(submissionID, relPath string) (string, time.Time, error) {
	return "token", time.Now().Add(time.Hour), nil
}

func newSubmissionTestHandler(t *testing.T, repo *submissionRepoStub) *SubmissionHandler {
	t.Helper()
	uploads, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := service.NewSubmissionService(repo, &assignmentReaderStub{}, uploads, &downloadSignerStub{}, nil, nil, zap.NewNop())
	return NewSubmissionHandler(svc, uploads, 1024*1024, 5)
}

func performSubmit(t *testing.T, h *SubmissionHandler, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	req, _ := http.NewRequest(http.MethodPost, "/assignments/a1/submissions", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	h.Submit(c)
	return w
}

func TestSubmissionHandlerSubmitWithFile(t *testing.T) {
	repo := &submissionRepoStub{}
	h := newSubmissionTestHandler(t, repo)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("files", "essay.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("essay contents"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := performSubmit(t, h, body, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.created, 1)
	require.Len(t, repo.created[0].Files, 1)
	assert.Equal(t, "essay.pdf", repo.created[0].Files[0].Filename)
}

func TestSubmissionHandlerSubmitWithoutFiles(t *testing.T) {
	repo := &submissionRepoStub{}
	h := newSubmissionTestHandler(t, repo)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("comment", "Presented in class, nothing to attach"))
	require.NoError(t, mw.Close())

	w := performSubmit(t, h, body, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.created, 1)
	assert.Empty(t, repo.created[0].Files)
	require.NotNil(t, repo.created[0].Comment)
	assert.Equal(t, "Presented in class, nothing to attach", *repo.created[0].Comment)
}

func TestSubmissionHandlerSubmitTooManyFiles(t *testing.T) {
	repo := &submissionRepoStub{}
	h := newSubmissionTestHandler(t, repo)
	h.maxFiles = 1

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	w := performSubmit(t, h, body, mw.FormDataContentType())
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, repo.created)
}
