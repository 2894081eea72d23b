package handler

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aulago/classroom-api/internal/models"
	"github.com/aulago/classroom-api/internal/service"
	appErrors "github.com/aulago/classroom-api/pkg/errors"
	"github.com/aulago/classroom-api/pkg/response"
	"github.com/aulago/classroom-api/pkg/storage"
)

// SubmissionHandler handles submission endpoints, including multipart
// upload staging.
type SubmissionHandler struct {
	service     *service.SubmissionService
	uploads     *storage.LocalStorage
	maxFileSize int64
	maxFiles    int
}

// NewSubmissionHandler constructs a submission handler.
func NewSubmissionHandler(svc *service.SubmissionService, uploads *storage.LocalStorage, maxFileSize int64, maxFiles int) *SubmissionHandler {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &SubmissionHandler{service: svc, uploads: uploads, maxFileSize: maxFileSize, maxFiles: maxFiles}
}

// Submit godoc
// @Summary Submit work for an assignment
// @Description Multipart upload with optional files and an optional comment
// @Tags Submissions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Assignment ID"
// @Param files formData file false "Submission files"
// @Param comment formData string false "Comment"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id}/submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart payload"))
		return
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) > h.maxFiles {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d files allowed", h.maxFiles)))
		return
	}

	files, err := h.stageFiles(fileHeaders)
	if err != nil {
		response.Error(c, err)
		return
	}

	req := service.SubmitRequest{AssignmentID: c.Param("id")}
	if comment := c.PostForm("comment"); comment != "" {
		req.Comment = &comment
	}

	submission, err := h.service.Submit(c.Request.Context(), claims.UserID, req, files)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// stageFiles copies the multipart parts into the upload store. On any
// failure the already staged files are removed before returning.
func (h *SubmissionHandler) stageFiles(headers []*multipart.FileHeader) ([]models.SubmissionFile, error) {
	staged := make([]models.SubmissionFile, 0, len(headers))
	rollback := func() {
		for _, file := range staged {
			_ = h.uploads.Delete(file.StoragePath)
		}
	}

	for _, header := range headers {
		if h.maxFileSize > 0 && header.Size > h.maxFileSize {
			rollback()
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file %q exceeds the size limit", header.Filename))
		}

		part, err := header.Open()
		if err != nil {
			rollback()
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read uploaded file")
		}

		name := filepath.Base(header.Filename)
		storagePath := filepath.Join("submissions", uuid.NewString()+"_"+name)
		if _, err := h.uploads.SaveStream(storagePath, part); err != nil {
			part.Close()
			rollback()
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store uploaded file")
		}
		part.Close()

		staged = append(staged, models.SubmissionFile{
			Filename:    name,
			StoragePath: storagePath,
			Size:        header.Size,
			MimeType:    header.Header.Get("Content-Type"),
		})
	}
	return staged, nil
}

// ListMine godoc
// @Summary List own submissions
// @Tags Submissions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /submissions/mine [get]
func (h *SubmissionHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	submissions, err := h.service.ListForStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions)
}

// ListForAssignment godoc
// @Summary List submissions for an owned assignment
// @Tags Submissions
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/submissions [get]
func (h *SubmissionHandler) ListForAssignment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	submissions, err := h.service.ListForAssignment(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions)
}

// Get godoc
// @Summary Get submission by id
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	submission, err := h.service.GetByID(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission)
}

// Grade godoc
// @Summary Grade a submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body service.GradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /submissions/{id}/grade [put]
func (h *SubmissionHandler) Grade(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	submission, err := h.service.Grade(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission)
}

// FileURL godoc
// @Summary Get a signed download token for a submission file
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Param index path int true "File index"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/files/{index}/url [get]
func (h *SubmissionHandler) FileURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file index must be a number"))
		return
	}

	download, err := h.service.FileDownloadURL(c.Request.Context(), c.Param("id"), index, claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, download)
}
