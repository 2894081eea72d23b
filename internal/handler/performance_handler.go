package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aulago/classroom-api/internal/models"
	"github.com/aulago/classroom-api/internal/service"
	appErrors "github.com/aulago/classroom-api/pkg/errors"
	"github.com/aulago/classroom-api/pkg/response"
)

// PerformanceHandler handles teacher performance endpoints.
type PerformanceHandler struct {
	service *service.PerformanceService
}

// NewPerformanceHandler constructs a performance handler.
func NewPerformanceHandler(svc *service.PerformanceService) *PerformanceHandler {
	return &PerformanceHandler{service: svc}
}

// GetTeacher godoc
// @Summary Get a teacher's performance report
// @Description Teachers may query their own report; directors may query any teacher
// @Tags Performance
// @Produce json
// @Param id path string true "Teacher ID"
// @Param period query string false "current or YYYY-MM"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /performance/teachers/{id} [get]
func (h *PerformanceHandler) GetTeacher(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	teacherID := c.Param("id")
	if claims.Role == models.RoleTeacher && claims.UserID != teacherID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "teachers may only view their own performance"))
		return
	}

	report, err := h.service.GetTeacherPerformance(c.Request.Context(), teacherID, c.Query("period"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// Overview godoc
// @Summary List all teachers with lifetime totals and latest snapshots
// @Tags Performance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /performance/teachers [get]
func (h *PerformanceHandler) Overview(c *gin.Context) {
	overviews, err := h.service.ListTeacherOverviews(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overviews)
}

// Recompute godoc
// @Summary Refresh performance snapshots for all active teachers
// @Tags Performance
// @Produce json
// @Param period query string false "current or YYYY-MM"
// @Success 200 {object} response.Envelope
// @Router /performance/recompute [post]
func (h *PerformanceHandler) Recompute(c *gin.Context) {
	computed, err := h.service.ComputeAllTeachers(c.Request.Context(), c.Query("period"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"computed": computed})
}

// Export godoc
// @Summary Export a teacher's performance report
// @Tags Performance
// @Produce octet-stream
// @Param id path string true "Teacher ID"
// @Param period query string false "current or YYYY-MM"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /performance/teachers/{id}/export [get]
func (h *PerformanceHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	teacherID := c.Param("id")
	if claims.Role == models.RoleTeacher && claims.UserID != teacherID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "teachers may only export their own performance"))
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportCSV)))
	result, err := h.service.Export(c.Request.Context(), teacherID, c.Query("period"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}
