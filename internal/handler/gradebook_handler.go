package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/middleware"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/middleware/tenant"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type gradebookService interface {
	StudentPerformance(ctx context.Context, req dto.StudentPerformanceRequest) (*dto.StudentPerformanceResponse, bool, error)
	StudentOverview(ctx context.Context, tenantID, studentID, termID string) (*dto.StudentOverviewResponse, bool, error)
	ClassGradebook(ctx context.Context, tenantID, classID, subjectID, termID string) (*dto.ClassGradebookResponse, bool, error)
	Compute(ctx context.Context, tenantID string, req dto.ComputeRequest) (*dto.ComputeResponse, error)
}

type reportCardService interface {
	Build(ctx context.Context, tenantID, studentID, academicYear string) (*dto.ReportCardResponse, bool, error)
}

// GradebookHandler serves computed grades.
type GradebookHandler struct {
	gradebook   gradebookService
	reportCards reportCardService
}

// NewGradebookHandler constructs the handler.
func NewGradebookHandler(gradebook gradebookService, reportCards reportCardService) *GradebookHandler {
	return &GradebookHandler{gradebook: gradebook, reportCards: reportCards}
}

// Performance godoc
// @Summary Student subject performance
// @Tags Gradebook
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Student ID"
// @Param subjectId query string true "Subject ID"
// @Param termId query string false "Term ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/performance [get]
func (h *GradebookHandler) Performance(c *gin.Context) {
	subjectID := c.Query("subjectId")
	if subjectID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "subjectId required"))
		return
	}
	start := time.Now()
	resp, cacheHit, err := h.gradebook.StudentPerformance(c.Request.Context(), dto.StudentPerformanceRequest{
		TenantID:  tenant.Value(c),
		StudentID: c.Param("id"),
		SubjectID: subjectID,
		TermID:    c.Query("termId"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	respondComputed(c, resp, cacheHit, start)
}

// Overview godoc
// @Summary Student overview across subjects
// @Tags Gradebook
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Student ID"
// @Param termId query string false "Term ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/overview [get]
func (h *GradebookHandler) Overview(c *gin.Context) {
	start := time.Now()
	resp, cacheHit, err := h.gradebook.StudentOverview(c.Request.Context(), tenant.Value(c), c.Param("id"), c.Query("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondComputed(c, resp, cacheHit, start)
}

// ReportCard godoc
// @Summary Student report card for an academic year
// @Tags Gradebook
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Student ID"
// @Param academicYear query string true "Academic year"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/report-card [get]
func (h *GradebookHandler) ReportCard(c *gin.Context) {
	year := c.Query("academicYear")
	if year == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "academicYear required"))
		return
	}
	start := time.Now()
	resp, cacheHit, err := h.reportCards.Build(c.Request.Context(), tenant.Value(c), c.Param("id"), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondComputed(c, resp, cacheHit, start)
}

// ClassGradebook godoc
// @Summary Class gradebook for a subject and term
// @Tags Gradebook
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Class ID"
// @Param subjectId query string true "Subject ID"
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/gradebook [get]
func (h *GradebookHandler) ClassGradebook(c *gin.Context) {
	subjectID := c.Query("subjectId")
	termID := c.Query("termId")
	if subjectID == "" || termID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "subjectId and termId required"))
		return
	}
	start := time.Now()
	resp, cacheHit, err := h.gradebook.ClassGradebook(c.Request.Context(), tenant.Value(c), c.Param("id"), subjectID, termID)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondComputed(c, resp, cacheHit, start)
}

// Compute godoc
// @Summary Compute grades from supplied results
// @Tags Gradebook
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param payload body dto.ComputeRequest true "Results, optional schema and columns"
// @Success 200 {object} response.Envelope
// @Router /grades/compute [post]
func (h *GradebookHandler) Compute(c *gin.Context) {
	var req dto.ComputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	resp, err := h.gradebook.Compute(c.Request.Context(), tenant.Value(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

func respondComputed(c *gin.Context, data interface{}, cacheHit bool, start time.Time) {
	middleware.SetCacheHit(c, cacheHit)
	middleware.SetMeta(c, middleware.MetaProcessingTime, time.Since(start).Milliseconds())
	meta := middleware.ExtractMeta(c)
	response.JSON(c, http.StatusOK, data, nil, meta)
}
