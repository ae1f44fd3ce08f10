package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/middleware"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/middleware/tenant"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type schemaService interface {
	List(ctx context.Context, filter models.GradingSchemaFilter) ([]models.GradingSchemaRow, *models.Pagination, error)
	Get(ctx context.Context, tenantID, id string) (*dto.SchemaResponse, error)
	Create(ctx context.Context, tenantID string, req dto.SchemaInput) (*dto.SchemaResponse, error)
	Update(ctx context.Context, tenantID, id string, req dto.SchemaInput) (*dto.SchemaResponse, error)
}

// SchemaHandler manages grading schemas.
type SchemaHandler struct {
	schemas schemaService
}

// NewSchemaHandler constructs the handler.
func NewSchemaHandler(schemas schemaService) *SchemaHandler {
	return &SchemaHandler{schemas: schemas}
}

// List godoc
// @Summary List grading schemas
// @Tags Grading Schemas
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param subjectId query string false "Subject ID"
// @Param termId query string false "Term ID"
// @Param active query bool false "Only active schemas"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /grading-schemas [get]
func (h *SchemaHandler) List(c *gin.Context) {
	filter := models.GradingSchemaFilter{
		TenantID:  tenant.Value(c),
		SubjectID: c.Query("subjectId"),
		TermID:    c.Query("termId"),
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid active flag"))
			return
		}
		filter.ActiveOnly = active
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	rows, pagination, err := h.schemas.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Get godoc
// @Summary Get grading schema
// @Tags Grading Schemas
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Schema ID"
// @Success 200 {object} response.Envelope
// @Router /grading-schemas/{id} [get]
func (h *SchemaHandler) Get(c *gin.Context) {
	schema, err := h.schemas.Get(c.Request.Context(), tenant.Value(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schema, nil)
}

// Create godoc
// @Summary Create grading schema
// @Tags Grading Schemas
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param payload body dto.SchemaInput true "Schema payload"
// @Success 201 {object} response.Envelope
// @Router /grading-schemas [post]
func (h *SchemaHandler) Create(c *gin.Context) {
	var req dto.SchemaInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	schema, err := h.schemas.Create(c.Request.Context(), tenant.Value(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schema, warningMeta(c, schema))
}

// Update godoc
// @Summary Update grading schema
// @Tags Grading Schemas
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Schema ID"
// @Param payload body dto.SchemaInput true "Schema payload"
// @Success 200 {object} response.Envelope
// @Router /grading-schemas/{id} [put]
func (h *SchemaHandler) Update(c *gin.Context) {
	var req dto.SchemaInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	schema, err := h.schemas.Update(c.Request.Context(), tenant.Value(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schema, nil, warningMeta(c, schema))
}

func warningMeta(c *gin.Context, schema *dto.SchemaResponse) map[string]interface{} {
	if schema == nil || len(schema.Warnings) == 0 {
		return nil
	}
	middleware.SetMeta(c, middleware.MetaWarnings, schema.Warnings)
	return middleware.ExtractMeta(c)
}
