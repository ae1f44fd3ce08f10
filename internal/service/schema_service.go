package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	applog "github.com/noah-isme/sma-gradebook-api/pkg/logger"
)

type gradingSchemaRepository interface {
	List(ctx context.Context, filter models.GradingSchemaFilter) ([]models.GradingSchemaRow, int, error)
	FindByID(ctx context.Context, tenantID, id string) (*models.GradingSchemaRow, error)
	Create(ctx context.Context, schema *models.GradingSchemaRow) error
	Update(ctx context.Context, schema *models.GradingSchemaRow) error
}

// SchemaService manages authored grading schemas.
type SchemaService struct {
	repo      gradingSchemaRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchemaService constructs a SchemaService.
func NewSchemaService(repo gradingSchemaRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SchemaService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns a page of schemas for the tenant.
func (s *SchemaService) List(ctx context.Context, filter models.GradingSchemaFilter) ([]models.GradingSchemaRow, *models.Pagination, error) {
	if filter.TenantID == "" {
		return nil, nil, appErrors.ErrTenantRequired
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	schemas, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grading schemas")
	}
	if schemas == nil {
		schemas = []models.GradingSchemaRow{}
	}
	return schemas, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single schema with its weight summary.
func (s *SchemaService) Get(ctx context.Context, tenantID, id string) (*dto.SchemaResponse, error) {
	row, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return schemaResponse(row), nil
}

// Create stores a new schema. Weights that do not add up to 100 are reported as warnings.
func (s *SchemaService) Create(ctx context.Context, tenantID string, req dto.SchemaInput) (*dto.SchemaResponse, error) {
	if tenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	row := &models.GradingSchemaRow{TenantID: tenantID}
	applySchemaInput(row, req)
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grading schema")
	}
	s.invalidate(ctx, tenantID)
	return schemaResponse(row), nil
}

// Update replaces a schema's metadata and categories.
func (s *SchemaService) Update(ctx context.Context, tenantID, id string, req dto.SchemaInput) (*dto.SchemaResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	row, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	applySchemaInput(row, req)
	if err := s.repo.Update(ctx, row); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grading schema")
	}
	s.invalidate(ctx, tenantID)
	return schemaResponse(row), nil
}

func (s *SchemaService) load(ctx context.Context, tenantID, id string) (*models.GradingSchemaRow, error) {
	if tenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	row, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grading schema not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading schema")
	}
	return row, nil
}

func (s *SchemaService) validate(req dto.SchemaInput) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading schema payload")
	}
	return validateCategories(req)
}

// invalidate drops computed entries of the tenant. Cached results are stale once weights change.
func (s *SchemaService) invalidate(ctx context.Context, tenantID string) {
	if err := s.cache.Invalidate(ctx, computedPatterns(tenantID)...); err != nil {
		applog.WithContext(ctx, s.logger).Warn("failed to invalidate gradebook cache", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

// validateCategories rejects duplicate category names and weighted schemas without usable weight.
func validateCategories(req dto.SchemaInput) error {
	seen := make(map[string]struct{}, len(req.Categories))
	positive := false
	for _, c := range req.Categories {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if _, dup := seen[key]; dup {
			return appErrors.Clone(appErrors.ErrInvalidWeights, fmt.Sprintf("category %q is listed more than once", c.Name))
		}
		seen[key] = struct{}{}
		if c.Weight > 0 {
			positive = true
		}
	}
	if grading.AggregateMethod(req.AggregateMethod) == grading.AggregateWeighted && !positive {
		return appErrors.Clone(appErrors.ErrInvalidWeights, "weighted schema needs at least one category with a positive weight")
	}
	return nil
}

func applySchemaInput(row *models.GradingSchemaRow, req dto.SchemaInput) {
	row.Name = strings.TrimSpace(req.Name)
	row.Description = nil
	if desc := strings.TrimSpace(req.Description); desc != "" {
		row.Description = &desc
	}
	row.IsActive = true
	if req.IsActive != nil {
		row.IsActive = *req.IsActive
	}
	row.AggregateMethod = req.AggregateMethod
	row.SubjectID = nonEmpty(req.SubjectID)
	row.TermID = nonEmpty(req.TermID)
	row.Categories = make([]models.GradingSchemaCategoryRow, 0, len(req.Categories))
	for _, c := range req.Categories {
		category := models.GradingSchemaCategoryRow{Name: strings.TrimSpace(c.Name), Weight: c.Weight}
		if desc := strings.TrimSpace(c.Description); desc != "" {
			category.Description = &desc
		}
		row.Categories = append(row.Categories, category)
	}
}

// schemaFromInput builds an engine schema straight from a payload.
func schemaFromInput(in dto.SchemaInput) *grading.GradingSchema {
	row := &models.GradingSchemaRow{}
	applySchemaInput(row, in)
	return row.ToSchema()
}

func schemaResponse(row *models.GradingSchemaRow) *dto.SchemaResponse {
	schema := row.ToSchema()
	return &dto.SchemaResponse{Schema: row, TotalWeight: schema.TotalWeight(), Warnings: weightWarnings(schema)}
}

// weightWarnings flags weighted schemas whose categories do not sum to 100.
func weightWarnings(schema *grading.GradingSchema) []string {
	if schema == nil || schema.AggregateMethod != grading.AggregateWeighted || schema.WeightsComplete() {
		return nil
	}
	return []string{fmt.Sprintf("category weights sum to %.2f, not 100; scores are rescaled to the weight in use", schema.TotalWeight())}
}

func nonEmpty(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
