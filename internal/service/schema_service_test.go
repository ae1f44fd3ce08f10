package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type stubSchemaRepo struct {
	rows    map[string]*models.GradingSchemaRow
	created []*models.GradingSchemaRow
	updated []*models.GradingSchemaRow
	filter  models.GradingSchemaFilter
}

func (s *stubSchemaRepo) List(_ context.Context, filter models.GradingSchemaFilter) ([]models.GradingSchemaRow, int, error) {
	s.filter = filter
	out := make([]models.GradingSchemaRow, 0, len(s.rows))
	for _, id := range sortedKeys(s.rows) {
		out = append(out, *s.rows[id])
	}
	return out, len(out), nil
}

func (s *stubSchemaRepo) FindByID(_ context.Context, tenantID, id string) (*models.GradingSchemaRow, error) {
	row, ok := s.rows[id]
	if !ok || row.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	clone := *row
	return &clone, nil
}

func (s *stubSchemaRepo) Create(_ context.Context, row *models.GradingSchemaRow) error {
	row.ID = "schema-new"
	s.created = append(s.created, row)
	return nil
}

func (s *stubSchemaRepo) Update(_ context.Context, row *models.GradingSchemaRow) error {
	s.updated = append(s.updated, row)
	return nil
}

func schemaPayload(weights ...float64) dto.SchemaInput {
	names := []string{"Exam", "Assignment", "Quiz"}
	in := dto.SchemaInput{Name: " Core ", AggregateMethod: "weighted", SubjectID: ptr("math"), TermID: ptr("  ")}
	for i, w := range weights {
		in.Categories = append(in.Categories, dto.SchemaCategoryInput{Name: names[i], Weight: w})
	}
	return in
}

func TestSchemaServiceCreate(t *testing.T) {
	repo := &stubSchemaRepo{}
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	cache.Set(context.Background(), performanceKey("school-1", "stu-1", "math", ""), map[string]int{"x": 1}, time.Minute)
	cache.Set(context.Background(), policyKey("school-1"), map[string]int{"x": 1}, time.Minute)
	svc := NewSchemaService(repo, cache, nil, zap.NewNop())

	resp, err := svc.Create(context.Background(), "school-1", schemaPayload(60, 40))
	require.NoError(t, err)
	assert.Empty(t, resp.Warnings)
	assert.InDelta(t, 100.0, resp.TotalWeight, 1e-9)
	require.Len(t, repo.created, 1)
	row := repo.created[0]
	assert.Equal(t, "school-1", row.TenantID)
	assert.Equal(t, "Core", row.Name)
	assert.True(t, row.IsActive)
	require.NotNil(t, row.SubjectID)
	assert.Equal(t, "math", *row.SubjectID)
	assert.Nil(t, row.TermID)
	assert.Len(t, row.Categories, 2)

	assert.NotContains(t, cacheRepo.items, performanceKey("school-1", "stu-1", "math", ""))
	assert.Contains(t, cacheRepo.items, policyKey("school-1"))
}

func TestSchemaServiceCreateWarnsOnIncompleteWeights(t *testing.T) {
	svc := NewSchemaService(&stubSchemaRepo{}, nil, nil, nil)

	resp, err := svc.Create(context.Background(), "school-1", schemaPayload(50, 30))
	require.NoError(t, err)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "80.00")
}

func TestSchemaServiceCreateRejectsInvalidPayloads(t *testing.T) {
	svc := NewSchemaService(&stubSchemaRepo{}, nil, nil, nil)

	_, err := svc.Create(context.Background(), "school-1", schemaPayload(0, 0))
	assert.ErrorIs(t, err, appErrors.ErrInvalidWeights)

	dup := schemaPayload(60, 40)
	dup.Categories[1].Name = "exam"
	_, err = svc.Create(context.Background(), "school-1", dup)
	assert.ErrorIs(t, err, appErrors.ErrInvalidWeights)

	bad := schemaPayload(60)
	bad.AggregateMethod = "median"
	_, err = svc.Create(context.Background(), "school-1", bad)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), "", schemaPayload(100))
	assert.ErrorIs(t, err, appErrors.ErrTenantRequired)

	avg := schemaPayload()
	avg.AggregateMethod = "average"
	_, err = svc.Create(context.Background(), "school-1", avg)
	assert.NoError(t, err)
}

func TestSchemaServiceUpdateAndGet(t *testing.T) {
	repo := &stubSchemaRepo{rows: map[string]*models.GradingSchemaRow{
		"schema-1": {ID: "schema-1", TenantID: "school-1", Name: "Old", AggregateMethod: "average", IsActive: true},
	}}
	svc := NewSchemaService(repo, nil, nil, nil)

	inactive := false
	payload := schemaPayload(70, 30)
	payload.IsActive = &inactive
	resp, err := svc.Update(context.Background(), "school-1", "schema-1", payload)
	require.NoError(t, err)
	assert.Equal(t, "Core", resp.Schema.Name)
	assert.False(t, resp.Schema.IsActive)
	require.Len(t, repo.updated, 1)

	_, err = svc.Update(context.Background(), "school-2", "schema-1", payload)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	got, err := svc.Get(context.Background(), "school-1", "schema-1")
	require.NoError(t, err)
	assert.Equal(t, "Old", got.Schema.Name)
	assert.Empty(t, got.Warnings)
}

func TestSchemaServiceListDefaultsPaging(t *testing.T) {
	repo := &stubSchemaRepo{rows: map[string]*models.GradingSchemaRow{
		"a": {ID: "a", TenantID: "school-1"},
		"b": {ID: "b", TenantID: "school-1"},
	}}
	svc := NewSchemaService(repo, nil, nil, nil)

	rows, page, err := svc.List(context.Background(), models.GradingSchemaFilter{TenantID: "school-1", PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, 20, repo.filter.PageSize)
}
