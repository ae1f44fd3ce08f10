package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

var (
	schemaColumnNames   = []string{"id", "tenant_id", "name", "description", "is_active", "aggregate_method", "subject_id", "term_id", "created_at", "updated_at"}
	categoryColumnNames = []string{"id", "schema_id", "name", "weight", "description", "position"}
)

func TestGradingSchemaRepositoryFindForSubject(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradingSchemaRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tenant_id = $1 AND is_active = TRUE AND (subject_id = $2 OR subject_id IS NULL) AND (term_id = $3 OR term_id IS NULL)")).
		WithArgs("school-1", "math", "term-1").
		WillReturnRows(sqlmock.NewRows(schemaColumnNames).
			AddRow("schema-1", "school-1", "Math weighting", nil, true, "weighted", "math", nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM grading_schema_categories WHERE schema_id = $1 ORDER BY position ASC")).
		WithArgs("schema-1").
		WillReturnRows(sqlmock.NewRows(categoryColumnNames).
			AddRow("c-1", "schema-1", "Quiz", 30.0, nil, 0).
			AddRow("c-2", "schema-1", "Exam", 70.0, nil, 1))

	row, err := repo.FindForSubject(context.Background(), "school-1", "math", "term-1")
	require.NoError(t, err)
	require.Len(t, row.Categories, 2)

	schema := row.ToSchema()
	assert.True(t, schema.IsWeighted())
	assert.Equal(t, grading.AggregateWeighted, schema.AggregateMethod)
	assert.Equal(t, map[string]float64{"quiz": 30, "exam": 70}, schema.WeightingSchema)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradingSchemaRepositoryFindForSubjectNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM grading_schemas")).
		WillReturnError(sql.ErrNoRows)

	_, err := NewGradingSchemaRepository(db).FindForSubject(context.Background(), "school-1", "math", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradingSchemaRepositoryCreateReplacesCategories(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradingSchemaRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grading_schemas")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM grading_schema_categories WHERE schema_id = $1")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grading_schema_categories")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grading_schema_categories")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	row := &models.GradingSchemaRow{
		TenantID:        "school-1",
		Name:            "Default",
		IsActive:        true,
		AggregateMethod: "weighted",
		Categories: []models.GradingSchemaCategoryRow{
			{Name: "Quiz", Weight: 40},
			{Name: "Exam", Weight: 60},
		},
	}
	require.NoError(t, repo.Create(context.Background(), row))
	assert.NotEmpty(t, row.ID)
	assert.Equal(t, row.ID, row.Categories[1].SchemaID)
	assert.Equal(t, 1, row.Categories[1].Position)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradingSchemaRepositoryUpdateRollsBackOnCategoryFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradingSchemaRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE grading_schemas SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM grading_schema_categories")).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := repo.Update(context.Background(), &models.GradingSchemaRow{ID: "schema-1", TenantID: "school-1", Name: "x", AggregateMethod: "average"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradingSchemaRepositoryListAttachesCategories(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradingSchemaRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM grading_schemas WHERE tenant_id = $1 AND is_active = TRUE")).
		WithArgs("school-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM grading_schemas WHERE tenant_id = $1 AND is_active = TRUE ORDER BY name ASC LIMIT 20 OFFSET 0")).
		WithArgs("school-1").
		WillReturnRows(sqlmock.NewRows(schemaColumnNames).
			AddRow("schema-1", "school-1", "A", nil, true, "weighted", nil, nil, now, now).
			AddRow("schema-2", "school-1", "B", nil, true, "average", nil, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE schema_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(categoryColumnNames).
			AddRow("c-1", "schema-1", "Quiz", 100.0, nil, 0))

	schemas, total, err := repo.List(context.Background(), models.GradingSchemaFilter{TenantID: "school-1", ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, schemas, 2)
	assert.Len(t, schemas[0].Categories, 1)
	assert.Empty(t, schemas[1].Categories)
	require.NoError(t, mock.ExpectationsWereMet())
}
