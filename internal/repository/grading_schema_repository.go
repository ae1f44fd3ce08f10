package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

const gradingSchemaColumns = `id, tenant_id, name, description, is_active, aggregate_method, subject_id, term_id, created_at, updated_at`

// GradingSchemaRepository persists grading schemas and their weighted categories.
type GradingSchemaRepository struct {
	db *sqlx.DB
}

// NewGradingSchemaRepository constructs the repository.
func NewGradingSchemaRepository(db *sqlx.DB) *GradingSchemaRepository {
	return &GradingSchemaRepository{db: db}
}

// List returns schemas for a tenant with their categories and the total count.
func (r *GradingSchemaRepository) List(ctx context.Context, filter models.GradingSchemaFilter) ([]models.GradingSchemaRow, int, error) {
	where := []string{"tenant_id = $1"}
	args := []interface{}{filter.TenantID}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		where = append(where, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if filter.TermID != "" {
		args = append(args, filter.TermID)
		where = append(where, fmt.Sprintf("term_id = $%d", len(args)))
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = TRUE")
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM grading_schemas WHERE "+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count grading schemas: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size
	query := fmt.Sprintf("SELECT %s FROM grading_schemas WHERE %s ORDER BY name ASC LIMIT %d OFFSET %d", gradingSchemaColumns, clause, size, offset)

	var schemas []models.GradingSchemaRow
	if err := r.db.SelectContext(ctx, &schemas, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grading schemas: %w", err)
	}
	if err := r.attachCategories(ctx, schemas); err != nil {
		return nil, 0, err
	}
	return schemas, total, nil
}

// FindByID returns a tenant's schema with categories. sql.ErrNoRows is wrapped when missing.
func (r *GradingSchemaRepository) FindByID(ctx context.Context, tenantID, id string) (*models.GradingSchemaRow, error) {
	query := fmt.Sprintf("SELECT %s FROM grading_schemas WHERE tenant_id = $1 AND id = $2", gradingSchemaColumns)
	var schema models.GradingSchemaRow
	if err := r.db.GetContext(ctx, &schema, query, tenantID, id); err != nil {
		return nil, fmt.Errorf("get grading schema: %w", err)
	}
	categories, err := r.loadCategories(ctx, id)
	if err != nil {
		return nil, err
	}
	schema.Categories = categories
	return &schema, nil
}

// FindForSubject picks the most specific active schema applying to a subject within a term.
// Subject-scoped schemas beat tenant-wide ones, then term-scoped beat open-ended ones.
func (r *GradingSchemaRepository) FindForSubject(ctx context.Context, tenantID, subjectID, termID string) (*models.GradingSchemaRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM grading_schemas
WHERE tenant_id = $1 AND is_active = TRUE AND (subject_id = $2 OR subject_id IS NULL) AND (term_id = $3 OR term_id IS NULL)
ORDER BY (subject_id IS NOT NULL) DESC, (term_id IS NOT NULL) DESC, updated_at DESC LIMIT 1`, gradingSchemaColumns)
	var schema models.GradingSchemaRow
	if err := r.db.GetContext(ctx, &schema, query, tenantID, subjectID, termID); err != nil {
		return nil, fmt.Errorf("find grading schema for subject: %w", err)
	}
	categories, err := r.loadCategories(ctx, schema.ID)
	if err != nil {
		return nil, err
	}
	schema.Categories = categories
	return &schema, nil
}

// Create inserts a schema with its categories.
func (r *GradingSchemaRepository) Create(ctx context.Context, schema *models.GradingSchemaRow) error {
	if schema.ID == "" {
		schema.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if schema.CreatedAt.IsZero() {
		schema.CreatedAt = now
	}
	schema.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grading schema tx: %w", err)
	}
	const insertSchema = `INSERT INTO grading_schemas (id, tenant_id, name, description, is_active, aggregate_method, subject_id, term_id, created_at, updated_at)
VALUES (:id, :tenant_id, :name, :description, :is_active, :aggregate_method, :subject_id, :term_id, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertSchema, schema); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert grading schema: %w", err)
	}
	if err := r.replaceCategoriesTx(ctx, tx, schema.ID, schema.Categories); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grading schema: %w", err)
	}
	return nil
}

// Update rewrites schema metadata and replaces its categories atomically.
func (r *GradingSchemaRepository) Update(ctx context.Context, schema *models.GradingSchemaRow) error {
	schema.UpdatedAt = time.Now().UTC()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grading schema tx: %w", err)
	}
	const updateSchema = `UPDATE grading_schemas SET name = :name, description = :description, is_active = :is_active, aggregate_method = :aggregate_method, subject_id = :subject_id, term_id = :term_id, updated_at = :updated_at WHERE id = :id AND tenant_id = :tenant_id`
	if _, err := tx.NamedExecContext(ctx, updateSchema, schema); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("update grading schema: %w", err)
	}
	if err := r.replaceCategoriesTx(ctx, tx, schema.ID, schema.Categories); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grading schema: %w", err)
	}
	return nil
}

func (r *GradingSchemaRepository) replaceCategoriesTx(ctx context.Context, tx *sqlx.Tx, schemaID string, categories []models.GradingSchemaCategoryRow) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM grading_schema_categories WHERE schema_id = $1", schemaID); err != nil {
		return fmt.Errorf("clear grading schema categories: %w", err)
	}
	const insertCategory = `INSERT INTO grading_schema_categories (id, schema_id, name, weight, description, position)
VALUES (:id, :schema_id, :name, :weight, :description, :position)`
	for i := range categories {
		if categories[i].ID == "" {
			categories[i].ID = uuid.NewString()
		}
		categories[i].SchemaID = schemaID
		categories[i].Position = i
		if _, err := tx.NamedExecContext(ctx, insertCategory, categories[i]); err != nil {
			return fmt.Errorf("insert grading schema category: %w", err)
		}
	}
	return nil
}

func (r *GradingSchemaRepository) loadCategories(ctx context.Context, schemaID string) ([]models.GradingSchemaCategoryRow, error) {
	const query = `SELECT id, schema_id, name, weight, description, position FROM grading_schema_categories WHERE schema_id = $1 ORDER BY position ASC`
	var categories []models.GradingSchemaCategoryRow
	if err := r.db.SelectContext(ctx, &categories, query, schemaID); err != nil {
		return nil, fmt.Errorf("load grading schema categories: %w", err)
	}
	return categories, nil
}

func (r *GradingSchemaRepository) attachCategories(ctx context.Context, schemas []models.GradingSchemaRow) error {
	if len(schemas) == 0 {
		return nil
	}
	ids := make([]string, len(schemas))
	index := make(map[string]int, len(schemas))
	for i, s := range schemas {
		ids[i] = s.ID
		index[s.ID] = i
	}
	const query = `SELECT id, schema_id, name, weight, description, position FROM grading_schema_categories WHERE schema_id = ANY($1) ORDER BY schema_id ASC, position ASC`
	var categories []models.GradingSchemaCategoryRow
	if err := r.db.SelectContext(ctx, &categories, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load grading schema categories: %w", err)
	}
	for _, c := range categories {
		if i, ok := index[c.SchemaID]; ok {
			schemas[i].Categories = append(schemas[i].Categories, c)
		}
	}
	return nil
}
