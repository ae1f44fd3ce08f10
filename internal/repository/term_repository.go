package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

const termColumns = `id, name, type, academic_year, start_date, end_date, is_active`

// TermRepository reads academic terms.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository instantiates a term repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// FindByID retrieves a tenant's term by its identifier.
func (r *TermRepository) FindByID(ctx context.Context, tenantID, id string) (*models.Term, error) {
	var term models.Term
	if err := r.db.GetContext(ctx, &term, "SELECT "+termColumns+" FROM terms WHERE tenant_id = $1 AND id = $2", tenantID, id); err != nil {
		return nil, fmt.Errorf("get term: %w", err)
	}
	return &term, nil
}

// ListByAcademicYear returns the terms of a year ordered by start date.
func (r *TermRepository) ListByAcademicYear(ctx context.Context, tenantID, academicYear string) ([]models.Term, error) {
	var terms []models.Term
	if err := r.db.SelectContext(ctx, &terms, "SELECT "+termColumns+" FROM terms WHERE tenant_id = $1 AND academic_year = $2 ORDER BY start_date ASC", tenantID, academicYear); err != nil {
		return nil, fmt.Errorf("list terms by academic year: %w", err)
	}
	return terms, nil
}
