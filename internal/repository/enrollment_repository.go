package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// EnrollmentRepository reads class rosters.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListDetailsByClassAndTerm returns a tenant's active enrollments of a class ordered by student name.
func (r *EnrollmentRepository) ListDetailsByClassAndTerm(ctx context.Context, tenantID, classID, termID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.term_id, e.joined_at, e.left_at, e.status,
COALESCE(s.full_name, '') AS student_name, COALESCE(s.nis, '') AS student_nis, COALESCE(c.name, '') AS class_name
FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id AND s.tenant_id = e.tenant_id
LEFT JOIN classes c ON c.id = e.class_id AND c.tenant_id = e.tenant_id
WHERE e.tenant_id = $1 AND e.class_id = $2 AND e.term_id = $3 AND e.status = $4
ORDER BY s.full_name ASC, e.student_id ASC`
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, tenantID, classID, termID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list enrollments by class and term: %w", err)
	}
	return details, nil
}
