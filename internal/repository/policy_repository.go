package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// PolicyRepository reads per-tenant grading policy overrides.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// FindByTenant returns the tenant override, or nil when the tenant uses the defaults.
func (r *PolicyRepository) FindByTenant(ctx context.Context, tenantID string) (*models.GradingPolicy, error) {
	const query = `SELECT tenant_id, letter_thresholds, failing_letter, pass_mark, gpa_divisor, honor_roll_gpa, updated_at
FROM grading_policies WHERE tenant_id = $1`
	var policy models.GradingPolicy
	if err := r.db.GetContext(ctx, &policy, query, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get grading policy: %w", err)
	}
	return &policy, nil
}
