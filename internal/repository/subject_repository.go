package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// SubjectRepository reads subject metadata.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new repository instance.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// NamesByIDs resolves a tenant's subject names. Unknown ids are absent from the result.
func (r *SubjectRepository) NamesByIDs(ctx context.Context, tenantID string, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, "SELECT id, code, name FROM subjects WHERE tenant_id = $1 AND id = ANY($2)", tenantID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("subject names: %w", err)
	}
	for _, s := range subjects {
		names[s.ID] = s.Name
	}
	return names, nil
}
