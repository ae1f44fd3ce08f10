package models

import (
	"time"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
)

// GradingSchemaRow is an authored weighting policy. SubjectID and TermID narrow its scope.
type GradingSchemaRow struct {
	ID              string                     `db:"id" json:"id"`
	TenantID        string                     `db:"tenant_id" json:"tenant_id"`
	Name            string                     `db:"name" json:"name"`
	Description     *string                    `db:"description" json:"description,omitempty"`
	IsActive        bool                       `db:"is_active" json:"is_active"`
	AggregateMethod string                     `db:"aggregate_method" json:"aggregate_method"`
	SubjectID       *string                    `db:"subject_id" json:"subject_id,omitempty"`
	TermID          *string                    `db:"term_id" json:"term_id,omitempty"`
	CreatedAt       time.Time                  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time                  `db:"updated_at" json:"updated_at"`
	Categories      []GradingSchemaCategoryRow `db:"-" json:"categories"`
}

// GradingSchemaCategoryRow is one weighted category of a schema.
type GradingSchemaCategoryRow struct {
	ID          string  `db:"id" json:"id"`
	SchemaID    string  `db:"schema_id" json:"schema_id"`
	Name        string  `db:"name" json:"name"`
	Weight      float64 `db:"weight" json:"weight"`
	Description *string `db:"description" json:"description,omitempty"`
	Position    int     `db:"position" json:"position"`
}

// ToSchema maps the row and its categories onto the engine schema.
func (r *GradingSchemaRow) ToSchema() *grading.GradingSchema {
	if r == nil {
		return nil
	}
	schema := &grading.GradingSchema{
		ID:              r.ID,
		Name:            r.Name,
		IsActive:        r.IsActive,
		AggregateMethod: grading.AggregateMethod(r.AggregateMethod),
		Categories:      make([]grading.SchemaCategory, 0, len(r.Categories)),
	}
	if r.Description != nil {
		schema.Description = *r.Description
	}
	for _, c := range r.Categories {
		category := grading.SchemaCategory{ID: c.ID, Name: c.Name, Weight: c.Weight}
		if c.Description != nil {
			category.Description = *c.Description
		}
		schema.Categories = append(schema.Categories, category)
	}
	schema.WeightingSchema = schema.BuildWeightingSchema()
	return schema
}

// GradingSchemaFilter scopes schema listings.
type GradingSchemaFilter struct {
	TenantID   string
	SubjectID  string
	TermID     string
	ActiveOnly bool
	Page       int
	PageSize   int
}
