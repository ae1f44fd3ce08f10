package dto

import "github.com/noah-isme/sma-gradebook-api/internal/models"

// SchemaCategoryInput is one weighted category in an authoring payload.
type SchemaCategoryInput struct {
	Name        string  `json:"name" validate:"required,max=64"`
	Weight      float64 `json:"weight" validate:"gte=0,lte=100"`
	Description string  `json:"description" validate:"omitempty,max=255"`
}

// SchemaInput describes a grading schema for authoring or stateless computation.
type SchemaInput struct {
	Name            string                `json:"name" validate:"required,max=128"`
	Description     string                `json:"description" validate:"omitempty,max=500"`
	IsActive        *bool                 `json:"isActive"`
	AggregateMethod string                `json:"aggregateMethod" validate:"required,oneof=weighted average"`
	SubjectID       *string               `json:"subjectId"`
	TermID          *string               `json:"termId"`
	Categories      []SchemaCategoryInput `json:"categories" validate:"omitempty,dive"`
}

// SchemaResponse returns a stored schema with authoring warnings.
type SchemaResponse struct {
	Schema      *models.GradingSchemaRow `json:"schema"`
	TotalWeight float64                  `json:"totalWeight"`
	Warnings    []string                 `json:"warnings,omitempty"`
}
