package models

import (
	"time"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
)

// AssessmentResultRow is a scored assessment as stored by the assessment module.
type AssessmentResultRow struct {
	ID             string    `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	SubjectID      string    `db:"subject_id" json:"subject_id"`
	ClassID        *string   `db:"class_id" json:"class_id,omitempty"`
	TermID         *string   `db:"term_id" json:"term_id,omitempty"`
	AssessmentID   *string   `db:"assessment_id" json:"assessment_id,omitempty"`
	AssessmentName string    `db:"assessment_name" json:"assessment_name"`
	AssessmentType string    `db:"assessment_type" json:"assessment_type"`
	Score          float64   `db:"score" json:"score"`
	MaxScore       float64   `db:"max_score" json:"max_score"`
	Percentage     float64   `db:"percentage" json:"percentage"`
	AssessedAt     time.Time `db:"assessed_at" json:"assessed_at"`
}

// ToResult maps the row onto the grading engine input.
func (r AssessmentResultRow) ToResult() grading.AssessmentResult {
	result := grading.AssessmentResult{
		StudentID:      r.StudentID,
		SubjectID:      r.SubjectID,
		AssessmentType: r.AssessmentType,
		AssessmentName: r.AssessmentName,
		Score:          r.Score,
		MaxScore:       r.MaxScore,
		Percentage:     r.Percentage,
		AssessmentDate: r.AssessedAt,
	}
	if r.AssessmentID != nil {
		result.AssessmentID = *r.AssessmentID
	}
	return result
}

// ToResults converts a batch of rows preserving order.
func ToResults(rows []AssessmentResultRow) []grading.AssessmentResult {
	results := make([]grading.AssessmentResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, row.ToResult())
	}
	return results
}

// AssessmentFilter scopes assessment result queries. Empty fields are ignored.
type AssessmentFilter struct {
	TenantID  string
	StudentID string
	SubjectID string
	ClassID   string
	TermID    string
	DateFrom  *time.Time
	DateTo    *time.Time
}
