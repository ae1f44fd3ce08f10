package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

const assessmentResultColumns = `id, tenant_id, student_id, subject_id, class_id, term_id, assessment_id, assessment_name, assessment_type, score, max_score, percentage, assessed_at`

// AssessmentResultRepository reads scored assessments recorded by the assessment module.
type AssessmentResultRepository struct {
	db *sqlx.DB
}

// NewAssessmentResultRepository constructs the repository.
func NewAssessmentResultRepository(db *sqlx.DB) *AssessmentResultRepository {
	return &AssessmentResultRepository{db: db}
}

// List returns results matching filter ordered by assessment date.
func (r *AssessmentResultRepository) List(ctx context.Context, filter models.AssessmentFilter) ([]models.AssessmentResultRow, error) {
	conditions, args := assessmentConditions(filter)
	query := fmt.Sprintf("SELECT %s FROM assessment_results WHERE %s ORDER BY assessed_at ASC, id ASC", assessmentResultColumns, strings.Join(conditions, " AND "))
	var rows []models.AssessmentResultRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list assessment results: %w", err)
	}
	return rows, nil
}

// ListByStudents loads results for many students in one round trip, grouped by student.
// filter.StudentID is ignored.
func (r *AssessmentResultRepository) ListByStudents(ctx context.Context, filter models.AssessmentFilter, studentIDs []string) (map[string][]models.AssessmentResultRow, error) {
	grouped := make(map[string][]models.AssessmentResultRow, len(studentIDs))
	if len(studentIDs) == 0 {
		return grouped, nil
	}
	filter.StudentID = ""
	conditions, args := assessmentConditions(filter)
	args = append(args, pq.Array(studentIDs))
	conditions = append(conditions, fmt.Sprintf("student_id = ANY($%d)", len(args)))
	query := fmt.Sprintf("SELECT %s FROM assessment_results WHERE %s ORDER BY student_id ASC, assessed_at ASC, id ASC", assessmentResultColumns, strings.Join(conditions, " AND "))

	var rows []models.AssessmentResultRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list assessment results by students: %w", err)
	}
	for _, row := range rows {
		grouped[row.StudentID] = append(grouped[row.StudentID], row)
	}
	return grouped, nil
}

func assessmentConditions(filter models.AssessmentFilter) ([]string, []interface{}) {
	conditions := []string{"tenant_id = $1"}
	args := []interface{}{filter.TenantID}

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if filter.TermID != "" {
		args = append(args, filter.TermID)
		conditions = append(conditions, fmt.Sprintf("term_id = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("assessed_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("assessed_at <= $%d", len(args)))
	}
	return conditions, args
}
