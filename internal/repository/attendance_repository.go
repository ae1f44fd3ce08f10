package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// AttendanceRepository summarises daily attendance for grade reporting.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// StudentRate counts present days against recorded days for one student of a tenant. A
// student with no records yields a zero summary.
func (r *AttendanceRepository) StudentRate(ctx context.Context, tenantID, studentID string, from, to *time.Time) (models.AttendanceSummary, error) {
	where, args := attendanceWindow([]string{"da.tenant_id = $1", "e.tenant_id = $1", "e.student_id = $2"}, []interface{}{tenantID, studentID}, from, to)
	query := fmt.Sprintf(`SELECT e.student_id, COUNT(*) FILTER (WHERE da.status = 'H') AS present, COUNT(*) AS total
FROM daily_attendance da JOIN enrollments e ON e.id = da.enrollment_id
WHERE %s GROUP BY e.student_id`, strings.Join(where, " AND "))

	summary := models.AttendanceSummary{StudentID: studentID}
	if err := r.db.GetContext(ctx, &summary, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AttendanceSummary{StudentID: studentID}, nil
		}
		return models.AttendanceSummary{}, fmt.Errorf("student attendance rate: %w", err)
	}
	return summary, nil
}

// RatesByStudents returns summaries keyed by student for the students that have records.
func (r *AttendanceRepository) RatesByStudents(ctx context.Context, tenantID string, studentIDs []string, from, to *time.Time) (map[string]models.AttendanceSummary, error) {
	out := make(map[string]models.AttendanceSummary, len(studentIDs))
	if len(studentIDs) == 0 {
		return out, nil
	}
	where, args := attendanceWindow([]string{"da.tenant_id = $1", "e.tenant_id = $1", "e.student_id = ANY($2)"}, []interface{}{tenantID, pq.Array(studentIDs)}, from, to)
	query := fmt.Sprintf(`SELECT e.student_id, COUNT(*) FILTER (WHERE da.status = 'H') AS present, COUNT(*) AS total
FROM daily_attendance da JOIN enrollments e ON e.id = da.enrollment_id
WHERE %s GROUP BY e.student_id`, strings.Join(where, " AND "))

	var rows []models.AttendanceSummary
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("attendance rates by students: %w", err)
	}
	for _, row := range rows {
		out[row.StudentID] = row
	}
	return out, nil
}

func attendanceWindow(where []string, args []interface{}, from, to *time.Time) ([]string, []interface{}) {
	if from != nil {
		args = append(args, *from)
		where = append(where, fmt.Sprintf("da.date >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		where = append(where, fmt.Sprintf("da.date <= $%d", len(args)))
	}
	return where, args
}
