package models

import "time"

// TermType represents the type of academic term (e.g. semester, quarter).
type TermType string

const (
	TermTypeSemester  TermType = "SEMESTER"
	TermTypeTrimester TermType = "TRIMESTER"
	TermTypeQuarter   TermType = "QUARTER"
)

// ColumnPrefix returns the report-card column prefix for the term type.
func (t TermType) ColumnPrefix() string {
	switch t {
	case TermTypeQuarter:
		return "P"
	case TermTypeTrimester:
		return "T"
	default:
		return "S"
	}
}

// Term models an academic term within the institution calendar.
type Term struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Type         TermType  `db:"type" json:"type"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
	EndDate      time.Time `db:"end_date" json:"end_date"`
	IsActive     bool      `db:"is_active" json:"is_active"`
}
