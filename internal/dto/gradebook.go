package dto

import (
	"time"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
)

// StudentPerformanceRequest scopes a single subject computation.
type StudentPerformanceRequest struct {
	TenantID  string `validate:"required"`
	StudentID string `validate:"required"`
	SubjectID string `validate:"required"`
	TermID    string
}

// SchemaRef identifies the grading schema applied to a computation.
type SchemaRef struct {
	ID              string                  `json:"id"`
	Name            string                  `json:"name"`
	AggregateMethod grading.AggregateMethod `json:"aggregateMethod"`
}

// StudentPerformanceResponse wraps one subject performance with its context.
type StudentPerformanceResponse struct {
	TermID           string                     `json:"termId,omitempty"`
	Schema           *SchemaRef                 `json:"schema,omitempty"`
	Performance      grading.SubjectPerformance `json:"performance"`
	NonFiniteSkipped int                        `json:"nonFiniteSkipped,omitempty"`
}

// StudentOverviewResponse summarises every subject of a student.
type StudentOverviewResponse struct {
	StudentID         string                       `json:"studentId"`
	TermID            string                       `json:"termId,omitempty"`
	Subjects          []grading.SubjectPerformance `json:"subjects"`
	OverallPercentage *float64                     `json:"overallPercentage,omitempty"`
	LetterGrade       string                       `json:"letterGrade,omitempty"`
	GPA               *float64                     `json:"gpa,omitempty"`
	Passed            bool                         `json:"passed"`
	HonorRoll         bool                         `json:"honorRoll"`
	FailingSubjects   []string                     `json:"failingSubjects"`
	AttendanceRate    *float64                     `json:"attendanceRate,omitempty"`
}

// GradebookRow is one student line of a class gradebook.
type GradebookRow struct {
	StudentID      string                     `json:"studentId"`
	StudentName    string                     `json:"studentName"`
	StudentNIS     string                     `json:"studentNis,omitempty"`
	Performance    grading.SubjectPerformance `json:"performance"`
	AttendanceRate *float64                   `json:"attendanceRate,omitempty"`
}

// GradeDistribution describes how a class scored.
type GradeDistribution struct {
	Graded    int            `json:"graded"`
	Ungraded  int            `json:"ungraded"`
	Min       *float64       `json:"min,omitempty"`
	Max       *float64       `json:"max,omitempty"`
	Average   *float64       `json:"average,omitempty"`
	PassCount int            `json:"passCount"`
	FailCount int            `json:"failCount"`
	ByLetter  map[string]int `json:"byLetter"`
}

// InterventionEntry flags a failing student.
type InterventionEntry struct {
	StudentID   string  `json:"studentId"`
	StudentName string  `json:"studentName"`
	Percentage  float64 `json:"percentage"`
	LetterGrade string  `json:"letterGrade"`
}

// ClassGradebookResponse is the class-wide grade matrix for one subject.
type ClassGradebookResponse struct {
	ClassID      string              `json:"classId"`
	SubjectID    string              `json:"subjectId"`
	TermID       string              `json:"termId"`
	Schema       *SchemaRef          `json:"schema,omitempty"`
	Rows         []GradebookRow      `json:"rows"`
	Distribution GradeDistribution   `json:"distribution"`
	Intervention []InterventionEntry `json:"intervention"`
}

// AssessmentInput is a caller supplied assessment result.
type AssessmentInput struct {
	StudentID      string    `json:"studentId" validate:"required"`
	SubjectID      string    `json:"subjectId" validate:"required"`
	AssessmentType string    `json:"assessmentType" validate:"required"`
	AssessmentID   string    `json:"assessmentId"`
	AssessmentName string    `json:"assessmentName"`
	Score          float64   `json:"score"`
	MaxScore       float64   `json:"maxScore"`
	Percentage     float64   `json:"percentage"`
	AssessmentDate time.Time `json:"assessmentDate"`
}

// ColumnInput defines a report-card column for stateless computation.
type ColumnInput struct {
	Name  string    `json:"name" validate:"required"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Final bool      `json:"final"`
}

// ComputeRequest runs the engine over caller supplied data without touching storage.
type ComputeRequest struct {
	Results []AssessmentInput `json:"results" validate:"required,min=1,dive"`
	Schema  *SchemaInput      `json:"schema,omitempty"`
	Columns []ColumnInput     `json:"columns,omitempty" validate:"omitempty,dive"`
	Dedupe  bool              `json:"dedupe"`
}

// ComputeResponse holds stateless computation output.
type ComputeResponse struct {
	Subjects []grading.SubjectPerformance `json:"subjects"`
	Columns  []grading.SubjectColumns     `json:"columns,omitempty"`
	Warnings []string                     `json:"warnings,omitempty"`
}

// ReportCardSubject is one subject row of a report card.
type ReportCardSubject struct {
	SubjectID   string                `json:"subjectId"`
	SubjectName string                `json:"subjectName"`
	Columns     []grading.ColumnValue `json:"columns"`
}

// ReportCardResponse is a student's rolled-up report card for an academic year.
type ReportCardResponse struct {
	StudentID    string              `json:"studentId"`
	AcademicYear string              `json:"academicYear"`
	Columns      []string            `json:"columns"`
	Subjects     []ReportCardSubject `json:"subjects"`
	GeneratedAt  time.Time           `json:"generatedAt"`
}
