package dto

import "github.com/noah-isme/sma-gradebook-api/internal/models"

// ReportRequest captures POST /reports/generate payload.
type ReportRequest struct {
	Type         models.ReportType   `json:"type" validate:"required,oneof=report_card gradebook"`
	Format       models.ReportFormat `json:"format" validate:"required,oneof=csv pdf xlsx"`
	StudentID    string              `json:"studentId" validate:"required_if=Type report_card"`
	AcademicYear string              `json:"academicYear" validate:"required_if=Type report_card"`
	ClassID      string              `json:"classId" validate:"required_if=Type gradebook"`
	SubjectID    string              `json:"subjectId" validate:"required_if=Type gradebook"`
	TermID       string              `json:"termId" validate:"required_if=Type gradebook"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Type      models.ReportType   `json:"type"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
