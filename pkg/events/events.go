// Package events carries gradebook domain events over watermill, backed by Kafka in
// production and an in-process channel otherwise.
package events

import "time"

// Event type names stored in message metadata.
const (
	TypeAssessmentRecorded = "assessment.recorded"
	TypeReportReady        = "report.ready"
)

// AssessmentRecorded announces that a score was written for a student.
type AssessmentRecorded struct {
	TenantID     string    `json:"tenantId"`
	StudentID    string    `json:"studentId"`
	SubjectID    string    `json:"subjectId,omitempty"`
	ClassID      string    `json:"classId,omitempty"`
	AssessmentID string    `json:"assessmentId,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// ReportReady announces a finished export job.
type ReportReady struct {
	JobID      string    `json:"jobId"`
	TenantID   string    `json:"tenantId"`
	Type       string    `json:"type"`
	Format     string    `json:"format"`
	Status     string    `json:"status"`
	ResultURL  string    `json:"resultUrl,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}
