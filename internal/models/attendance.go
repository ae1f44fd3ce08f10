package models

// AttendanceStatus represents the status for daily attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "H"
	AttendanceStatusSick    AttendanceStatus = "S"
	AttendanceStatusExcused AttendanceStatus = "I"
	AttendanceStatusAbsent  AttendanceStatus = "A"
)

// AttendanceSummary counts daily attendance for one student over a window.
type AttendanceSummary struct {
	StudentID string `db:"student_id" json:"student_id"`
	Present   int    `db:"present" json:"present"`
	Total     int    `db:"total" json:"total"`
}

// Rate returns the present share as a percentage. ok is false when nothing was recorded.
func (s AttendanceSummary) Rate() (rate float64, ok bool) {
	if s.Total == 0 {
		return 0, false
	}
	return float64(s.Present) / float64(s.Total) * 100, true
}
