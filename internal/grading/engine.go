// Package grading turns scored assessments into subject averages, letter
// grades and report-card rollups. Every function is pure: inputs are never
// mutated and no state is kept between calls, so callers may fan out over
// students freely.
package grading

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Engine applies a Policy to assessment results.
type Engine struct {
	policy Policy
}

// NewEngine constructs an engine. Zero fields of policy fall back to DefaultPolicy.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy.normalized()}
}

// Policy returns the effective policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// CumulativeScore blends the academic results of one student/subject into a
// percentage. Attendance records never contribute. Without a weighted schema
// the plain mean is returned; with one, each category average is weighted and
// the sum is rescaled to the weight actually exercised. When no present
// category carries weight the plain mean is used instead. The result is not
// clamped. MethodNone means there was nothing to average.
func (e *Engine) CumulativeScore(results []AssessmentResult, schema *GradingSchema) (float64, Method) {
	academic := e.academic(results)
	if len(academic) == 0 {
		return 0, MethodNone
	}
	if !schema.IsWeighted() {
		return mean(academic), MethodAverage
	}

	groups, order := groupByCategory(academic)
	totalWeightedScore := 0.0
	totalUsedWeight := 0.0
	for _, category := range order {
		weight := schema.WeightingSchema[category]
		if weight <= 0 {
			continue
		}
		totalWeightedScore += mean(groups[category]) * weight
		totalUsedWeight += weight
	}
	if totalUsedWeight == 0 {
		return mean(academic), MethodWeightedFallback
	}
	return totalWeightedScore / totalUsedWeight, MethodWeighted
}

// Breakdown returns the average percentage of each academic category.
func (e *Engine) Breakdown(results []AssessmentResult) map[string]float64 {
	groups, _ := groupByCategory(e.academic(results))
	breakdown := make(map[string]float64, len(groups))
	for category, items := range groups {
		breakdown[category] = mean(items)
	}
	return breakdown
}

// LetterGrade maps a percentage onto the policy's letter table.
func (e *Engine) LetterGrade(percentage float64) string {
	for _, t := range e.policy.LetterThresholds {
		if percentage >= t.Min {
			return t.Letter
		}
	}
	return e.policy.FailingLetter
}

// Passed reports whether percentage reaches the pass mark.
func (e *Engine) Passed(percentage float64) bool {
	return percentage >= e.policy.PassMark
}

// GPA maps a percentage linearly onto the 4.0 scale. No clamping.
func (e *Engine) GPA(percentage float64) float64 {
	return percentage / e.policy.GPADivisor
}

// HonorRoll reports whether a GPA qualifies for the honor roll.
func (e *Engine) HonorRoll(gpa float64) bool {
	return gpa >= e.policy.HonorRollGPA
}

// AttendanceRate averages attendance records. ok is false when there are none.
func (e *Engine) AttendanceRate(results []AssessmentResult) (rate float64, ok bool) {
	var attendance []AssessmentResult
	for _, r := range e.finite(results) {
		if e.isAttendance(r) {
			attendance = append(attendance, r)
		}
	}
	if len(attendance) == 0 {
		return 0, false
	}
	return mean(attendance), true
}

// SubjectPerformance computes the full per-subject summary for one student.
func (e *Engine) SubjectPerformance(results []AssessmentResult, schema *GradingSchema) SubjectPerformance {
	perf := SubjectPerformance{Breakdown: e.Breakdown(results)}
	if len(results) > 0 {
		perf.StudentID = results[0].StudentID
		perf.SubjectID = results[0].SubjectID
	}
	score, method := e.CumulativeScore(results, schema)
	perf.Method = method
	perf.AssessmentCount = len(e.academic(results))
	if rate, ok := e.AttendanceRate(results); ok {
		perf.Attendance = &rate
	}
	if method == MethodNone {
		return perf
	}
	perf.HasScore = true
	perf.CumulativePercentage = score
	perf.LetterGrade = e.LetterGrade(score)
	perf.Passed = e.Passed(score)
	perf.GPA = e.GPA(score)
	perf.HonorRoll = e.HonorRoll(perf.GPA)
	return perf
}

// ReportCardColumns rolls results up per subject and per column. Windowed
// columns keep results whose date falls inside [Start, End] by calendar day;
// Final columns always use every result of the subject. schemaFor receives the
// column's TermID; it may be nil or return nil, in which case the plain mean
// applies.
func (e *Engine) ReportCardColumns(results []AssessmentResult, defs []ColumnDefinition, schemaFor func(subjectID, termID string) *GradingSchema) []SubjectColumns {
	bySubject := make(map[string][]AssessmentResult)
	for _, r := range results {
		bySubject[r.SubjectID] = append(bySubject[r.SubjectID], r)
	}
	subjects := make([]string, 0, len(bySubject))
	for id := range bySubject {
		subjects = append(subjects, id)
	}
	sort.Strings(subjects)

	rows := make([]SubjectColumns, 0, len(subjects))
	for _, subjectID := range subjects {
		row := SubjectColumns{SubjectID: subjectID, Columns: make([]ColumnValue, 0, len(defs))}
		for _, def := range defs {
			var schema *GradingSchema
			if schemaFor != nil {
				schema = schemaFor(subjectID, def.TermID)
			}
			window := bySubject[subjectID]
			if !def.Final {
				window = withinWindow(window, def.Start, def.End)
			}
			cell := ColumnValue{Name: def.Name}
			if score, method := e.CumulativeScore(window, schema); method != MethodNone {
				value := score
				cell.Percentage = &value
				cell.LetterGrade = e.LetterGrade(score)
			}
			row.Columns = append(row.Columns, cell)
		}
		rows = append(rows, row)
	}
	return rows
}

// Dedupe collapses results that share an identity, keeping the latest by date.
// The first occurrence's position is retained. Results without an identity are
// never merged.
func Dedupe(results []AssessmentResult) []AssessmentResult {
	index := make(map[string]int, len(results))
	out := make([]AssessmentResult, 0, len(results))
	for _, r := range results {
		key := r.Identity()
		if key == "" {
			out = append(out, r)
			continue
		}
		if i, ok := index[key]; ok {
			if r.AssessmentDate.After(out[i].AssessmentDate) {
				out[i] = r
			}
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}

// SortByDate returns a copy ordered by assessment date, oldest first.
func SortByDate(results []AssessmentResult) []AssessmentResult {
	out := make([]AssessmentResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AssessmentDate.Before(out[j].AssessmentDate)
	})
	return out
}

// CountNonFinite reports how many results carry a NaN or infinite percentage.
func CountNonFinite(results []AssessmentResult) int {
	n := 0
	for _, r := range results {
		if !isFinite(r.Percentage) {
			n++
		}
	}
	return n
}

func (e *Engine) isAttendance(r AssessmentResult) bool {
	return r.Category() == strings.ToLower(e.policy.AttendanceCategory)
}

func (e *Engine) academic(results []AssessmentResult) []AssessmentResult {
	out := make([]AssessmentResult, 0, len(results))
	for _, r := range e.finite(results) {
		if !e.isAttendance(r) {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) finite(results []AssessmentResult) []AssessmentResult {
	if !e.policy.SkipNonFinite {
		return results
	}
	out := make([]AssessmentResult, 0, len(results))
	for _, r := range results {
		if isFinite(r.Percentage) {
			out = append(out, r)
		}
	}
	return out
}

// groupByCategory buckets results by lower-cased type, recording first-seen order.
func groupByCategory(results []AssessmentResult) (map[string][]AssessmentResult, []string) {
	groups := make(map[string][]AssessmentResult)
	var order []string
	for _, r := range results {
		key := r.Category()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}
	return groups, order
}

func withinWindow(results []AssessmentResult, start, end time.Time) []AssessmentResult {
	from, to := day(start), day(end)
	var out []AssessmentResult
	for _, r := range results {
		d := day(r.AssessmentDate)
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func mean(results []AssessmentResult) float64 {
	sum := 0.0
	for _, r := range results {
		sum += r.Percentage
	}
	return sum / float64(len(results))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
