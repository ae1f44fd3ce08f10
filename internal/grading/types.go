package grading

import (
	"math"
	"strings"
	"time"
)

// AggregateMethod selects how category results are blended into a subject score.
type AggregateMethod string

const (
	// AggregateWeighted blends per-category averages using schema weights.
	AggregateWeighted AggregateMethod = "weighted"
	// AggregateAverage takes the plain mean of every academic result.
	AggregateAverage AggregateMethod = "average"
)

// Method reports which path produced a cumulative score.
type Method string

const (
	MethodNone             Method = "none"
	MethodAverage          Method = "average"
	MethodWeighted         Method = "weighted"
	MethodWeightedFallback Method = "weighted_fallback"
)

// AssessmentResult is one scored activity for one student.
type AssessmentResult struct {
	StudentID      string    `json:"student_id"`
	SubjectID      string    `json:"subject_id"`
	AssessmentType string    `json:"assessment_type"`
	AssessmentID   string    `json:"assessment_id,omitempty"`
	AssessmentName string    `json:"assessment_name,omitempty"`
	Score          float64   `json:"score"`
	MaxScore       float64   `json:"max_score"`
	Percentage     float64   `json:"percentage"`
	AssessmentDate time.Time `json:"assessment_date"`
}

// Category returns the lower-cased weighting key of the result.
func (r AssessmentResult) Category() string {
	return strings.ToLower(strings.TrimSpace(r.AssessmentType))
}

// Identity returns the deduplication key. Name stands in when no stable id
// exists; a result with neither has no identity and yields "".
func (r AssessmentResult) Identity() string {
	id := r.AssessmentID
	if id == "" {
		if r.AssessmentName == "" {
			return ""
		}
		id = "name:" + r.AssessmentName
	}
	return r.SubjectID + "|" + r.Category() + "|" + id
}

// SchemaCategory is a display entry of a grading schema.
type SchemaCategory struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description,omitempty"`
}

// GradingSchema is a named weighting policy authored per school.
type GradingSchema struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	IsActive        bool               `json:"is_active"`
	AggregateMethod AggregateMethod    `json:"aggregate_method"`
	Categories      []SchemaCategory   `json:"categories"`
	WeightingSchema map[string]float64 `json:"weighting_schema,omitempty"`
}

// IsWeighted reports whether the weighted path applies.
func (s *GradingSchema) IsWeighted() bool {
	return s != nil && s.AggregateMethod == AggregateWeighted && len(s.WeightingSchema) > 0
}

// TotalWeight sums the display category weights.
func (s *GradingSchema) TotalWeight() float64 {
	if s == nil {
		return 0
	}
	total := 0.0
	for _, c := range s.Categories {
		total += c.Weight
	}
	return total
}

// WeightsComplete reports whether category weights add up to 100.
func (s *GradingSchema) WeightsComplete() bool {
	return math.Abs(s.TotalWeight()-100) <= 0.001
}

// BuildWeightingSchema derives the lower-cased category → weight map from Categories.
func (s *GradingSchema) BuildWeightingSchema() map[string]float64 {
	if s == nil {
		return nil
	}
	weights := make(map[string]float64, len(s.Categories))
	for _, c := range s.Categories {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if key == "" {
			continue
		}
		weights[key] += c.Weight
	}
	return weights
}

// LetterThreshold maps a minimum percentage to a letter.
type LetterThreshold struct {
	Min    float64 `json:"min"`
	Letter string  `json:"letter"`
}

// SubjectPerformance is the per student, per subject output of the engine.
type SubjectPerformance struct {
	StudentID            string             `json:"student_id"`
	SubjectID            string             `json:"subject_id"`
	CumulativePercentage float64            `json:"cumulative_percentage"`
	HasScore             bool               `json:"has_score"`
	LetterGrade          string             `json:"letter_grade,omitempty"`
	Passed               bool               `json:"passed"`
	GPA                  float64            `json:"gpa"`
	HonorRoll            bool               `json:"honor_roll"`
	Breakdown            map[string]float64 `json:"breakdown"`
	Method               Method             `json:"method"`
	AssessmentCount      int                `json:"assessment_count"`
	Attendance           *float64           `json:"attendance,omitempty"`
}

// ColumnDefinition names a report-card time bucket. TermID is empty for the
// Final column.
type ColumnDefinition struct {
	Name   string    `json:"name"`
	TermID string    `json:"term_id,omitempty"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Final  bool      `json:"final"`
}

// ColumnValue is one rendered report-card cell. Percentage is nil when no work was recorded.
type ColumnValue struct {
	Name        string   `json:"name"`
	Percentage  *float64 `json:"percentage"`
	LetterGrade string   `json:"letter_grade,omitempty"`
}

// SubjectColumns holds the report-card row for one subject.
type SubjectColumns struct {
	SubjectID string        `json:"subject_id"`
	Columns   []ColumnValue `json:"columns"`
}
