package grading

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(kind string, pct float64) AssessmentResult {
	return AssessmentResult{StudentID: "stu-1", SubjectID: "math", AssessmentType: kind, Percentage: pct}
}

func dated(subject, kind string, pct float64, date string) AssessmentResult {
	d, _ := time.Parse("2006-01-02", date)
	return AssessmentResult{StudentID: "stu-1", SubjectID: subject, AssessmentType: kind, AssessmentName: kind + date, Percentage: pct, AssessmentDate: d}
}

func weightedSchema(weights map[string]float64) *GradingSchema {
	return &GradingSchema{ID: "schema", AggregateMethod: AggregateWeighted, WeightingSchema: weights}
}

func TestCumulativeScoreSimpleAverage(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	score, method := engine.CumulativeScore([]AssessmentResult{result("exam", 80), result("quiz", 60)}, nil)
	assert.Equal(t, 70.0, score)
	assert.Equal(t, MethodAverage, method)
}

func TestCumulativeScoreExcludesAttendance(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	results := []AssessmentResult{result("exam", 80), result("quiz", 60), result("Attendance", 100)}
	score, _ := engine.CumulativeScore(results, nil)
	assert.Equal(t, 70.0, score)
}

func TestCumulativeScoreNonWeightedSchemaUsesAverage(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	schema := &GradingSchema{AggregateMethod: AggregateAverage, WeightingSchema: map[string]float64{"exam": 90, "quiz": 10}}
	score, method := engine.CumulativeScore([]AssessmentResult{result("exam", 100), result("quiz", 50)}, schema)
	assert.Equal(t, 75.0, score)
	assert.Equal(t, MethodAverage, method)

	schema = &GradingSchema{AggregateMethod: AggregateWeighted}
	score, method = engine.CumulativeScore([]AssessmentResult{result("exam", 100), result("quiz", 50)}, schema)
	assert.Equal(t, 75.0, score)
	assert.Equal(t, MethodAverage, method)
}

func TestCumulativeScoreWeightedRescalesMissingCategories(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	schema := weightedSchema(map[string]float64{"exam": 60, "quiz": 40})
	score, method := engine.CumulativeScore([]AssessmentResult{result("exam", 80)}, schema)
	assert.InDelta(t, 80.0, score, 1e-9)
	assert.Equal(t, MethodWeighted, method)
}

func TestCumulativeScoreWeightedFallsBackWhenNoWeightUsed(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	schema := weightedSchema(map[string]float64{"exam": 60, "quiz": 40})
	score, method := engine.CumulativeScore([]AssessmentResult{result("homework", 90), result("homework", 70)}, schema)
	assert.Equal(t, 80.0, score)
	assert.Equal(t, MethodWeightedFallback, method)
	assert.False(t, math.IsNaN(score))
}

func TestCumulativeScoreWeightedIgnoresZeroWeight(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	schema := weightedSchema(map[string]float64{"exam": 50, "quiz": 0})
	score, method := engine.CumulativeScore([]AssessmentResult{result("exam", 60), result("quiz", 100)}, schema)
	assert.InDelta(t, 60.0, score, 1e-9)
	assert.Equal(t, MethodWeighted, method)
}

func TestCumulativeScoreCategoryCaseInsensitive(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	schema := weightedSchema(map[string]float64{"exam": 50, "quiz": 50})
	score, _ := engine.CumulativeScore([]AssessmentResult{result("EXAM", 100), result("Quiz", 50)}, schema)
	assert.InDelta(t, 75.0, score, 1e-9)
}

func TestCumulativeScoreIsIdempotentAndDoesNotMutate(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	schema := weightedSchema(map[string]float64{"exam": 70, "quiz": 30})
	results := []AssessmentResult{result("Exam", 91), result("quiz", 77), result("attendance", 100)}
	snapshot := make([]AssessmentResult, len(results))
	copy(snapshot, results)

	first, m1 := engine.CumulativeScore(results, schema)
	second, m2 := engine.CumulativeScore(results, schema)
	assert.Equal(t, first, second)
	assert.Equal(t, m1, m2)
	assert.Equal(t, snapshot, results)
}

func TestCumulativeScoreNoAcademicResults(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	score, method := engine.CumulativeScore([]AssessmentResult{result("attendance", 100)}, nil)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, MethodNone, method)
}

func TestCumulativeScoreNonFinitePercentages(t *testing.T) {
	results := []AssessmentResult{result("exam", 80), result("exam", math.Inf(1))}

	faithful := NewEngine(DefaultPolicy())
	score, _ := faithful.CumulativeScore(results, nil)
	assert.True(t, math.IsInf(score, 1))

	policy := DefaultPolicy()
	policy.SkipNonFinite = true
	hardened := NewEngine(policy)
	score, _ = hardened.CumulativeScore(results, nil)
	assert.Equal(t, 80.0, score)
	assert.Equal(t, 1, CountNonFinite(results))
}

func TestLetterGradeThresholds(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	assert.Equal(t, "B", engine.LetterGrade(89.9))
	assert.Equal(t, "A", engine.LetterGrade(90))
	assert.Equal(t, "C", engine.LetterGrade(70))
	assert.Equal(t, "D", engine.LetterGrade(60))
	assert.Equal(t, "F", engine.LetterGrade(49))
}

func TestLetterGradeCustomThresholds(t *testing.T) {
	engine := NewEngine(Policy{
		LetterThresholds: []LetterThreshold{{Min: 75, Letter: "B"}, {Min: 85, Letter: "A"}},
		FailingLetter:    "E",
	})
	assert.Equal(t, "A", engine.LetterGrade(85))
	assert.Equal(t, "B", engine.LetterGrade(80))
	assert.Equal(t, "E", engine.LetterGrade(74.99))
	assert.Equal(t, 50.0, engine.Policy().PassMark)
}

func TestPassedUsesFiftyPercentCutoff(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	assert.True(t, engine.Passed(50))
	assert.False(t, engine.Passed(49.999))
}

func TestGPA(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	assert.Equal(t, 4.0, engine.GPA(100))
	assert.Equal(t, 0.0, engine.GPA(0))
	assert.Equal(t, 2.5, engine.GPA(62.5))
	assert.True(t, engine.HonorRoll(3.5))
	assert.False(t, engine.HonorRoll(3.44))
}

func TestSubjectPerformanceEndToEnd(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	schema := weightedSchema(map[string]float64{"exam": 70, "quiz": 30})
	results := []AssessmentResult{
		result("exam", 90),
		result("exam", 70),
		result("quiz", 100),
		result("attendance", 95),
	}

	perf := engine.SubjectPerformance(results, schema)
	require.True(t, perf.HasScore)
	assert.Equal(t, "stu-1", perf.StudentID)
	assert.Equal(t, "math", perf.SubjectID)
	assert.InDelta(t, 80.0, perf.Breakdown["exam"], 1e-9)
	assert.InDelta(t, 100.0, perf.Breakdown["quiz"], 1e-9)
	assert.NotContains(t, perf.Breakdown, "attendance")
	assert.InDelta(t, 86.0, perf.CumulativePercentage, 1e-9)
	assert.Equal(t, "B", perf.LetterGrade)
	assert.InDelta(t, 3.44, perf.GPA, 1e-9)
	assert.True(t, perf.Passed)
	assert.False(t, perf.HonorRoll)
	assert.Equal(t, MethodWeighted, perf.Method)
	assert.Equal(t, 3, perf.AssessmentCount)
	require.NotNil(t, perf.Attendance)
	assert.Equal(t, 95.0, *perf.Attendance)
}

func TestSubjectPerformanceWithoutWork(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	perf := engine.SubjectPerformance(nil, nil)
	assert.False(t, perf.HasScore)
	assert.Equal(t, MethodNone, perf.Method)
	assert.Empty(t, perf.LetterGrade)
}

func TestReportCardColumns(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	results := []AssessmentResult{
		dated("math", "exam", 80, "2024-08-10"),
		dated("math", "quiz", 60, "2024-09-30"),
		dated("math", "exam", 100, "2025-01-15"),
		dated("bio", "exam", 0, "2024-08-20"),
	}
	defs := []ColumnDefinition{
		{Name: "P1", Start: mustDate("2024-07-15"), End: mustDate("2024-09-30")},
		{Name: "P2", Start: mustDate("2024-10-01"), End: mustDate("2024-12-20")},
		{Name: "S2", Start: mustDate("2025-01-06"), End: mustDate("2025-06-20")},
		{Name: "Final", Final: true},
	}

	rows := engine.ReportCardColumns(results, defs, nil)
	require.Len(t, rows, 2)
	assert.Equal(t, "bio", rows[0].SubjectID)
	assert.Equal(t, "math", rows[1].SubjectID)

	bio := rows[0].Columns
	require.NotNil(t, bio[0].Percentage)
	assert.Equal(t, 0.0, *bio[0].Percentage)
	assert.Equal(t, "F", bio[0].LetterGrade)
	assert.Nil(t, bio[1].Percentage)

	maths := rows[1].Columns
	require.Len(t, maths, 4)
	assert.Equal(t, 70.0, *maths[0].Percentage)
	assert.Nil(t, maths[1].Percentage)
	assert.Empty(t, maths[1].LetterGrade)
	assert.Equal(t, 100.0, *maths[2].Percentage)
	assert.Equal(t, 80.0, *maths[3].Percentage)
}

func TestReportCardColumnsUsesSubjectSchema(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	results := []AssessmentResult{
		dated("math", "exam", 100, "2024-08-10"),
		dated("math", "quiz", 50, "2024-08-11"),
	}
	schemas := map[string]*GradingSchema{"math": weightedSchema(map[string]float64{"exam": 80, "quiz": 20})}
	rows := engine.ReportCardColumns(results, []ColumnDefinition{{Name: "Final", Final: true}}, func(id, _ string) *GradingSchema {
		return schemas[id]
	})
	require.Len(t, rows, 1)
	assert.InDelta(t, 90.0, *rows[0].Columns[0].Percentage, 1e-9)
}

func TestReportCardColumnsResolvesSchemaPerTerm(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	results := []AssessmentResult{
		dated("math", "exam", 100, "2024-08-10"),
		dated("math", "quiz", 50, "2024-08-11"),
	}
	defs := []ColumnDefinition{
		{Name: "S1", TermID: "term-1", Start: mustDate("2024-07-15"), End: mustDate("2024-12-20")},
		{Name: "Final", Final: true},
	}
	var asked []string
	rows := engine.ReportCardColumns(results, defs, func(subjectID, termID string) *GradingSchema {
		asked = append(asked, subjectID+"/"+termID)
		if termID == "term-1" {
			return weightedSchema(map[string]float64{"exam": 80, "quiz": 20})
		}
		return nil
	})

	require.Len(t, rows, 1)
	assert.Equal(t, []string{"math/term-1", "math/"}, asked)
	assert.InDelta(t, 90.0, *rows[0].Columns[0].Percentage, 1e-9)
	assert.InDelta(t, 75.0, *rows[0].Columns[1].Percentage, 1e-9)
}

func TestDedupeKeepsLatest(t *testing.T) {
	older := dated("math", "exam", 50, "2024-08-10")
	older.AssessmentID = "as-1"
	newer := dated("math", "Exam", 75, "2024-08-12")
	newer.AssessmentID = "as-1"
	other := dated("math", "exam", 90, "2024-08-11")

	out := Dedupe([]AssessmentResult{older, other, newer})
	require.Len(t, out, 2)
	assert.Equal(t, 75.0, out[0].Percentage)
	assert.Equal(t, 90.0, out[1].Percentage)
}

func TestDedupeKeepsResultsWithoutIdentity(t *testing.T) {
	exam1 := dated("math", "exam", 90, "2024-08-10")
	exam2 := dated("math", "exam", 70, "2024-08-12")
	quiz := dated("math", "quiz", 100, "2024-08-11")
	for _, r := range []*AssessmentResult{&exam1, &exam2, &quiz} {
		r.AssessmentName = ""
	}
	assert.Empty(t, exam1.Identity())

	out := Dedupe([]AssessmentResult{exam1, exam2, quiz})
	require.Len(t, out, 3)

	engine := NewEngine(DefaultPolicy())
	perf := engine.SubjectPerformance(out, weightedSchema(map[string]float64{"exam": 70, "quiz": 30}))
	assert.InDelta(t, 86.0, perf.CumulativePercentage, 1e-9)
	assert.Equal(t, "B", perf.LetterGrade)
}

func TestSortByDate(t *testing.T) {
	in := []AssessmentResult{dated("math", "exam", 1, "2024-09-01"), dated("math", "exam", 2, "2024-08-01")}
	out := SortByDate(in)
	assert.Equal(t, 2.0, out[0].Percentage)
	assert.Equal(t, 1.0, in[0].Percentage)
}

func TestSchemaWeightHelpers(t *testing.T) {
	schema := &GradingSchema{
		AggregateMethod: AggregateWeighted,
		Categories:      []SchemaCategory{{Name: "Exam", Weight: 40}, {Name: "Quiz ", Weight: 20}},
	}
	assert.Equal(t, 60.0, schema.TotalWeight())
	assert.False(t, schema.WeightsComplete())
	assert.Equal(t, map[string]float64{"exam": 40, "quiz": 20}, schema.BuildWeightingSchema())
}

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}
