package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type stubSubjects struct {
	names map[string]string
}

func (s *stubSubjects) NamesByIDs(context.Context, string, []string) (map[string]string, error) {
	return s.names, nil
}

func yearTerms() []models.Term {
	return []models.Term{
		{ID: "s1", Type: models.TermTypeSemester, AcademicYear: "2024/2025", StartDate: day(2024, 1, 1), EndDate: day(2024, 6, 30)},
		{ID: "q2", Type: models.TermTypeQuarter, AcademicYear: "2024/2025", StartDate: day(2024, 4, 1), EndDate: day(2024, 6, 30)},
		{ID: "q1", Type: models.TermTypeQuarter, AcademicYear: "2024/2025", StartDate: day(2024, 1, 1), EndDate: day(2024, 3, 31)},
	}
}

func TestColumnsFromTerms(t *testing.T) {
	defs := columnsFromTerms(yearTerms())

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"P1", "P2", "S1", FinalColumn}, names)
	final := defs[len(defs)-1]
	assert.True(t, final.Final)
	assert.Equal(t, day(2024, 1, 1), final.Start)
	assert.Equal(t, day(2024, 6, 30), final.End)
}

func TestReportCardServiceBuild(t *testing.T) {
	results := &stubResults{rows: []models.AssessmentResultRow{
		resultRow("stu-1", "math", "exam", "e1", 80, day(2024, 2, 10)),
		resultRow("stu-1", "math", "exam", "e2", 90, day(2024, 5, 10)),
		resultRow("stu-1", "bio", "quiz", "q1", 70, day(2024, 2, 12)),
	}}
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	svc := NewReportCardService(results, &stubSchemaFinder{}, &stubTerms{terms: yearTerms()}, &stubSubjects{names: map[string]string{"math": "Matematika"}}, stubPolicies{policy: grading.DefaultPolicy()}, cache, nil, zap.NewNop(), time.Minute)

	card, hit, err := svc.Build(context.Background(), "school-1", "stu-1", "2024/2025")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"P1", "P2", "S1", "Final"}, card.Columns)
	require.Len(t, card.Subjects, 2)

	bio := card.Subjects[0]
	assert.Equal(t, "bio", bio.SubjectName)
	require.NotNil(t, bio.Columns[0].Percentage)
	assert.InDelta(t, 70.0, *bio.Columns[0].Percentage, 1e-9)
	assert.Nil(t, bio.Columns[1].Percentage)
	assert.Empty(t, bio.Columns[1].LetterGrade)

	math := card.Subjects[1]
	assert.Equal(t, "Matematika", math.SubjectName)
	expected := []float64{80, 90, 85, 85}
	for i, want := range expected {
		require.NotNil(t, math.Columns[i].Percentage, math.Columns[i].Name)
		assert.InDelta(t, want, *math.Columns[i].Percentage, 1e-9, math.Columns[i].Name)
	}
	assert.Equal(t, "B", math.Columns[3].LetterGrade)

	require.Len(t, results.filters, 1)
	assert.Equal(t, day(2024, 1, 1), *results.filters[0].DateFrom)
	assert.Equal(t, day(2024, 7, 1).Add(-time.Nanosecond), *results.filters[0].DateTo)

	_, hit, err = svc.Build(context.Background(), "school-1", "stu-1", "2024/2025")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, results.calls)
}

func TestReportCardServiceBuildUsesTermScopedSchema(t *testing.T) {
	results := &stubResults{rows: []models.AssessmentResultRow{
		resultRow("stu-1", "math", "exam", "e1", 100, day(2024, 2, 10)),
		resultRow("stu-1", "math", "quiz", "q1", 50, day(2024, 2, 12)),
	}}
	weights := weightedSchemaRow(map[string]float64{"exam": 80, "quiz": 20})
	schemas := &stubSchemaFinder{byTerm: map[string]*models.GradingSchemaRow{"math|q1": weights, "math|s1": weights}}
	svc := NewReportCardService(results, schemas, &stubTerms{terms: yearTerms()}, &stubSubjects{}, stubPolicies{policy: grading.DefaultPolicy()}, nil, nil, zap.NewNop(), time.Minute)

	card, _, err := svc.Build(context.Background(), "school-1", "stu-1", "2024/2025")
	require.NoError(t, err)
	require.Len(t, card.Subjects, 1)
	cols := card.Subjects[0].Columns
	require.Len(t, cols, 4)

	require.NotNil(t, cols[0].Percentage)
	assert.InDelta(t, 90.0, *cols[0].Percentage, 1e-9, cols[0].Name)
	assert.Nil(t, cols[1].Percentage)
	require.NotNil(t, cols[2].Percentage)
	assert.InDelta(t, 90.0, *cols[2].Percentage, 1e-9, cols[2].Name)
	require.NotNil(t, cols[3].Percentage)
	assert.InDelta(t, 75.0, *cols[3].Percentage, 1e-9, cols[3].Name)
}

func TestColumnsFromTermsCarryTermIDs(t *testing.T) {
	defs := columnsFromTerms(yearTerms())

	ids := make([]string, 0, len(defs))
	for _, d := range defs {
		ids = append(ids, d.TermID)
	}
	assert.Equal(t, []string{"q1", "q2", "s1", ""}, ids)
}

func TestReportCardServiceBuildUnknownYear(t *testing.T) {
	svc := NewReportCardService(&stubResults{}, &stubSchemaFinder{}, &stubTerms{}, &stubSubjects{}, stubPolicies{}, nil, nil, nil, time.Minute)

	_, _, err := svc.Build(context.Background(), "school-1", "stu-1", "1999/2000")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, _, err = svc.Build(context.Background(), "school-1", "", "2024/2025")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
