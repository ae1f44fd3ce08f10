package service

import (
	"context"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type subjectNamer interface {
	NamesByIDs(ctx context.Context, tenantID string, ids []string) (map[string]string, error)
}

// FinalColumn names the whole-year report-card column.
const FinalColumn = "Final"

// ReportCardService rolls a student's academic year into per-term columns.
type ReportCardService struct {
	results  assessmentSource
	schemas  schemaFinder
	terms    termReader
	subjects subjectNamer
	policies engineProvider
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time
}

// NewReportCardService constructs a ReportCardService.
func NewReportCardService(
	results assessmentSource,
	schemas schemaFinder,
	terms termReader,
	subjects subjectNamer,
	policies engineProvider,
	cache *CacheService,
	metrics *MetricsService,
	logger *zap.Logger,
	ttl time.Duration,
) *ReportCardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportCardService{
		results:  results,
		schemas:  schemas,
		terms:    terms,
		subjects: subjects,
		policies: policies,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Build computes the report card of a student for an academic year.
func (s *ReportCardService) Build(ctx context.Context, tenantID, studentID, academicYear string) (*dto.ReportCardResponse, bool, error) {
	if tenantID == "" {
		return nil, false, appErrors.ErrTenantRequired
	}
	if studentID == "" || academicYear == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "studentId and academicYear are required")
	}
	key := reportCardKey(tenantID, studentID, academicYear)
	var cached dto.ReportCardResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	terms, err := s.terms.ListByAcademicYear(ctx, tenantID, academicYear)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load terms")
	}
	if len(terms) == 0 {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "no terms found for academic year")
	}
	defs := columnsFromTerms(terms)
	final := defs[len(defs)-1]
	from, to := startOfDay(final.Start), endOfDay(final.End)

	engine, err := s.policies.Engine(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	queryStart := time.Now()
	rows, err := s.results.List(ctx, models.AssessmentFilter{TenantID: tenantID, StudentID: studentID, DateFrom: &from, DateTo: &to})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment results")
	}
	s.metrics.ObserveDBQuery("assessment_results_year", time.Since(queryStart))
	results, _, err := prepareResults(engine, rows, s.metrics, s.logger)
	if err != nil {
		return nil, false, err
	}

	subjectIDs := sortedKeys(groupBySubject(results))
	schemas, err := s.columnSchemas(ctx, tenantID, subjectIDs, defs)
	if err != nil {
		return nil, false, err
	}
	names, err := s.subjects.NamesByIDs(ctx, tenantID, subjectIDs)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}

	start := time.Now()
	rowsByColumn := engine.ReportCardColumns(results, defs, func(subjectID, termID string) *grading.GradingSchema {
		return schemas[schemaScope{subjectID: subjectID, termID: termID}]
	})
	s.metrics.ObserveGradeComputation("report_card", time.Since(start))
	if err := checkFiniteColumns(rowsByColumn); err != nil {
		return nil, false, err
	}

	resp := &dto.ReportCardResponse{
		StudentID:    studentID,
		AcademicYear: academicYear,
		Columns:      make([]string, 0, len(defs)),
		Subjects:     make([]dto.ReportCardSubject, 0, len(rowsByColumn)),
		GeneratedAt:  s.now().UTC(),
	}
	for _, def := range defs {
		resp.Columns = append(resp.Columns, def.Name)
	}
	for _, row := range rowsByColumn {
		name := names[row.SubjectID]
		if name == "" {
			name = row.SubjectID
		}
		resp.Subjects = append(resp.Subjects, dto.ReportCardSubject{SubjectID: row.SubjectID, SubjectName: name, Columns: row.Columns})
	}
	s.cache.Set(ctx, key, resp, s.ttl)
	return resp, false, nil
}

type schemaScope struct {
	subjectID string
	termID    string
}

// columnSchemas resolves the schema of every subject for every column term. The Final
// column carries no term and resolves to the year-level schema.
func (s *ReportCardService) columnSchemas(ctx context.Context, tenantID string, subjectIDs []string, defs []grading.ColumnDefinition) (map[schemaScope]*grading.GradingSchema, error) {
	out := make(map[schemaScope]*grading.GradingSchema, len(subjectIDs)*len(defs))
	for _, subjectID := range subjectIDs {
		for _, def := range defs {
			scope := schemaScope{subjectID: subjectID, termID: def.TermID}
			if _, ok := out[scope]; ok {
				continue
			}
			schema, _, err := lookupSchema(ctx, s.schemas, tenantID, subjectID, def.TermID)
			if err != nil {
				return nil, err
			}
			out[scope] = schema
		}
	}
	return out, nil
}

// columnsFromTerms numbers terms per type by start date (P1, S1, ...), orders the columns by
// end date with shorter terms first on a tie, and appends a Final column spanning the year.
func columnsFromTerms(terms []models.Term) []grading.ColumnDefinition {
	sorted := make([]models.Term, len(terms))
	copy(sorted, terms)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartDate.Before(sorted[j].StartDate) })

	counters := make(map[models.TermType]int)
	defs := make([]grading.ColumnDefinition, 0, len(sorted)+1)
	first, last := sorted[0].StartDate, sorted[0].EndDate
	for _, term := range sorted {
		counters[term.Type]++
		defs = append(defs, grading.ColumnDefinition{
			Name:   term.Type.ColumnPrefix() + strconv.Itoa(counters[term.Type]),
			TermID: term.ID,
			Start:  term.StartDate,
			End:    term.EndDate,
		})
		if term.StartDate.Before(first) {
			first = term.StartDate
		}
		if term.EndDate.After(last) {
			last = term.EndDate
		}
	}
	sort.SliceStable(defs, func(i, j int) bool {
		ei, ej := startOfDay(defs[i].End), startOfDay(defs[j].End)
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return defs[i].Start.After(defs[j].Start)
	})
	return append(defs, grading.ColumnDefinition{Name: FinalColumn, Start: first, End: last, Final: true})
}
