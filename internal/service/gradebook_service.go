package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type assessmentSource interface {
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.AssessmentResultRow, error)
	ListByStudents(ctx context.Context, filter models.AssessmentFilter, studentIDs []string) (map[string][]models.AssessmentResultRow, error)
}

type schemaFinder interface {
	FindForSubject(ctx context.Context, tenantID, subjectID, termID string) (*models.GradingSchemaRow, error)
}

type attendanceSource interface {
	StudentRate(ctx context.Context, tenantID, studentID string, from, to *time.Time) (models.AttendanceSummary, error)
	RatesByStudents(ctx context.Context, tenantID string, studentIDs []string, from, to *time.Time) (map[string]models.AttendanceSummary, error)
}

type termReader interface {
	FindByID(ctx context.Context, tenantID, id string) (*models.Term, error)
	ListByAcademicYear(ctx context.Context, tenantID, academicYear string) ([]models.Term, error)
}

type rosterReader interface {
	ListDetailsByClassAndTerm(ctx context.Context, tenantID, classID, termID string) ([]models.EnrollmentDetail, error)
}

type engineProvider interface {
	Engine(ctx context.Context, tenantID string) (*grading.Engine, error)
}

// GradebookConfig tunes gradebook computation.
type GradebookConfig struct {
	Workers  int
	CacheTTL time.Duration
}

// GradebookService computes student and class grade views from stored assessment results.
type GradebookService struct {
	results    assessmentSource
	schemas    schemaFinder
	attendance attendanceSource
	terms      termReader
	rosters    rosterReader
	policies   engineProvider
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        GradebookConfig
}

// NewGradebookService wires the gradebook service.
func NewGradebookService(
	results assessmentSource,
	schemas schemaFinder,
	attendance attendanceSource,
	terms termReader,
	rosters rosterReader,
	policies engineProvider,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg GradebookConfig,
) *GradebookService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &GradebookService{
		results:    results,
		schemas:    schemas,
		attendance: attendance,
		terms:      terms,
		rosters:    rosters,
		policies:   policies,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// StudentPerformance computes one student's standing in one subject.
func (s *GradebookService) StudentPerformance(ctx context.Context, req dto.StudentPerformanceRequest) (*dto.StudentPerformanceResponse, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid performance request")
	}
	key := performanceKey(req.TenantID, req.StudentID, req.SubjectID, req.TermID)
	var cached dto.StudentPerformanceResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	engine, err := s.policies.Engine(ctx, req.TenantID)
	if err != nil {
		return nil, false, err
	}
	from, to, err := s.termWindow(ctx, req.TenantID, req.TermID)
	if err != nil {
		return nil, false, err
	}

	var (
		schema *grading.GradingSchema
		ref    *dto.SchemaRef
		rows   []models.AssessmentResultRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		schema, ref, err = lookupSchema(gctx, s.schemas, req.TenantID, req.SubjectID, req.TermID)
		return err
	})
	g.Go(func() error {
		queryStart := time.Now()
		var err error
		rows, err = s.results.List(gctx, models.AssessmentFilter{
			TenantID:  req.TenantID,
			StudentID: req.StudentID,
			SubjectID: req.SubjectID,
			DateFrom:  from,
			DateTo:    to,
		})
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment results")
		}
		s.metrics.ObserveDBQuery("assessment_results_student_subject", time.Since(queryStart))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, false, asAppError(err, "failed to load student performance inputs")
	}
	results, skipped, err := prepareResults(engine, rows, s.metrics, s.logger)
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	perf := engine.SubjectPerformance(results, schema)
	s.metrics.ObserveGradeComputation("student_performance", time.Since(start))
	if err := checkFinite(perf); err != nil {
		return nil, false, err
	}
	recordScore(s.metrics, perf)
	perf.StudentID, perf.SubjectID = req.StudentID, req.SubjectID

	resp := &dto.StudentPerformanceResponse{
		TermID:           req.TermID,
		Schema:           ref,
		Performance:      perf,
		NonFiniteSkipped: skipped,
	}
	s.cache.Set(ctx, key, resp, s.cfg.CacheTTL)
	return resp, false, nil
}

// StudentOverview computes every subject of a student and the overall standing.
func (s *GradebookService) StudentOverview(ctx context.Context, tenantID, studentID, termID string) (*dto.StudentOverviewResponse, bool, error) {
	if tenantID == "" {
		return nil, false, appErrors.ErrTenantRequired
	}
	if studentID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	key := overviewKey(tenantID, studentID, termID)
	var cached dto.StudentOverviewResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	engine, err := s.policies.Engine(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	from, to, err := s.termWindow(ctx, tenantID, termID)
	if err != nil {
		return nil, false, err
	}

	var (
		rows    []models.AssessmentResultRow
		summary models.AttendanceSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		queryStart := time.Now()
		var err error
		rows, err = s.results.List(gctx, models.AssessmentFilter{TenantID: tenantID, StudentID: studentID, DateFrom: from, DateTo: to})
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment results")
		}
		s.metrics.ObserveDBQuery("assessment_results_student", time.Since(queryStart))
		return nil
	})
	g.Go(func() error {
		var err error
		summary, err = s.attendance.StudentRate(gctx, tenantID, studentID, from, to)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, false, asAppError(err, "failed to load student overview inputs")
	}
	results, _, err := prepareResults(engine, rows, s.metrics, s.logger)
	if err != nil {
		return nil, false, err
	}

	bySubject := groupBySubject(results)
	subjectIDs := sortedKeys(bySubject)
	resp := &dto.StudentOverviewResponse{
		StudentID:       studentID,
		TermID:          termID,
		Subjects:        make([]grading.SubjectPerformance, 0, len(subjectIDs)),
		FailingSubjects: []string{},
	}

	start := time.Now()
	var total float64
	var scored int
	for _, subjectID := range subjectIDs {
		schema, _, err := lookupSchema(ctx, s.schemas, tenantID, subjectID, termID)
		if err != nil {
			return nil, false, err
		}
		perf := engine.SubjectPerformance(bySubject[subjectID], schema)
		if err := checkFinite(perf); err != nil {
			return nil, false, err
		}
		recordScore(s.metrics, perf)
		resp.Subjects = append(resp.Subjects, perf)
		if !perf.HasScore {
			continue
		}
		total += perf.CumulativePercentage
		scored++
		if !perf.Passed {
			resp.FailingSubjects = append(resp.FailingSubjects, subjectID)
		}
	}
	if scored > 0 {
		overall := total / float64(scored)
		if !isFinite(overall) {
			return nil, false, appErrors.Clone(appErrors.ErrNonFiniteScore, "overall percentage is not finite")
		}
		gpa := engine.GPA(overall)
		resp.OverallPercentage = &overall
		resp.LetterGrade = engine.LetterGrade(overall)
		resp.GPA = &gpa
		resp.Passed = engine.Passed(overall)
		resp.HonorRoll = engine.HonorRoll(gpa)
	}
	s.metrics.ObserveGradeComputation("student_overview", time.Since(start))

	if rate, ok := summary.Rate(); ok {
		resp.AttendanceRate = &rate
	}

	s.cache.Set(ctx, key, resp, s.cfg.CacheTTL)
	return resp, false, nil
}

// ClassGradebook computes one subject for every active student of a class. Students are
// computed concurrently by at most cfg.Workers goroutines.
func (s *GradebookService) ClassGradebook(ctx context.Context, tenantID, classID, subjectID, termID string) (*dto.ClassGradebookResponse, bool, error) {
	if tenantID == "" {
		return nil, false, appErrors.ErrTenantRequired
	}
	if classID == "" || subjectID == "" || termID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "classId, subjectId and termId are required")
	}
	key := classKey(tenantID, classID, subjectID, termID)
	var cached dto.ClassGradebookResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	engine, err := s.policies.Engine(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	from, to, err := s.termWindow(ctx, tenantID, termID)
	if err != nil {
		return nil, false, err
	}

	var (
		roster []models.EnrollmentDetail
		schema *grading.GradingSchema
		ref    *dto.SchemaRef
	)
	lg, lctx := errgroup.WithContext(ctx)
	lg.Go(func() error {
		var err error
		roster, err = s.rosters.ListDetailsByClassAndTerm(lctx, tenantID, classID, termID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
		}
		return nil
	})
	lg.Go(func() error {
		var err error
		schema, ref, err = lookupSchema(lctx, s.schemas, tenantID, subjectID, termID)
		return err
	})
	if err := lg.Wait(); err != nil {
		return nil, false, asAppError(err, "failed to load class roster")
	}

	studentIDs := make([]string, len(roster))
	for i, enrollment := range roster {
		studentIDs[i] = enrollment.StudentID
	}
	var (
		grouped    map[string][]models.AssessmentResultRow
		attendance map[string]models.AttendanceSummary
	)
	queryStart := time.Now()
	fg, fctx := errgroup.WithContext(ctx)
	fg.Go(func() error {
		var err error
		grouped, err = s.results.ListByStudents(fctx, models.AssessmentFilter{TenantID: tenantID, SubjectID: subjectID, DateFrom: from, DateTo: to}, studentIDs)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment results")
		}
		return nil
	})
	fg.Go(func() error {
		var err error
		attendance, err = s.attendance.RatesByStudents(fctx, tenantID, studentIDs, from, to)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
		}
		return nil
	})
	if err := fg.Wait(); err != nil {
		return nil, false, asAppError(err, "failed to load class gradebook inputs")
	}
	s.metrics.ObserveDBQuery("class_gradebook_inputs", time.Since(queryStart))

	start := time.Now()
	rows := make([]dto.GradebookRow, len(roster))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range roster {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			enrollment := roster[i]
			results, _, err := prepareResults(engine, grouped[enrollment.StudentID], s.metrics, s.logger)
			if err != nil {
				return err
			}
			perf := engine.SubjectPerformance(results, schema)
			if err := checkFinite(perf); err != nil {
				return err
			}
			recordScore(s.metrics, perf)
			perf.StudentID, perf.SubjectID = enrollment.StudentID, subjectID
			row := dto.GradebookRow{
				StudentID:   enrollment.StudentID,
				StudentName: enrollment.StudentName,
				StudentNIS:  enrollment.StudentNIS,
				Performance: perf,
			}
			if rate, ok := attendance[enrollment.StudentID].Rate(); ok {
				row.AttendanceRate = &rate
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, asAppError(err, "failed to compute class gradebook")
	}
	s.metrics.ObserveGradeComputation("class_gradebook", time.Since(start))

	distribution, intervention := summarizeClass(engine, rows)
	resp := &dto.ClassGradebookResponse{
		ClassID:      classID,
		SubjectID:    subjectID,
		TermID:       termID,
		Schema:       ref,
		Rows:         rows,
		Distribution: distribution,
		Intervention: intervention,
	}
	s.cache.Set(ctx, key, resp, s.cfg.CacheTTL)
	return resp, false, nil
}

// Compute runs the engine over caller supplied results without touching storage.
func (s *GradebookService) Compute(ctx context.Context, tenantID string, req dto.ComputeRequest) (*dto.ComputeResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid compute payload")
	}
	engine, err := s.policies.Engine(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var schema *grading.GradingSchema
	resp := &dto.ComputeResponse{Subjects: []grading.SubjectPerformance{}}
	if req.Schema != nil {
		schema = schemaFromInput(*req.Schema)
		resp.Warnings = append(resp.Warnings, weightWarnings(schema)...)
	}

	results := make([]grading.AssessmentResult, 0, len(req.Results))
	for _, in := range req.Results {
		results = append(results, grading.AssessmentResult{
			StudentID:      in.StudentID,
			SubjectID:      in.SubjectID,
			AssessmentType: in.AssessmentType,
			AssessmentID:   in.AssessmentID,
			AssessmentName: in.AssessmentName,
			Score:          in.Score,
			MaxScore:       in.MaxScore,
			Percentage:     in.Percentage,
			AssessmentDate: in.AssessmentDate,
		})
	}
	if req.Dedupe {
		results = grading.Dedupe(results)
	}

	start := time.Now()
	byStudent := make(map[string][]grading.AssessmentResult)
	for _, r := range results {
		byStudent[r.StudentID] = append(byStudent[r.StudentID], r)
	}
	for _, studentID := range sortedKeys(byStudent) {
		bySubject := groupBySubject(byStudent[studentID])
		for _, subjectID := range sortedKeys(bySubject) {
			perf := engine.SubjectPerformance(bySubject[subjectID], schema)
			if err := checkFinite(perf); err != nil {
				return nil, err
			}
			recordScore(s.metrics, perf)
			resp.Subjects = append(resp.Subjects, perf)
		}
	}

	if len(req.Columns) > 0 {
		if len(byStudent) > 1 {
			resp.Warnings = append(resp.Warnings, "columns ignored: results span more than one student")
		} else {
			defs := make([]grading.ColumnDefinition, 0, len(req.Columns))
			for _, c := range req.Columns {
				defs = append(defs, grading.ColumnDefinition{Name: c.Name, Start: c.Start, End: c.End, Final: c.Final})
			}
			resp.Columns = engine.ReportCardColumns(results, defs, func(string, string) *grading.GradingSchema { return schema })
			if err := checkFiniteColumns(resp.Columns); err != nil {
				return nil, err
			}
		}
	}
	s.metrics.ObserveGradeComputation("compute", time.Since(start))
	return resp, nil
}

// termWindow resolves the inclusive date window of a term. An empty termID means no window.
func (s *GradebookService) termWindow(ctx context.Context, tenantID, termID string) (*time.Time, *time.Time, error) {
	if termID == "" {
		return nil, nil, nil
	}
	term, err := s.terms.FindByID(ctx, tenantID, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	from := startOfDay(term.StartDate)
	to := endOfDay(term.EndDate)
	return &from, &to, nil
}

// lookupSchema finds the schema applying to a subject. No schema means the plain mean applies.
func lookupSchema(ctx context.Context, finder schemaFinder, tenantID, subjectID, termID string) (*grading.GradingSchema, *dto.SchemaRef, error) {
	row, err := finder.FindForSubject(ctx, tenantID, subjectID, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading schema")
	}
	schema := row.ToSchema()
	return schema, &dto.SchemaRef{ID: schema.ID, Name: schema.Name, AggregateMethod: schema.AggregateMethod}, nil
}

// prepareResults converts rows, collapses duplicates and accounts for non-finite percentages.
// When the policy keeps non-finite values they cannot be graded, so the request fails.
func prepareResults(engine *grading.Engine, rows []models.AssessmentResultRow, metrics *MetricsService, logger *zap.Logger) ([]grading.AssessmentResult, int, error) {
	results := grading.Dedupe(models.ToResults(rows))
	bad := grading.CountNonFinite(results)
	if bad == 0 {
		return results, 0, nil
	}
	if !engine.Policy().SkipNonFinite {
		return nil, 0, appErrors.Clone(appErrors.ErrNonFiniteScore, fmt.Sprintf("%d assessment results have a non-finite percentage", bad))
	}
	metrics.RecordNonFinite(bad)
	logger.Warn("skipping non-finite assessment results", zap.Int("count", bad))
	return results, bad, nil
}

// checkFinite rejects a performance whose aggregates overflowed float64.
func checkFinite(perf grading.SubjectPerformance) error {
	values := []float64{perf.CumulativePercentage, perf.GPA}
	for _, v := range perf.Breakdown {
		values = append(values, v)
	}
	if perf.Attendance != nil {
		values = append(values, *perf.Attendance)
	}
	for _, v := range values {
		if !isFinite(v) {
			return appErrors.Clone(appErrors.ErrNonFiniteScore, fmt.Sprintf("subject %s produced a non-finite score", perf.SubjectID))
		}
	}
	return nil
}

func checkFiniteColumns(rows []grading.SubjectColumns) error {
	for _, row := range rows {
		for _, cell := range row.Columns {
			if cell.Percentage != nil && !isFinite(*cell.Percentage) {
				return appErrors.Clone(appErrors.ErrNonFiniteScore, fmt.Sprintf("column %s of subject %s is not finite", cell.Name, row.SubjectID))
			}
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// asAppError keeps application errors raised inside a goroutine group and wraps anything else.
func asAppError(err error, msg string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}

func recordScore(metrics *MetricsService, perf grading.SubjectPerformance) {
	if perf.Method == grading.MethodNone {
		return
	}
	metrics.RecordSubjectScore(perf.Method)
}

func summarizeClass(engine *grading.Engine, rows []dto.GradebookRow) (dto.GradeDistribution, []dto.InterventionEntry) {
	dist := dto.GradeDistribution{ByLetter: map[string]int{}}
	intervention := []dto.InterventionEntry{}
	var total float64
	for _, row := range rows {
		perf := row.Performance
		if !perf.HasScore {
			dist.Ungraded++
			continue
		}
		p := perf.CumulativePercentage
		if dist.Min == nil || p < *dist.Min {
			v := p
			dist.Min = &v
		}
		if dist.Max == nil || p > *dist.Max {
			v := p
			dist.Max = &v
		}
		total += p
		dist.Graded++
		dist.ByLetter[perf.LetterGrade]++
		if perf.Passed {
			dist.PassCount++
			continue
		}
		dist.FailCount++
		intervention = append(intervention, dto.InterventionEntry{
			StudentID:   row.StudentID,
			StudentName: row.StudentName,
			Percentage:  p,
			LetterGrade: engine.LetterGrade(p),
		})
	}
	if dist.Graded > 0 {
		avg := total / float64(dist.Graded)
		dist.Average = &avg
	}
	sort.SliceStable(intervention, func(i, j int) bool { return intervention[i].Percentage < intervention[j].Percentage })
	return dist, intervention
}

func groupBySubject(results []grading.AssessmentResult) map[string][]grading.AssessmentResult {
	out := make(map[string][]grading.AssessmentResult)
	for _, r := range results {
		out[r.SubjectID] = append(out[r.SubjectID], r)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).Add(24*time.Hour - time.Nanosecond)
}
