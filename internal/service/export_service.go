package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/pkg/export"
	"github.com/noah-isme/sma-gradebook-api/pkg/storage"
)

type reportCardBuilder interface {
	Build(ctx context.Context, tenantID, studentID, academicYear string) (*dto.ReportCardResponse, bool, error)
}

type gradebookBuilder interface {
	ClassGradebook(ctx context.Context, tenantID, classID, subjectID, termID string) (*dto.ClassGradebookResponse, bool, error)
}

type fileStorage interface {
	Save(tenantID, filename string, data []byte) (string, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService renders report cards and gradebooks and stores them behind signed links.
type ExportService struct {
	reportCards reportCardBuilder
	gradebooks  gradebookBuilder
	storage     fileStorage
	renderers   map[models.ReportFormat]export.Renderer
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
	cfg         ExportConfig
	now         func() time.Time
}

// NewExportService constructs an ExportService. A nil renderers map installs csv, pdf and xlsx.
func NewExportService(reportCards reportCardBuilder, gradebooks gradebookBuilder, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, renderers map[models.ReportFormat]export.Renderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if renderers == nil {
		renderers = map[models.ReportFormat]export.Renderer{
			models.ReportFormatCSV:  export.NewCSVExporter(),
			models.ReportFormatPDF:  export.NewPDFExporter(),
			models.ReportFormatXLSX: export.NewXLSXExporter(),
		}
	}
	return &ExportService{
		reportCards: reportCards,
		gradebooks:  gradebooks,
		storage:     files,
		renderers:   renderers,
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Supports reports whether a renderer is installed for format.
func (s *ExportService) Supports(format models.ReportFormat) bool {
	_, ok := s.renderers[format]
	return ok
}

// Generate builds the dataset for job, renders it and stores the file.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	renderer, ok := s.renderers[job.Params.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	dataset, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(job.TenantID, s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, job.TenantID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("report rendered", zap.String("job_id", job.ID), zap.String("tenant_id", job.TenantID), zap.String("path", relPath), zap.Int("bytes", len(payload)))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (*storage.DownloadToken, error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// ContentType reports the MIME type for a format.
func (s *ExportService) ContentType(format models.ReportFormat) string {
	if r, ok := s.renderers[format]; ok {
		return r.ContentType()
	}
	return "application/octet-stream"
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	scope := job.Params.StudentID + "_" + job.Params.AcademicYear
	if job.Type == models.ReportTypeGradebook {
		scope = job.Params.ClassID + "_" + job.Params.SubjectID + "_" + job.Params.TermID
	}
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", job.Type, scope, timestamp, job.Params.Format)
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, error) {
	switch job.Type {
	case models.ReportTypeReportCard:
		card, _, err := s.reportCards.Build(ctx, job.TenantID, job.Params.StudentID, job.Params.AcademicYear)
		if err != nil {
			return export.Dataset{}, err
		}
		return reportCardDataset(card), nil
	case models.ReportTypeGradebook:
		book, _, err := s.gradebooks.ClassGradebook(ctx, job.TenantID, job.Params.ClassID, job.Params.SubjectID, job.Params.TermID)
		if err != nil {
			return export.Dataset{}, err
		}
		return gradebookDataset(book), nil
	default:
		return export.Dataset{}, fmt.Errorf("unsupported report type %s", job.Type)
	}
}

// reportCardDataset lays out one row per subject, one column per term and the final letter.
func reportCardDataset(card *dto.ReportCardResponse) export.Dataset {
	headers := append([]string{"Subject"}, card.Columns...)
	headers = append(headers, "Letter")
	rows := make([][]string, 0, len(card.Subjects))
	for _, subject := range card.Subjects {
		row := make([]string, 0, len(headers))
		row = append(row, subject.SubjectName)
		letter := ""
		for _, col := range subject.Columns {
			row = append(row, formatPercent(col.Percentage))
			if col.Name == FinalColumn {
				letter = col.LetterGrade
			}
		}
		rows = append(rows, append(row, letter))
	}
	return export.Dataset{
		Title:   fmt.Sprintf("Report Card %s (%s)", card.StudentID, card.AcademicYear),
		Headers: headers,
		Rows:    rows,
	}
}

func gradebookDataset(book *dto.ClassGradebookResponse) export.Dataset {
	headers := []string{"Student", "NIS", "Score (%)", "Letter", "Passed", "GPA", "Attendance (%)", "Assessments"}
	rows := make([][]string, 0, len(book.Rows))
	for _, r := range book.Rows {
		perf := r.Performance
		score, gpa, passed := "", "", ""
		if perf.HasScore {
			score = strconv.FormatFloat(perf.CumulativePercentage, 'f', 2, 64)
			gpa = strconv.FormatFloat(perf.GPA, 'f', 2, 64)
			passed = "no"
			if perf.Passed {
				passed = "yes"
			}
		}
		rows = append(rows, []string{
			r.StudentName,
			r.StudentNIS,
			score,
			perf.LetterGrade,
			passed,
			gpa,
			formatPercent(r.AttendanceRate),
			strconv.Itoa(perf.AssessmentCount),
		})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("Gradebook %s / %s / %s", book.ClassID, book.SubjectID, book.TermID),
		Headers: headers,
		Rows:    rows,
	}
}

func formatPercent(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
