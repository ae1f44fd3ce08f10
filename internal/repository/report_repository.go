package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

const reportJobColumns = `id, tenant_id, type, params, status, progress, result_url, request_id, created_at, finished_at, error_message`

// ReportRepository persists export job metadata.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a new report job row with generated defaults.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	const query = `INSERT INTO report_jobs (id, tenant_id, type, params, status, progress, result_url, request_id, created_at, finished_at, error_message)
VALUES (:id, :tenant_id, :type, :params, :status, :progress, :result_url, :request_id, :created_at, :finished_at, :error_message)`
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, "SELECT "+reportJobColumns+" FROM report_jobs WHERE id = $1", id); err != nil {
		return nil, fmt.Errorf("get report job: %w", err)
	}
	return &job, nil
}

// UpdateReportJobParams lists the mutable columns. Nil fields are left untouched.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

func (p UpdateReportJobParams) assignments() ([]string, []interface{}) {
	var cols []string
	var vals []interface{}
	add := func(col string, set bool, v interface{}) {
		if set {
			cols = append(cols, col)
			vals = append(vals, v)
		}
	}
	add("status", p.Status != nil, deref(p.Status))
	add("progress", p.Progress != nil, deref(p.Progress))
	add("result_url", p.ResultURL != nil, deref(p.ResultURL))
	add("error_message", p.ErrorMessage != nil, deref(p.ErrorMessage))
	add("finished_at", p.FinishedAt != nil, deref(p.FinishedAt))
	return cols, vals
}

// Update applies the non-nil fields of params to the job row.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	cols, args := params.assignments()
	if len(cols) == 0 {
		return nil
	}
	set := make([]string, len(cols))
	for i, col := range cols {
		set[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE report_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	return nil
}

// ListQueued returns jobs still waiting for a worker, oldest first, so they
// can be replayed after a restart.
func (r *ReportRepository) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	jobs, err := r.selectJobs(ctx, "status = $1 ORDER BY created_at ASC LIMIT $2", models.ReportStatusQueued, limitOr(limit, 20))
	if err != nil {
		return nil, fmt.Errorf("list queued report jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore returns finished jobs whose export expired before cutoff.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	jobs, err := r.selectJobs(ctx, "status = $1 AND finished_at IS NOT NULL AND finished_at < $2 ORDER BY finished_at ASC LIMIT $3",
		models.ReportStatusFinished, cutoff, limitOr(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("list finished report jobs: %w", err)
	}
	return jobs, nil
}

func (r *ReportRepository) selectJobs(ctx context.Context, where string, args ...interface{}) ([]models.ReportJob, error) {
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, "SELECT "+reportJobColumns+" FROM report_jobs WHERE "+where, args...); err != nil {
		return nil, err
	}
	return jobs, nil
}

func deref[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func limitOr(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
