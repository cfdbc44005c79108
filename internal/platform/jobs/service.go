package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"perfreview/internal/domain/cycles"
)

const JobCycleSweep = "cycle_status_sweep"

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunStore records job runs.
type RunStore interface {
	Start(ctx context.Context, tenantID, jobType string) (string, error)
	Finish(ctx context.Context, runID, status string, details []byte) error
}

// Sweeper moves cycles between statuses as their timelines progress.
type Sweeper interface {
	ListOpenCycleTenants(ctx context.Context) ([]string, error)
	SweepStatuses(ctx context.Context, tenantID string, now time.Time) (cycles.SweepResult, error)
}

type Service struct {
	Runs     RunStore
	Cycles   Sweeper
	Interval time.Duration
	queue    chan job
	now      func() time.Time
}

type job struct {
	Type     string
	TenantID string
	Run      func(context.Context) (any, error)
}

func New(runs RunStore, sweeper Sweeper, interval time.Duration) *Service {
	return &Service{
		Runs:     runs,
		Cycles:   sweeper,
		Interval: interval,
		queue:    make(chan job, 128),
		now:      time.Now,
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Interval > 0 {
		go s.scheduleSweeps(ctx, s.Interval)
	}
}

func (s *Service) Enqueue(jobType, tenantID string, run func(context.Context) (any, error)) bool {
	select {
	case s.queue <- job{Type: jobType, TenantID: tenantID, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType, "tenantId", tenantID)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, tenantID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, TenantID: tenantID, Run: run})
}

// SweepTenant runs the status sweep for one tenant synchronously.
func (s *Service) SweepTenant(ctx context.Context, tenantID string) (cycles.SweepResult, error) {
	details, err := s.RunNow(ctx, JobCycleSweep, tenantID, s.sweepFunc(tenantID))
	result, _ := details.(cycles.SweepResult)
	return result, err
}

func (s *Service) sweepFunc(tenantID string) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return s.Cycles.SweepStatuses(ctx, tenantID, s.now())
	}
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "tenantId", j.TenantID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID, err := s.Runs.Start(ctx, j.TenantID, j.Type)
	if err != nil {
		slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
	}

	details, err := j.Run(ctx)
	status := RunStatusCompleted
	if err != nil {
		status = RunStatusFailed
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if updErr := s.Runs.Finish(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "runId", runID, "err", updErr)
		}
	}
	return details, err
}

func (s *Service) scheduleSweeps(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueueSweeps(ctx)
		}
	}
}

func (s *Service) enqueueSweeps(ctx context.Context) int {
	tenants, err := s.Cycles.ListOpenCycleTenants(ctx)
	if err != nil {
		slog.Warn("sweep scheduler tenant lookup failed", "err", err)
		return 0
	}
	queued := 0
	for _, tenantID := range tenants {
		if s.Enqueue(JobCycleSweep, tenantID, s.sweepFunc(tenantID)) {
			queued++
		}
	}
	return queued
}

// PGRunStore keeps job runs in the job_runs table.
type PGRunStore struct {
	DB *pgxpool.Pool
}

func NewPGRunStore(db *pgxpool.Pool) *PGRunStore {
	return &PGRunStore{DB: db}
}

func (p *PGRunStore) Start(ctx context.Context, tenantID, jobType string) (string, error) {
	var runID string
	err := p.DB.QueryRow(ctx, `
    INSERT INTO job_runs (tenant_id, job_type, status)
    VALUES ($1,$2,$3)
    RETURNING id
  `, tenantID, jobType, RunStatusRunning).Scan(&runID)
	return runID, err
}

func (p *PGRunStore) Finish(ctx context.Context, runID, status string, details []byte) error {
	_, err := p.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, details, runID)
	return err
}
