package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/hospital_desk/internal/backup"
	"github.com/Skotchmaster/hospital_desk/internal/events"
	"github.com/Skotchmaster/hospital_desk/internal/logging"
	"github.com/Skotchmaster/hospital_desk/internal/models"
	"github.com/Skotchmaster/hospital_desk/internal/repo"
)

type Runner interface {
	Run(ctx context.Context) backup.Outcome
}

type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// BackupService runs at most one backup at a time and records every attempt.
type BackupService struct {
	Repo   *repo.GormRepo
	Runner Runner
	// Uploader is optional; when set successful dumps are copied offsite.
	Uploader  Uploader
	Events    events.Publisher
	Logger    *slog.Logger
	BackupDir string
	LogsDir   string

	slot   chan struct{}
	wg     sync.WaitGroup
	base   context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

type BackupOptions struct {
	Uploader  Uploader
	Events    events.Publisher
	Logger    *slog.Logger
	BackupDir string
	LogsDir   string
}

type JobView struct {
	Job models.BackupJob
	Log *models.BackupLog
}

func NewBackupService(r *repo.GormRepo, runner Runner, opts BackupOptions) *BackupService {
	base, cancel := context.WithCancel(context.Background())
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &BackupService{
		Repo:      r,
		Runner:    runner,
		Uploader:  opts.Uploader,
		Events:    opts.Events,
		Logger:    l,
		BackupDir: opts.BackupDir,
		LogsDir:   opts.LogsDir,
		slot:      make(chan struct{}, 1),
		base:      base,
		cancel:    cancel,
	}
}

func (s *BackupService) acquire(ctx context.Context) error {
	// a free slot wins over an already cancelled context
	select {
	case s.slot <- struct{}{}:
		return nil
	default:
	}
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *BackupService) release() { <-s.slot }

// Run waits for the slot, runs the script and returns the recorded entry.
// A failed script is not an error: the entry carries status error.
func (s *BackupService) Run(ctx context.Context, requestedBy uint) (*models.BackupLog, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return s.execute(ctx, requestedBy)
}

func (s *BackupService) execute(ctx context.Context, requestedBy uint) (*models.BackupLog, error) {
	l := logging.FromContext(ctx).With("svc", "backup.run", "user_id", requestedBy)
	// the attempt is recorded even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	out := s.Runner.Run(ctx)
	if out.Err != nil {
		l.Error("backup_process_error", "error", out.Err)
	}
	entry := backup.Entry(out, s.BackupDir)

	if entry.Status == models.BackupStatusSuccess && s.Uploader != nil && entry.Filename != "" {
		key, err := s.Uploader.Upload(ctx, backup.Artifact{Filename: entry.Filename}.Path(s.BackupDir))
		if err != nil {
			l.Warn("backup_upload_failed", "filename", entry.Filename, "error", err)
			entry.Message += " (offsite copy failed)"
		} else {
			l.Info("backup_uploaded", "key", key)
		}
	}

	if err := s.Repo.CreateBackupLog(ctx, &entry); err != nil {
		return nil, fmt.Errorf("record backup: %w", err)
	}

	l.Info("backup_completed", "status", entry.Status, "log_id", entry.ID, "filename", entry.Filename)
	events.Emit(ctx, s.Events, l, events.New(events.BackupCompleted, requestedBy, map[string]any{
		"status": entry.Status, "log_id": entry.ID,
	}))
	return &entry, nil
}

// Start records a pending job and runs it in the background.
func (s *BackupService) Start(ctx context.Context, requestedBy uint) (*models.BackupJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrShuttingDown
	}

	job := &models.BackupJob{ID: uuid.New(), Status: models.JobPending, RequestedBy: requestedBy}
	if err := s.Repo.CreateBackupJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create backup job: %w", err)
	}

	s.wg.Add(1)
	go s.runJob(*job)
	return job, nil
}

// failJob closes a job that never produced a log row.
func (s *BackupService) failJob(ctx context.Context, l *slog.Logger, id uuid.UUID) {
	if err := s.Repo.FinishBackupJob(ctx, id, models.JobFailed, nil, time.Now().UTC()); err != nil {
		l.Error("backup_job_update_failed", "error", err)
	}
}

func (s *BackupService) runJob(job models.BackupJob) {
	defer s.wg.Done()

	ctx, l := logging.With(logging.IntoContext(context.Background(), s.Logger), "svc", "backup.job", "job_id", job.ID)

	if err := s.base.Err(); err != nil {
		l.Warn("backup_job_abandoned", "error", err)
		s.failJob(ctx, l, job.ID)
		return
	}
	if err := s.acquire(s.base); err != nil {
		l.Warn("backup_job_abandoned", "error", err)
		s.failJob(ctx, l, job.ID)
		return
	}
	defer s.release()

	if err := s.Repo.MarkBackupJobRunning(ctx, job.ID, time.Now().UTC()); err != nil {
		l.Error("backup_job_update_failed", "error", err)
		s.failJob(ctx, l, job.ID)
		return
	}

	status := models.JobFailed
	var logID *uint
	entry, err := s.execute(ctx, job.RequestedBy)
	if err != nil {
		l.Error("backup_job_failed", "error", err)
	} else {
		logID = &entry.ID
		if entry.Status == models.BackupStatusSuccess {
			status = models.JobSucceeded
		}
	}

	if err := s.Repo.FinishBackupJob(ctx, job.ID, status, logID, time.Now().UTC()); err != nil {
		l.Error("backup_job_update_failed", "error", err)
	}
}

func (s *BackupService) GetJob(ctx context.Context, id uuid.UUID) (*JobView, error) {
	job, err := s.Repo.GetBackupJob(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get backup job: %w", err)
	}

	view := &JobView{Job: *job}
	if job.LogID != nil {
		entry, err := s.Repo.GetBackupLog(ctx, *job.LogID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("get backup log: %w", err)
		}
		view.Log = entry
	}
	return view, nil
}

func (s *BackupService) ListLogs(ctx context.Context) ([]models.BackupLog, error) {
	return s.Repo.ListBackupLogs(ctx)
}

func (s *BackupService) ReadLogFile(name string) (*backup.LogFile, error) {
	f, err := backup.ReadLogFile(s.LogsDir, name)
	switch {
	case errors.Is(err, backup.ErrInvalidFormat):
		return nil, ErrInvalidFormat
	case errors.Is(err, backup.ErrLogNotFound):
		return nil, ErrLogFileNotFound
	case err != nil:
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return f, nil
}

// RecoverJobs fails jobs that were pending or running when the previous process stopped.
func (s *BackupService) RecoverJobs(ctx context.Context) (int64, error) {
	return s.Repo.FailUnfinishedBackupJobs(ctx, time.Now().UTC())
}

// Shutdown abandons jobs still waiting for the slot and waits for the rest.
// Start is rejected from then on.
func (s *BackupService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	s.mu.Unlock()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
