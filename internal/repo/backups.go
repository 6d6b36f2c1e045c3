package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/hospital_desk/internal/models"
)

func (r *GormRepo) CreateBackupLog(ctx context.Context, entry *models.BackupLog) error {
	return translate(r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.Create(entry).Error
	}))
}

func (r *GormRepo) ListBackupLogs(ctx context.Context) ([]models.BackupLog, error) {
	items := make([]models.BackupLog, 0)
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.Order("timestamp DESC").Order("id DESC").Find(&items).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (r *GormRepo) GetBackupLog(ctx context.Context, id uint) (*models.BackupLog, error) {
	var entry models.BackupLog
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.First(&entry, id).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (r *GormRepo) CreateBackupJob(ctx context.Context, job *models.BackupJob) error {
	return translate(r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.Create(job).Error
	}))
}

func (r *GormRepo) GetBackupJob(ctx context.Context, id uuid.UUID) (*models.BackupJob, error) {
	var job models.BackupJob
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).First(&job).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &job, nil
}

// MarkBackupJobRunning moves a pending job to running. A job in any other
// state is left alone and ErrNotFound is returned.
func (r *GormRepo) MarkBackupJobRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	return translate(r.Pool.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.BackupJob{}).
			Where("id = ? AND status = ?", id, models.JobPending).
			Updates(map[string]any{"status": models.JobRunning, "started_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	}))
}

// FinishBackupJob records the terminal state of a running or pending job.
func (r *GormRepo) FinishBackupJob(ctx context.Context, id uuid.UUID, status models.JobStatus, logID *uint, at time.Time) error {
	return translate(r.Pool.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.BackupJob{}).
			Where("id = ? AND status IN ?", id, []models.JobStatus{models.JobPending, models.JobRunning}).
			Updates(map[string]any{"status": status, "log_id": logID, "finished_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	}))
}

// FailUnfinishedBackupJobs closes jobs left behind by a previous process.
func (r *GormRepo) FailUnfinishedBackupJobs(ctx context.Context, at time.Time) (int64, error) {
	var n int64
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.BackupJob{}).
			Where("status IN ?", []models.JobStatus{models.JobPending, models.JobRunning}).
			Updates(map[string]any{"status": models.JobFailed, "finished_at": at})
		n = res.RowsAffected
		return res.Error
	})
	return n, translate(err)
}
