package journal

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/gallery/internal/batch"
)

const defaultRecentLimit = 20

var _ batch.Recorder = (*Journal)(nil)

// BatchRun is one finished batch job.
type BatchRun struct {
	JobID             string         `gorm:"column:job_id;primaryKey;size:64"`
	StartedAtSeconds  int64          `gorm:"column:started_at_s;not null;index"`
	FinishedAtSeconds int64          `gorm:"column:finished_at_s;not null"`
	TotalSteps        int            `gorm:"column:total_steps;not null"`
	AttemptedSteps    int            `gorm:"column:attempted_steps;not null"`
	FailedSteps       int            `gorm:"column:failed_steps;not null"`
	Failures          []BatchFailure `gorm:"foreignKey:JobID;references:JobID"`
}

func (BatchRun) TableName() string {
	return "batch_runs"
}

// StartedAt converts the stored timestamp.
func (r BatchRun) StartedAt() time.Time {
	return time.Unix(r.StartedAtSeconds, 0).UTC()
}

// BatchFailure is one failed step of a run.
type BatchFailure struct {
	ID        uint   `gorm:"column:id;primaryKey;autoIncrement"`
	JobID     string `gorm:"column:job_id;size:64;not null;index"`
	PhotoID   int64  `gorm:"column:photo_id;not null"`
	Filename  string `gorm:"column:filename;not null"`
	Operation string `gorm:"column:operation;not null"`
	Detail    string `gorm:"column:detail;not null"`
}

func (BatchFailure) TableName() string {
	return "batch_failures"
}

// Record stores a finished run together with its step failures.
func (j *Journal) Record(ctx context.Context, result batch.Result) error {
	if result.JobID == "" {
		return errors.New("journal: job id is required")
	}
	run := BatchRun{
		JobID:             result.JobID,
		StartedAtSeconds:  result.StartedAt.Unix(),
		FinishedAtSeconds: result.FinishedAt.Unix(),
		TotalSteps:        result.Total,
		AttemptedSteps:    result.Attempted,
		FailedSteps:       result.Failed,
	}
	failures := make([]BatchFailure, 0, len(result.Errors))
	for _, stepErr := range result.Errors {
		detail := ""
		if stepErr.Err != nil {
			detail = stepErr.Err.Error()
		}
		failures = append(failures, BatchFailure{
			JobID:     result.JobID,
			PhotoID:   stepErr.PhotoID,
			Filename:  stepErr.Filename,
			Operation: stepErr.Operation,
			Detail:    detail,
		})
	}

	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Failures").Create(&run).Error; err != nil {
			return err
		}
		if len(failures) == 0 {
			return nil
		}
		return tx.Create(&failures).Error
	})
	if err != nil {
		j.logger.Error("journal write failed", zap.String("job_id", result.JobID), zap.Error(err))
		return err
	}
	return nil
}

// Recent returns the newest runs first, with their failures.
func (j *Journal) Recent(ctx context.Context, limit int) ([]BatchRun, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	var runs []BatchRun
	err := j.db.WithContext(ctx).
		Preload("Failures", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("started_at_s DESC").
		Order("job_id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
