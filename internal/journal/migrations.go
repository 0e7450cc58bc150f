package journal

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillFailedSteps = "2026-09-14_backfill_batch_failed_steps"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "journal_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillFailedSteps, apply: backfillFailedSteps},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		logger.Info("journal migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// backfillFailedSteps recounts failed_steps for runs written before the column was kept in sync.
func backfillFailedSteps(db *gorm.DB) error {
	return db.Exec(`UPDATE batch_runs SET failed_steps = (
		SELECT COUNT(*) FROM batch_failures WHERE batch_failures.job_id = batch_runs.job_id
	) WHERE failed_steps = 0`).Error
}
