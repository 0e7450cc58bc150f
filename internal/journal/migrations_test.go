package journal

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsFailedSteps(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&BatchRun{}, &BatchFailure{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	run := BatchRun{JobID: "legacy", StartedAtSeconds: 1, FinishedAtSeconds: 2, TotalSteps: 3, AttemptedSteps: 3}
	if err := database.Omit("Failures").Create(&run).Error; err != nil {
		testContext.Fatalf("failed to insert run: %v", err)
	}
	failures := []BatchFailure{
		{JobID: "legacy", PhotoID: 1, Filename: "a.jpg", Operation: "grayscale", Detail: "x"},
		{JobID: "legacy", PhotoID: 2, Filename: "b.jpg", Operation: "grayscale", Detail: "y"},
	}
	if err := database.Create(&failures).Error; err != nil {
		testContext.Fatalf("failed to insert failures: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored BatchRun
	if err := database.Where("job_id = ?", "legacy").Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload run: %v", err)
	}
	if stored.FailedSteps != 2 {
		testContext.Fatalf("expected failed steps to be backfilled, got %d", stored.FailedSteps)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillFailedSteps).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	// A second pass must not touch the data again.
	if err := database.Model(&BatchRun{}).Where("job_id = ?", "legacy").Update("failed_steps", 0).Error; err != nil {
		testContext.Fatalf("failed to reset run: %v", err)
	}
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to reapply migrations: %v", err)
	}
	if err := database.Where("job_id = ?", "legacy").Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload run: %v", err)
	}
	if stored.FailedSteps != 0 {
		testContext.Fatalf("expected migration to run once, got %d", stored.FailedSteps)
	}
}
