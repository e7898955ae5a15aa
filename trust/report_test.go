package trust

import (
	"context"
	"fmt"
	"testing"

	"github.com/pawlift/pawlift/trust/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestFileUserReport(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	c := f.MustCreateCase(t, "owner1")
	f.MustInsertUser(t, "watcher", models.RoleUser, models.VerificationUnverified)

	report, err := f.Engine.FileUserReport(ctx, "watcher", c.ID, models.ReportReasonAnimalWelfare, "animal looks injured in photos")
	require.NoError(t, err)
	assert.NotZero(report.ID)
	assert.Equal("watcher", report.ReporterID)
	assert.Equal(models.ReportStatusOpen, report.Status)

	var entry models.AuditLogEntry
	require.NoError(t, f.DB.First(&entry, "action = ?", string(ActionReportFiled)).Error)
	assert.Equal("watcher", entry.ActorID)
	assert.Equal(c.ID, entry.EntityID)
}

func TestFileUserReportValidation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	c := f.MustCreateCase(t, "owner1")
	f.MustInsertUser(t, "watcher", models.RoleUser, models.VerificationUnverified)

	_, err := f.Engine.FileUserReport(ctx, "nobody", c.ID, models.ReportReasonOther, "")
	assert.ErrorIs(err, ErrAuthenticationRequired)

	_, err = f.Engine.FileUserReport(ctx, "watcher", c.ID, "grumpy", "")
	assert.ErrorIs(err, ErrInvalidReportReason)

	_, err = f.Engine.FileUserReport(ctx, "watcher", 999999, models.ReportReasonOther, "")
	assert.ErrorIs(err, ErrCaseNotFound)
}

func TestFileUserReportRateLimit(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	f.MustInsertUser(t, "watcher", models.RoleUser, models.VerificationUnverified)

	for i := 0; i < 10; i++ {
		c := f.MustCreateCase(t, fmt.Sprintf("owner%d", i))
		_, err := f.Engine.FileUserReport(ctx, "watcher", c.ID, models.ReportReasonOther, "")
		require.NoError(t, err)
	}

	c := f.MustCreateCase(t, "owner-final")
	_, err := f.Engine.FileUserReport(ctx, "watcher", c.ID, models.ReportReasonOther, "")
	assert.ErrorIs(err, ErrDailyReportLimit)
	assert.ErrorIs(err, ErrRateLimitExceeded)
}

func TestSystemReportDedupe(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	c := f.MustCreateCase(t, "owner1")

	txErr := f.DB.Transaction(func(tx *gorm.DB) error {
		created, err := f.Engine.fileSystemReport(ctx, tx, c.ID, models.ReportReasonSuspectedScam, "{}")
		require.NoError(t, err)
		assert.True(created)

		created, err = f.Engine.fileSystemReport(ctx, tx, c.ID, models.ReportReasonSuspectedScam, "{}")
		require.NoError(t, err)
		assert.False(created)

		// a different reason is a distinct report
		created, err = f.Engine.fileSystemReport(ctx, tx, c.ID, models.ReportReasonDuplicateCase, "{}")
		require.NoError(t, err)
		assert.True(created)
		return nil
	})
	require.NoError(t, txErr)

	var count int64
	assert.NoError(f.DB.Model(&models.Report{}).Where("case_id = ?", c.ID).Count(&count).Error)
	assert.Equal(int64(2), count)

	// a resolved report no longer suppresses a new one
	require.NoError(t, f.DB.Model(&models.Report{}).
		Where("case_id = ? AND reason = ?", c.ID, models.ReportReasonSuspectedScam).
		Update("status", models.ReportStatusResolved).Error)
	txErr = f.DB.Transaction(func(tx *gorm.DB) error {
		created, err := f.Engine.fileSystemReport(ctx, tx, c.ID, models.ReportReasonSuspectedScam, "{}")
		require.NoError(t, err)
		assert.True(created)
		return nil
	})
	require.NoError(t, txErr)
}

func TestSystemReportQuota(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	f.Engine.Config.DailySystemReportQuota = 2

	for i := 0; i < 3; i++ {
		c := f.MustCreateCase(t, fmt.Sprintf("owner%d", i))
		txErr := f.DB.Transaction(func(tx *gorm.DB) error {
			created, err := f.Engine.fileSystemReport(ctx, tx, c.ID, models.ReportReasonSuspectedScam, "{}")
			require.NoError(t, err)
			// the third report trips the circuit breaker silently
			assert.Equal(i < 2, created)
			return nil
		})
		require.NoError(t, txErr)
	}

	var count int64
	assert.NoError(f.DB.Model(&models.Report{}).Count(&count).Error)
	assert.Equal(int64(2), count)
}
