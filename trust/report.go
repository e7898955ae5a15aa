package trust

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pawlift/pawlift/trust/countstore"
	"github.com/pawlift/pawlift/trust/models"

	"gorm.io/gorm"
)

// fileSystemReport files a machine-generated moderation report inside the
// caller's transaction. De-duped (at most one open system report per case
// and reason) and circuit-broken by a global daily quota, so a detector
// misfire can not flood the moderation queue. Returns whether a report was
// actually created.
func (eng *Engine) fileSystemReport(ctx context.Context, tx *gorm.DB, caseID uint64, reason models.ReportReason, details string) (bool, error) {
	var count int64
	err := tx.Model(&models.Report{}).
		Where("case_id = ? AND reason = ? AND reporter_id = '' AND status = ?", caseID, reason, models.ReportStatusOpen).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	_, err = eng.Counters.CheckAndIncrement(ctx, "system-report", "all", countstore.PeriodDay, eng.Config.DailySystemReportQuota)
	if errors.Is(err, countstore.ErrLimitExceeded) {
		eng.Logger.Warn("system report quota reached, skipping report", "caseID", caseID, "reason", reason)
		return false, nil
	} else if err != nil {
		return false, err
	}

	report := models.Report{
		CaseID:    caseID,
		Reason:    reason,
		Details:   details,
		Status:    models.ReportStatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Create(&report).Error; err != nil {
		return false, err
	}
	reportsFiledCounter.WithLabelValues(string(reason)).Inc()
	return true, nil
}

// FileUserReport records a user-filed report against a case, bounded by the
// same daily quota primitive as endorsements.
func (eng *Engine) FileUserReport(ctx context.Context, reporterID string, caseID uint64, reason models.ReportReason, details string) (*models.Report, error) {
	if _, err := eng.resolvePrincipal(ctx, reporterID); err != nil {
		return nil, err
	}
	if !reason.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReportReason, reason)
	}
	if _, err := eng.getCase(ctx, eng.db, caseID); err != nil {
		return nil, err
	}

	_, err := eng.Counters.CheckAndIncrement(ctx, "report", reporterID, countstore.PeriodDay, eng.Config.DailyReportLimit)
	if errors.Is(err, countstore.ErrLimitExceeded) {
		return nil, ErrDailyReportLimit
	} else if err != nil {
		return nil, err
	}

	report := models.Report{
		CaseID:     caseID,
		ReporterID: reporterID,
		Reason:     reason,
		Details:    details,
		Status:     models.ReportStatusOpen,
		CreatedAt:  time.Now().UTC(),
	}
	txErr := eng.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&report).Error; err != nil {
			return err
		}
		return appendAudit(tx, reporterID, caseID, ActionReportFiled,
			fmt.Sprintf("report filed: %s", reason), "")
	})
	if txErr != nil {
		return nil, txErr
	}

	reportsFiledCounter.WithLabelValues(string(reason)).Inc()
	eng.Logger.Info("user report filed", "caseID", caseID, "reporterID", reporterID, "reason", reason)
	return &report, nil
}
