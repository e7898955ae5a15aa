package trust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pawlift/pawlift/trust/models"

	"gorm.io/gorm"
)

type SetVerificationResult struct {
	OK      bool                      `json:"ok"`
	Status  models.VerificationStatus `json:"status"`
	Revoked bool                      `json:"revoked"`
}

// promote moves a case to a strictly richer verification tier. Only the
// endorsement path calls this; any other transition goes through
// SetVerificationStatus. Returns false (without error) when the target is
// not richer than the current tier or the case carries an unresolved
// brigade flag.
func (eng *Engine) promote(tx *gorm.DB, c *models.Case, target models.VerificationStatus) (bool, error) {
	if target.Rank() <= c.VerificationStatus.Rank() {
		return false, nil
	}
	if c.RiskFlags.Contains(models.RiskFlagEndorsementBrigading) {
		return false, nil
	}
	old := c.VerificationStatus
	c.VerificationStatus = target
	if err := tx.Model(&models.Case{}).Where("id = ?", c.ID).Update("verification_status", target).Error; err != nil {
		return false, err
	}
	if err := appendAudit(tx, "", c.ID, ActionVerificationUpgraded,
		fmt.Sprintf("%s -> %s", old, target), ""); err != nil {
		return false, err
	}
	eng.Logger.Info("case verification upgraded", "caseID", c.ID, "from", old, "to", target)
	return true, nil
}

// SetVerificationStatus force-sets a case's verification tier. Admin-only;
// downgrades require a revocation reason, which is preserved in the audit
// trail.
func (eng *Engine) SetVerificationStatus(ctx context.Context, actorID string, caseID uint64, target models.VerificationStatus, notes string) (*SetVerificationResult, error) {
	ctx, span := tracer.Start(ctx, "SetVerificationStatus")
	defer span.End()

	principal, err := eng.resolvePrincipal(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if principal.Role != models.RoleAdmin {
		return nil, ErrAdminRequired
	}
	if !target.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}

	var res *SetVerificationResult
	txErr := eng.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Case
		if err := tx.First(&c, caseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCaseNotFound
			}
			return err
		}

		prev := c.VerificationStatus
		revoked := target.Rank() < prev.Rank()
		if revoked && notes == "" {
			return ErrRevocationReasonRequired
		}

		if err := tx.Model(&models.Case{}).Where("id = ?", c.ID).Update("verification_status", target).Error; err != nil {
			return err
		}

		action := ActionVerificationSet
		if revoked {
			action = ActionVerificationRevoked
		}
		var metadata string
		if notes != "" {
			b, err := json.Marshal(map[string]string{"notes": notes})
			if err != nil {
				return err
			}
			metadata = string(b)
		}
		if err := appendAudit(tx, actorID, c.ID, action,
			fmt.Sprintf("%s -> %s", prev, target), metadata); err != nil {
			return err
		}

		res = &SetVerificationResult{OK: true, Status: target, Revoked: revoked}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	eng.purgeTrustCache(caseID)
	eng.Logger.Info("case verification set", "caseID", caseID, "actorID", actorID, "status", target, "revoked", res.Revoked)
	return res, nil
}

// ClearRiskFlag is the admin action that resolves a detection: it removes
// one flag from the case's risk set. Risk level drops to medium while other
// flags remain, and to low when the set empties. Clearing the brigade flag
// re-enables qualified-endorsement counting; endorsements implicated in the
// finding stay excluded.
func (eng *Engine) ClearRiskFlag(ctx context.Context, actorID string, caseID uint64, flag string, notes string) error {
	principal, err := eng.resolvePrincipal(ctx, actorID)
	if err != nil {
		return err
	}
	if principal.Role != models.RoleAdmin {
		return ErrAdminRequired
	}
	if flag == "" {
		return fmt.Errorf("%w: risk flag is required", ErrValidation)
	}

	txErr := eng.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Case
		if err := tx.First(&c, caseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCaseNotFound
			}
			return err
		}
		if !c.RiskFlags.Contains(flag) {
			// nothing to clear; keep the operation idempotent
			return nil
		}

		c.RiskFlags = c.RiskFlags.Remove(flag)
		level := models.RiskMedium
		if len(c.RiskFlags) == 0 {
			level = models.RiskLow
		}
		if err := tx.Model(&models.Case{}).Where("id = ?", c.ID).Updates(map[string]any{
			"risk_flags": c.RiskFlags,
			"risk_level": level,
		}).Error; err != nil {
			return err
		}

		b, err := json.Marshal(map[string]string{"flag": flag, "notes": notes})
		if err != nil {
			return err
		}
		return appendAudit(tx, actorID, c.ID, ActionRiskFlagCleared,
			fmt.Sprintf("cleared %s", flag), string(b))
	})
	if txErr != nil {
		return txErr
	}

	eng.purgeTrustCache(caseID)
	eng.Logger.Info("risk flag cleared", "caseID", caseID, "actorID", actorID, "flag", flag)
	return nil
}
