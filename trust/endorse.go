package trust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pawlift/pawlift/trust/countstore"
	"github.com/pawlift/pawlift/trust/models"

	"gorm.io/gorm"
)

type EndorseResult struct {
	OK                     bool `json:"ok"`
	AlreadyEndorsed        bool `json:"alreadyEndorsed"`
	EndorsedCount          int  `json:"endorsedCount"`
	QualifiedEndorsedCount int  `json:"qualifiedEndorsedCount"`
	BrigadeDetected        bool `json:"brigadeDetected,omitempty"`
	PromotedToCommunity    bool `json:"promotedToCommunity"`
}

// internal marker for losing the unique-index race inside the transaction
var errAlreadyEndorsed = errors.New("already endorsed")

type brigadeEvidence struct {
	Kind          string   `json:"kind"`
	EndorserIDs   []string `json:"endorserIds"`
	WindowSeconds int      `json:"windowSeconds"`
}

// EndorseCase records one peer endorsement of a case. Re-submission by the
// same endorser is idempotent and consumes no daily quota. A clean
// endorsement that crosses the promotion threshold auto-promotes the case to
// community verification; a brigade finding instead raises risk and files a
// moderation report, atomically.
func (eng *Engine) EndorseCase(ctx context.Context, endorserID string, caseID uint64) (*EndorseResult, error) {
	ctx, span := tracer.Start(ctx, "EndorseCase")
	defer span.End()

	principal, err := eng.resolvePrincipal(ctx, endorserID)
	if err != nil {
		return nil, err
	}
	trustLevel := principal.VerificationLevel
	if !trustLevel.Trusted() {
		return nil, ErrEndorserNotTrusted
	}

	c, err := eng.getCase(ctx, eng.db, caseID)
	if err != nil {
		return nil, err
	}

	// idempotent short-circuit: no quota consumption, no audit entry
	existing, err := eng.hasEndorsement(ctx, eng.db, caseID, endorserID)
	if err != nil {
		return nil, err
	}
	if existing {
		return eng.alreadyEndorsedResult(ctx, c)
	}

	_, err = eng.Counters.CheckAndIncrement(ctx, "endorse", endorserID, countstore.PeriodDay, eng.Config.DailyEndorsementLimit)
	if errors.Is(err, countstore.ErrLimitExceeded) {
		endorsementsRateLimitedCounter.Inc()
		return nil, ErrDailyEndorsementLimit
	} else if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res := &EndorseResult{OK: true}

	txErr := eng.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// reload under the transaction; risk and verification fields must
		// reflect the latest committed state
		var cur models.Case
		if err := tx.First(&cur, caseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCaseNotFound
			}
			return err
		}

		endorsement := models.Endorsement{
			CaseID:             caseID,
			EndorserID:         endorserID,
			EndorserTrustLevel: trustLevel,
			CreatedAt:          now,
		}
		if err := tx.Create(&endorsement).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyEndorsed
			}
			return fmt.Errorf("recording endorsement: %w", err)
		}

		if err := appendAudit(tx, endorserID, caseID, ActionCaseEndorsed,
			fmt.Sprintf("endorsed by %s (%s)", endorserID, trustLevel), ""); err != nil {
			return err
		}

		var total int64
		if err := tx.Model(&models.Endorsement{}).Where("case_id = ?", caseID).Count(&total).Error; err != nil {
			return err
		}
		res.EndorsedCount = int(total)

		alreadyFlagged := cur.RiskFlags.Contains(models.RiskFlagEndorsementBrigading)
		if !alreadyFlagged {
			// endorsements already covered by a prior finding are excluded, so
			// clearing the flag does not immediately re-trigger on the same burst
			implicated := tx.Model(&models.BrigadeFinding{}).Select("endorser_id").Where("case_id = ?", caseID)
			var ledger []models.Endorsement
			if err := tx.Where("case_id = ? AND endorser_id NOT IN (?)", caseID, implicated).
				Order("created_at").Find(&ledger).Error; err != nil {
				return err
			}
			if sig := DetectBrigade(ledger, now, eng.Config.BrigadeWindow, eng.Config.BrigadeVolumeThreshold); sig != nil {
				if err := eng.flagBrigade(ctx, tx, &cur, sig); err != nil {
					return err
				}
				res.BrigadeDetected = true
				res.QualifiedEndorsedCount = 0
				return nil
			}
		} else {
			// sticky finding: qualified counting stays at zero until an
			// admin clears the flag
			res.BrigadeDetected = true
			res.QualifiedEndorsedCount = 0
			return nil
		}

		qualified, err := eng.qualifiedCount(ctx, tx, &cur)
		if err != nil {
			return err
		}
		res.QualifiedEndorsedCount = qualified

		if qualified >= eng.Config.PromotionThreshold && cur.VerificationStatus == models.VerificationUnverified {
			promoted, err := eng.promote(tx, &cur, models.VerificationCommunity)
			if err != nil {
				return err
			}
			res.PromotedToCommunity = promoted
		}
		return nil
	})

	if errors.Is(txErr, errAlreadyEndorsed) {
		// lost a concurrent race to the unique index; same result as the
		// pre-check path
		return eng.alreadyEndorsedResult(ctx, c)
	} else if txErr != nil {
		return nil, txErr
	}

	eng.purgeTrustCache(caseID)
	endorsementsProcessedCounter.Inc()
	if res.PromotedToCommunity {
		casesPromotedCounter.Inc()
	}

	eng.Logger.Info("endorsement processed",
		"caseID", caseID,
		"endorserID", endorserID,
		"endorsedCount", res.EndorsedCount,
		"qualifiedCount", res.QualifiedEndorsedCount,
		"brigade", res.BrigadeDetected,
		"promoted", res.PromotedToCommunity)
	return res, nil
}

// flagBrigade performs the cross-entity fan-out for a brigade finding in one
// transaction: case risk fields, implicated-endorsement rows, a system
// report, and the audit entry commit together or not at all.
func (eng *Engine) flagBrigade(ctx context.Context, tx *gorm.DB, c *models.Case, sig *BrigadeSignal) error {
	c.RiskLevel = models.RiskHigh
	c.RiskFlags = c.RiskFlags.Add(models.RiskFlagEndorsementBrigading)
	if err := tx.Model(&models.Case{}).Where("id = ?", c.ID).Updates(map[string]any{
		"risk_level": c.RiskLevel,
		"risk_flags": c.RiskFlags,
	}).Error; err != nil {
		return err
	}

	for _, endorserID := range sig.EndorserIDs {
		finding := models.BrigadeFinding{
			CaseID:     c.ID,
			EndorserID: endorserID,
			CreatedAt:  time.Now().UTC(),
		}
		if err := tx.Create(&finding).Error; err != nil {
			return err
		}
	}

	evidence, err := json.Marshal(brigadeEvidence{
		Kind:          "endorsement_brigade",
		EndorserIDs:   sig.EndorserIDs,
		WindowSeconds: int(sig.Window.Seconds()),
	})
	if err != nil {
		return err
	}
	if _, err := eng.fileSystemReport(ctx, tx, c.ID, models.ReportReasonSuspectedScam, string(evidence)); err != nil {
		return err
	}

	if err := appendAudit(tx, "", c.ID, ActionEndorsementBrigadeFlagged,
		fmt.Sprintf("%d coordinated endorsements within %s", len(sig.EndorserIDs), sig.Window), string(evidence)); err != nil {
		return err
	}

	brigadesFlaggedCounter.Inc()
	eng.Logger.Warn("endorsement brigade flagged", "caseID", c.ID, "endorsers", len(sig.EndorserIDs))
	return nil
}

func (eng *Engine) hasEndorsement(ctx context.Context, db *gorm.DB, caseID uint64, endorserID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&models.Endorsement{}).
		Where("case_id = ? AND endorser_id = ?", caseID, endorserID).
		Count(&count).Error
	return count > 0, err
}

func (eng *Engine) alreadyEndorsedResult(ctx context.Context, c *models.Case) (*EndorseResult, error) {
	endorsed, qualified, err := eng.endorsementCounts(ctx, eng.db, c)
	if err != nil {
		return nil, err
	}
	return &EndorseResult{
		OK:                     true,
		AlreadyEndorsed:        true,
		EndorsedCount:          endorsed,
		QualifiedEndorsedCount: qualified,
		BrigadeDetected:        c.RiskFlags.Contains(models.RiskFlagEndorsementBrigading),
	}, nil
}

func (eng *Engine) endorsementCounts(ctx context.Context, db *gorm.DB, c *models.Case) (int, int, error) {
	var total int64
	if err := db.WithContext(ctx).Model(&models.Endorsement{}).Where("case_id = ?", c.ID).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	qualified, err := eng.qualifiedCount(ctx, db, c)
	if err != nil {
		return 0, 0, err
	}
	return int(total), qualified, nil
}

// qualifiedCount is the promotion-relevant tally: endorsements whose
// snapshotted trust level was community or clinic, excluding endorsers
// implicated in a prior brigade finding. Zero while the brigade flag is
// still set on the case.
func (eng *Engine) qualifiedCount(ctx context.Context, db *gorm.DB, c *models.Case) (int, error) {
	if c.RiskFlags.Contains(models.RiskFlagEndorsementBrigading) {
		return 0, nil
	}
	implicated := db.Model(&models.BrigadeFinding{}).Select("endorser_id").Where("case_id = ?", c.ID)
	var count int64
	err := db.WithContext(ctx).Model(&models.Endorsement{}).
		Where("case_id = ? AND endorser_trust_level IN ?", c.ID,
			[]models.VerificationStatus{models.VerificationCommunity, models.VerificationClinic}).
		Where("endorser_id NOT IN (?)", implicated).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
