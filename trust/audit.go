package trust

import (
	"time"

	"github.com/pawlift/pawlift/trust/models"

	"gorm.io/gorm"
)

// AuditAction is a closed set: downstream moderation and analytics tooling
// matches on these literal strings.
type AuditAction string

const (
	ActionCaseEndorsed              = AuditAction("case.endorsed")
	ActionVerificationUpgraded      = AuditAction("case.verification_upgraded")
	ActionVerificationSet           = AuditAction("case.verification_set")
	ActionVerificationRevoked       = AuditAction("case.verification_revoked")
	ActionEndorsementBrigadeFlagged = AuditAction("case.endorsement_brigade_flagged")
	ActionDuplicateImagesFlagged    = AuditAction("case.duplicate_images_flagged")
	ActionRiskFlagCleared           = AuditAction("case.risk_flag_cleared")
	ActionReportFiled               = AuditAction("case.report_filed")
)

const auditEntityCase = "case"

// appendAudit writes one append-only trail entry inside the caller's
// transaction, so the entity mutation and its history commit together.
// actorID is empty for system-initiated entries.
func appendAudit(tx *gorm.DB, actorID string, entityID uint64, action AuditAction, details, metadataJSON string) error {
	return tx.Create(&models.AuditLogEntry{
		ActorID:      actorID,
		EntityType:   auditEntityCase,
		EntityID:     entityID,
		Action:       string(action),
		Details:      details,
		MetadataJSON: metadataJSON,
		CreatedAt:    time.Now().UTC(),
	}).Error
}
