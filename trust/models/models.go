package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type VerificationStatus string

const (
	VerificationUnverified = VerificationStatus("unverified")
	VerificationCommunity  = VerificationStatus("community")
	VerificationClinic     = VerificationStatus("clinic")
)

// Rank orders verification tiers from least to most trusted. Unknown values
// rank below "unverified" so they can never satisfy an upgrade check.
func (s VerificationStatus) Rank() int {
	switch s {
	case VerificationUnverified:
		return 1
	case VerificationCommunity:
		return 2
	case VerificationClinic:
		return 3
	default:
		return 0
	}
}

func (s VerificationStatus) Valid() bool {
	return s.Rank() > 0
}

// Trusted indicates the account tier counts for qualified endorsements.
func (s VerificationStatus) Trusted() bool {
	return s == VerificationCommunity || s == VerificationClinic
}

type RiskLevel string

const (
	RiskLow    = RiskLevel("low")
	RiskMedium = RiskLevel("medium")
	RiskHigh   = RiskLevel("high")
)

const (
	RiskFlagPossibleDuplicateImages = "possible_duplicate_images"
	RiskFlagEndorsementBrigading    = "endorsement_brigading_suspected"
)

// RiskFlagList is a set of machine-readable risk reasons, stored as a JSON
// array in a single text column.
type RiskFlagList []string

func (l RiskFlagList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *RiskFlagList) Scan(src any) error {
	if src == nil {
		*l = RiskFlagList{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported risk flag column type: %T", src)
	}
	if len(raw) == 0 {
		*l = RiskFlagList{}
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

func (l RiskFlagList) Contains(flag string) bool {
	for _, f := range l {
		if f == flag {
			return true
		}
	}
	return false
}

// Add returns the list with the flag appended, if not already present.
func (l RiskFlagList) Add(flag string) RiskFlagList {
	if l.Contains(flag) {
		return l
	}
	return append(l, flag)
}

// Remove returns the list with the flag dropped. Does not error if absent.
func (l RiskFlagList) Remove(flag string) RiskFlagList {
	out := make(RiskFlagList, 0, len(l))
	for _, f := range l {
		if f != flag {
			out = append(out, f)
		}
	}
	return out
}

// Case is the subset of a fundraising case relevant to trust decisions. The
// rest of the case document (story, localization, donation totals) lives with
// the CRUD surface, not here.
type Case struct {
	ID        uint64 `gorm:"column:id;primarykey"`
	OwnerID   string `gorm:"column:owner_id;index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	VerificationStatus VerificationStatus `gorm:"column:verification_status;default:unverified"`
	RiskLevel          RiskLevel          `gorm:"column:risk_level;default:low"`
	RiskFlags          RiskFlagList       `gorm:"column:risk_flags;type:text"`
}

func (Case) TableName() string {
	return "trust_case"
}

// Endorsement records one peer vouching for one case. Rows are never updated
// or deleted; a brigade finding supersedes them logically, not physically.
type Endorsement struct {
	ID        uint64 `gorm:"column:id;primarykey"`
	CaseID    uint64 `gorm:"column:case_id;not null;uniqueIndex:idx_endorsement_case_endorser;index"`
	EndorserID string `gorm:"column:endorser_id;not null;uniqueIndex:idx_endorsement_case_endorser"`
	// snapshot of the endorser's own verification tier at endorsement time
	EndorserTrustLevel VerificationStatus `gorm:"column:endorser_trust_level;not null"`
	CreatedAt          time.Time          `gorm:"column:created_at;index"`
}

func (Endorsement) TableName() string {
	return "endorsement"
}

// BrigadeFinding marks one endorsement as implicated by brigade detection.
// Implicated endorsements are excluded from qualified counting even after an
// admin clears the case's brigade flag.
type BrigadeFinding struct {
	ID         uint64    `gorm:"column:id;primarykey"`
	CaseID     uint64    `gorm:"column:case_id;not null;index"`
	EndorserID string    `gorm:"column:endorser_id;not null"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (BrigadeFinding) TableName() string {
	return "brigade_finding"
}

// ImageFingerprint holds the exact and perceptual hashes for one case image.
// Immutable once written; owned by the case that created it.
type ImageFingerprint struct {
	ID        uint64 `gorm:"column:id;primarykey"`
	CaseID    uint64 `gorm:"column:case_id;not null;index"`
	StorageID string `gorm:"column:storage_id;not null"`
	SHA256    string `gorm:"column:sha256;not null;index"`
	// fixed-width hex perceptual hashes; empty if the upstream media
	// pipeline did not supply them
	PHash     string    `gorm:"column:phash;index"`
	DHash     string    `gorm:"column:dhash"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (ImageFingerprint) TableName() string {
	return "image_fingerprint"
}

type ReportReason string

const (
	ReportReasonSuspectedScam        = ReportReason("suspected_scam")
	ReportReasonDuplicateCase        = ReportReason("duplicate_case")
	ReportReasonIncorrectInformation = ReportReason("incorrect_information")
	ReportReasonAnimalWelfare        = ReportReason("animal_welfare")
	ReportReasonOther                = ReportReason("other")
)

func (r ReportReason) Valid() bool {
	switch r {
	case ReportReasonSuspectedScam, ReportReasonDuplicateCase,
		ReportReasonIncorrectInformation, ReportReasonAnimalWelfare,
		ReportReasonOther:
		return true
	}
	return false
}

type ReportStatus string

const (
	ReportStatusOpen      = ReportStatus("open")
	ReportStatusResolved  = ReportStatus("resolved")
	ReportStatusDismissed = ReportStatus("dismissed")
)

// Report is shared with the external moderation queue. Machine-filed reports
// leave ReporterID empty and carry structured JSON evidence in Details.
type Report struct {
	ID         uint64       `gorm:"column:id;primarykey"`
	CaseID     uint64       `gorm:"column:case_id;not null;index"`
	ReporterID string       `gorm:"column:reporter_id;index"`
	Reason     ReportReason `gorm:"column:reason;not null"`
	Details    string       `gorm:"column:details;type:text"`
	Status     ReportStatus `gorm:"column:status;default:open"`
	CreatedAt  time.Time    `gorm:"column:created_at"`
}

func (Report) TableName() string {
	return "report"
}

// AuditLogEntry is append-only; the sole record of why trust state changed.
// Nothing in the engine reads these rows back for decisions.
type AuditLogEntry struct {
	ID uint64 `gorm:"column:id;primarykey"`
	// empty for system-initiated entries
	ActorID      string    `gorm:"column:actor_id;index"`
	EntityType   string    `gorm:"column:entity_type;not null"`
	EntityID     uint64    `gorm:"column:entity_id;not null;index"`
	Action       string    `gorm:"column:action;not null;index"`
	Details      string    `gorm:"column:details"`
	MetadataJSON string    `gorm:"column:metadata_json;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (AuditLogEntry) TableName() string {
	return "audit_log"
}

type Role string

const (
	RoleUser  = Role("user")
	RoleAdmin = Role("admin")
)

// UserAccount is the engine-side projection of an identity: just enough to
// resolve a caller's role and trust tier. The authoritative identity system
// is external.
type UserAccount struct {
	ID                uint64             `gorm:"column:id;primarykey"`
	UserID            string             `gorm:"column:user_id;uniqueIndex;not null"`
	Role              Role               `gorm:"column:role;default:user"`
	VerificationLevel VerificationStatus `gorm:"column:verification_level;default:unverified"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (UserAccount) TableName() string {
	return "user_account"
}
