package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pawlift/pawlift/trust/blobstore"
	"github.com/pawlift/pawlift/trust/countstore"
	"github.com/pawlift/pawlift/trust/models"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("trust")

// Engine decides whether a fundraising case is trustworthy enough to accept
// money. It is the single mutator of case verification and risk state; every
// trust-affecting transition it makes is committed atomically with an audit
// trail entry.
type Engine struct {
	db        *gorm.DB
	Logger    *slog.Logger
	Directory Directory
	Counters  countstore.CountStore
	Blobs     blobstore.BlobStore
	Config    EngineConfig

	// hot read path for donation gating and case rendering; purged on
	// every trust mutation
	trustCache *lru.Cache[uint64, *CaseTrust]
}

type EngineConfig struct {
	// per-endorser daily cap on new endorsements
	DailyEndorsementLimit int
	// per-reporter daily cap on user-filed reports
	DailyReportLimit int
	// qualified endorsements needed for unverified -> community
	PromotionThreshold int
	// trailing window inspected for coordinated endorsement arrival. Tuning
	// parameter: short enough that organic growth (a few spaced-out
	// endorsements) never looks coordinated.
	BrigadeWindow time.Duration
	// distinct trusted endorsers within the window that trigger a brigade
	// finding; must sit strictly above PromotionThreshold
	BrigadeVolumeThreshold int
	// global daily circuit breaker on system-filed reports
	DailySystemReportQuota int
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DailyEndorsementLimit:  10,
		DailyReportLimit:       10,
		PromotionThreshold:     3,
		BrigadeWindow:          time.Hour,
		BrigadeVolumeThreshold: 6,
		DailySystemReportQuota: 50,
	}
}

func NewEngine(db *gorm.DB, dir Directory, counters countstore.CountStore, blobs blobstore.BlobStore, config *EngineConfig) (*Engine, error) {
	if config == nil {
		cfg := DefaultEngineConfig()
		config = &cfg
	}
	if config.BrigadeVolumeThreshold <= config.PromotionThreshold {
		return nil, fmt.Errorf("brigade volume threshold (%d) must exceed promotion threshold (%d)", config.BrigadeVolumeThreshold, config.PromotionThreshold)
	}

	for _, m := range []any{
		models.Case{},
		models.Endorsement{},
		models.BrigadeFinding{},
		models.ImageFingerprint{},
		models.Report{},
		models.AuditLogEntry{},
		models.UserAccount{},
	} {
		if err := db.AutoMigrate(m); err != nil {
			return nil, err
		}
	}

	cache, _ := lru.New[uint64, *CaseTrust](50_000)

	return &Engine{
		db:         db,
		Logger:     slog.Default().With("system", "trust"),
		Directory:  dir,
		Counters:   counters,
		Blobs:      blobs,
		Config:     *config,
		trustCache: cache,
	}, nil
}

// CaseTrust is the read model consumed by donation gating and case-detail
// rendering.
type CaseTrust struct {
	CaseID                 uint64                    `json:"caseId"`
	VerificationStatus     models.VerificationStatus `json:"verificationStatus"`
	RiskLevel              models.RiskLevel          `json:"riskLevel"`
	RiskFlags              []string                  `json:"riskFlags"`
	EndorsedCount          int                       `json:"endorsedCount"`
	QualifiedEndorsedCount int                       `json:"qualifiedEndorsedCount"`
}

func (eng *Engine) GetCaseTrust(ctx context.Context, caseID uint64) (*CaseTrust, error) {
	ctx, span := tracer.Start(ctx, "GetCaseTrust")
	defer span.End()

	if ct, ok := eng.trustCache.Get(caseID); ok {
		return ct, nil
	}

	c, err := eng.getCase(ctx, eng.db, caseID)
	if err != nil {
		return nil, err
	}
	endorsed, qualified, err := eng.endorsementCounts(ctx, eng.db, c)
	if err != nil {
		return nil, err
	}
	ct := &CaseTrust{
		CaseID:                 c.ID,
		VerificationStatus:     c.VerificationStatus,
		RiskLevel:              c.RiskLevel,
		RiskFlags:              append([]string{}, c.RiskFlags...),
		EndorsedCount:          endorsed,
		QualifiedEndorsedCount: qualified,
	}
	eng.trustCache.Add(caseID, ct)
	return ct, nil
}

func (eng *Engine) purgeTrustCache(caseID uint64) {
	eng.trustCache.Remove(caseID)
}

func (eng *Engine) getCase(ctx context.Context, db *gorm.DB, caseID uint64) (*models.Case, error) {
	var c models.Case
	if err := db.WithContext(ctx).First(&c, caseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	return &c, nil
}

// resolvePrincipal maps directory lookups onto the engine's error taxonomy.
func (eng *Engine) resolvePrincipal(ctx context.Context, userID string) (*Principal, error) {
	if userID == "" {
		return nil, ErrAuthenticationRequired
	}
	p, err := eng.Directory.Lookup(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: unknown user %s", ErrAuthenticationRequired, userID)
	}
	return p, nil
}
