package trust

import (
	"context"
	"fmt"
	"testing"

	"github.com/pawlift/pawlift/trust/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVerificationAdminOnly(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	c := f.MustCreateCase(t, "owner1")
	f.MustInsertUser(t, "helper1", models.RoleUser, models.VerificationClinic)

	_, err := f.Engine.SetVerificationStatus(ctx, "nobody", c.ID, models.VerificationClinic, "")
	assert.ErrorIs(err, ErrAuthenticationRequired)

	_, err = f.Engine.SetVerificationStatus(ctx, "helper1", c.ID, models.VerificationClinic, "")
	assert.ErrorIs(err, ErrAdminRequired)
	assert.ErrorIs(err, ErrPermissionDenied)

	cur := f.ReloadCase(t, c.ID)
	assert.Equal(models.VerificationUnverified, cur.VerificationStatus)
}

func TestSetVerificationInvalidStatus(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	c := f.MustCreateCase(t, "owner1")
	f.MustInsertUser(t, "admin1", models.RoleAdmin, models.VerificationClinic)

	_, err := f.Engine.SetVerificationStatus(ctx, "admin1", c.ID, "platinum", "")
	assert.ErrorIs(err, ErrInvalidStatus)
	assert.ErrorIs(err, ErrValidation)
}

func TestSetVerificationUpgrade(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	c := f.MustCreateCase(t, "owner1")
	f.MustInsertUser(t, "admin1", models.RoleAdmin, models.VerificationClinic)

	res, err := f.Engine.SetVerificationStatus(ctx, "admin1", c.ID, models.VerificationClinic, "")
	require.NoError(t, err)
	assert.True(res.OK)
	assert.Equal(models.VerificationClinic, res.Status)
	assert.False(res.Revoked)

	cur := f.ReloadCase(t, c.ID)
	assert.Equal(models.VerificationClinic, cur.VerificationStatus)

	var entry models.AuditLogEntry
	require.NoError(t, f.DB.First(&entry, "action = ?", string(ActionVerificationSet)).Error)
	assert.Equal("admin1", entry.ActorID)
	assert.Equal(c.ID, entry.EntityID)
	assert.Equal("unverified -> clinic", entry.Details)
}

func TestRevocationRequiresReason(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	c := f.MustCreateCase(t, "owner1")
	f.MustInsertUser(t, "admin1", models.RoleAdmin, models.VerificationClinic)

	_, err := f.Engine.SetVerificationStatus(ctx, "admin1", c.ID, models.VerificationClinic, "")
	require.NoError(t, err)

	// downgrade without notes is rejected and leaves the case untouched
	_, err = f.Engine.SetVerificationStatus(ctx, "admin1", c.ID, models.VerificationCommunity, "")
	assert.ErrorIs(err, ErrRevocationReasonRequired)
	assert.ErrorIs(err, ErrValidation)
	assert.Equal(models.VerificationClinic, f.ReloadCase(t, c.ID).VerificationStatus)

	res, err := f.Engine.SetVerificationStatus(ctx, "admin1", c.ID, models.VerificationCommunity, "clinic paperwork withdrawn")
	require.NoError(t, err)
	assert.True(res.Revoked)
	assert.Equal(models.VerificationCommunity, f.ReloadCase(t, c.ID).VerificationStatus)

	var entry models.AuditLogEntry
	require.NoError(t, f.DB.First(&entry, "action = ?", string(ActionVerificationRevoked)).Error)
	assert.Equal("clinic -> community", entry.Details)
	assert.Contains(entry.MetadataJSON, "clinic paperwork withdrawn")
}

func TestSetVerificationSameTierNotRevocation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	c := f.MustCreateCase(t, "owner1")
	f.MustInsertUser(t, "admin1", models.RoleAdmin, models.VerificationClinic)

	// setting the current tier again is a plain set, no reason needed
	res, err := f.Engine.SetVerificationStatus(ctx, "admin1", c.ID, models.VerificationUnverified, "")
	require.NoError(t, err)
	assert.False(res.Revoked)
}

func TestClearRiskFlag(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	c := f.MustCreateCase(t, "owner1")
	f.MustInsertUser(t, "admin1", models.RoleAdmin, models.VerificationClinic)
	f.MustInsertUser(t, "helper1", models.RoleUser, models.VerificationCommunity)

	require.NoError(t, f.DB.Model(&models.Case{}).Where("id = ?", c.ID).Updates(map[string]any{
		"risk_level": models.RiskHigh,
		"risk_flags": models.RiskFlagList{models.RiskFlagEndorsementBrigading, models.RiskFlagPossibleDuplicateImages},
	}).Error)

	err := f.Engine.ClearRiskFlag(ctx, "helper1", c.ID, models.RiskFlagEndorsementBrigading, "")
	assert.ErrorIs(err, ErrAdminRequired)

	// clearing one of two flags drops risk to medium
	require.NoError(t, f.Engine.ClearRiskFlag(ctx, "admin1", c.ID, models.RiskFlagEndorsementBrigading, "reviewed"))
	cur := f.ReloadCase(t, c.ID)
	assert.Equal(models.RiskMedium, cur.RiskLevel)
	assert.False(cur.RiskFlags.Contains(models.RiskFlagEndorsementBrigading))
	assert.True(cur.RiskFlags.Contains(models.RiskFlagPossibleDuplicateImages))

	// clearing the last flag drops risk to low
	require.NoError(t, f.Engine.ClearRiskFlag(ctx, "admin1", c.ID, models.RiskFlagPossibleDuplicateImages, "confirmed distinct"))
	cur = f.ReloadCase(t, c.ID)
	assert.Equal(models.RiskLow, cur.RiskLevel)
	assert.Empty(cur.RiskFlags)

	// clearing an absent flag is a no-op and writes no audit entry
	require.NoError(t, f.Engine.ClearRiskFlag(ctx, "admin1", c.ID, models.RiskFlagEndorsementBrigading, ""))
	var audits int64
	assert.NoError(f.DB.Model(&models.AuditLogEntry{}).Where("action = ?", string(ActionRiskFlagCleared)).Count(&audits).Error)
	assert.Equal(int64(2), audits)
}

func TestPromoteBlockedByBrigadeFlag(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	c := f.MustCreateCase(t, "owner1")
	for i := 1; i <= 3; i++ {
		f.MustInsertUser(t, fmt.Sprintf("helper%d", i), models.RoleUser, models.VerificationCommunity)
	}
	require.NoError(t, f.DB.Model(&models.Case{}).Where("id = ?", c.ID).Updates(map[string]any{
		"risk_level": models.RiskHigh,
		"risk_flags": models.RiskFlagList{models.RiskFlagEndorsementBrigading},
	}).Error)

	for i := 1; i <= 3; i++ {
		res, err := f.Engine.EndorseCase(ctx, fmt.Sprintf("helper%d", i), c.ID)
		require.NoError(t, err)
		assert.False(res.PromotedToCommunity)
		assert.Equal(0, res.QualifiedEndorsedCount)
	}
	assert.Equal(models.VerificationUnverified, f.ReloadCase(t, c.ID).VerificationStatus)
}

func TestGetCaseTrust(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	c := f.MustCreateCase(t, "owner1")
	f.MustInsertUser(t, "helper1", models.RoleUser, models.VerificationCommunity)

	trust, err := f.Engine.GetCaseTrust(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(models.VerificationUnverified, trust.VerificationStatus)
	assert.Equal(models.RiskLow, trust.RiskLevel)
	assert.Equal(0, trust.EndorsedCount)

	_, err = f.Engine.EndorseCase(ctx, "helper1", c.ID)
	require.NoError(t, err)

	// the endorsement purges the cached read model
	trust, err = f.Engine.GetCaseTrust(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(1, trust.EndorsedCount)
	assert.Equal(1, trust.QualifiedEndorsedCount)

	_, err = f.Engine.GetCaseTrust(ctx, 99999)
	assert.ErrorIs(err, ErrCaseNotFound)
}
