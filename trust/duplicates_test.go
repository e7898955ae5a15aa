package trust

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/pawlift/pawlift/trust/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dogPHash = "a1b2c3d4e5f60718"
	dogDHash = "0f1e2d3c4b5a6978"
)

func TestIdenticalPerceptualHashesFlagDuplicate(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	original := f.MustCreateCase(t, "owner1")
	copycat := f.MustCreateCase(t, "owner2")

	f.Blobs.Put("blob-original", []byte("original dog photo"))
	f.Blobs.Put("blob-copy", []byte("recompressed dog photo"))

	require.NoError(t, f.Engine.SubmitCaseImages(ctx, original.ID, []ImageInput{
		{StorageID: "blob-original", PHash: dogPHash, DHash: dogDHash},
	}))

	// different bytes, identical perceptual hashes
	require.NoError(t, f.Engine.SubmitCaseImages(ctx, copycat.ID, []ImageInput{
		{StorageID: "blob-copy", PHash: dogPHash, DHash: dogDHash},
	}))

	// only the newer case is flagged
	assert.Equal(models.RiskLow, f.ReloadCase(t, original.ID).RiskLevel)
	cur := f.ReloadCase(t, copycat.ID)
	assert.Equal(models.RiskHigh, cur.RiskLevel)
	assert.True(cur.RiskFlags.Contains(models.RiskFlagPossibleDuplicateImages))

	var report models.Report
	require.NoError(t, f.DB.First(&report, "case_id = ?", copycat.ID).Error)
	assert.Equal(models.ReportReasonDuplicateCase, report.Reason)
	assert.Empty(report.ReporterID)

	var evidence duplicateEvidence
	require.NoError(t, json.Unmarshal([]byte(report.Details), &evidence))
	assert.Equal([]uint64{original.ID}, evidence.MatchedCaseIDs)
	require.Len(t, evidence.Perceptual.Matches, 1)
	m := evidence.Perceptual.Matches[0]
	assert.Equal(original.ID, m.MatchedCaseID)
	assert.Equal("blob-copy", m.SourceStorageID)
	assert.Equal("blob-original", m.MatchedStorageID)
	assert.Equal(0, m.PHashDistance)
	assert.Equal(0, m.DHashDistance)

	var entry models.AuditLogEntry
	require.NoError(t, f.DB.First(&entry, "action = ?", string(ActionDuplicateImagesFlagged)).Error)
	assert.Equal(copycat.ID, entry.EntityID)
}

func TestNearMissHashesDoNotFlag(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	a := f.MustCreateCase(t, "owner1")
	b := f.MustCreateCase(t, "owner2")

	f.Blobs.Put("blob-a", []byte("photo a"))
	f.Blobs.Put("blob-b", []byte("photo b"))

	require.NoError(t, f.Engine.SubmitCaseImages(ctx, a.ID, []ImageInput{
		{StorageID: "blob-a", PHash: dogPHash, DHash: dogDHash},
	}))

	// one hex character off in each hash: similar but not identical
	require.NoError(t, f.Engine.SubmitCaseImages(ctx, b.ID, []ImageInput{
		{StorageID: "blob-b", PHash: "b1b2c3d4e5f60718", DHash: "1f1e2d3c4b5a6978"},
	}))

	cur := f.ReloadCase(t, b.ID)
	assert.Equal(models.RiskLow, cur.RiskLevel)
	assert.False(cur.RiskFlags.Contains(models.RiskFlagPossibleDuplicateImages))

	var reports int64
	assert.NoError(f.DB.Model(&models.Report{}).Where("case_id = ?", b.ID).Count(&reports).Error)
	assert.Equal(int64(0), reports)
}

func TestExactBytesFlagDuplicate(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	a := f.MustCreateCase(t, "owner1")
	b := f.MustCreateCase(t, "owner2")

	photo := []byte("the exact same jpeg bytes")
	f.Blobs.Put("blob-a", photo)
	f.Blobs.Put("blob-b", photo)

	// no perceptual hashes supplied; the byte-level fingerprint still matches
	require.NoError(t, f.Engine.SubmitCaseImages(ctx, a.ID, []ImageInput{{StorageID: "blob-a"}}))
	require.NoError(t, f.Engine.SubmitCaseImages(ctx, b.ID, []ImageInput{{StorageID: "blob-b"}}))

	cur := f.ReloadCase(t, b.ID)
	assert.Equal(models.RiskHigh, cur.RiskLevel)
	assert.True(cur.RiskFlags.Contains(models.RiskFlagPossibleDuplicateImages))

	var report models.Report
	require.NoError(t, f.DB.First(&report, "case_id = ?", b.ID).Error)
	var evidence duplicateEvidence
	require.NoError(t, json.Unmarshal([]byte(report.Details), &evidence))
	assert.Equal([]uint64{a.ID}, evidence.MatchedCaseIDs)
	assert.Empty(evidence.Perceptual.Matches)
}

func TestFingerprintsPersistedWithoutMatch(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	c := f.MustCreateCase(t, "owner1")
	photo := []byte("unique photo")
	f.Blobs.Put("blob-1", photo)

	require.NoError(t, f.Engine.SubmitCaseImages(ctx, c.ID, []ImageInput{
		{StorageID: "blob-1", PHash: "AABB", DHash: "CCDD"},
	}))

	var fp models.ImageFingerprint
	require.NoError(t, f.DB.First(&fp, "case_id = ?", c.ID).Error)
	sum := sha256.Sum256(photo)
	assert.Equal(hex.EncodeToString(sum[:]), fp.SHA256)
	// perceptual hashes are normalized to lower case before storage
	assert.Equal("aabb", fp.PHash)
	assert.Equal("ccdd", fp.DHash)
}

func TestMissingBlobSkipsExactHash(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	a := f.MustCreateCase(t, "owner1")
	b := f.MustCreateCase(t, "owner2")

	// neither blob exists; the exact-hash signal is unavailable but the
	// perceptual signal still fires
	require.NoError(t, f.Engine.SubmitCaseImages(ctx, a.ID, []ImageInput{
		{StorageID: "gone-a", PHash: dogPHash, DHash: dogDHash},
	}))
	require.NoError(t, f.Engine.SubmitCaseImages(ctx, b.ID, []ImageInput{
		{StorageID: "gone-b", PHash: dogPHash, DHash: dogDHash},
	}))

	var fp models.ImageFingerprint
	require.NoError(t, f.DB.First(&fp, "case_id = ?", a.ID).Error)
	assert.Empty(fp.SHA256)

	cur := f.ReloadCase(t, b.ID)
	assert.True(cur.RiskFlags.Contains(models.RiskFlagPossibleDuplicateImages))
}

func TestSameCaseResubmissionDoesNotSelfMatch(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(t)
	c := f.MustCreateCase(t, "owner1")
	f.Blobs.Put("blob-1", []byte("photo"))

	require.NoError(t, f.Engine.SubmitCaseImages(ctx, c.ID, []ImageInput{
		{StorageID: "blob-1", PHash: dogPHash, DHash: dogDHash},
	}))
	require.NoError(t, f.Engine.SubmitCaseImages(ctx, c.ID, []ImageInput{
		{StorageID: "blob-1", PHash: dogPHash, DHash: dogDHash},
	}))

	cur := f.ReloadCase(t, c.ID)
	assert.Equal(models.RiskLow, cur.RiskLevel)
	assert.False(cur.RiskFlags.Contains(models.RiskFlagPossibleDuplicateImages))
}

func TestSubmitImagesCaseNotFound(t *testing.T) {
	f := EngineTestFixture(t)
	err := f.Engine.SubmitCaseImages(context.Background(), 424242, []ImageInput{{StorageID: "x"}})
	assert.ErrorIs(t, err, ErrCaseNotFound)
}
