package trust

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pawlift/pawlift/trust/blobstore"
	"github.com/pawlift/pawlift/trust/models"
	"github.com/pawlift/pawlift/trust/phash"

	"gorm.io/gorm"
)

// ImageInput is one case image as handed over by the upstream media
// pipeline: a storage reference plus optional precomputed perceptual hashes.
// The exact-content hash is computed here, from the stored bytes.
type ImageInput struct {
	StorageID string `json:"storageId"`
	PHash     string `json:"pHash,omitempty"`
	DHash     string `json:"dHash,omitempty"`
}

type perceptualMatch struct {
	MatchedCaseID    uint64 `json:"matchedCaseId"`
	SourceStorageID  string `json:"sourceStorageId"`
	MatchedStorageID string `json:"matchedStorageId"`
	PHashDistance    int    `json:"pHashDistance"`
	DHashDistance    int    `json:"dHashDistance"`
}

type duplicateEvidence struct {
	MatchedCaseIDs []uint64 `json:"matchedCaseIds"`
	Perceptual     struct {
		Matches []perceptualMatch `json:"matches"`
	} `json:"perceptual"`
}

// SubmitCaseImages fingerprints a new case's images and scans them against
// every other case's fingerprints. Fingerprints are always persisted; on a
// match the new case (and only the new case — the prior one is presumed
// original) is flagged high-risk and a duplicate_case report is filed, all
// in one transaction.
//
// Matching is exact: sha256 equality, or Hamming distance zero on pHash or
// dHash. A single differing bit is not a match.
func (eng *Engine) SubmitCaseImages(ctx context.Context, caseID uint64, images []ImageInput) error {
	ctx, span := tracer.Start(ctx, "SubmitCaseImages")
	defer span.End()

	if _, err := eng.getCase(ctx, eng.db, caseID); err != nil {
		return err
	}

	now := time.Now().UTC()
	prints := make([]models.ImageFingerprint, 0, len(images))
	for _, img := range images {
		fp := models.ImageFingerprint{
			CaseID:    caseID,
			StorageID: img.StorageID,
			PHash:     strings.ToLower(img.PHash),
			DHash:     strings.ToLower(img.DHash),
			CreatedAt: now,
		}
		blob, err := eng.Blobs.Fetch(ctx, img.StorageID)
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			// skip exact hashing for this image only; perceptual hashes
			// still participate in matching
			eng.Logger.Warn("blob not found, skipping exact hash", "caseID", caseID, "storageID", img.StorageID)
		} else if err != nil {
			return fmt.Errorf("fetching blob %s: %w", img.StorageID, err)
		} else {
			sum := sha256.Sum256(blob)
			fp.SHA256 = hex.EncodeToString(sum[:])
		}
		prints = append(prints, fp)
	}

	txErr := eng.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// persisted regardless of match outcome
		for i := range prints {
			if err := tx.Create(&prints[i]).Error; err != nil {
				return err
			}
		}

		candidates, err := matchCandidates(tx, caseID, prints)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		var evidence duplicateEvidence
		matchedCases := make(map[uint64]bool)
		for _, fp := range prints {
			for _, cand := range candidates {
				exact := fp.SHA256 != "" && fp.SHA256 == cand.SHA256
				perceptual := phash.Equal(fp.PHash, cand.PHash) || phash.Equal(fp.DHash, cand.DHash)
				if !exact && !perceptual {
					continue
				}
				matchedCases[cand.CaseID] = true
				if perceptual {
					evidence.Perceptual.Matches = append(evidence.Perceptual.Matches, perceptualMatch{
						MatchedCaseID:    cand.CaseID,
						SourceStorageID:  fp.StorageID,
						MatchedStorageID: cand.StorageID,
						PHashDistance:    hashDistance(fp.PHash, cand.PHash),
						DHashDistance:    hashDistance(fp.DHash, cand.DHash),
					})
				}
			}
		}
		if len(matchedCases) == 0 {
			return nil
		}
		for id := range matchedCases {
			evidence.MatchedCaseIDs = append(evidence.MatchedCaseIDs, id)
		}
		sort.Slice(evidence.MatchedCaseIDs, func(i, j int) bool {
			return evidence.MatchedCaseIDs[i] < evidence.MatchedCaseIDs[j]
		})

		return eng.flagDuplicate(ctx, tx, caseID, &evidence)
	})
	if txErr != nil {
		return txErr
	}

	eng.purgeTrustCache(caseID)
	return nil
}

// matchCandidates pulls other cases' fingerprints that could match any of
// the new prints. Only zero-distance matches count, so indexed equality
// lookups are sufficient; no full scan of the fingerprint table.
func matchCandidates(tx *gorm.DB, caseID uint64, prints []models.ImageFingerprint) ([]models.ImageFingerprint, error) {
	var shas, phashes, dhashes []string
	for _, fp := range prints {
		if fp.SHA256 != "" {
			shas = append(shas, fp.SHA256)
		}
		if fp.PHash != "" {
			phashes = append(phashes, fp.PHash)
		}
		if fp.DHash != "" {
			dhashes = append(dhashes, fp.DHash)
		}
	}
	if len(shas) == 0 && len(phashes) == 0 && len(dhashes) == 0 {
		return nil, nil
	}

	cond := tx.Session(&gorm.Session{NewDB: true})
	match := cond.Where("1 = 0")
	if len(shas) > 0 {
		match = match.Or("sha256 IN ?", shas)
	}
	if len(phashes) > 0 {
		match = match.Or("phash IN ?", phashes)
	}
	if len(dhashes) > 0 {
		match = match.Or("dhash IN ?", dhashes)
	}

	var candidates []models.ImageFingerprint
	err := tx.Where("case_id <> ?", caseID).Where(match).Find(&candidates).Error
	return candidates, err
}

func (eng *Engine) flagDuplicate(ctx context.Context, tx *gorm.DB, caseID uint64, evidence *duplicateEvidence) error {
	var c models.Case
	if err := tx.First(&c, caseID).Error; err != nil {
		return err
	}
	c.RiskLevel = models.RiskHigh
	c.RiskFlags = c.RiskFlags.Add(models.RiskFlagPossibleDuplicateImages)
	if err := tx.Model(&models.Case{}).Where("id = ?", c.ID).Updates(map[string]any{
		"risk_level": c.RiskLevel,
		"risk_flags": c.RiskFlags,
	}).Error; err != nil {
		return err
	}

	detail, err := json.Marshal(evidence)
	if err != nil {
		return err
	}
	if _, err := eng.fileSystemReport(ctx, tx, caseID, models.ReportReasonDuplicateCase, string(detail)); err != nil {
		return err
	}
	if err := appendAudit(tx, "", caseID, ActionDuplicateImagesFlagged,
		fmt.Sprintf("matched %d existing case(s)", len(evidence.MatchedCaseIDs)), string(detail)); err != nil {
		return err
	}

	duplicatesFlaggedCounter.Inc()
	eng.Logger.Warn("possible duplicate images flagged", "caseID", caseID, "matchedCases", evidence.MatchedCaseIDs)
	return nil
}

// hashDistance is the bit distance between two hex hashes, or -1 when one
// side is missing or malformed.
func hashDistance(a, b string) int {
	if a == "" || b == "" {
		return -1
	}
	d, err := phash.HammingDistance(a, b)
	if err != nil {
		return -1
	}
	return d
}
