package trust

import (
	"sort"
	"time"

	"github.com/pawlift/pawlift/trust/models"
)

// BrigadeSignal is one coordinated-endorsement finding: the distinct trusted
// endorsers that reached the case within the trailing window.
type BrigadeSignal struct {
	EndorserIDs []string
	Window      time.Duration
}

// DetectBrigade inspects a case's endorsement ledger for coordinated
// arrival: too many distinct trusted endorsers within a short trailing
// window. Pure with respect to its inputs; stickiness lives on the case's
// risk-flag set, not here. Returns nil when no signal fires.
func DetectBrigade(endorsements []models.Endorsement, now time.Time, window time.Duration, volumeThreshold int) *BrigadeSignal {
	cutoff := now.Add(-window)
	seen := make(map[string]bool)
	var ids []string
	for _, e := range endorsements {
		if !e.EndorserTrustLevel.Trusted() {
			continue
		}
		if e.CreatedAt.Before(cutoff) {
			continue
		}
		if seen[e.EndorserID] {
			continue
		}
		seen[e.EndorserID] = true
		ids = append(ids, e.EndorserID)
	}
	if volumeThreshold <= 0 || len(ids) < volumeThreshold {
		return nil
	}
	sort.Strings(ids)
	return &BrigadeSignal{EndorserIDs: ids, Window: window}
}
