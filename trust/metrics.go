package trust

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var endorsementsProcessedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trust_endorsements_processed_counter",
	Help: "The total number of endorsements recorded",
})

var endorsementsRateLimitedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trust_endorsements_rate_limited_counter",
	Help: "Endorsement attempts rejected by the daily limit",
})

var casesPromotedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trust_cases_promoted_counter",
	Help: "Cases auto-promoted to community verification",
})

var brigadesFlaggedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trust_brigades_flagged_counter",
	Help: "Cases flagged for suspected endorsement brigading",
})

var duplicatesFlaggedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trust_duplicates_flagged_counter",
	Help: "Cases flagged for possible duplicate images",
})

var reportsFiledCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "trust_reports_filed_counter",
	Help: "Moderation reports filed, by reason",
}, []string{"reason"})
