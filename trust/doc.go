// Case trust and integrity engine for the pawlift fundraising platform.
//
// This package (`github.com/pawlift/pawlift/trust`) decides whether an
// animal-rescue fundraising case is trustworthy enough to accept donations.
// It owns the case verification state machine (unverified -> community ->
// clinic), the peer-endorsement ledger with daily rate limits and
// threshold-based auto-promotion, detection of coordinated endorsement
// brigades, and perceptual-duplicate image detection at case submission.
// Every trust-affecting transition is committed together with an append-only
// audit trail entry.
//
// See `cmd/vetter` for the daemon built on this package.
package trust
