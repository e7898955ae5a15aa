// Package countstore provides keyed, period-bucketed counters used for daily
// abuse quotas (endorsement and report limits) and system circuit breakers.
//
// The CheckAndIncrement primitive is atomic in every backend: two concurrent
// callers at the limit boundary can never both pass the check.
package countstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodHour  = "hour"
)

// ErrLimitExceeded is returned by CheckAndIncrement when the counter is
// already at the limit. The counter is not incremented in that case.
var ErrLimitExceeded = errors.New("counter limit reached")

type CountStore interface {
	GetCount(ctx context.Context, name, val, period string) (int, error)
	Increment(ctx context.Context, name, val string) error
	// CheckAndIncrement increments the counter for the given period bucket
	// and returns the new count, unless the count has already reached
	// limit, in which case it fails with ErrLimitExceeded without
	// incrementing.
	CheckAndIncrement(ctx context.Context, name, val, period string, limit int) (int, error)
}

// UTCDay is the epoch-day number (floor of unix millis over 86,400,000),
// the per-day quota key convention used across the platform.
func UTCDay(t time.Time) int64 {
	return t.UnixMilli() / 86_400_000
}

func periodBucket(name, val, period string) string {
	switch period {
	case PeriodTotal:
		return fmt.Sprintf("%s/%s", name, val)
	case PeriodDay:
		return fmt.Sprintf("%s/%s/%d", name, val, UTCDay(time.Now()))
	case PeriodHour:
		return fmt.Sprintf("%s/%s/h%d", name, val, time.Now().UnixMilli()/3_600_000)
	default:
		slog.Warn("unhandled counter period", "period", period)
		return fmt.Sprintf("%s/%s", name, val)
	}
}
