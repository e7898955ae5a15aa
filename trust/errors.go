package trust

import (
	"errors"
	"fmt"
)

// Category sentinels. Operation-specific errors below wrap one of these, so
// callers can match either the category (for HTTP status mapping) or the
// specific failure.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrValidation             = errors.New("validation failed")
	ErrRateLimitExceeded      = errors.New("rate limit exceeded")
	ErrCaseNotFound           = errors.New("case not found")
)

var (
	ErrEndorserNotTrusted       = fmt.Errorf("%w: Trusted user endorsement required", ErrPermissionDenied)
	ErrAdminRequired            = fmt.Errorf("%w: admin role required", ErrPermissionDenied)
	ErrDailyEndorsementLimit    = fmt.Errorf("%w: Daily endorsement limit reached", ErrRateLimitExceeded)
	ErrDailyReportLimit         = fmt.Errorf("%w: Daily report limit reached", ErrRateLimitExceeded)
	ErrRevocationReasonRequired = fmt.Errorf("%w: Revocation reason is required", ErrValidation)
	ErrInvalidStatus            = fmt.Errorf("%w: unknown verification status", ErrValidation)
	ErrInvalidReportReason      = fmt.Errorf("%w: unknown report reason", ErrValidation)
)
