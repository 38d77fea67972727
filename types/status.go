package types

import "errors"

// ProviderStatus classifies a provider's current availability as seen by a
// probe call.
type ProviderStatus string

const (
	StatusOK            ProviderStatus = "ok"
	StatusQuotaExceeded ProviderStatus = "quota_exceeded"
	StatusUsageLimit    ProviderStatus = "usage_limit"
	StatusNoCredits     ProviderStatus = "no_credits"
	StatusMissingKey    ProviderStatus = "missing_key"
	StatusOffline       ProviderStatus = "offline"
	StatusError         ProviderStatus = "error"
)

// StatusFromError derives a provider status from a probe result. It is a pure
// function of the structured error code; message text is never inspected.
func StatusFromError(err error) ProviderStatus {
	if err == nil {
		return StatusOK
	}

	var e *Error
	if !errors.As(err, &e) {
		return StatusError
	}

	switch e.Code {
	case ErrNotConfigured:
		return StatusMissingKey
	case ErrQuotaExceeded:
		return StatusQuotaExceeded
	case ErrRateLimited:
		return StatusUsageLimit
	case ErrNoCredits, ErrForbidden:
		return StatusNoCredits
	case ErrNetwork, ErrUpstreamTimeout:
		return StatusOffline
	default:
		return StatusError
	}
}
