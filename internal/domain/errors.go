package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredential means no token record exists for the user.
	ErrNoCredential = errors.New("no credential stored")
	// ErrRefreshFailed means the access token is expired and could not be
	// exchanged; the stored record is left untouched.
	ErrRefreshFailed = errors.New("credential refresh failed")
	// ErrPastTime rejects scheduling a job at or before the current time.
	ErrPastTime = errors.New("fire time must be in the future")
	// ErrInvalidWindow rejects fetch windows outside 1..365 days.
	ErrInvalidWindow = errors.New("fetch window must be between 1 and 365 days")
	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("not found")
)

// ValidateWindow checks a fetch window in days against the allowed range.
func ValidateWindow(days int) error {
	if days < 1 || days > 365 {
		return fmt.Errorf("%w: got %d", ErrInvalidWindow, days)
	}
	return nil
}

// FetchReason tags why an event fetch failed.
type FetchReason string

const (
	FetchNoValidCredential FetchReason = "no_valid_credential"
	FetchProviderError     FetchReason = "provider_error"
	FetchTransportError    FetchReason = "transport_error"
)

// FetchError is a terminal failure of one event fetch; no retries happen
// behind it.
type FetchError struct {
	Reason FetchReason
	Status int    // provider HTTP status, when Reason is provider_error
	Body   string // truncated provider response body
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Reason {
	case FetchProviderError:
		return fmt.Sprintf("event fetch: provider returned %d: %s", e.Status, e.Body)
	case FetchNoValidCredential:
		return fmt.Sprintf("event fetch: no valid credential: %v", e.Err)
	default:
		return fmt.Sprintf("event fetch: %s: %v", e.Reason, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// DeliveryReason tags why a delivery attempt failed.
type DeliveryReason string

const (
	// DeliveryInsufficientScope means the recipient must re-grant send
	// permission; refreshing the token will not help.
	DeliveryInsufficientScope DeliveryReason = "insufficient_scope"
	DeliveryTransportTimeout  DeliveryReason = "transport_timeout"
	DeliveryProviderError     DeliveryReason = "provider_error"
	DeliveryUnexpected        DeliveryReason = "unexpected"
)

// DeliveryError is the outcome of one failed delivery attempt. Its message
// is written verbatim to the audit log.
type DeliveryError struct {
	Reason DeliveryReason
	Msg    string
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("delivery: %s: %s", e.Reason, e.Msg)
	}
	return fmt.Sprintf("delivery: %s: %v", e.Reason, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
