// Package brokers abstracts the external broker vendors behind one
// interface with normalized errors and bounded retry.
package brokers

import (
	"errors"
	"fmt"
)

// Kind classifies a broker failure. The HTTP layer maps kinds to status
// codes; vendor-native errors never leak past this package.
type Kind string

const (
	// KindSession - vendor 401/403 or a failed session probe; surfaced as 401
	KindSession Kind = "session"
	// KindRateLimit - vendor 429; surfaced as 429, no retry in this path
	KindRateLimit Kind = "rate_limit"
	// KindTemporary - vendor 5xx, timeout, DNS failure; retried, then 502
	KindTemporary Kind = "temporary"
	// KindPermanent - vendor non-auth 4xx or explicit rejection; surfaced as 400
	KindPermanent Kind = "permanent"
)

// Error is the normalized broker failure.
type Error struct {
	Kind    Kind
	Vendor  string
	Message string
	Err     error // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s broker error (%s): %s: %v", e.Vendor, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s broker error (%s): %s", e.Vendor, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err, defaulting to KindTemporary
// for unclassified errors (network-level failures arrive unwrapped).
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindTemporary
}

// classifyStatus maps a vendor HTTP status to a failure kind.
func classifyStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindSession
	case status == 429:
		return KindRateLimit
	case status >= 500:
		return KindTemporary
	default:
		return KindPermanent
	}
}
