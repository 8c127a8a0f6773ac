// Package crawler defines core types shared across subsystems.
package crawler

import (
	"encoding/json"
	"fmt"
)

// Outcome tags the result of one detail fetch.
type Outcome int

// Detail fetch outcomes.
const (
	// OutcomeSuccess is an HTTP 200 carrying a record for the requested id.
	OutcomeSuccess Outcome = iota
	// OutcomeNotFound is a definitive negative: absent, private, invalid or malformed.
	OutcomeNotFound
	// OutcomeTransient covers timeouts, connection failures and non-429 HTTP errors.
	OutcomeTransient
	// OutcomeRateLimited is an HTTP 429.
	OutcomeRateLimited
)

// String implements fmt.Stringer; the values double as metric labels.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTransient:
		return "transient_error"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Detail is the parsed part of a successful detail response.
type Detail struct {
	Name string
	Type string
	// Raw is the detail object exactly as returned by the API.
	Raw json.RawMessage
}

// FetchResult is the tagged result of DetailFetcher.FetchDetail.
type FetchResult struct {
	Outcome  Outcome
	Detail   Detail
	Reason   string
	Attempts int
}

// Success builds a successful FetchResult.
func Success(detail Detail) FetchResult {
	return FetchResult{Outcome: OutcomeSuccess, Detail: detail}
}

// NotFound builds a definitive negative FetchResult.
func NotFound(reason string) FetchResult {
	return FetchResult{Outcome: OutcomeNotFound, Reason: reason}
}

// TransientError builds a retryable failure FetchResult.
func TransientError(reason string) FetchResult {
	return FetchResult{Outcome: OutcomeTransient, Reason: reason}
}

// RateLimited builds an HTTP 429 FetchResult.
func RateLimited() FetchResult {
	return FetchResult{Outcome: OutcomeRateLimited, Reason: "HTTP 429"}
}
