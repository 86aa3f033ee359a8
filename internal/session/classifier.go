package session

import "net/http"

// Verdict is the outcome of classifying a failed platform response.
type Verdict int

const (
	// VerdictOther covers every failure with no recovery path: non-401
	// client errors, server errors, malformed responses.
	VerdictOther Verdict = iota

	// VerdictRetryableAuth marks the first 401 of a request: renew the
	// session and replay once.
	VerdictRetryableAuth

	// VerdictAlreadyRetried marks a 401 on a replayed request. A second
	// renewal would loop, so the session ends instead.
	VerdictAlreadyRetried

	// VerdictRefreshEndpointFailure marks any failure of the renewal
	// endpoint itself. Refreshing in response to a failed refresh can
	// never make progress.
	VerdictRefreshEndpointFailure
)

func (v Verdict) String() string {
	switch v {
	case VerdictRetryableAuth:
		return "retryable_auth"
	case VerdictAlreadyRetried:
		return "already_retried"
	case VerdictRefreshEndpointFailure:
		return "refresh_endpoint_failure"
	default:
		return "other"
	}
}

// Classify maps a failed response to a verdict. It is a pure function and
// the single place that decides whether a 401 may trigger a renewal; the
// rules are ordered, first match wins:
//
//  1. failures on the renewal endpoint are never recoverable
//  2. a 401 on an unreplayed request is recoverable
//  3. a 401 on a replayed request is final
//  4. everything else is an ordinary failure
//
// attempt counts sends of this descriptor so far, starting at zero.
func Classify(d Descriptor, status, attempt int) Verdict {
	switch {
	case d.IsRefresh():
		return VerdictRefreshEndpointFailure
	case status == http.StatusUnauthorized && attempt == 0:
		return VerdictRetryableAuth
	case status == http.StatusUnauthorized:
		return VerdictAlreadyRetried
	default:
		return VerdictOther
	}
}
