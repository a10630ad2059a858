package platform

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Code classifies adapter failures so the engine and UI can react
// uniformly regardless of platform.
type Code string

const (
	// CodeAuthRequired: credential missing or expired; user action needed.
	CodeAuthRequired Code = "AUTH_REQUIRED"
	// CodeNotFound: remote entity gone; non-retriable.
	CodeNotFound Code = "NOT_FOUND"
	// CodeRateLimited: HTTP 429; the engine stops the run and reports.
	CodeRateLimited Code = "RATE_LIMITED"
	// CodeNetworkError: transport failure or 5xx; retriable by a later run.
	CodeNetworkError Code = "NETWORK_ERROR"
)

// Error is a classified adapter failure. Adapters never let a raw
// transport error escape without wrapping it in one of these.
type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration // only set for CodeRateLimited, when the remote hints
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s (retry after %s)", e.Code, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the taxonomy code from an error chain, or "" if the
// error is not a classified platform error.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// classifyStatus maps a non-2xx HTTP response to the taxonomy.
func classifyStatus(resp *http.Response, platform string) *Error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{Code: CodeAuthRequired, Message: fmt.Sprintf("%s session expired, reopen the site to re-authenticate", platform)}
	case resp.StatusCode == http.StatusNotFound:
		return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s resource not found", platform)}
	case resp.StatusCode == http.StatusTooManyRequests:
		e := &Error{Code: CodeRateLimited, Message: fmt.Sprintf("%s rate limit hit", platform)}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				e.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return e
	default:
		return &Error{Code: CodeNetworkError, Message: fmt.Sprintf("%s returned HTTP %d", platform, resp.StatusCode)}
	}
}

// transportError wraps a failed round trip.
func transportError(platform string, err error) *Error {
	return &Error{Code: CodeNetworkError, Message: fmt.Sprintf("%s unreachable: %v", platform, err)}
}
