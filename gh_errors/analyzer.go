package gh_errors

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/tidwall/gjson"
)

// Analysis is the classification verdict for a single error: which taxonomy
// variant it belongs to, whether retrying can help, and any server-mandated
// delay. It is a plain value; the retry engine switches on its fields and
// never re-inspects the concrete error type.
type Analysis struct {
	Type            ErrorType
	Retryable       bool
	RateLimited     bool
	AuthFailure     bool
	SuggestedAction string
	// RetryDelay is the server-provided wait before the next attempt.
	// Zero means the caller's backoff policy applies.
	RetryDelay  time.Duration
	Suggestions []string
}

// Analyze classifies err into the taxonomy. It understands go-github typed
// errors, HTTPError metadata and bare transport errors, and degrades to a
// retryable generic classification when it recognizes nothing (most
// unclassified failures are transient, and the attempt budget caps the cost
// of guessing wrong).
func Analyze(err error) Analysis {
	return AnalyzeAt(err, time.Now())
}

// AnalyzeAt is Analyze with an explicit clock, so callers that need
// reproducible rate-limit delays (tests, mostly) can pin "now".
func AnalyzeAt(err error, now time.Time) Analysis {
	if err == nil {
		return Analysis{}
	}

	// Already taxonomized errors keep their classification.
	var ghErr *Error
	if errors.As(err, &ghErr) {
		a := classifyType(ghErr.Type)
		if ghErr.RetryAfter > 0 {
			a.RetryDelay = ghErr.RetryAfter
		}
		if len(ghErr.Suggestions) > 0 {
			a.Suggestions = append([]string(nil), ghErr.Suggestions...)
		}
		return a
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		a := classifyType(ErrorTypeRateLimit)
		if wait := rateErr.Rate.Reset.Time.Sub(now); wait > 0 {
			a.RetryDelay = wait
		}
		return a
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		a := classifyType(ErrorTypeRateLimit)
		if abuseErr.RetryAfter != nil && *abuseErr.RetryAfter > 0 {
			a.RetryDelay = *abuseErr.RetryAfter
		}
		return a
	}

	var apiErr *github.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return analyzeResponse(apiErr.Response.StatusCode, apiErr.Response.Header, apiErr.Message, now)
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		message := gjson.GetBytes(httpErr.Body, "message").String()
		return analyzeResponse(httpErr.StatusCode, httpErr.Header, message, now)
	}

	if isNetworkError(err) {
		return classifyType(ErrorTypeNetwork)
	}

	// Unrecognized errors stay retryable (fail-open).
	return classifyType(ErrorTypeGeneric)
}

// analyzeResponse classifies by HTTP status, disambiguating 403 permission
// failures from 403 rate limiting via headers and the response message.
func analyzeResponse(statusCode int, header http.Header, message string, now time.Time) Analysis {
	switch {
	case statusCode == http.StatusUnauthorized:
		return classifyType(ErrorTypeAuthentication)

	case statusCode == http.StatusForbidden:
		if rateLimitExhausted(header) || mentionsRateLimit(message) {
			a := classifyType(ErrorTypeRateLimit)
			a.RetryDelay = rateLimitDelay(header, now)
			return a
		}
		// Permission problem; retrying cannot help.
		return classifyType(ErrorTypeAuthentication)

	case statusCode == http.StatusTooManyRequests:
		a := classifyType(ErrorTypeRateLimit)
		a.RetryDelay = rateLimitDelay(header, now)
		return a

	case statusCode == http.StatusNotFound:
		return classifyType(ErrorTypeRepositoryNotFound)

	case statusCode >= 500:
		return classifyType(ErrorTypeServer)

	default:
		return classifyType(ErrorTypeGeneric)
	}
}

// classifyType returns the canonical Analysis for a taxonomy variant.
// Authentication and missing-repository failures are never retryable.
func classifyType(errType ErrorType) Analysis {
	a := Analysis{
		Type:            errType,
		Retryable:       true,
		SuggestedAction: suggestedActions[errType],
		Suggestions:     defaultSuggestions(errType),
	}
	switch errType {
	case ErrorTypeAuthentication:
		a.Retryable = false
		a.AuthFailure = true
	case ErrorTypeRepositoryNotFound:
		a.Retryable = false
	case ErrorTypeRateLimit:
		a.RateLimited = true
	}
	return a
}

var suggestedActions = map[ErrorType]string{
	ErrorTypeAuthentication:     "verify the GitHub token and its scopes",
	ErrorTypeRateLimit:          "wait for the rate limit window to reset",
	ErrorTypeNetwork:            "check connectivity and retry",
	ErrorTypeRepositoryNotFound: "verify the repository name and access",
	ErrorTypeServer:             "retry once GitHub recovers",
	ErrorTypeDiscovery:          "verify the organization and assignment prefix",
	ErrorTypeGeneric:            "retry the operation",
}

// rateLimitExhausted reports whether the response says the quota is spent
func rateLimitExhausted(header http.Header) bool {
	return header.Get("X-RateLimit-Remaining") == "0"
}

func mentionsRateLimit(message string) bool {
	message = strings.ToLower(message)
	return strings.Contains(message, "rate limit") ||
		strings.Contains(message, "secondary rate") ||
		strings.Contains(message, "abuse detection")
}

// rateLimitDelay extracts the server-mandated wait from Retry-After or
// X-RateLimit-Reset. Zero when neither is present or the reset has passed.
func rateLimitDelay(header http.Header, now time.Time) time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if wait := time.Unix(unix, 0).Sub(now); wait > 0 {
				return wait
			}
		}
	}
	return 0
}

var networkKeywords = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"network is unreachable",
	"no such host",
	"timeout",
	"dial tcp",
	"i/o timeout",
}

// isNetworkError checks if an error is a network-related error
func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	message := strings.ToLower(err.Error())
	for _, keyword := range networkKeywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}
