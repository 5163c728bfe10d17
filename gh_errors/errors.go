// Package gh_errors defines the error taxonomy every GitHub-originated
// failure in classroom-pilot is surfaced as, and the analyzer that maps raw
// errors onto it.
package gh_errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrorType identifies the category of a GitHub API failure.
type ErrorType string

const (
	ErrorTypeGeneric            ErrorType = "generic"
	ErrorTypeAuthentication     ErrorType = "authentication"
	ErrorTypeRateLimit          ErrorType = "rate_limit"
	ErrorTypeRepositoryNotFound ErrorType = "repository_not_found"
	ErrorTypeNetwork            ErrorType = "network"
	ErrorTypeServer             ErrorType = "server_error"
	ErrorTypeDiscovery          ErrorType = "discovery"
)

// Error is the structured, categorized form of a GitHub API failure.
// The underlying cause is never discarded; Unwrap exposes it so errors.Is
// and errors.As keep working through the wrap.
type Error struct {
	Type        ErrorType
	Message     string
	Context     map[string]string
	Cause       error
	Suggestions []string
	// RetryAfter is the server-provided wait before the next attempt.
	// Zero means no hint was given. Only rate limit errors carry it.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if ctx := formatContext(e.Context); ctx != "" {
		b.WriteString(" [")
		b.WriteString(ctx)
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext returns e with the given context field set
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// New creates a taxonomy error of the given type, carrying the variant's
// default recovery suggestions.
func New(errType ErrorType, message string, cause error, context map[string]string) *Error {
	return &Error{
		Type:        errType,
		Message:     message,
		Context:     cloneContext(context),
		Cause:       cause,
		Suggestions: defaultSuggestions(errType),
	}
}

// NewAuthenticationError creates an authentication failure (never retried)
func NewAuthenticationError(message string, cause error, context map[string]string) *Error {
	return New(ErrorTypeAuthentication, message, cause, context)
}

// NewRateLimitError creates a rate limit failure. retryAfter is the
// server-provided wait, zero when the server gave none.
func NewRateLimitError(message string, retryAfter time.Duration, cause error, context map[string]string) *Error {
	e := New(ErrorTypeRateLimit, message, cause, context)
	e.RetryAfter = retryAfter
	return e
}

// NewRepositoryNotFoundError creates a missing-repository failure (never retried)
func NewRepositoryNotFoundError(message string, cause error, context map[string]string) *Error {
	return New(ErrorTypeRepositoryNotFound, message, cause, context)
}

// NewNetworkError creates a transient connectivity failure
func NewNetworkError(message string, cause error, context map[string]string) *Error {
	return New(ErrorTypeNetwork, message, cause, context)
}

// NewServerError creates a transient GitHub-side failure
func NewServerError(message string, cause error, context map[string]string) *Error {
	return New(ErrorTypeServer, message, cause, context)
}

// NewDiscoveryError creates a repository-discovery failure
func NewDiscoveryError(message string, cause error, context map[string]string) *Error {
	return New(ErrorTypeDiscovery, message, cause, context)
}

// FromError wraps an arbitrary error into the appropriate taxonomy variant,
// classifying it with the analyzer. Existing taxonomy errors are returned
// as-is with the extra context merged in (existing keys win).
func FromError(err error, context map[string]string) *Error {
	if err == nil {
		return nil
	}

	var ghErr *Error
	if errors.As(err, &ghErr) {
		for k, v := range context {
			if _, ok := ghErr.Context[k]; !ok {
				ghErr.WithContext(k, v)
			}
		}
		return ghErr
	}

	analysis := Analyze(err)
	e := New(analysis.Type, headlineFor(analysis.Type, err), err, context)
	e.Suggestions = analysis.Suggestions
	e.RetryAfter = analysis.RetryDelay
	return e
}

// IsType reports whether err is (or wraps) a taxonomy error of the given type
func IsType(err error, errType ErrorType) bool {
	var ghErr *Error
	return errors.As(err, &ghErr) && ghErr.Type == errType
}

// IsAuthentication reports whether err is an authentication failure
func IsAuthentication(err error) bool {
	return IsType(err, ErrorTypeAuthentication)
}

// IsRateLimit reports whether err is a rate limit failure
func IsRateLimit(err error) bool {
	return IsType(err, ErrorTypeRateLimit)
}

// IsNotFound reports whether err is a missing-repository failure
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeRepositoryNotFound)
}

// HTTPError carries raw response metadata for callers that talk to the API
// without the go-github client. The analyzer reads its status, headers and
// body; everything is optional except the status code.
type HTTPError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewHTTPError creates an HTTPError from raw response metadata
func NewHTTPError(statusCode int, header http.Header, body []byte) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Header:     header,
		Body:       body,
	}
}

func (h *HTTPError) Error() string {
	if msg := gjson.GetBytes(h.Body, "message").String(); msg != "" {
		return fmt.Sprintf("github: HTTP %d: %s", h.StatusCode, msg)
	}
	return fmt.Sprintf("github: HTTP %d", h.StatusCode)
}

// headlineFor picks the wrapped error's human-readable message for a variant
func headlineFor(errType ErrorType, cause error) string {
	switch errType {
	case ErrorTypeAuthentication:
		return "GitHub rejected the credentials"
	case ErrorTypeRateLimit:
		return "GitHub API rate limit exceeded"
	case ErrorTypeRepositoryNotFound:
		return "repository does not exist or is not accessible"
	case ErrorTypeNetwork:
		return "network failure talking to GitHub"
	case ErrorTypeServer:
		return "GitHub returned a server error"
	case ErrorTypeDiscovery:
		return "repository discovery failed"
	default:
		return cause.Error()
	}
}

// recoverySuggestions holds the per-variant guidance surfaced to users.
// The generic variant keeps only non-specific guidance on purpose.
var recoverySuggestions = map[ErrorType][]string{
	ErrorTypeAuthentication: {
		"Verify the GitHub token is valid and has not expired",
		"Check that the token has the required scopes (repo, admin:org)",
		"Regenerate the token and update your configuration",
	},
	ErrorTypeRateLimit: {
		"Wait for the rate limit to reset before retrying",
		"Authenticate with a different token",
		"Batch requests to reduce API usage",
	},
	ErrorTypeNetwork: {
		"Check your network connection",
		"Retry once connectivity is restored",
	},
	ErrorTypeRepositoryNotFound: {
		"Check the repository name and organization",
		"Verify the token has access to the repository",
	},
	ErrorTypeServer: {
		"Retry after a short wait; GitHub may be temporarily unavailable",
		"Check https://www.githubstatus.com for ongoing incidents",
	},
	ErrorTypeDiscovery: {
		"Verify the organization name and assignment prefix",
		"Check that student repositories have been created",
	},
	ErrorTypeGeneric: {
		"Retry the operation",
		"Inspect the underlying error for details",
	},
}

func defaultSuggestions(errType ErrorType) []string {
	suggestions, ok := recoverySuggestions[errType]
	if !ok {
		suggestions = recoverySuggestions[ErrorTypeGeneric]
	}
	return append([]string(nil), suggestions...)
}

func cloneContext(context map[string]string) map[string]string {
	if len(context) == 0 {
		return nil
	}
	clone := make(map[string]string, len(context))
	for k, v := range context {
		clone[k] = v
	}
	return clone
}

// formatContext renders context fields as "k=v, k=v" in key order
func formatContext(context map[string]string) string {
	if len(context) == 0 {
		return ""
	}
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+context[k])
	}
	return strings.Join(pairs, ", ")
}
