package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: Request & common errors
// 20000-20999: Transient errors (retried with backoff by the pipeline)
// 21000-21999: Fatal errors (abort a submission run)

const (
	// ========== Request & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Conflict            ErrorCode = 10004
	NotReady            ErrorCode = 10005
	Backpressure        ErrorCode = 10006

	// ========== Transient Errors (20000-20999) ==========

	NetworkTimeout      ErrorCode = 20000
	ProviderRateLimited ErrorCode = 20001
	ProviderUnavailable ErrorCode = 20002
	ServiceUnavailable  ErrorCode = 20003

	// ========== Fatal Errors (21000-21999) ==========

	InvalidRepoReference ErrorCode = 21000
	RepoUnreachable      ErrorCode = 21001
	AggregationInvariant ErrorCode = 21002
	RunCancelled         ErrorCode = 21003
)

var errorMessages = map[ErrorCode]string{
	Success:              "Success",
	InternalServerError:  "Internal server error",
	InvalidParams:        "Invalid parameters",
	NotFound:             "Resource not found",
	Conflict:             "Resource state conflict",
	NotReady:             "Resource not ready",
	Backpressure:         "Queue at capacity",
	NetworkTimeout:       "Network timeout",
	ProviderRateLimited:  "Provider rate limited",
	ProviderUnavailable:  "Provider unavailable",
	ServiceUnavailable:   "Service unavailable",
	InvalidRepoReference: "Invalid repository reference",
	RepoUnreachable:      "Repository unreachable",
	AggregationInvariant: "Score aggregation invariant violated",
	RunCancelled:         "Cancelled",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// Transient reports whether the code belongs to the retryable range.
func (c ErrorCode) Transient() bool {
	return c >= 20000 && c < 21000
}

// Fatal reports whether the code belongs to the run-aborting range.
func (c ErrorCode) Fatal() bool {
	return c >= 21000 && c < 22000
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case Success:
		return http.StatusOK
	case InvalidParams, InvalidRepoReference:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict, NotReady:
		return http.StatusConflict
	case Backpressure, ProviderRateLimited:
		return http.StatusTooManyRequests
	case ServiceUnavailable, ProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// String returns a snake_case identifier used in API error bodies.
func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "ok"
	case InvalidParams:
		return "bad_request"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case NotReady:
		return "not_ready"
	case Backpressure:
		return "backpressure"
	case NetworkTimeout:
		return "network_timeout"
	case ProviderRateLimited:
		return "provider_rate_limited"
	case ProviderUnavailable:
		return "provider_unavailable"
	case ServiceUnavailable:
		return "service_unavailable"
	case InvalidRepoReference:
		return "invalid_repo_reference"
	case RepoUnreachable:
		return "repo_unreachable"
	case AggregationInvariant:
		return "aggregation_invariant"
	case RunCancelled:
		return "cancelled"
	default:
		return "internal_error"
	}
}
