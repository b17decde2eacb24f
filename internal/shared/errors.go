package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Network and service errors. ErrTransientNetwork marks failures
	// worth a single retry; ErrRateLimited wraps 429 responses.
	ErrTransientNetwork   = fmt.Errorf("transient network failure")
	ErrRateLimited        = fmt.Errorf("rate limited by backend")
	ErrTimeout            = fmt.Errorf("operation timed out")
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// ErrCacheStorage wraps read/write failures on the resolution cache.
	// Callers fail closed rather than re-resolving silently.
	ErrCacheStorage = fmt.Errorf("cache storage failure")

	// ErrLLMUnavailable marks the query cleaner as unreachable; the
	// pipeline degrades to the manual queue without surfacing it.
	ErrLLMUnavailable = fmt.Errorf("LLM service unavailable")

	// ErrOperatorAbort is returned when the operator ends a review
	// session early. Remaining queue entries are left untouched.
	ErrOperatorAbort = fmt.Errorf("aborted by operator")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
