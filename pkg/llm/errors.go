package llm

import (
	"errors"
	"fmt"
)

// Errors returned by the completion client
var (
	// ErrInvalidRequest is returned before any network activity when the
	// request itself is unusable
	ErrInvalidRequest = errors.New("invalid completion request")

	// ErrAuth is returned when the endpoint rejects the API key (401)
	ErrAuth = errors.New("completion endpoint rejected credentials")

	// ErrEndpoint is returned when the deployment or path does not exist (404)
	ErrEndpoint = errors.New("completion endpoint not found")

	// ErrUpstream is matched by *UpstreamError for every other non-200 status
	ErrUpstream = errors.New("completion endpoint returned an error")

	// ErrConnection covers transport failures and timeouts
	ErrConnection = errors.New("completion endpoint unreachable")

	// ErrDecode is returned when the response is not JSON or has no content
	ErrDecode = errors.New("malformed completion response")
)

// UpstreamError carries the status and body of a failed completion call
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("completion endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Is reports whether target is ErrUpstream
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}
