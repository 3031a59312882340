package emotion

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common conditions.
var (
	// ErrRateLimited is returned when the classifier refuses further requests.
	ErrRateLimited = errors.New("emotion: rate limited")

	// ErrNotConnected is returned when sending on a client that is not connected.
	ErrNotConnected = errors.New("emotion: not connected")

	// ErrConnectionLost is reported when the classifier connection drops.
	ErrConnectionLost = errors.New("emotion: connection lost")
)

// RateLimitedCode is the error code the classifier uses for quota exhaustion.
const RateLimitedCode = "rate_limited"

// APIError represents an error reported by the classifier, either as an HTTP
// status at handshake or as an error message on the stream.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.StatusCode != 0:
		return fmt.Sprintf("emotion: API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	case e.Code != "":
		return fmt.Sprintf("emotion: API error (%s): %s", e.Code, e.Message)
	default:
		return fmt.Sprintf("emotion: API error %d: %s", e.StatusCode, e.Message)
	}
}

// IsRateLimited returns true for HTTP 429 or a rate_limited error code.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == RateLimitedCode
}

// IsUnauthorized returns true if this is an authentication error (HTTP 401).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// Is lets errors.Is(err, ErrRateLimited) match rate-limit API errors.
func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e.IsRateLimited()
}
