package esi

import (
	"errors"
	"fmt"
)

// ErrDataIntegrity marks a well-formed response that carried no data.
var ErrDataIntegrity = errors.New("esi: response carried no data")

// AuthError is returned when the bearer token could not be obtained or refreshed.
// It is fatal to the cycle that observes it.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("esi: token refresh failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError is a non-200 response from the upstream API.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("esi: %s returned %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("esi: %s returned %d: %s", e.Operation, e.StatusCode, e.Message)
}

// IsAuthError reports whether err is or wraps an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
