package cloud

import (
	"errors"
	"fmt"
)

// The bridge distinguishes exactly two classes of cloud failures: auth
// failures, which must never be retried, and everything else, which is
// fair game for the retry policy.

// AuthError means the cloud rejected our credentials or token.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cloud: %s: authentication failed", e.Op)
	}
	return fmt.Sprintf("cloud: %s: authentication failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError covers transport failures, remote-service errors and malformed
// responses. The retry policy also uses it to wrap the last cause once its
// attempt budget is exhausted.
type APIError struct {
	Op  string
	Err error
}

func (e *APIError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cloud: %s: request failed", e.Op)
	}
	return fmt.Sprintf("cloud: %s: request failed: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsAPIError reports whether err is (or wraps) an APIError.
func IsAPIError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}
