package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is matched by APIErrors with status 401 or 403.
var ErrUnauthorized = errors.New("dashboard rejected credentials")

// APIError is returned for non-2xx dashboard responses.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("dashboard returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("dashboard returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is(err, ErrUnauthorized) match auth failures.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Temporary reports whether retrying the same call may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
