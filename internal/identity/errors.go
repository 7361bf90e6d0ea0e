package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingTokenID is returned when a success response carries no token id
var ErrMissingTokenID = errors.New("identity response has no token id")

// AuthenticationError is returned when the identity provider answers with a
// non-success status.
type AuthenticationError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *AuthenticationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("identity %s failed with status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("identity %s failed with status %d (%s)", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsUnauthorized reports whether the provider rejected the credentials or token
func (e *AuthenticationError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// LookupError is returned when a tenant's admin user cannot be determined
type LookupError struct {
	TenantID string
	Count    int
}

func (e *LookupError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("no admin user found for tenant %s", e.TenantID)
	}
	return fmt.Sprintf("tenant %s has %d admin users, expected exactly one", e.TenantID, e.Count)
}
