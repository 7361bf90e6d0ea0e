package identity

import (
	"context"

	"github.com/systmms/idrotate/internal/secure"
)

// PasswordMinter authenticates with a username and password, optionally
// scoped to a named domain.
type PasswordMinter struct {
	api      *API
	username string
	password *secure.SecureBuffer
	domain   string
}

// NewPasswordMinter creates a minter for direct password authentication
func NewPasswordMinter(api *API, username string, password *secure.SecureBuffer, domain string) *PasswordMinter {
	return &PasswordMinter{
		api:      api,
		username: username,
		password: password,
		domain:   domain,
	}
}

// Mint performs one password authentication
func (m *PasswordMinter) Mint(ctx context.Context) (Credential, error) {
	return m.api.PasswordAuth(ctx, m.username, m.password, m.domain)
}

// Variant returns Direct
func (m *PasswordMinter) Variant() Variant {
	return Direct
}

// NewDirectClient creates a caching client that authenticates with a
// username and password.
func NewDirectClient(api *API, username string, password *secure.SecureBuffer, domain string, opts ...Option) *Client {
	return NewClient(NewPasswordMinter(api, username, password, domain), api, opts...)
}
