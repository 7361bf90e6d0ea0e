package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/systmms/idrotate/internal/logging"
	"github.com/systmms/idrotate/internal/secure"
)

// DefaultImpersonationTTL is the lifetime requested for impersonation tokens
const DefaultImpersonationTTL = 10800 * time.Second

// AdminSelection decides which admin user to impersonate when a tenant has
// more than one.
type AdminSelection string

const (
	// AdminFirst takes the first user the provider returns
	AdminFirst AdminSelection = "first"
	// AdminUnique fails with a LookupError unless exactly one admin exists
	AdminUnique AdminSelection = "unique"
)

// ParseAdminSelection parses a selection policy. Empty selects AdminFirst.
func ParseAdminSelection(s string) (AdminSelection, error) {
	switch AdminSelection(strings.ToLower(strings.TrimSpace(s))) {
	case "", AdminFirst:
		return AdminFirst, nil
	case AdminUnique:
		return AdminUnique, nil
	default:
		return "", fmt.Errorf("unknown admin selection %q (valid: first, unique)", s)
	}
}

// Impersonator mints tokens on behalf of tenant admin users using an
// administrative token from source. It never changes the source's cache.
type Impersonator struct {
	source    TokenSource
	api       *API
	selection AdminSelection
	ttl       time.Duration
	logger    *logging.Logger
}

// ImpersonatorOption configures an Impersonator
type ImpersonatorOption func(*Impersonator)

// WithAdminSelection sets the admin selection policy
func WithAdminSelection(s AdminSelection) ImpersonatorOption {
	return func(i *Impersonator) {
		i.selection = s
	}
}

// WithImpersonationTTL overrides DefaultImpersonationTTL
func WithImpersonationTTL(ttl time.Duration) ImpersonatorOption {
	return func(i *Impersonator) {
		i.ttl = ttl
	}
}

// WithImpersonatorLogger sets the logger
func WithImpersonatorLogger(l *logging.Logger) ImpersonatorOption {
	return func(i *Impersonator) {
		i.logger = l
	}
}

// NewImpersonator creates an Impersonator
func NewImpersonator(source TokenSource, api *API, opts ...ImpersonatorOption) *Impersonator {
	i := &Impersonator{
		source:    source,
		api:       api,
		selection: AdminFirst,
		ttl:       DefaultImpersonationTTL,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// NewImpersonationClient builds the administrative client used for
// impersonation. It always authenticates in the Rackspace domain.
func NewImpersonationClient(api *API, username string, password *secure.SecureBuffer, opts ...Option) *Client {
	return NewDirectClient(api, username, password, DomainRackspace, opts...)
}

// AdminUser returns the admin username to impersonate for tenantID
func (i *Impersonator) AdminUser(ctx context.Context, tenantID string) (string, error) {
	token, err := i.source.Token(ctx)
	if err != nil {
		return "", err
	}

	users, err := i.api.AdminUsers(ctx, token, tenantID)
	if err != nil {
		i.logger.Error("Could not get admin username for tenant %s: %v", tenantID, err)
		return "", err
	}
	i.logger.Debug("Tenant %s has %d admin user(s)", tenantID, len(users))

	if len(users) == 0 {
		return "", &LookupError{TenantID: tenantID}
	}
	if i.selection == AdminUnique && len(users) > 1 {
		return "", &LookupError{TenantID: tenantID, Count: len(users)}
	}
	return users[0], nil
}

// Impersonate mints an impersonation credential for tenantID's admin user
func (i *Impersonator) Impersonate(ctx context.Context, tenantID string) (Credential, error) {
	admin, err := i.AdminUser(ctx, tenantID)
	if err != nil {
		return Credential{}, err
	}

	token, err := i.source.Token(ctx)
	if err != nil {
		return Credential{}, err
	}

	cred, err := i.api.ImpersonationToken(ctx, token, admin, i.ttl)
	if err != nil {
		i.logger.Error("Failed to get impersonation token for tenant %s: %v", tenantID, err)
		return Credential{}, err
	}
	return cred, nil
}

// GetImpersonationToken returns a new impersonation token for tenantID
func (i *Impersonator) GetImpersonationToken(ctx context.Context, tenantID string) (string, error) {
	cred, err := i.Impersonate(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

// ImpersonationMinter adapts an Impersonator to Minter for one tenant
type ImpersonationMinter struct {
	impersonator *Impersonator
	tenantID     string
}

// NewImpersonationMinter creates a minter scoped to tenantID
func NewImpersonationMinter(i *Impersonator, tenantID string) *ImpersonationMinter {
	return &ImpersonationMinter{impersonator: i, tenantID: tenantID}
}

// Mint mints an impersonation credential for the tenant
func (m *ImpersonationMinter) Mint(ctx context.Context) (Credential, error) {
	return m.impersonator.Impersonate(ctx, m.tenantID)
}

// Variant returns Impersonation
func (m *ImpersonationMinter) Variant() Variant {
	return Impersonation
}
