// Package identity authenticates against the v2.0 identity provider and
// caches the resulting token until shortly before it expires.
//
// A Client owns one cached Credential and a Minter that knows how to obtain
// a fresh one. PasswordMinter authenticates with a username and password.
// ImpersonationMinter mints a short-lived token on behalf of a tenant's
// admin user through an Impersonator.
package identity

import (
	"context"
	"sync"
	"time"

	"github.com/systmms/idrotate/internal/logging"
)

// DefaultExpiryPadding is subtracted from the provider-stated expiry
const DefaultExpiryPadding = 3600 * time.Second

// Variant records how a credential was issued
type Variant string

const (
	Direct        Variant = "direct"
	Impersonation Variant = "impersonation"
)

// Credential is a token together with its expiry
type Credential struct {
	Token     string
	ExpiresAt time.Time
	IssuedVia Variant
}

// Minter obtains a fresh credential from the provider. ExpiresAt on the
// returned credential is the provider-stated expiry.
type Minter interface {
	Mint(ctx context.Context) (Credential, error)
	Variant() Variant
}

// TokenSource hands out a valid token, authenticating when needed
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Validator checks an arbitrary token against the provider
type Validator interface {
	Validate(ctx context.Context, token string) (*Validation, error)
}

// Client caches the credential produced by its Minter
type Client struct {
	minter  Minter
	api     *API
	padding time.Duration
	now     func() time.Time
	logger  *logging.Logger

	mu   sync.Mutex
	cred Credential
}

// Option configures a Client
type Option func(*Client)

// WithExpiryPadding overrides DefaultExpiryPadding
func WithExpiryPadding(d time.Duration) Option {
	return func(c *Client) {
		c.padding = d
	}
}

// WithClock sets the time source used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client around minter. api is used by Validate.
func NewClient(minter Minter, api *API, opts ...Option) *Client {
	c := &Client{
		minter:  minter,
		api:     api,
		padding: DefaultExpiryPadding,
		now:     time.Now,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the cached token, authenticating first if there is none
// or it has expired.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cred.Token != "" && !c.expiredLocked() {
		return c.cred.Token, nil
	}
	return c.authenticateLocked(ctx)
}

// Authenticate always obtains a new credential and caches it
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

// authenticateLocked is the only place the cached credential changes
func (c *Client) authenticateLocked(ctx context.Context) (string, error) {
	variant := c.minter.Variant()

	cred, err := c.minter.Mint(ctx)
	if err != nil {
		recordAuthentication(variant, err)
		c.logger.Error("Identity authentication failed: %v", err)
		return "", err
	}
	recordAuthentication(variant, nil)

	cred.ExpiresAt = time.Unix(cred.ExpiresAt.Unix()-int64(c.padding/time.Second), 0)
	c.cred = cred

	c.logger.Info("Refreshed identity token")
	c.logger.Debug("Identity token valid until %s", cred.ExpiresAt.UTC().Format(time.RFC3339))
	return cred.Token, nil
}

// IsExpired reports whether the cached credential is absent or past its
// padded expiry.
func (c *Client) IsExpired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred.Token == "" || c.expiredLocked()
}

func (c *Client) expiredLocked() bool {
	return c.now().Unix() >= c.cred.ExpiresAt.Unix()
}

// ExpiresAt returns the padded expiry of the cached credential, or the zero
// time if nothing is cached.
func (c *Client) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred.Token == "" {
		return time.Time{}
	}
	return c.cred.ExpiresAt
}

// Validate checks token with the provider. The cached credential is not
// read or modified.
func (c *Client) Validate(ctx context.Context, token string) (*Validation, error) {
	return c.api.Validate(ctx, token)
}

var (
	_ TokenSource = (*Client)(nil)
	_ Validator   = (*Client)(nil)
	_ Validator   = (*API)(nil)
)
