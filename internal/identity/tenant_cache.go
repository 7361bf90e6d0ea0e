package identity

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// TenantCache keeps one caching Client per tenant so repeated requests for
// the same tenant reuse an impersonation token until it expires.
type TenantCache struct {
	impersonator *Impersonator
	clientOpts   []Option

	mu      sync.Mutex
	clients *gocache.Cache
}

// NewTenantCache creates a cache. Idle tenants are evicted after idleTTL.
func NewTenantCache(i *Impersonator, idleTTL time.Duration, opts ...Option) *TenantCache {
	if idleTTL <= 0 {
		idleTTL = DefaultImpersonationTTL
	}
	return &TenantCache{
		impersonator: i,
		clientOpts:   opts,
		clients:      gocache.New(idleTTL, time.Minute),
	}
}

// Token returns a valid impersonation token for tenantID
func (t *TenantCache) Token(ctx context.Context, tenantID string) (string, error) {
	return t.Client(tenantID).Token(ctx)
}

// Forget drops the cached client for tenantID
func (t *TenantCache) Forget(tenantID string) {
	t.clients.Delete(tenantID)
}

// Len returns the number of cached tenants
func (t *TenantCache) Len() int {
	return t.clients.ItemCount()
}

// Client returns the caching Client for tenantID, creating it on first use
func (t *TenantCache) Client(tenantID string) *Client {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients.Get(tenantID); ok {
		t.clients.SetDefault(tenantID, c)
		return c.(*Client)
	}

	c := NewClient(NewImpersonationMinter(t.impersonator, tenantID), t.impersonator.api, t.clientOpts...)
	t.clients.SetDefault(tenantID, c)
	return c
}
