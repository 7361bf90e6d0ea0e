package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/systmms/idrotate/internal/secure"
)

const (
	// ProxyURL is the identity endpoint behind the API proxy
	ProxyURL = "https://proxy.api.manage.rackspace.com/identity"
	// DirectURL is the internal identity endpoint
	DirectURL = "https://identity-internal.api.rackspacecloud.com"

	// DomainRackspace scopes authentication to the Rackspace domain
	DomainRackspace = "Rackspace"

	// DefaultTimeout bounds every outbound call
	DefaultTimeout = 30 * time.Second

	authHeader = "x-auth-token"
)

// BaseURL selects the identity endpoint
func BaseURL(useProxy bool) string {
	if useProxy {
		return ProxyURL
	}
	return DirectURL
}

// API speaks the v2.0 identity HTTP API. It holds no token state.
type API struct {
	httpClient *http.Client
	baseURL    string
	now        func() time.Time
}

// NewAPI creates an API client. A zero timeout selects DefaultTimeout.
func NewAPI(baseURL string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &API{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		now:        time.Now,
	}
}

// NewAPIWithHTTPClient creates an API client using hc (for testing)
func NewAPIWithHTTPClient(baseURL string, hc *http.Client) *API {
	a := NewAPI(baseURL, 0)
	a.httpClient = hc
	return a
}

// URL returns the base URL requests are sent to
func (a *API) URL() string {
	return a.baseURL
}

type passwordAuthRequest struct {
	Auth passwordAuth `json:"auth"`
}

type passwordAuth struct {
	PasswordCredentials passwordCredentials `json:"passwordCredentials"`
	Domain              *domainRef          `json:"RAX-AUTH:domain,omitempty"`
}

type passwordCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type domainRef struct {
	Name string `json:"name"`
}

type accessResponse struct {
	Access struct {
		Token struct {
			ID      string `json:"id"`
			Expires string `json:"expires"`
		} `json:"token"`
	} `json:"access"`
}

// PasswordAuth exchanges username and password for a token. The returned
// credential carries the provider-stated expiry, unpadded.
func (a *API) PasswordAuth(ctx context.Context, username string, password *secure.SecureBuffer, domain string) (Credential, error) {
	var body []byte
	err := password.Reveal(func(p []byte) error {
		req := passwordAuthRequest{
			Auth: passwordAuth{
				PasswordCredentials: passwordCredentials{Username: username, Password: string(p)},
			},
		}
		if domain != "" {
			req.Auth.Domain = &domainRef{Name: domain}
		}
		var err error
		body, err = json.Marshal(req)
		return err
	})
	if err != nil {
		return Credential{}, fmt.Errorf("failed to marshal auth request: %w", err)
	}

	var out accessResponse
	if err := a.do(ctx, "authenticate", http.MethodPost, "/v2.0/tokens", "", body, &out); err != nil {
		return Credential{}, err
	}
	if out.Access.Token.ID == "" {
		return Credential{}, ErrMissingTokenID
	}

	expires, err := parseExpiry(out.Access.Token.Expires)
	if err != nil {
		return Credential{}, err
	}

	return Credential{
		Token:     out.Access.Token.ID,
		ExpiresAt: expires,
		IssuedVia: Direct,
	}, nil
}

// Validation is the provider's answer for a valid token
type Validation struct {
	TokenID   string
	ExpiresAt time.Time
	UserID    string
	UserName  string
	TenantID  string
	Raw       json.RawMessage
}

// Validate checks token against the provider, authenticating with the token itself
func (a *API) Validate(ctx context.Context, token string) (*Validation, error) {
	var raw json.RawMessage
	if err := a.do(ctx, "validate", http.MethodGet, "/v2.0/tokens/"+url.PathEscape(token), token, nil, &raw); err != nil {
		return nil, err
	}

	var parsed struct {
		Access struct {
			Token struct {
				ID      string `json:"id"`
				Expires string `json:"expires"`
				Tenant  struct {
					ID string `json:"id"`
				} `json:"tenant"`
			} `json:"token"`
			User struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"user"`
		} `json:"access"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode validation response: %w", err)
	}

	v := &Validation{
		TokenID:  parsed.Access.Token.ID,
		UserID:   parsed.Access.User.ID,
		UserName: parsed.Access.User.Name,
		TenantID: parsed.Access.Token.Tenant.ID,
		Raw:      raw,
	}
	if parsed.Access.Token.Expires != "" {
		if expires, err := parseExpiry(parsed.Access.Token.Expires); err == nil {
			v.ExpiresAt = expires
		}
	}
	return v, nil
}

// AdminUsers lists the admin usernames of a tenant in provider order
func (a *API) AdminUsers(ctx context.Context, authToken, tenantID string) ([]string, error) {
	q := url.Values{}
	q.Set("tenant_id", tenantID)
	q.Set("admin_only", "true")

	var out struct {
		Users []struct {
			Username string `json:"username"`
		} `json:"users"`
	}
	if err := a.do(ctx, "admin lookup", http.MethodGet, "/v2.0/users?"+q.Encode(), authToken, nil, &out); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(out.Users))
	for _, u := range out.Users {
		names = append(names, u.Username)
	}
	return names, nil
}

type impersonationRequest struct {
	Impersonation struct {
		ExpireInSeconds int `json:"expire-in-seconds"`
		User            struct {
			Username string `json:"username"`
		} `json:"user"`
	} `json:"RAX-AUTH:impersonation"`
}

// ImpersonationToken mints a token on behalf of username, valid for ttl.
// When the provider omits an expiry, now+ttl is used.
func (a *API) ImpersonationToken(ctx context.Context, authToken, username string, ttl time.Duration) (Credential, error) {
	var req impersonationRequest
	req.Impersonation.ExpireInSeconds = int(ttl / time.Second)
	req.Impersonation.User.Username = username

	body, err := json.Marshal(req)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to marshal impersonation request: %w", err)
	}

	var out accessResponse
	if err := a.do(ctx, "impersonation", http.MethodPost, "/v2.0/RAX-AUTH/impersonation-tokens", authToken, body, &out); err != nil {
		return Credential{}, err
	}
	if out.Access.Token.ID == "" {
		return Credential{}, ErrMissingTokenID
	}

	cred := Credential{
		Token:     out.Access.Token.ID,
		ExpiresAt: a.now().Add(ttl),
		IssuedVia: Impersonation,
	}
	if out.Access.Token.Expires != "" {
		expires, err := parseExpiry(out.Access.Token.Expires)
		if err != nil {
			return Credential{}, err
		}
		cred.ExpiresAt = expires
	}
	return cred, nil
}

func (a *API) do(ctx context.Context, op, method, path, token string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(authHeader, token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &AuthenticationError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(bodyBytes)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02 15:04:05",
}

func parseExpiry(s string) (time.Time, error) {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized token expiry %q", s)
}
