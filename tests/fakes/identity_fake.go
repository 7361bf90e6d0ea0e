package fakes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// FakeIdentityServer is an httptest server implementing the subset of the
// v2.0 identity API used by idrotate.
type FakeIdentityServer struct {
	*httptest.Server

	mu sync.Mutex

	// Users maps usernames to passwords accepted by POST /v2.0/tokens
	Users map[string]string
	// Admins maps tenant IDs to admin usernames, in response order
	Admins map[string][]string
	// Expires is the expiry reported for newly issued tokens
	Expires time.Time
	// OmitImpersonationExpiry leaves expires out of impersonation responses
	OmitImpersonationExpiry bool
	// FailStatus forces a status for a route: "auth", "validate", "users", "impersonate"
	FailStatus map[string]int

	// Calls counts requests per route
	Calls map[string]int
	// LastDomain is the RAX-AUTH:domain name of the last auth request
	LastDomain string
	// LastImpersonated is the username of the last impersonation request
	LastImpersonated string
	// LastImpersonationTTL is the expire-in-seconds of the last impersonation request
	LastImpersonationTTL int

	issued map[string]string
	serial int
}

// NewFakeIdentityServer starts a fake identity provider. Call Close when done.
func NewFakeIdentityServer() *FakeIdentityServer {
	f := &FakeIdentityServer{
		Users:      make(map[string]string),
		Admins:     make(map[string][]string),
		Expires:    time.Now().Add(24 * time.Hour).UTC(),
		FailStatus: make(map[string]int),
		Calls:      make(map[string]int),
		issued:     make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2.0/tokens", f.handleAuth)
	mux.HandleFunc("GET /v2.0/tokens/{token}", f.handleValidate)
	mux.HandleFunc("GET /v2.0/users", f.handleUsers)
	mux.HandleFunc("POST /v2.0/RAX-AUTH/impersonation-tokens", f.handleImpersonate)
	f.Server = httptest.NewServer(mux)
	return f
}

// AddUser registers a username and password
func (f *FakeIdentityServer) AddUser(username, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Users[username] = password
}

// SetAdmins sets the admin users returned for a tenant
func (f *FakeIdentityServer) SetAdmins(tenantID string, usernames ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Admins[tenantID] = usernames
}

// SetExpires changes the expiry reported for new tokens
func (f *FakeIdentityServer) SetExpires(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Expires = t
}

// Fail forces route to answer with status
func (f *FakeIdentityServer) Fail(route string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailStatus[route] = status
}

// Revoke makes a previously issued token invalid
func (f *FakeIdentityServer) Revoke(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.issued, token)
}

// CallCount returns how many requests route received
func (f *FakeIdentityServer) CallCount(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[route]
}

// IssueToken registers a valid token for username without an auth call
func (f *FakeIdentityServer) IssueToken(username string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueLocked("tok", username)
}

func (f *FakeIdentityServer) issueLocked(prefix, username string) string {
	f.serial++
	token := fmt.Sprintf("%s-%s-%d", prefix, username, f.serial)
	f.issued[token] = username
	return token
}

// begin counts the call and reports a forced failure status, if any
func (f *FakeIdentityServer) begin(route string) int {
	f.Calls[route]++
	return f.FailStatus[route]
}

func (f *FakeIdentityServer) authorized(r *http.Request) (string, bool) {
	user, ok := f.issued[r.Header.Get("x-auth-token")]
	return user, ok
}

func (f *FakeIdentityServer) handleAuth(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status := f.begin("auth"); status != 0 {
		writeJSONError(w, status, "forced failure")
		return
	}

	var req struct {
		Auth struct {
			PasswordCredentials struct {
				Username string `json:"username"`
				Password string `json:"password"`
			} `json:"passwordCredentials"`
			Domain *struct {
				Name string `json:"name"`
			} `json:"RAX-AUTH:domain"`
		} `json:"auth"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.LastDomain = ""
	if req.Auth.Domain != nil {
		f.LastDomain = req.Auth.Domain.Name
	}

	creds := req.Auth.PasswordCredentials
	if want, ok := f.Users[creds.Username]; !ok || want != creds.Password {
		writeJSONError(w, http.StatusUnauthorized, "Unable to authenticate user with credentials provided.")
		return
	}

	token := f.issueLocked("tok", creds.Username)
	writeJSON(w, map[string]interface{}{
		"access": map[string]interface{}{
			"token": map[string]interface{}{
				"id":      token,
				"expires": f.Expires.Format("2006-01-02T15:04:05.000Z"),
			},
			"user": map[string]interface{}{"id": "u-" + creds.Username, "name": creds.Username},
		},
	})
}

func (f *FakeIdentityServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status := f.begin("validate"); status != 0 {
		writeJSONError(w, status, "forced failure")
		return
	}
	if _, ok := f.authorized(r); !ok {
		writeJSONError(w, http.StatusUnauthorized, "No valid token provided.")
		return
	}

	token := r.PathValue("token")
	user, ok := f.issued[token]
	if !ok {
		writeJSONError(w, http.StatusNotFound, "Token not found.")
		return
	}

	writeJSON(w, map[string]interface{}{
		"access": map[string]interface{}{
			"token": map[string]interface{}{
				"id":      token,
				"expires": f.Expires.Format(time.RFC3339),
				"tenant":  map[string]interface{}{"id": "hybrid:123"},
			},
			"user": map[string]interface{}{"id": "u-" + user, "name": user},
		},
	})
}

func (f *FakeIdentityServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status := f.begin("users"); status != 0 {
		writeJSONError(w, status, "forced failure")
		return
	}
	if _, ok := f.authorized(r); !ok {
		writeJSONError(w, http.StatusUnauthorized, "No valid token provided.")
		return
	}
	if r.URL.Query().Get("admin_only") != "true" {
		writeJSONError(w, http.StatusBadRequest, "admin_only is required")
		return
	}

	users := []map[string]string{}
	for _, name := range f.Admins[r.URL.Query().Get("tenant_id")] {
		users = append(users, map[string]string{"username": name})
	}
	writeJSON(w, map[string]interface{}{"users": users})
}

func (f *FakeIdentityServer) handleImpersonate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status := f.begin("impersonate"); status != 0 {
		writeJSONError(w, status, "forced failure")
		return
	}
	if _, ok := f.authorized(r); !ok {
		writeJSONError(w, http.StatusUnauthorized, "No valid token provided.")
		return
	}

	var req struct {
		Impersonation struct {
			ExpireInSeconds int `json:"expire-in-seconds"`
			User            struct {
				Username string `json:"username"`
			} `json:"user"`
		} `json:"RAX-AUTH:impersonation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	username := req.Impersonation.User.Username
	f.LastImpersonated = username
	f.LastImpersonationTTL = req.Impersonation.ExpireInSeconds

	token := map[string]interface{}{"id": f.issueLocked("imp", username)}
	if !f.OmitImpersonationExpiry {
		token["expires"] = f.Expires.Format(time.RFC3339)
	}
	writeJSON(w, map[string]interface{}{
		"access": map[string]interface{}{"token": token},
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"badRequest": map[string]interface{}{"code": status, "message": message},
	})
}
