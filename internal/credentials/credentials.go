// Package credentials loads the service account used to authenticate with
// the identity provider. The account lives in a secret backend as a JSON
// document of the form {"username": "...", "password": "..."}.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/systmms/idrotate/internal/secure"
)

// ErrNotFound is returned when the backing secret does not exist
var ErrNotFound = errors.New("service account secret not found")

// ServiceAccount is a username with a protected password
type ServiceAccount struct {
	Username string
	Password *secure.SecureBuffer
}

// Complete reports whether both username and password are present
func (a ServiceAccount) Complete() bool {
	return a.Username != "" && !a.Password.Empty()
}

// Destroy wipes the password
func (a ServiceAccount) Destroy() {
	a.Password.Destroy()
}

// Source fetches a service account from one backend
type Source interface {
	Fetch(ctx context.Context) (ServiceAccount, error)
	// Describe returns a human readable location, never the secret itself
	Describe() string
}

type payload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// parseAccount decodes a JSON service-account document and wipes data.
// Missing fields are not an error here; callers check Complete.
func parseAccount(data []byte) (ServiceAccount, error) {
	defer wipe(data)

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return ServiceAccount{}, fmt.Errorf("service account secret is not valid JSON: %w", err)
	}

	return ServiceAccount{
		Username: p.Username,
		Password: secure.NewSecureString(p.Password),
	}, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
