package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringSource reads the service account JSON from the OS keyring.
// Intended for operators running idrotate from a workstation.
type KeyringSource struct {
	service string
	user    string
}

// NewKeyringSource creates a source for the keyring item service/user
func NewKeyringSource(service, user string) *KeyringSource {
	return &KeyringSource{service: service, user: user}
}

// Fetch retrieves and decodes the service account
func (s *KeyringSource) Fetch(ctx context.Context) (ServiceAccount, error) {
	secret, err := keyring.Get(s.service, s.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ServiceAccount{}, fmt.Errorf("%w: %s", ErrNotFound, s.Describe())
		}
		return ServiceAccount{}, fmt.Errorf("keyring lookup %s: %w", s.Describe(), err)
	}
	return parseAccount([]byte(secret))
}

// Describe returns the keyring location
func (s *KeyringSource) Describe() string {
	return fmt.Sprintf("keyring://%s/%s", s.service, s.user)
}

// StoreInKeyring writes a service account to the OS keyring
func StoreInKeyring(service, user, username, password string) error {
	data, err := marshalAccount(username, password)
	if err != nil {
		return err
	}
	defer wipe(data)
	return keyring.Set(service, user, string(data))
}
