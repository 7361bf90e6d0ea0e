package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/systmms/idrotate/internal/secure"
)

// EnvSource reads PREFIX_USERNAME and PREFIX_PASSWORD from the environment
type EnvSource struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvSource creates a source reading variables with prefix
func NewEnvSource(prefix string) *EnvSource {
	return &EnvSource{prefix: strings.ToUpper(strings.TrimSuffix(prefix, "_")), lookup: os.LookupEnv}
}

// Fetch reads the two variables. An unset username is ErrNotFound.
func (s *EnvSource) Fetch(ctx context.Context) (ServiceAccount, error) {
	username, ok := s.lookup(s.prefix + "_USERNAME")
	if !ok {
		return ServiceAccount{}, fmt.Errorf("%w: %s_USERNAME is not set", ErrNotFound, s.prefix)
	}
	password, _ := s.lookup(s.prefix + "_PASSWORD")

	return ServiceAccount{
		Username: username,
		Password: secure.NewSecureString(password),
	}, nil
}

// Describe returns the variable prefix
func (s *EnvSource) Describe() string {
	return "env://" + s.prefix
}

func marshalAccount(username, password string) ([]byte, error) {
	data, err := json.Marshal(payload{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode service account: %w", err)
	}
	return data, nil
}
