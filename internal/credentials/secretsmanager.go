package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/systmms/idrotate/pkg/secretstore"
)

// SecretsManagerSource reads the AWSCURRENT version of a secret
type SecretsManagerSource struct {
	store    secretstore.Store
	secretID string
}

// NewSecretsManagerSource creates a source for secretID (name or ARN)
func NewSecretsManagerSource(store secretstore.Store, secretID string) *SecretsManagerSource {
	return &SecretsManagerSource{store: store, secretID: secretID}
}

// Fetch retrieves and decodes the service account
func (s *SecretsManagerSource) Fetch(ctx context.Context) (ServiceAccount, error) {
	value, err := s.store.GetValue(ctx, s.secretID, secretstore.ByStage(secretstore.StageCurrent))
	if err != nil {
		if errors.Is(err, secretstore.ErrNotFound) {
			return ServiceAccount{}, fmt.Errorf("%w: %s", ErrNotFound, s.secretID)
		}
		return ServiceAccount{}, err
	}
	return parseAccount([]byte(value.SecretString))
}

// Describe returns the secret ID
func (s *SecretsManagerSource) Describe() string {
	return "aws-sm://" + s.secretID
}
