package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// AzureKeyVaultAPI is the subset of the Key Vault client used here
type AzureKeyVaultAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// AzureSource reads the latest version of a Key Vault secret
type AzureSource struct {
	client AzureKeyVaultAPI
	vault  string
	name   string
}

// NewAzureSource creates a source for secret name in vault
func NewAzureSource(client AzureKeyVaultAPI, vault, name string) *AzureSource {
	return &AzureSource{client: client, vault: vault, name: name}
}

// NewAzureClient creates a Key Vault client using the default Azure
// credential chain (environment, managed identity, Azure CLI).
func NewAzureClient(vault string) (*azsecrets.Client, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	client, err := azsecrets.NewClient(vaultURL(vault), cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
	}
	return client, nil
}

// Fetch retrieves and decodes the service account
func (s *AzureSource) Fetch(ctx context.Context) (ServiceAccount, error) {
	resp, err := s.client.GetSecret(ctx, s.name, "", nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return ServiceAccount{}, fmt.Errorf("%w: %s", ErrNotFound, s.Describe())
		}
		return ServiceAccount{}, fmt.Errorf("key vault get %s: %w", s.Describe(), err)
	}
	if resp.Value == nil {
		return ServiceAccount{}, fmt.Errorf("%w: %s has no value", ErrNotFound, s.Describe())
	}
	return parseAccount([]byte(*resp.Value))
}

// Describe returns the vault and secret name
func (s *AzureSource) Describe() string {
	return fmt.Sprintf("azure-kv://%s/%s", s.vault, s.name)
}

func vaultURL(vault string) string {
	return fmt.Sprintf("https://%s.vault.azure.net/", vault)
}
