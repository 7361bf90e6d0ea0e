package credentials_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/idrotate/internal/credentials"
	"github.com/systmms/idrotate/internal/secretstores"
	"github.com/systmms/idrotate/tests/fakes"
)

func TestSplitReference(t *testing.T) {
	t.Parallel()

	arn := "arn:aws:secretsmanager:us-east-1:123456789012:secret:prod/observability/service-account-AbCdEf"
	tests := []struct {
		ref          string
		wantScheme   string
		wantLocation string
	}{
		{ref: arn, wantScheme: "aws-sm", wantLocation: arn},
		{ref: "prod/observability/service-account", wantScheme: "aws-sm", wantLocation: "prod/observability/service-account"},
		{ref: "aws-sm://prod/sa", wantScheme: "aws-sm", wantLocation: "prod/sa"},
		{ref: "ssm:///prod/sa", wantScheme: "ssm", wantLocation: "/prod/sa"},
		{ref: "keyring://idrotate/prod", wantScheme: "keyring", wantLocation: "idrotate/prod"},
		{ref: " env://SA ", wantScheme: "env", wantLocation: "SA"},
	}

	for _, tt := range tests {
		scheme, location := credentials.SplitReference(tt.ref)
		assert.Equal(t, tt.wantScheme, scheme, tt.ref)
		assert.Equal(t, tt.wantLocation, location, tt.ref)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()

	sm := fakes.NewFakeSecretsManagerClient()
	sm.AddSecretString("prod/observability/service-account", "v1", accountJSON)
	store, err := secretstores.NewAWSSecretsManagerStore(context.Background(), secretstores.AWSOptions{},
		secretstores.WithSecretsManagerClient(sm))
	require.NoError(t, err)

	reg := credentials.NewDefaultRegistry(credentials.CloudOptions{Store: store})
	ctx := context.Background()

	src, err := reg.Resolve(ctx, "prod/observability/service-account")
	require.NoError(t, err)
	acct, err := src.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "svc-observability", acct.Username)

	src, err = reg.Resolve(ctx, "keyring://idrotate/prod")
	require.NoError(t, err)
	assert.Equal(t, "keyring://idrotate/prod", src.Describe())

	_, err = reg.Resolve(ctx, "keyring://missing-user")
	assert.Error(t, err)

	_, err = reg.Resolve(ctx, "vault://secret/sa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown credential source")

	assert.Equal(t, []string{"aws-sm", "azure-kv", "env", "gcp-sm", "keyring", "ssm"}, reg.Schemes())
}

func TestRegistry_CustomFactory(t *testing.T) {
	t.Parallel()

	reg := credentials.NewRegistry()
	reg.RegisterFactory("static", func(_ context.Context, location string) (credentials.Source, error) {
		return credentials.NewEnvSource(location), nil
	})

	src, err := reg.Resolve(context.Background(), "static://SA")
	require.NoError(t, err)
	assert.Equal(t, "env://SA", src.Describe())

	_, err = credentials.NewDefaultRegistry(credentials.CloudOptions{}).Resolve(context.Background(), "aws-sm://x")
	assert.Error(t, err, "no store configured")
}
