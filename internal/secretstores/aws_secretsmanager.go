package secretstores

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/systmms/idrotate/pkg/secretstore"
)

// SecretsManagerAPI defines the AWS Secrets Manager operations used by the
// rotation protocol. This allows for mocking in tests.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error)
}

// AWSSecretsManagerStore implements secretstore.Store on AWS Secrets Manager
type AWSSecretsManagerStore struct {
	client SecretsManagerAPI
}

// StoreOption is a functional option for configuring the store
type StoreOption func(*AWSSecretsManagerStore)

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing)
func WithSecretsManagerClient(client SecretsManagerAPI) StoreOption {
	return func(s *AWSSecretsManagerStore) {
		s.client = client
	}
}

// NewAWSSecretsManagerStore creates a store. A real SDK client is only
// built when no client was injected through opts.
func NewAWSSecretsManagerStore(ctx context.Context, awsOpts AWSOptions, opts ...StoreOption) (*AWSSecretsManagerStore, error) {
	s := &AWSSecretsManagerStore{}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		cfg, err := LoadAWSConfig(ctx, awsOpts)
		if err != nil {
			return nil, err
		}
		s.client = NewSecretsManagerClient(cfg, awsOpts.Endpoint)
	}

	return s, nil
}

// NewSecretsManagerClient builds an SDK client with an optional custom endpoint
func NewSecretsManagerClient(cfg aws.Config, endpoint string) *secretsmanager.Client {
	var clientOpts []func(*secretsmanager.Options)
	if endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return secretsmanager.NewFromConfig(cfg, clientOpts...)
}

// Describe returns rotation metadata for a secret
func (s *AWSSecretsManagerStore) Describe(ctx context.Context, secretID string) (secretstore.Metadata, error) {
	out, err := s.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return secretstore.Metadata{}, handleError(err, secretID, "describe")
	}

	stages := make(map[string][]string, len(out.VersionIdsToStages))
	for version, labels := range out.VersionIdsToStages {
		stages[version] = append([]string(nil), labels...)
	}

	return secretstore.Metadata{
		ARN:             aws.ToString(out.ARN),
		Name:            aws.ToString(out.Name),
		RotationEnabled: aws.ToBool(out.RotationEnabled),
		VersionStages:   stages,
	}, nil
}

// GetValue reads one version of a secret
func (s *AWSSecretsManagerStore) GetValue(ctx context.Context, secretID string, ref secretstore.ValueRef) (secretstore.SecretValue, error) {
	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	}
	if ref.VersionID != "" {
		input.VersionId = aws.String(ref.VersionID)
	}
	if ref.Stage != "" {
		input.VersionStage = aws.String(ref.Stage)
	}

	out, err := s.client.GetSecretValue(ctx, input)
	if err != nil {
		return secretstore.SecretValue{}, handleError(err, secretID, "get value")
	}

	value := aws.ToString(out.SecretString)
	if out.SecretString == nil && out.SecretBinary != nil {
		value = string(out.SecretBinary)
	}

	return secretstore.SecretValue{
		ARN:           aws.ToString(out.ARN),
		Name:          aws.ToString(out.Name),
		VersionID:     aws.ToString(out.VersionId),
		SecretString:  value,
		VersionStages: out.VersionStages,
	}, nil
}

// PutValue stores secretString as version versionID
func (s *AWSSecretsManagerStore) PutValue(ctx context.Context, secretID, versionID, secretString string, stages []string) error {
	_, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           aws.String(secretID),
		ClientRequestToken: aws.String(versionID),
		SecretString:       aws.String(secretString),
		VersionStages:      stages,
	})
	if err != nil {
		return handleError(err, secretID, "put value")
	}
	return nil
}

// MoveStage moves a staging label between versions in one API call
func (s *AWSSecretsManagerStore) MoveStage(ctx context.Context, secretID, stage, moveTo, removeFrom string) error {
	input := &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:        aws.String(secretID),
		VersionStage:    aws.String(stage),
		MoveToVersionId: aws.String(moveTo),
	}
	if removeFrom != "" {
		input.RemoveFromVersionId = aws.String(removeFrom)
	}

	if _, err := s.client.UpdateSecretVersionStage(ctx, input); err != nil {
		return handleError(err, secretID, "update version stage")
	}
	return nil
}

func handleError(err error, secretID, op string) error {
	if isNotFoundError(err) {
		return fmt.Errorf("%w: %s: %w", secretstore.ErrNotFound, secretID, err)
	}
	return fmt.Errorf("secrets manager %s %s: %w", op, secretID, err)
}

func isNotFoundError(err error) bool {
	var resourceNotFound *types.ResourceNotFoundException
	return errors.As(err, &resourceNotFound)
}

var _ secretstore.Store = (*AWSSecretsManagerStore)(nil)
