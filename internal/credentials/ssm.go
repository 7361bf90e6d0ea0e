package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMAPI is the subset of the SSM client used here
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSource reads a SecureString parameter holding the service account JSON
type SSMSource struct {
	client SSMAPI
	name   string
}

// NewSSMSource creates a source for parameter name
func NewSSMSource(client SSMAPI, name string) *SSMSource {
	return &SSMSource{client: client, name: name}
}

// Fetch retrieves and decodes the service account
func (s *SSMSource) Fetch(ctx context.Context) (ServiceAccount, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return ServiceAccount{}, fmt.Errorf("%w: %s", ErrNotFound, s.name)
		}
		return ServiceAccount{}, fmt.Errorf("ssm get parameter %s: %w", s.name, err)
	}
	if out.Parameter == nil {
		return ServiceAccount{}, fmt.Errorf("%w: %s", ErrNotFound, s.name)
	}
	return parseAccount([]byte(aws.ToString(out.Parameter.Value)))
}

// Describe returns the parameter name
func (s *SSMSource) Describe() string {
	return "ssm://" + s.name
}
