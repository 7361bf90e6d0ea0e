package credentials

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GCPSecretManagerAPI is the subset of the GCP client used here
type GCPSecretManagerAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// GCPSource reads one version of a GCP Secret Manager secret
type GCPSource struct {
	client   GCPSecretManagerAPI
	resource string
}

// NewGCPSource creates a source. name is either a full version resource
// name or "project/secret[/version]"; version defaults to latest.
func NewGCPSource(client GCPSecretManagerAPI, name string) (*GCPSource, error) {
	resource, err := gcpResourceName(name)
	if err != nil {
		return nil, err
	}
	return &GCPSource{client: client, resource: resource}, nil
}

// NewGCPClient creates a GCP client using application default credentials
// or a service account key file.
func NewGCPClient(ctx context.Context, credentialsFile string) (*secretmanager.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
	}
	return client, nil
}

// Fetch retrieves and decodes the service account
func (s *GCPSource) Fetch(ctx context.Context) (ServiceAccount, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: s.resource})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ServiceAccount{}, fmt.Errorf("%w: %s", ErrNotFound, s.resource)
		}
		return ServiceAccount{}, fmt.Errorf("gcp access %s: %w", s.resource, err)
	}
	return parseAccount(resp.GetPayload().GetData())
}

// Describe returns the version resource name
func (s *GCPSource) Describe() string {
	return "gcp-sm://" + s.resource
}

func gcpResourceName(name string) (string, error) {
	if strings.HasPrefix(name, "projects/") {
		if !strings.Contains(name, "/versions/") {
			name += "/versions/latest"
		}
		return name, nil
	}

	parts := strings.Split(name, "/")
	switch len(parts) {
	case 2:
		return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", parts[0], parts[1]), nil
	case 3:
		return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", parts[0], parts[1], parts[2]), nil
	default:
		return "", fmt.Errorf("invalid GCP secret reference %q (expected project/secret[/version])", name)
	}
}
