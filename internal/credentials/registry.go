package credentials

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/systmms/idrotate/internal/secretstores"
	"github.com/systmms/idrotate/pkg/secretstore"
)

// Registry resolves service-account references to Sources
type Registry struct {
	factories map[string]SourceFactory
}

// SourceFactory creates a source for the part of a reference after "scheme://"
type SourceFactory func(ctx context.Context, location string) (Source, error)

// NewRegistry creates a registry with the backends that need no cloud client
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]SourceFactory)}

	r.RegisterFactory("env", func(_ context.Context, location string) (Source, error) {
		if location == "" {
			return nil, fmt.Errorf("env reference needs a variable prefix")
		}
		return NewEnvSource(location), nil
	})
	r.RegisterFactory("keyring", func(_ context.Context, location string) (Source, error) {
		service, user, ok := strings.Cut(location, "/")
		if !ok || service == "" || user == "" {
			return nil, fmt.Errorf("keyring reference must be keyring://service/user")
		}
		return NewKeyringSource(service, user), nil
	})

	return r
}

// CloudOptions configures the cloud-backed factories
type CloudOptions struct {
	// Store serves aws-sm references and bare secret names
	Store secretstore.Store
	// AWS is used to build the SSM client on first use
	AWS secretstores.AWSOptions
	// GCPCredentialsFile is an optional service account key file
	GCPCredentialsFile string
}

// NewDefaultRegistry creates a registry with every supported backend.
// Cloud clients are only constructed when a reference needs them.
func NewDefaultRegistry(opts CloudOptions) *Registry {
	r := NewRegistry()

	r.RegisterFactory("aws-sm", func(_ context.Context, location string) (Source, error) {
		if opts.Store == nil {
			return nil, fmt.Errorf("no secrets store configured for %s", location)
		}
		return NewSecretsManagerSource(opts.Store, location), nil
	})
	r.RegisterFactory("ssm", func(ctx context.Context, location string) (Source, error) {
		cfg, err := secretstores.LoadAWSConfig(ctx, opts.AWS)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(location, "/") {
			location = "/" + location
		}
		return NewSSMSource(ssm.NewFromConfig(cfg), location), nil
	})
	r.RegisterFactory("gcp-sm", func(ctx context.Context, location string) (Source, error) {
		client, err := NewGCPClient(ctx, opts.GCPCredentialsFile)
		if err != nil {
			return nil, err
		}
		return NewGCPSource(client, location)
	})
	r.RegisterFactory("azure-kv", func(_ context.Context, location string) (Source, error) {
		vault, name, ok := strings.Cut(location, "/")
		if !ok || vault == "" || name == "" {
			return nil, fmt.Errorf("azure-kv reference must be azure-kv://vault/secret")
		}
		client, err := NewAzureClient(vault)
		if err != nil {
			return nil, err
		}
		return NewAzureSource(client, vault, name), nil
	})

	return r
}

// RegisterFactory registers a factory for scheme
func (r *Registry) RegisterFactory(scheme string, factory SourceFactory) {
	r.factories[scheme] = factory
}

// Resolve parses ref and builds its Source. ARNs and references without a
// scheme are Secrets Manager secrets.
func (r *Registry) Resolve(ctx context.Context, ref string) (Source, error) {
	scheme, location := SplitReference(ref)
	factory, exists := r.factories[scheme]
	if !exists {
		return nil, fmt.Errorf("unknown credential source %q (supported: %s)", scheme, strings.Join(r.Schemes(), ", "))
	}
	return factory(ctx, location)
}

// Schemes returns the registered schemes in sorted order
func (r *Registry) Schemes() []string {
	schemes := make([]string, 0, len(r.factories))
	for scheme := range r.factories {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

// SplitReference splits ref into scheme and location
func SplitReference(ref string) (scheme, location string) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "arn:") {
		return "aws-sm", ref
	}
	if scheme, location, ok := strings.Cut(ref, "://"); ok {
		return scheme, location
	}
	return "aws-sm", ref
}
