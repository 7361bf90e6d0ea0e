package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/idrotate/internal/connectivity"
	dserrors "github.com/systmms/idrotate/internal/errors"
	"github.com/systmms/idrotate/internal/identity"
	"github.com/systmms/idrotate/internal/logging"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{lookupEnv: envMap(nil)}
	require.NoError(t, cfg.Load())

	s := cfg.Settings
	assert.Equal(t, 30*time.Second, s.Timeout)
	assert.Equal(t, "first", s.AdminSelection)
	assert.Equal(t, LogFormatConsole, s.LogFormat)
	assert.False(t, s.UseProxy)
	assert.Equal(t, identity.DirectURL, s.IdentityBaseURL())
}

func TestConfig_Precedence(t *testing.T) {
	t.Parallel()

	yamlPath := writeFile(t, "idrotate.yaml", `stage: dev
timeout: 10s
use_janus_proxy: true
aws:
  region: us-west-2
  endpoint: http://localhost:4566
connectivity:
  - host: example.com
    port: 443
    protocol: https
    critical: true
`)
	envPath := writeFile(t, ".env", "STAGE=staging\nAWS_REGION=us-east-2\n")

	cfg := &Config{
		Path:      yamlPath,
		EnvFile:   envPath,
		Logger:    logging.Nop(),
		lookupEnv: envMap(map[string]string{"AWS_REGION": "eu-west-1", "DEFAULT_TIMEOUT": "45"}),
	}
	require.NoError(t, cfg.Load())

	s := cfg.Settings
	assert.Equal(t, "staging", s.Stage, ".env overrides yaml")
	assert.Equal(t, "eu-west-1", s.AWS.Region, "environment overrides .env")
	assert.Equal(t, "http://localhost:4566", s.AWS.Endpoint, "yaml overrides defaults")
	assert.Equal(t, 45*time.Second, s.Timeout)
	assert.True(t, s.UseProxy)
	assert.Equal(t, identity.ProxyURL, s.IdentityBaseURL())
	assert.Equal(t, []connectivity.Target{
		{Host: "example.com", Port: 443, Protocol: connectivity.ProtocolHTTPS, Critical: true},
	}, s.Connectivity)
}

func TestConfig_EnvParsing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, s *Settings)
		wantErr string
	}{
		{
			name: "timeout as duration",
			env:  map[string]string{"DEFAULT_TIMEOUT": "1m"},
			check: func(t *testing.T, s *Settings) {
				assert.Equal(t, time.Minute, s.Timeout)
			},
		},
		{
			name:    "timeout garbage",
			env:     map[string]string{"DEFAULT_TIMEOUT": "soon"},
			wantErr: "DEFAULT_TIMEOUT",
		},
		{
			name:    "timeout zero",
			env:     map[string]string{"DEFAULT_TIMEOUT": "0"},
			wantErr: "timeout must be positive",
		},
		{
			name:    "proxy flag garbage",
			env:     map[string]string{"USE_JANUS_PROXY": "maybe"},
			wantErr: "USE_JANUS_PROXY",
		},
		{
			name: "debug via log level",
			env:  map[string]string{"LOG_LEVEL": "DEBUG"},
			check: func(t *testing.T, s *Settings) {
				assert.True(t, s.Debug)
			},
		},
		{
			name:    "bad log format",
			env:     map[string]string{"LOG_FORMAT": "xml"},
			wantErr: "unsupported log format",
		},
		{
			name:    "bad admin selection",
			env:     map[string]string{"ADMIN_SELECTION": "random"},
			wantErr: "admin_selection",
		},
		{
			name: "identity url override",
			env:  map[string]string{"IDENTITY_URL": "http://localhost:8900/", "USE_JANUS_PROXY": "true"},
			check: func(t *testing.T, s *Settings) {
				assert.Equal(t, "http://localhost:8900", s.IdentityBaseURL())
			},
		},
		{
			name: "aws options",
			env: map[string]string{
				"AWS_REGION":               "us-east-1",
				"SECRETS_MANAGER_ENDPOINT": "http://localstack:4566",
				"ASSUME_ROLE_ARN":          "arn:aws:iam::1:role/rotator",
			},
			check: func(t *testing.T, s *Settings) {
				opts := s.AWSOptions()
				assert.Equal(t, "us-east-1", opts.Region)
				assert.Equal(t, "http://localstack:4566", opts.Endpoint)
				assert.Equal(t, "arn:aws:iam::1:role/rotator", opts.AssumeRoleARN)
			},
		},
		{
			name: "gcp credentials file",
			env:  map[string]string{"GOOGLE_CREDENTIALS_FILE": "/etc/idrotate/gcp.json"},
			check: func(t *testing.T, s *Settings) {
				assert.Equal(t, "/etc/idrotate/gcp.json", s.GCPCredentialsFile)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &Config{lookupEnv: envMap(tt.env)}
			err := cfg.Load()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				var cfgErr dserrors.ConfigError
				assert.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg.Settings)
		})
	}
}

func TestSettings_ServiceAccountSecretID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings Settings
		want     string
		wantErr  bool
	}{
		{
			name:     "explicit arn",
			settings: Settings{Stage: "prod", ServiceAccountSecret: "arn:aws:secretsmanager:us-east-1:1:secret:svc"},
			want:     "arn:aws:secretsmanager:us-east-1:1:secret:svc",
		},
		{
			name:     "stage fallback",
			settings: Settings{Stage: "prod"},
			want:     "prod/observability/service-account",
		},
		{
			name:    "nothing configured",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.settings.ServiceAccountSecretID()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_FileErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing yaml", func(t *testing.T) {
		t.Parallel()
		cfg := &Config{Path: "/nonexistent/idrotate.yaml", lookupEnv: envMap(nil)}
		err := cfg.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration file not found")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Parallel()
		path := writeFile(t, "idrotate.yaml", "stage: [unclosed\n")
		cfg := &Config{Path: path, lookupEnv: envMap(nil)}
		err := cfg.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid YAML syntax")
	})

	t.Run("missing env file", func(t *testing.T) {
		t.Parallel()
		cfg := &Config{EnvFile: "/nonexistent/.env", lookupEnv: envMap(nil)}
		err := cfg.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "env file not found")
	})

	t.Run("connectivity target without port", func(t *testing.T) {
		t.Parallel()
		path := writeFile(t, "idrotate.yaml", "connectivity:\n  - host: example.com\n    protocol: tcp\n")
		cfg := &Config{Path: path, lookupEnv: envMap(nil)}
		err := cfg.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connectivity[0]")
	})
}
