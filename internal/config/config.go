// Package config loads idrotate settings.
//
// Values are layered from lowest to highest precedence: built-in defaults,
// an optional YAML file, an optional .env file, and the process
// environment. The Lambda deployment normally sets everything through the
// environment; the YAML file is a convenience for local CLI use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/systmms/idrotate/internal/connectivity"
	dserrors "github.com/systmms/idrotate/internal/errors"
	"github.com/systmms/idrotate/internal/identity"
	"github.com/systmms/idrotate/internal/logging"
	"github.com/systmms/idrotate/internal/secretstores"
)

// Log formats
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config holds the runtime configuration
type Config struct {
	// Path is an optional YAML file
	Path string
	// EnvFile is an optional dotenv file
	EnvFile string
	Logger  *logging.Logger

	Settings *Settings

	lookupEnv func(string) (string, bool)
}

// Settings is the resolved configuration
type Settings struct {
	Stage                string        `yaml:"stage"`
	ServiceAccountSecret string        `yaml:"service_account_secret"`
	UseProxy             bool          `yaml:"use_janus_proxy"`
	IdentityURL          string        `yaml:"identity_url"`
	Timeout              time.Duration `yaml:"timeout"`
	AdminSelection       string        `yaml:"admin_selection"`

	AWS AWSSettings `yaml:"aws"`

	// GCPCredentialsFile is used when the service account lives in GCP
	// Secret Manager. Empty selects application default credentials.
	GCPCredentialsFile string `yaml:"gcp_credentials_file"`

	LogFormat   string `yaml:"log_format"`
	Debug       bool   `yaml:"debug"`
	HistoryDir  string `yaml:"history_dir"`
	MetricsAddr string `yaml:"metrics_addr"`

	Connectivity []connectivity.Target `yaml:"connectivity"`
}

// AWSSettings configures the Secrets Manager client
type AWSSettings struct {
	Region        string `yaml:"region"`
	Profile       string `yaml:"profile"`
	Endpoint      string `yaml:"endpoint"`
	AssumeRoleARN string `yaml:"assume_role_arn"`
}

// Defaults returns the built-in settings
func Defaults() *Settings {
	return &Settings{
		Timeout:        identity.DefaultTimeout,
		AdminSelection: string(identity.AdminFirst),
		LogFormat:      LogFormatConsole,
	}
}

// Load resolves settings from every configured layer
func (c *Config) Load() error {
	settings := Defaults()

	if c.Path != "" {
		if err := loadYAML(c.Path, settings); err != nil {
			return err
		}
	}

	if c.EnvFile != "" {
		values, err := godotenv.Read(c.EnvFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return dserrors.ConfigError{
					Field:      "env-file",
					Value:      c.EnvFile,
					Message:    "env file not found",
					Suggestion: "Check the --env-file path",
				}
			}
			return dserrors.ConfigError{
				Field:      "env-file",
				Value:      c.EnvFile,
				Message:    fmt.Sprintf("invalid env file: %v", err),
				Suggestion: "Use KEY=value lines",
			}
		}
		if err := settings.applyEnv(func(key string) (string, bool) {
			v, ok := values[key]
			return v, ok
		}); err != nil {
			return err
		}
	}

	lookup := c.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := settings.applyEnv(lookup); err != nil {
		return err
	}

	if err := settings.Validate(); err != nil {
		return err
	}

	c.Settings = settings
	if c.Logger != nil {
		c.Logger.Debug("Loaded configuration (stage=%q, identity=%s)", settings.Stage, settings.IdentityBaseURL())
	}
	return nil
}

func loadYAML(path string, settings *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      path,
				Message:    "configuration file not found",
				Suggestion: "Check the --config path or omit it to use environment variables only",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	return nil
}

// applyEnv overlays variables found by lookup
func (s *Settings) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("STAGE", &s.Stage)
	str("SERVICE_ACCOUNT_SECRET_ARN", &s.ServiceAccountSecret)
	str("IDENTITY_URL", &s.IdentityURL)
	str("ADMIN_SELECTION", &s.AdminSelection)
	str("AWS_REGION", &s.AWS.Region)
	str("AWS_PROFILE", &s.AWS.Profile)
	str("SECRETS_MANAGER_ENDPOINT", &s.AWS.Endpoint)
	str("ASSUME_ROLE_ARN", &s.AWS.AssumeRoleARN)
	str("GOOGLE_CREDENTIALS_FILE", &s.GCPCredentialsFile)
	str("LOG_FORMAT", &s.LogFormat)
	str("ROTATION_HISTORY_DIR", &s.HistoryDir)
	str("METRICS_ADDR", &s.MetricsAddr)

	if v, ok := lookup("USE_JANUS_PROXY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return dserrors.ConfigError{
				Field:      "USE_JANUS_PROXY",
				Value:      v,
				Message:    "not a boolean",
				Suggestion: "Use true or false",
			}
		}
		s.UseProxy = b
	}

	if v, ok := lookup("DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return dserrors.ConfigError{
				Field:      "DEBUG",
				Value:      v,
				Message:    "not a boolean",
				Suggestion: "Use true or false",
			}
		}
		s.Debug = b
	}
	if v, ok := lookup("LOG_LEVEL"); ok && strings.EqualFold(v, "debug") {
		s.Debug = true
	}

	if v, ok := lookup("DEFAULT_TIMEOUT"); ok && v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return dserrors.ConfigError{
				Field:      "DEFAULT_TIMEOUT",
				Value:      v,
				Message:    err.Error(),
				Suggestion: "Use seconds (30) or a duration (30s)",
			}
		}
		s.Timeout = d
	}

	return nil
}

// parseTimeout accepts whole seconds or a Go duration
func parseTimeout(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", v)
	}
	return d, nil
}

// Validate checks the resolved settings
func (s *Settings) Validate() error {
	if s.Timeout <= 0 {
		return dserrors.ConfigError{
			Field:      "timeout",
			Value:      s.Timeout,
			Message:    "timeout must be positive",
			Suggestion: "Set DEFAULT_TIMEOUT to a value such as 30",
		}
	}

	if _, err := identity.ParseAdminSelection(s.AdminSelection); err != nil {
		return dserrors.ConfigError{
			Field:      "admin_selection",
			Value:      s.AdminSelection,
			Message:    err.Error(),
			Suggestion: "Use 'first' or 'unique'",
		}
	}

	switch s.LogFormat {
	case LogFormatConsole, LogFormatJSON:
	default:
		return dserrors.ConfigError{
			Field:      "log_format",
			Value:      s.LogFormat,
			Message:    "unsupported log format",
			Suggestion: "Use 'console' or 'json'",
		}
	}

	for i, target := range s.Connectivity {
		if target.Host == "" || target.Port <= 0 {
			return dserrors.ConfigError{
				Field:      fmt.Sprintf("connectivity[%d]", i),
				Message:    "host and port are required",
				Suggestion: "Each target needs host, port, and protocol",
			}
		}
	}

	return nil
}

// ServiceAccountSecretID returns the service account secret reference.
// Without an explicit reference the stage-namespaced name is used.
func (s *Settings) ServiceAccountSecretID() (string, error) {
	if s.ServiceAccountSecret != "" {
		return s.ServiceAccountSecret, nil
	}
	if s.Stage == "" {
		return "", dserrors.ConfigError{
			Field:      "SERVICE_ACCOUNT_SECRET_ARN",
			Message:    "service account secret is not configured",
			Suggestion: "Set SERVICE_ACCOUNT_SECRET_ARN, or STAGE to use <stage>/observability/service-account",
		}
	}
	return s.Stage + "/observability/service-account", nil
}

// IdentityBaseURL returns the identity endpoint, honoring IDENTITY_URL
func (s *Settings) IdentityBaseURL() string {
	if s.IdentityURL != "" {
		return strings.TrimRight(s.IdentityURL, "/")
	}
	return identity.BaseURL(s.UseProxy)
}

// AWSOptions converts the AWS settings for the secret store
func (s *Settings) AWSOptions() secretstores.AWSOptions {
	return secretstores.AWSOptions{
		Region:        s.AWS.Region,
		Profile:       s.AWS.Profile,
		Endpoint:      s.AWS.Endpoint,
		AssumeRoleARN: s.AWS.AssumeRoleARN,
	}
}

// NewLogger builds the logger the settings ask for
func (s *Settings) NewLogger(noColor bool) *logging.Logger {
	if s.LogFormat == LogFormatJSON {
		return logging.NewJSON(s.Debug)
	}
	return logging.New(s.Debug, noColor)
}
