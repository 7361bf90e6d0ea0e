// Package commands implements the idrotate CLI
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/systmms/idrotate/internal/config"
	"github.com/systmms/idrotate/internal/connectivity"
	"github.com/systmms/idrotate/internal/credentials"
	"github.com/systmms/idrotate/internal/identity"
	"github.com/systmms/idrotate/internal/layer"
	"github.com/systmms/idrotate/internal/logging"
	"github.com/systmms/idrotate/internal/rotation"
	"github.com/systmms/idrotate/internal/rotation/storage"
	"github.com/systmms/idrotate/internal/secretstores"
	"github.com/systmms/idrotate/pkg/secretstore"
)

// App carries configuration and client factories shared by all commands.
// Tests replace the factories to run commands against fakes.
type App struct {
	Config *config.Config
	Logger *logging.Logger

	Stdin  io.Reader
	Stdout io.Writer

	// NewStore builds the Secrets Manager store
	NewStore       func(ctx context.Context, s *config.Settings) (secretstore.Store, error)
	// NewRunner builds the container runner for layer packaging
	NewRunner      func(logger *logging.Logger) (layer.ContainerRunner, error)
	// CallerIdentity reports the AWS principal for doctor
	CallerIdentity func(ctx context.Context, s *config.Settings) (string, error)
	// CheckerOptions are applied to every connectivity checker
	CheckerOptions []connectivity.Option

	debug   bool
	noColor bool

	metricsServer *http.Server
}

// NewApp returns an App wired to real AWS and Docker clients
func NewApp() *App {
	return &App{
		Config: &config.Config{},
		Logger: logging.New(false, false),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		NewStore: func(ctx context.Context, s *config.Settings) (secretstore.Store, error) {
			return secretstores.NewAWSSecretsManagerStore(ctx, s.AWSOptions())
		},
		NewRunner: func(logger *logging.Logger) (layer.ContainerRunner, error) {
			return layer.NewDockerRunner(logger)
		},
		CallerIdentity: CallerIdentity,
	}
}

// BindFlags registers the global flags
func (a *App) BindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&a.Config.Path, "config", "", "Optional YAML config file")
	flags.StringVar(&a.Config.EnvFile, "env-file", "", "Optional .env file")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&a.debug, "debug", false, "Enable debug logging")
}

// Setup loads configuration, builds the logger and starts the metrics
// endpoint when one is configured.
func (a *App) Setup(ctx context.Context) error {
	a.Config.Logger = a.Logger
	if err := a.Config.Load(); err != nil {
		return err
	}

	settings := a.Config.Settings
	if a.debug {
		settings.Debug = true
	}
	a.Logger = settings.NewLogger(a.noColor)
	a.Config.Logger = a.Logger

	if settings.MetricsAddr != "" {
		a.startMetrics(settings.MetricsAddr)
	}
	return nil
}

// Settings returns the loaded settings
func (a *App) Settings() *config.Settings {
	return a.Config.Settings
}

// Close flushes logs and stops the metrics endpoint
func (a *App) Close() {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metricsServer.Shutdown(ctx)
	}
	_ = a.Logger.Sync()
}

func (a *App) startMetrics(addr string) {
	identity.InitMetrics()
	rotation.InitMetrics()
	connectivity.InitMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Warn("Metrics server stopped: %v", err)
		}
	}()
	a.Logger.Debug("Serving metrics on %s/metrics", addr)
}

// identityAPI builds the identity client from settings
func (a *App) identityAPI() *identity.API {
	s := a.Settings()
	return identity.NewAPI(s.IdentityBaseURL(), s.Timeout)
}

// serviceAccount resolves the configured service account source
func (a *App) serviceAccount(ctx context.Context, store secretstore.Store) (credentials.Source, error) {
	s := a.Settings()
	ref, err := s.ServiceAccountSecretID()
	if err != nil {
		return nil, err
	}

	registry := credentials.NewDefaultRegistry(credentials.CloudOptions{
		Store:              store,
		AWS:                s.AWSOptions(),
		GCPCredentialsFile: s.GCPCredentialsFile,
	})
	return registry.Resolve(ctx, ref)
}

// directClient fetches the service account and returns a caching client.
// The returned cleanup wipes the password.
func (a *App) directClient(ctx context.Context) (*identity.Client, func(), error) {
	s := a.Settings()
	store, err := a.NewStore(ctx, s)
	if err != nil {
		return nil, nil, err
	}

	source, err := a.serviceAccount(ctx, store)
	if err != nil {
		return nil, nil, err
	}

	account, err := source.Fetch(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load service account from %s: %w", source.Describe(), err)
	}
	if !account.Complete() {
		account.Destroy()
		return nil, nil, fmt.Errorf("service account username and password must be set in %s", source.Describe())
	}

	client := identity.NewDirectClient(a.identityAPI(), account.Username, account.Password, identity.DomainRackspace,
		identity.WithLogger(a.Logger))
	return client, account.Destroy, nil
}

// coordinator builds the rotation coordinator with file-backed history
func (a *App) coordinator(ctx context.Context) (*rotation.Coordinator, error) {
	s := a.Settings()
	store, err := a.NewStore(ctx, s)
	if err != nil {
		return nil, err
	}

	source, err := a.serviceAccount(ctx, store)
	if err != nil {
		return nil, err
	}

	api := a.identityAPI()
	factory := func(account credentials.ServiceAccount) identity.TokenSource {
		return identity.NewDirectClient(api, account.Username, account.Password, identity.DomainRackspace,
			identity.WithLogger(a.Logger))
	}

	historyDir := s.HistoryDir
	if historyDir == "" {
		historyDir = storage.DefaultStorageDir()
	}

	return rotation.NewCoordinator(store, source, factory, api,
		rotation.WithLogger(a.Logger),
		rotation.WithHistory(storage.NewFileStorage(historyDir)),
	), nil
}

func (a *App) newChecker(opts ...connectivity.Option) *connectivity.Checker {
	base := []connectivity.Option{
		connectivity.WithTimeout(a.Settings().Timeout),
		connectivity.WithLogger(a.Logger),
	}
	base = append(base, a.CheckerOptions...)
	return connectivity.NewChecker(append(base, opts...)...)
}

// historyStore opens the rotation history directory
func (a *App) historyStore() *storage.FileStorage {
	dir := a.Settings().HistoryDir
	if dir == "" {
		dir = storage.DefaultStorageDir()
	}
	return storage.NewFileStorage(dir)
}
