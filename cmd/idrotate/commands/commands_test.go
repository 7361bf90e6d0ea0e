package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/idrotate/internal/config"
	"github.com/systmms/idrotate/internal/connectivity"
	"github.com/systmms/idrotate/internal/identity"
	"github.com/systmms/idrotate/internal/layer"
	"github.com/systmms/idrotate/internal/logging"
	"github.com/systmms/idrotate/internal/rotation"
	"github.com/systmms/idrotate/internal/rotation/storage"
	"github.com/systmms/idrotate/internal/secretstores"
	"github.com/systmms/idrotate/pkg/secretstore"
	"github.com/systmms/idrotate/tests/fakes"
)

const (
	tokenSecret   = "observability/identity-token"
	accountSecret = "prod/observability/service-account"
)

type testEnv struct {
	app    *App
	sm     *fakes.FakeSecretsManagerClient
	idp    *fakes.FakeIdentityServer
	stdout *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	idp := fakes.NewFakeIdentityServer()
	t.Cleanup(idp.Close)
	idp.AddUser("svc-observability", "hunter22")

	sm := fakes.NewFakeSecretsManagerClient()
	sm.AddSecretString(accountSecret, "acct-1", `{"username":"svc-observability","password":"hunter22"}`)

	settings := config.Defaults()
	settings.IdentityURL = idp.URL
	settings.ServiceAccountSecret = accountSecret
	settings.HistoryDir = t.TempDir()
	settings.Timeout = 5 * time.Second

	stdout := &bytes.Buffer{}
	app := &App{
		Config: &config.Config{Settings: settings},
		Logger: logging.Nop(),
		Stdin:  strings.NewReader(""),
		Stdout: stdout,
		NewStore: func(ctx context.Context, _ *config.Settings) (secretstore.Store, error) {
			return secretstores.NewAWSSecretsManagerStore(ctx, secretstores.AWSOptions{},
				secretstores.WithSecretsManagerClient(sm))
		},
		NewRunner: func(*logging.Logger) (layer.ContainerRunner, error) {
			return nil, errors.New("no container runner in tests")
		},
		CallerIdentity: func(context.Context, *config.Settings) (string, error) {
			return "arn:aws:iam::123456789012:role/idrotate", nil
		},
	}

	return &testEnv{app: app, sm: sm, idp: idp, stdout: stdout}
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func TestRotateCommand(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.sm.AddRotatingSecret(tokenSecret, "v1", env.idp.IssueToken("svc-observability"))
	env.sm.AddVersion(tokenSecret, "v2", "", secretstore.StagePending)
	arn := fakes.SecretARN(tokenSecret)

	t.Run("single step", func(t *testing.T) {
		require.NoError(t, execute(t, NewRotateCommand(env.app), "--secret-id", arn, "--token", "v2", "--step", "createSecret"))
		assert.Equal(t, "createSecret: success\n", env.stdout.String())
		env.stdout.Reset()

		require.NoError(t, execute(t, NewRotateCommand(env.app), "--secret-id", arn, "--token", "v2", "--step", "createSecret"))
		assert.Equal(t, "createSecret: noop\n", env.stdout.String())
	})

	t.Run("all steps", func(t *testing.T) {
		require.NoError(t, execute(t, NewRotateCommand(env.app), "--secret-id", arn, "--token", "v2"))
		assert.Equal(t, []string{secretstore.StageCurrent, secretstore.StagePending}, env.sm.StagesOf(tokenSecret, "v2"))
	})

	t.Run("invalid step on current version is noop", func(t *testing.T) {
		env.stdout.Reset()
		require.NoError(t, execute(t, NewRotateCommand(env.app), "--secret-id", arn, "--token", "v2", "--step", "bogus"))
		assert.Equal(t, "bogus: noop\n", env.stdout.String())
	})

	t.Run("unknown version", func(t *testing.T) {
		err := execute(t, NewRotateCommand(env.app), "--secret-id", arn, "--token", "v9", "--step", "testSecret")
		require.Error(t, err)
		assert.ErrorIs(t, err, rotation.ErrUnknownVersion)
	})

	t.Run("history recorded", func(t *testing.T) {
		entries, err := env.app.historyStore().GetHistory(arn, -1)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(entries), 6)
	})
}

func TestRotateCommand_RequiresFlags(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	err := execute(t, NewRotateCommand(env.app), "--secret-id", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestLambdaHandler(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.sm.AddRotatingSecret(tokenSecret, "v1", env.idp.IssueToken("svc-observability"))
	env.sm.AddVersion(tokenSecret, "v2", "", secretstore.StagePending)

	coord, err := env.app.coordinator(context.Background())
	require.NoError(t, err)
	handler := NewLambdaHandler(coord)

	for _, step := range rotation.Steps {
		payload := json.RawMessage(`{"SecretId":"` + fakes.SecretARN(tokenSecret) + `","ClientRequestToken":"v2","Step":"` + step.String() + `"}`)
		require.NoError(t, handler(context.Background(), payload), step)
	}
	assert.Equal(t, []string{secretstore.StageCurrent, secretstore.StagePending}, env.sm.StagesOf(tokenSecret, "v2"))

	err = handler(context.Background(), json.RawMessage(`{"SecretId":"x"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rotation event")
}

func TestTokenCommand(t *testing.T) {
	t.Parallel()

	t.Run("redacted", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		require.NoError(t, execute(t, NewTokenCommand(env.app)))
		assert.Contains(t, env.stdout.String(), "token: [REDACTED]")
		assert.Contains(t, env.stdout.String(), "expires: ")
		assert.Equal(t, "Rackspace", env.idp.LastDomain)
	})

	t.Run("show", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		require.NoError(t, execute(t, NewTokenCommand(env.app), "--show"))

		token := strings.TrimSpace(env.stdout.String())
		assert.NotEmpty(t, token)
		assert.NotContains(t, token, "REDACTED")
	})

	t.Run("incomplete service account", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.sm.AddSecretString(accountSecret, "acct-2", `{"username":"svc-observability"}`)

		err := execute(t, NewTokenCommand(env.app))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "username and password must be set")
	})

	t.Run("bad password", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.idp.AddUser("svc-observability", "changed")

		err := execute(t, NewTokenCommand(env.app))
		require.Error(t, err)
	})
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.idp.IssueToken("svc-observability")

	require.NoError(t, execute(t, NewValidateCommand(env.app), token))
	assert.Contains(t, env.stdout.String(), "valid: true")
	assert.Contains(t, env.stdout.String(), "user: svc-observability")

	env.idp.Revoke(token)
	require.Error(t, execute(t, NewValidateCommand(env.app), token))
}

func TestImpersonateCommand(t *testing.T) {
	t.Parallel()

	t.Run("first admin", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.idp.SetAdmins("123456", "admin-a", "admin-b")

		require.NoError(t, execute(t, NewImpersonateCommand(env.app), "123456", "--ttl", "1h"))
		assert.Contains(t, env.stdout.String(), "tenant: 123456")
		assert.Contains(t, env.stdout.String(), "token: [REDACTED]")
		assert.Equal(t, "admin-a", env.idp.LastImpersonated)
		assert.Equal(t, 3600, env.idp.LastImpersonationTTL)
	})

	t.Run("unique admin required", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.app.Settings().AdminSelection = "unique"
		env.idp.SetAdmins("123456", "admin-a", "admin-b")

		require.Error(t, execute(t, NewImpersonateCommand(env.app), "123456"))
		assert.Equal(t, 0, env.idp.CallCount("impersonate"))
	})

	t.Run("repeated tenants reuse cached token", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.idp.SetAdmins("123456", "admin-a")
		env.idp.SetAdmins("654321", "admin-b")

		require.NoError(t, execute(t, NewImpersonateCommand(env.app), "123456", "654321", "123456", "--show"))

		lines := strings.Split(strings.TrimSpace(env.stdout.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, lines[0], lines[2])
		assert.NotEqual(t, lines[0], lines[1])
		assert.Equal(t, 2, env.idp.CallCount("impersonate"))
	})

	t.Run("one block per tenant", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.idp.SetAdmins("123456", "admin-a")
		env.idp.SetAdmins("654321", "admin-b")

		require.NoError(t, execute(t, NewImpersonateCommand(env.app), "123456", "654321"))
		assert.Contains(t, env.stdout.String(), "tenant: 123456")
		assert.Contains(t, env.stdout.String(), "tenant: 654321")
		assert.Equal(t, 2, strings.Count(env.stdout.String(), "token: [REDACTED]"))
		assert.Equal(t, 2, env.idp.CallCount("impersonate"))
	})
}

func TestImpersonationPadding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ttl  time.Duration
		want time.Duration
	}{
		{ttl: identity.DefaultImpersonationTTL, want: identity.DefaultExpiryPadding},
		{ttl: 2 * time.Hour, want: time.Hour},
		{ttl: time.Hour, want: 30 * time.Minute},
		{ttl: 0, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, impersonationPadding(tt.ttl), tt.ttl.String())
	}
}

type stubRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *stubRunner) Run(_ context.Context, _, hostDir, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	path := filepath.Join(hostDir, "node_modules", "left-pad", "index.js")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("module.exports = {}\n"), 0644)
}

func TestPackageCommand(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	lock := filepath.Join(src, "package-lock.json")
	require.NoError(t, os.WriteFile(lock, []byte(`{"lockfileVersion":3}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "package.json"), []byte(`{"name":"fn"}`), 0644))

	env := newTestEnv(t)
	runner := &stubRunner{}
	env.app.NewRunner = func(*logging.Logger) (layer.ContainerRunner, error) { return runner, nil }
	buildRoot := t.TempDir()

	query, err := json.Marshal(map[string]string{
		"dependency_manager":   "npm",
		"runtime":              "nodejs20.x",
		"dependency_lock_file": lock,
		"pre_package_commands": `["npm config set fund false"]`,
	})
	require.NoError(t, err)

	t.Run("stdin query", func(t *testing.T) {
		env.app.Stdin = bytes.NewReader(query)
		require.NoError(t, execute(t, NewPackageCommand(env.app), "--build-root", buildRoot))

		var out map[string]string
		require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &out))
		assert.FileExists(t, out["output_path"])
		assert.True(t, strings.HasSuffix(out["output_path"], ".zip"))
		assert.Equal(t, 1, runner.calls)
	})

	t.Run("invalid stdin query", func(t *testing.T) {
		env.app.Stdin = strings.NewReader(`{"dependency_manager":"pip"}`)
		err := execute(t, NewPackageCommand(env.app), "--build-root", buildRoot)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid query")
	})

	t.Run("flags", func(t *testing.T) {
		env.stdout.Reset()
		require.NoError(t, execute(t, NewPackageCommand(env.app),
			"--dependency-manager", "yarn", "--runtime", "nodejs20.x", "--lock-file", lock, "--build-root", buildRoot))
		assert.Contains(t, env.stdout.String(), "output_path")
		assert.Equal(t, 2, runner.calls)
	})
}

func TestParseTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    connectivity.Target
		wantErr bool
	}{
		{
			in:   "https://identity.api.rackspacecloud.com:443/v2.0",
			want: connectivity.Target{Host: "identity.api.rackspacecloud.com", Port: 443, Protocol: connectivity.ProtocolHTTPS, Path: "/v2.0", Critical: true},
		},
		{
			in:   "tcp://10.0.0.5:22",
			want: connectivity.Target{Host: "10.0.0.5", Port: 22, Protocol: connectivity.ProtocolTCP, Critical: true},
		},
		{
			in:   "postgres://[::1]:5432",
			want: connectivity.Target{Host: "::1", Port: 5432, Protocol: connectivity.ProtocolPostgres, Critical: true},
		},
		{in: "db.internal:5432", wantErr: true},
		{in: "tcp://db.internal", wantErr: true},
		{in: "tcp://db.internal:99999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseTarget(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseTarget() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConnectivityCommand(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	t.Run("json output", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		require.NoError(t, execute(t, NewConnectivityCommand(env.app),
			"--target", "http://127.0.0.1:"+u.Port()+"/health", "--format", "json"))

		var results []connectivity.Result
		require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &results))
		require.Len(t, results, 1)
		assert.True(t, results[0].Success)
		assert.Equal(t, http.StatusNoContent, results[0].HTTPStatus)
	})

	t.Run("configured targets", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.app.Settings().Connectivity = []connectivity.Target{
			{Host: "127.0.0.1", Port: port, Protocol: connectivity.ProtocolTCP, Critical: true},
			{Host: "127.0.0.1", Port: port, Protocol: "ftp"},
		}

		require.NoError(t, execute(t, NewConnectivityCommand(env.app)))
		assert.Contains(t, env.stdout.String(), "✓ ok (critical)")
		assert.Contains(t, env.stdout.String(), "✗ failed")
	})

	t.Run("critical failure", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		err := execute(t, NewConnectivityCommand(env.app), "--target", "ftp://127.0.0.1:21")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "critical targets unreachable: 127.0.0.1:21")
	})

	t.Run("no targets", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		require.Error(t, execute(t, NewConnectivityCommand(env.app)))
	})
}

func TestHistoryCommand(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	store := env.app.historyStore()
	arn := fakes.SecretARN(tokenSecret)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []storage.HistoryEntry{
		{ID: "1", Timestamp: base, SecretARN: arn, Version: "v2", Step: "createSecret", Status: storage.StatusSuccess, Duration: 250 * time.Millisecond},
		{ID: "2", Timestamp: base.Add(time.Minute), SecretARN: arn, Version: "v2", Step: "testSecret", Status: storage.StatusFailed, Error: "invalid secret"},
		{ID: "3", Timestamp: base.Add(48 * time.Hour), SecretARN: "other", Version: "v7", Step: "finishSecret", Status: storage.StatusNoop},
	}
	for i := range entries {
		require.NoError(t, store.SaveHistory(&entries[i]))
	}

	t.Run("table", func(t *testing.T) {
		env.stdout.Reset()
		require.NoError(t, execute(t, NewHistoryCommand(env.app)))
		out := env.stdout.String()
		assert.Contains(t, out, "observability/identity-token")
		assert.Contains(t, out, "✗ failed")
		assert.Contains(t, out, "250ms")
		assert.Contains(t, out, "Showing 3 entries")
	})

	t.Run("status filter json", func(t *testing.T) {
		env.stdout.Reset()
		require.NoError(t, execute(t, NewHistoryCommand(env.app), arn, "--status", "failed", "--format", "json"))

		var doc struct {
			Count   int `json:"count"`
			Entries []struct {
				Step  string `json:"step"`
				Error string `json:"error"`
			} `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &doc))
		require.Equal(t, 1, doc.Count)
		assert.Equal(t, "testSecret", doc.Entries[0].Step)
		assert.Equal(t, "invalid secret", doc.Entries[0].Error)
	})

	t.Run("date range and limit", func(t *testing.T) {
		env.stdout.Reset()
		require.NoError(t, execute(t, NewHistoryCommand(env.app), "--until", "2026-03-01", "--limit", "1", "--format", "yaml"))
		out := env.stdout.String()
		assert.Contains(t, out, "count: 1")
		assert.Contains(t, out, "step: testSecret")
	})

	t.Run("bad date", func(t *testing.T) {
		require.Error(t, execute(t, NewHistoryCommand(env.app), "--since", "March"))
	})

	t.Run("empty", func(t *testing.T) {
		env.stdout.Reset()
		require.NoError(t, execute(t, NewHistoryCommand(env.app), "arn:none"))
		assert.Contains(t, env.stdout.String(), "No rotation history found")
	})
}

func TestDoctorCommand(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		require.NoError(t, execute(t, NewDoctorCommand(env.app)))
		out := env.stdout.String()
		assert.Contains(t, out, "arn:aws:iam::123456789012:role/idrotate")
		assert.Contains(t, out, "Summary: 3/3 checks healthy")
	})

	t.Run("aws and identity failures", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.app.CallerIdentity = func(context.Context, *config.Settings) (string, error) {
			return "", errors.New("no valid credentials found")
		}
		env.idp.Fail("auth", http.StatusUnauthorized)

		err := execute(t, NewDoctorCommand(env.app))
		require.Error(t, err)
		assert.Equal(t, "2 checks failed", err.Error())
		assert.Contains(t, env.stdout.String(), "aws configure")
		assert.Contains(t, env.stdout.String(), "Check the service account username and password")
	})

	t.Run("connectivity targets", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.app.CheckerOptions = []connectivity.Option{connectivity.WithResolver(staticResolver{
			"identity.internal": {{IP: net.ParseIP("127.0.0.1")}},
		})}

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		t.Cleanup(func() { _ = ln.Close() })
		port := ln.Addr().(*net.TCPAddr).Port

		env.app.Settings().Connectivity = []connectivity.Target{
			{Host: "identity.internal", Port: port, Protocol: connectivity.ProtocolTCP, Critical: true},
			{Host: "metrics.internal", Port: 9090, Protocol: connectivity.ProtocolTCP},
		}

		require.NoError(t, execute(t, NewDoctorCommand(env.app)))
		out := env.stdout.String()
		assert.Contains(t, out, "tcp identity.internal:"+strconv.Itoa(port))
		assert.Contains(t, out, "unreachable (not critical)")
		assert.Contains(t, out, "Summary: 4/5 checks healthy")
	})

	t.Run("missing service account", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.app.Settings().ServiceAccountSecret = "prod/missing"

		require.Error(t, execute(t, NewDoctorCommand(env.app)))
		assert.Contains(t, env.stdout.String(), "- skipped")
	})
}

type staticResolver map[string][]net.IPAddr

func (r staticResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	if addrs, ok := r[host]; ok {
		return addrs, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "-"},
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1.5m"},
		{3 * time.Hour, "3.0h"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}

func TestShortARN(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "prod/token-AbCdEf", shortARN("arn:aws:secretsmanager:us-east-1:123456789012:secret:prod/token-AbCdEf"))
	assert.Equal(t, "plain-name", shortARN("plain-name"))
}
