package connectivity_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/idrotate/internal/connectivity"
)

// fakeResolver answers from a fixed table
type fakeResolver map[string][]net.IPAddr

func (r fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	addrs, ok := r[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return addrs, nil
}

func loopback() []net.IPAddr {
	return []net.IPAddr{{IP: net.ParseIP("127.0.0.1")}}
}

func listen(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func serverTarget(t *testing.T, srv *httptest.Server, path string) connectivity.Target {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return connectivity.Target{Host: u.Hostname(), Port: port, Protocol: connectivity.ProtocolHTTP, Path: path}
}

func TestChecker_TCP(t *testing.T) {
	t.Parallel()

	host, port := listen(t)
	checker := connectivity.NewChecker(connectivity.WithTimeout(2 * time.Second))

	result := checker.CheckTarget(context.Background(), connectivity.Target{Host: host, Port: port, Protocol: connectivity.ProtocolTCP})
	assert.True(t, result.Success)
	assert.Equal(t, "127.0.0.1", result.ResolvedIP)
	assert.Empty(t, result.Error)
}

func TestChecker_TCPRefused(t *testing.T) {
	t.Parallel()

	checker := connectivity.NewChecker(connectivity.WithTimeout(2 * time.Second))

	result := checker.CheckTarget(context.Background(), connectivity.Target{Host: "127.0.0.1", Port: closedPort(t), Protocol: connectivity.ProtocolTCP})
	assert.False(t, result.Success)
	assert.Equal(t, "ECONNREFUSED", result.ErrorCode)
	assert.Equal(t, "127.0.0.1", result.ResolvedIP)
}

func TestChecker_DNSFailure(t *testing.T) {
	t.Parallel()

	checker := connectivity.NewChecker(connectivity.WithResolver(fakeResolver{}))

	result := checker.CheckTarget(context.Background(), connectivity.Target{Host: "missing.internal", Port: 443, Protocol: connectivity.ProtocolHTTPS})
	assert.False(t, result.Success)
	assert.Equal(t, "ENOTFOUND", result.ErrorCode)
	assert.Contains(t, result.Error, "DNS resolution failed")
	assert.Empty(t, result.ResolvedIP)
}

func TestChecker_ResolvesHostnames(t *testing.T) {
	t.Parallel()

	_, port := listen(t)
	checker := connectivity.NewChecker(connectivity.WithResolver(fakeResolver{"db.internal": loopback()}))

	result := checker.CheckTarget(context.Background(), connectivity.Target{Host: "db.internal", Port: port, Protocol: connectivity.ProtocolTCP})
	assert.True(t, result.Success)
	assert.Equal(t, "127.0.0.1", result.ResolvedIP)
}

func TestChecker_HTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	checker := connectivity.NewChecker()

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "path", path: "/healthz", wantStatus: http.StatusOK},
		{name: "path without slash", path: "healthz", wantStatus: http.StatusOK},
		{name: "status is not judged", path: "", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := checker.CheckTarget(context.Background(), serverTarget(t, srv, tt.path))
			assert.True(t, result.Success)
			assert.Equal(t, tt.wantStatus, result.HTTPStatus)
		})
	}
}

func TestChecker_UnsupportedProtocol(t *testing.T) {
	t.Parallel()

	checker := connectivity.NewChecker()
	result := checker.CheckTarget(context.Background(), connectivity.Target{Host: "example.com", Port: 21, Protocol: "ftp", Critical: true})

	assert.False(t, result.Success)
	assert.Equal(t, "Unsupported protocol: ftp", result.Error)
	assert.True(t, result.Critical)
}

func TestChecker_SQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		protocol    connectivity.Protocol
		pingErr     error
		wantDriver  string
		wantSuccess bool
		wantCode    string
	}{
		{name: "postgres ping", protocol: connectivity.ProtocolPostgres, wantDriver: "postgres", wantSuccess: true},
		{name: "mysql ping", protocol: connectivity.ProtocolMySQL, wantDriver: "mysql", wantSuccess: true},
		{
			name:        "postgres rejects login",
			protocol:    connectivity.ProtocolPostgres,
			pingErr:     &pq.Error{Code: "28P01", Message: "password authentication failed"},
			wantDriver:  "postgres",
			wantSuccess: true,
			wantCode:    "PG28P01",
		},
		{
			name:        "mysql rejects login",
			protocol:    connectivity.ProtocolMySQL,
			pingErr:     &mysql.MySQLError{Number: 1045, Message: "Access denied"},
			wantDriver:  "mysql",
			wantSuccess: true,
			wantCode:    "MYSQL1045",
		},
		{
			name:        "network failure",
			protocol:    connectivity.ProtocolPostgres,
			pingErr:     errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"),
			wantDriver:  "postgres",
			wantSuccess: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			require.NoError(t, err)

			ping := mock.ExpectPing()
			if tt.pingErr != nil {
				ping.WillReturnError(tt.pingErr)
			}
			mock.ExpectClose()

			var gotDriver, gotDSN string
			checker := connectivity.NewChecker(connectivity.WithSQLOpener(func(driver, dsn string) (connectivity.SQLPinger, error) {
				gotDriver, gotDSN = driver, dsn
				return db, nil
			}))

			result := checker.CheckTarget(context.Background(), connectivity.Target{Host: "10.0.0.5", Port: 5432, Protocol: tt.protocol})
			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantCode, result.ErrorCode)
			assert.Equal(t, tt.wantDriver, gotDriver)
			assert.Contains(t, gotDSN, "10.0.0.5")
			assert.Contains(t, gotDSN, "idrotate")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestChecker_CheckKeepsOrder(t *testing.T) {
	t.Parallel()

	host, port := listen(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	targets := []connectivity.Target{
		{Host: "nowhere.internal", Port: 443, Protocol: connectivity.ProtocolHTTPS},
		{Host: host, Port: port, Protocol: connectivity.ProtocolTCP},
		serverTarget(t, srv, "/"),
		{Host: host, Port: port, Protocol: "udp"},
	}

	checker := connectivity.NewChecker(
		connectivity.WithResolver(fakeResolver{}),
		connectivity.WithConcurrency(2),
	)
	results := checker.Check(context.Background(), targets)

	require.Len(t, results, len(targets))
	for i, target := range targets {
		assert.Equal(t, target.Host, results[i].Host)
		assert.Equal(t, target.Protocol, results[i].Protocol)
	}
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.True(t, results[2].Success)
	assert.Equal(t, http.StatusNoContent, results[2].HTTPStatus)
	assert.False(t, results[3].Success)
}
