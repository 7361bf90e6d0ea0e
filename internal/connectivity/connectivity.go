// Package connectivity checks network reachability of dependencies.
//
// Each target is resolved, connected to, and timed. A failed check is a
// result, not an error: Check always returns one result per target, in
// input order, so callers can report every endpoint in one pass.
package connectivity

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/systmms/idrotate/internal/logging"
)

// Protocol selects how a target is checked
type Protocol string

const (
	ProtocolTCP      Protocol = "tcp"
	ProtocolHTTP     Protocol = "http"
	ProtocolHTTPS    Protocol = "https"
	ProtocolPostgres Protocol = "postgres"
	ProtocolMySQL    Protocol = "mysql"
)

// DefaultTimeout bounds each check
const DefaultTimeout = 5 * time.Second

// Target is an endpoint to check
type Target struct {
	Host     string   `yaml:"host" json:"host"`
	Port     int      `yaml:"port" json:"port"`
	Protocol Protocol `yaml:"protocol" json:"protocol"`
	// Path is the request path for http and https targets
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// User is the login name for postgres and mysql targets
	User     string `yaml:"user,omitempty" json:"user,omitempty"`
	Critical bool   `yaml:"critical,omitempty" json:"critical,omitempty"`
}

// Address returns host:port
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Result is the outcome of one check
type Result struct {
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	Protocol   Protocol `json:"protocol"`
	Success    bool     `json:"success"`
	LatencyMs  int64    `json:"latencyMs,omitempty"`
	ResolvedIP string   `json:"resolvedIp,omitempty"`
	Error      string   `json:"error,omitempty"`
	ErrorCode  string   `json:"errorCode,omitempty"`
	HTTPStatus int      `json:"httpStatus,omitempty"`
	Critical   bool     `json:"critical,omitempty"`
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// HTTPClient is the interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SQLPinger is the part of *sql.DB a database check needs
type SQLPinger interface {
	PingContext(ctx context.Context) error
	Close() error
}

// SQLOpener opens a database handle for driver and dsn
type SQLOpener func(driver, dsn string) (SQLPinger, error)

// Checker runs connectivity checks
type Checker struct {
	resolver    Resolver
	dialer      *net.Dialer
	client      HTTPClient
	openDB      SQLOpener
	timeout     time.Duration
	concurrency int
	logger      *logging.Logger
	now         func() time.Time
}

// Option configures a Checker
type Option func(*Checker)

// WithResolver replaces the DNS resolver
func WithResolver(r Resolver) Option {
	return func(c *Checker) {
		c.resolver = r
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// WithSQLOpener replaces how database handles are opened
func WithSQLOpener(open SQLOpener) Option {
	return func(c *Checker) {
		c.openDB = open
	}
}

// WithTimeout sets the per-target timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.timeout = d
	}
}

// WithConcurrency caps the number of checks in flight. Zero means no limit.
func WithConcurrency(n int) Option {
	return func(c *Checker) {
		c.concurrency = n
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(c *Checker) {
		c.logger = l
	}
}

// NewChecker creates a Checker with system defaults
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		resolver: net.DefaultResolver,
		timeout:  DefaultTimeout,
		logger:   logging.Nop(),
		now:      time.Now,
		openDB: func(driver, dsn string) (SQLPinger, error) {
			return sql.Open(driver, dsn)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dialer = &net.Dialer{Timeout: c.timeout}
	if c.client == nil {
		c.client = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Check tests every target concurrently
func (c *Checker) Check(ctx context.Context, targets []Target) []Result {
	results := make([]Result, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, target := range targets {
		g.Go(func() error {
			results[i] = c.CheckTarget(gctx, target)
			recordCheck(results[i])
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	c.logger.Info("Connectivity check complete: %d/%d targets reachable", succeeded, len(results))

	return results
}

// CheckTarget checks a single target
func (c *Checker) CheckTarget(ctx context.Context, target Target) Result {
	result := Result{
		Host:     target.Host,
		Port:     target.Port,
		Protocol: target.Protocol,
		Critical: target.Critical,
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch target.Protocol {
	case ProtocolTCP:
		c.dialTCP(ctx, target, &result)
	case ProtocolHTTP, ProtocolHTTPS:
		c.getHTTP(ctx, target, &result)
	case ProtocolPostgres, ProtocolMySQL:
		c.pingSQL(ctx, target, &result)
	default:
		result.Error = fmt.Sprintf("Unsupported protocol: %s", target.Protocol)
		return result
	}

	if !result.Success {
		c.logger.Warn("%s %s unreachable: %s", target.Protocol, target.Address(), result.Error)
	} else {
		c.logger.Debug("%s %s reachable in %dms", target.Protocol, target.Address(), result.LatencyMs)
	}
	return result
}

// resolve fills ResolvedIP. It returns false after recording a DNS failure.
func (c *Checker) resolve(ctx context.Context, host string, result *Result) bool {
	if ip := net.ParseIP(host); ip != nil {
		result.ResolvedIP = ip.String()
		return true
	}

	addrs, err := c.resolver.LookupIPAddr(ctx, host)
	if err == nil && len(addrs) == 0 {
		err = &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}
	if err != nil {
		result.Error = fmt.Sprintf("DNS resolution failed: %v", err)
		result.ErrorCode = errorCode(err)
		return false
	}

	result.ResolvedIP = addrs[0].IP.String()
	return true
}

func (c *Checker) elapsed(start time.Time) int64 {
	return c.now().Sub(start).Milliseconds()
}
