package testkit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sha1n/relic-gitindex/internal/app"
	"github.com/sha1n/relic-gitindex/internal/config"
	"github.com/spf13/pflag"
)

// Service is a component a test environment starts and stops
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	GetName() string
}

// TestEnvContext exposes the properties services published on start
type TestEnvContext interface {
	GetProperties() map[string]any
	GetProperty(name string) (any, bool)
}

// TestEnv starts services in order and stops them in reverse
type TestEnv interface {
	Start() (map[string]any, error)
	Stop() error
	GetContext() TestEnvContext
}

type properties map[string]any

func (p properties) GetProperties() map[string]any {
	return p
}

func (p properties) GetProperty(name string) (any, bool) {
	val, ok := p[name]
	return val, ok
}

type testEnv struct {
	services []Service
	started  int
	props    properties
}

// NewTestEnv creates a new test environment with the given services
func NewTestEnv(services ...Service) TestEnv {
	return &testEnv{services: services, props: properties{}}
}

// Start starts every service. On failure the services already started are
// stopped before the error is returned.
func (e *testEnv) Start() (map[string]any, error) {
	for _, s := range e.services[e.started:] {
		props, err := s.Start()
		if err != nil {
			return nil, errors.Join(fmt.Errorf("%s: %w", s.GetName(), err), e.Stop())
		}
		e.started++
		for k, v := range props {
			e.props[k] = v
		}
	}
	return e.props, nil
}

// Stop stops the started services in reverse order and joins their errors
func (e *testEnv) Stop() error {
	var errs []error
	for ; e.started > 0; e.started-- {
		s := e.services[e.started-1]
		if err := s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.GetName(), err))
		}
	}
	return errors.Join(errs...)
}

func (e *testEnv) GetContext() TestEnvContext {
	return e.props
}

// GetFreePort returns a free port from the kernel
func GetFreePort() (int, error) {
	return getFreePortWithAddr("localhost:0")
}

// MustGetFreePort returns a free port or fails the test
func MustGetFreePort(t testing.TB) int {
	t.Helper()
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	return port
}

func getFreePortWithAddr(addrStr string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", addrStr)
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	Port         int      // Uses free port if 0
	Transport    string   // Defaults to "sse"
	AuthType     string   // Defaults to "none"
	Host         string   // Defaults to "localhost"
	BaseDir      string   // Defaults to a temp dir
	Repositories []string // "path" or "id=path"
	SyncInterval string   // Defaults to "1m"
	Watch        bool
}

// NewTestFlags creates a configured pflag.FlagSet for testing
func NewTestFlags(t testing.TB, opts *FlagOptions) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)

	if opts == nil {
		opts = &FlagOptions{}
	}

	port := opts.Port
	if port == 0 {
		port = MustGetFreePort(t)
	}
	baseDir := opts.BaseDir
	if baseDir == "" {
		baseDir = t.TempDir()
	}

	_ = flags.Set("port", fmt.Sprintf("%d", port))
	_ = flags.Set("transport", valueOr(opts.Transport, "sse"))
	_ = flags.Set("auth-type", valueOr(opts.AuthType, "none"))
	_ = flags.Set("host", valueOr(opts.Host, "localhost"))
	_ = flags.Set("index-base-dir", baseDir)
	_ = flags.Set("index-sync-interval", valueOr(opts.SyncInterval, "1m"))
	if len(opts.Repositories) > 0 {
		_ = flags.Set("index-repositories", strings.Join(opts.Repositories, ","))
	}
	if opts.Watch {
		_ = flags.Set("index-watch", "true")
	}

	return flags
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ServerService runs the HTTP server of a fully wired application
type ServerService struct {
	settings *config.Settings
	srv      *http.Server
	cleanup  func()
	done     chan error
}

// NewServerService creates a ServerService for settings
func NewServerService(settings *config.Settings) *ServerService {
	return &ServerService{settings: settings}
}

// GetName returns the service name
func (s *ServerService) GetName() string {
	return "relic-gitindex"
}

// Start starts the server and waits for it to report healthy. It publishes
// the base URL under "url".
func (s *ServerService) Start() (map[string]any, error) {
	registry := prometheus.NewRegistry()
	server, cleanup, err := app.CreateMCPServer(s.settings, registry)
	if err != nil {
		return nil, err
	}

	srv, err := app.NewSSEServer(server, s.settings, registry)
	if err != nil {
		cleanup()
		return nil, err
	}
	s.srv, s.cleanup = srv, cleanup

	s.done = make(chan error, 1)
	go func() { s.done <- srv.ListenAndServe() }()

	url := "http://" + srv.Addr
	if err := waitHealthy(url+"/health", 5*time.Second); err != nil {
		_ = s.Stop()
		return nil, err
	}
	return map[string]any{"url": url}, nil
}

// Stop shuts the server down and releases the index
func (s *ServerService) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.srv.Shutdown(ctx)
	if serveErr := <-s.done; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		err = errors.Join(err, serveErr)
	}
	s.cleanup()
	s.srv = nil
	return err
}

func waitHealthy(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("server at %s did not become healthy within %v", url, timeout)
}
