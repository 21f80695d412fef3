package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/dbpurge/internal/core"
	"github.com/flemzord/dbpurge/internal/job/jobtest"
	"github.com/flemzord/dbpurge/internal/security"
)

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	info := g.ModuleInfo()

	if info.ID != "gateway.http" {
		t.Errorf("ID = %q, want %q", info.ID, "gateway.http")
	}
	if info.New == nil {
		t.Fatal("New func is nil")
	}

	mod := info.New()
	if _, ok := mod.(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}

	node := mustYAMLNode(t, "{}")
	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "127.0.0.1:8080" {
		t.Errorf("Bind = %q, want default", g.config.Bind)
	}
	if g.config.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %v, want 10s", g.config.ReadTimeout)
	}
	if g.config.WriteTimeout != 60*time.Second {
		t.Errorf("WriteTimeout = %v, want 60s", g.config.WriteTimeout)
	}
	if g.config.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", g.config.ShutdownTimeout)
	}
	if g.config.ProgressPause != time.Second {
		t.Errorf("ProgressPause = %v, want 1s", g.config.ProgressPause)
	}
}

func TestGateway_ConfigureCustom(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	node := mustYAMLNode(t, `
bind: "0.0.0.0:9090"
read_timeout: 5s
write_timeout: 15s
shutdown_timeout: 10s
progress_pause: 250ms
auth:
  bearer_token: "my-token"
  basic_user: "ops"
  basic_pass: "hunter2"
`)

	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "0.0.0.0:9090" {
		t.Errorf("Bind = %q, want custom", g.config.Bind)
	}
	if g.config.Auth.BearerToken != "my-token" || g.config.Auth.BasicUser != "ops" {
		t.Errorf("Auth = %+v", g.config.Auth)
	}
	if g.config.ProgressPause != 250*time.Millisecond {
		t.Errorf("ProgressPause = %v", g.config.ProgressPause)
	}
}

func TestGateway_ProvisionRequiresDispatcher(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Provision(core.NewAppContext(quiet, t.TempDir())); err == nil {
		t.Fatal("expected error without job dispatcher")
	}
}

func TestGateway_ProvisionResolvesServices(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &jobtest.Source{}, withRateLimits(security.RateLimitConfig{}))

	if f.g.jobs == nil || f.g.backups == nil || f.g.audit == nil || f.g.limiter == nil || f.g.gatherer == nil {
		t.Fatalf("services not resolved: %+v", f.g)
	}

	families, err := f.registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "dbpurge_gateway_requests_total" {
			found = true
		}
	}
	if !found {
		t.Error("gateway counters not registered")
	}
}

func TestGateway_ProvisionDuplicateRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	if err := (&Metrics{}).Register(reg); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := (&Metrics{}).Register(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestGateway_ValidateGoodAddress(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	g.config.Bind = "127.0.0.1:8080"
	if err := g.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestGateway_ValidateBadAddress(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	g.config.Bind = "not a valid address::"
	if err := g.Validate(); err == nil {
		t.Error("expected validation error for bad address")
	}
}

// freeAddr returns a free TCP address on localhost.
func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}

// doGet makes a GET request with context and an optional bearer token.
func doGet(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &jobtest.Source{})
	addr := freeAddr(t)
	f.g.config.Bind = addr
	f.g.config.defaults()

	if err := f.g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp := doGet(t, "http://"+addr+"/health", "")
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("health.Status = %q, want %q", health.Status, "ok")
	}

	resp2 := doGet(t, "http://"+addr+"/status", testToken)
	_ = resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want %d", resp2.StatusCode, http.StatusOK)
	}

	if err := f.g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGateway_APINotMountedWithoutAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &jobtest.Source{})
	f.g.config.Auth = AuthConfig{}
	addr := freeAddr(t)
	f.g.config.Bind = addr
	f.g.config.defaults()

	if err := f.g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = f.g.Stop(context.Background()) }()

	for _, path := range []string{"/status", "/api/jobs", "/api/backups"} {
		resp := doGet(t, "http://"+addr+path, "")
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s code = %d, want 404 or 405 (not mounted)", path, resp.StatusCode)
		}
	}

	// Health and metrics stay public.
	resp := doGet(t, "http://"+addr+"/metrics", "")
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics code = %d, want 200", resp.StatusCode)
	}
}

func TestGateway_APIRequiresAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &jobtest.Source{})

	resp := doGet(t, f.srv.URL+"/api/jobs", "")
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no-auth status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	resp2 := doGet(t, f.srv.URL+"/api/jobs", testToken)
	_ = resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("auth status = %d, want %d", resp2.StatusCode, http.StatusOK)
	}

	events := f.eventTypes()
	if len(events) != 2 || events[0] != security.EventAuthFailure || events[1] != security.EventAuthSuccess {
		t.Errorf("audit events = %v", events)
	}
}

func TestGateway_StopNilServer(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("Stop on nil server should not error: %v", err)
	}
}
