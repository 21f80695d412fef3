package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/core"
	"github.com/flemzord/dbpurge/internal/dump"
	"github.com/flemzord/dbpurge/internal/job"
	"github.com/flemzord/dbpurge/internal/job/jobtest"
	"github.com/flemzord/dbpurge/internal/resource"
	"github.com/flemzord/dbpurge/internal/resource/resourcetest"
	"github.com/flemzord/dbpurge/internal/security"
	"github.com/flemzord/dbpurge/internal/security/securitytest"
)

const testToken = "test-token"

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fixture wires a gateway to a real dispatcher over an in-memory
// checkpoint store, a scripted data source and a temp backup directory.
type fixture struct {
	g        *Gateway
	srv      *httptest.Server
	src      *jobtest.Source
	store    *checkpoint.MemoryStore
	backups  *dump.Dir
	registry *prometheus.Registry
	events   func() []security.AuditEvent
}

type fixtureOption func(*fixture, *core.AppContext)

func withRateLimits(cfg security.RateLimitConfig) fixtureOption {
	return func(_ *fixture, appCtx *core.AppContext) {
		appCtx.RegisterService(security.RateLimiterServiceName, security.NewRateLimiter(cfg))
	}
}

func newFixture(t *testing.T, src *jobtest.Source, opts ...fixtureOption) *fixture {
	t.Helper()

	dir, err := dump.New(dump.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("dump.New: %v", err)
	}
	f := &fixture{
		src:      src,
		store:    checkpoint.NewMemoryStore(time.Hour),
		backups:  dir,
		registry: prometheus.NewRegistry(),
	}

	disp, err := job.NewDispatcher(job.Deps{
		Store:  f.store,
		Source: src,
		OpenSink: func(artifact string) (job.Sink, error) {
			s, err := dir.Open(artifact)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		ArtifactName: dir.ArtifactName,
		Resources: func() *resource.Monitors {
			return resource.NewMonitors(&resourcetest.Memory{LimitVal: 1 << 30}, resourcetest.Window(time.Hour), time.Now)
		},
		Logger: quiet,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	audit, events := securitytest.NewTestAuditLogger()
	f.events = events

	appCtx := core.NewAppContext(quiet, t.TempDir())
	appCtx.RegisterService(job.ServiceName, disp)
	appCtx.RegisterService(dump.ServiceName, dir)
	appCtx.RegisterService(security.AuditServiceName, audit)
	appCtx.RegisterService(RegistryServiceName, f.registry)
	for _, o := range opts {
		o(f, appCtx)
	}

	g := &Gateway{config: Config{Auth: AuthConfig{BearerToken: testToken}, ProgressPause: time.Millisecond}}
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	g.startedAt = time.Now()
	f.g = g

	f.srv = httptest.NewServer(g.buildRouter())
	t.Cleanup(f.srv.Close)
	return f
}

// do sends an authenticated request and returns the response with its
// body fully read.
func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

// create starts a job and returns its token.
func (f *fixture) create(t *testing.T, path string, body any) string {
	t.Helper()
	resp, data := f.do(t, http.MethodPost, path, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST %s = %d: %s", path, resp.StatusCode, data)
	}
	var cr createResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if cr.Token == "" {
		t.Fatal("empty token")
	}
	return cr.Token
}

// stepUntilReady polls the step endpoint until the job reports ready.
func (f *fixture) stepUntilReady(t *testing.T, token string) []stepResponse {
	t.Helper()
	var out []stepResponse
	for range 20 {
		resp, data := f.do(t, http.MethodPost, "/api/jobs/step?token="+token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("step = %d: %s", resp.StatusCode, data)
		}
		var sr stepResponse
		if err := json.Unmarshal(data, &sr); err != nil {
			t.Fatalf("decode step: %v", err)
		}
		out = append(out, sr)
		if sr.Ready {
			return out
		}
	}
	t.Fatal("job did not finish in 20 steps")
	return nil
}

func (f *fixture) eventTypes() []security.EventType {
	var out []security.EventType
	for _, e := range f.events() {
		out = append(out, e.Type)
	}
	return out
}

// failingJobs is a Jobs whose store is unavailable.
type failingJobs struct{}

var errStoreDown = errors.New("checkpoint store down")

func (failingJobs) Create(context.Context, checkpoint.Kind, checkpoint.Config) (string, error) {
	return "", errStoreDown
}

func (failingJobs) Step(context.Context, string) (job.Status, error) {
	return job.Status{}, errStoreDown
}

func (failingJobs) Status(context.Context) (job.Status, error) {
	return job.Status{}, errStoreDown
}

func (failingJobs) Reset(context.Context) error { return errStoreDown }

func (failingJobs) Drive(context.Context, string, job.DriveOptions, func(job.Status)) (job.Status, error) {
	return job.Status{}, errStoreDown
}

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}
