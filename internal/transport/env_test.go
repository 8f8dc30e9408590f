package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pitabwire/coreitems/internal/capability"
	"github.com/pitabwire/coreitems/internal/command"
	"github.com/pitabwire/coreitems/internal/config"
	"github.com/pitabwire/coreitems/internal/cooldown"
	"github.com/pitabwire/coreitems/internal/definition"
	"github.com/pitabwire/coreitems/internal/interaction"
	"github.com/pitabwire/coreitems/internal/inventory"
	"github.com/pitabwire/coreitems/internal/observability"
	"github.com/pitabwire/coreitems/internal/resolver"
	"github.com/pitabwire/coreitems/internal/search"
	"github.com/pitabwire/coreitems/internal/session"
	"github.com/pitabwire/coreitems/model"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	execs []command.Execution
}

func (d *recordingDispatcher) Name() string { return "recording" }

func (d *recordingDispatcher) Execute(_ context.Context, exec command.Execution) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execs = append(d.execs, exec)
	return nil
}

func (d *recordingDispatcher) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.execs))
	for _, e := range d.execs {
		out = append(out, e.Command)
	}
	return out
}

type staticSource struct {
	catalogs []*definition.Catalog
}

func (s *staticSource) Load() ([]*definition.Catalog, error) { return s.catalogs, nil }

func ptr[T any](v T) *T { return &v }

func testCatalogs() []*definition.Catalog {
	sword := model.NewItemDefinition("arena", "sword", "DIAMOND_SWORD")
	sword.DisplayName = "§6Blade"
	sword.Primary = model.NewActionProperties("heal %player%")
	sword.Primary.Cooldown = 3 * time.Second
	sword.Primary.CooldownMessage = "§cWait %remaining%s"

	relic := model.NewItemDefinition("arena", "relic", "NETHER_STAR")
	relic.Droppable = false
	relic.DropMessage = "§cYou cannot drop this"

	bow := model.NewItemDefinition("arena", "bow", "BOW")
	bow.DisplayName = "§aLongbow"

	compass := model.NewItemDefinition("lobby", "compass", "COMPASS")
	compass.DisplayName = "§eNavigator"

	return []*definition.Catalog{
		definition.NewCatalog("arena", sword, relic, bow),
		definition.NewCatalog("lobby", compass),
	}
}

func swordItem() model.ObservedItem {
	return model.ObservedItem{Material: "DIAMOND_SWORD", DisplayName: ptr("§6Blade"), Amount: 1}
}

type testEnv struct {
	deps       Dependencies
	handler    http.Handler
	service    *interaction.Service
	dispatcher *recordingDispatcher
	store      *inventory.MemoryStore
	tracker    *inventory.Tracker
	hub        *Hub
	prompts    *search.Prompts
	metrics    *observability.Metrics
}

type envOption func(*testEnv)

// withAuth enables HS256 verification against testSecret.
func withAuth() envOption {
	return func(e *testEnv) {
		e.deps.Config.Identity = testIdentityCfg()
		e.deps.Authenticate = HMACAuthenticator(e.deps.Config.Identity, testSecret)
		e.deps.CapabilityResolver = capability.NewResolver(
			capability.NewStaticPolicy(capability.DefaultRoles()), time.Minute, 100, e.metrics)
	}
}

func withoutStore() envOption {
	return func(e *testEnv) { e.store = nil }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.CORS.AllowedOrigins = []string{"https://app.example.com"}
	cfg.Server.HandlerTimeout = 5 * time.Second
	cfg.Search.PageSize = 2

	reg := prometheus.NewRegistry()
	e := &testEnv{
		metrics:    observability.InitMetrics(reg),
		dispatcher: &recordingDispatcher{},
		store:      inventory.NewMemoryStore(),
		deps: Dependencies{
			Config:         cfg,
			Idempotency:    command.NewMemoryIdempotencyStore(),
			IdempotencyTTL: time.Minute,
			Gatherer:       reg,
		},
	}
	for _, opt := range opts {
		opt(e)
	}

	catalogs := testCatalogs()
	registry := definition.NewRegistry(catalogs)
	res, err := resolver.New(registry, 0, e.metrics, nil)
	if err != nil {
		t.Fatalf("resolver.New: %v", err)
	}
	e.tracker = inventory.NewTracker(res, e.metrics)
	e.hub = NewHub(cfg.Host, e.metrics, nil)
	e.prompts = search.NewPrompts(registry, 100*time.Millisecond)

	svcOpts := []interaction.Option{interaction.WithMetrics(e.metrics)}
	if e.store != nil {
		svcOpts = append(svcOpts, interaction.WithStore(e.store))
	}
	e.service = interaction.NewService(
		&staticSource{catalogs: catalogs},
		registry,
		res,
		cooldown.New(cooldown.DefaultSettings()),
		e.tracker,
		session.NewRegistry(),
		command.NewMultiDispatcher(e.dispatcher, command.NewHostDispatcher(e.hub)),
		svcOpts...,
	)
	e.hub.Bind(e.service, e.prompts)

	e.deps.Service = e.service
	e.deps.Registry = registry
	e.deps.Tracker = e.tracker
	e.deps.Hub = e.hub
	e.deps.Metrics = e.metrics
	e.handler = NewRouter(e.deps)
	return e
}

// do sends a request through the router. A non-nil body is encoded as JSON.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			r = bytes.NewBufferString(raw)
		} else {
			data, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error model.ErrorEnvelope `json:"error"`
}
