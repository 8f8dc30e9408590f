// Package integration provides a reusable test harness for end-to-end
// integration testing of the coreitems server. It starts a full HTTP server
// over copied catalog fixtures, in-memory stores, a websocket host bridge,
// and an HMAC token issuer.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
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
	"github.com/pitabwire/coreitems/internal/transport"
	"github.com/pitabwire/coreitems/model"
)

// TestHarness encapsulates a fully wired coreitems instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	CatalogRoot      string
	Loader           *definition.Loader
	Registry         *definition.Registry
	Tracker          *inventory.Tracker
	Sessions         *session.Registry
	Cooldowns        *cooldown.Engine
	Store            inventory.Store
	IdempotencyStore *command.MemoryIdempotencyStore
	CapResolver      model.CapabilityResolver
	Service          *interaction.Service
	Hub              *transport.Hub
	Prompts          *search.Prompts
	Commands         *CommandRecorder
	Metrics          *observability.Metrics
	Gatherer         prometheus.Gatherer

	cfg *config.Config

	editMu     sync.Mutex
	configEdit func(*config.Config)
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	catalogDir         string
	policyFile         string
	storePath          string
	noStore            bool
	idempotencyEnabled bool
	handlerTimeout     time.Duration
	promptTimeout      time.Duration
	globalCooldown     time.Duration
	extraDispatchers   []command.Dispatcher
	idempotencyStore   command.IdempotencyStore
}

// WithCatalogs sets the catalog fixture directory copied into the catalog
// root. Relative paths are resolved from the testdata directory.
func WithCatalogs(dir string) HarnessOption {
	return func(c *harnessConfig) {
		c.catalogDir = dir
	}
}

// WithPolicyFile sets the static policy YAML file for capability resolution.
func WithPolicyFile(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.policyFile = path
	}
}

// WithFileStore persists counts to a YAML file at path.
func WithFileStore(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.storePath = path
	}
}

// WithoutStore disables count persistence.
func WithoutStore() HarnessOption {
	return func(c *harnessConfig) {
		c.noStore = true
	}
}

// WithIdempotency enables Idempotency-Key replay with an in-memory store.
func WithIdempotency() HarnessOption {
	return func(c *harnessConfig) {
		c.idempotencyEnabled = true
	}
}

// WithIdempotencyStore enables Idempotency-Key replay backed by store.
func WithIdempotencyStore(store command.IdempotencyStore) HarnessOption {
	return func(c *harnessConfig) {
		c.idempotencyEnabled = true
		c.idempotencyStore = store
	}
}

// WithDispatcher adds a dispatcher after the recorder and the host bridge.
func WithDispatcher(d command.Dispatcher) HarnessOption {
	return func(c *harnessConfig) {
		c.extraDispatchers = append(c.extraDispatchers, d)
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithPromptTimeout sets how long a search prompt waits for input.
func WithPromptTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.promptTimeout = d
	}
}

// WithGlobalCooldown sets the cooldown applied to items without their own.
func WithGlobalCooldown(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.globalCooldown = d
	}
}

// NewTestHarness creates and starts a full coreitems test instance. The
// server is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
		promptTimeout:  2 * time.Second,
		globalCooldown: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(hc)
	}

	testdataDir := testdataDir()
	if hc.catalogDir == "" {
		hc.catalogDir = filepath.Join(testdataDir, "customs")
	} else if !filepath.IsAbs(hc.catalogDir) {
		hc.catalogDir = filepath.Join(testdataDir, hc.catalogDir)
	}
	if hc.policyFile == "" {
		hc.policyFile = filepath.Join(testdataDir, "policies.yaml")
	}

	h := &TestHarness{
		t:        t,
		issuer:   newTokenIssuer(),
		Commands: &CommandRecorder{},
	}

	// Step 1: Copy catalog fixtures so tests can edit them.
	h.CatalogRoot = filepath.Join(t.TempDir(), "customs")
	if err := os.CopyFS(h.CatalogRoot, os.DirFS(hc.catalogDir)); err != nil {
		t.Fatalf("copy catalogs: %v", err)
	}

	// Step 2: Build config.
	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	h.cfg.Identity = config.IdentityConfig{
		Enabled:    true,
		Issuer:     h.issuer.Issuer(),
		Audience:   h.issuer.Audience(),
		SecretEnv:  "COREITEMS_TEST_SECRET",
		Algorithms: []string{"HS256"},
		Leeway:     5 * time.Second,
		RolesClaim: "roles",
	}
	h.cfg.Catalogs.Root = h.CatalogRoot
	h.cfg.ItemInteractions.GlobalCooldown = hc.globalCooldown
	h.cfg.ItemInteractions.CooldownMessageEnabled = true
	h.cfg.Search.PromptTimeout = hc.promptTimeout
	h.cfg.Search.PageSize = 2
	h.cfg.Observability.Metrics.Enabled = true

	// Step 3: Load catalogs.
	reg := prometheus.NewRegistry()
	h.Metrics = observability.InitMetrics(reg)
	h.Gatherer = reg

	h.Loader = definition.NewLoader(h.CatalogRoot, h.cfg.Catalogs.Document,
		definition.NewParser(definition.MustValidator(), nil), nil)
	catalogs, err := h.Loader.Load()
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	h.Registry = definition.NewRegistry(catalogs)

	// Step 4: Build matching, cooldowns and tracking.
	matcher, err := resolver.New(h.Registry, h.cfg.Resolver.CacheSize, h.Metrics, nil)
	if err != nil {
		t.Fatalf("build resolver: %v", err)
	}
	h.Cooldowns = cooldown.New(cooldown.SettingsFrom(h.cfg.ItemInteractions), cooldown.WithMetrics(h.Metrics))
	h.Tracker = inventory.NewTracker(matcher, h.Metrics)
	h.Sessions = session.NewRegistry()

	// Step 5: Build stores.
	switch {
	case hc.noStore:
	case hc.storePath != "":
		h.Store = inventory.NewFileStore(hc.storePath, nil)
	default:
		h.Store = inventory.NewMemoryStore()
	}
	h.IdempotencyStore = command.NewMemoryIdempotencyStore()

	// Step 6: Build capability resolver.
	evaluator, err := capability.NewStaticPolicyEvaluator(hc.policyFile)
	if err != nil {
		t.Fatalf("load policy file: %v", err)
	}
	h.CapResolver = capability.NewResolver(evaluator, h.cfg.Capability.Cache.TTL, h.cfg.Capability.Cache.MaxEntries, h.Metrics)

	// Step 7: Build the host bridge and the service.
	h.Hub = transport.NewHub(h.cfg.Host, h.Metrics, nil)
	dispatchers := append([]command.Dispatcher{h.Commands, command.NewHostDispatcher(h.Hub)}, hc.extraDispatchers...)
	dispatcher := command.NewMultiDispatcher(dispatchers...)

	svcOpts := []interaction.Option{
		interaction.WithMetrics(h.Metrics),
		interaction.WithConfigSource(h.reloadedConfig),
	}
	if h.Store != nil {
		svcOpts = append(svcOpts, interaction.WithStore(h.Store))
	}
	h.Service = interaction.NewService(h.Loader, h.Registry, matcher, h.Cooldowns,
		h.Tracker, h.Sessions, dispatcher, svcOpts...)
	if err := h.Service.Restore(context.Background()); err != nil {
		t.Fatalf("restore inventory: %v", err)
	}
	h.Prompts = search.NewPrompts(h.Registry, h.cfg.Search.PromptTimeout)
	h.Hub.Bind(h.Service, h.Prompts)

	// Step 8: Build router with full middleware chain.
	var idem command.IdempotencyStore
	if hc.idempotencyEnabled {
		idem = h.IdempotencyStore
		if hc.idempotencyStore != nil {
			idem = hc.idempotencyStore
		}
	}
	readiness := observability.ReadinessChecks{Catalogs: h.Registry.Counts}
	if hcheck, ok := h.Store.(observability.HealthChecker); ok {
		readiness.InventoryStore = hcheck
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             h.cfg,
		Authenticate:       transport.HMACAuthenticator(h.cfg.Identity, h.issuer.secret),
		CapabilityResolver: h.CapResolver,
		Service:            h.Service,
		Registry:           h.Registry,
		Tracker:            h.Tracker,
		Idempotency:        idem,
		IdempotencyTTL:     time.Minute,
		Hub:                h.Hub,
		Metrics:            h.Metrics,
		Gatherer:           h.Gatherer,
		Readiness:          readiness,
	})

	// Step 9: Start test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// Config returns the configuration the server was built with.
func (h *TestHarness) Config() *config.Config {
	return h.cfg
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// WriteCatalog replaces the document of namespace in the catalog root.
func (h *TestHarness) WriteCatalog(namespace, document string) {
	h.t.Helper()
	dir := filepath.Join(h.CatalogRoot, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.t.Fatalf("create catalog dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, definition.DefaultDocument), []byte(document), 0o644); err != nil {
		h.t.Fatalf("write catalog: %v", err)
	}
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// GETWithHeaders performs an authenticated GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, headers)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// POSTWithHeaders performs an authenticated POST request with additional headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, headers)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("PUT", path, body, token, nil)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, token, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// ErrorBody is the JSON error envelope written by the server.
type ErrorBody struct {
	Error struct {
		Code    string             `json:"code"`
		Message string             `json:"message"`
		Details []model.FieldError `json:"details"`
	} `json:"error"`
}

// AssertError checks the status and envelope code of an error response.
func (h *TestHarness) AssertError(t *testing.T, resp *http.Response, status int, code string) ErrorBody {
	t.Helper()
	var body ErrorBody
	h.AssertJSON(t, resp, status, &body)
	if body.Error.Code != code {
		t.Errorf("error code = %q, want %q (message %q)", body.Error.Code, code, body.Error.Message)
	}
	return body
}

// CommandRecorder is a command dispatcher that keeps every execution.
type CommandRecorder struct {
	mu    sync.Mutex
	execs []command.Execution
}

// Name implements command.Dispatcher.
func (r *CommandRecorder) Name() string { return "recorder" }

// Execute implements command.Dispatcher.
func (r *CommandRecorder) Execute(_ context.Context, exec command.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs = append(r.execs, exec)
	return nil
}

// Executions returns a copy of every recorded execution.
func (r *CommandRecorder) Executions() []command.Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]command.Execution(nil), r.execs...)
}

// Commands returns the command text of every recorded execution.
func (r *CommandRecorder) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.execs))
	for _, e := range r.execs {
		out = append(out, e.Command)
	}
	return out
}

// --- Default test claims ---

// AdminClaims returns TestClaims for an admin caller.
func AdminClaims() TestClaims {
	return TestClaims{SubjectID: "svc-admin", Roles: []string{"admin"}}
}

// OperatorClaims returns TestClaims for an operator caller.
func OperatorClaims() TestClaims {
	return TestClaims{SubjectID: "svc-operator", Roles: []string{"operator"}}
}

// HostClaims returns TestClaims for a game host process.
func HostClaims() TestClaims {
	return TestClaims{SubjectID: "svc-host", Roles: []string{"host"}}
}

// ViewerClaims returns TestClaims for a read-only caller.
func ViewerClaims() TestClaims {
	return TestClaims{SubjectID: "svc-viewer", Roles: []string{"viewer"}}
}

// --- Item fixtures ---

func strPtr(s string) *string { return &s }

func intPtr(v int) *int { return &v }

// SwordItem is the observed form of arena:sword.
func SwordItem() model.ObservedItem {
	return model.ObservedItem{Material: "DIAMOND_SWORD", DisplayName: strPtr("§6Blade"), Amount: 1}
}

// RelicItem is the observed form of arena:relic.
func RelicItem() model.ObservedItem {
	return model.ObservedItem{Material: "NETHER_STAR", DisplayName: strPtr("§dRelic"), Amount: 1}
}

// WandItem is the observed form of arena:wand.
func WandItem() model.ObservedItem {
	return model.ObservedItem{Material: "BLAZE_ROD", DisplayName: strPtr("§eWand"), CustomModelData: intPtr(12), Amount: 1}
}

// CompassItem is the observed form of lobby:compass.
func CompassItem() model.ObservedItem {
	return model.ObservedItem{Material: "COMPASS", DisplayName: strPtr("§eNavigator"), Amount: 1}
}

// PlainItem is a vanilla item no definition matches.
func PlainItem() model.ObservedItem {
	return model.ObservedItem{Material: "DIAMOND_SWORD", Amount: 1}
}

// --- Helpers ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// deadlineWait polls cond until it holds or two seconds pass.
func deadlineWait(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// EditConfig changes the configuration the next catalog reload reads.
func (h *TestHarness) EditConfig(fn func(*config.Config)) {
	h.editMu.Lock()
	defer h.editMu.Unlock()
	h.configEdit = fn
}

func (h *TestHarness) reloadedConfig() (*config.Config, error) {
	h.editMu.Lock()
	defer h.editMu.Unlock()
	c := *h.cfg
	if h.configEdit != nil {
		h.configEdit(&c)
	}
	return &c, nil
}
