package capability

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/coreitems/internal/observability"
	"github.com/pitabwire/coreitems/model"
)

func testRctx(roles ...string) *model.RequestContext {
	return &model.RequestContext{
		SubjectID: "user-1",
		Roles:     roles,
	}
}

// --- StaticPolicyEvaluator tests ---

func TestStaticPolicyEvaluator_ResolveCapabilities(t *testing.T) {
	e, err := NewStaticPolicyEvaluator("testdata/policies.yaml")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator() error = %v", err)
	}

	caps, err := e.ResolveCapabilities(testRctx("viewer"))
	if err != nil {
		t.Fatalf("ResolveCapabilities() error = %v", err)
	}

	if !caps.Has(model.CapList) {
		t.Error("viewer should have coreitems:list")
	}
	if caps.Has(model.CapGive) {
		t.Error("viewer should not have coreitems:give")
	}
}

func TestStaticPolicyEvaluator_MultipleRoles(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator("testdata/policies.yaml")
	caps, _ := e.ResolveCapabilities(testRctx("viewer", "game_master"))

	if !caps.HasAll(model.CapGive, model.CapList) {
		t.Error("combined roles should have give and list")
	}
	if caps.Has(model.CapReload) {
		t.Error("combined roles should not have reload")
	}
}

func TestStaticPolicyEvaluator_Wildcard(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator("testdata/policies.yaml")

	operator, _ := e.ResolveCapabilities(testRctx("operator"))
	if !operator.HasAll(model.CapGive, model.CapReload, model.CapList, model.CapSave) {
		t.Error("operator with coreitems:* should match every coreitems capability")
	}
	if operator.Has("other:thing") {
		t.Error("coreitems:* should not match other prefixes")
	}

	owner, _ := e.ResolveCapabilities(testRctx("owner"))
	if !owner.Has("other:thing") {
		t.Error("owner with * should match everything")
	}
}

func TestStaticPolicyEvaluator_UnknownRole(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator("testdata/policies.yaml")
	caps, _ := e.ResolveCapabilities(testRctx("nonexistent"))

	if len(caps) != 0 {
		t.Errorf("unknown role should return empty capabilities, got %v", caps)
	}
}

func TestStaticPolicyEvaluator_BadFile(t *testing.T) {
	if _, err := NewStaticPolicyEvaluator("testdata/nonexistent.yaml"); err == nil {
		t.Fatal("expected error for missing policy file")
	}
	if _, err := NewStaticPolicyEvaluator("testdata/broken.yaml"); err == nil {
		t.Fatal("expected error for malformed policy file")
	}
}

func TestNewStaticPolicy_defaultRoles(t *testing.T) {
	e := NewStaticPolicy(DefaultRoles())
	if err := e.Sync(); err != nil {
		t.Fatalf("Sync() without a file error = %v", err)
	}

	roles := e.Roles()
	sort.Strings(roles)
	want := []string{"admin", "host", "operator", "viewer"}
	if len(roles) != len(want) {
		t.Fatalf("Roles() = %v, want %v", roles, want)
	}

	host, _ := e.ResolveCapabilities(testRctx("host"))
	if !host.Has(model.CapGive) || host.Has(model.CapReload) {
		t.Errorf("host capabilities = %v, want give without reload", host)
	}
}

// --- Resolver tests ---

func TestResolver_Resolve_and_Cache(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator("testdata/policies.yaml")
	m := observability.InitMetrics(prometheus.NewRegistry())
	r := NewResolver(e, 5*time.Minute, 10, m)

	rctx := testRctx("viewer")

	// First call is a cache miss.
	caps1, err := r.Resolve(rctx)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !caps1.Has(model.CapList) {
		t.Error("should have coreitems:list")
	}

	// Second call hits the cache.
	caps2, err := r.Resolve(rctx)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !caps2.Has(model.CapList) {
		t.Error("cached result should have coreitems:list")
	}

	if got := testutil.ToFloat64(m.CapabilityCacheMissesTotal); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CapabilityCacheHitsTotal); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
}

func TestResolver_rolesArePartOfTheKey(t *testing.T) {
	callCount := 0
	mock := &mockEvaluator{
		resolveFunc: func(rctx *model.RequestContext) (model.CapabilitySet, error) {
			callCount++
			return model.CapabilitySet{}, nil
		},
	}
	r := NewResolver(mock, 5*time.Minute, 10, nil)

	r.Resolve(testRctx("a", "b"))
	r.Resolve(testRctx("b", "a"))
	if callCount != 1 {
		t.Fatalf("callCount = %d, want 1 for reordered roles", callCount)
	}
	r.Resolve(testRctx("a"))
	if callCount != 2 {
		t.Fatalf("callCount = %d, want 2 for different roles", callCount)
	}
}

func TestResolver_Invalidate(t *testing.T) {
	callCount := 0
	mock := &mockEvaluator{
		resolveFunc: func(rctx *model.RequestContext) (model.CapabilitySet, error) {
			callCount++
			return model.CapabilitySet{model.CapList: true}, nil
		},
	}
	r := NewResolver(mock, 5*time.Minute, 10, nil)
	rctx := testRctx()
	other := &model.RequestContext{SubjectID: "user-10"}

	r.Resolve(rctx)
	r.Resolve(other)
	if callCount != 2 {
		t.Fatalf("callCount = %d, want 2", callCount)
	}

	r.Resolve(rctx)
	if callCount != 2 {
		t.Fatalf("callCount = %d after cache hit, want 2", callCount)
	}

	r.Invalidate("user-1")
	if r.Len() != 1 {
		t.Errorf("Len() = %d after invalidate, want 1 (user-10 kept)", r.Len())
	}

	r.Resolve(rctx)
	if callCount != 3 {
		t.Fatalf("callCount = %d after invalidate, want 3", callCount)
	}

	r.Purge()
	if r.Len() != 0 {
		t.Errorf("Len() = %d after purge, want 0", r.Len())
	}
}

func TestResolver_TTLExpiry(t *testing.T) {
	callCount := 0
	mock := &mockEvaluator{
		resolveFunc: func(rctx *model.RequestContext) (model.CapabilitySet, error) {
			callCount++
			return model.CapabilitySet{model.CapList: true}, nil
		},
	}
	r := NewResolver(mock, 10*time.Millisecond, 10, nil)
	rctx := testRctx()

	r.Resolve(rctx)
	time.Sleep(50 * time.Millisecond)
	r.Resolve(rctx) // should be expired

	if callCount != 2 {
		t.Fatalf("callCount = %d, want 2 (TTL expired)", callCount)
	}
}

func TestResolver_evaluatorError(t *testing.T) {
	mock := &mockEvaluator{
		resolveFunc: func(*model.RequestContext) (model.CapabilitySet, error) {
			return nil, errors.New("policy unavailable")
		},
	}
	r := NewResolver(mock, 0, 0, nil)
	if _, err := r.Resolve(testRctx()); err == nil {
		t.Fatal("expected evaluator error")
	}
	if r.Len() != 0 {
		t.Error("errors should not be cached")
	}
}

// --- Mock PolicyEvaluator ---

type mockEvaluator struct {
	resolveFunc func(rctx *model.RequestContext) (model.CapabilitySet, error)
}

func (m *mockEvaluator) ResolveCapabilities(rctx *model.RequestContext) (model.CapabilitySet, error) {
	return m.resolveFunc(rctx)
}

func (m *mockEvaluator) Sync() error { return nil }
