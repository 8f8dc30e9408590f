package integration

import (
	"encoding/base64"
	"net/http"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitabwire/coreitems/model"
)

// ==========================================================================
// Authentication Tests
// ==========================================================================

func TestSecurity_NoAuthHeader_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	endpoints := []string{
		"/v1/catalogs",
		"/v1/catalogs/search?q=arena",
		"/v1/catalogs/arena/items",
		"/v1/catalogs/arena/items/sword",
		"/v1/users/u-1/cooldowns?item=arena:sword",
		"/v1/users/u-1/inventory",
		"/v1/inventory",
	}

	for _, ep := range endpoints {
		t.Run(ep, func(t *testing.T) {
			resp := h.GET(ep, "")
			h.AssertStatus(t, resp, http.StatusUnauthorized)
		})
	}
}

func TestSecurity_ExpiredJWT_Returns401(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateExpiredToken(OperatorClaims())

	resp := h.GET("/v1/catalogs", token)
	body := h.AssertError(t, resp, http.StatusUnauthorized, model.ErrUnauthorized)
	if body.Error.Message != "Token expired" {
		t.Errorf("message = %q, want %q", body.Error.Message, "Token expired")
	}
}

func TestSecurity_InvalidSignature_Returns401(t *testing.T) {
	h := NewTestHarness(t)
	token := h.issuer.GenerateTokenWithSecret(OperatorClaims(), []byte("some-other-secret-entirely"))

	resp := h.GET("/v1/catalogs", token)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_DisallowedAlgorithm_Returns401(t *testing.T) {
	h := NewTestHarness(t)
	token := h.issuer.GenerateTokenWithMethod(OperatorClaims(), jwt.SigningMethodHS512)

	resp := h.GET("/v1/catalogs", token)
	body := h.AssertError(t, resp, http.StatusUnauthorized, model.ErrUnauthorized)
	if body.Error.Message != "Disallowed signing algorithm" {
		t.Errorf("message = %q, want %q", body.Error.Message, "Disallowed signing algorithm")
	}
}

func TestSecurity_NoneAlgorithm_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	// Craft a "none" algorithm token manually.
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"svc-admin","iss":"https://host.test.coreitems.dev","aud":"coreitems-test","roles":["admin"]}`))
	noneToken := header + "." + payload + "."

	resp := h.GET("/v1/catalogs", noneToken)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_MissingSubject_Returns401(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(TestClaims{Roles: []string{"admin"}})

	resp := h.GET("/v1/catalogs", token)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_ValidJWT_Returns200(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	resp := h.GET("/v1/catalogs", token)
	h.AssertStatus(t, resp, http.StatusOK)
}

func TestSecurity_MalformedToken_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/v1/catalogs", "not.a.valid.jwt.token")
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_HostBridgeRequiresToken(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/v1/host/ws", "")
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

// ==========================================================================
// Capability Tests
// ==========================================================================

func TestSecurity_CapabilitiesByRole(t *testing.T) {
	h := NewTestHarness(t)

	type call struct {
		name   string
		method string
		path   string
		body   any
	}
	give := call{"give", "POST", "/v1/users/u-1/grants", map[string]any{"namespace": "arena", "item": "sword"}}
	reload := call{"reload", "POST", "/v1/catalogs/reload", nil}
	list := call{"list", "GET", "/v1/catalogs/arena/items", nil}
	save := call{"save", "POST", "/v1/inventory/save", nil}

	tests := []struct {
		claims  TestClaims
		allowed map[string]bool
	}{
		{AdminClaims(), map[string]bool{"give": true, "reload": true, "list": true, "save": true}},
		{OperatorClaims(), map[string]bool{"give": true, "reload": true, "list": true, "save": true}},
		{HostClaims(), map[string]bool{"give": true, "list": true}},
		{ViewerClaims(), map[string]bool{"list": true}},
		{TestClaims{SubjectID: "svc-nobody"}, map[string]bool{}},
	}

	for _, tt := range tests {
		token := h.GenerateToken(tt.claims)
		for _, c := range []call{give, reload, list, save} {
			t.Run(tt.claims.SubjectID+"/"+c.name, func(t *testing.T) {
				var resp *http.Response
				if c.method == "GET" {
					resp = h.GET(c.path, token)
				} else {
					resp = h.POST(c.path, c.body, token)
				}
				if tt.allowed[c.name] {
					if resp.StatusCode == http.StatusForbidden {
						t.Errorf("%s was forbidden", c.name)
					}
					resp.Body.Close()
					return
				}
				h.AssertError(t, resp, http.StatusForbidden, model.ErrForbidden)
			})
		}
	}
}

func TestSecurity_ErrorResponseNoStackTrace(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	resp := h.POST("/v1/catalogs/reload", nil, token)
	bodyStr := string(h.ReadBody(resp))

	sensitivePatterns := []string{
		"goroutine",
		".go:",
		"panic",
		"runtime.",
		"/internal/",
		h.CatalogRoot,
	}

	for _, pattern := range sensitivePatterns {
		if strings.Contains(bodyStr, pattern) {
			t.Errorf("error response contains sensitive pattern %q: %s", pattern, bodyStr)
		}
	}
}

func TestSecurity_ItemDetailOmitsSourcePaths(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	body := string(h.ReadBody(h.GET("/v1/catalogs/arena/items/sword", token)))
	if strings.Contains(body, h.CatalogRoot) || strings.Contains(body, "customs.yml") {
		t.Errorf("item detail leaks catalog source path: %s", body)
	}
}

// ==========================================================================
// Security Headers Tests
// ==========================================================================

func TestSecurity_HeadersOnAuthenticatedResponse(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	resp := h.GET("/v1/catalogs", token)
	h.AssertStatus(t, resp, http.StatusOK)

	expectedHeaders := map[string]string{
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Cache-Control":             "no-store",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
	}

	for name, expected := range expectedHeaders {
		actual := resp.Header.Get(name)
		if actual != expected {
			t.Errorf("header %s = %q, want %q", name, actual, expected)
		}
	}
}

func TestSecurity_HeadersOnErrorResponse(t *testing.T) {
	h := NewTestHarness(t)

	// Even 401 responses should have security headers.
	resp := h.GET("/v1/catalogs", "")
	h.AssertStatus(t, resp, http.StatusUnauthorized)

	requiredHeaders := []string{
		"Strict-Transport-Security",
		"X-Content-Type-Options",
		"X-Frame-Options",
		"Cache-Control",
		"Referrer-Policy",
	}

	for _, name := range requiredHeaders {
		if resp.Header.Get(name) == "" {
			t.Errorf("security header %s missing on error response", name)
		}
	}
}

func TestSecurity_HeadersOnPublicEndpoint(t *testing.T) {
	h := NewTestHarness(t)

	// Health endpoint is public but should still have security headers.
	resp := h.GET("/health", "")
	h.AssertStatus(t, resp, http.StatusOK)

	if resp.Header.Get("Strict-Transport-Security") == "" {
		t.Error("HSTS header missing on public endpoint")
	}
	if resp.Header.Get("X-Content-Type-Options") == "" {
		t.Error("X-Content-Type-Options missing on public endpoint")
	}
}

func TestSecurity_CorrelationIDReturned(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	// Without custom correlation ID → generated one returned.
	resp1 := h.GET("/v1/catalogs", token)
	resp1.Body.Close()
	if resp1.Header.Get("X-Correlation-Id") == "" {
		t.Error("X-Correlation-Id not set in response")
	}

	// With custom correlation ID → echoed back.
	resp2 := h.GETWithHeaders("/v1/catalogs", token, map[string]string{
		"X-Correlation-Id": "custom-trace-123",
	})
	resp2.Body.Close()
	if resp2.Header.Get("X-Correlation-Id") != "custom-trace-123" {
		t.Errorf("X-Correlation-Id = %q, want %q", resp2.Header.Get("X-Correlation-Id"), "custom-trace-123")
	}
}

// ==========================================================================
// Input Sanitization Tests
// ==========================================================================

func TestSecurity_PathTraversalInCatalogName(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	resp := h.GET("/v1/catalogs/..%2F..%2Fetc/items", token)
	h.AssertError(t, resp, http.StatusNotFound, model.ErrCatalogNotFound)
}

func TestSecurity_OversizedBodyRejected(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(HostClaims())

	resp := h.POST("/v1/users/u-1/session", map[string]any{
		"name": strings.Repeat("x", 2<<20),
	}, token)
	h.AssertError(t, resp, http.StatusBadRequest, model.ErrBadRequest)
}

// ==========================================================================
// CORS Tests
// ==========================================================================

func TestSecurity_CORSAllowedOrigin(t *testing.T) {
	h := NewTestHarness(t)

	// Allowed origin (configured in harness: http://localhost:3000).
	resp := h.GETWithHeaders("/health", "", map[string]string{
		"Origin": "http://localhost:3000",
	})
	resp.Body.Close()

	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("CORS not set for allowed origin")
	}
}

func TestSecurity_CORSDisallowedOrigin(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GETWithHeaders("/health", "", map[string]string{
		"Origin": "https://evil.example.com",
	})
	resp.Body.Close()

	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Error("CORS headers should not be set for disallowed origin")
	}
}
