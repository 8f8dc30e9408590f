package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

var startedAt = time.Now()

// Readiness statuses.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// HealthResponse is the liveness body.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ReadinessResponse is the readiness body.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	Required  bool   `json:"required"`
	LatencyMs int64  `json:"latency_ms"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadinessChecks wires the readiness endpoint. Catalogs and the inventory
// store are required. A failing command bus, including a host that has not
// connected yet, only degrades readiness.
type ReadinessChecks struct {
	// Catalogs reports the loaded catalog and item counts.
	Catalogs func() (catalogs, items int)

	InventoryStore HealthChecker
	CommandBus     HealthChecker
}

const checkTimeout = 2 * time.Second

// HandleHealth serves liveness.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:        "ok",
			Version:       Version,
			Commit:        Commit,
			UptimeSeconds: int64(time.Since(startedAt).Seconds()),
		})
	}
}

// HandleReady serves readiness. The store and bus checks run concurrently,
// each bounded by checkTimeout.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := map[string]CheckResult{"catalogs": catalogCheck(checks.Catalogs)}

		var mu sync.Mutex
		var wg sync.WaitGroup
		run := func(name string, c HealthChecker, required bool) {
			if c == nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := runCheck(r.Context(), c)
				res.Required = required
				mu.Lock()
				results[name] = res
				mu.Unlock()
			}()
		}
		run("inventory_store", checks.InventoryStore, true)
		run("command_bus", checks.CommandBus, false)
		wg.Wait()

		status := StatusReady
		for _, res := range results {
			if res.Status == "ok" {
				continue
			}
			if res.Required {
				status = StatusNotReady
				break
			}
			status = StatusDegraded
		}

		code := http.StatusOK
		if status == StatusNotReady {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, ReadinessResponse{Status: status, Checks: results})
	}
}

func catalogCheck(counts func() (int, int)) CheckResult {
	res := CheckResult{Status: "error", Required: true, Error: "no catalogs loaded"}
	if counts == nil {
		return res
	}
	catalogs, items := counts()
	res.Detail = fmt.Sprintf("%d catalogs, %d items", catalogs, items)
	if catalogs > 0 {
		res.Status = "ok"
		res.Error = ""
	}
	return res
}

func runCheck(parent context.Context, checker HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := checker.HealthCheck(ctx)
	res := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	return res
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
