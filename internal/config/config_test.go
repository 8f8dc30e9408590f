package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 30*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want default 30s", cfg.Server.WriteTimeout)
	}
	if cfg.Identity.Issuer != "https://auth.example.com" {
		t.Errorf("Identity.Issuer = %q", cfg.Identity.Issuer)
	}
	if len(cfg.Identity.Algorithms) != 2 {
		t.Errorf("Identity.Algorithms = %v, want 2 entries", cfg.Identity.Algorithms)
	}
	if cfg.Catalogs.Root != "/srv/coreitems/customs" {
		t.Errorf("Catalogs.Root = %q", cfg.Catalogs.Root)
	}
	if cfg.Catalogs.Document != "customs.yml" {
		t.Errorf("Catalogs.Document = %q, want default customs.yml", cfg.Catalogs.Document)
	}
	if cfg.ItemInteractions.GlobalCooldown != 750*time.Millisecond {
		t.Errorf("GlobalCooldown = %v, want 750ms", cfg.ItemInteractions.GlobalCooldown)
	}
	if !cfg.ItemInteractions.CooldownMessageEnabled {
		t.Error("CooldownMessageEnabled = false, want true")
	}
	if cfg.ItemInteractions.CooldownMessage != "&cThis item is on cooldown!" {
		t.Errorf("CooldownMessage = %q, want default", cfg.ItemInteractions.CooldownMessage)
	}
	if cfg.PlayerData.AutoScan.Interval != time.Minute {
		t.Errorf("AutoScan.Interval = %v, want 1m", cfg.PlayerData.AutoScan.Interval)
	}
	if cfg.PlayerData.Store.Driver != "redis" {
		t.Errorf("Store.Driver = %q, want redis", cfg.PlayerData.Store.Driver)
	}
	if cfg.Commands.Dispatcher != "host" {
		t.Errorf("Commands.Dispatcher = %q, want host", cfg.Commands.Dispatcher)
	}
	if b := cfg.Commands.Breaker; b.FailureThreshold != 3 || b.SuccessThreshold != 2 || b.OpenTimeout != 10*time.Second {
		t.Errorf("Commands.Breaker = %+v, want 3 failures, default 2 successes, 10s", b)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_identity(t *testing.T) {
	_, err := Load("testdata/missing_identity.yaml")
	if err == nil {
		t.Fatal("Load() with enabled identity and no issuer should return error")
	}
	for _, field := range []string{"identity.issuer", "identity.audience", "identity.secret_env"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q should mention %s", err, field)
		}
	}
}

func TestLoad_unknown_store_driver(t *testing.T) {
	_, err := Load("testdata/bad_store.yaml")
	if err == nil {
		t.Fatal("Load() with unknown store driver should return error")
	}
	if !strings.Contains(err.Error(), "player_data.store.driver") {
		t.Errorf("error = %q, want mention of player_data.store.driver", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults().Validate() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.ItemInteractions.GlobalCooldown != 500*time.Millisecond {
		t.Errorf("default GlobalCooldown = %v, want 500ms", cfg.ItemInteractions.GlobalCooldown)
	}
	if cfg.ItemInteractions.CooldownMessageEnabled {
		t.Error("default CooldownMessageEnabled = true, want false")
	}
	if cfg.ItemInteractions.CooldownMessageInterval != 4 {
		t.Errorf("default CooldownMessageInterval = %d, want 4", cfg.ItemInteractions.CooldownMessageInterval)
	}
	if cfg.PlayerData.AutoScan.Interval != 5*time.Minute {
		t.Errorf("default AutoScan.Interval = %v, want 5m", cfg.PlayerData.AutoScan.Interval)
	}
	if cfg.Search.PromptTimeout != 30*time.Second {
		t.Errorf("default PromptTimeout = %v, want 30s", cfg.Search.PromptTimeout)
	}
}

func TestValidate_port_range(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 70000
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() with port 70000 should fail")
	}
	if !strings.Contains(err.Error(), "server.port failed max=65535") {
		t.Errorf("error = %q", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("COREITEMS_SERVER_PORT", "7000")
	t.Setenv("COREITEMS_CATALOGS_ROOT", "/tmp/customs")
	t.Setenv("COREITEMS_PLAYER_DATA_STORE_DRIVER", "sqlite")
	t.Setenv("COREITEMS_OBSERVABILITY_LOG_LEVEL", "debug")
	t.Setenv("COREITEMS_OBSERVABILITY_LOG_FORMAT", "console")
	t.Setenv("COREITEMS_IDENTITY_ENABLED", "true")

	cfg := Defaults()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Catalogs.Root != "/tmp/customs" {
		t.Errorf("Catalogs.Root = %q", cfg.Catalogs.Root)
	}
	if cfg.PlayerData.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q", cfg.PlayerData.Store.Driver)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.Observability.LogLevel)
	}
	if cfg.Observability.LogFormat != "console" {
		t.Errorf("LogFormat = %q", cfg.Observability.LogFormat)
	}
	if !cfg.Identity.Enabled {
		t.Error("Identity.Enabled = false, want true")
	}
}

func TestApplyEnvOverrides_invalid_port_ignored(t *testing.T) {
	t.Setenv("COREITEMS_SERVER_PORT", "not-a-number")
	cfg := Defaults()
	applyEnvOverrides(cfg)
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestValidate_idempotency(t *testing.T) {
	cfg := Defaults()
	cfg.Idempotency.Enabled = true
	cfg.Idempotency.Driver = "redis"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("redis idempotency without addr_env should fail validation")
	}
	if !strings.Contains(err.Error(), "idempotency.addr_env") {
		t.Errorf("error = %q, want it to name idempotency.addr_env", err)
	}

	cfg.Idempotency.AddrEnv = "COREITEMS_REDIS_ADDR"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
