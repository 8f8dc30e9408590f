// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server           ServerConfig           `yaml:"server"`
	Identity         IdentityConfig         `yaml:"identity"`
	Catalogs         CatalogsConfig         `yaml:"catalogs"`
	ItemInteractions ItemInteractionsConfig `yaml:"item_interactions"`
	PlayerData       PlayerDataConfig       `yaml:"player_data"`
	Commands         CommandsConfig         `yaml:"commands"`
	Idempotency      IdempotencyConfig      `yaml:"idempotency"`
	Resolver         ResolverConfig         `yaml:"resolver"`
	Capability       CapabilityConfig       `yaml:"capability"`
	Search           SearchConfig           `yaml:"search"`
	Host             HostConfig             `yaml:"host"`
	Observability    ObservabilityConfig    `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" validate:"gte=0"`
}

// IdentityConfig describes service-token verification. Tokens are HMAC
// signed with the secret read from SecretEnv.
type IdentityConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Issuer     string        `yaml:"issuer" validate:"required_if=Enabled true"`
	Audience   string        `yaml:"audience" validate:"required_if=Enabled true"`
	SecretEnv  string        `yaml:"secret_env" validate:"required_if=Enabled true"`
	Algorithms []string      `yaml:"algorithms" validate:"dive,oneof=HS256 HS384 HS512"`
	Leeway     time.Duration `yaml:"leeway"`
	RolesClaim string        `yaml:"roles_claim"`
}

// CatalogsConfig describes where catalog directories live.
type CatalogsConfig struct {
	Root     string `yaml:"root" validate:"required"`
	Document string `yaml:"document" validate:"required"`
	// TemplateDir receives a copy of the example catalog on startup when set.
	TemplateDir string `yaml:"template_dir"`
}

// ItemInteractionsConfig holds the global cooldown tier.
type ItemInteractionsConfig struct {
	GlobalCooldown          time.Duration `yaml:"global_cooldown" validate:"gte=0"`
	CooldownMessageEnabled  bool          `yaml:"cooldown_message_enabled"`
	CooldownMessage         string        `yaml:"cooldown_message"`
	CooldownMessageInterval int           `yaml:"cooldown_message_interval" validate:"gte=0"`
}

// PlayerDataConfig describes inventory snapshot persistence.
type PlayerDataConfig struct {
	Enabled  bool           `yaml:"enabled"`
	AutoScan AutoScanConfig `yaml:"auto_scan"`
	Store    StoreConfig    `yaml:"store"`
}

// AutoScanConfig describes the periodic rescan of connected users.
type AutoScanConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval" validate:"required_if=Enabled true"`
}

// StoreConfig describes the inventory store backend.
type StoreConfig struct {
	Driver          string        `yaml:"driver" validate:"oneof=file memory sqlite postgres redis"`
	Path            string        `yaml:"path" validate:"required_if=Driver file,required_if=Driver sqlite"`
	DSNEnv          string        `yaml:"dsn_env"`
	AddrEnv         string        `yaml:"addr_env"`
	DB              int           `yaml:"db" validate:"gte=0"`
	KeyPrefix       string        `yaml:"key_prefix"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CommandsConfig selects how executed commands reach the host.
type CommandsConfig struct {
	Dispatcher string        `yaml:"dispatcher" validate:"oneof=log host redis"`
	Channel    string        `yaml:"channel" validate:"required_if=Dispatcher redis"`
	AddrEnv    string        `yaml:"addr_env"`
	Breaker    BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker around the host and redis
// dispatchers. A zero FailureThreshold disables it.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" validate:"gte=0"`
	SuccessThreshold int           `yaml:"success_threshold" validate:"gte=0"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// IdempotencyConfig describes replay protection for host requests that
// carry an Idempotency-Key.
type IdempotencyConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl" validate:"required_if=Enabled true"`
	Driver  string        `yaml:"driver" validate:"omitempty,oneof=memory redis"`
	AddrEnv string        `yaml:"addr_env" validate:"required_if=Driver redis"`
	DB      int           `yaml:"db" validate:"gte=0"`
}

// ResolverConfig sizes the item match cache.
type ResolverConfig struct {
	CacheSize int `yaml:"cache_size" validate:"gte=0"`
}

// CapabilityConfig describes authorization settings.
type CapabilityConfig struct {
	StaticPolicyFile string      `yaml:"static_policy_file"`
	Cache            CacheConfig `yaml:"cache"`
}

// CacheConfig describes cache settings.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries" validate:"gte=0"`
}

// SearchConfig describes the catalog search prompt.
type SearchConfig struct {
	PromptTimeout time.Duration `yaml:"prompt_timeout" validate:"gt=0"`
	PageSize      int           `yaml:"page_size" validate:"min=1"`
}

// HostConfig describes the websocket bridge.
type HostConfig struct {
	Enabled        bool          `yaml:"enabled"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadLimit      int64         `yaml:"read_limit" validate:"gte=0"`
	SendBuffer     int           `yaml:"send_buffer" validate:"gte=0"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format" validate:"omitempty,oneof=json console"`
	Tracing   TracingConfig `yaml:"tracing"`
	Metrics   MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter" validate:"omitempty,oneof=otlp stdout"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Identity: IdentityConfig{
			Algorithms: []string{"HS256"},
			Leeway:     30 * time.Second,
			RolesClaim: "roles",
		},
		Catalogs: CatalogsConfig{
			Root:     "customs",
			Document: "customs.yml",
		},
		ItemInteractions: ItemInteractionsConfig{
			GlobalCooldown:          500 * time.Millisecond,
			CooldownMessage:         "&cThis item is on cooldown!",
			CooldownMessageInterval: 4,
		},
		PlayerData: PlayerDataConfig{
			Enabled: true,
			AutoScan: AutoScanConfig{
				Enabled:  true,
				Interval: 5 * time.Minute,
			},
			Store: StoreConfig{
				Driver:          "file",
				Path:            "player_items.yml",
				KeyPrefix:       "coreitems",
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Commands: CommandsConfig{
			Dispatcher: "log",
			Channel:    "coreitems:commands",
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				OpenTimeout:      30 * time.Second,
			},
		},
		Idempotency: IdempotencyConfig{
			TTL:    2 * time.Minute,
			Driver: "memory",
		},
		Resolver: ResolverConfig{
			CacheSize: 4096,
		},
		Capability: CapabilityConfig{
			Cache: CacheConfig{
				TTL:        5 * time.Minute,
				MaxEntries: 1000,
			},
		},
		Search: SearchConfig{
			PromptTimeout: 30 * time.Second,
			PageSize:      15,
		},
		Host: HostConfig{
			Enabled:      true,
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
			ReadLimit:    1 << 20,
			SendBuffer:   64,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report yaml names so errors point at the config file keys.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that all fields hold usable values.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fieldPath(fe.Namespace()), describeTag(fe)))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// fieldPath strips the root struct name: "Config.server.port" → "server.port".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// applyEnvOverrides reads COREITEMS_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COREITEMS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("COREITEMS_CATALOGS_ROOT"); v != "" {
		cfg.Catalogs.Root = v
	}
	if v := os.Getenv("COREITEMS_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("COREITEMS_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("COREITEMS_IDENTITY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Identity.Enabled = b
		}
	}
	if v := os.Getenv("COREITEMS_PLAYER_DATA_STORE_DRIVER"); v != "" {
		cfg.PlayerData.Store.Driver = v
	}
	if v := os.Getenv("COREITEMS_PLAYER_DATA_STORE_PATH"); v != "" {
		cfg.PlayerData.Store.Path = v
	}
	if v := os.Getenv("COREITEMS_COMMANDS_DISPATCHER"); v != "" {
		cfg.Commands.Dispatcher = v
	}
	if v := os.Getenv("COREITEMS_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("COREITEMS_OBSERVABILITY_LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
