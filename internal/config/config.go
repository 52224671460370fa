// Package config loads the server configuration. Values are layered from
// built-in defaults, an optional TOML file, DOCSPLATFORM_* environment
// variables and finally explicit command-line overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment variables. A double underscore
// keeps a literal underscore, a single one separates sections:
// DOCSPLATFORM_POSTGRES_MAX__CONNS sets postgres.max_conns.
const EnvPrefix = "DOCSPLATFORM_"

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

type Config struct {
	Mode              string        `koanf:"mode"`
	Addr              string        `koanf:"addr"`
	PublicDomain      string        `koanf:"public_domain"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	TrustProxyHeaders bool          `koanf:"trust_proxy_headers"`

	Log       LogConfig       `koanf:"log"`
	TLS       TLSConfig       `koanf:"tls"`
	Storage   StorageConfig   `koanf:"storage"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	Sessions  SessionsConfig  `koanf:"sessions"`
	Redis     RedisConfig     `koanf:"redis"`
	Builds    BuildsConfig    `koanf:"builds"`
	Projects  ProjectsConfig  `koanf:"projects"`
	Importer  ImporterConfig  `koanf:"importer"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type TLSConfig struct {
	Cert string `koanf:"cert"`
	Key  string `koanf:"key"`
}

// StorageConfig selects the datastore. Data is the JSON file path.
type StorageConfig struct {
	Driver string `koanf:"driver"`
	Data   string `koanf:"data"`
}

type PostgresConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdle     time.Duration `koanf:"max_conn_idle"`
	HealthInterval  time.Duration `koanf:"health_interval"`
	AcquireTimeout  time.Duration `koanf:"acquire_timeout"`
	ApplicationName string        `koanf:"app_name"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// SessionsConfig controls API tokens. An empty DSN on the postgres driver
// reuses postgres.dsn.
type SessionsConfig struct {
	Driver        string        `koanf:"driver"`
	DSN           string        `koanf:"dsn"`
	TTL           time.Duration `koanf:"ttl"`
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
	PurgeInterval time.Duration `koanf:"purge_interval"`
}

type RedisConfig struct {
	Addr     string         `koanf:"addr"`
	Username string         `koanf:"username"`
	Password string         `koanf:"password"`
	DB       int            `koanf:"db"`
	PoolSize int            `koanf:"pool_size"`
	Timeout  time.Duration  `koanf:"timeout"`
	TLS      RedisTLSConfig `koanf:"tls"`
}

type RedisTLSConfig struct {
	CA                 string `koanf:"ca"`
	Cert               string `koanf:"cert"`
	Key                string `koanf:"key"`
	ServerName         string `koanf:"server_name"`
	InsecureSkipVerify bool   `koanf:"skip_verify"`
}

// BuildsConfig selects where build admission locks and queued jobs live.
type BuildsConfig struct {
	Admission  string        `koanf:"admission"`
	Stream     string        `koanf:"stream"`
	MaxLen     int64         `koanf:"max_len"`
	StaleAfter time.Duration `koanf:"stale_after"`
	LockTTL    time.Duration `koanf:"lock_ttl"`
}

type ProjectsConfig struct {
	Listing string `koanf:"listing"`
}

type ImporterConfig struct {
	Probe   string        `koanf:"probe"`
	Timeout time.Duration `koanf:"timeout"`
}

type RateLimitConfig struct {
	AnonRPS     float64       `koanf:"anon_rps"`
	AnonBurst   int           `koanf:"anon_burst"`
	UserRPS     float64       `koanf:"user_rps"`
	UserBurst   int           `koanf:"user_burst"`
	LoginLimit  int           `koanf:"login_limit"`
	LoginWindow time.Duration `koanf:"login_window"`
	// Redis moves the login window into the shared Redis instance.
	Redis bool `koanf:"redis"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Mode:            ModeDevelopment,
		PublicDomain:    "docs.localhost",
		ShutdownTimeout: 10 * time.Second,
		Log:             LogConfig{Level: "info", Format: "json"},
		Storage:         StorageConfig{Driver: "json", Data: "data/store.json"},
		Postgres: PostgresConfig{
			MinConns:        -1,
			ApplicationName: "docsplatform",
			AutoMigrate:     true,
		},
		Sessions: SessionsConfig{
			Driver:        "memory",
			TTL:           24 * time.Hour,
			IdleTimeout:   2 * time.Hour,
			PurgeInterval: 10 * time.Minute,
		},
		Redis: RedisConfig{Timeout: 2 * time.Second},
		Builds: BuildsConfig{
			Admission:  "memory",
			Stream:     "docsplatform:builds",
			MaxLen:     10000,
			StaleAfter: 3 * time.Hour,
			LockTTL:    30 * time.Second,
		},
		Projects: ProjectsConfig{Listing: "admin"},
		Importer: ImporterConfig{Probe: "git", Timeout: 20 * time.Second},
		RateLimit: RateLimitConfig{
			AnonRPS:     5,
			AnonBurst:   20,
			UserRPS:     20,
			UserBurst:   60,
			LoginLimit:  10,
			LoginWindow: time.Minute,
		},
	}
}

// Load layers configPath (optional), the environment and overrides onto the
// defaults. Override keys use the dotted koanf path, for example
// "postgres.dsn".
func Load(configPath string, overrides map[string]any) (*Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
	s = strings.ReplaceAll(s, "_", ".")
	return strings.ReplaceAll(s, "%UNDERSCORE%", "_")
}

func (c *Config) normalize() {
	lower := func(v *string) { *v = strings.ToLower(strings.TrimSpace(*v)) }
	lower(&c.Mode)
	lower(&c.Storage.Driver)
	lower(&c.Sessions.Driver)
	lower(&c.Builds.Admission)
	lower(&c.Projects.Listing)
	lower(&c.Importer.Probe)
	c.Addr = strings.TrimSpace(c.Addr)
	if c.Addr == "" {
		c.Addr = DefaultListenAddr(c.Mode)
	}
	origins := c.CORS.AllowedOrigins[:0]
	for _, origin := range c.CORS.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.CORS.AllowedOrigins = origins
}

// DefaultListenAddr picks the listen address for mode.
func DefaultListenAddr(mode string) string {
	if mode == ModeProduction {
		return ":80"
	}
	return ":8080"
}

// SessionDSN resolves the DSN for the postgres session store.
func (c *Config) SessionDSN() string {
	if dsn := strings.TrimSpace(c.Sessions.DSN); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(c.Postgres.DSN)
}

// RedisRequired reports whether any component needs the Redis client.
func (c *Config) RedisRequired() bool {
	return c.Builds.Admission == "redis" || c.RateLimit.Redis
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeDevelopment, ModeProduction, c.Mode))
	}
	switch c.Storage.Driver {
	case "json":
		if strings.TrimSpace(c.Storage.Data) == "" {
			errs = append(errs, errors.New("storage.data is required for the json driver"))
		}
		if c.Mode == ModeProduction {
			errs = append(errs, errors.New("production mode requires the postgres storage driver"))
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be json or postgres, got %q", c.Storage.Driver))
	}
	switch c.Sessions.Driver {
	case "memory":
	case "postgres":
		if c.SessionDSN() == "" {
			errs = append(errs, errors.New("sessions.dsn or postgres.dsn is required for postgres sessions"))
		}
	default:
		errs = append(errs, fmt.Errorf("sessions.driver must be memory or postgres, got %q", c.Sessions.Driver))
	}
	if c.Sessions.TTL <= 0 {
		errs = append(errs, errors.New("sessions.ttl must be positive"))
	}
	switch c.Builds.Admission {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("builds.admission must be memory or redis, got %q", c.Builds.Admission))
	}
	switch c.Projects.Listing {
	case "admin", "member":
	default:
		errs = append(errs, fmt.Errorf("projects.listing must be admin or member, got %q", c.Projects.Listing))
	}
	switch c.Importer.Probe {
	case "git", "none":
	default:
		errs = append(errs, fmt.Errorf("importer.probe must be git or none, got %q", c.Importer.Probe))
	}
	if c.RedisRequired() && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis.addr is required when builds.admission is redis or rate_limit.redis is set"))
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		errs = append(errs, errors.New("tls.cert and tls.key must be set together"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	return errors.Join(errs...)
}
