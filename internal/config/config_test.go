package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docsplatform.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ModeDevelopment, cfg.Mode)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "json", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Sessions.Driver)
	assert.Equal(t, "memory", cfg.Builds.Admission)
	assert.Equal(t, "admin", cfg.Projects.Listing)
	assert.Equal(t, 24*time.Hour, cfg.Sessions.TTL)
	assert.Equal(t, int32(-1), cfg.Postgres.MinConns)
	assert.False(t, cfg.RedisRequired())
}

func TestLoadFileEnvAndOverridePrecedence(t *testing.T) {
	path := writeConfigFile(t, `
addr = ":9000"
public_domain = "readthedocs.test"

[storage]
driver = "postgres"

[postgres]
dsn = "postgres://file/db"
max_conns = 8
acquire_timeout = "3s"

[builds]
admission = "redis"
stale_after = "90m"

[redis]
addr = "127.0.0.1:6379"

[cors]
allowed_origins = ["https://a.example"]
`)
	t.Setenv("DOCSPLATFORM_POSTGRES_DSN", "postgres://env/db")
	t.Setenv("DOCSPLATFORM_POSTGRES_MAX__CONNS", "16")
	t.Setenv("DOCSPLATFORM_PROJECTS_LISTING", "Member")
	t.Setenv("DOCSPLATFORM_CORS_ALLOWED__ORIGINS", "https://b.example, https://c.example")

	cfg, err := Load(path, map[string]any{"addr": ":9100"})
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, "readthedocs.test", cfg.PublicDomain)
	assert.Equal(t, "postgres://env/db", cfg.Postgres.DSN)
	assert.Equal(t, int32(16), cfg.Postgres.MaxConns)
	assert.Equal(t, 3*time.Second, cfg.Postgres.AcquireTimeout)
	assert.Equal(t, 90*time.Minute, cfg.Builds.StaleAfter)
	assert.Equal(t, "member", cfg.Projects.Listing)
	assert.Equal(t, []string{"https://b.example", "https://c.example"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.RedisRequired())
}

func TestLoadOverridesAcceptFlagStrings(t *testing.T) {
	cfg, err := Load("", map[string]any{
		"sessions.ttl":        "1h",
		"rate_limit.anon_rps": "2.5",
		"trust_proxy_headers": "true",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Sessions.TTL)
	assert.Equal(t, 2.5, cfg.RateLimit.AnonRPS)
	assert.True(t, cfg.TrustProxyHeaders)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"), nil)
	assert.ErrorContains(t, err, "load config file")
}

func TestSessionDSNFallsBackToPostgres(t *testing.T) {
	cfg := Default()
	cfg.Postgres.DSN = "postgres://main"
	assert.Equal(t, "postgres://main", cfg.SessionDSN())
	cfg.Sessions.DSN = "postgres://sessions"
	assert.Equal(t, "postgres://sessions", cfg.SessionDSN())
}

func TestProductionListensOnPort80(t *testing.T) {
	cfg, err := Load("", map[string]any{
		"mode":            "production",
		"storage.driver":  "postgres",
		"postgres.dsn":    "postgres://db",
		"sessions.driver": "postgres",
	})
	require.NoError(t, err)
	assert.Equal(t, ":80", cfg.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "staging" }, "mode must be"},
		{"production on json", func(c *Config) { c.Mode = ModeProduction }, "production mode requires the postgres storage driver"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "postgres.dsn is required"},
		{"postgres sessions without dsn", func(c *Config) { c.Sessions.Driver = "postgres" }, "sessions.dsn or postgres.dsn"},
		{"unknown admission", func(c *Config) { c.Builds.Admission = "kafka" }, "builds.admission"},
		{"redis admission without addr", func(c *Config) { c.Builds.Admission = "redis" }, "redis.addr is required"},
		{"redis login window without addr", func(c *Config) { c.RateLimit.Redis = true }, "redis.addr is required"},
		{"unknown listing", func(c *Config) { c.Projects.Listing = "everyone" }, "projects.listing"},
		{"unknown probe", func(c *Config) { c.Importer.Probe = "svn" }, "importer.probe"},
		{"partial tls", func(c *Config) { c.TLS.Cert = "cert.pem" }, "tls.cert and tls.key"},
		{"zero ttl", func(c *Config) { c.Sessions.TTL = 0 }, "sessions.ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "postgres.max_conns", envKey("DOCSPLATFORM_POSTGRES_MAX__CONNS"))
	assert.Equal(t, "rate_limit.anon_rps", envKey("DOCSPLATFORM_RATE__LIMIT_ANON__RPS"))
	assert.Equal(t, "mode", envKey("DOCSPLATFORM_MODE"))
}
