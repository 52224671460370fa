// Command server starts the documentation platform API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"docsplatform/internal/api"
	"docsplatform/internal/auth"
	"docsplatform/internal/builds"
	"docsplatform/internal/config"
	"docsplatform/internal/importer"
	"docsplatform/internal/observability/logging"
	"docsplatform/internal/observability/metrics"
	"docsplatform/internal/redisconn"
	"docsplatform/internal/server"
	"docsplatform/internal/serverutil"
	"docsplatform/internal/storage"
)

// flagBinding maps a command-line flag onto a configuration key. Only flags
// set explicitly override the file and the environment.
type flagBinding struct {
	name    string
	key     string
	usage   string
	boolean bool
}

var flagBindings = []flagBinding{
	{name: "addr", key: "addr", usage: "HTTP listen address"},
	{name: "mode", key: "mode", usage: "server runtime mode (development or production)"},
	{name: "public-domain", key: "public_domain", usage: "domain serving built documentation"},
	{name: "log-level", key: "log.level", usage: "log level (debug, info, warn, error)"},
	{name: "log-format", key: "log.format", usage: "log format (json or text)"},
	{name: "tls-cert", key: "tls.cert", usage: "path to TLS certificate file"},
	{name: "tls-key", key: "tls.key", usage: "path to TLS private key file"},
	{name: "storage-driver", key: "storage.driver", usage: "datastore driver (json or postgres)"},
	{name: "data", key: "storage.data", usage: "path to JSON datastore"},
	{name: "postgres-dsn", key: "postgres.dsn", usage: "Postgres connection string"},
	{name: "postgres-max-conns", key: "postgres.max_conns", usage: "maximum connections in the Postgres pool"},
	{name: "postgres-acquire-timeout", key: "postgres.acquire_timeout", usage: "timeout when acquiring a Postgres connection"},
	{name: "session-store", key: "sessions.driver", usage: "session store driver (memory or postgres)"},
	{name: "session-postgres-dsn", key: "sessions.dsn", usage: "Postgres DSN for the session store"},
	{name: "session-ttl", key: "sessions.ttl", usage: "absolute lifetime of API tokens"},
	{name: "redis-addr", key: "redis.addr", usage: "Redis address for build admission and login throttling"},
	{name: "redis-password", key: "redis.password", usage: "Redis password"},
	{name: "build-admission", key: "builds.admission", usage: "build admission backend (memory or redis)"},
	{name: "projects-listing", key: "projects.listing", usage: "projects listing strategy (admin or member)"},
	{name: "import-probe", key: "importer.probe", usage: "repository probe used after imports (git or none)"},
	{name: "rate-anon-rps", key: "rate_limit.anon_rps", usage: "anonymous requests per second per IP"},
	{name: "rate-user-rps", key: "rate_limit.user_rps", usage: "authenticated requests per second per user"},
	{name: "rate-login-limit", key: "rate_limit.login_limit", usage: "login attempts per window for a single IP"},
	{name: "rate-redis", key: "rate_limit.redis", usage: "count login attempts in Redis", boolean: true},
	{name: "cors-origins", key: "cors.allowed_origins", usage: "comma separated origins allowed to call the API"},
	{name: "trust-proxy-headers", key: "trust_proxy_headers", usage: "trust X-Forwarded-For and X-Real-IP", boolean: true},
}

func main() {
	configPath, overrides, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.Load(configPath, overrides)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func parseFlags(args []string, output io.Writer) (string, map[string]any, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(output)
	configPath := fs.String("config", "", "path to a TOML configuration file")
	bindings := make(map[string]flagBinding, len(flagBindings))
	for _, binding := range flagBindings {
		bindings[binding.name] = binding
		if binding.boolean {
			fs.Bool(binding.name, false, binding.usage)
		} else {
			fs.String(binding.name, "", binding.usage)
		}
	}
	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	overrides := make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		if binding, ok := bindings[f.Name]; ok {
			overrides[binding.key] = f.Value.String()
		}
	})
	return firstNonEmpty(*configPath, os.Getenv(config.EnvPrefix+"CONFIG")), overrides, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	recorder := metrics.Default()
	logger.Info("starting server", summarize(cfg)...)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeWithTimeout(logger, "datastore", store)

	sessions, sessionStore, err := openSessions(cfg)
	if err != nil {
		return err
	}
	defer closeWithTimeout(logger, "session store", sessionStore)

	var redisClient *redis.Client
	healthChecks := make(map[string]api.HealthCheck)
	if cfg.RedisRequired() {
		redisClient, err = openRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		healthChecks["redis"] = func(ctx context.Context) error {
			return redisconn.Ping(ctx, redisClient, cfg.Redis.Timeout)
		}
	}

	gateway, err := newBuildGateway(cfg.Builds, store, redisClient, logger, recorder)
	if err != nil {
		return err
	}
	finisherOpts := []importer.Option{
		importer.WithLogger(logger),
		importer.WithOutcomeHook(recorder.ObserveImport),
	}
	if cfg.Importer.Probe == "none" {
		finisherOpts = append(finisherOpts, importer.WithProber(nil))
	} else {
		finisherOpts = append(finisherOpts, importer.WithProber(importer.GitProber{Timeout: cfg.Importer.Timeout}))
	}
	finisher, err := importer.NewFinisher(store, gateway, finisherOpts...)
	if err != nil {
		return err
	}

	listing, err := api.ParseListingStrategy(cfg.Projects.Listing)
	if err != nil {
		return err
	}
	handler, err := api.NewHandler(api.Options{
		Store:        store,
		Sessions:     sessions,
		Builds:       gateway,
		Importer:     finisher,
		Logger:       logger,
		Listing:      listing,
		PublicDomain: cfg.PublicDomain,
		HealthChecks: healthChecks,
	})
	if err != nil {
		return fmt.Errorf("build api handler: %w", err)
	}

	rateLimit := server.RateLimitConfig{
		AnonRPS:      cfg.RateLimit.AnonRPS,
		AnonBurst:    cfg.RateLimit.AnonBurst,
		UserRPS:      cfg.RateLimit.UserRPS,
		UserBurst:    cfg.RateLimit.UserBurst,
		LoginLimit:   cfg.RateLimit.LoginLimit,
		LoginWindow:  cfg.RateLimit.LoginWindow,
		RedisTimeout: cfg.Redis.Timeout,
	}
	if cfg.RateLimit.Redis {
		rateLimit.Redis = redisClient
	}
	srv, err := server.New(handler, server.Config{
		Addr:              cfg.Addr,
		TLS:               server.TLSConfig{CertFile: cfg.TLS.Cert, KeyFile: cfg.TLS.Key},
		RateLimit:         rateLimit,
		CORS:              server.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		Logger:            logger,
		Metrics:           recorder,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		tlsCfg := srv.TLS()
		return serverutil.Run(groupCtx, serverutil.Config{
			Server:          srv.HTTPServer(),
			TLS:             serverutil.TLSConfig{CertFile: tlsCfg.CertFile, KeyFile: tlsCfg.KeyFile},
			ShutdownTimeout: cfg.ShutdownTimeout,
			Logger:          logger,
		})
	})
	group.Go(func() error {
		runSessionPurger(groupCtx, logging.WithComponent(logger, "sessions"), sessions, cfg.Sessions.PurgeInterval)
		return nil
	})
	return group.Wait()
}

func openStore(cfg *config.Config) (storage.Repository, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		store, err := storage.NewPostgresRepository(cfg.Postgres.DSN,
			storage.WithPostgresPoolLimits(cfg.Postgres.MaxConns, cfg.Postgres.MinConns),
			storage.WithPostgresAcquireTimeout(cfg.Postgres.AcquireTimeout),
			storage.WithPostgresPoolDurations(cfg.Postgres.MaxConnLifetime, cfg.Postgres.MaxConnIdle, cfg.Postgres.HealthInterval),
			storage.WithPostgresApplicationName(cfg.Postgres.ApplicationName),
			storage.WithPostgresAutoMigrate(cfg.Postgres.AutoMigrate),
		)
		if err != nil {
			return nil, fmt.Errorf("open postgres datastore: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewJSONRepository(cfg.Storage.Data)
		if err != nil {
			return nil, fmt.Errorf("open json datastore: %w", err)
		}
		return store, nil
	}
}

func openSessions(cfg *config.Config) (*auth.SessionManager, auth.SessionStore, error) {
	var store auth.SessionStore
	switch cfg.Sessions.Driver {
	case "postgres":
		pgStore, err := auth.NewPostgresSessionStore(cfg.SessionDSN(), auth.WithTimeout(cfg.Postgres.AcquireTimeout))
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres session store: %w", err)
		}
		store = pgStore
	default:
		store = auth.NewMemorySessionStore()
	}
	manager := auth.NewSessionManager(cfg.Sessions.TTL,
		auth.WithStore(store),
		auth.WithIdleTimeout(cfg.Sessions.IdleTimeout),
	)
	return manager, store, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client, err := redisconn.New(redisconn.Config{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		TLS: redisconn.TLSConfig{
			CAFile:             cfg.TLS.CA,
			CertFile:           cfg.TLS.Cert,
			KeyFile:            cfg.TLS.Key,
			ServerName:         cfg.TLS.ServerName,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("configure redis: %w", err)
	}
	if err := redisconn.Ping(ctx, client, cfg.Timeout); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func newBuildGateway(cfg config.BuildsConfig, store storage.Repository, client redis.UniversalClient, logger *slog.Logger, recorder *metrics.Recorder) (*builds.Gateway, error) {
	opts := []builds.Option{
		builds.WithStaleAfter(cfg.StaleAfter),
		builds.WithLockTTL(cfg.LockTTL),
		builds.WithLogger(logger),
		builds.WithOutcomeHook(recorder.ObserveBuildTrigger),
	}
	if cfg.Admission == "redis" {
		locker, err := builds.NewRedisLocker(client, cfg.Stream+":lock")
		if err != nil {
			return nil, fmt.Errorf("configure build locker: %w", err)
		}
		queue, err := builds.NewRedisQueue(client, cfg.Stream, cfg.MaxLen)
		if err != nil {
			return nil, fmt.Errorf("configure build queue: %w", err)
		}
		opts = append(opts, builds.WithLocker(locker), builds.WithQueue(queue))
	}
	return builds.NewGateway(store, opts...)
}

func closeWithTimeout(logger *slog.Logger, name string, target any) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	switch closer := target.(type) {
	case interface{ Close(context.Context) error }:
		if err := closer.Close(ctx); err != nil {
			logger.Warn("failed to close "+name, "error", err)
		}
	case interface{ Close() error }:
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close "+name, "error", err)
		}
	}
}

// summarize renders the effective configuration for the startup log with
// credentials redacted.
func summarize(cfg *config.Config) []any {
	datastore := map[string]any{"driver": cfg.Storage.Driver}
	if cfg.Storage.Driver == "postgres" {
		datastore["dsn"] = redactDSN(cfg.Postgres.DSN)
		datastore["max_conns"] = cfg.Postgres.MaxConns
	} else {
		datastore["path"] = cfg.Storage.Data
	}
	sessions := map[string]any{"driver": cfg.Sessions.Driver, "ttl": cfg.Sessions.TTL.String()}
	if cfg.Sessions.Driver == "postgres" {
		sessions["dsn"] = redactDSN(cfg.SessionDSN())
	}
	buildAdmission := map[string]any{"driver": cfg.Builds.Admission, "stale_after": cfg.Builds.StaleAfter.String()}
	if cfg.Builds.Admission == "redis" {
		buildAdmission["stream"] = cfg.Builds.Stream
		buildAdmission["addr"] = cfg.Redis.Addr
	}
	login := map[string]any{"driver": "memory", "limit": cfg.RateLimit.LoginLimit, "window": cfg.RateLimit.LoginWindow.String()}
	if cfg.RateLimit.Redis {
		login["driver"] = "redis"
		login["addr"] = cfg.Redis.Addr
	}
	return []any{
		"mode", cfg.Mode,
		"addr", cfg.Addr,
		"tls", cfg.TLS.Cert != "",
		"datastore", datastore,
		"session_store", sessions,
		"build_admission", buildAdmission,
		"login_throttle", login,
		"projects_listing", cfg.Projects.Listing,
		"import_probe", cfg.Importer.Probe,
	}
}

func redactDSN(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil || parsed.User == nil {
		return dsn
	}
	if _, ok := parsed.User.Password(); ok {
		parsed.User = url.UserPassword(parsed.User.Username(), "*****")
	}
	return parsed.String()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
