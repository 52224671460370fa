package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docsplatform/internal/api"
	"docsplatform/internal/observability/logging"
	"docsplatform/internal/observability/metrics"
	"docsplatform/internal/resource"
)

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type Config struct {
	Addr        string
	TLS         TLSConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Security    SecurityConfig
	Logger      *slog.Logger
	AuditLogger *slog.Logger
	Metrics     *metrics.Recorder
	// TrustProxyHeaders resolves client IPs from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	metrics     *metrics.Recorder
	rateLimiter *rateLimiter
	tlsCertFile string
	tlsKeyFile  string
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, errors.New("api handler is required")
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auditLogger := cfg.AuditLogger
	if auditLogger == nil {
		auditLogger = logging.WithComponent(logger, "audit")
	}
	cors, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, err
	}
	ips := clientIPResolver{trustProxyHeaders: cfg.TrustProxyHeaders}

	mux := http.NewServeMux()
	metricsHandler := recorder.Handler()
	mux.Handle("GET /metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.SetRoute(r.Context(), "GET /metrics")
		metricsHandler.ServeHTTP(w, r)
	}))
	mux.Handle("/", handler)

	rl := newRateLimiter(cfg.RateLimit)
	chain := http.Handler(mux)
	chain = rateLimitMiddleware(rl, ips, logger, chain)
	chain = auditMiddleware(auditLogger, ips, chain)
	chain = authMiddleware(handler, logger, chain)
	chain = corsMiddleware(cors, logger, chain)
	chain = securityHeadersMiddleware(cfg.Security, chain)
	chain = metrics.HTTPMiddleware(recorder, chain)
	chain = loggingMiddleware(logger, ips, chain)
	chain = requestIDMiddleware(logger, chain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           chain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	srv := &Server{
		httpServer:  httpServer,
		logger:      logger,
		metrics:     recorder,
		rateLimiter: rl,
		tlsCertFile: strings.TrimSpace(cfg.TLS.CertFile),
		tlsKeyFile:  strings.TrimSpace(cfg.TLS.KeyFile),
	}
	if srv.tlsCertFile != "" && srv.tlsKeyFile != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return srv, nil
}

// HTTPServer exposes the configured server for callers that manage the
// listener themselves.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// TLS reports the certificate and key paths, empty when TLS is off.
func (s *Server) TLS() TLSConfig {
	return TLSConfig{CertFile: s.tlsCertFile, KeyFile: s.tlsKeyFile}
}

func (s *Server) Start() error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		return s.httpServer.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func loggingMiddleware(logger *slog.Logger, ips clientIPResolver, next http.Handler) http.Handler {
	return logging.RequestLogger(logging.RequestLoggerConfig{
		Logger:            logger,
		DisableRemoteAddr: true,
		AdditionalFields: func(r *http.Request, _ int, _ time.Duration) []any {
			return []any{"remote_ip", ips.resolve(r)}
		},
	})(next)
}

// authMiddleware resolves API tokens into the caller. Requests without a
// token continue anonymously; resources reject them where required.
func authMiddleware(handler *api.Handler, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, api.Prefix+"/") || r.URL.Path == api.Prefix+"/auth/login/" {
			next.ServeHTTP(w, r)
			return
		}
		user, presented, err := handler.AuthenticateRequest(r)
		if !presented {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			if errors.Is(err, api.ErrInvalidToken) {
				writeMiddlewareError(w, http.StatusUnauthorized, err.Error())
				return
			}
			logging.WithContext(r.Context(), logger).Error("authenticate request", "error", err)
			writeMiddlewareError(w, http.StatusServiceUnavailable, "authentication temporarily unavailable")
			return
		}
		ctx := resource.ContextWithCaller(r.Context(), user)
		ctx = logging.ContextWithUserID(ctx, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func auditMiddleware(logger *slog.Logger, ips clientIPResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shouldAudit(r) {
			next.ServeHTTP(w, r)
			return
		}
		recorder := metrics.NewResponseRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)
		logging.WithContext(r.Context(), logger).Info("audit",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_ip", ips.resolve(r))
	})
}

func shouldAudit(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return strings.HasPrefix(r.URL.Path, api.Prefix+"/")
}

func rateLimitMiddleware(rl *rateLimiter, ips clientIPResolver, logger *slog.Logger, next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, api.Prefix+"/") {
			next.ServeHTTP(w, r)
			return
		}
		ip := ips.resolve(r)
		if r.Method == http.MethodPost && r.URL.Path == api.Prefix+"/auth/login/" {
			allowed, retryAfter, err := rl.AllowLogin(r.Context(), ip)
			if err != nil {
				logging.WithContext(r.Context(), logger).Error("rate limiter failure", "error", err)
				writeMiddlewareError(w, http.StatusServiceUnavailable, "rate limit failure")
				return
			}
			if !allowed {
				throttled(w, retryAfter, "too many login attempts")
				return
			}
		}

		var allowed bool
		var retryAfter time.Duration
		if caller, ok := resource.CallerFromContext(r.Context()); ok {
			allowed, retryAfter = rl.AllowUser(caller.ID)
		} else {
			allowed, retryAfter = rl.AllowAnonymous(ip)
		}
		if !allowed {
			throttled(w, retryAfter, "request was throttled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func throttled(w http.ResponseWriter, retryAfter time.Duration, message string) {
	if retryAfter > 0 {
		seconds := int((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	writeMiddlewareError(w, http.StatusTooManyRequests, message)
}

type clientIPResolver struct {
	trustProxyHeaders bool
}

func (c clientIPResolver) resolve(r *http.Request) string {
	if c.trustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
			return xrip
		}
	}
	return clientIP(r.RemoteAddr)
}

func clientIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
