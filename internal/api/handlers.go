package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docsplatform/internal/access"
	"docsplatform/internal/auth"
	"docsplatform/internal/builds"
	"docsplatform/internal/models"
	"docsplatform/internal/observability/logging"
	"docsplatform/internal/observability/metrics"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

// Prefix is the mount point of every versioned route.
const Prefix = "/api/v3"

// ListingStrategy selects which projects /projects/ lists for the caller.
type ListingStrategy string

const (
	// ListingAdmin lists the projects the caller administers.
	ListingAdmin ListingStrategy = "admin"
	// ListingMember additionally lists projects shared with the caller
	// through any organization team.
	ListingMember ListingStrategy = "member"
)

// ParseListingStrategy validates a configured strategy name.
func ParseListingStrategy(value string) (ListingStrategy, error) {
	switch strategy := ListingStrategy(strings.ToLower(strings.TrimSpace(value))); strategy {
	case "", ListingAdmin:
		return ListingAdmin, nil
	case ListingMember:
		return ListingMember, nil
	default:
		return "", fmt.Errorf("unknown projects listing strategy %q", value)
	}
}

// BuildGateway admits builds and reconciles version activation.
type BuildGateway interface {
	Trigger(ctx context.Context, project models.Project, version models.Version) (builds.Result, error)
	PostSave(ctx context.Context, project models.Project, version models.Version, wasActive bool) error
}

// ImportFinisher runs the best-effort hook after a project import.
type ImportFinisher interface {
	FinishImport(ctx context.Context, project models.Project)
}

// HealthCheck reports the availability of an optional component.
type HealthCheck func(ctx context.Context) error

type Options struct {
	Store    storage.Repository
	Sessions *auth.SessionManager
	Policy   *access.Policy
	Builds   BuildGateway
	Importer ImportFinisher
	Logger   *slog.Logger
	Listing  ListingStrategy
	// PublicDomain hosts built documentation at {project}.{PublicDomain}.
	PublicDomain string
	HealthChecks map[string]HealthCheck
}

type Handler struct {
	Store        storage.Repository
	Sessions     *auth.SessionManager
	policy       *access.Policy
	builds       BuildGateway
	importer     ImportFinisher
	logger       *slog.Logger
	listing      ListingStrategy
	publicDomain string
	healthChecks map[string]HealthCheck
	mux          *http.ServeMux
}

// NewHandler wires every route. It fails when a resource is misconfigured,
// for example when a routed action has no schema.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Store == nil {
		return nil, errors.New("api: store is required")
	}
	if opts.Sessions == nil {
		opts.Sessions = auth.NewSessionManager(24 * time.Hour)
	}
	if opts.Policy == nil {
		policy, err := access.NewPolicy()
		if err != nil {
			return nil, err
		}
		opts.Policy = policy
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Listing == "" {
		opts.Listing = ListingAdmin
	}
	if opts.PublicDomain == "" {
		opts.PublicDomain = "docs.localhost"
	}
	h := &Handler{
		Store:        opts.Store,
		Sessions:     opts.Sessions,
		policy:       opts.Policy,
		builds:       opts.Builds,
		importer:     opts.Importer,
		logger:       logging.WithComponent(opts.Logger, "api"),
		listing:      opts.Listing,
		publicDomain: opts.PublicDomain,
		healthChecks: opts.HealthChecks,
		mux:          http.NewServeMux(),
	}
	if err := h.routes(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// route binds one method and path to an action of a resource.
type route struct {
	method string
	path   string
	action resource.Action
}

func get(path string, action resource.Action) route {
	return route{method: http.MethodGet, path: path, action: action}
}

func post(path string, action resource.Action) route {
	return route{method: http.MethodPost, path: path, action: action}
}

func put(path string) route {
	return route{method: http.MethodPut, path: path, action: resource.ActionUpdate}
}

func patch(path string) route {
	return route{method: http.MethodPatch, path: path, action: resource.ActionPartialUpdate}
}

func del(path string) route {
	return route{method: http.MethodDelete, path: path, action: resource.ActionDestroy}
}

// mount validates cfg against its routes and registers them.
func mount[T any](h *Handler, cfg resource.Config[T], routes ...route) error {
	if len(cfg.Actions) == 0 {
		for _, rt := range routes {
			if !containsAction(cfg.Actions, rt.action) {
				cfg.Actions = append(cfg.Actions, rt.action)
			}
		}
	}
	controller, err := resource.NewController(cfg, h.policy, h.logger)
	if err != nil {
		return err
	}
	for _, rt := range routes {
		h.handle(rt.method+" "+Prefix+rt.path, controller.Handler(rt.action))
	}
	return nil
}

func containsAction(actions []resource.Action, action resource.Action) bool {
	for _, existing := range actions {
		if existing == action {
			return true
		}
	}
	return false
}

// auditLogger annotates mutations with the acting user.
func (h *Handler) auditLogger(req *resource.Request) *slog.Logger {
	ctx := req.Context()
	if req.Caller != nil {
		ctx = logging.ContextWithUserID(ctx, req.Caller.ID)
	}
	return logging.WithContext(ctx, h.logger)
}

// handle registers pattern and reports it as the metrics route label.
func (h *Handler) handle(pattern string, handler http.Handler) {
	h.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.SetRoute(r.Context(), pattern)
		handler.ServeHTTP(w, r)
	}))
}

func (h *Handler) routes() error {
	h.handle("GET /healthz", http.HandlerFunc(h.Health))
	h.handle("POST "+Prefix+"/auth/login/{$}", http.HandlerFunc(h.Login))
	h.handle("POST "+Prefix+"/auth/logout/{$}", http.HandlerFunc(h.Logout))

	mounts := []func() error{
		h.mountProjects,
		h.mountSubprojects,
		h.mountTranslations,
		h.mountVersions,
		h.mountBuilds,
		h.mountRedirects,
		h.mountEnvironmentVariables,
		h.mountNotifications,
		h.mountOrganizationProjects,
		h.mountRemote,
	}
	for _, mountFn := range mounts {
		if err := mountFn(); err != nil {
			return err
		}
	}
	return nil
}
