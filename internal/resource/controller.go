// Package resource implements the generic controller behind every API v3
// endpoint. A resource is described by a Config: how to resolve its parents,
// which policy object guards it, which schema each action uses and how each
// action reads or mutates storage. The controller runs one fixed pipeline:
// authenticate, resolve parents, check permission, scope, resolve the schema
// and execute.
package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"docsplatform/internal/access"
	"docsplatform/internal/models"
	"docsplatform/internal/observability/logging"
)

// Scope holds the parents resolved from the request path. Unused parents
// stay nil.
type Scope struct {
	Project      *models.Project
	Version      *models.Version
	Build        *models.Build
	Organization *models.Organization
	Teams        []models.Team
	User         *models.User
}

// Request is the per-call state handed to resource callbacks.
type Request struct {
	HTTP    *http.Request
	Caller  *models.User
	Action  Action
	Scope   Scope
	Payload any
	Expand  map[string]bool
}

func (r *Request) Context() context.Context { return r.HTTP.Context() }

// Param returns a path wildcard value.
func (r *Request) Param(name string) string { return r.HTTP.PathValue(name) }

func (r *Request) Query() url.Values { return r.HTTP.URL.Query() }

// Expanded reports whether the caller asked for the named expansion.
func (r *Request) Expanded(name string) bool { return r.Expand[name] }

// CustomFunc answers an action with an explicit status and body.
type CustomFunc func(req *Request) (int, any, error)

// Config describes one routed resource.
type Config[T any] struct {
	// Name labels logs.
	Name string
	// Object is the access policy object guarding every action.
	Object  string
	Actions []Action

	// Parents resolves the path parents. Missing or hidden parents must
	// return ErrNotFound.
	Parents func(req *Request) (Scope, error)

	List    func(req *Request) ([]T, error)
	Get     func(req *Request) (T, error)
	Create  func(req *Request) (T, error)
	Update  func(req *Request, current T) (T, error)
	Destroy func(req *Request, current T) error
	Custom  map[Action]CustomFunc

	ReadSchema   string
	Render       func(req *Request, item T) (any, error)
	WriteSchemas map[Action]WriteSchema

	Filters map[string]Filter[T]
	// Expand lists every known expansion; ListExpand the subset honored on
	// list actions.
	Expand     []string
	ListExpand []string
}

// SchemaFor resolves the schema name used by action.
func (c Config[T]) SchemaFor(action Action) (string, error) {
	if !slices.Contains(c.Actions, action) {
		return "", fmt.Errorf("%s: action %s is not routed", c.Name, action)
	}
	if action.ReadOnly() {
		if c.ReadSchema == "" {
			return "", fmt.Errorf("%s: no read schema for %s", c.Name, action)
		}
		return c.ReadSchema, nil
	}
	schema, ok := c.WriteSchemas[action]
	if !ok || schema.Name == "" {
		return "", fmt.Errorf("%s: no write schema for %s", c.Name, action)
	}
	return schema.Name, nil
}

func (c Config[T]) validate(policy *access.Policy) error {
	if c.Name == "" {
		return errors.New("resource name is required")
	}
	if len(c.Actions) == 0 {
		return fmt.Errorf("%s: no routed actions", c.Name)
	}
	if !policy.Objects()[c.Object] {
		return fmt.Errorf("%s: policy has no rules for object %q", c.Name, c.Object)
	}
	for _, action := range c.Actions {
		if _, err := c.SchemaFor(action); err != nil {
			return err
		}
		if _, ok := c.Custom[action]; ok {
			continue
		}
		var missing bool
		switch action {
		case ActionList:
			missing = c.List == nil || c.Render == nil
		case ActionRetrieve:
			missing = c.Get == nil || c.Render == nil
		case ActionCreate:
			missing = c.Create == nil || c.Render == nil
		case ActionUpdate, ActionPartialUpdate:
			missing = c.Get == nil || c.Update == nil || c.Render == nil
		case ActionDestroy:
			missing = c.Get == nil || c.Destroy == nil
		default:
			missing = true
		}
		if missing {
			return fmt.Errorf("%s: no handler for %s", c.Name, action)
		}
	}
	return nil
}

// Controller runs the request pipeline for one Config.
type Controller[T any] struct {
	cfg    Config[T]
	policy *access.Policy
	logger *slog.Logger
}

// NewController validates cfg and fails when any routed action lacks a
// schema or handler.
func NewController[T any](cfg Config[T], policy *access.Policy, logger *slog.Logger) (*Controller[T], error) {
	if policy == nil {
		return nil, errors.New("access policy is required")
	}
	if err := cfg.validate(policy); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller[T]{cfg: cfg, policy: policy, logger: logging.WithComponent(logger, "resource")}, nil
}

// Handler serves action.
func (c *Controller[T]) Handler(action Action) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Serve(w, r, action)
	})
}

// Serve runs the pipeline for action.
func (c *Controller[T]) Serve(w http.ResponseWriter, r *http.Request, action Action) {
	if !slices.Contains(c.cfg.Actions, action) {
		WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": fmt.Sprintf("method %s not allowed", r.Method)})
		return
	}
	req := &Request{HTTP: r, Action: action}
	if caller, ok := CallerFromContext(r.Context()); ok {
		req.Caller = &caller
	}
	if req.Caller == nil {
		WriteError(w, ErrNotAuthenticated)
		return
	}

	if c.cfg.Parents != nil {
		scope, err := c.cfg.Parents(req)
		if err != nil {
			c.fail(w, req, err)
			return
		}
		req.Scope = scope
	}

	if err := c.authorize(req); err != nil {
		c.fail(w, req, err)
		return
	}

	if action == ActionList {
		req.Expand = parseExpand(req.Query(), c.cfg.ListExpand)
	} else {
		req.Expand = parseExpand(req.Query(), c.cfg.Expand)
	}

	if !action.ReadOnly() {
		schema := c.cfg.WriteSchemas[action]
		payload, err := schema.Decode(r.Body, action == ActionPartialUpdate)
		if err != nil {
			c.fail(w, req, err)
			return
		}
		req.Payload = payload
	}

	if custom, ok := c.cfg.Custom[action]; ok {
		status, body, err := custom(req)
		if err != nil {
			c.fail(w, req, err)
			return
		}
		WriteJSON(w, status, body)
		return
	}

	switch action {
	case ActionList:
		c.list(w, req)
	case ActionRetrieve:
		item, err := c.cfg.Get(req)
		if err != nil {
			c.fail(w, req, err)
			return
		}
		c.render(w, req, http.StatusOK, item)
	case ActionCreate:
		item, err := c.cfg.Create(req)
		if err != nil {
			c.fail(w, req, err)
			return
		}
		c.render(w, req, http.StatusCreated, item)
	case ActionUpdate, ActionPartialUpdate:
		current, err := c.cfg.Get(req)
		if err != nil {
			c.fail(w, req, err)
			return
		}
		item, err := c.cfg.Update(req, current)
		if err != nil {
			c.fail(w, req, err)
			return
		}
		c.render(w, req, http.StatusOK, item)
	case ActionDestroy:
		current, err := c.cfg.Get(req)
		if err != nil {
			c.fail(w, req, err)
			return
		}
		if err := c.cfg.Destroy(req, current); err != nil {
			c.fail(w, req, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (c *Controller[T]) authorize(req *Request) error {
	subject := access.Subject{
		User:         req.Caller,
		Project:      req.Scope.Project,
		Organization: req.Scope.Organization,
		Teams:        req.Scope.Teams,
	}
	if req.Scope.User != nil {
		subject.TargetUserID = req.Scope.User.ID
	}
	allowed, err := c.policy.Allowed(access.Roles(subject), c.cfg.Object, req.Action.Verb())
	if err != nil {
		return fmt.Errorf("evaluate policy: %w", err)
	}
	if !allowed {
		return ErrPermissionDenied
	}
	return nil
}

func (c *Controller[T]) list(w http.ResponseWriter, req *Request) {
	items, err := c.cfg.List(req)
	if err != nil {
		c.fail(w, req, err)
		return
	}
	items = applyFilters(items, c.cfg.Filters, req.Query())
	window, page := paginate(items, AbsoluteURL(req.HTTP, req.HTTP.URL.Path, req.HTTP.URL.RawQuery))
	for _, item := range window {
		rendered, err := c.cfg.Render(req, item)
		if err != nil {
			c.fail(w, req, err)
			return
		}
		page.Results = append(page.Results, rendered)
	}
	WriteJSON(w, http.StatusOK, page)
}

func (c *Controller[T]) render(w http.ResponseWriter, req *Request, status int, item T) {
	rendered, err := c.cfg.Render(req, item)
	if err != nil {
		c.fail(w, req, err)
		return
	}
	WriteJSON(w, status, rendered)
}

func (c *Controller[T]) fail(w http.ResponseWriter, req *Request, err error) {
	if StatusFor(normalizeError(err)) == http.StatusInternalServerError {
		logging.WithContext(req.Context(), c.logger).Error("resource action failed",
			"resource", c.cfg.Name,
			"action", req.Action.String(),
			"error", err)
	}
	WriteError(w, err)
}
