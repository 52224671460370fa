package api

import (
	"docsplatform/internal/access"
	"docsplatform/internal/models"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

func (h *Handler) mountRedirects() error {
	return mount(h, resource.Config[models.Redirect]{
		Name:    "redirects",
		Object:  access.ObjectRedirects,
		Parents: h.projectScope,
		List: func(req *resource.Request) ([]models.Redirect, error) {
			return h.Store.ListRedirects(req.Context(), req.Scope.Project.ID)
		},
		Get:        h.getRedirect,
		Create:     h.createRedirect,
		Update:     h.updateRedirect,
		Destroy:    h.destroyRedirect,
		ReadSchema: "redirect",
		Render:     h.renderRedirect,
		WriteSchemas: map[resource.Action]resource.WriteSchema{
			resource.ActionCreate:        redirectSchema,
			resource.ActionUpdate:        redirectUpdateSchema,
			resource.ActionPartialUpdate: redirectUpdateSchema,
			resource.ActionDestroy:       redirectDestroySchema,
		},
		Filters: map[string]resource.Filter[models.Redirect]{
			"type": resource.Exact(func(r models.Redirect) string { return r.Type }),
		},
	},
		get("/projects/{project_slug}/redirects/{$}", resource.ActionList),
		post("/projects/{project_slug}/redirects/{$}", resource.ActionCreate),
		get("/projects/{project_slug}/redirects/{redirect_pk}/{$}", resource.ActionRetrieve),
		put("/projects/{project_slug}/redirects/{redirect_pk}/{$}"),
		patch("/projects/{project_slug}/redirects/{redirect_pk}/{$}"),
		del("/projects/{project_slug}/redirects/{redirect_pk}/{$}"),
	)
}

func (h *Handler) getRedirect(req *resource.Request) (models.Redirect, error) {
	id, err := parseID(req.Param("redirect_pk"))
	if err != nil {
		return models.Redirect{}, err
	}
	redirect, err := h.Store.GetRedirect(req.Context(), id)
	if err != nil {
		return models.Redirect{}, notFound(err)
	}
	if redirect.ProjectID != req.Scope.Project.ID {
		return models.Redirect{}, resource.ErrNotFound
	}
	return redirect, nil
}

// createRedirect always attaches the redirect to the project in the path.
func (h *Handler) createRedirect(req *resource.Request) (models.Redirect, error) {
	input := req.Payload.(*redirectInput)
	draft := models.Redirect{Enabled: true}
	input.apply(&draft)
	if err := checkRedirect(draft); err != nil {
		return models.Redirect{}, err
	}
	redirect, err := h.Store.CreateRedirect(req.Context(), storage.CreateRedirectParams{
		ProjectID:     req.Scope.Project.ID,
		Type:          draft.Type,
		FromURL:       draft.FromURL,
		ToURL:         draft.ToURL,
		HTTPStatus:    draft.HTTPStatus,
		ForceRedirect: draft.ForceRedirect,
		Enabled:       draft.Enabled,
		Position:      input.Position,
		Description:   draft.Description,
	})
	if err != nil {
		return models.Redirect{}, err
	}
	h.auditLogger(req).Info("redirect created", "project", req.Scope.Project.Slug, "redirect", redirect.ID)
	return redirect, nil
}

func (h *Handler) updateRedirect(req *resource.Request, current models.Redirect) (models.Redirect, error) {
	input := req.Payload.(*redirectInput)
	merged := current
	input.apply(&merged)
	if err := checkRedirect(merged); err != nil {
		return models.Redirect{}, err
	}
	redirect, err := h.Store.UpdateRedirect(req.Context(), current.ID, input.update())
	if err != nil {
		return models.Redirect{}, err
	}
	h.auditLogger(req).Info("redirect updated", "project", req.Scope.Project.Slug, "redirect", redirect.ID)
	return redirect, nil
}

func (h *Handler) destroyRedirect(req *resource.Request, redirect models.Redirect) error {
	if err := h.Store.DeleteRedirect(req.Context(), redirect.ID); err != nil {
		return err
	}
	h.auditLogger(req).Info("redirect deleted", "project", req.Scope.Project.Slug, "redirect", redirect.ID)
	return nil
}
