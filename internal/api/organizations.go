package api

import (
	"net/http"

	"docsplatform/internal/access"
	"docsplatform/internal/models"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

func (h *Handler) mountOrganizationProjects() error {
	err := mount(h, resource.Config[models.Project]{
		Name:    "organization-projects",
		Object:  access.ObjectOrganizationProjects,
		Parents: h.organizationProjectScope,
		List:    h.listOrganizationProjects,
		Get: func(req *resource.Request) (models.Project, error) {
			return *req.Scope.Project, nil
		},
		Update:     h.updateProject,
		ReadSchema: "project",
		Render:     h.renderProject,
		WriteSchemas: map[resource.Action]resource.WriteSchema{
			resource.ActionUpdate:        projectUpdateSchema,
			resource.ActionPartialUpdate: projectUpdateSchema,
		},
		Filters:    projectFilters,
		Expand:     []string{"organization", "organization.teams", "teams"},
		ListExpand: []string{"organization"},
	},
		get("/organizations/{organization_slug}/projects/{$}", resource.ActionList),
		get("/organizations/{organization_slug}/projects/{project_slug}/{$}", resource.ActionRetrieve),
		put("/organizations/{organization_slug}/projects/{project_slug}/{$}"),
		patch("/organizations/{organization_slug}/projects/{project_slug}/{$}"),
	)
	if err != nil {
		return err
	}

	// Users and organizations exist only as parents of nested routes.
	for _, pattern := range []string{
		"/users/{$}",
		"/users/{username}/{$}",
		"/organizations/{$}",
		"/organizations/{organization_slug}/{$}",
	} {
		h.handle(Prefix+pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resource.WriteError(w, resource.ErrNotFound)
		}))
	}
	return nil
}

// organizationProjectScope resolves the organization and, on detail routes,
// a project the organization owns.
func (h *Handler) organizationProjectScope(req *resource.Request) (resource.Scope, error) {
	scope, err := h.organizationScope(req)
	if err != nil {
		return resource.Scope{}, err
	}
	slug := req.Param("project_slug")
	if slug == "" {
		return scope, nil
	}
	project, err := h.Store.GetProjectBySlug(req.Context(), slug)
	if err != nil {
		return resource.Scope{}, notFound(err)
	}
	if project.OrganizationID == nil || *project.OrganizationID != scope.Organization.ID {
		return resource.Scope{}, resource.ErrNotFound
	}
	scope.Project = &project
	if !h.canSeeProject(req.Caller, scope) {
		return resource.Scope{}, resource.ErrNotFound
	}
	return scope, nil
}

func (h *Handler) listOrganizationProjects(req *resource.Request) ([]models.Project, error) {
	projects, err := h.Store.ListProjects(req.Context(), storage.ProjectQuery{OrganizationID: req.Scope.Organization.ID})
	if err != nil {
		return nil, err
	}
	visible := projects[:0:0]
	for _, project := range projects {
		scope := req.Scope
		scope.Project = &project
		if h.canSeeProject(req.Caller, scope) {
			visible = append(visible, project)
		}
	}
	return visible, nil
}
