package api

import (
	"context"
	"net/http"
	"slices"
	"sort"
	"strings"

	"docsplatform/internal/access"
	"docsplatform/internal/models"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

var projectFilters = map[string]resource.Filter[models.Project]{
	"name":                 resource.IContains(func(p models.Project) string { return p.Name }),
	"slug":                 resource.IContains(func(p models.Project) string { return p.Slug }),
	"language":             resource.Exact(func(p models.Project) string { return p.Language }),
	"programming_language": resource.Exact(func(p models.Project) string { return p.ProgrammingLanguage }),
}

var (
	projectExpand     = []string{"active_versions", "active_versions.last_build", "active_versions.last_build.config", "organization", "teams"}
	projectListExpand = []string{"active_versions", "active_versions.last_build", "organization"}
)

func (h *Handler) mountProjects() error {
	err := mount(h, resource.Config[models.Project]{
		Name:         "projects",
		Object:       access.ObjectProjects,
		List:         h.listProjects,
		Create:       h.importProject,
		ReadSchema:   "project",
		Render:       h.renderProject,
		WriteSchemas: map[resource.Action]resource.WriteSchema{resource.ActionCreate: projectImportSchema},
		Filters:      projectFilters,
		Expand:       projectExpand,
		ListExpand:   projectListExpand,
	},
		get("/projects/{$}", resource.ActionList),
		post("/projects/{$}", resource.ActionCreate),
	)
	if err != nil {
		return err
	}

	return mount(h, resource.Config[models.Project]{
		Name:    "project",
		Object:  access.ObjectProject,
		Parents: h.projectScope,
		Get:     func(req *resource.Request) (models.Project, error) { return *req.Scope.Project, nil },
		Update:  h.updateProject,
		Custom: map[resource.Action]resource.CustomFunc{
			resource.ActionSuperproject: h.retrieveSuperproject,
		},
		ReadSchema: "project",
		Render:     h.renderProject,
		WriteSchemas: map[resource.Action]resource.WriteSchema{
			resource.ActionUpdate:        projectUpdateSchema,
			resource.ActionPartialUpdate: projectUpdateSchema,
		},
		Expand: projectExpand,
	},
		get("/projects/{project_slug}/{$}", resource.ActionRetrieve),
		put("/projects/{project_slug}/{$}"),
		patch("/projects/{project_slug}/{$}"),
		get("/projects/{project_slug}/superproject/{$}", resource.ActionSuperproject),
	)
}

// listProjects applies the configured listing strategy.
func (h *Handler) listProjects(req *resource.Request) ([]models.Project, error) {
	return h.projectsForUser(req.Context(), req.Caller.ID, h.listing == ListingMember)
}

// projectsForUser returns the projects userID administers directly, through
// an owned organization or through an admin team. With shared set, projects
// reachable through any team the user belongs to are included too.
func (h *Handler) projectsForUser(ctx context.Context, userID int64, shared bool) ([]models.Project, error) {
	byID := make(map[int64]models.Project)
	direct, err := h.Store.ListProjects(ctx, storage.ProjectQuery{AdminUserID: userID})
	if err != nil {
		return nil, err
	}
	for _, project := range direct {
		byID[project.ID] = project
	}

	orgs, err := h.Store.ListOrganizationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var teamProjectIDs []int64
	for _, org := range orgs {
		if org.IsOwner(userID) {
			owned, err := h.Store.ListProjects(ctx, storage.ProjectQuery{OrganizationID: org.ID})
			if err != nil {
				return nil, err
			}
			for _, project := range owned {
				byID[project.ID] = project
			}
			continue
		}
		teams, err := h.Store.ListTeams(ctx, org.ID)
		if err != nil {
			return nil, err
		}
		for _, team := range teams {
			if !team.HasMember(userID) {
				continue
			}
			if shared || team.Access == models.TeamAccessAdmin {
				teamProjectIDs = append(teamProjectIDs, team.ProjectIDs...)
			}
		}
	}
	if len(teamProjectIDs) > 0 {
		viaTeams, err := h.Store.ListProjects(ctx, storage.ProjectQuery{IDs: teamProjectIDs})
		if err != nil {
			return nil, err
		}
		for _, project := range viaTeams {
			byID[project.ID] = project
		}
	}

	projects := make([]models.Project, 0, len(byID))
	for _, project := range byID {
		projects = append(projects, project)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Slug < projects[j].Slug })
	return projects, nil
}

// importProject creates the project with the caller as its only maintainer
// and runs the import hook before the response is rendered.
func (h *Handler) importProject(req *resource.Request) (models.Project, error) {
	input := req.Payload.(*projectImportInput)
	ctx := req.Context()

	params := storage.CreateProjectParams{
		Name:                input.Name,
		Language:            input.Language,
		ProgrammingLanguage: input.ProgrammingLanguage,
		Repository:          input.Repository.model(),
		Homepage:            input.Homepage,
		Tags:                input.Tags,
		UserIDs:             []int64{req.Caller.ID},
	}
	remoteID, err := h.remoteRepositoryFor(ctx, req.Caller.ID, params.Repository.URL)
	if err != nil {
		return models.Project{}, err
	}
	params.RemoteRepositoryID = remoteID

	project, err := h.Store.CreateProject(ctx, params)
	if err != nil {
		return models.Project{}, err
	}
	h.auditLogger(req).Info("project imported", "project", project.Slug, "repository", project.Repository.URL)

	if h.importer == nil {
		return project, nil
	}
	h.importer.FinishImport(ctx, project)
	reloaded, err := h.Store.GetProject(ctx, project.ID)
	if err != nil {
		h.auditLogger(req).Warn("reload imported project", "project", project.Slug, "error", err)
		return project, nil
	}
	return reloaded, nil
}

// remoteRepositoryFor links an import to a remote repository the caller can
// see when the clone URLs match.
func (h *Handler) remoteRepositoryFor(ctx context.Context, userID int64, repoURL string) (*int64, error) {
	repos, err := h.Store.ListRemoteRepositories(ctx, userID)
	if err != nil {
		return nil, err
	}
	want := normalizeCloneURL(repoURL)
	for _, entry := range repos {
		if normalizeCloneURL(entry.Repository.CloneURL) == want || normalizeCloneURL(entry.Repository.SSHURL) == want {
			id := entry.Repository.ID
			return &id, nil
		}
	}
	return nil, nil
}

func normalizeCloneURL(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	raw = strings.TrimSuffix(strings.TrimSuffix(raw, "/"), ".git")
	return raw
}

func (h *Handler) updateProject(req *resource.Request, current models.Project) (models.Project, error) {
	input := req.Payload.(*projectUpdateInput)
	project, err := h.Store.UpdateProject(req.Context(), current.ID, input.update())
	if err != nil {
		return models.Project{}, err
	}
	h.auditLogger(req).Info("project updated", "project", project.Slug)
	return project, nil
}

// retrieveSuperproject renders the parent of the relationship naming the
// scoped project as a child. A project without one, or whose parent the
// caller cannot see, has no superproject.
func (h *Handler) retrieveSuperproject(req *resource.Request) (int, any, error) {
	parent, ok, err := h.superproject(req, *req.Scope.Project)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, resource.ErrNotFound
	}
	scope, err := h.scopeForProject(req.Context(), parent)
	if err != nil {
		return 0, nil, err
	}
	if !h.canSeeProject(req.Caller, scope) {
		return 0, nil, resource.ErrNotFound
	}
	body, err := h.renderProject(req, parent)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, body, nil
}

type subprojectLinks struct {
	Parent string `json:"parent"`
}

type subprojectResponse struct {
	Child *projectResponse `json:"child"`
	Alias string           `json:"alias"`
	Links subprojectLinks  `json:"_links"`
}

func (h *Handler) mountSubprojects() error {
	return mount(h, resource.Config[models.ProjectRelationship]{
		Name:    "subprojects",
		Object:  access.ObjectSubprojects,
		Parents: h.projectScope,
		List: func(req *resource.Request) ([]models.ProjectRelationship, error) {
			return h.Store.ListSubprojectRelationships(req.Context(), req.Scope.Project.ID)
		},
		Get: func(req *resource.Request) (models.ProjectRelationship, error) {
			relationship, err := h.Store.GetProjectRelationship(req.Context(), req.Scope.Project.ID, req.Param("alias_slug"))
			return relationship, notFound(err)
		},
		Create:     h.createSubproject,
		Destroy:    h.destroySubproject,
		ReadSchema: "subproject",
		Render:     h.renderSubproject,
		WriteSchemas: map[resource.Action]resource.WriteSchema{
			resource.ActionCreate:  subprojectCreateSchema,
			resource.ActionDestroy: subprojectDestroySchema,
		},
		Filters: map[string]resource.Filter[models.ProjectRelationship]{
			"alias": resource.IContains(func(r models.ProjectRelationship) string { return r.Alias }),
		},
	},
		get("/projects/{project_slug}/subprojects/{$}", resource.ActionList),
		post("/projects/{project_slug}/subprojects/{$}", resource.ActionCreate),
		get("/projects/{project_slug}/subprojects/{alias_slug}/{$}", resource.ActionRetrieve),
		del("/projects/{project_slug}/subprojects/{alias_slug}/{$}"),
	)
}

// createSubproject links a child the caller administers under the scoped
// parent. Alias collisions surface as a validation error on alias.
func (h *Handler) createSubproject(req *resource.Request) (models.ProjectRelationship, error) {
	input := req.Payload.(*subprojectCreateInput)
	child, err := h.Store.GetProjectBySlug(req.Context(), input.Child)
	if err != nil {
		if notFound(err) == resource.ErrNotFound {
			return models.ProjectRelationship{}, resource.NewValidationError("child", "project not found")
		}
		return models.ProjectRelationship{}, err
	}
	childScope, err := h.scopeForProject(req.Context(), child)
	if err != nil {
		return models.ProjectRelationship{}, err
	}
	if !h.isProjectAdmin(req.Caller, childScope) {
		return models.ProjectRelationship{}, resource.NewValidationError("child", "project not found")
	}
	relationship, err := h.Store.CreateProjectRelationship(req.Context(), storage.CreateRelationshipParams{
		ParentID: req.Scope.Project.ID,
		ChildID:  child.ID,
		Alias:    input.Alias,
	})
	if err != nil {
		return models.ProjectRelationship{}, err
	}
	h.auditLogger(req).Info("subproject added", "project", req.Scope.Project.Slug, "child", child.Slug, "alias", relationship.Alias)
	return relationship, nil
}

func (h *Handler) destroySubproject(req *resource.Request, relationship models.ProjectRelationship) error {
	if err := h.Store.DeleteProjectRelationship(req.Context(), relationship.ID); err != nil {
		return err
	}
	h.auditLogger(req).Info("subproject removed", "project", req.Scope.Project.Slug, "alias", relationship.Alias)
	return nil
}

func (h *Handler) renderSubproject(req *resource.Request, relationship models.ProjectRelationship) (any, error) {
	child, err := h.Store.GetProject(req.Context(), relationship.ChildID)
	if err != nil {
		return nil, err
	}
	body, err := h.projectBody(req, child, false)
	if err != nil {
		return nil, err
	}
	return subprojectResponse{
		Child: body,
		Alias: relationship.Alias,
		Links: subprojectLinks{Parent: apiURL(req, "/projects/%s/", req.Scope.Project.Slug)},
	}, nil
}

func (h *Handler) mountTranslations() error {
	return mount(h, resource.Config[models.Project]{
		Name:       "translations",
		Object:     access.ObjectTranslations,
		Parents:    h.projectScope,
		List:       h.listTranslations,
		ReadSchema: "project",
		Render:     h.renderProject,
		Filters:    projectFilters,
		Expand:     projectExpand,
		ListExpand: projectListExpand,
	},
		get("/projects/{project_slug}/translations/{$}", resource.ActionList),
	)
}

func (h *Handler) listTranslations(req *resource.Request) ([]models.Project, error) {
	translations, err := h.Store.ListProjects(req.Context(), storage.ProjectQuery{MainLanguageProjectID: req.Scope.Project.ID})
	if err != nil {
		return nil, err
	}
	return h.visibleProjects(req, translations)
}

// visibleProjects drops the projects the caller cannot see.
func (h *Handler) visibleProjects(req *resource.Request, projects []models.Project) ([]models.Project, error) {
	visible := slices.Grow([]models.Project(nil), len(projects))
	for _, project := range projects {
		scope, err := h.scopeForProject(req.Context(), project)
		if err != nil {
			return nil, err
		}
		if h.canSeeProject(req.Caller, scope) {
			visible = append(visible, project)
		}
	}
	return visible, nil
}
