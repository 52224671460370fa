package api

import (
	"errors"
	"net/http"

	"docsplatform/internal/access"
	"docsplatform/internal/models"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

var buildFilters = map[string]resource.Filter[models.Build]{
	"commit":  resource.Exact(func(b models.Build) string { return b.Commit }),
	"running": resource.Bool(func(b models.Build) bool { return b.Running() }),
}

type triggerResponse struct {
	Build     *buildResponse   `json:"build,omitempty"`
	Project   *projectResponse `json:"project"`
	Version   *versionResponse `json:"version"`
	Triggered bool             `json:"triggered"`
}

func (h *Handler) mountBuilds() error {
	err := mount(h, resource.Config[models.Build]{
		Name:    "version-builds",
		Object:  access.ObjectBuilds,
		Parents: h.versionScope,
		List: func(req *resource.Request) ([]models.Build, error) {
			return h.Store.ListBuilds(req.Context(), storage.BuildQuery{
				ProjectID: req.Scope.Project.ID,
				VersionID: req.Scope.Version.ID,
			})
		},
		Get: func(req *resource.Request) (models.Build, error) {
			return h.lookupBuild(req, req.Scope, req.Param("build_pk"))
		},
		Custom: map[resource.Action]resource.CustomFunc{
			resource.ActionCreate: h.triggerBuild,
		},
		ReadSchema:   "build",
		Render:       h.renderBuild,
		WriteSchemas: map[resource.Action]resource.WriteSchema{resource.ActionCreate: buildCreateSchema},
		Filters:      buildFilters,
		Expand:       []string{"config"},
	},
		get("/projects/{project_slug}/versions/{version_slug}/builds/{$}", resource.ActionList),
		post("/projects/{project_slug}/versions/{version_slug}/builds/{$}", resource.ActionCreate),
		get("/projects/{project_slug}/versions/{version_slug}/builds/{build_pk}/{$}", resource.ActionRetrieve),
	)
	if err != nil {
		return err
	}

	return mount(h, resource.Config[models.Build]{
		Name:    "builds",
		Object:  access.ObjectBuilds,
		Parents: h.projectScope,
		List:    h.listProjectBuilds,
		Get: func(req *resource.Request) (models.Build, error) {
			build, err := h.lookupBuild(req, req.Scope, req.Param("build_pk"))
			if err != nil {
				return models.Build{}, err
			}
			version, err := h.Store.GetVersion(req.Context(), build.VersionID)
			if err != nil {
				return models.Build{}, notFound(err)
			}
			if !h.canSeeVersion(req.Caller, req.Scope, version) {
				return models.Build{}, resource.ErrNotFound
			}
			return build, nil
		},
		ReadSchema: "build",
		Render:     h.renderBuild,
		Filters:    buildFilters,
		Expand:     []string{"config"},
	},
		get("/projects/{project_slug}/builds/{$}", resource.ActionList),
		get("/projects/{project_slug}/builds/{build_pk}/{$}", resource.ActionRetrieve),
	)
}

// listProjectBuilds hides builds of versions the caller cannot see.
func (h *Handler) listProjectBuilds(req *resource.Request) ([]models.Build, error) {
	ctx := req.Context()
	builds, err := h.Store.ListBuilds(ctx, storage.BuildQuery{ProjectID: req.Scope.Project.ID})
	if err != nil {
		return nil, err
	}
	versions, err := h.Store.ListVersions(ctx, req.Scope.Project.ID)
	if err != nil {
		return nil, err
	}
	visible := make(map[int64]bool, len(versions))
	for _, version := range versions {
		visible[version.ID] = h.canSeeVersion(req.Caller, req.Scope, version)
	}
	out := builds[:0:0]
	for _, build := range builds {
		if visible[build.VersionID] {
			out = append(out, build)
		}
	}
	return out, nil
}

// triggerBuild asks the gateway for a build of the scoped version. A declined
// trigger answers 400 without a build.
func (h *Handler) triggerBuild(req *resource.Request) (int, any, error) {
	if h.builds == nil {
		return 0, nil, errors.New("build gateway is not configured")
	}
	project, version := *req.Scope.Project, *req.Scope.Version
	result, err := h.builds.Trigger(req.Context(), project, version)
	if err != nil {
		return 0, nil, err
	}

	// The trigger may have touched the version, so render a fresh copy.
	if reloaded, err := h.Store.GetVersion(req.Context(), version.ID); err == nil {
		version = reloaded
	}
	projectBody, err := h.projectBody(req, project, false)
	if err != nil {
		return 0, nil, err
	}
	versionBody, err := h.versionBody(req, project, version, false, false)
	if err != nil {
		return 0, nil, err
	}
	body := triggerResponse{Project: projectBody, Version: versionBody, Triggered: result.Triggered}
	if !result.Triggered || result.Build == nil {
		body.Triggered = false
		h.auditLogger(req).Info("build declined",
			"project", project.Slug,
			"version", version.Slug,
			"reason", result.Reason)
		return http.StatusBadRequest, body, nil
	}
	body.Build = h.buildBody(req, project, version, *result.Build, req.Expanded("config"))
	h.auditLogger(req).Info("build triggered",
		"project", project.Slug,
		"version", version.Slug,
		"build", result.Build.ID)
	return http.StatusAccepted, body, nil
}
