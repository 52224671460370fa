package api

import (
	"docsplatform/internal/access"
	"docsplatform/internal/models"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

var versionFilters = map[string]resource.Filter[models.Version]{
	"slug":          resource.Exact(func(v models.Version) string { return v.Slug }),
	"verbose_name":  resource.IContains(func(v models.Version) string { return v.VerboseName }),
	"privacy_level": resource.Exact(func(v models.Version) string { return v.Privacy }),
	"type":          resource.Exact(func(v models.Version) string { return v.Type }),
	"active":        resource.Bool(func(v models.Version) bool { return v.Active }),
	"built":         resource.Bool(func(v models.Version) bool { return v.Built }),
}

func (h *Handler) mountVersions() error {
	return mount(h, resource.Config[models.Version]{
		Name:    "versions",
		Object:  access.ObjectVersions,
		Parents: h.versionParents,
		List:    h.listVersions,
		Get: func(req *resource.Request) (models.Version, error) {
			return *req.Scope.Version, nil
		},
		Update:     h.updateVersion,
		ReadSchema: "version",
		Render:     h.renderVersion,
		WriteSchemas: map[resource.Action]resource.WriteSchema{
			resource.ActionUpdate:        versionUpdateSchema,
			resource.ActionPartialUpdate: versionUpdateSchema,
		},
		Filters:    versionFilters,
		Expand:     []string{"last_build", "last_build.config"},
		ListExpand: []string{"last_build"},
	},
		get("/projects/{project_slug}/versions/{$}", resource.ActionList),
		get("/projects/{project_slug}/versions/{version_slug}/{$}", resource.ActionRetrieve),
		put("/projects/{project_slug}/versions/{version_slug}/{$}"),
		patch("/projects/{project_slug}/versions/{version_slug}/{$}"),
	)
}

// versionParents resolves the version only on detail routes.
func (h *Handler) versionParents(req *resource.Request) (resource.Scope, error) {
	if req.Param("version_slug") == "" {
		return h.projectScope(req)
	}
	return h.versionScope(req)
}

func (h *Handler) listVersions(req *resource.Request) ([]models.Version, error) {
	versions, err := h.Store.ListVersions(req.Context(), req.Scope.Project.ID)
	if err != nil {
		return nil, err
	}
	visible := versions[:0:0]
	for _, version := range versions {
		if h.canSeeVersion(req.Caller, req.Scope, version) {
			visible = append(visible, version)
		}
	}
	return visible, nil
}

// updateVersion applies the update and hands the reloaded version to the
// build gateway together with the activation state it had before.
func (h *Handler) updateVersion(req *resource.Request, current models.Version) (models.Version, error) {
	input := req.Payload.(*versionUpdateInput)
	ctx := req.Context()
	wasActive := current.Active

	if _, err := h.Store.UpdateVersion(ctx, current.ID, storage.VersionUpdate{
		Active:  input.Active,
		Hidden:  input.Hidden,
		Privacy: input.PrivacyLevel,
	}); err != nil {
		return models.Version{}, err
	}
	version, err := h.Store.GetVersion(ctx, current.ID)
	if err != nil {
		return models.Version{}, err
	}
	h.auditLogger(req).Info("version updated",
		"project", req.Scope.Project.Slug,
		"version", version.Slug,
		"active", version.Active)

	if h.builds == nil {
		return version, nil
	}
	if err := h.builds.PostSave(ctx, *req.Scope.Project, version, wasActive); err != nil {
		h.auditLogger(req).Error("version post-save failed",
			"project", req.Scope.Project.Slug,
			"version", version.Slug,
			"error", err)
		return version, nil
	}
	return h.Store.GetVersion(ctx, current.ID)
}
