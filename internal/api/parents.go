package api

import (
	"context"
	"errors"
	"strconv"

	"docsplatform/internal/access"
	"docsplatform/internal/models"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

// projectScope resolves {project_slug}. Projects the caller cannot see are
// reported as missing.
func (h *Handler) projectScope(req *resource.Request) (resource.Scope, error) {
	project, err := h.Store.GetProjectBySlug(req.Context(), req.Param("project_slug"))
	if err != nil {
		return resource.Scope{}, notFound(err)
	}
	scope, err := h.scopeForProject(req.Context(), project)
	if err != nil {
		return resource.Scope{}, err
	}
	if !h.canSeeProject(req.Caller, scope) {
		return resource.Scope{}, resource.ErrNotFound
	}
	return scope, nil
}

// scopeForProject loads the organization context the access policy needs to
// derive project roles.
func (h *Handler) scopeForProject(ctx context.Context, project models.Project) (resource.Scope, error) {
	scope := resource.Scope{Project: &project}
	if project.OrganizationID == nil {
		return scope, nil
	}
	org, err := h.Store.GetOrganization(ctx, *project.OrganizationID)
	if errors.Is(err, storage.ErrNotFound) {
		return scope, nil
	}
	if err != nil {
		return resource.Scope{}, err
	}
	teams, err := h.Store.ListTeams(ctx, org.ID)
	if err != nil {
		return resource.Scope{}, err
	}
	scope.Organization = &org
	scope.Teams = teams
	return scope, nil
}

func (h *Handler) isProjectAdmin(caller *models.User, scope resource.Scope) bool {
	for _, role := range access.Roles(subjectFor(caller, scope)) {
		if role == access.RoleProjectAdmin {
			return true
		}
	}
	return false
}

// canSeeProject reports whether caller may read the scoped project: public
// projects are visible to everyone, private ones to admins and to members of
// a team sharing the project.
func (h *Handler) canSeeProject(caller *models.User, scope resource.Scope) bool {
	if scope.Project == nil {
		return false
	}
	if scope.Project.IsPublic() || h.isProjectAdmin(caller, scope) {
		return true
	}
	if caller == nil {
		return false
	}
	for _, team := range scope.Teams {
		if team.HasMember(caller.ID) && containsInt64(team.ProjectIDs, scope.Project.ID) {
			return true
		}
	}
	return false
}

// versionScope resolves {project_slug}/{version_slug}. Private versions are
// hidden from non-admins.
func (h *Handler) versionScope(req *resource.Request) (resource.Scope, error) {
	scope, err := h.projectScope(req)
	if err != nil {
		return resource.Scope{}, err
	}
	version, err := h.Store.GetVersionBySlug(req.Context(), scope.Project.ID, req.Param("version_slug"))
	if err != nil {
		return resource.Scope{}, notFound(err)
	}
	if !h.canSeeVersion(req.Caller, scope, version) {
		return resource.Scope{}, resource.ErrNotFound
	}
	scope.Version = &version
	return scope, nil
}

func (h *Handler) canSeeVersion(caller *models.User, scope resource.Scope, version models.Version) bool {
	return version.Privacy != models.PrivacyPrivate || h.isProjectAdmin(caller, scope)
}

// buildScope resolves {build_pk} under the project scope. The build must
// belong to the project.
func (h *Handler) buildScope(req *resource.Request) (resource.Scope, error) {
	scope, err := h.projectScope(req)
	if err != nil {
		return resource.Scope{}, err
	}
	build, err := h.lookupBuild(req, scope, req.Param("build_pk"))
	if err != nil {
		return resource.Scope{}, err
	}
	scope.Build = &build
	return scope, nil
}

func (h *Handler) lookupBuild(req *resource.Request, scope resource.Scope, raw string) (models.Build, error) {
	id, err := parseID(raw)
	if err != nil {
		return models.Build{}, err
	}
	build, err := h.Store.GetBuild(req.Context(), id)
	if err != nil {
		return models.Build{}, notFound(err)
	}
	if build.ProjectID != scope.Project.ID {
		return models.Build{}, resource.ErrNotFound
	}
	if scope.Version != nil && build.VersionID != scope.Version.ID {
		return models.Build{}, resource.ErrNotFound
	}
	return build, nil
}

// organizationScope resolves {organization_slug}. Only owners and team
// members can see an organization.
func (h *Handler) organizationScope(req *resource.Request) (resource.Scope, error) {
	org, err := h.Store.GetOrganizationBySlug(req.Context(), req.Param("organization_slug"))
	if err != nil {
		return resource.Scope{}, notFound(err)
	}
	teams, err := h.Store.ListTeams(req.Context(), org.ID)
	if err != nil {
		return resource.Scope{}, err
	}
	scope := resource.Scope{Organization: &org, Teams: teams}
	if !canSeeOrganization(req.Caller, scope) {
		return resource.Scope{}, resource.ErrNotFound
	}
	return scope, nil
}

func canSeeOrganization(caller *models.User, scope resource.Scope) bool {
	if caller == nil || scope.Organization == nil {
		return false
	}
	if scope.Organization.IsOwner(caller.ID) {
		return true
	}
	for _, team := range scope.Teams {
		if team.HasMember(caller.ID) {
			return true
		}
	}
	return false
}

// userScope resolves {username}. Any user other than the caller is reported
// as missing so the route never reveals other usernames.
func (h *Handler) userScope(req *resource.Request) (resource.Scope, error) {
	user, err := h.Store.GetUserByUsername(req.Context(), req.Param("username"))
	if err != nil {
		return resource.Scope{}, notFound(err)
	}
	if req.Caller == nil || req.Caller.ID != user.ID {
		return resource.Scope{}, resource.ErrNotFound
	}
	return resource.Scope{User: &user}, nil
}

func subjectFor(caller *models.User, scope resource.Scope) access.Subject {
	subject := access.Subject{
		User:         caller,
		Project:      scope.Project,
		Organization: scope.Organization,
		Teams:        scope.Teams,
	}
	if scope.User != nil {
		subject.TargetUserID = scope.User.ID
	}
	return subject
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, resource.ErrNotFound
	}
	return id, nil
}

// notFound folds storage misses onto the resource taxonomy and passes other
// failures through.
func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return resource.ErrNotFound
	}
	return err
}

func containsInt64(ids []int64, id int64) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
