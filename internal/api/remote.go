package api

import (
	"docsplatform/internal/access"
	"docsplatform/internal/models"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

// remoteRepositoryRow pairs a repository the caller can access with its
// remote organization, if any.
type remoteRepositoryRow struct {
	storage.RemoteRepositoryAccess
	Organization *models.RemoteOrganization
}

func (r remoteRepositoryRow) organizationSlug() string {
	if r.Organization == nil {
		return ""
	}
	return r.Organization.Slug
}

func (h *Handler) mountRemote() error {
	remoteExpand := []string{"remote_organization", "projects"}
	err := mount(h, resource.Config[remoteRepositoryRow]{
		Name:       "remoterepositories",
		Object:     access.ObjectRemoteRepositories,
		List:       h.listRemoteRepositories,
		ReadSchema: "remoterepository",
		Render:     h.renderRemoteRepository,
		Filters: map[string]resource.Filter[remoteRepositoryRow]{
			"name":         resource.IContains(func(r remoteRepositoryRow) string { return r.Repository.Name }),
			"full_name":    resource.IContains(func(r remoteRepositoryRow) string { return r.Repository.FullName }),
			"vcs_provider": resource.Exact(func(r remoteRepositoryRow) string { return r.Repository.VCSProvider }),
			"organization": resource.Exact(remoteRepositoryRow.organizationSlug),
		},
		Expand:     remoteExpand,
		ListExpand: remoteExpand,
	},
		get("/remoterepositories/{$}", resource.ActionList),
	)
	if err != nil {
		return err
	}

	return mount(h, resource.Config[models.RemoteOrganization]{
		Name:   "remoteorganizations",
		Object: access.ObjectRemoteOrganizations,
		List: func(req *resource.Request) ([]models.RemoteOrganization, error) {
			return h.Store.ListRemoteOrganizations(req.Context(), req.Caller.ID)
		},
		ReadSchema: "remoteorganization",
		Render: func(req *resource.Request, org models.RemoteOrganization) (any, error) {
			return remoteOrganizationBody(org), nil
		},
		Filters: map[string]resource.Filter[models.RemoteOrganization]{
			"name":         resource.IContains(func(o models.RemoteOrganization) string { return o.Name }),
			"vcs_provider": resource.Exact(func(o models.RemoteOrganization) string { return o.VCSProvider }),
		},
	},
		get("/remoteorganizations/{$}", resource.ActionList),
	)
}

func (h *Handler) listRemoteRepositories(req *resource.Request) ([]remoteRepositoryRow, error) {
	ctx := req.Context()
	repos, err := h.Store.ListRemoteRepositories(ctx, req.Caller.ID)
	if err != nil {
		return nil, err
	}
	orgs := make(map[int64]*models.RemoteOrganization)
	rows := make([]remoteRepositoryRow, 0, len(repos))
	for _, entry := range repos {
		row := remoteRepositoryRow{RemoteRepositoryAccess: entry}
		if id := entry.Repository.OrganizationID; id != nil {
			org, ok := orgs[*id]
			if !ok {
				loaded, err := h.Store.GetRemoteOrganization(ctx, *id)
				if err != nil && notFound(err) != resource.ErrNotFound {
					return nil, err
				}
				if err == nil {
					org = &loaded
				}
				orgs[*id] = org
			}
			row.Organization = org
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (h *Handler) renderRemoteRepository(req *resource.Request, row remoteRepositoryRow) (any, error) {
	repo := row.Repository
	body := remoteRepositoryResponse{
		ID:            repo.ID,
		Name:          repo.Name,
		FullName:      repo.FullName,
		Description:   repo.Description,
		AvatarURL:     repo.AvatarURL,
		HTMLURL:       repo.HTMLURL,
		CloneURL:      repo.CloneURL,
		SSHURL:        repo.SSHURL,
		VCS:           repo.VCS,
		Private:       repo.Private,
		DefaultBranch: repo.DefaultBranch,
		VCSProvider:   repo.VCSProvider,
		Admin:         row.Admin,
		Created:       repo.CreatedAt,
		Modified:      repo.ModifiedAt,
	}
	if req.Expanded("remote_organization") && row.Organization != nil {
		body.RemoteOrganization = remoteOrganizationBody(*row.Organization)
	}
	if req.Expanded("projects") {
		linked, err := h.Store.ListProjects(req.Context(), storage.ProjectQuery{RemoteRepositoryID: repo.ID})
		if err != nil {
			return nil, err
		}
		visible, err := h.visibleProjects(req, linked)
		if err != nil {
			return nil, err
		}
		body.Projects = []projectResponse{}
		for _, project := range visible {
			rendered, err := h.projectBody(req, project, false)
			if err != nil {
				return nil, err
			}
			body.Projects = append(body.Projects, *rendered)
		}
	}
	return body, nil
}
