package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"docsplatform/internal/models"
)

const (
	defaultProjectLanguage            = "en"
	defaultProjectProgrammingLanguage = "words"
	defaultRepositoryType             = "git"
)

func (s *Storage) CreateProject(ctx context.Context, params CreateProjectParams) (models.Project, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Project{}, errors.New("project name is required")
	}
	slug := strings.TrimSpace(params.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return models.Project{}, &ConflictError{Field: "name", Message: "name must contain at least one letter or digit"}
	}

	var project models.Project
	err := s.mutate(func(data *dataset) error {
		for _, existing := range data.Projects {
			if existing.Slug == slug {
				return &ConflictError{Field: "name", Message: fmt.Sprintf("project with slug %q already exists", slug)}
			}
		}
		if params.OrganizationID != nil {
			if _, ok := data.Organizations[*params.OrganizationID]; !ok {
				return fmt.Errorf("organization %d: %w", *params.OrganizationID, ErrNotFound)
			}
		}
		if params.MainLanguageProjectID != nil {
			if _, ok := data.Projects[*params.MainLanguageProjectID]; !ok {
				return fmt.Errorf("main language project %d: %w", *params.MainLanguageProjectID, ErrNotFound)
			}
		}
		project = newProject(data.nextID("projects"), slug, name, params)
		data.Projects[project.ID] = project
		return nil
	})
	if err != nil {
		return models.Project{}, err
	}
	return cloneProject(project), nil
}

func newProject(id int64, slug, name string, params CreateProjectParams) models.Project {
	now := time.Now().UTC()
	project := models.Project{
		ID:                    id,
		Slug:                  slug,
		Name:                  name,
		Description:           strings.TrimSpace(params.Description),
		Language:              firstNonEmpty(params.Language, defaultProjectLanguage),
		ProgrammingLanguage:   firstNonEmpty(params.ProgrammingLanguage, defaultProjectProgrammingLanguage),
		Repository:            normalizeRepository(params.Repository),
		Homepage:              strings.TrimSpace(params.Homepage),
		DefaultVersion:        models.LatestVersionSlug,
		Privacy:               firstNonEmpty(params.Privacy, models.PrivacyPublic),
		UserIDs:               uniqueIDs(params.UserIDs),
		OrganizationID:        cloneInt64Ptr(params.OrganizationID),
		MainLanguageProjectID: cloneInt64Ptr(params.MainLanguageProjectID),
		RemoteRepositoryID:    cloneInt64Ptr(params.RemoteRepositoryID),
		Tags:                  normalizeTags(params.Tags),
		Domains:               []string{},
		CreatedAt:             now,
		ModifiedAt:            now,
	}
	return project
}

func normalizeRepository(repo models.Repository) models.Repository {
	repo.URL = strings.TrimSpace(repo.URL)
	repo.Type = strings.ToLower(strings.TrimSpace(repo.Type))
	if repo.Type == "" {
		repo.Type = defaultRepositoryType
	}
	return repo
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (s *Storage) GetProject(ctx context.Context, id int64) (models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	project, ok := s.data.Projects[id]
	if !ok {
		return models.Project{}, ErrNotFound
	}
	return cloneProject(project), nil
}

func (s *Storage) GetProjectBySlug(ctx context.Context, slug string) (models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, project := range s.data.Projects {
		if project.Slug == slug {
			return cloneProject(project), nil
		}
	}
	return models.Project{}, ErrNotFound
}

// ListProjects returns the projects matching every non-zero field of the
// query, ordered by slug.
func (s *Storage) ListProjects(ctx context.Context, query ProjectQuery) ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var projects []models.Project
	for _, project := range s.data.Projects {
		if matchesProjectQuery(project, query) {
			projects = append(projects, cloneProject(project))
		}
	}
	sortSlice(projects, func(a, b models.Project) bool { return a.Slug < b.Slug })
	return projects, nil
}

func matchesProjectQuery(project models.Project, query ProjectQuery) bool {
	if query.IDs != nil && !slices.Contains(query.IDs, project.ID) {
		return false
	}
	if query.AdminUserID != 0 && !project.IsAdmin(query.AdminUserID) {
		return false
	}
	if query.OrganizationID != 0 && (project.OrganizationID == nil || *project.OrganizationID != query.OrganizationID) {
		return false
	}
	if query.MainLanguageProjectID != 0 && (project.MainLanguageProjectID == nil || *project.MainLanguageProjectID != query.MainLanguageProjectID) {
		return false
	}
	if query.RemoteRepositoryID != 0 && (project.RemoteRepositoryID == nil || *project.RemoteRepositoryID != query.RemoteRepositoryID) {
		return false
	}
	return true
}

func (s *Storage) UpdateProject(ctx context.Context, id int64, update ProjectUpdate) (models.Project, error) {
	var project models.Project
	err := s.mutate(func(data *dataset) error {
		existing, ok := data.Projects[id]
		if !ok {
			return ErrNotFound
		}
		applyProjectUpdate(&existing, update)
		existing.ModifiedAt = time.Now().UTC()
		data.Projects[id] = existing
		project = existing
		return nil
	})
	if err != nil {
		return models.Project{}, err
	}
	return cloneProject(project), nil
}

func applyProjectUpdate(project *models.Project, update ProjectUpdate) {
	if update.Name != nil {
		if name := strings.TrimSpace(*update.Name); name != "" {
			project.Name = name
		}
	}
	if update.Description != nil {
		project.Description = strings.TrimSpace(*update.Description)
	}
	if update.Language != nil {
		project.Language = firstNonEmpty(*update.Language, defaultProjectLanguage)
	}
	if update.ProgrammingLanguage != nil {
		project.ProgrammingLanguage = firstNonEmpty(*update.ProgrammingLanguage, defaultProjectProgrammingLanguage)
	}
	if update.Repository != nil {
		project.Repository = normalizeRepository(*update.Repository)
	}
	if update.Homepage != nil {
		project.Homepage = strings.TrimSpace(*update.Homepage)
	}
	if update.DefaultVersion != nil {
		project.DefaultVersion = firstNonEmpty(*update.DefaultVersion, models.LatestVersionSlug)
	}
	if update.DefaultBranch != nil {
		project.DefaultBranch = strings.TrimSpace(*update.DefaultBranch)
	}
	if update.Privacy != nil {
		project.Privacy = firstNonEmpty(*update.Privacy, models.PrivacyPublic)
	}
	if update.ExternalBuildsEnabled != nil {
		project.ExternalBuildsEnabled = *update.ExternalBuildsEnabled
	}
	if update.Disabled != nil {
		project.Disabled = *update.Disabled
	}
	if update.Tags != nil {
		project.Tags = normalizeTags(*update.Tags)
	}
	if update.UserIDs != nil {
		project.UserIDs = uniqueIDs(*update.UserIDs)
	}
}

// CreateProjectRelationship links child under parent. Aliases are unique per
// parent and default to the child slug; nesting deeper than one level is
// rejected.
func (s *Storage) CreateProjectRelationship(ctx context.Context, params CreateRelationshipParams) (models.ProjectRelationship, error) {
	var relationship models.ProjectRelationship
	err := s.mutate(func(data *dataset) error {
		parent, ok := data.Projects[params.ParentID]
		if !ok {
			return fmt.Errorf("parent project %d: %w", params.ParentID, ErrNotFound)
		}
		child, ok := data.Projects[params.ChildID]
		if !ok {
			return fmt.Errorf("child project %d: %w", params.ChildID, ErrNotFound)
		}
		alias := strings.TrimSpace(params.Alias)
		if alias == "" {
			alias = child.Slug
		}
		if err := checkRelationship(data, parent, child, alias); err != nil {
			return err
		}
		relationship = models.ProjectRelationship{
			ID:        data.nextID("relationships"),
			ParentID:  parent.ID,
			ChildID:   child.ID,
			Alias:     alias,
			CreatedAt: time.Now().UTC(),
		}
		data.Relationships[relationship.ID] = relationship
		return nil
	})
	if err != nil {
		return models.ProjectRelationship{}, err
	}
	return relationship, nil
}

// checkRelationship applies the rules in a fixed order so a request that
// breaks several of them always reports the same field.
func checkRelationship(data *dataset, parent, child models.Project, alias string) error {
	if parent.ID == child.ID {
		return &ConflictError{Field: "child", Message: "project can not be subproject of itself"}
	}
	exists := func(match func(models.ProjectRelationship) bool) bool {
		for _, existing := range data.Relationships {
			if match(existing) {
				return true
			}
		}
		return false
	}
	switch {
	case exists(func(r models.ProjectRelationship) bool {
		return r.ParentID == parent.ID && strings.EqualFold(r.Alias, alias)
	}):
		return &ConflictError{Field: "alias", Message: "a subproject with this alias already exists"}
	case exists(func(r models.ProjectRelationship) bool { return r.ChildID == child.ID }):
		return &ConflictError{Field: "child", Message: "project is already a subproject of another project"}
	case exists(func(r models.ProjectRelationship) bool { return r.ParentID == child.ID }):
		return &ConflictError{Field: "child", Message: "project with subprojects can not be a subproject"}
	case exists(func(r models.ProjectRelationship) bool { return r.ChildID == parent.ID }):
		return &ConflictError{Field: "parent", Message: "subproject nesting is not supported"}
	}
	return nil
}

func (s *Storage) GetProjectRelationship(ctx context.Context, parentID int64, alias string) (models.ProjectRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, relationship := range s.data.Relationships {
		if relationship.ParentID == parentID && strings.EqualFold(relationship.Alias, alias) {
			return relationship, nil
		}
	}
	return models.ProjectRelationship{}, ErrNotFound
}

func (s *Storage) ListSubprojectRelationships(ctx context.Context, parentID int64) ([]models.ProjectRelationship, error) {
	return s.listRelationships(func(r models.ProjectRelationship) bool { return r.ParentID == parentID }), nil
}

func (s *Storage) ListSuperprojectRelationships(ctx context.Context, childID int64) ([]models.ProjectRelationship, error) {
	return s.listRelationships(func(r models.ProjectRelationship) bool { return r.ChildID == childID }), nil
}

func (s *Storage) listRelationships(match func(models.ProjectRelationship) bool) []models.ProjectRelationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ProjectRelationship
	for _, relationship := range s.data.Relationships {
		if match(relationship) {
			out = append(out, relationship)
		}
	}
	sortSlice(out, func(a, b models.ProjectRelationship) bool { return a.ID < b.ID })
	return out
}

func (s *Storage) DeleteProjectRelationship(ctx context.Context, id int64) error {
	return s.mutate(func(data *dataset) error {
		if _, ok := data.Relationships[id]; !ok {
			return ErrNotFound
		}
		delete(data.Relationships, id)
		return nil
	})
}
