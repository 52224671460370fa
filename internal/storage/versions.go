package storage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"docsplatform/internal/models"
)

// CreateVersion adds a version to a project. Slugs are unique per project and
// derived from the verbose name when omitted.
func (s *Storage) CreateVersion(ctx context.Context, params CreateVersionParams) (models.Version, error) {
	verbose := strings.TrimSpace(params.VerboseName)
	slug := strings.TrimSpace(params.Slug)
	if slug == "" {
		slug = VersionSlug(verbose)
	}
	if slug == "" {
		return models.Version{}, errors.New("version slug is required")
	}
	if verbose == "" {
		verbose = slug
	}
	versionType := params.Type
	if versionType == "" {
		versionType = models.VersionTypeUnknown
	}

	var version models.Version
	err := s.mutate(func(data *dataset) error {
		project, ok := data.Projects[params.ProjectID]
		if !ok {
			return fmt.Errorf("project %d: %w", params.ProjectID, ErrNotFound)
		}
		for _, existing := range data.Versions {
			if existing.ProjectID == project.ID && existing.Slug == slug {
				return &ConflictError{Field: "slug", Message: fmt.Sprintf("version %q already exists", slug)}
			}
		}
		now := time.Now().UTC()
		version = models.Version{
			ID:          data.nextID("versions"),
			ProjectID:   project.ID,
			Slug:        slug,
			VerboseName: verbose,
			Identifier:  strings.TrimSpace(params.Identifier),
			Type:        versionType,
			Active:      params.Active,
			Hidden:      params.Hidden,
			Privacy:     firstNonEmpty(params.Privacy, models.PrivacyPublic),
			CreatedAt:   now,
			ModifiedAt:  now,
		}
		data.Versions[version.ID] = version
		return nil
	})
	if err != nil {
		return models.Version{}, err
	}
	return version, nil
}

func (s *Storage) GetVersion(ctx context.Context, id int64) (models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	version, ok := s.data.Versions[id]
	if !ok {
		return models.Version{}, ErrNotFound
	}
	return version, nil
}

func (s *Storage) GetVersionBySlug(ctx context.Context, projectID int64, slug string) (models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, version := range s.data.Versions {
		if version.ProjectID == projectID && version.Slug == slug {
			return version, nil
		}
	}
	return models.Version{}, ErrNotFound
}

// ListVersions returns the project's versions ordered by verbose name.
func (s *Storage) ListVersions(ctx context.Context, projectID int64) ([]models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var versions []models.Version
	for _, version := range s.data.Versions {
		if version.ProjectID == projectID {
			versions = append(versions, version)
		}
	}
	sortSlice(versions, func(a, b models.Version) bool {
		if a.VerboseName != b.VerboseName {
			return a.VerboseName < b.VerboseName
		}
		return a.ID < b.ID
	})
	return versions, nil
}

func (s *Storage) UpdateVersion(ctx context.Context, id int64, update VersionUpdate) (models.Version, error) {
	var version models.Version
	err := s.mutate(func(data *dataset) error {
		existing, ok := data.Versions[id]
		if !ok {
			return ErrNotFound
		}
		applyVersionUpdate(&existing, update)
		data.Versions[id] = existing
		version = existing
		return nil
	})
	if err != nil {
		return models.Version{}, err
	}
	return version, nil
}

func (s *Storage) CreateBuild(ctx context.Context, params CreateBuildParams) (models.Build, error) {
	state := params.State
	if state == "" {
		state = models.BuildStateTriggered
	}

	var build models.Build
	err := s.mutate(func(data *dataset) error {
		version, ok := data.Versions[params.VersionID]
		if !ok || version.ProjectID != params.ProjectID {
			return fmt.Errorf("version %d of project %d: %w", params.VersionID, params.ProjectID, ErrNotFound)
		}
		build = models.Build{
			ID:        data.nextID("builds"),
			ProjectID: params.ProjectID,
			VersionID: params.VersionID,
			State:     state,
			Commit:    strings.TrimSpace(params.Commit),
			Config:    maps.Clone(params.Config),
			CreatedAt: time.Now().UTC(),
		}
		data.Builds[build.ID] = build
		return nil
	})
	if err != nil {
		return models.Build{}, err
	}
	return cloneBuild(build), nil
}

func (s *Storage) GetBuild(ctx context.Context, id int64) (models.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	build, ok := s.data.Builds[id]
	if !ok {
		return models.Build{}, ErrNotFound
	}
	return cloneBuild(build), nil
}

// ListBuilds returns matching builds, newest first.
func (s *Storage) ListBuilds(ctx context.Context, query BuildQuery) ([]models.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var builds []models.Build
	for _, build := range s.data.Builds {
		if query.ProjectID != 0 && build.ProjectID != query.ProjectID {
			continue
		}
		if query.VersionID != 0 && build.VersionID != query.VersionID {
			continue
		}
		if query.Running != nil && build.Running() != *query.Running {
			continue
		}
		builds = append(builds, cloneBuild(build))
	}
	sortSlice(builds, func(a, b models.Build) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return builds, nil
}

func (s *Storage) UpdateBuild(ctx context.Context, id int64, update BuildUpdate) (models.Build, error) {
	var build models.Build
	err := s.mutate(func(data *dataset) error {
		existing, ok := data.Builds[id]
		if !ok {
			return ErrNotFound
		}
		applyBuildUpdate(&existing, update)
		data.Builds[id] = existing
		build = existing
		return nil
	})
	if err != nil {
		return models.Build{}, err
	}
	return cloneBuild(build), nil
}

func applyVersionUpdate(version *models.Version, update VersionUpdate) {
	if update.Active != nil {
		version.Active = *update.Active
	}
	if update.Hidden != nil {
		version.Hidden = *update.Hidden
	}
	if update.Built != nil {
		version.Built = *update.Built
	}
	if update.Privacy != nil {
		version.Privacy = firstNonEmpty(*update.Privacy, models.PrivacyPublic)
	}
	if update.Identifier != nil {
		version.Identifier = strings.TrimSpace(*update.Identifier)
	}
	version.ModifiedAt = time.Now().UTC()
}

func applyBuildUpdate(build *models.Build, update BuildUpdate) {
	if update.State != nil {
		build.State = *update.State
	}
	if update.Success != nil {
		build.Success = *update.Success
	}
	if update.Error != nil {
		build.Error = *update.Error
	}
	if update.Commit != nil {
		build.Commit = strings.TrimSpace(*update.Commit)
	}
	if update.Duration != nil {
		build.Duration = *update.Duration
	}
	if update.FinishedAt != nil {
		finished := update.FinishedAt.UTC()
		build.FinishedAt = &finished
	}
}
