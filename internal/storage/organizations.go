package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"docsplatform/internal/models"
)

func (s *Storage) CreateOrganization(ctx context.Context, params CreateOrganizationParams) (models.Organization, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Organization{}, errors.New("organization name is required")
	}
	slug := strings.TrimSpace(params.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return models.Organization{}, &ConflictError{Field: "name", Message: "name does not produce a valid slug"}
	}

	var org models.Organization
	err := s.mutate(func(data *dataset) error {
		for _, existing := range data.Organizations {
			if existing.Slug == slug {
				return &ConflictError{Field: "slug", Message: "an organization with this slug already exists"}
			}
		}
		now := time.Now().UTC()
		org = models.Organization{
			ID:          data.nextID("organizations"),
			Slug:        slug,
			Name:        name,
			Email:       strings.TrimSpace(params.Email),
			URL:         strings.TrimSpace(params.URL),
			Description: strings.TrimSpace(params.Description),
			OwnerIDs:    uniqueIDs(params.OwnerIDs),
			CreatedAt:   now,
			ModifiedAt:  now,
		}
		data.Organizations[org.ID] = org
		return nil
	})
	if err != nil {
		return models.Organization{}, err
	}
	return cloneOrganization(org), nil
}

func (s *Storage) GetOrganization(ctx context.Context, id int64) (models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.data.Organizations[id]
	if !ok {
		return models.Organization{}, ErrNotFound
	}
	return cloneOrganization(org), nil
}

func (s *Storage) GetOrganizationBySlug(ctx context.Context, slug string) (models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, org := range s.data.Organizations {
		if org.Slug == slug {
			return cloneOrganization(org), nil
		}
	}
	return models.Organization{}, ErrNotFound
}

// ListOrganizationsForUser returns the organizations the user owns or belongs
// to through a team, ordered by name.
func (s *Storage) ListOrganizationsForUser(ctx context.Context, userID int64) ([]models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	memberOf := make(map[int64]struct{})
	for _, team := range s.data.Teams {
		if team.HasMember(userID) {
			memberOf[team.OrganizationID] = struct{}{}
		}
	}
	var orgs []models.Organization
	for _, org := range s.data.Organizations {
		_, member := memberOf[org.ID]
		if member || org.IsOwner(userID) {
			orgs = append(orgs, cloneOrganization(org))
		}
	}
	sortOrganizations(orgs)
	return orgs, nil
}

func sortOrganizations(orgs []models.Organization) {
	sortSlice(orgs, func(a, b models.Organization) bool {
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

func (s *Storage) CreateTeam(ctx context.Context, params CreateTeamParams) (models.Team, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Team{}, errors.New("team name is required")
	}
	access := params.Access
	if access == "" {
		access = models.TeamAccessReadonly
	}
	if access != models.TeamAccessAdmin && access != models.TeamAccessReadonly {
		return models.Team{}, errors.New("team access must be admin or readonly")
	}
	slug := strings.TrimSpace(params.Slug)
	if slug == "" {
		slug = Slugify(name)
	}

	var team models.Team
	err := s.mutate(func(data *dataset) error {
		if _, ok := data.Organizations[params.OrganizationID]; !ok {
			return ErrNotFound
		}
		for _, existing := range data.Teams {
			if existing.OrganizationID == params.OrganizationID && existing.Slug == slug {
				return &ConflictError{Field: "slug", Message: "a team with this slug already exists"}
			}
		}
		team = models.Team{
			ID:             data.nextID("teams"),
			OrganizationID: params.OrganizationID,
			Slug:           slug,
			Name:           name,
			Access:         access,
			MemberIDs:      uniqueIDs(params.MemberIDs),
			ProjectIDs:     uniqueIDs(params.ProjectIDs),
			CreatedAt:      time.Now().UTC(),
		}
		data.Teams[team.ID] = team
		return nil
	})
	if err != nil {
		return models.Team{}, err
	}
	return cloneTeam(team), nil
}

func (s *Storage) ListTeams(ctx context.Context, organizationID int64) ([]models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var teams []models.Team
	for _, team := range s.data.Teams {
		if team.OrganizationID == organizationID {
			teams = append(teams, cloneTeam(team))
		}
	}
	sortSlice(teams, func(a, b models.Team) bool { return a.ID < b.ID })
	return teams, nil
}
