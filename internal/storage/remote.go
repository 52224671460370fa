package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"docsplatform/internal/models"
)

// SaveRemoteOrganization inserts or updates a remote organization keyed by
// (provider, remote id).
func (s *Storage) SaveRemoteOrganization(ctx context.Context, org models.RemoteOrganization) (models.RemoteOrganization, error) {
	if strings.TrimSpace(org.RemoteID) == "" {
		return models.RemoteOrganization{}, errors.New("remote organization id is required")
	}
	var saved models.RemoteOrganization
	err := s.mutate(func(data *dataset) error {
		now := time.Now().UTC()
		org.MemberIDs = uniqueIDs(org.MemberIDs)
		org.ModifiedAt = now
		for id, existing := range data.RemoteOrganizations {
			if existing.VCSProvider == org.VCSProvider && existing.RemoteID == org.RemoteID {
				org.ID = id
				org.CreatedAt = existing.CreatedAt
				data.RemoteOrganizations[id] = org
				saved = org
				return nil
			}
		}
		org.ID = data.nextID("remoteOrganizations")
		org.CreatedAt = now
		data.RemoteOrganizations[org.ID] = org
		saved = org
		return nil
	})
	if err != nil {
		return models.RemoteOrganization{}, err
	}
	return cloneRemoteOrganization(saved), nil
}

func (s *Storage) GetRemoteOrganization(ctx context.Context, id int64) (models.RemoteOrganization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.data.RemoteOrganizations[id]
	if !ok {
		return models.RemoteOrganization{}, ErrNotFound
	}
	return cloneRemoteOrganization(org), nil
}

// ListRemoteOrganizations returns the remote organizations the user belongs
// to, ordered by name.
func (s *Storage) ListRemoteOrganizations(ctx context.Context, userID int64) ([]models.RemoteOrganization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RemoteOrganization
	for _, org := range s.data.RemoteOrganizations {
		for _, member := range org.MemberIDs {
			if member == userID {
				out = append(out, cloneRemoteOrganization(org))
				break
			}
		}
	}
	sortSlice(out, func(a, b models.RemoteOrganization) bool {
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out, nil
}

// SaveRemoteRepository inserts or updates a remote repository keyed by
// (provider, remote id).
func (s *Storage) SaveRemoteRepository(ctx context.Context, repo models.RemoteRepository) (models.RemoteRepository, error) {
	if strings.TrimSpace(repo.RemoteID) == "" {
		return models.RemoteRepository{}, errors.New("remote repository id is required")
	}
	var saved models.RemoteRepository
	err := s.mutate(func(data *dataset) error {
		if repo.OrganizationID != nil {
			if _, ok := data.RemoteOrganizations[*repo.OrganizationID]; !ok {
				return ErrNotFound
			}
		}
		now := time.Now().UTC()
		repo.ModifiedAt = now
		for id, existing := range data.RemoteRepositories {
			if existing.VCSProvider == repo.VCSProvider && existing.RemoteID == repo.RemoteID {
				repo.ID = id
				repo.CreatedAt = existing.CreatedAt
				data.RemoteRepositories[id] = repo
				saved = repo
				return nil
			}
		}
		repo.ID = data.nextID("remoteRepositories")
		repo.CreatedAt = now
		data.RemoteRepositories[repo.ID] = repo
		saved = repo
		return nil
	})
	if err != nil {
		return models.RemoteRepository{}, err
	}
	return cloneRemoteRepository(saved), nil
}

// SetRemoteRepositoryRelation records (or replaces) a user's access to a
// remote repository.
func (s *Storage) SetRemoteRepositoryRelation(ctx context.Context, relation models.RemoteRepositoryRelation) error {
	return s.mutate(func(data *dataset) error {
		if _, ok := data.RemoteRepositories[relation.RemoteRepositoryID]; !ok {
			return ErrNotFound
		}
		if _, ok := data.Users[relation.UserID]; !ok {
			return ErrNotFound
		}
		for i, existing := range data.RemoteRepositoryRelations {
			if existing.RemoteRepositoryID == relation.RemoteRepositoryID && existing.UserID == relation.UserID {
				data.RemoteRepositoryRelations[i] = relation
				return nil
			}
		}
		data.RemoteRepositoryRelations = append(data.RemoteRepositoryRelations, relation)
		return nil
	})
}

// ListRemoteRepositories returns each remote repository the user has a
// relation to, once, annotated with the user's admin flag and ordered by
// remote organization name then full name.
func (s *Storage) ListRemoteRepositories(ctx context.Context, userID int64) ([]RemoteRepositoryAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	admin := make(map[int64]bool)
	for _, relation := range s.data.RemoteRepositoryRelations {
		if relation.UserID != userID {
			continue
		}
		admin[relation.RemoteRepositoryID] = admin[relation.RemoteRepositoryID] || relation.Admin
	}

	out := make([]RemoteRepositoryAccess, 0, len(admin))
	for id, isAdmin := range admin {
		repo, ok := s.data.RemoteRepositories[id]
		if !ok {
			continue
		}
		out = append(out, RemoteRepositoryAccess{Repository: cloneRemoteRepository(repo), Admin: isAdmin})
	}
	orgName := func(repo models.RemoteRepository) string {
		if repo.OrganizationID == nil {
			return ""
		}
		return s.data.RemoteOrganizations[*repo.OrganizationID].Name
	}
	sortSlice(out, func(a, b RemoteRepositoryAccess) bool {
		an, bn := orgName(a.Repository), orgName(b.Repository)
		if an != bn {
			return an < bn
		}
		if a.Repository.FullName != b.Repository.FullName {
			return a.Repository.FullName < b.Repository.FullName
		}
		return a.Repository.ID < b.Repository.ID
	})
	return out, nil
}
