package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"docsplatform/internal/models"
)

type dataset struct {
	Sequences                 map[string]int64                     `json:"sequences"`
	Users                     map[int64]models.User                `json:"users"`
	Organizations             map[int64]models.Organization        `json:"organizations"`
	Teams                     map[int64]models.Team                `json:"teams"`
	Projects                  map[int64]models.Project             `json:"projects"`
	Relationships             map[int64]models.ProjectRelationship `json:"relationships"`
	Versions                  map[int64]models.Version             `json:"versions"`
	Builds                    map[int64]models.Build               `json:"builds"`
	Redirects                 map[int64]models.Redirect            `json:"redirects"`
	EnvironmentVariables      map[int64]models.EnvironmentVariable `json:"environmentVariables"`
	Notifications             map[int64]models.Notification        `json:"notifications"`
	RemoteOrganizations       map[int64]models.RemoteOrganization  `json:"remoteOrganizations"`
	RemoteRepositories        map[int64]models.RemoteRepository    `json:"remoteRepositories"`
	RemoteRepositoryRelations []models.RemoteRepositoryRelation    `json:"remoteRepositoryRelations"`
}

// Storage is the JSON file datastore. Every mutation clones the dataset,
// applies the change, writes the clone to disk and only then swaps it in, so
// a failed write leaves the in-memory state untouched.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

func newDataset() dataset {
	d := dataset{}
	d.ensureInitialized()
	return d
}

func (d *dataset) ensureInitialized() {
	if d.Sequences == nil {
		d.Sequences = make(map[string]int64)
	}
	if d.Users == nil {
		d.Users = make(map[int64]models.User)
	}
	if d.Organizations == nil {
		d.Organizations = make(map[int64]models.Organization)
	}
	if d.Teams == nil {
		d.Teams = make(map[int64]models.Team)
	}
	if d.Projects == nil {
		d.Projects = make(map[int64]models.Project)
	}
	if d.Relationships == nil {
		d.Relationships = make(map[int64]models.ProjectRelationship)
	}
	if d.Versions == nil {
		d.Versions = make(map[int64]models.Version)
	}
	if d.Builds == nil {
		d.Builds = make(map[int64]models.Build)
	}
	if d.Redirects == nil {
		d.Redirects = make(map[int64]models.Redirect)
	}
	if d.EnvironmentVariables == nil {
		d.EnvironmentVariables = make(map[int64]models.EnvironmentVariable)
	}
	if d.Notifications == nil {
		d.Notifications = make(map[int64]models.Notification)
	}
	if d.RemoteOrganizations == nil {
		d.RemoteOrganizations = make(map[int64]models.RemoteOrganization)
	}
	if d.RemoteRepositories == nil {
		d.RemoteRepositories = make(map[int64]models.RemoteRepository)
	}
}

// nextID advances the named sequence and returns the new value.
func (d *dataset) nextID(sequence string) int64 {
	d.Sequences[sequence]++
	return d.Sequences[sequence]
}

// NewStorage opens (or creates) the JSON datastore at path.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("json datastore path is required")
	}
	store := &Storage{filePath: path}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

// NewJSONRepository opens the JSON datastore as a Repository.
func NewJSONRepository(path string, opts ...Option) (Repository, error) {
	return NewStorage(path, opts...)
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	var loaded dataset
	if err := json.NewDecoder(file).Decode(&loaded); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}
	loaded.ensureInitialized()
	s.data = loaded
	return nil
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

// mutate runs fn against a clone of the dataset and swaps the clone in once
// it has been written to disk.
func (s *Storage) mutate(fn func(*dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	if err := fn(&updated); err != nil {
		return err
	}
	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// Ping reports whether the backing file is still reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	path := s.filePath
	s.mu.RUnlock()
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy of the current dataset.
func (s *Storage) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot(cloneDataset(s.data))
}

func cloneDataset(src dataset) dataset {
	clone := dataset{
		Sequences:            maps.Clone(src.Sequences),
		Users:                cloneRecords(src.Users, cloneUser),
		Organizations:        cloneRecords(src.Organizations, cloneOrganization),
		Teams:                cloneRecords(src.Teams, cloneTeam),
		Projects:             cloneRecords(src.Projects, cloneProject),
		Relationships:        maps.Clone(src.Relationships),
		Versions:             maps.Clone(src.Versions),
		Builds:               cloneRecords(src.Builds, cloneBuild),
		Redirects:            maps.Clone(src.Redirects),
		EnvironmentVariables: maps.Clone(src.EnvironmentVariables),
		Notifications:        cloneRecords(src.Notifications, cloneNotification),
		RemoteOrganizations:  cloneRecords(src.RemoteOrganizations, cloneRemoteOrganization),
		RemoteRepositories:   cloneRecords(src.RemoteRepositories, cloneRemoteRepository),
	}
	if src.RemoteRepositoryRelations != nil {
		clone.RemoteRepositoryRelations = append([]models.RemoteRepositoryRelation(nil), src.RemoteRepositoryRelations...)
	}
	clone.ensureInitialized()
	return clone
}

func cloneRecords[V any](src map[int64]V, clone func(V) V) map[int64]V {
	if src == nil {
		return nil
	}
	out := make(map[int64]V, len(src))
	for id, value := range src {
		out[id] = clone(value)
	}
	return out
}

func cloneIDs(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	return append([]int64(nil), ids...)
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}

func cloneInt64Ptr(value *int64) *int64 {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneUser(user models.User) models.User {
	user.Roles = cloneStrings(user.Roles)
	return user
}

func cloneOrganization(org models.Organization) models.Organization {
	org.OwnerIDs = cloneIDs(org.OwnerIDs)
	return org
}

func cloneTeam(team models.Team) models.Team {
	team.MemberIDs = cloneIDs(team.MemberIDs)
	team.ProjectIDs = cloneIDs(team.ProjectIDs)
	return team
}

func cloneProject(project models.Project) models.Project {
	project.UserIDs = cloneIDs(project.UserIDs)
	project.Tags = cloneStrings(project.Tags)
	project.Domains = cloneStrings(project.Domains)
	project.OrganizationID = cloneInt64Ptr(project.OrganizationID)
	project.MainLanguageProjectID = cloneInt64Ptr(project.MainLanguageProjectID)
	project.RemoteRepositoryID = cloneInt64Ptr(project.RemoteRepositoryID)
	return project
}

func cloneBuild(build models.Build) models.Build {
	build.Config = maps.Clone(build.Config)
	if build.FinishedAt != nil {
		finished := *build.FinishedAt
		build.FinishedAt = &finished
	}
	return build
}

func cloneNotification(notification models.Notification) models.Notification {
	notification.Format = maps.Clone(notification.Format)
	return notification
}

func cloneRemoteOrganization(org models.RemoteOrganization) models.RemoteOrganization {
	org.MemberIDs = cloneIDs(org.MemberIDs)
	return org
}

func cloneRemoteRepository(repo models.RemoteRepository) models.RemoteRepository {
	repo.OrganizationID = cloneInt64Ptr(repo.OrganizationID)
	return repo
}

func normalizeRoles(input []string) []string {
	if len(input) == 0 {
		return nil
	}
	roles := make([]string, 0, len(input))
	seen := make(map[string]struct{})
	for _, role := range input {
		trimmed := strings.TrimSpace(role)
		if trimmed == "" {
			continue
		}
		normalized := strings.ToLower(trimmed)
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		roles = append(roles, normalized)
	}
	if len(roles) == 0 {
		return nil
	}
	sort.Strings(roles)
	return roles
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.ToLower(strings.TrimSpace(tag))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	sort.Strings(normalized)
	return normalized
}

func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return []int64{}
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// sortedValues returns the map values ordered by less.
func sortedValues[V any](src map[int64]V, less func(a, b V) bool) []V {
	out := make([]V, 0, len(src))
	for _, value := range src {
		out = append(out, value)
	}
	sortSlice(out, less)
	return out
}

func sortSlice[V any](values []V, less func(a, b V) bool) {
	sort.SliceStable(values, func(i, j int) bool { return less(values[i], values[j]) })
}
