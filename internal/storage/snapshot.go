package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Snapshot is a complete JSON-serialisable view of the datastore, grouping
// each collection by primary identifier so it can be replayed into another
// backing store.
type Snapshot dataset

// SnapshotCounts summarises the size of each collection stored in a Snapshot.
type SnapshotCounts struct {
	Users                     int
	Organizations             int
	Teams                     int
	Projects                  int
	Relationships             int
	Versions                  int
	Builds                    int
	Redirects                 int
	EnvironmentVariables      int
	Notifications             int
	RemoteOrganizations       int
	RemoteRepositories        int
	RemoteRepositoryRelations int
}

// LoadSnapshotFromJSON reads a JSON datastore file from disk.
func LoadSnapshotFromJSON(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer file.Close()

	var snapshot Snapshot
	if err := json.NewDecoder(file).Decode(&snapshot); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	snapshot.ensureInitialized()
	return &snapshot, nil
}

func (s *Snapshot) ensureInitialized() {
	(*dataset)(s).ensureInitialized()
}

// Counts reports how many entities of each type the snapshot holds.
func (s *Snapshot) Counts() SnapshotCounts {
	if s == nil {
		return SnapshotCounts{}
	}
	return SnapshotCounts{
		Users:                     len(s.Users),
		Organizations:             len(s.Organizations),
		Teams:                     len(s.Teams),
		Projects:                  len(s.Projects),
		Relationships:             len(s.Relationships),
		Versions:                  len(s.Versions),
		Builds:                    len(s.Builds),
		Redirects:                 len(s.Redirects),
		EnvironmentVariables:      len(s.EnvironmentVariables),
		Notifications:             len(s.Notifications),
		RemoteOrganizations:       len(s.RemoteOrganizations),
		RemoteRepositories:        len(s.RemoteRepositories),
		RemoteRepositoryRelations: len(s.RemoteRepositoryRelations),
	}
}

// ImportSnapshotToPostgres bulk-loads a Snapshot into a Postgres repository,
// preserving identifiers.
func ImportSnapshotToPostgres(ctx context.Context, repo Repository, snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	pgRepo, ok := repo.(*postgresRepository)
	if !ok {
		return fmt.Errorf("postgres repository required for snapshot import")
	}
	snapshot.ensureInitialized()
	return pgRepo.importSnapshot(ctx, snapshot)
}
