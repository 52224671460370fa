package importer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsplatform/internal/builds"
	"docsplatform/internal/models"
	"docsplatform/internal/storage"
)

type stubProber struct {
	refs Refs
	err  error
	urls []string
}

func (p *stubProber) Probe(_ context.Context, repoURL string) (Refs, error) {
	p.urls = append(p.urls, repoURL)
	return p.refs, p.err
}

func newTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	return store
}

func createProject(t *testing.T, store *storage.Storage) models.Project {
	t.Helper()
	ctx := context.Background()
	user, err := store.CreateUser(ctx, storage.CreateUserParams{Username: "owner", Email: "owner@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	project, err := store.CreateProject(ctx, storage.CreateProjectParams{
		Name:       "Docs",
		Repository: models.Repository{URL: "https://git.example.com/docs.git", Type: "git"},
		UserIDs:    []int64{user.ID},
	})
	require.NoError(t, err)
	return project
}

func TestFinishImportSeedsVersionsAndTriggersBuild(t *testing.T) {
	store := newTestStore(t)
	project := createProject(t, store)
	prober := &stubProber{refs: Refs{DefaultBranch: "trunk", Branches: []string{"trunk", "feature/x"}, Tags: []string{"v1.0"}}}
	queue := builds.NewMemoryQueue()
	gateway, err := builds.NewGateway(store, builds.WithQueue(queue))
	require.NoError(t, err)

	var outcomes []string
	finisher, err := NewFinisher(store, gateway, WithProber(prober), WithOutcomeHook(func(o string) { outcomes = append(outcomes, o) }))
	require.NoError(t, err)

	finisher.FinishImport(context.Background(), project)

	assert.Equal(t, []string{project.Repository.URL}, prober.urls)
	assert.Equal(t, []string{OutcomeCompleted}, outcomes)

	updated, err := store.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, "trunk", updated.DefaultBranch)

	versions, err := store.ListVersions(context.Background(), project.ID)
	require.NoError(t, err)
	bySlug := make(map[string]models.Version)
	for _, version := range versions {
		bySlug[version.Slug] = version
	}
	require.Contains(t, bySlug, models.LatestVersionSlug)
	assert.True(t, bySlug[models.LatestVersionSlug].Active)
	assert.Equal(t, "trunk", bySlug[models.LatestVersionSlug].Identifier)
	assert.False(t, bySlug["trunk"].Active)
	assert.Equal(t, models.VersionTypeBranch, bySlug["feature-x"].Type)
	assert.Equal(t, models.VersionTypeTag, bySlug["v1.0"].Type)

	jobs := queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.LatestVersionSlug, jobs[0].VersionSlug)
}

func TestFinishImportSurvivesProbeFailure(t *testing.T) {
	store := newTestStore(t)
	project := createProject(t, store)
	gateway, err := builds.NewGateway(store)
	require.NoError(t, err)

	var outcomes []string
	finisher, err := NewFinisher(store, gateway,
		WithProber(&stubProber{err: errors.New("unreachable")}),
		WithOutcomeHook(func(o string) { outcomes = append(outcomes, o) }))
	require.NoError(t, err)

	finisher.FinishImport(context.Background(), project)

	assert.Equal(t, []string{OutcomeProbeFailed}, outcomes)
	versions, err := store.ListVersions(context.Background(), project.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, models.LatestVersionSlug, versions[0].Slug)
}

func TestFinishImportIsIdempotentForExistingVersions(t *testing.T) {
	store := newTestStore(t)
	project := createProject(t, store)
	prober := &stubProber{refs: Refs{DefaultBranch: "main", Branches: []string{"main"}}}
	finisher, err := NewFinisher(store, nil, WithProber(prober))
	require.NoError(t, err)

	finisher.FinishImport(context.Background(), project)
	finisher.FinishImport(context.Background(), project)

	versions, err := store.ListVersions(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestRefsFromReferences(t *testing.T) {
	refs := refsFromReferences([]*plumbing.Reference{
		plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("develop")),
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), plumbing.ZeroHash),
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("develop"), plumbing.ZeroHash),
		plumbing.NewHashReference(plumbing.NewTagReferenceName("v2.0"), plumbing.ZeroHash),
		plumbing.NewHashReference(plumbing.NewTagReferenceName("v2.0^{}"), plumbing.ZeroHash),
		plumbing.NewHashReference(plumbing.ReferenceName("refs/pull/1/head"), plumbing.ZeroHash),
	})
	assert.Equal(t, "develop", refs.DefaultBranch)
	assert.Equal(t, []string{"develop", "main"}, refs.Branches)
	assert.Equal(t, []string{"v2.0"}, refs.Tags)

	refs = refsFromReferences([]*plumbing.Reference{
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("master"), plumbing.ZeroHash),
	})
	assert.Equal(t, "master", refs.DefaultBranch)
}

func TestGitProberRequiresURL(t *testing.T) {
	_, err := GitProber{}.Probe(context.Background(), " ")
	assert.Error(t, err)
}
