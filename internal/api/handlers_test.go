package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsplatform/internal/builds"
	"docsplatform/internal/models"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

func newTestHandler(t *testing.T, configure ...func(*Options)) (*Handler, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	opts := Options{Store: store}
	for _, fn := range configure {
		fn(&opts)
	}
	handler, err := NewHandler(opts)
	require.NoError(t, err)
	return handler, store
}

func createUser(t *testing.T, store *storage.Storage, username string) models.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), storage.CreateUserParams{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	return user
}

func createProject(t *testing.T, store *storage.Storage, name string, owner models.User, privacy string) models.Project {
	t.Helper()
	project, err := store.CreateProject(context.Background(), storage.CreateProjectParams{
		Name:       name,
		Repository: models.Repository{URL: "https://github.com/example/" + storage.Slugify(name)},
		Privacy:    privacy,
		UserIDs:    []int64{owner.ID},
	})
	require.NoError(t, err)
	return project
}

func createVersion(t *testing.T, store *storage.Storage, project models.Project, slug string, active bool) models.Version {
	t.Helper()
	version, err := store.CreateVersion(context.Background(), storage.CreateVersionParams{
		ProjectID:  project.ID,
		Slug:       slug,
		Identifier: slug,
		Type:       models.VersionTypeBranch,
		Active:     active,
	})
	require.NoError(t, err)
	return version
}

func do(t *testing.T, handler http.Handler, method, target string, caller *models.User, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, target, &body)
	if caller != nil {
		req = req.WithContext(resource.ContextWithCaller(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func resultSlugs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var page struct {
		Results []struct {
			Slug string `json:"slug"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	slugs := make([]string, 0, len(page.Results))
	for _, result := range page.Results {
		slugs = append(slugs, result.Slug)
	}
	return slugs
}

type postSaveCall struct {
	wasActive bool
	active    bool
}

type fakeGateway struct {
	mu        sync.Mutex
	postSaves []postSaveCall
}

func (g *fakeGateway) Trigger(ctx context.Context, project models.Project, version models.Version) (builds.Result, error) {
	return builds.Result{Reason: builds.OutcomeVersionInactive}, nil
}

func (g *fakeGateway) PostSave(ctx context.Context, project models.Project, version models.Version, wasActive bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.postSaves = append(g.postSaves, postSaveCall{wasActive: wasActive, active: version.Active})
	return nil
}

type fakeImporter struct {
	store  *storage.Storage
	branch string
	calls  int
}

func (f *fakeImporter) FinishImport(ctx context.Context, project models.Project) {
	f.calls++
	branch := f.branch
	_, _ = f.store.UpdateProject(ctx, project.ID, storage.ProjectUpdate{DefaultBranch: &branch})
}

// reloadFailingStore fails GetProject once armed by the import hook.
type reloadFailingStore struct {
	storage.Repository
	armed bool
}

func (s *reloadFailingStore) GetProject(ctx context.Context, id int64) (models.Project, error) {
	if s.armed {
		return models.Project{}, errors.New("datastore unavailable")
	}
	return s.Repository.GetProject(ctx, id)
}

type armingImporter struct {
	store *reloadFailingStore
}

func (a armingImporter) FinishImport(context.Context, models.Project) {
	a.store.armed = true
}

func TestNewHandlerRequiresStore(t *testing.T) {
	_, err := NewHandler(Options{})
	assert.Error(t, err)
}

func TestParseListingStrategy(t *testing.T) {
	strategy, err := ParseListingStrategy("")
	require.NoError(t, err)
	assert.Equal(t, ListingAdmin, strategy)

	strategy, err = ParseListingStrategy(" Member ")
	require.NoError(t, err)
	assert.Equal(t, ListingMember, strategy)

	_, err = ParseListingStrategy("everyone")
	assert.Error(t, err)
}

func TestAnonymousCallersAreRejected(t *testing.T) {
	handler, store := newTestHandler(t)
	owner := createUser(t, store, "alice")
	createProject(t, store, "Docs", owner, models.PrivacyPublic)

	rec := do(t, handler, http.MethodGet, "/api/v3/projects/docs/", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestInvisibleParentIsNotFound(t *testing.T) {
	handler, store := newTestHandler(t)
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")
	secret := createProject(t, store, "Secret", alice, models.PrivacyPrivate)
	createVersion(t, store, secret, "latest", true)

	for _, target := range []string{
		"/api/v3/projects/secret/",
		"/api/v3/projects/secret/versions/",
		"/api/v3/projects/secret/versions/latest/",
		"/api/v3/projects/missing/versions/latest/",
	} {
		rec := do(t, handler, http.MethodGet, target, &bob, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}

	rec := do(t, handler, http.MethodGet, "/api/v3/projects/secret/versions/latest/", &alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPrivateVersionsHiddenFromReaders(t *testing.T) {
	handler, store := newTestHandler(t)
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")
	project := createProject(t, store, "Docs", alice, models.PrivacyPublic)
	createVersion(t, store, project, "latest", true)
	hidden, err := store.CreateVersion(context.Background(), storage.CreateVersionParams{
		ProjectID: project.ID,
		Slug:      "internal",
		Active:    true,
		Privacy:   models.PrivacyPrivate,
	})
	require.NoError(t, err)

	rec := do(t, handler, http.MethodGet, "/api/v3/projects/docs/versions/", &bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"latest"}, resultSlugs(t, rec))

	rec = do(t, handler, http.MethodGet, "/api/v3/projects/docs/versions/"+hidden.Slug+"/", &bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, handler, http.MethodGet, "/api/v3/projects/docs/versions/", &alice, nil)
	assert.ElementsMatch(t, []string{"latest", "internal"}, resultSlugs(t, rec))
}

func TestProjectListReturnsAdministeredProjects(t *testing.T) {
	handler, store := newTestHandler(t)
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")
	createProject(t, store, "Alpha", alice, models.PrivacyPublic)
	createProject(t, store, "Beta", alice, models.PrivacyPrivate)
	createProject(t, store, "Gamma", bob, models.PrivacyPublic)

	rec := do(t, handler, http.MethodGet, "/api/v3/projects/", &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"alpha", "beta"}, resultSlugs(t, rec))
	assert.EqualValues(t, 2, decode(t, rec)["count"])

	rec = do(t, handler, http.MethodGet, "/api/v3/projects/gamma/", &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gamma", decode(t, rec)["slug"])

	rec = do(t, handler, http.MethodGet, "/api/v3/projects/?name=alp", &alice, nil)
	assert.Equal(t, []string{"alpha"}, resultSlugs(t, rec))
}

func TestProjectListIncludesOrganizationProjects(t *testing.T) {
	handler, store := newTestHandler(t, func(o *Options) { o.Listing = ListingMember })
	ctx := context.Background()
	owner := createUser(t, store, "owner")
	member := createUser(t, store, "member")
	org, err := store.CreateOrganization(ctx, storage.CreateOrganizationParams{Slug: "acme", Name: "Acme", OwnerIDs: []int64{owner.ID}})
	require.NoError(t, err)
	project, err := store.CreateProject(ctx, storage.CreateProjectParams{Name: "Handbook", OrganizationID: &org.ID, Privacy: models.PrivacyPrivate})
	require.NoError(t, err)
	_, err = store.CreateTeam(ctx, storage.CreateTeamParams{
		OrganizationID: org.ID,
		Slug:           "writers",
		Name:           "Writers",
		Access:         models.TeamAccessReadonly,
		MemberIDs:      []int64{member.ID},
		ProjectIDs:     []int64{project.ID},
	})
	require.NoError(t, err)

	rec := do(t, handler, http.MethodGet, "/api/v3/projects/", &owner, nil)
	assert.Equal(t, []string{"handbook"}, resultSlugs(t, rec))

	rec = do(t, handler, http.MethodGet, "/api/v3/projects/", &member, nil)
	assert.Equal(t, []string{"handbook"}, resultSlugs(t, rec))

	rec = do(t, handler, http.MethodPatch, "/api/v3/projects/handbook/", &member, map[string]any{"description": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, handler, http.MethodPatch, "/api/v3/projects/handbook/", &owner, map[string]any{"description": "Company handbook"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Company handbook", decode(t, rec)["description"])
}

func TestProjectImportRendersReadSchema(t *testing.T) {
	handler, store := newTestHandler(t)
	importer := &fakeImporter{store: store, branch: "main"}
	handler.importer = importer
	alice := createUser(t, store, "alice")

	rec := do(t, handler, http.MethodPost, "/api/v3/projects/", &alice, map[string]any{
		"name":       "My Docs",
		"repository": map[string]any{"url": "https://github.com/example/my-docs.git", "type": "git"},
		"slug":       "ignored",
		"users":      []string{"mallory"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "my-docs", body["slug"])
	assert.Equal(t, "main", body["default_branch"])
	assert.Equal(t, "latest", body["default_version"])
	assert.NotEmpty(t, body["created"])
	assert.Equal(t, []any{map[string]any{"username": "alice"}}, body["users"])
	assert.Equal(t, map[string]any{"code": "en", "name": "English"}, body["language"])
	links := body["_links"].(map[string]any)
	assert.Equal(t, "http://example.com/api/v3/projects/my-docs/", links["_self"])
	assert.Equal(t, 1, importer.calls)

	rec = do(t, handler, http.MethodPost, "/api/v3/projects/", &alice, map[string]any{
		"name":       "My Docs",
		"repository": map[string]any{"url": "https://github.com/example/other"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["fields"], "name")

	rec = do(t, handler, http.MethodPost, "/api/v3/projects/", &alice, map[string]any{"name": "No Repo"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["fields"], "repository")
}

func TestProjectImportSurvivesReloadFailure(t *testing.T) {
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	failing := &reloadFailingStore{Repository: store}
	handler, err := NewHandler(Options{Store: failing, Importer: armingImporter{store: failing}})
	require.NoError(t, err)
	alice := createUser(t, store, "alice")

	rec := do(t, handler, http.MethodPost, "/api/v3/projects/", &alice, map[string]any{
		"name":       "Reload Docs",
		"repository": map[string]any{"url": "https://github.com/example/reload-docs"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "reload-docs", decode(t, rec)["slug"])
	assert.True(t, failing.armed)

	_, err = store.GetProjectBySlug(context.Background(), "reload-docs")
	require.NoError(t, err)
}

func TestProjectImportRejectsLocalRepositories(t *testing.T) {
	handler, store := newTestHandler(t)
	importer := &fakeImporter{store: store, branch: "main"}
	handler.importer = importer
	alice := createUser(t, store, "alice")
	dir := t.TempDir()

	for _, repoURL := range []string{dir, "file://" + dir, "ftp://git.example.com/docs.git", "https:///docs.git"} {
		rec := do(t, handler, http.MethodPost, "/api/v3/projects/", &alice, map[string]any{
			"name":       "Local Docs",
			"repository": map[string]any{"url": repoURL},
		})
		require.Equal(t, http.StatusBadRequest, rec.Code, repoURL)
		assert.Contains(t, decode(t, rec)["fields"], "repository.url", repoURL)
	}
	assert.Zero(t, importer.calls)

	remotes := map[string]string{
		"SCP Docs": "git@github.com:example/scp-docs.git",
		"SSH Docs": "ssh://git@github.com/example/ssh-docs.git",
	}
	for name, repoURL := range remotes {
		rec := do(t, handler, http.MethodPost, "/api/v3/projects/", &alice, map[string]any{
			"name":       name,
			"repository": map[string]any{"url": repoURL},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	assert.Equal(t, 2, importer.calls)
}

func TestProjectExpansions(t *testing.T) {
	handler, store := newTestHandler(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	project := createProject(t, store, "Docs", alice, models.PrivacyPublic)
	latest := createVersion(t, store, project, "latest", true)
	createVersion(t, store, project, "old", false)
	_, err := store.CreateBuild(ctx, storage.CreateBuildParams{
		ProjectID: project.ID,
		VersionID: latest.ID,
		State:     models.BuildStateTriggered,
		Config:    map[string]any{"version": 2},
	})
	require.NoError(t, err)

	rec := do(t, handler, http.MethodGet, "/api/v3/projects/docs/?expand=active_versions,active_versions.last_build,active_versions.last_build.config", &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decode(t, rec)["active_versions"].([]any)
	require.Len(t, versions, 1)
	version := versions[0].(map[string]any)
	assert.Equal(t, "latest", version["slug"])
	lastBuild := version["last_build"].(map[string]any)
	assert.Equal(t, map[string]any{"version": float64(2)}, lastBuild["config"])

	rec = do(t, handler, http.MethodGet, "/api/v3/projects/?expand=active_versions.last_build.config", &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode(t, rec)["results"].([]any)[0].(map[string]any)
	assert.NotContains(t, result, "active_versions")
}

func TestSuperproject(t *testing.T) {
	handler, store := newTestHandler(t)
	alice := createUser(t, store, "alice")
	createProject(t, store, "Parent", alice, models.PrivacyPublic)
	createProject(t, store, "Child", alice, models.PrivacyPublic)

	rec := do(t, handler, http.MethodGet, "/api/v3/projects/child/superproject/", &alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, handler, http.MethodPost, "/api/v3/projects/parent/subprojects/", &alice, map[string]any{"child": "child"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "child", decode(t, rec)["alias"])

	rec = do(t, handler, http.MethodGet, "/api/v3/projects/child/superproject/", &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "parent", decode(t, rec)["slug"])

	rec = do(t, handler, http.MethodGet, "/api/v3/projects/child/", &alice, nil)
	subprojectOf := decode(t, rec)["subproject_of"].(map[string]any)
	assert.Equal(t, "parent", subprojectOf["slug"])
}

func TestSubprojectAliasUniquePerParent(t *testing.T) {
	handler, store := newTestHandler(t)
	alice := createUser(t, store, "alice")
	for _, name := range []string{"Parent One", "Parent Two", "Child One", "Child Two"} {
		createProject(t, store, name, alice, models.PrivacyPublic)
	}

	rec := do(t, handler, http.MethodPost, "/api/v3/projects/parent-one/subprojects/", &alice, map[string]any{"child": "child-one", "alias": "docs"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, handler, http.MethodPost, "/api/v3/projects/parent-one/subprojects/", &alice, map[string]any{"child": "child-two", "alias": "DOCS"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode(t, rec)["fields"].(map[string]any)
	assert.Contains(t, fields, "alias")

	rec = do(t, handler, http.MethodPost, "/api/v3/projects/parent-two/subprojects/", &alice, map[string]any{"child": "child-two", "alias": "docs"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, handler, http.MethodGet, "/api/v3/projects/parent-one/subprojects/docs/", &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "child-one", decode(t, rec)["child"].(map[string]any)["slug"])

	rec = do(t, handler, http.MethodDelete, "/api/v3/projects/parent-one/subprojects/docs/", &alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, handler, http.MethodGet, "/api/v3/projects/parent-one/subprojects/docs/", &alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubprojectCreateRequiresParentAdmin(t *testing.T) {
	handler, store := newTestHandler(t)
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")
	createProject(t, store, "Parent", alice, models.PrivacyPublic)
	createProject(t, store, "Child", bob, models.PrivacyPublic)

	rec := do(t, handler, http.MethodPost, "/api/v3/projects/parent/subprojects/", &bob, map[string]any{"child": "child"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, handler, http.MethodPost, "/api/v3/projects/parent/subprojects/", &alice, map[string]any{"child": "child"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["fields"], "child")
}

func TestTranslations(t *testing.T) {
	handler, store := newTestHandler(t)
	alice := createUser(t, store, "alice")
	mainProject := createProject(t, store, "Docs", alice, models.PrivacyPublic)
	_, err := store.CreateProject(context.Background(), storage.CreateProjectParams{
		Name:                  "Docs ES",
		Language:              "es",
		UserIDs:               []int64{alice.ID},
		MainLanguageProjectID: &mainProject.ID,
	})
	require.NoError(t, err)

	rec := do(t, handler, http.MethodGet, "/api/v3/projects/docs/translations/", &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"docs-es"}, resultSlugs(t, rec))
	translation := decode(t, rec)["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "docs", translation["translation_of"].(map[string]any)["slug"])
	assert.Equal(t, "Spanish", translation["language"].(map[string]any)["name"])
}

func TestRootsOfNestedRoutesAreNotFound(t *testing.T) {
	handler, store := newTestHandler(t)
	alice := createUser(t, store, "alice")

	for _, target := range []string{"/api/v3/users/", "/api/v3/users/alice/", "/api/v3/organizations/", "/api/v3/organizations/acme/"} {
		rec := do(t, handler, http.MethodGet, target, &alice, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, "not found", decode(t, rec)["error"])
	}
}

func TestUnroutedMethodIsNotAllowed(t *testing.T) {
	handler, store := newTestHandler(t)
	alice := createUser(t, store, "alice")
	createProject(t, store, "Docs", alice, models.PrivacyPublic)

	rec := do(t, handler, http.MethodDelete, "/api/v3/projects/docs/", &alice, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	handler, _ := newTestHandler(t, func(o *Options) {
		o.HealthChecks = map[string]HealthCheck{
			"build_queue": func(context.Context) error { return assert.AnError },
		}
	})

	rec := do(t, handler, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	services := body["services"].([]any)
	require.Len(t, services, 3)
	assert.Equal(t, "build_queue", services[2].(map[string]any)["component"])
}
