package storage

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"docsplatform/internal/models"
)

// RepositoryFactory constructs a repository backed by either the JSON store or
// Postgres implementation for cross-datastore scenario assertions.
type RepositoryFactory func(t *testing.T, opts ...Option) (Repository, func(), error)

func runRepository(t *testing.T, factory RepositoryFactory, opts ...Option) Repository {
	t.Helper()
	if factory == nil {
		t.Fatal("repository factory is required")
	}
	repo, cleanup, err := factory(t, opts...)
	if errors.Is(err, ErrPostgresUnavailable) {
		t.Skip("postgres repository unavailable")
	}
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if repo == nil {
		t.Fatal("repository factory returned nil repository")
	}
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	return repo
}

func requireAvailable(t *testing.T, err error, operation string) {
	t.Helper()
	if errors.Is(err, ErrPostgresUnavailable) {
		t.Skip("postgres repository unavailable")
	}
	if err != nil {
		t.Fatalf("%s: %v", operation, err)
	}
}

func requireConflict(t *testing.T, err error, field string) {
	t.Helper()
	conflict, ok := IsConflict(err)
	if !ok {
		t.Fatalf("expected conflict on %q, got %v", field, err)
	}
	if conflict.Field != field {
		t.Fatalf("expected conflict on %q, got %q (%s)", field, conflict.Field, conflict.Message)
	}
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("conflict %v does not wrap ErrConflict", err)
	}
}

func projectSlugs(projects []models.Project) []string {
	slugs := make([]string, 0, len(projects))
	for _, project := range projects {
		slugs = append(slugs, project.Slug)
	}
	return slugs
}

// RunRepositoryUserLifecycle covers account creation, credential checks and
// profile updates.
func RunRepositoryUserLifecycle(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, CreateUserParams{Username: "eric", Email: "Eric@Example.com", DisplayName: "Eric", Password: "correct-horse", Roles: []string{"Editor"}})
	requireAvailable(t, err, "create user")
	if user.Email != "eric@example.com" {
		t.Fatalf("expected lowercased email, got %q", user.Email)
	}
	if !user.HasRole("editor") {
		t.Fatalf("expected editor role, got %v", user.Roles)
	}

	_, err = repo.CreateUser(ctx, CreateUserParams{Username: "ERIC", Password: "another-pass"})
	requireConflict(t, err, "username")

	if _, err := repo.AuthenticateUser(ctx, "eric", "correct-horse"); err != nil {
		t.Fatalf("authenticate by username: %v", err)
	}
	if _, err := repo.AuthenticateUser(ctx, "eric@example.com", "correct-horse"); err != nil {
		t.Fatalf("authenticate by email: %v", err)
	}
	if _, err := repo.AuthenticateUser(ctx, "eric", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := repo.AuthenticateUser(ctx, "nobody", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown login, got %v", err)
	}

	imported, err := repo.CreateUser(ctx, CreateUserParams{Username: "imported"})
	requireAvailable(t, err, "create passwordless user")
	if _, err := repo.AuthenticateUser(ctx, "imported", "anything-at-all"); !errors.Is(err, ErrPasswordLoginUnsupported) {
		t.Fatalf("expected ErrPasswordLoginUnsupported, got %v", err)
	}

	name := "Eric H."
	roles := []string{"admin"}
	updated, err := repo.UpdateUser(ctx, user.ID, UserUpdate{DisplayName: &name, Roles: &roles})
	requireAvailable(t, err, "update user")
	if updated.DisplayName != name || !updated.HasRole("admin") {
		t.Fatalf("unexpected updated user %+v", updated)
	}

	if _, err := repo.SetUserPassword(ctx, imported.ID, "short"); err == nil {
		t.Fatal("expected short password to be rejected")
	}
	if _, err := repo.SetUserPassword(ctx, imported.ID, "now-it-has-one"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if _, err := repo.AuthenticateUser(ctx, "imported", "now-it-has-one"); err != nil {
		t.Fatalf("authenticate after set password: %v", err)
	}

	found, err := repo.GetUserByUsername(ctx, "Eric")
	requireAvailable(t, err, "get user by username")
	if found.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, found.ID)
	}
	if _, err := repo.GetUser(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	users, err := repo.ListUsers(ctx)
	requireAvailable(t, err, "list users")
	if len(users) != 2 || users[0].ID != user.ID {
		t.Fatalf("unexpected users %+v", users)
	}
}

// RunRepositoryOrganizationMembership covers organizations, teams and the
// membership lookup used for listing.
func RunRepositoryOrganizationMembership(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	owner, err := repo.CreateUser(ctx, CreateUserParams{Username: "owner"})
	requireAvailable(t, err, "create owner")
	member, err := repo.CreateUser(ctx, CreateUserParams{Username: "member"})
	requireAvailable(t, err, "create member")
	outsider, err := repo.CreateUser(ctx, CreateUserParams{Username: "outsider"})
	requireAvailable(t, err, "create outsider")

	beta, err := repo.CreateOrganization(ctx, CreateOrganizationParams{Name: "Beta Corp", OwnerIDs: []int64{owner.ID, owner.ID}})
	requireAvailable(t, err, "create beta")
	if beta.Slug != "beta-corp" {
		t.Fatalf("expected derived slug beta-corp, got %q", beta.Slug)
	}
	if !reflect.DeepEqual(beta.OwnerIDs, []int64{owner.ID}) {
		t.Fatalf("expected deduplicated owners, got %v", beta.OwnerIDs)
	}
	alpha, err := repo.CreateOrganization(ctx, CreateOrganizationParams{Name: "Alpha Inc", Slug: "alpha", OwnerIDs: []int64{owner.ID}})
	requireAvailable(t, err, "create alpha")

	_, err = repo.CreateOrganization(ctx, CreateOrganizationParams{Name: "Another", Slug: "alpha"})
	requireConflict(t, err, "slug")

	team, err := repo.CreateTeam(ctx, CreateTeamParams{OrganizationID: beta.ID, Name: "Writers", MemberIDs: []int64{member.ID}})
	requireAvailable(t, err, "create team")
	if team.Slug != "writers" || team.Access != models.TeamAccessReadonly {
		t.Fatalf("unexpected team defaults %+v", team)
	}
	_, err = repo.CreateTeam(ctx, CreateTeamParams{OrganizationID: beta.ID, Name: "Writers"})
	requireConflict(t, err, "slug")
	if _, err := repo.CreateTeam(ctx, CreateTeamParams{OrganizationID: beta.ID, Name: "Ops", Access: "superuser"}); err == nil {
		t.Fatal("expected invalid access to be rejected")
	}

	orgs, err := repo.ListOrganizationsForUser(ctx, owner.ID)
	requireAvailable(t, err, "list owner orgs")
	if len(orgs) != 2 || orgs[0].ID != alpha.ID || orgs[1].ID != beta.ID {
		t.Fatalf("expected alpha then beta, got %+v", orgs)
	}
	orgs, err = repo.ListOrganizationsForUser(ctx, member.ID)
	requireAvailable(t, err, "list member orgs")
	if len(orgs) != 1 || orgs[0].ID != beta.ID {
		t.Fatalf("expected team membership to grant beta, got %+v", orgs)
	}
	orgs, err = repo.ListOrganizationsForUser(ctx, outsider.ID)
	requireAvailable(t, err, "list outsider orgs")
	if len(orgs) != 0 {
		t.Fatalf("expected no organizations for outsider, got %+v", orgs)
	}

	bySlug, err := repo.GetOrganizationBySlug(ctx, "beta-corp")
	requireAvailable(t, err, "get org by slug")
	if bySlug.ID != beta.ID {
		t.Fatalf("expected %d, got %d", beta.ID, bySlug.ID)
	}
	if _, err := repo.GetOrganizationBySlug(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// RunRepositoryProjectLifecycle covers project defaults, slug uniqueness,
// query filters and partial updates.
func RunRepositoryProjectLifecycle(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	alice, err := repo.CreateUser(ctx, CreateUserParams{Username: "alice"})
	requireAvailable(t, err, "create alice")
	bob, err := repo.CreateUser(ctx, CreateUserParams{Username: "bob"})
	requireAvailable(t, err, "create bob")
	org, err := repo.CreateOrganization(ctx, CreateOrganizationParams{Name: "Docs Org", OwnerIDs: []int64{alice.ID}})
	requireAvailable(t, err, "create org")

	docs, err := repo.CreateProject(ctx, CreateProjectParams{
		Name:       "Café Docs",
		Repository: models.Repository{URL: "https://github.com/example/docs"},
		UserIDs:    []int64{alice.ID},
	})
	requireAvailable(t, err, "create project")
	if docs.Slug != "cafe-docs" {
		t.Fatalf("expected slug cafe-docs, got %q", docs.Slug)
	}
	if docs.Language != "en" || docs.ProgrammingLanguage != "words" || docs.Repository.Type != "git" {
		t.Fatalf("unexpected defaults %+v", docs)
	}
	if docs.DefaultVersion != models.LatestVersionSlug || docs.Privacy != models.PrivacyPublic {
		t.Fatalf("unexpected version/privacy defaults %+v", docs)
	}

	_, err = repo.CreateProject(ctx, CreateProjectParams{Name: "Cafe docs"})
	requireConflict(t, err, "name")
	if _, err := repo.CreateProject(ctx, CreateProjectParams{Name: ""}); err == nil {
		t.Fatal("expected missing name to be rejected")
	}

	missingOrg := int64(9999)
	if _, err := repo.CreateProject(ctx, CreateProjectParams{Name: "Orphan", OrganizationID: &missingOrg}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown organization, got %v", err)
	}

	api, err := repo.CreateProject(ctx, CreateProjectParams{Name: "API", UserIDs: []int64{alice.ID, bob.ID}, OrganizationID: &org.ID})
	requireAvailable(t, err, "create api project")
	translation, err := repo.CreateProject(ctx, CreateProjectParams{Name: "API es", Language: "es", UserIDs: []int64{bob.ID}, MainLanguageProjectID: &api.ID})
	requireAvailable(t, err, "create translation")

	all, err := repo.ListProjects(ctx, ProjectQuery{})
	requireAvailable(t, err, "list projects")
	if got := projectSlugs(all); !reflect.DeepEqual(got, []string{"api", "api-es", "cafe-docs"}) {
		t.Fatalf("unexpected project order %v", got)
	}

	tests := []struct {
		name  string
		query ProjectQuery
		want  []string
	}{
		{"admin", ProjectQuery{AdminUserID: alice.ID}, []string{"api", "cafe-docs"}},
		{"organization", ProjectQuery{OrganizationID: org.ID}, []string{"api"}},
		{"translations", ProjectQuery{MainLanguageProjectID: api.ID}, []string{"api-es"}},
		{"ids", ProjectQuery{IDs: []int64{docs.ID, translation.ID}}, []string{"api-es", "cafe-docs"}},
		{"combined", ProjectQuery{AdminUserID: bob.ID, OrganizationID: org.ID}, []string{"api"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projects, err := repo.ListProjects(ctx, tt.query)
			requireAvailable(t, err, "list projects")
			if got := projectSlugs(projects); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}

	description := "User guide"
	tags := []string{"guide", "sphinx"}
	branch := "main"
	updated, err := repo.UpdateProject(ctx, docs.ID, ProjectUpdate{Description: &description, Tags: &tags, DefaultBranch: &branch})
	requireAvailable(t, err, "update project")
	if updated.Description != description || updated.DefaultBranch != branch || !reflect.DeepEqual(updated.Tags, tags) {
		t.Fatalf("unexpected updated project %+v", updated)
	}
	if updated.Name != docs.Name || updated.Slug != docs.Slug {
		t.Fatalf("update changed untouched fields: %+v", updated)
	}

	bySlug, err := repo.GetProjectBySlug(ctx, "cafe-docs")
	requireAvailable(t, err, "get project by slug")
	if bySlug.Description != description {
		t.Fatalf("expected persisted description, got %q", bySlug.Description)
	}
	if _, err := repo.UpdateProject(ctx, 9999, ProjectUpdate{Description: &description}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// RunRepositoryRelationshipRules covers subproject aliasing and the nesting
// constraints enforced on relationship creation.
func RunRepositoryRelationshipRules(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	create := func(name string) models.Project {
		t.Helper()
		project, err := repo.CreateProject(ctx, CreateProjectParams{Name: name})
		requireAvailable(t, err, "create "+name)
		return project
	}
	parent := create("parent")
	child := create("child")
	other := create("other")
	grandchild := create("grandchild")
	outsider := create("outsider")

	rel, err := repo.CreateProjectRelationship(ctx, CreateRelationshipParams{ParentID: parent.ID, ChildID: child.ID})
	requireAvailable(t, err, "create relationship")
	if rel.Alias != "child" {
		t.Fatalf("expected alias to default to child slug, got %q", rel.Alias)
	}

	_, err = repo.CreateProjectRelationship(ctx, CreateRelationshipParams{ParentID: parent.ID, ChildID: other.ID, Alias: "CHILD"})
	requireConflict(t, err, "alias")

	_, err = repo.CreateProjectRelationship(ctx, CreateRelationshipParams{ParentID: parent.ID, ChildID: parent.ID, Alias: "self"})
	requireConflict(t, err, "child")

	_, err = repo.CreateProjectRelationship(ctx, CreateRelationshipParams{ParentID: other.ID, ChildID: child.ID, Alias: "again"})
	requireConflict(t, err, "child")

	_, err = repo.CreateProjectRelationship(ctx, CreateRelationshipParams{ParentID: other.ID, ChildID: parent.ID})
	requireConflict(t, err, "child")

	_, err = repo.CreateProjectRelationship(ctx, CreateRelationshipParams{ParentID: child.ID, ChildID: grandchild.ID})
	requireConflict(t, err, "parent")

	if _, err := repo.CreateProjectRelationship(ctx, CreateRelationshipParams{ParentID: parent.ID, ChildID: 9999}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown child, got %v", err)
	}

	second, err := repo.CreateProjectRelationship(ctx, CreateRelationshipParams{ParentID: parent.ID, ChildID: other.ID, Alias: "extras"})
	requireAvailable(t, err, "create second relationship")

	// child is already attached and "extras" is taken; the alias wins.
	for i := 0; i < 20; i++ {
		_, err = repo.CreateProjectRelationship(ctx, CreateRelationshipParams{ParentID: parent.ID, ChildID: child.ID, Alias: "extras"})
		requireConflict(t, err, "alias")
	}

	subprojects, err := repo.ListSubprojectRelationships(ctx, parent.ID)
	requireAvailable(t, err, "list subprojects")
	if len(subprojects) != 2 || subprojects[0].ID != rel.ID || subprojects[1].ID != second.ID {
		t.Fatalf("unexpected subprojects %+v", subprojects)
	}
	superprojects, err := repo.ListSuperprojectRelationships(ctx, other.ID)
	requireAvailable(t, err, "list superprojects")
	if len(superprojects) != 1 || superprojects[0].ParentID != parent.ID {
		t.Fatalf("unexpected superprojects %+v", superprojects)
	}

	byAlias, err := repo.GetProjectRelationship(ctx, parent.ID, "Extras")
	requireAvailable(t, err, "get relationship by alias")
	if byAlias.ChildID != other.ID {
		t.Fatalf("expected child %d, got %d", other.ID, byAlias.ChildID)
	}
	if _, err := repo.GetProjectRelationship(ctx, outsider.ID, "child"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.DeleteProjectRelationship(ctx, second.ID); err != nil {
		t.Fatalf("delete relationship: %v", err)
	}
	if err := repo.DeleteProjectRelationship(ctx, second.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := repo.CreateProjectRelationship(ctx, CreateRelationshipParams{ParentID: outsider.ID, ChildID: other.ID}); err != nil {
		t.Fatalf("expected released child to be attachable again: %v", err)
	}
}

// RunRepositoryVersionsAndBuilds covers version slugs, build creation and the
// running filter.
func RunRepositoryVersionsAndBuilds(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	project, err := repo.CreateProject(ctx, CreateProjectParams{Name: "Docs"})
	requireAvailable(t, err, "create project")
	other, err := repo.CreateProject(ctx, CreateProjectParams{Name: "Other"})
	requireAvailable(t, err, "create other project")

	release, err := repo.CreateVersion(ctx, CreateVersionParams{ProjectID: project.ID, VerboseName: "1.0 Final", Identifier: "v1.0", Type: models.VersionTypeTag, Active: true})
	requireAvailable(t, err, "create release")
	if release.Slug != "1.0-final" {
		t.Fatalf("expected slug 1.0-final, got %q", release.Slug)
	}
	latest, err := repo.CreateVersion(ctx, CreateVersionParams{ProjectID: project.ID, Slug: "latest", VerboseName: "latest", Identifier: "main", Type: models.VersionTypeBranch, Active: true})
	requireAvailable(t, err, "create latest")
	bare, err := repo.CreateVersion(ctx, CreateVersionParams{ProjectID: other.ID, Slug: "latest"})
	requireAvailable(t, err, "create version on other project")
	if bare.Type != models.VersionTypeUnknown || bare.VerboseName != "latest" || bare.Privacy != models.PrivacyPublic {
		t.Fatalf("unexpected version defaults %+v", bare)
	}

	_, err = repo.CreateVersion(ctx, CreateVersionParams{ProjectID: project.ID, Slug: "latest"})
	requireConflict(t, err, "slug")
	if _, err := repo.CreateVersion(ctx, CreateVersionParams{ProjectID: 9999, Slug: "latest"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	versions, err := repo.ListVersions(ctx, project.ID)
	requireAvailable(t, err, "list versions")
	if len(versions) != 2 || versions[0].ID != release.ID || versions[1].ID != latest.ID {
		t.Fatalf("expected versions ordered by verbose name, got %+v", versions)
	}

	hidden := true
	updatedVersion, err := repo.UpdateVersion(ctx, latest.ID, VersionUpdate{Hidden: &hidden})
	requireAvailable(t, err, "update version")
	if !updatedVersion.Hidden || !updatedVersion.Active {
		t.Fatalf("unexpected updated version %+v", updatedVersion)
	}
	bySlug, err := repo.GetVersionBySlug(ctx, project.ID, "latest")
	requireAvailable(t, err, "get version by slug")
	if !bySlug.Hidden {
		t.Fatal("expected hidden flag to be persisted")
	}

	if _, err := repo.CreateBuild(ctx, CreateBuildParams{ProjectID: other.ID, VersionID: latest.ID}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for mismatched project, got %v", err)
	}

	first, err := repo.CreateBuild(ctx, CreateBuildParams{ProjectID: project.ID, VersionID: latest.ID, Commit: "abc123", Config: map[string]any{"python": "3.12"}})
	requireAvailable(t, err, "create first build")
	if first.State != models.BuildStateTriggered {
		t.Fatalf("expected triggered state, got %q", first.State)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := repo.CreateBuild(ctx, CreateBuildParams{ProjectID: project.ID, VersionID: release.ID, State: models.BuildStateBuilding})
	requireAvailable(t, err, "create second build")

	finished := models.BuildStateFinished
	success := true
	duration := 42
	finishedAt := time.Now()
	done, err := repo.UpdateBuild(ctx, first.ID, BuildUpdate{State: &finished, Success: &success, Duration: &duration, FinishedAt: &finishedAt})
	requireAvailable(t, err, "finish build")
	if done.Running() || !done.Success || done.Duration != 42 || done.FinishedAt == nil {
		t.Fatalf("unexpected finished build %+v", done)
	}

	builds, err := repo.ListBuilds(ctx, BuildQuery{ProjectID: project.ID})
	requireAvailable(t, err, "list builds")
	if len(builds) != 2 || builds[0].ID != second.ID || builds[1].ID != first.ID {
		t.Fatalf("expected newest build first, got %+v", builds)
	}

	running := true
	active, err := repo.ListBuilds(ctx, BuildQuery{ProjectID: project.ID, Running: &running})
	requireAvailable(t, err, "list running builds")
	if len(active) != 1 || active[0].ID != second.ID {
		t.Fatalf("expected only the building build, got %+v", active)
	}
	byVersion, err := repo.ListBuilds(ctx, BuildQuery{VersionID: latest.ID})
	requireAvailable(t, err, "list builds by version")
	if len(byVersion) != 1 || byVersion[0].Config["python"] != "3.12" {
		t.Fatalf("unexpected builds for version %+v", byVersion)
	}
}

func redirectIDs(redirects []models.Redirect) []int64 {
	ids := make([]int64, 0, len(redirects))
	for i, redirect := range redirects {
		if redirect.Position != i {
			return nil
		}
		ids = append(ids, redirect.ID)
	}
	return ids
}

// RunRepositoryRedirectOrdering covers insertion, moves and deletion keeping
// positions dense.
func RunRepositoryRedirectOrdering(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	project, err := repo.CreateProject(ctx, CreateProjectParams{Name: "Docs"})
	requireAvailable(t, err, "create project")

	create := func(from string, position *int) models.Redirect {
		t.Helper()
		redirect, err := repo.CreateRedirect(ctx, CreateRedirectParams{ProjectID: project.ID, Type: models.RedirectTypePage, FromURL: from, ToURL: "/new/", Enabled: true, Position: position})
		requireAvailable(t, err, "create redirect "+from)
		return redirect
	}
	a := create("/a/", nil)
	b := create("/b/", nil)
	c := create("/c/", nil)
	if a.HTTPStatus != 302 {
		t.Fatalf("expected default status 302, got %d", a.HTTPStatus)
	}
	if c.Position != 2 {
		t.Fatalf("expected appended position 2, got %d", c.Position)
	}

	zero := 0
	d := create("/d/", &zero)
	if d.Position != 0 {
		t.Fatalf("expected inserted position 0, got %d", d.Position)
	}

	list := func() []int64 {
		t.Helper()
		redirects, err := repo.ListRedirects(ctx, project.ID)
		requireAvailable(t, err, "list redirects")
		return redirectIDs(redirects)
	}
	if got := list(); !reflect.DeepEqual(got, []int64{d.ID, a.ID, b.ID, c.ID}) {
		t.Fatalf("unexpected order after insert %v", got)
	}

	one := 1
	status := 301
	moved, err := repo.UpdateRedirect(ctx, c.ID, RedirectUpdate{Position: &one, HTTPStatus: &status})
	requireAvailable(t, err, "move redirect")
	if moved.Position != 1 || moved.HTTPStatus != 301 {
		t.Fatalf("unexpected moved redirect %+v", moved)
	}
	if got := list(); !reflect.DeepEqual(got, []int64{d.ID, c.ID, a.ID, b.ID}) {
		t.Fatalf("unexpected order after move %v", got)
	}

	far := 50
	if _, err := repo.UpdateRedirect(ctx, d.ID, RedirectUpdate{Position: &far}); err != nil {
		t.Fatalf("move redirect past end: %v", err)
	}
	if got := list(); !reflect.DeepEqual(got, []int64{c.ID, a.ID, b.ID, d.ID}) {
		t.Fatalf("unexpected order after clamped move %v", got)
	}

	if err := repo.DeleteRedirect(ctx, a.ID); err != nil {
		t.Fatalf("delete redirect: %v", err)
	}
	if got := list(); !reflect.DeepEqual(got, []int64{c.ID, b.ID, d.ID}) {
		t.Fatalf("unexpected order after delete %v", got)
	}
	if _, err := repo.GetRedirect(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.CreateRedirect(ctx, CreateRedirectParams{ProjectID: 9999, Type: models.RedirectTypePage}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown project, got %v", err)
	}
}

// RunRepositoryEnvironmentVariables covers name uniqueness and the value size
// limit.
func RunRepositoryEnvironmentVariables(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	project, err := repo.CreateProject(ctx, CreateProjectParams{Name: "Docs"})
	requireAvailable(t, err, "create project")
	other, err := repo.CreateProject(ctx, CreateProjectParams{Name: "Other"})
	requireAvailable(t, err, "create other project")

	token, err := repo.CreateEnvironmentVariable(ctx, CreateEnvironmentVariableParams{ProjectID: project.ID, Name: "API_TOKEN", Value: "s3cret"})
	requireAvailable(t, err, "create variable")
	if token.Public {
		t.Fatal("expected variable to default to private")
	}
	_, err = repo.CreateEnvironmentVariable(ctx, CreateEnvironmentVariableParams{ProjectID: project.ID, Name: "API_TOKEN", Value: "again"})
	requireConflict(t, err, "name")
	if _, err := repo.CreateEnvironmentVariable(ctx, CreateEnvironmentVariableParams{ProjectID: other.ID, Name: "API_TOKEN"}); err != nil {
		t.Fatalf("expected same name on another project to succeed: %v", err)
	}

	oversized := strings.Repeat("x", MaxEnvironmentVariableValueLength+1)
	if _, err := repo.CreateEnvironmentVariable(ctx, CreateEnvironmentVariableParams{ProjectID: project.ID, Name: "BIG", Value: oversized}); err == nil {
		t.Fatal("expected oversized value to be rejected")
	}
	if _, err := repo.CreateEnvironmentVariable(ctx, CreateEnvironmentVariableParams{ProjectID: project.ID, Name: " "}); err == nil {
		t.Fatal("expected blank name to be rejected")
	}

	public, err := repo.CreateEnvironmentVariable(ctx, CreateEnvironmentVariableParams{ProjectID: project.ID, Name: "THEME", Value: "dark", Public: true})
	requireAvailable(t, err, "create public variable")

	variables, err := repo.ListEnvironmentVariables(ctx, project.ID)
	requireAvailable(t, err, "list variables")
	if len(variables) != 2 || variables[0].ID != token.ID || variables[1].ID != public.ID {
		t.Fatalf("unexpected variables %+v", variables)
	}

	if err := repo.DeleteEnvironmentVariable(ctx, token.ID); err != nil {
		t.Fatalf("delete variable: %v", err)
	}
	if _, err := repo.GetEnvironmentVariable(ctx, token.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// RunRepositoryNotificationTargets covers attachment validation and target
// matching on kind and id.
func RunRepositoryNotificationTargets(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, CreateUserParams{Username: "reader"})
	requireAvailable(t, err, "create user")
	project, err := repo.CreateProject(ctx, CreateProjectParams{Name: "Docs"})
	requireAvailable(t, err, "create project")

	projectTarget := models.AttachedTo{Kind: models.AttachedToProject, ID: project.ID}
	userTarget := models.AttachedTo{Kind: models.AttachedToUser, ID: user.ID}

	projectNote, err := repo.CreateNotification(ctx, CreateNotificationParams{MessageID: "project:skipped-build", Dismissable: true, AttachedTo: projectTarget, Format: map[string]string{"version": "latest"}})
	requireAvailable(t, err, "create project notification")
	if projectNote.State != models.NotificationUnread {
		t.Fatalf("expected unread default, got %q", projectNote.State)
	}
	time.Sleep(5 * time.Millisecond)
	userNote, err := repo.CreateNotification(ctx, CreateNotificationParams{MessageID: "user:email-unverified", AttachedTo: userTarget})
	requireAvailable(t, err, "create user notification")

	if _, err := repo.CreateNotification(ctx, CreateNotificationParams{MessageID: "x", AttachedTo: models.AttachedTo{Kind: models.AttachedToBuild, ID: 9999}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing build, got %v", err)
	}
	if _, err := repo.CreateNotification(ctx, CreateNotificationParams{MessageID: "x", AttachedTo: models.AttachedTo{Kind: "team", ID: 1}}); err == nil {
		t.Fatal("expected unknown attachment kind to be rejected")
	}

	both, err := repo.ListNotifications(ctx, NotificationQuery{Targets: []models.AttachedTo{projectTarget, userTarget}})
	requireAvailable(t, err, "list notifications")
	if len(both) != 2 || both[0].ID != userNote.ID || both[1].ID != projectNote.ID {
		t.Fatalf("expected newest first, got %+v", both)
	}

	// Same id, different kind.
	crossed := models.AttachedTo{Kind: models.AttachedToOrganization, ID: project.ID}
	none, err := repo.ListNotifications(ctx, NotificationQuery{Targets: []models.AttachedTo{crossed}})
	requireAvailable(t, err, "list crossed targets")
	if len(none) != 0 {
		t.Fatalf("expected kind mismatch to exclude notifications, got %+v", none)
	}
	empty, err := repo.ListNotifications(ctx, NotificationQuery{})
	requireAvailable(t, err, "list without targets")
	if len(empty) != 0 {
		t.Fatalf("expected no notifications without targets, got %+v", empty)
	}

	dismissed := models.NotificationDismissed
	updated, err := repo.UpdateNotification(ctx, projectNote.ID, NotificationUpdate{State: &dismissed})
	requireAvailable(t, err, "dismiss notification")
	if updated.State != dismissed || updated.Format["version"] != "latest" {
		t.Fatalf("unexpected updated notification %+v", updated)
	}
}

// RunRepositoryRemoteRepositories covers remote organization and repository
// upserts and the per-user access listing.
func RunRepositoryRemoteRepositories(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, CreateUserParams{Username: "dev"})
	requireAvailable(t, err, "create user")
	stranger, err := repo.CreateUser(ctx, CreateUserParams{Username: "stranger"})
	requireAvailable(t, err, "create stranger")

	org, err := repo.SaveRemoteOrganization(ctx, models.RemoteOrganization{RemoteID: "100", Slug: "zeta", Name: "Zeta", VCSProvider: models.ProviderGitHub, MemberIDs: []int64{user.ID}})
	requireAvailable(t, err, "save remote org")
	again, err := repo.SaveRemoteOrganization(ctx, models.RemoteOrganization{RemoteID: "100", Slug: "zeta", Name: "Zeta Labs", VCSProvider: models.ProviderGitHub, MemberIDs: []int64{user.ID}})
	requireAvailable(t, err, "upsert remote org")
	if again.ID != org.ID || again.Name != "Zeta Labs" {
		t.Fatalf("expected upsert to keep id %d, got %+v", org.ID, again)
	}
	if _, err := repo.SaveRemoteOrganization(ctx, models.RemoteOrganization{VCSProvider: models.ProviderGitHub}); err == nil {
		t.Fatal("expected missing remote id to be rejected")
	}

	orgs, err := repo.ListRemoteOrganizations(ctx, user.ID)
	requireAvailable(t, err, "list remote orgs")
	if len(orgs) != 1 || orgs[0].ID != org.ID {
		t.Fatalf("unexpected remote orgs %+v", orgs)
	}
	orgs, err = repo.ListRemoteOrganizations(ctx, stranger.ID)
	requireAvailable(t, err, "list stranger remote orgs")
	if len(orgs) != 0 {
		t.Fatalf("expected no remote orgs for stranger, got %+v", orgs)
	}

	owned, err := repo.SaveRemoteRepository(ctx, models.RemoteRepository{RemoteID: "1", OrganizationID: &org.ID, Name: "docs", FullName: "zeta/docs", CloneURL: "https://github.com/zeta/docs.git", VCS: "git", VCSProvider: models.ProviderGitHub})
	requireAvailable(t, err, "save org repo")
	personal, err := repo.SaveRemoteRepository(ctx, models.RemoteRepository{RemoteID: "2", Name: "notes", FullName: "dev/notes", CloneURL: "https://github.com/dev/notes.git", VCS: "git", VCSProvider: models.ProviderGitHub})
	requireAvailable(t, err, "save personal repo")

	missing := int64(9999)
	if _, err := repo.SaveRemoteRepository(ctx, models.RemoteRepository{RemoteID: "3", OrganizationID: &missing, VCSProvider: models.ProviderGitHub}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown remote org, got %v", err)
	}

	requireAvailable(t, repo.SetRemoteRepositoryRelation(ctx, models.RemoteRepositoryRelation{RemoteRepositoryID: owned.ID, UserID: user.ID}), "relate org repo")
	requireAvailable(t, repo.SetRemoteRepositoryRelation(ctx, models.RemoteRepositoryRelation{RemoteRepositoryID: personal.ID, UserID: user.ID, Admin: true}), "relate personal repo")
	requireAvailable(t, repo.SetRemoteRepositoryRelation(ctx, models.RemoteRepositoryRelation{RemoteRepositoryID: owned.ID, UserID: user.ID, Admin: true}), "promote org repo relation")
	if err := repo.SetRemoteRepositoryRelation(ctx, models.RemoteRepositoryRelation{RemoteRepositoryID: 9999, UserID: user.ID}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown repository, got %v", err)
	}

	access, err := repo.ListRemoteRepositories(ctx, user.ID)
	requireAvailable(t, err, "list remote repos")
	if len(access) != 2 {
		t.Fatalf("expected 2 repositories, got %+v", access)
	}
	if access[0].Repository.ID != personal.ID || access[1].Repository.ID != owned.ID {
		t.Fatalf("expected repositories without organization first, got %+v", access)
	}
	if !access[0].Admin || !access[1].Admin {
		t.Fatalf("expected admin flags to be set, got %+v", access)
	}
	access, err = repo.ListRemoteRepositories(ctx, stranger.ID)
	requireAvailable(t, err, "list stranger repos")
	if len(access) != 0 {
		t.Fatalf("expected no repositories for stranger, got %+v", access)
	}
}
