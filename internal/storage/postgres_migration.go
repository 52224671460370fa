package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every pending embedded migration to the database at dsn.
func Migrate(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer closeMigrator(m)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MigrateDown reverts every embedded migration.
func MigrateDown(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer closeMigrator(m)
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("revert migrations: %w", err)
	}
	return nil
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	target, err := migrationURL(dsn)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, target)
	if err != nil {
		return nil, fmt.Errorf("create migration instance: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate) {
	_, _ = m.Close()
}

// migrationURL rewrites a postgres:// DSN to the pgx5:// scheme the migrate
// driver registers under.
func migrationURL(dsn string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil {
		return "", fmt.Errorf("parse postgres dsn: %w", err)
	}
	switch parsed.Scheme {
	case "postgres", "postgresql":
		parsed.Scheme = "pgx5"
	case "pgx5":
	default:
		return "", fmt.Errorf("unsupported postgres dsn scheme %q", parsed.Scheme)
	}
	return parsed.String(), nil
}

func (r *postgresRepository) importSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if r == nil || r.pool == nil {
		return ErrPostgresUnavailable
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	steps := []func(context.Context, pgx.Tx, *Snapshot) error{
		importSnapshotUsers,
		importSnapshotOrganizations,
		importSnapshotRemote,
		importSnapshotProjects,
		importSnapshotVersionsAndBuilds,
		importSnapshotProjectResources,
		importSnapshotNotifications,
		resetSequences,
	}
	for _, step := range steps {
		if err := step(ctx, tx, snapshot); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot import: %w", err)
	}
	return nil
}

func sortedIDs[V any](records map[int64]V) []int64 {
	ids := make([]int64, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func importSnapshotUsers(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, id := range sortedIDs(snapshot.Users) {
		user := snapshot.Users[id]
		roles := user.Roles
		if roles == nil {
			roles = []string{}
		}
		_, err := tx.Exec(ctx, `INSERT INTO users (id, username, email, display_name, password_hash, roles, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
			id, user.Username, user.Email, user.DisplayName, user.PasswordHash, roles, user.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert user %d: %w", id, err)
		}
	}
	return nil
}

func importSnapshotOrganizations(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, id := range sortedIDs(snapshot.Organizations) {
		org := snapshot.Organizations[id]
		_, err := tx.Exec(ctx, `INSERT INTO organizations (id, slug, name, email, url, description, disabled, owner_ids, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ON CONFLICT (id) DO NOTHING`,
			id, org.Slug, org.Name, org.Email, org.URL, org.Description, org.Disabled, nonNilIDs(org.OwnerIDs), org.CreatedAt.UTC(), org.ModifiedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert organization %d: %w", id, err)
		}
	}
	for _, id := range sortedIDs(snapshot.Teams) {
		team := snapshot.Teams[id]
		_, err := tx.Exec(ctx, `INSERT INTO teams (id, organization_id, slug, name, access, member_ids, project_ids, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING`,
			id, team.OrganizationID, team.Slug, team.Name, team.Access, nonNilIDs(team.MemberIDs), nonNilIDs(team.ProjectIDs), team.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert team %d: %w", id, err)
		}
	}
	return nil
}

func importSnapshotRemote(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, id := range sortedIDs(snapshot.RemoteOrganizations) {
		org := snapshot.RemoteOrganizations[id]
		_, err := tx.Exec(ctx, `INSERT INTO remote_organizations (id, remote_id, slug, name, avatar_url, url, vcs_provider, member_ids, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ON CONFLICT (id) DO NOTHING`,
			id, org.RemoteID, org.Slug, org.Name, org.AvatarURL, org.URL, org.VCSProvider, nonNilIDs(org.MemberIDs), org.CreatedAt.UTC(), org.ModifiedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert remote organization %d: %w", id, err)
		}
	}
	for _, id := range sortedIDs(snapshot.RemoteRepositories) {
		repo := snapshot.RemoteRepositories[id]
		_, err := tx.Exec(ctx, `INSERT INTO remote_repositories (id, remote_id, organization_id, name, full_name, description, avatar_url, html_url, clone_url, ssh_url, vcs, private, default_branch, vcs_provider, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) ON CONFLICT (id) DO NOTHING`,
			id, repo.RemoteID, repo.OrganizationID, repo.Name, repo.FullName, repo.Description, repo.AvatarURL, repo.HTMLURL, repo.CloneURL, repo.SSHURL, repo.VCS, repo.Private, repo.DefaultBranch, repo.VCSProvider, repo.CreatedAt.UTC(), repo.ModifiedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert remote repository %d: %w", id, err)
		}
	}
	for _, relation := range snapshot.RemoteRepositoryRelations {
		_, err := tx.Exec(ctx, `INSERT INTO remote_repository_relations (remote_repository_id, user_id, admin)
VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, relation.RemoteRepositoryID, relation.UserID, relation.Admin)
		if err != nil {
			return fmt.Errorf("insert remote relation %d/%d: %w", relation.RemoteRepositoryID, relation.UserID, err)
		}
	}
	return nil
}

func importSnapshotProjects(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	ids := sortedIDs(snapshot.Projects)
	// Translations reference their main project, so insert without the link
	// first and patch it once every row exists.
	for _, id := range ids {
		project := snapshot.Projects[id]
		_, err := tx.Exec(ctx, `INSERT INTO projects (id, slug, name, description, language, programming_language, repository_url, repository_type, homepage, default_version, default_branch, privacy, external_builds_enabled, disabled, user_ids, organization_id, remote_repository_id, tags, domains, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21) ON CONFLICT (id) DO NOTHING`,
			id, project.Slug, project.Name, project.Description, project.Language, project.ProgrammingLanguage, project.Repository.URL, project.Repository.Type, project.Homepage, project.DefaultVersion, project.DefaultBranch, project.Privacy, project.ExternalBuildsEnabled, project.Disabled, nonNilIDs(project.UserIDs), project.OrganizationID, project.RemoteRepositoryID, nonNilStrings(project.Tags), nonNilStrings(project.Domains), project.CreatedAt.UTC(), project.ModifiedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert project %d: %w", id, err)
		}
	}
	for _, id := range ids {
		project := snapshot.Projects[id]
		if project.MainLanguageProjectID == nil {
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE projects SET main_language_project_id = $2 WHERE id = $1`, id, *project.MainLanguageProjectID); err != nil {
			return fmt.Errorf("link translation %d: %w", id, err)
		}
	}
	for _, id := range sortedIDs(snapshot.Relationships) {
		rel := snapshot.Relationships[id]
		_, err := tx.Exec(ctx, `INSERT INTO project_relationships (id, parent_id, child_id, alias, created_at)
VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`, id, rel.ParentID, rel.ChildID, rel.Alias, rel.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert project relationship %d: %w", id, err)
		}
	}
	return nil
}

func importSnapshotVersionsAndBuilds(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, id := range sortedIDs(snapshot.Versions) {
		version := snapshot.Versions[id]
		_, err := tx.Exec(ctx, `INSERT INTO versions (id, project_id, slug, verbose_name, identifier, type, active, hidden, built, privacy, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) ON CONFLICT (id) DO NOTHING`,
			id, version.ProjectID, version.Slug, version.VerboseName, version.Identifier, version.Type, version.Active, version.Hidden, version.Built, version.Privacy, version.CreatedAt.UTC(), version.ModifiedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert version %d: %w", id, err)
		}
	}
	for _, id := range sortedIDs(snapshot.Builds) {
		build := snapshot.Builds[id]
		_, err := tx.Exec(ctx, `INSERT INTO builds (id, project_id, version_id, state, success, error, commit_hash, duration, config, created_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) ON CONFLICT (id) DO NOTHING`,
			id, build.ProjectID, build.VersionID, build.State, build.Success, build.Error, build.Commit, build.Duration, build.Config, build.CreatedAt.UTC(), build.FinishedAt)
		if err != nil {
			return fmt.Errorf("insert build %d: %w", id, err)
		}
	}
	return nil
}

func importSnapshotProjectResources(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, id := range sortedIDs(snapshot.Redirects) {
		redirect := snapshot.Redirects[id]
		_, err := tx.Exec(ctx, `INSERT INTO redirects (id, project_id, type, from_url, to_url, http_status, force_redirect, enabled, position, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) ON CONFLICT (id) DO NOTHING`,
			id, redirect.ProjectID, redirect.Type, redirect.FromURL, redirect.ToURL, redirect.HTTPStatus, redirect.ForceRedirect, redirect.Enabled, redirect.Position, redirect.Description, redirect.CreatedAt.UTC(), redirect.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert redirect %d: %w", id, err)
		}
	}
	for _, id := range sortedIDs(snapshot.EnvironmentVariables) {
		variable := snapshot.EnvironmentVariables[id]
		_, err := tx.Exec(ctx, `INSERT INTO environment_variables (id, project_id, name, value, public, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
			id, variable.ProjectID, variable.Name, variable.Value, variable.Public, variable.CreatedAt.UTC(), variable.ModifiedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert environment variable %d: %w", id, err)
		}
	}
	return nil
}

func importSnapshotNotifications(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, id := range sortedIDs(snapshot.Notifications) {
		notification := snapshot.Notifications[id]
		_, err := tx.Exec(ctx, `INSERT INTO notifications (id, message_id, state, dismissable, news, attached_kind, attached_id, format, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ON CONFLICT (id) DO NOTHING`,
			id, notification.MessageID, notification.State, notification.Dismissable, notification.News, string(notification.AttachedTo.Kind), notification.AttachedTo.ID, notification.Format, notification.CreatedAt.UTC(), notification.ModifiedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert notification %d: %w", id, err)
		}
	}
	return nil
}

var sequencedTables = []string{
	"users", "organizations", "teams", "remote_organizations", "remote_repositories",
	"projects", "project_relationships", "versions", "builds", "redirects",
	"environment_variables", "notifications",
}

// resetSequences moves every serial past the imported ids.
func resetSequences(ctx context.Context, tx pgx.Tx, _ *Snapshot) error {
	for _, table := range sequencedTables {
		query := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE((SELECT MAX(id) FROM %[1]s), 0) + 1, false)`, table)
		if _, err := tx.Exec(ctx, query); err != nil {
			return fmt.Errorf("reset %s sequence: %w", table, err)
		}
	}
	return nil
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx)
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
