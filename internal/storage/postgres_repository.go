package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"docsplatform/internal/models"
)

// ErrPostgresUnavailable is returned when the repository has no open pool.
var ErrPostgresUnavailable = errors.New("postgres repository unavailable")

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// NewPostgresRepository opens a Postgres-backed repository. Unless the
// WithPostgresAutoMigrate option is set the caller must have applied the
// migrations beforehand.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	if cfg.AutoMigrate {
		if err := Migrate(cfg.DSN); err != nil {
			return nil, err
		}
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return &postgresRepository{pool: pool, cfg: cfg}, nil
}

// queryContext bounds a single statement by the configured acquire timeout.
func (r *postgresRepository) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.AcquireTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.AcquireTimeout)
	}
	return context.WithCancel(ctx)
}

// inTx runs fn inside a transaction, committing when it returns nil.
func (r *postgresRepository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if r == nil || r.pool == nil {
		return ErrPostgresUnavailable
	}
	ctx, cancel := r.queryContext(ctx)
	defer cancel()
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)
	if err := fn(tx); err != nil {
		return translateError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// queryRow runs a single-row statement and scans it with scan.
func queryRow[T any](ctx context.Context, r *postgresRepository, scan func(rowScanner) (T, error), sql string, args ...any) (T, error) {
	var zero T
	if r == nil || r.pool == nil {
		return zero, ErrPostgresUnavailable
	}
	ctx, cancel := r.queryContext(ctx)
	defer cancel()
	value, err := scan(r.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return zero, translateError(err)
	}
	return value, nil
}

// queryRows runs a statement and scans every row with scan.
func queryRows[T any](ctx context.Context, r *postgresRepository, scan func(rowScanner) (T, error), sql string, args ...any) ([]T, error) {
	if r == nil || r.pool == nil {
		return nil, ErrPostgresUnavailable
	}
	ctx, cancel := r.queryContext(ctx)
	defer cancel()
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		value, err := scan(rows)
		if err != nil {
			return nil, translateError(err)
		}
		out = append(out, value)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return out, nil
}

func (r *postgresRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if r == nil || r.pool == nil {
		return pgconn.CommandTag{}, ErrPostgresUnavailable
	}
	ctx, cancel := r.queryContext(ctx)
	defer cancel()
	tag, err := r.pool.Exec(ctx, sql, args...)
	return tag, translateError(err)
}

var uniqueViolations = map[string]ConflictError{
	"users_username_key":                     {Field: "username", Message: "a user with this username already exists"},
	"organizations_slug_key":                 {Field: "slug", Message: "an organization with this slug already exists"},
	"teams_organization_slug_key":            {Field: "slug", Message: "a team with this slug already exists"},
	"projects_slug_key":                      {Field: "name", Message: "project with this slug already exists"},
	"project_relationships_alias_key":        {Field: "alias", Message: "a subproject with this alias already exists"},
	"project_relationships_child_key":        {Field: "child", Message: "project is already a subproject of another project"},
	"versions_project_slug_key":              {Field: "slug", Message: "version already exists"},
	"environment_variables_project_name_key": {Field: "name", Message: "there is already a variable with this name for this project"},
}

// translateError maps driver errors onto the package sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if conflict, ok := uniqueViolations[pgErr.ConstraintName]; ok {
				return &conflict
			}
			return &ConflictError{Field: "non_field_errors", Message: pgErr.Message}
		case "23503":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrNotFound)
		}
	}
	return err
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return ErrPostgresUnavailable
	}
	ctx, cancel := r.queryContext(ctx)
	defer cancel()
	return r.pool.Ping(ctx)
}

const userColumns = `id, username, email, display_name, password_hash, roles, created_at`

func scanUser(row rowScanner) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Roles, &user.CreatedAt)
	if len(user.Roles) == 0 {
		user.Roles = nil
	}
	return user, err
}

func (r *postgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	username := strings.TrimSpace(params.Username)
	if username == "" {
		return models.User{}, errors.New("username is required")
	}
	var hashed string
	if params.Password != "" {
		var err error
		if hashed, err = hashPassword(params.Password); err != nil {
			return models.User{}, fmt.Errorf("hash password: %w", err)
		}
	}
	return queryRow(ctx, r, scanUser, `INSERT INTO users (username, email, display_name, password_hash, roles)
VALUES ($1, $2, $3, $4, $5) RETURNING `+userColumns,
		username, strings.TrimSpace(strings.ToLower(params.Email)), strings.TrimSpace(params.DisplayName), hashed, nonNilStrings(normalizeRoles(params.Roles)))
}

func (r *postgresRepository) AuthenticateUser(ctx context.Context, login, password string) (models.User, error) {
	if password == "" {
		return models.User{}, errors.New("password is required")
	}
	user, err := queryRow(ctx, r, scanUser, `SELECT `+userColumns+` FROM users
WHERE lower(username) = lower($1) OR (email <> '' AND lower(email) = lower($1))
ORDER BY id LIMIT 1`, strings.TrimSpace(login))
	if errors.Is(err, ErrNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	return checkPassword(user, password)
}

func (r *postgresRepository) GetUser(ctx context.Context, id int64) (models.User, error) {
	return queryRow(ctx, r, scanUser, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *postgresRepository) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return queryRow(ctx, r, scanUser, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username)
}

func (r *postgresRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	return queryRows(ctx, r, scanUser, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

func (r *postgresRepository) UpdateUser(ctx context.Context, id int64, update UserUpdate) (models.User, error) {
	var displayName, email any
	if update.DisplayName != nil {
		displayName = strings.TrimSpace(*update.DisplayName)
	}
	if update.Email != nil {
		email = strings.TrimSpace(strings.ToLower(*update.Email))
	}
	var roles any
	if update.Roles != nil {
		roles = nonNilStrings(normalizeRoles(*update.Roles))
	}
	return queryRow(ctx, r, scanUser, `UPDATE users SET
display_name = COALESCE($2::text, display_name),
email = COALESCE($3::text, email),
roles = COALESCE($4::text[], roles)
WHERE id = $1 RETURNING `+userColumns, id, displayName, email, roles)
}

func (r *postgresRepository) SetUserPassword(ctx context.Context, id int64, password string) (models.User, error) {
	if len(password) < 8 {
		return models.User{}, errors.New("password must be at least 8 characters")
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	return queryRow(ctx, r, scanUser, `UPDATE users SET password_hash = $2 WHERE id = $1 RETURNING `+userColumns, id, hashed)
}

const organizationColumns = `id, slug, name, email, url, description, disabled, owner_ids, created_at, modified_at`

func scanOrganization(row rowScanner) (models.Organization, error) {
	var org models.Organization
	err := row.Scan(&org.ID, &org.Slug, &org.Name, &org.Email, &org.URL, &org.Description, &org.Disabled, &org.OwnerIDs, &org.CreatedAt, &org.ModifiedAt)
	return org, err
}

func (r *postgresRepository) CreateOrganization(ctx context.Context, params CreateOrganizationParams) (models.Organization, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Organization{}, errors.New("organization name is required")
	}
	slug := firstNonEmpty(params.Slug, Slugify(name))
	if slug == "" {
		return models.Organization{}, &ConflictError{Field: "name", Message: "name does not produce a valid slug"}
	}
	return queryRow(ctx, r, scanOrganization, `INSERT INTO organizations (slug, name, email, url, description, owner_ids)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+organizationColumns,
		slug, name, strings.TrimSpace(params.Email), strings.TrimSpace(params.URL), strings.TrimSpace(params.Description), uniqueIDs(params.OwnerIDs))
}

func (r *postgresRepository) GetOrganization(ctx context.Context, id int64) (models.Organization, error) {
	return queryRow(ctx, r, scanOrganization, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id)
}

func (r *postgresRepository) GetOrganizationBySlug(ctx context.Context, slug string) (models.Organization, error) {
	return queryRow(ctx, r, scanOrganization, `SELECT `+organizationColumns+` FROM organizations WHERE slug = $1`, slug)
}

func (r *postgresRepository) ListOrganizationsForUser(ctx context.Context, userID int64) ([]models.Organization, error) {
	return queryRows(ctx, r, scanOrganization, `SELECT `+organizationColumns+` FROM organizations
WHERE $1 = ANY(owner_ids)
   OR id IN (SELECT organization_id FROM teams WHERE $1 = ANY(member_ids))
ORDER BY name, id`, userID)
}

const teamColumns = `id, organization_id, slug, name, access, member_ids, project_ids, created_at`

func scanTeam(row rowScanner) (models.Team, error) {
	var team models.Team
	err := row.Scan(&team.ID, &team.OrganizationID, &team.Slug, &team.Name, &team.Access, &team.MemberIDs, &team.ProjectIDs, &team.CreatedAt)
	return team, err
}

func (r *postgresRepository) CreateTeam(ctx context.Context, params CreateTeamParams) (models.Team, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Team{}, errors.New("team name is required")
	}
	access := firstNonEmpty(params.Access, models.TeamAccessReadonly)
	if access != models.TeamAccessAdmin && access != models.TeamAccessReadonly {
		return models.Team{}, errors.New("team access must be admin or readonly")
	}
	return queryRow(ctx, r, scanTeam, `INSERT INTO teams (organization_id, slug, name, access, member_ids, project_ids)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+teamColumns,
		params.OrganizationID, firstNonEmpty(params.Slug, Slugify(name)), name, access, uniqueIDs(params.MemberIDs), uniqueIDs(params.ProjectIDs))
}

func (r *postgresRepository) ListTeams(ctx context.Context, organizationID int64) ([]models.Team, error) {
	return queryRows(ctx, r, scanTeam, `SELECT `+teamColumns+` FROM teams WHERE organization_id = $1 ORDER BY id`, organizationID)
}

const remoteOrganizationColumns = `id, remote_id, slug, name, avatar_url, url, vcs_provider, member_ids, created_at, modified_at`

func scanRemoteOrganization(row rowScanner) (models.RemoteOrganization, error) {
	var org models.RemoteOrganization
	err := row.Scan(&org.ID, &org.RemoteID, &org.Slug, &org.Name, &org.AvatarURL, &org.URL, &org.VCSProvider, &org.MemberIDs, &org.CreatedAt, &org.ModifiedAt)
	return org, err
}

func (r *postgresRepository) SaveRemoteOrganization(ctx context.Context, org models.RemoteOrganization) (models.RemoteOrganization, error) {
	if strings.TrimSpace(org.RemoteID) == "" {
		return models.RemoteOrganization{}, errors.New("remote organization id is required")
	}
	return queryRow(ctx, r, scanRemoteOrganization, `INSERT INTO remote_organizations (remote_id, slug, name, avatar_url, url, vcs_provider, member_ids)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (vcs_provider, remote_id) DO UPDATE SET
  slug = EXCLUDED.slug, name = EXCLUDED.name, avatar_url = EXCLUDED.avatar_url, url = EXCLUDED.url,
  member_ids = EXCLUDED.member_ids, modified_at = now()
RETURNING `+remoteOrganizationColumns,
		org.RemoteID, org.Slug, org.Name, org.AvatarURL, org.URL, org.VCSProvider, uniqueIDs(org.MemberIDs))
}

func (r *postgresRepository) GetRemoteOrganization(ctx context.Context, id int64) (models.RemoteOrganization, error) {
	return queryRow(ctx, r, scanRemoteOrganization, `SELECT `+remoteOrganizationColumns+` FROM remote_organizations WHERE id = $1`, id)
}

func (r *postgresRepository) ListRemoteOrganizations(ctx context.Context, userID int64) ([]models.RemoteOrganization, error) {
	return queryRows(ctx, r, scanRemoteOrganization, `SELECT `+remoteOrganizationColumns+` FROM remote_organizations
WHERE $1 = ANY(member_ids) ORDER BY name, id`, userID)
}

const remoteRepositoryColumns = `r.id, r.remote_id, r.organization_id, r.name, r.full_name, r.description, r.avatar_url, r.html_url, r.clone_url, r.ssh_url, r.vcs, r.private, r.default_branch, r.vcs_provider, r.created_at, r.modified_at`

func remoteRepositoryTargets(repo *models.RemoteRepository) []any {
	return []any{&repo.ID, &repo.RemoteID, &repo.OrganizationID, &repo.Name, &repo.FullName, &repo.Description, &repo.AvatarURL, &repo.HTMLURL, &repo.CloneURL, &repo.SSHURL, &repo.VCS, &repo.Private, &repo.DefaultBranch, &repo.VCSProvider, &repo.CreatedAt, &repo.ModifiedAt}
}

func scanRemoteRepository(row rowScanner) (models.RemoteRepository, error) {
	var repo models.RemoteRepository
	err := row.Scan(remoteRepositoryTargets(&repo)...)
	return repo, err
}

func scanRemoteRepositoryAccess(row rowScanner) (RemoteRepositoryAccess, error) {
	var access RemoteRepositoryAccess
	err := row.Scan(append(remoteRepositoryTargets(&access.Repository), &access.Admin)...)
	return access, err
}

func (r *postgresRepository) SaveRemoteRepository(ctx context.Context, repo models.RemoteRepository) (models.RemoteRepository, error) {
	if strings.TrimSpace(repo.RemoteID) == "" {
		return models.RemoteRepository{}, errors.New("remote repository id is required")
	}
	return queryRow(ctx, r, scanRemoteRepository, `INSERT INTO remote_repositories AS r (remote_id, organization_id, name, full_name, description, avatar_url, html_url, clone_url, ssh_url, vcs, private, default_branch, vcs_provider)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (vcs_provider, remote_id) DO UPDATE SET
  organization_id = EXCLUDED.organization_id, name = EXCLUDED.name, full_name = EXCLUDED.full_name,
  description = EXCLUDED.description, avatar_url = EXCLUDED.avatar_url, html_url = EXCLUDED.html_url,
  clone_url = EXCLUDED.clone_url, ssh_url = EXCLUDED.ssh_url, vcs = EXCLUDED.vcs, private = EXCLUDED.private,
  default_branch = EXCLUDED.default_branch, modified_at = now()
RETURNING `+remoteRepositoryColumns,
		repo.RemoteID, repo.OrganizationID, repo.Name, repo.FullName, repo.Description, repo.AvatarURL, repo.HTMLURL, repo.CloneURL, repo.SSHURL, firstNonEmpty(repo.VCS, defaultRepositoryType), repo.Private, repo.DefaultBranch, repo.VCSProvider)
}

func (r *postgresRepository) SetRemoteRepositoryRelation(ctx context.Context, relation models.RemoteRepositoryRelation) error {
	_, err := r.exec(ctx, `INSERT INTO remote_repository_relations (remote_repository_id, user_id, admin)
VALUES ($1, $2, $3)
ON CONFLICT (remote_repository_id, user_id) DO UPDATE SET admin = EXCLUDED.admin`,
		relation.RemoteRepositoryID, relation.UserID, relation.Admin)
	return err
}

func (r *postgresRepository) ListRemoteRepositories(ctx context.Context, userID int64) ([]RemoteRepositoryAccess, error) {
	return queryRows(ctx, r, scanRemoteRepositoryAccess, `SELECT `+remoteRepositoryColumns+`, rel.admin
FROM remote_repositories r
JOIN remote_repository_relations rel ON rel.remote_repository_id = r.id
LEFT JOIN remote_organizations o ON o.id = r.organization_id
WHERE rel.user_id = $1
ORDER BY COALESCE(o.name, ''), r.full_name, r.id`, userID)
}

var _ Repository = (*postgresRepository)(nil)
