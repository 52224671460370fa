package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"docsplatform/internal/models"
)

const projectColumns = `id, slug, name, description, language, programming_language, repository_url, repository_type, homepage, default_version, default_branch, privacy, external_builds_enabled, disabled, user_ids, organization_id, main_language_project_id, remote_repository_id, tags, domains, created_at, modified_at`

func scanProject(row rowScanner) (models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Language, &p.ProgrammingLanguage, &p.Repository.URL, &p.Repository.Type, &p.Homepage, &p.DefaultVersion, &p.DefaultBranch, &p.Privacy, &p.ExternalBuildsEnabled, &p.Disabled, &p.UserIDs, &p.OrganizationID, &p.MainLanguageProjectID, &p.RemoteRepositoryID, &p.Tags, &p.Domains, &p.CreatedAt, &p.ModifiedAt)
	return p, err
}

func (r *postgresRepository) CreateProject(ctx context.Context, params CreateProjectParams) (models.Project, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Project{}, errors.New("project name is required")
	}
	slug := firstNonEmpty(params.Slug, Slugify(name))
	if slug == "" {
		return models.Project{}, &ConflictError{Field: "name", Message: "name must contain at least one letter or digit"}
	}
	p := newProject(0, slug, name, params)
	return queryRow(ctx, r, scanProject, `INSERT INTO projects (slug, name, description, language, programming_language, repository_url, repository_type, homepage, default_version, privacy, user_ids, organization_id, main_language_project_id, remote_repository_id, tags, domains)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) RETURNING `+projectColumns,
		p.Slug, p.Name, p.Description, p.Language, p.ProgrammingLanguage, p.Repository.URL, p.Repository.Type, p.Homepage, p.DefaultVersion, p.Privacy, p.UserIDs, p.OrganizationID, p.MainLanguageProjectID, p.RemoteRepositoryID, p.Tags, p.Domains)
}

func (r *postgresRepository) GetProject(ctx context.Context, id int64) (models.Project, error) {
	return queryRow(ctx, r, scanProject, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
}

func (r *postgresRepository) GetProjectBySlug(ctx context.Context, slug string) (models.Project, error) {
	return queryRow(ctx, r, scanProject, `SELECT `+projectColumns+` FROM projects WHERE slug = $1`, slug)
}

func (r *postgresRepository) ListProjects(ctx context.Context, query ProjectQuery) ([]models.Project, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if query.IDs != nil {
		add("id = ANY($%d)", query.IDs)
	}
	if query.AdminUserID != 0 {
		add("$%d = ANY(user_ids)", query.AdminUserID)
	}
	if query.OrganizationID != 0 {
		add("organization_id = $%d", query.OrganizationID)
	}
	if query.MainLanguageProjectID != 0 {
		add("main_language_project_id = $%d", query.MainLanguageProjectID)
	}
	if query.RemoteRepositoryID != 0 {
		add("remote_repository_id = $%d", query.RemoteRepositoryID)
	}
	sql := `SELECT ` + projectColumns + ` FROM projects`
	if len(clauses) > 0 {
		sql += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	return queryRows(ctx, r, scanProject, sql+` ORDER BY slug`, args...)
}

func (r *postgresRepository) UpdateProject(ctx context.Context, id int64, update ProjectUpdate) (models.Project, error) {
	var project models.Project
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		existing, err := scanProject(tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		applyProjectUpdate(&existing, update)
		project, err = scanProject(tx.QueryRow(ctx, `UPDATE projects SET
name = $2, description = $3, language = $4, programming_language = $5, repository_url = $6, repository_type = $7,
homepage = $8, default_version = $9, default_branch = $10, privacy = $11, external_builds_enabled = $12,
disabled = $13, tags = $14, user_ids = $15, modified_at = now()
WHERE id = $1 RETURNING `+projectColumns,
			id, existing.Name, existing.Description, existing.Language, existing.ProgrammingLanguage, existing.Repository.URL, existing.Repository.Type,
			existing.Homepage, existing.DefaultVersion, existing.DefaultBranch, existing.Privacy, existing.ExternalBuildsEnabled,
			existing.Disabled, nonNilStrings(existing.Tags), nonNilIDs(existing.UserIDs)))
		return err
	})
	if err != nil {
		return models.Project{}, err
	}
	return project, nil
}

const relationshipColumns = `id, parent_id, child_id, alias, created_at`

func scanRelationship(row rowScanner) (models.ProjectRelationship, error) {
	var rel models.ProjectRelationship
	err := row.Scan(&rel.ID, &rel.ParentID, &rel.ChildID, &rel.Alias, &rel.CreatedAt)
	return rel, err
}

func (r *postgresRepository) CreateProjectRelationship(ctx context.Context, params CreateRelationshipParams) (models.ProjectRelationship, error) {
	var relationship models.ProjectRelationship
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		parent, err := scanProject(tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, params.ParentID))
		if err != nil {
			return fmt.Errorf("parent project %d: %w", params.ParentID, translateError(err))
		}
		child, err := scanProject(tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, params.ChildID))
		if err != nil {
			return fmt.Errorf("child project %d: %w", params.ChildID, translateError(err))
		}
		if parent.ID == child.ID {
			return &ConflictError{Field: "child", Message: "project can not be subproject of itself"}
		}
		alias := firstNonEmpty(params.Alias, child.Slug)

		var aliasTaken, childNested, childHasChildren, parentNested bool
		err = tx.QueryRow(ctx, `SELECT
  EXISTS (SELECT 1 FROM project_relationships WHERE parent_id = $1 AND lower(alias) = lower($3)),
  EXISTS (SELECT 1 FROM project_relationships WHERE child_id = $2),
  EXISTS (SELECT 1 FROM project_relationships WHERE parent_id = $2),
  EXISTS (SELECT 1 FROM project_relationships WHERE child_id = $1)`,
			parent.ID, child.ID, alias).Scan(&aliasTaken, &childNested, &childHasChildren, &parentNested)
		if err != nil {
			return err
		}
		switch {
		case aliasTaken:
			return &ConflictError{Field: "alias", Message: "a subproject with this alias already exists"}
		case childNested:
			return &ConflictError{Field: "child", Message: "project is already a subproject of another project"}
		case childHasChildren:
			return &ConflictError{Field: "child", Message: "project with subprojects can not be a subproject"}
		case parentNested:
			return &ConflictError{Field: "parent", Message: "subproject nesting is not supported"}
		}

		relationship, err = scanRelationship(tx.QueryRow(ctx, `INSERT INTO project_relationships (parent_id, child_id, alias)
VALUES ($1, $2, $3) RETURNING `+relationshipColumns, parent.ID, child.ID, alias))
		return err
	})
	if err != nil {
		return models.ProjectRelationship{}, err
	}
	return relationship, nil
}

func (r *postgresRepository) GetProjectRelationship(ctx context.Context, parentID int64, alias string) (models.ProjectRelationship, error) {
	return queryRow(ctx, r, scanRelationship, `SELECT `+relationshipColumns+` FROM project_relationships
WHERE parent_id = $1 AND lower(alias) = lower($2)`, parentID, alias)
}

func (r *postgresRepository) ListSubprojectRelationships(ctx context.Context, parentID int64) ([]models.ProjectRelationship, error) {
	return queryRows(ctx, r, scanRelationship, `SELECT `+relationshipColumns+` FROM project_relationships WHERE parent_id = $1 ORDER BY id`, parentID)
}

func (r *postgresRepository) ListSuperprojectRelationships(ctx context.Context, childID int64) ([]models.ProjectRelationship, error) {
	return queryRows(ctx, r, scanRelationship, `SELECT `+relationshipColumns+` FROM project_relationships WHERE child_id = $1 ORDER BY id`, childID)
}

func (r *postgresRepository) DeleteProjectRelationship(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, "project_relationships", id)
}

// deleteByID removes a row from one of the fixed tables above.
func (r *postgresRepository) deleteByID(ctx context.Context, table string, id int64) error {
	tag, err := r.exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const versionColumns = `id, project_id, slug, verbose_name, identifier, type, active, hidden, built, privacy, created_at, modified_at`

func scanVersion(row rowScanner) (models.Version, error) {
	var v models.Version
	err := row.Scan(&v.ID, &v.ProjectID, &v.Slug, &v.VerboseName, &v.Identifier, &v.Type, &v.Active, &v.Hidden, &v.Built, &v.Privacy, &v.CreatedAt, &v.ModifiedAt)
	return v, err
}

func (r *postgresRepository) CreateVersion(ctx context.Context, params CreateVersionParams) (models.Version, error) {
	verbose := strings.TrimSpace(params.VerboseName)
	slug := firstNonEmpty(params.Slug, VersionSlug(verbose))
	if slug == "" {
		return models.Version{}, errors.New("version slug is required")
	}
	return queryRow(ctx, r, scanVersion, `INSERT INTO versions (project_id, slug, verbose_name, identifier, type, active, hidden, privacy)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+versionColumns,
		params.ProjectID, slug, firstNonEmpty(verbose, slug), strings.TrimSpace(params.Identifier),
		firstNonEmpty(params.Type, models.VersionTypeUnknown), params.Active, params.Hidden, firstNonEmpty(params.Privacy, models.PrivacyPublic))
}

func (r *postgresRepository) GetVersion(ctx context.Context, id int64) (models.Version, error) {
	return queryRow(ctx, r, scanVersion, `SELECT `+versionColumns+` FROM versions WHERE id = $1`, id)
}

func (r *postgresRepository) GetVersionBySlug(ctx context.Context, projectID int64, slug string) (models.Version, error) {
	return queryRow(ctx, r, scanVersion, `SELECT `+versionColumns+` FROM versions WHERE project_id = $1 AND slug = $2`, projectID, slug)
}

func (r *postgresRepository) ListVersions(ctx context.Context, projectID int64) ([]models.Version, error) {
	return queryRows(ctx, r, scanVersion, `SELECT `+versionColumns+` FROM versions WHERE project_id = $1 ORDER BY verbose_name, id`, projectID)
}

func (r *postgresRepository) UpdateVersion(ctx context.Context, id int64, update VersionUpdate) (models.Version, error) {
	var version models.Version
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		existing, err := scanVersion(tx.QueryRow(ctx, `SELECT `+versionColumns+` FROM versions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		applyVersionUpdate(&existing, update)
		version, err = scanVersion(tx.QueryRow(ctx, `UPDATE versions SET active = $2, hidden = $3, built = $4, privacy = $5, identifier = $6, modified_at = now()
WHERE id = $1 RETURNING `+versionColumns, id, existing.Active, existing.Hidden, existing.Built, existing.Privacy, existing.Identifier))
		return err
	})
	if err != nil {
		return models.Version{}, err
	}
	return version, nil
}

const buildColumns = `id, project_id, version_id, state, success, error, commit_hash, duration, config, created_at, finished_at`

func scanBuild(row rowScanner) (models.Build, error) {
	var b models.Build
	err := row.Scan(&b.ID, &b.ProjectID, &b.VersionID, &b.State, &b.Success, &b.Error, &b.Commit, &b.Duration, &b.Config, &b.CreatedAt, &b.FinishedAt)
	return b, err
}

func (r *postgresRepository) CreateBuild(ctx context.Context, params CreateBuildParams) (models.Build, error) {
	build, err := queryRow(ctx, r, scanBuild, `INSERT INTO builds (project_id, version_id, state, commit_hash, config)
SELECT $1::bigint, $2::bigint, $3::text, $4::text, $5::jsonb
WHERE EXISTS (SELECT 1 FROM versions WHERE id = $2 AND project_id = $1)
RETURNING `+buildColumns,
		params.ProjectID, params.VersionID, firstNonEmpty(params.State, models.BuildStateTriggered), strings.TrimSpace(params.Commit), params.Config)
	if errors.Is(err, ErrNotFound) {
		return models.Build{}, fmt.Errorf("version %d of project %d: %w", params.VersionID, params.ProjectID, ErrNotFound)
	}
	return build, err
}

func (r *postgresRepository) GetBuild(ctx context.Context, id int64) (models.Build, error) {
	return queryRow(ctx, r, scanBuild, `SELECT `+buildColumns+` FROM builds WHERE id = $1`, id)
}

func (r *postgresRepository) ListBuilds(ctx context.Context, query BuildQuery) ([]models.Build, error) {
	var (
		clauses []string
		args    []any
	)
	if query.ProjectID != 0 {
		args = append(args, query.ProjectID)
		clauses = append(clauses, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if query.VersionID != 0 {
		args = append(args, query.VersionID)
		clauses = append(clauses, fmt.Sprintf("version_id = $%d", len(args)))
	}
	if query.Running != nil {
		args = append(args, []string{models.BuildStateFinished, models.BuildStateCancelled})
		if *query.Running {
			clauses = append(clauses, fmt.Sprintf("NOT (state = ANY($%d))", len(args)))
		} else {
			clauses = append(clauses, fmt.Sprintf("state = ANY($%d)", len(args)))
		}
	}
	sql := `SELECT ` + buildColumns + ` FROM builds`
	if len(clauses) > 0 {
		sql += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	return queryRows(ctx, r, scanBuild, sql+` ORDER BY created_at DESC, id DESC`, args...)
}

func (r *postgresRepository) UpdateBuild(ctx context.Context, id int64, update BuildUpdate) (models.Build, error) {
	var build models.Build
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		existing, err := scanBuild(tx.QueryRow(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		applyBuildUpdate(&existing, update)
		build, err = scanBuild(tx.QueryRow(ctx, `UPDATE builds SET state = $2, success = $3, error = $4, commit_hash = $5, duration = $6, finished_at = $7
WHERE id = $1 RETURNING `+buildColumns, id, existing.State, existing.Success, existing.Error, existing.Commit, existing.Duration, existing.FinishedAt))
		return err
	})
	if err != nil {
		return models.Build{}, err
	}
	return build, nil
}

const redirectColumns = `id, project_id, type, from_url, to_url, http_status, force_redirect, enabled, position, description, created_at, updated_at`

func scanRedirect(row rowScanner) (models.Redirect, error) {
	var rd models.Redirect
	err := row.Scan(&rd.ID, &rd.ProjectID, &rd.Type, &rd.FromURL, &rd.ToURL, &rd.HTTPStatus, &rd.ForceRedirect, &rd.Enabled, &rd.Position, &rd.Description, &rd.CreatedAt, &rd.UpdatedAt)
	return rd, err
}

func lockedRedirects(ctx context.Context, tx pgx.Tx, projectID int64) ([]models.Redirect, error) {
	rows, err := tx.Query(ctx, `SELECT `+redirectColumns+` FROM redirects WHERE project_id = $1 ORDER BY position, id FOR UPDATE`, projectID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Redirect, error) { return scanRedirect(row) })
}

func storeRedirectOrder(ctx context.Context, tx pgx.Tx, ordered []models.Redirect) error {
	for i, redirect := range ordered {
		if redirect.Position == i {
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE redirects SET position = $2 WHERE id = $1`, redirect.ID, i); err != nil {
			return err
		}
	}
	return nil
}

func (r *postgresRepository) CreateRedirect(ctx context.Context, params CreateRedirectParams) (models.Redirect, error) {
	var redirect models.Redirect
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		siblings, err := lockedRedirects(ctx, tx, params.ProjectID)
		if err != nil {
			return err
		}
		position := len(siblings)
		if params.Position != nil {
			position = clampPosition(*params.Position, len(siblings))
		}
		status := params.HTTPStatus
		if status == 0 {
			status = http.StatusFound
		}
		redirect, err = scanRedirect(tx.QueryRow(ctx, `INSERT INTO redirects (project_id, type, from_url, to_url, http_status, force_redirect, enabled, position, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+redirectColumns,
			params.ProjectID, params.Type, strings.TrimSpace(params.FromURL), strings.TrimSpace(params.ToURL), status,
			params.ForceRedirect, params.Enabled, position, strings.TrimSpace(params.Description)))
		if err != nil {
			return err
		}
		return storeRedirectOrder(ctx, tx, insertRedirect(siblings, redirect, position))
	})
	if err != nil {
		return models.Redirect{}, err
	}
	return redirect, nil
}

func (r *postgresRepository) GetRedirect(ctx context.Context, id int64) (models.Redirect, error) {
	return queryRow(ctx, r, scanRedirect, `SELECT `+redirectColumns+` FROM redirects WHERE id = $1`, id)
}

func (r *postgresRepository) ListRedirects(ctx context.Context, projectID int64) ([]models.Redirect, error) {
	return queryRows(ctx, r, scanRedirect, `SELECT `+redirectColumns+` FROM redirects WHERE project_id = $1 ORDER BY position, id`, projectID)
}

func (r *postgresRepository) UpdateRedirect(ctx context.Context, id int64, update RedirectUpdate) (models.Redirect, error) {
	var redirect models.Redirect
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		existing, err := scanRedirect(tx.QueryRow(ctx, `SELECT `+redirectColumns+` FROM redirects WHERE id = $1`, id))
		if err != nil {
			return err
		}
		siblings, err := lockedRedirects(ctx, tx, existing.ProjectID)
		if err != nil {
			return err
		}
		applyRedirectUpdate(&existing, update)
		if _, err := tx.Exec(ctx, `UPDATE redirects SET type = $2, from_url = $3, to_url = $4, http_status = $5, force_redirect = $6, enabled = $7, description = $8, updated_at = now()
WHERE id = $1`, id, existing.Type, existing.FromURL, existing.ToURL, existing.HTTPStatus, existing.ForceRedirect, existing.Enabled, existing.Description); err != nil {
			return err
		}
		if update.Position != nil && *update.Position != existing.Position {
			if err := storeRedirectOrder(ctx, tx, moveRedirect(siblings, existing, *update.Position)); err != nil {
				return err
			}
		}
		redirect, err = scanRedirect(tx.QueryRow(ctx, `SELECT `+redirectColumns+` FROM redirects WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return models.Redirect{}, err
	}
	return redirect, nil
}

func (r *postgresRepository) DeleteRedirect(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var projectID int64
		if err := tx.QueryRow(ctx, `DELETE FROM redirects WHERE id = $1 RETURNING project_id`, id).Scan(&projectID); err != nil {
			return err
		}
		remaining, err := lockedRedirects(ctx, tx, projectID)
		if err != nil {
			return err
		}
		return storeRedirectOrder(ctx, tx, remaining)
	})
}

const environmentVariableColumns = `id, project_id, name, value, public, created_at, modified_at`

func scanEnvironmentVariable(row rowScanner) (models.EnvironmentVariable, error) {
	var v models.EnvironmentVariable
	err := row.Scan(&v.ID, &v.ProjectID, &v.Name, &v.Value, &v.Public, &v.CreatedAt, &v.ModifiedAt)
	return v, err
}

func (r *postgresRepository) CreateEnvironmentVariable(ctx context.Context, params CreateEnvironmentVariableParams) (models.EnvironmentVariable, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.EnvironmentVariable{}, errors.New("environment variable name is required")
	}
	if len(params.Value) > MaxEnvironmentVariableValueLength {
		return models.EnvironmentVariable{}, fmt.Errorf("environment variable value exceeds %d characters", MaxEnvironmentVariableValueLength)
	}
	return queryRow(ctx, r, scanEnvironmentVariable, `INSERT INTO environment_variables (project_id, name, value, public)
VALUES ($1, $2, $3, $4) RETURNING `+environmentVariableColumns, params.ProjectID, name, params.Value, params.Public)
}

func (r *postgresRepository) GetEnvironmentVariable(ctx context.Context, id int64) (models.EnvironmentVariable, error) {
	return queryRow(ctx, r, scanEnvironmentVariable, `SELECT `+environmentVariableColumns+` FROM environment_variables WHERE id = $1`, id)
}

func (r *postgresRepository) ListEnvironmentVariables(ctx context.Context, projectID int64) ([]models.EnvironmentVariable, error) {
	return queryRows(ctx, r, scanEnvironmentVariable, `SELECT `+environmentVariableColumns+` FROM environment_variables WHERE project_id = $1 ORDER BY id`, projectID)
}

func (r *postgresRepository) DeleteEnvironmentVariable(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, "environment_variables", id)
}

const notificationColumns = `id, message_id, state, dismissable, news, attached_kind, attached_id, format, created_at, modified_at`

func scanNotification(row rowScanner) (models.Notification, error) {
	var n models.Notification
	var kind string
	err := row.Scan(&n.ID, &n.MessageID, &n.State, &n.Dismissable, &n.News, &kind, &n.AttachedTo.ID, &n.Format, &n.CreatedAt, &n.ModifiedAt)
	n.AttachedTo.Kind = models.AttachmentKind(kind)
	return n, err
}

var attachmentTables = map[models.AttachmentKind]string{
	models.AttachedToUser:         "users",
	models.AttachedToProject:      "projects",
	models.AttachedToBuild:        "builds",
	models.AttachedToOrganization: "organizations",
}

func (r *postgresRepository) CreateNotification(ctx context.Context, params CreateNotificationParams) (models.Notification, error) {
	table, ok := attachmentTables[params.AttachedTo.Kind]
	if !ok {
		return models.Notification{}, fmt.Errorf("unknown attachment kind %q", params.AttachedTo.Kind)
	}
	messageID := strings.TrimSpace(params.MessageID)
	if messageID == "" {
		return models.Notification{}, fmt.Errorf("notification message id is required")
	}
	notification, err := queryRow(ctx, r, scanNotification, `INSERT INTO notifications (message_id, state, dismissable, news, attached_kind, attached_id, format)
SELECT $1::text, $2::text, $3::boolean, $4::boolean, $5::text, $6::bigint, $7::jsonb
WHERE EXISTS (SELECT 1 FROM `+table+` WHERE id = $6)
RETURNING `+notificationColumns,
		messageID, firstNonEmpty(params.State, models.NotificationUnread), params.Dismissable, params.News,
		string(params.AttachedTo.Kind), params.AttachedTo.ID, params.Format)
	if errors.Is(err, ErrNotFound) {
		return models.Notification{}, fmt.Errorf("attachment %s: %w", params.AttachedTo, ErrNotFound)
	}
	return notification, err
}

func (r *postgresRepository) GetNotification(ctx context.Context, id int64) (models.Notification, error) {
	return queryRow(ctx, r, scanNotification, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
}

func (r *postgresRepository) ListNotifications(ctx context.Context, query NotificationQuery) ([]models.Notification, error) {
	if len(query.Targets) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(query.Targets))
	args := make([]any, 0, 2*len(query.Targets))
	for _, target := range query.Targets {
		args = append(args, string(target.Kind), target.ID)
		clauses = append(clauses, fmt.Sprintf("(attached_kind = $%d AND attached_id = $%d)", len(args)-1, len(args)))
	}
	return queryRows(ctx, r, scanNotification, `SELECT `+notificationColumns+` FROM notifications
WHERE `+strings.Join(clauses, " OR ")+` ORDER BY created_at DESC, id DESC`, args...)
}

func (r *postgresRepository) UpdateNotification(ctx context.Context, id int64, update NotificationUpdate) (models.Notification, error) {
	return queryRow(ctx, r, scanNotification, `UPDATE notifications SET state = COALESCE($2::text, state), modified_at = now()
WHERE id = $1 RETURNING `+notificationColumns, id, update.State)
}
