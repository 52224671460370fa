package storage

import (
	"context"

	"docsplatform/internal/models"
)

// Repository exposes the datastore operations required by the API resources,
// the build gateway and the import hook. Lookups return ErrNotFound when the
// record is absent; uniqueness violations return a *ConflictError naming the
// offending input field.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (models.User, error)
	GetUser(ctx context.Context, id int64) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id int64, update UserUpdate) (models.User, error)
	SetUserPassword(ctx context.Context, id int64, password string) (models.User, error)

	CreateOrganization(ctx context.Context, params CreateOrganizationParams) (models.Organization, error)
	GetOrganization(ctx context.Context, id int64) (models.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (models.Organization, error)
	ListOrganizationsForUser(ctx context.Context, userID int64) ([]models.Organization, error)
	CreateTeam(ctx context.Context, params CreateTeamParams) (models.Team, error)
	ListTeams(ctx context.Context, organizationID int64) ([]models.Team, error)

	CreateProject(ctx context.Context, params CreateProjectParams) (models.Project, error)
	GetProject(ctx context.Context, id int64) (models.Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (models.Project, error)
	ListProjects(ctx context.Context, query ProjectQuery) ([]models.Project, error)
	UpdateProject(ctx context.Context, id int64, update ProjectUpdate) (models.Project, error)

	CreateProjectRelationship(ctx context.Context, params CreateRelationshipParams) (models.ProjectRelationship, error)
	GetProjectRelationship(ctx context.Context, parentID int64, alias string) (models.ProjectRelationship, error)
	ListSubprojectRelationships(ctx context.Context, parentID int64) ([]models.ProjectRelationship, error)
	ListSuperprojectRelationships(ctx context.Context, childID int64) ([]models.ProjectRelationship, error)
	DeleteProjectRelationship(ctx context.Context, id int64) error

	CreateVersion(ctx context.Context, params CreateVersionParams) (models.Version, error)
	GetVersion(ctx context.Context, id int64) (models.Version, error)
	GetVersionBySlug(ctx context.Context, projectID int64, slug string) (models.Version, error)
	ListVersions(ctx context.Context, projectID int64) ([]models.Version, error)
	UpdateVersion(ctx context.Context, id int64, update VersionUpdate) (models.Version, error)

	CreateBuild(ctx context.Context, params CreateBuildParams) (models.Build, error)
	GetBuild(ctx context.Context, id int64) (models.Build, error)
	ListBuilds(ctx context.Context, query BuildQuery) ([]models.Build, error)
	UpdateBuild(ctx context.Context, id int64, update BuildUpdate) (models.Build, error)

	CreateRedirect(ctx context.Context, params CreateRedirectParams) (models.Redirect, error)
	GetRedirect(ctx context.Context, id int64) (models.Redirect, error)
	ListRedirects(ctx context.Context, projectID int64) ([]models.Redirect, error)
	UpdateRedirect(ctx context.Context, id int64, update RedirectUpdate) (models.Redirect, error)
	DeleteRedirect(ctx context.Context, id int64) error

	CreateEnvironmentVariable(ctx context.Context, params CreateEnvironmentVariableParams) (models.EnvironmentVariable, error)
	GetEnvironmentVariable(ctx context.Context, id int64) (models.EnvironmentVariable, error)
	ListEnvironmentVariables(ctx context.Context, projectID int64) ([]models.EnvironmentVariable, error)
	DeleteEnvironmentVariable(ctx context.Context, id int64) error

	CreateNotification(ctx context.Context, params CreateNotificationParams) (models.Notification, error)
	GetNotification(ctx context.Context, id int64) (models.Notification, error)
	ListNotifications(ctx context.Context, query NotificationQuery) ([]models.Notification, error)
	UpdateNotification(ctx context.Context, id int64, update NotificationUpdate) (models.Notification, error)

	SaveRemoteOrganization(ctx context.Context, org models.RemoteOrganization) (models.RemoteOrganization, error)
	GetRemoteOrganization(ctx context.Context, id int64) (models.RemoteOrganization, error)
	ListRemoteOrganizations(ctx context.Context, userID int64) ([]models.RemoteOrganization, error)
	SaveRemoteRepository(ctx context.Context, repo models.RemoteRepository) (models.RemoteRepository, error)
	SetRemoteRepositoryRelation(ctx context.Context, relation models.RemoteRepositoryRelation) error
	ListRemoteRepositories(ctx context.Context, userID int64) ([]RemoteRepositoryAccess, error)
}

var _ Repository = (*Storage)(nil)
