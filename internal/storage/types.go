package storage

import (
	"errors"
	"fmt"
	"time"

	"docsplatform/internal/models"
)

const (
	passwordHashSaltLength = 16
	passwordHashKeyLength  = 32
	passwordHashIterations = 120000

	// MaxEnvironmentVariableValueLength bounds the stored size of a variable value.
	MaxEnvironmentVariableValueLength = 48000
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is wrapped by every ConflictError.
	ErrConflict = errors.New("conflict")

	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrPasswordLoginUnsupported = errors.New("account does not support password login")
)

// ConflictError reports a uniqueness violation against a single input field.
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s already exists", e.Field)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// IsConflict reports whether err wraps a ConflictError and returns it.
func IsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

type CreateUserParams struct {
	Username    string
	Email       string
	DisplayName string
	Password    string
	Roles       []string
}

type UserUpdate struct {
	DisplayName *string
	Email       *string
	Roles       *[]string
}

type CreateOrganizationParams struct {
	Slug        string
	Name        string
	Email       string
	URL         string
	Description string
	OwnerIDs    []int64
}

type CreateTeamParams struct {
	OrganizationID int64
	Slug           string
	Name           string
	Access         string
	MemberIDs      []int64
	ProjectIDs     []int64
}

type CreateProjectParams struct {
	Name                  string
	Slug                  string
	Description           string
	Language              string
	ProgrammingLanguage   string
	Repository            models.Repository
	Homepage              string
	Privacy               string
	Tags                  []string
	UserIDs               []int64
	OrganizationID        *int64
	MainLanguageProjectID *int64
	RemoteRepositoryID    *int64
}

type ProjectUpdate struct {
	Name                  *string
	Description           *string
	Language              *string
	ProgrammingLanguage   *string
	Repository            *models.Repository
	Homepage              *string
	DefaultVersion        *string
	DefaultBranch         *string
	Privacy               *string
	ExternalBuildsEnabled *bool
	Disabled              *bool
	Tags                  *[]string
	UserIDs               *[]int64
}

// ProjectQuery narrows ListProjects. Zero values are ignored.
type ProjectQuery struct {
	IDs                   []int64
	AdminUserID           int64
	OrganizationID        int64
	MainLanguageProjectID int64
	RemoteRepositoryID    int64
}

type CreateRelationshipParams struct {
	ParentID int64
	ChildID  int64
	Alias    string
}

type CreateVersionParams struct {
	ProjectID   int64
	Slug        string
	VerboseName string
	Identifier  string
	Type        string
	Active      bool
	Hidden      bool
	Privacy     string
}

type VersionUpdate struct {
	Active     *bool
	Hidden     *bool
	Built      *bool
	Privacy    *string
	Identifier *string
}

type CreateBuildParams struct {
	ProjectID int64
	VersionID int64
	State     string
	Commit    string
	Config    map[string]any
}

type BuildUpdate struct {
	State      *string
	Success    *bool
	Error      *string
	Commit     *string
	Duration   *int
	FinishedAt *time.Time
}

// BuildQuery narrows ListBuilds. Zero values are ignored.
type BuildQuery struct {
	ProjectID int64
	VersionID int64
	Running   *bool
}

type CreateRedirectParams struct {
	ProjectID     int64
	Type          string
	FromURL       string
	ToURL         string
	HTTPStatus    int
	ForceRedirect bool
	Enabled       bool
	Position      *int
	Description   string
}

type RedirectUpdate struct {
	Type          *string
	FromURL       *string
	ToURL         *string
	HTTPStatus    *int
	ForceRedirect *bool
	Enabled       *bool
	Position      *int
	Description   *string
}

type CreateEnvironmentVariableParams struct {
	ProjectID int64
	Name      string
	Value     string
	Public    bool
}

type CreateNotificationParams struct {
	MessageID   string
	State       string
	Dismissable bool
	News        bool
	AttachedTo  models.AttachedTo
	Format      map[string]string
}

type NotificationUpdate struct {
	State *string
}

// NotificationQuery selects notifications attached to any of the targets.
type NotificationQuery struct {
	Targets []models.AttachedTo
}

// RemoteRepositoryAccess pairs a remote repository with the caller's admin flag.
type RemoteRepositoryAccess struct {
	Repository models.RemoteRepository
	Admin      bool
}
