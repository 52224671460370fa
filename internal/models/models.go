package models

import (
	"fmt"
	"strings"
	"time"
)

// Privacy levels shared by projects and versions.
const (
	PrivacyPublic  = "public"
	PrivacyPrivate = "private"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasRole reports whether the user has the provided role, ignoring case.
func (u User) HasRole(role string) bool {
	for _, existing := range u.Roles {
		if strings.EqualFold(existing, role) {
			return true
		}
	}
	return false
}

// Organization owns projects and teams. Owners are organization admins.
type Organization struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	URL         string    `json:"url,omitempty"`
	Description string    `json:"description,omitempty"`
	Disabled    bool      `json:"disabled"`
	OwnerIDs    []int64   `json:"ownerIds"`
	CreatedAt   time.Time `json:"createdAt"`
	ModifiedAt  time.Time `json:"modifiedAt"`
}

// IsOwner reports whether the user administers the organization.
func (o Organization) IsOwner(userID int64) bool {
	return containsID(o.OwnerIDs, userID)
}

// Team access levels.
const (
	TeamAccessAdmin    = "admin"
	TeamAccessReadonly = "readonly"
)

type Team struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organizationId"`
	Slug           string    `json:"slug"`
	Name           string    `json:"name"`
	Access         string    `json:"access"`
	MemberIDs      []int64   `json:"memberIds"`
	ProjectIDs     []int64   `json:"projectIds"`
	CreatedAt      time.Time `json:"createdAt"`
}

// HasMember reports whether the user belongs to the team.
func (t Team) HasMember(userID int64) bool {
	return containsID(t.MemberIDs, userID)
}

// Repository describes where a project's sources live.
type Repository struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type Project struct {
	ID                    int64      `json:"id"`
	Slug                  string     `json:"slug"`
	Name                  string     `json:"name"`
	Description           string     `json:"description,omitempty"`
	Language              string     `json:"language"`
	ProgrammingLanguage   string     `json:"programmingLanguage"`
	Repository            Repository `json:"repository"`
	Homepage              string     `json:"homepage,omitempty"`
	DefaultVersion        string     `json:"defaultVersion"`
	DefaultBranch         string     `json:"defaultBranch,omitempty"`
	Privacy               string     `json:"privacy"`
	ExternalBuildsEnabled bool       `json:"externalBuildsEnabled"`
	Disabled              bool       `json:"disabled"`
	UserIDs               []int64    `json:"userIds"`
	OrganizationID        *int64     `json:"organizationId,omitempty"`
	MainLanguageProjectID *int64     `json:"mainLanguageProjectId,omitempty"`
	RemoteRepositoryID    *int64     `json:"remoteRepositoryId,omitempty"`
	Tags                  []string   `json:"tags"`
	Domains               []string   `json:"domains,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	ModifiedAt            time.Time  `json:"modifiedAt"`
}

// IsAdmin reports whether the user is one of the project maintainers.
func (p Project) IsAdmin(userID int64) bool {
	return containsID(p.UserIDs, userID)
}

// IsPublic reports whether anonymous readers may see the project.
func (p Project) IsPublic() bool {
	return p.Privacy == "" || p.Privacy == PrivacyPublic
}

// ProjectRelationship links a child project under a parent with an alias.
type ProjectRelationship struct {
	ID        int64     `json:"id"`
	ParentID  int64     `json:"parentId"`
	ChildID   int64     `json:"childId"`
	Alias     string    `json:"alias"`
	CreatedAt time.Time `json:"createdAt"`
}

// Version types.
const (
	VersionTypeBranch   = "branch"
	VersionTypeTag      = "tag"
	VersionTypeExternal = "external"
	VersionTypeUnknown  = "unknown"
)

// LatestVersionSlug names the version tracking the default branch.
const LatestVersionSlug = "latest"

type Version struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"projectId"`
	Slug        string    `json:"slug"`
	VerboseName string    `json:"verboseName"`
	Identifier  string    `json:"identifier"`
	Type        string    `json:"type"`
	Active      bool      `json:"active"`
	Hidden      bool      `json:"hidden"`
	Built       bool      `json:"built"`
	Privacy     string    `json:"privacy"`
	CreatedAt   time.Time `json:"createdAt"`
	ModifiedAt  time.Time `json:"modifiedAt"`
}

// Build states.
const (
	BuildStateTriggered  = "triggered"
	BuildStateCloning    = "cloning"
	BuildStateInstalling = "installing"
	BuildStateBuilding   = "building"
	BuildStateUploading  = "uploading"
	BuildStateFinished   = "finished"
	BuildStateCancelled  = "cancelled"
)

// BuildStateFinal reports whether no further transitions are expected.
func BuildStateFinal(state string) bool {
	return state == BuildStateFinished || state == BuildStateCancelled
}

type Build struct {
	ID         int64          `json:"id"`
	ProjectID  int64          `json:"projectId"`
	VersionID  int64          `json:"versionId"`
	State      string         `json:"state"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Commit     string         `json:"commit,omitempty"`
	Duration   int            `json:"duration"`
	Config     map[string]any `json:"config,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
}

// Running reports whether the build is still in flight.
func (b Build) Running() bool {
	return !BuildStateFinal(b.State)
}

// Redirect types.
const (
	RedirectTypePage                    = "page"
	RedirectTypeExact                   = "exact"
	RedirectTypeCleanURLToHTML          = "clean_url_to_html"
	RedirectTypeHTMLToCleanURL          = "html_to_clean_url"
	RedirectTypeCleanURLWithoutTrailing = "clean_url_without_trailing_slash"
	RedirectTypeCleanURLWithTrailing    = "clean_url_with_trailing_slash"
)

type Redirect struct {
	ID            int64     `json:"id"`
	ProjectID     int64     `json:"projectId"`
	Type          string    `json:"type"`
	FromURL       string    `json:"fromUrl,omitempty"`
	ToURL         string    `json:"toUrl,omitempty"`
	HTTPStatus    int       `json:"httpStatus"`
	ForceRedirect bool      `json:"forceRedirect"`
	Enabled       bool      `json:"enabled"`
	Position      int       `json:"position"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type EnvironmentVariable struct {
	ID         int64     `json:"id"`
	ProjectID  int64     `json:"projectId"`
	Name       string    `json:"name"`
	Value      string    `json:"value"`
	Public     bool      `json:"public"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// AttachmentKind discriminates the parent a notification is attached to.
type AttachmentKind string

const (
	AttachedToUser         AttachmentKind = "user"
	AttachedToProject      AttachmentKind = "project"
	AttachedToBuild        AttachmentKind = "build"
	AttachedToOrganization AttachmentKind = "organization"
)

// Valid reports whether the kind is one of the known attachment targets.
func (k AttachmentKind) Valid() bool {
	switch k {
	case AttachedToUser, AttachedToProject, AttachedToBuild, AttachedToOrganization:
		return true
	default:
		return false
	}
}

// AttachedTo identifies the single parent of a notification.
type AttachedTo struct {
	Kind AttachmentKind `json:"kind"`
	ID   int64          `json:"id"`
}

func (a AttachedTo) String() string {
	return fmt.Sprintf("%s:%d", a.Kind, a.ID)
}

// Notification states.
const (
	NotificationUnread    = "unread"
	NotificationRead      = "read"
	NotificationDismissed = "dismissed"
	NotificationCancelled = "cancelled"
)

type Notification struct {
	ID          int64             `json:"id"`
	MessageID   string            `json:"messageId"`
	State       string            `json:"state"`
	Dismissable bool              `json:"dismissable"`
	News        bool              `json:"news"`
	AttachedTo  AttachedTo        `json:"attachedTo"`
	Format      map[string]string `json:"format,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	ModifiedAt  time.Time         `json:"modifiedAt"`
}

// Supported VCS providers for remote metadata.
const (
	ProviderGitHub    = "github"
	ProviderGitLab    = "gitlab"
	ProviderBitbucket = "bitbucket"
)

type RemoteOrganization struct {
	ID          int64     `json:"id"`
	RemoteID    string    `json:"remoteId"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	URL         string    `json:"url,omitempty"`
	VCSProvider string    `json:"vcsProvider"`
	MemberIDs   []int64   `json:"memberIds"`
	CreatedAt   time.Time `json:"createdAt"`
	ModifiedAt  time.Time `json:"modifiedAt"`
}

type RemoteRepository struct {
	ID             int64     `json:"id"`
	RemoteID       string    `json:"remoteId"`
	OrganizationID *int64    `json:"organizationId,omitempty"`
	Name           string    `json:"name"`
	FullName       string    `json:"fullName"`
	Description    string    `json:"description,omitempty"`
	AvatarURL      string    `json:"avatarUrl,omitempty"`
	HTMLURL        string    `json:"htmlUrl,omitempty"`
	CloneURL       string    `json:"cloneUrl"`
	SSHURL         string    `json:"sshUrl,omitempty"`
	VCS            string    `json:"vcs"`
	Private        bool      `json:"private"`
	DefaultBranch  string    `json:"defaultBranch,omitempty"`
	VCSProvider    string    `json:"vcsProvider"`
	CreatedAt      time.Time `json:"createdAt"`
	ModifiedAt     time.Time `json:"modifiedAt"`
}

// RemoteRepositoryRelation records a user's access to a remote repository.
type RemoteRepositoryRelation struct {
	RemoteRepositoryID int64 `json:"remoteRepositoryId"`
	UserID             int64 `json:"userId"`
	Admin              bool  `json:"admin"`
}

func containsID(ids []int64, id int64) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
