package api

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"docsplatform/internal/models"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

type choiceResponse struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type userResponse struct {
	Username string `json:"username"`
}

type repositoryResponse struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type projectURLs struct {
	Documentation string `json:"documentation"`
	Home          string `json:"home"`
	Builds        string `json:"builds"`
	Versions      string `json:"versions"`
}

type projectLinks struct {
	Self                 string `json:"_self"`
	Versions             string `json:"versions"`
	Builds               string `json:"builds"`
	EnvironmentVariables string `json:"environmentvariables"`
	Redirects            string `json:"redirects"`
	Subprojects          string `json:"subprojects"`
	Superproject         string `json:"superproject"`
	Translations         string `json:"translations"`
	Notifications        string `json:"notifications"`
}

type projectResponse struct {
	ID                    int64                 `json:"id"`
	Name                  string                `json:"name"`
	Slug                  string                `json:"slug"`
	Description           string                `json:"description"`
	Created               time.Time             `json:"created"`
	Modified              time.Time             `json:"modified"`
	Language              choiceResponse        `json:"language"`
	ProgrammingLanguage   choiceResponse        `json:"programming_language"`
	Repository            repositoryResponse    `json:"repository"`
	Homepage              string                `json:"homepage"`
	DefaultVersion        string                `json:"default_version"`
	DefaultBranch         string                `json:"default_branch"`
	PrivacyLevel          string                `json:"privacy_level"`
	ExternalBuildsEnabled bool                  `json:"external_builds_enabled"`
	SubprojectOf          *projectResponse      `json:"subproject_of"`
	TranslationOf         *projectResponse      `json:"translation_of"`
	Tags                  []string              `json:"tags"`
	Users                 []userResponse        `json:"users"`
	URLs                  projectURLs           `json:"urls"`
	Links                 projectLinks          `json:"_links"`
	ActiveVersions        []versionResponse     `json:"active_versions,omitempty"`
	Organization          *organizationResponse `json:"organization,omitempty"`
	Teams                 []teamResponse        `json:"teams,omitempty"`
}

type versionURLs struct {
	Documentation string `json:"documentation"`
	VCS           string `json:"vcs"`
}

type versionLinks struct {
	Self    string `json:"_self"`
	Builds  string `json:"builds"`
	Project string `json:"project"`
}

type versionResponse struct {
	ID           int64          `json:"id"`
	Slug         string         `json:"slug"`
	VerboseName  string         `json:"verbose_name"`
	Identifier   string         `json:"identifier"`
	Ref          *string        `json:"ref"`
	Built        bool           `json:"built"`
	Active       bool           `json:"active"`
	Hidden       bool           `json:"hidden"`
	Type         string         `json:"type"`
	PrivacyLevel string         `json:"privacy_level"`
	Created      time.Time      `json:"created"`
	Modified     time.Time      `json:"modified"`
	URLs         versionURLs    `json:"urls"`
	Links        versionLinks   `json:"_links"`
	LastBuild    *buildResponse `json:"last_build,omitempty"`
}

type buildURLs struct {
	Build   string `json:"build"`
	Project string `json:"project"`
	Version string `json:"version"`
}

type buildLinks struct {
	Self          string `json:"_self"`
	Version       string `json:"version"`
	Project       string `json:"project"`
	Notifications string `json:"notifications"`
}

type buildResponse struct {
	ID       int64          `json:"id"`
	Version  string         `json:"version"`
	Project  string         `json:"project"`
	Created  time.Time      `json:"created"`
	Finished *time.Time     `json:"finished"`
	Duration *int           `json:"duration"`
	State    choiceResponse `json:"state"`
	Success  *bool          `json:"success"`
	Error    string         `json:"error"`
	Commit   *string        `json:"commit"`
	URLs     buildURLs      `json:"urls"`
	Links    buildLinks     `json:"_links"`
	Config   map[string]any `json:"config,omitempty"`
}

type selfProjectLinks struct {
	Self    string `json:"_self"`
	Project string `json:"project"`
}

type redirectResponse struct {
	PK          int64            `json:"pk"`
	Created     time.Time        `json:"created"`
	Modified    time.Time        `json:"modified"`
	Project     string           `json:"project"`
	Type        string           `json:"type"`
	FromURL     string           `json:"from_url"`
	ToURL       string           `json:"to_url"`
	HTTPStatus  int              `json:"http_status"`
	Force       bool             `json:"force"`
	Enabled     bool             `json:"enabled"`
	Position    int              `json:"position"`
	Description string           `json:"description"`
	Links       selfProjectLinks `json:"_links"`
}

type environmentVariableResponse struct {
	PK       int64            `json:"pk"`
	Created  time.Time        `json:"created"`
	Modified time.Time        `json:"modified"`
	Project  string           `json:"project"`
	Public   bool             `json:"public"`
	Name     string           `json:"name"`
	Links    selfProjectLinks `json:"_links"`
}

type selfLinks struct {
	Self string `json:"_self"`
}

type notificationResponse struct {
	ID                    int64             `json:"id"`
	MessageID             string            `json:"message_id"`
	State                 string            `json:"state"`
	Dismissable           bool              `json:"dismissable"`
	News                  bool              `json:"news"`
	AttachedToContentType string            `json:"attached_to_content_type"`
	AttachedToID          int64             `json:"attached_to_id"`
	FormatValues          map[string]string `json:"format_values"`
	Created               time.Time         `json:"created"`
	Modified              time.Time         `json:"modified"`
	Links                 selfLinks         `json:"_links"`
}

type organizationLinks struct {
	Self          string `json:"_self"`
	Projects      string `json:"projects"`
	Notifications string `json:"notifications"`
}

type organizationResponse struct {
	Slug        string            `json:"slug"`
	Name        string            `json:"name"`
	Created     time.Time         `json:"created"`
	Modified    time.Time         `json:"modified"`
	Email       string            `json:"email"`
	URL         string            `json:"url"`
	Description string            `json:"description"`
	Disabled    bool              `json:"disabled"`
	Owners      []userResponse    `json:"owners"`
	Links       organizationLinks `json:"_links"`
	Teams       []teamResponse    `json:"teams,omitempty"`
}

type teamResponse struct {
	Slug    string         `json:"slug"`
	Name    string         `json:"name"`
	Access  string         `json:"access"`
	Created time.Time      `json:"created"`
	Members []userResponse `json:"members"`
}

type remoteOrganizationResponse struct {
	PK          int64     `json:"pk"`
	Slug        string    `json:"slug"`
	RemoteID    string    `json:"remote_id"`
	Name        string    `json:"name"`
	AvatarURL   string    `json:"avatar_url"`
	URL         string    `json:"url"`
	VCSProvider string    `json:"provider"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
}

type remoteRepositoryResponse struct {
	ID                 int64                       `json:"id"`
	RemoteOrganization *remoteOrganizationResponse `json:"remote_organization,omitempty"`
	Projects           []projectResponse           `json:"projects,omitempty"`
	Name               string                      `json:"name"`
	FullName           string                      `json:"full_name"`
	Description        string                      `json:"description"`
	AvatarURL          string                      `json:"avatar_url"`
	HTMLURL            string                      `json:"html_url"`
	CloneURL           string                      `json:"clone_url"`
	SSHURL             string                      `json:"ssh_url"`
	VCS                string                      `json:"vcs"`
	Private            bool                        `json:"private"`
	DefaultBranch      string                      `json:"default_branch"`
	VCSProvider        string                      `json:"provider"`
	Admin              bool                        `json:"admin"`
	Created            time.Time                   `json:"created"`
	Modified           time.Time                   `json:"modified"`
}

var programmingLanguages = map[string]string{
	"words":  "Only Words",
	"py":     "Python",
	"js":     "JavaScript",
	"go":     "Go",
	"rust":   "Rust",
	"java":   "Java",
	"c":      "C",
	"cpp":    "C++",
	"csharp": "C#",
	"ruby":   "Ruby",
	"php":    "PHP",
	"other":  "Other",
}

var buildStateNames = map[string]string{
	models.BuildStateTriggered:  "Triggered",
	models.BuildStateCloning:    "Cloning",
	models.BuildStateInstalling: "Installing",
	models.BuildStateBuilding:   "Building",
	models.BuildStateUploading:  "Uploading",
	models.BuildStateFinished:   "Finished",
	models.BuildStateCancelled:  "Cancelled",
}

func languageChoice(code string) choiceResponse {
	choice := choiceResponse{Code: code, Name: code}
	tag, err := language.Parse(code)
	if err == nil {
		if name := display.English.Tags().Name(tag); name != "" {
			choice.Name = name
		}
	}
	return choice
}

func programmingLanguageChoice(code string) choiceResponse {
	if name, ok := programmingLanguages[code]; ok {
		return choiceResponse{Code: code, Name: name}
	}
	return choiceResponse{Code: code, Name: code}
}

// apiURL builds an absolute API URL for a path below the prefix.
func apiURL(req *resource.Request, format string, args ...any) string {
	return resource.AbsoluteURL(req.HTTP, Prefix+fmt.Sprintf(format, args...), "").String()
}

func (h *Handler) docsURL(slug, lang, version string) string {
	return fmt.Sprintf("https://%s.%s/%s/%s/", slug, h.publicDomain, lang, version)
}

func (h *Handler) users(req *resource.Request, ids []int64) ([]userResponse, error) {
	users := make([]userResponse, 0, len(ids))
	for _, id := range ids {
		user, err := h.Store.GetUser(req.Context(), id)
		if err != nil {
			if notFound(err) == resource.ErrNotFound {
				continue
			}
			return nil, err
		}
		users = append(users, userResponse{Username: user.Username})
	}
	return users, nil
}

// renderProject renders the project read schema with any requested
// expansions.
func (h *Handler) renderProject(req *resource.Request, project models.Project) (any, error) {
	body, err := h.projectBody(req, project, true)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// projectBody renders a project. Nested project references are rendered
// without their own relations.
func (h *Handler) projectBody(req *resource.Request, project models.Project, nested bool) (*projectResponse, error) {
	users, err := h.users(req, project.UserIDs)
	if err != nil {
		return nil, err
	}
	tags := project.Tags
	if tags == nil {
		tags = []string{}
	}
	body := &projectResponse{
		ID:                    project.ID,
		Name:                  project.Name,
		Slug:                  project.Slug,
		Description:           project.Description,
		Created:               project.CreatedAt,
		Modified:              project.ModifiedAt,
		Language:              languageChoice(project.Language),
		ProgrammingLanguage:   programmingLanguageChoice(project.ProgrammingLanguage),
		Repository:            repositoryResponse{URL: project.Repository.URL, Type: project.Repository.Type},
		Homepage:              project.Homepage,
		DefaultVersion:        project.DefaultVersion,
		DefaultBranch:         project.DefaultBranch,
		PrivacyLevel:          project.Privacy,
		ExternalBuildsEnabled: project.ExternalBuildsEnabled,
		Tags:                  tags,
		Users:                 users,
		URLs: projectURLs{
			Documentation: h.docsURL(project.Slug, project.Language, project.DefaultVersion),
			Home:          resource.AbsoluteURL(req.HTTP, "/projects/"+project.Slug+"/", "").String(),
			Builds:        resource.AbsoluteURL(req.HTTP, "/projects/"+project.Slug+"/builds/", "").String(),
			Versions:      resource.AbsoluteURL(req.HTTP, "/projects/"+project.Slug+"/versions/", "").String(),
		},
		Links: projectLinks{
			Self:                 apiURL(req, "/projects/%s/", project.Slug),
			Versions:             apiURL(req, "/projects/%s/versions/", project.Slug),
			Builds:               apiURL(req, "/projects/%s/builds/", project.Slug),
			EnvironmentVariables: apiURL(req, "/projects/%s/environmentvariables/", project.Slug),
			Redirects:            apiURL(req, "/projects/%s/redirects/", project.Slug),
			Subprojects:          apiURL(req, "/projects/%s/subprojects/", project.Slug),
			Superproject:         apiURL(req, "/projects/%s/superproject/", project.Slug),
			Translations:         apiURL(req, "/projects/%s/translations/", project.Slug),
			Notifications:        apiURL(req, "/projects/%s/notifications/", project.Slug),
		},
	}
	if !nested {
		return body, nil
	}

	if parent, ok, err := h.superproject(req, project); err != nil {
		return nil, err
	} else if ok {
		body.SubprojectOf, err = h.projectBody(req, parent, false)
		if err != nil {
			return nil, err
		}
	}
	if project.MainLanguageProjectID != nil {
		main, err := h.Store.GetProject(req.Context(), *project.MainLanguageProjectID)
		if err != nil && notFound(err) != resource.ErrNotFound {
			return nil, err
		}
		if err == nil {
			body.TranslationOf, err = h.projectBody(req, main, false)
			if err != nil {
				return nil, err
			}
		}
	}

	if req.Expanded("active_versions") {
		if err := h.expandActiveVersions(req, project, body); err != nil {
			return nil, err
		}
	}
	if req.Expanded("organization") || req.Expanded("teams") {
		if err := h.expandProjectOrganization(req, project, body); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (h *Handler) expandActiveVersions(req *resource.Request, project models.Project, body *projectResponse) error {
	versions, err := h.Store.ListVersions(req.Context(), project.ID)
	if err != nil {
		return err
	}
	scope, err := h.scopeForProject(req.Context(), project)
	if err != nil {
		return err
	}
	body.ActiveVersions = []versionResponse{}
	for _, version := range versions {
		if !version.Active || !h.canSeeVersion(req.Caller, scope, version) {
			continue
		}
		rendered, err := h.versionBody(req, project, version,
			req.Expanded("active_versions.last_build"),
			req.Expanded("active_versions.last_build.config"))
		if err != nil {
			return err
		}
		body.ActiveVersions = append(body.ActiveVersions, *rendered)
	}
	return nil
}

func (h *Handler) expandProjectOrganization(req *resource.Request, project models.Project, body *projectResponse) error {
	if project.OrganizationID == nil {
		return nil
	}
	org, err := h.Store.GetOrganization(req.Context(), *project.OrganizationID)
	if err != nil {
		if notFound(err) == resource.ErrNotFound {
			return nil
		}
		return err
	}
	if req.Expanded("organization") {
		body.Organization, err = h.organizationBody(req, org, req.Expanded("organization.teams"))
		if err != nil {
			return err
		}
	}
	if req.Expanded("teams") {
		teams, err := h.Store.ListTeams(req.Context(), org.ID)
		if err != nil {
			return err
		}
		body.Teams = []teamResponse{}
		for _, team := range teams {
			if !containsInt64(team.ProjectIDs, project.ID) {
				continue
			}
			rendered, err := h.teamBody(req, team)
			if err != nil {
				return err
			}
			body.Teams = append(body.Teams, rendered)
		}
	}
	return nil
}

// superproject returns the parent of the first relationship naming project
// as a child.
func (h *Handler) superproject(req *resource.Request, project models.Project) (models.Project, bool, error) {
	relationships, err := h.Store.ListSuperprojectRelationships(req.Context(), project.ID)
	if err != nil {
		return models.Project{}, false, err
	}
	if len(relationships) == 0 {
		return models.Project{}, false, nil
	}
	parent, err := h.Store.GetProject(req.Context(), relationships[0].ParentID)
	if err != nil {
		if notFound(err) == resource.ErrNotFound {
			return models.Project{}, false, nil
		}
		return models.Project{}, false, err
	}
	return parent, true, nil
}

func (h *Handler) versionBody(req *resource.Request, project models.Project, version models.Version, lastBuild, config bool) (*versionResponse, error) {
	body := &versionResponse{
		ID:           version.ID,
		Slug:         version.Slug,
		VerboseName:  version.VerboseName,
		Identifier:   version.Identifier,
		Built:        version.Built,
		Active:       version.Active,
		Hidden:       version.Hidden,
		Type:         version.Type,
		PrivacyLevel: version.Privacy,
		Created:      version.CreatedAt,
		Modified:     version.ModifiedAt,
		URLs: versionURLs{
			Documentation: h.docsURL(project.Slug, project.Language, version.Slug),
			VCS:           vcsURL(project.Repository.URL, version),
		},
		Links: versionLinks{
			Self:    apiURL(req, "/projects/%s/versions/%s/", project.Slug, version.Slug),
			Builds:  apiURL(req, "/projects/%s/versions/%s/builds/", project.Slug, version.Slug),
			Project: apiURL(req, "/projects/%s/", project.Slug),
		},
	}
	if version.Slug == models.LatestVersionSlug || version.Slug == "stable" {
		ref := version.Identifier
		body.Ref = &ref
	}
	if lastBuild {
		builds, err := h.Store.ListBuilds(req.Context(), storage.BuildQuery{ProjectID: project.ID, VersionID: version.ID})
		if err != nil {
			return nil, err
		}
		if len(builds) > 0 {
			body.LastBuild = h.buildBody(req, project, version, builds[0], config)
		}
	}
	return body, nil
}

// vcsURL points at the version's ref on hosted git providers.
func vcsURL(repoURL string, version models.Version) string {
	base := strings.TrimSuffix(strings.TrimSuffix(repoURL, "/"), ".git")
	if !strings.HasPrefix(base, "https://") {
		return ""
	}
	switch version.Type {
	case models.VersionTypeTag, models.VersionTypeBranch:
		return base + "/tree/" + version.Identifier
	default:
		return ""
	}
}

func (h *Handler) buildBody(req *resource.Request, project models.Project, version models.Version, build models.Build, config bool) *buildResponse {
	body := &buildResponse{
		ID:       build.ID,
		Version:  version.Slug,
		Project:  project.Slug,
		Created:  build.CreatedAt,
		Finished: build.FinishedAt,
		State:    choiceResponse{Code: build.State, Name: buildStateNames[build.State]},
		Error:    build.Error,
		URLs: buildURLs{
			Build:   resource.AbsoluteURL(req.HTTP, fmt.Sprintf("/projects/%s/builds/%d/", project.Slug, build.ID), "").String(),
			Project: resource.AbsoluteURL(req.HTTP, "/projects/"+project.Slug+"/", "").String(),
			Version: h.docsURL(project.Slug, project.Language, version.Slug),
		},
		Links: buildLinks{
			Self:          apiURL(req, "/projects/%s/builds/%d/", project.Slug, build.ID),
			Version:       apiURL(req, "/projects/%s/versions/%s/", project.Slug, version.Slug),
			Project:       apiURL(req, "/projects/%s/", project.Slug),
			Notifications: apiURL(req, "/projects/%s/builds/%d/notifications/", project.Slug, build.ID),
		},
	}
	if !build.Running() {
		success := build.Success
		duration := build.Duration
		body.Success = &success
		body.Duration = &duration
	}
	if build.Commit != "" {
		commit := build.Commit
		body.Commit = &commit
	}
	if config {
		body.Config = build.Config
		if body.Config == nil {
			body.Config = map[string]any{}
		}
	}
	return body
}

func (h *Handler) renderVersion(req *resource.Request, version models.Version) (any, error) {
	return h.versionBody(req, *req.Scope.Project, version, req.Expanded("last_build"), req.Expanded("last_build.config"))
}

// renderBuild looks up the build's version since project-scoped build routes
// do not resolve one.
func (h *Handler) renderBuild(req *resource.Request, build models.Build) (any, error) {
	version := req.Scope.Version
	if version == nil || version.ID != build.VersionID {
		loaded, err := h.Store.GetVersion(req.Context(), build.VersionID)
		if err != nil {
			return nil, err
		}
		version = &loaded
	}
	return h.buildBody(req, *req.Scope.Project, *version, build, req.Expanded("config")), nil
}

func (h *Handler) renderRedirect(req *resource.Request, redirect models.Redirect) (any, error) {
	slug := req.Scope.Project.Slug
	return redirectResponse{
		PK:          redirect.ID,
		Created:     redirect.CreatedAt,
		Modified:    redirect.UpdatedAt,
		Project:     slug,
		Type:        redirect.Type,
		FromURL:     redirect.FromURL,
		ToURL:       redirect.ToURL,
		HTTPStatus:  redirect.HTTPStatus,
		Force:       redirect.ForceRedirect,
		Enabled:     redirect.Enabled,
		Position:    redirect.Position,
		Description: redirect.Description,
		Links: selfProjectLinks{
			Self:    apiURL(req, "/projects/%s/redirects/%d/", slug, redirect.ID),
			Project: apiURL(req, "/projects/%s/", slug),
		},
	}, nil
}

// renderEnvironmentVariable never exposes the value.
func (h *Handler) renderEnvironmentVariable(req *resource.Request, variable models.EnvironmentVariable) (any, error) {
	slug := req.Scope.Project.Slug
	return environmentVariableResponse{
		PK:       variable.ID,
		Created:  variable.CreatedAt,
		Modified: variable.ModifiedAt,
		Project:  slug,
		Public:   variable.Public,
		Name:     variable.Name,
		Links: selfProjectLinks{
			Self:    apiURL(req, "/projects/%s/environmentvariables/%d/", slug, variable.ID),
			Project: apiURL(req, "/projects/%s/", slug),
		},
	}, nil
}

// notificationRenderer links each notification under the collection route
// it was listed or fetched through.
func (h *Handler) notificationRenderer(collection string) func(*resource.Request, models.Notification) (any, error) {
	return func(req *resource.Request, notification models.Notification) (any, error) {
		return h.renderNotification(req, expandRoute(req, collection), notification)
	}
}

// expandRoute fills the {param} segments of a route pattern from the
// request.
func expandRoute(req *resource.Request, pattern string) string {
	segments := strings.Split(pattern, "/")
	for i, segment := range segments {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			segments[i] = url.PathEscape(req.Param(strings.Trim(segment, "{}")))
		}
	}
	return strings.Join(segments, "/")
}

func (h *Handler) renderNotification(req *resource.Request, collection string, notification models.Notification) (any, error) {
	format := notification.Format
	if format == nil {
		format = map[string]string{}
	}
	return notificationResponse{
		ID:                    notification.ID,
		MessageID:             notification.MessageID,
		State:                 notification.State,
		Dismissable:           notification.Dismissable,
		News:                  notification.News,
		AttachedToContentType: string(notification.AttachedTo.Kind),
		AttachedToID:          notification.AttachedTo.ID,
		FormatValues:          format,
		Created:               notification.CreatedAt,
		Modified:              notification.ModifiedAt,
		Links:                 selfLinks{Self: apiURL(req, "%s%d/", collection, notification.ID)},
	}, nil
}

func (h *Handler) organizationBody(req *resource.Request, org models.Organization, teams bool) (*organizationResponse, error) {
	owners, err := h.users(req, org.OwnerIDs)
	if err != nil {
		return nil, err
	}
	body := &organizationResponse{
		Slug:        org.Slug,
		Name:        org.Name,
		Created:     org.CreatedAt,
		Modified:    org.ModifiedAt,
		Email:       org.Email,
		URL:         org.URL,
		Description: org.Description,
		Disabled:    org.Disabled,
		Owners:      owners,
		Links: organizationLinks{
			Self:          apiURL(req, "/organizations/%s/", org.Slug),
			Projects:      apiURL(req, "/organizations/%s/projects/", org.Slug),
			Notifications: apiURL(req, "/organizations/%s/notifications/", org.Slug),
		},
	}
	if teams {
		list, err := h.Store.ListTeams(req.Context(), org.ID)
		if err != nil {
			return nil, err
		}
		body.Teams = []teamResponse{}
		for _, team := range list {
			rendered, err := h.teamBody(req, team)
			if err != nil {
				return nil, err
			}
			body.Teams = append(body.Teams, rendered)
		}
	}
	return body, nil
}

func (h *Handler) teamBody(req *resource.Request, team models.Team) (teamResponse, error) {
	members, err := h.users(req, team.MemberIDs)
	if err != nil {
		return teamResponse{}, err
	}
	return teamResponse{
		Slug:    team.Slug,
		Name:    team.Name,
		Access:  team.Access,
		Created: team.CreatedAt,
		Members: members,
	}, nil
}

func remoteOrganizationBody(org models.RemoteOrganization) *remoteOrganizationResponse {
	return &remoteOrganizationResponse{
		PK:          org.ID,
		Slug:        org.Slug,
		RemoteID:    org.RemoteID,
		Name:        org.Name,
		AvatarURL:   org.AvatarURL,
		URL:         org.URL,
		VCSProvider: org.VCSProvider,
		Created:     org.CreatedAt,
		Modified:    org.ModifiedAt,
	}
}
