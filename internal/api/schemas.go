package api

import (
	"net/http"
	"regexp"
	"strings"

	"docsplatform/internal/models"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

type repositoryInput struct {
	URL  string `json:"url" validate:"required,max=255,git_url"`
	Type string `json:"type" validate:"omitempty,oneof=git"`
}

func (r *repositoryInput) model() models.Repository {
	return models.Repository{URL: strings.TrimSpace(r.URL), Type: r.Type}
}

// projectImportInput is the only shape accepted when importing a project.
// Read-only fields such as slug, users and default_branch are derived.
type projectImportInput struct {
	Name                string          `json:"name" validate:"required,max=63"`
	Repository          repositoryInput `json:"repository" validate:"required"`
	Language            string          `json:"language" validate:"omitempty,bcp47_language_tag"`
	ProgrammingLanguage string          `json:"programming_language" validate:"omitempty,max=20"`
	Homepage            string          `json:"homepage" validate:"omitempty,url"`
	Tags                []string        `json:"tags" validate:"omitempty,max=20,dive,max=100"`
}

type projectUpdateInput struct {
	Name                  *string          `json:"name" validate:"required,max=63"`
	Description           *string          `json:"description" validate:"omitempty,max=1024"`
	Repository            *repositoryInput `json:"repository" validate:"required"`
	Language              *string          `json:"language" validate:"omitempty,bcp47_language_tag"`
	ProgrammingLanguage   *string          `json:"programming_language" validate:"omitempty,max=20"`
	Homepage              *string          `json:"homepage" validate:"omitempty,url"`
	DefaultVersion        *string          `json:"default_version" validate:"omitempty,max=255"`
	DefaultBranch         *string          `json:"default_branch" validate:"omitempty,max=255"`
	PrivacyLevel          *string          `json:"privacy_level" validate:"omitempty,oneof=public private"`
	ExternalBuildsEnabled *bool            `json:"external_builds_enabled"`
	Tags                  *[]string        `json:"tags" validate:"omitempty,max=20,dive,max=100"`
}

func (in *projectUpdateInput) update() storage.ProjectUpdate {
	update := storage.ProjectUpdate{
		Name:                  in.Name,
		Description:           in.Description,
		Language:              in.Language,
		ProgrammingLanguage:   in.ProgrammingLanguage,
		Homepage:              in.Homepage,
		DefaultVersion:        in.DefaultVersion,
		DefaultBranch:         in.DefaultBranch,
		Privacy:               in.PrivacyLevel,
		ExternalBuildsEnabled: in.ExternalBuildsEnabled,
		Tags:                  in.Tags,
	}
	if in.Repository != nil {
		repo := in.Repository.model()
		update.Repository = &repo
	}
	return update
}

type subprojectCreateInput struct {
	Child string `json:"child" validate:"required,max=63"`
	Alias string `json:"alias" validate:"omitempty,max=255"`
}

type versionUpdateInput struct {
	Active       *bool   `json:"active" validate:"required"`
	Hidden       *bool   `json:"hidden"`
	PrivacyLevel *string `json:"privacy_level" validate:"omitempty,oneof=public private"`
}

type redirectInput struct {
	Type        *string `json:"type" validate:"required,oneof=page exact clean_url_to_html html_to_clean_url clean_url_without_trailing_slash clean_url_with_trailing_slash"`
	FromURL     *string `json:"from_url" validate:"omitempty,max=255"`
	ToURL       *string `json:"to_url" validate:"omitempty,max=255"`
	HTTPStatus  *int    `json:"http_status" validate:"omitempty,oneof=301 302"`
	Force       *bool   `json:"force"`
	Enabled     *bool   `json:"enabled"`
	Position    *int    `json:"position" validate:"omitempty,min=0"`
	Description *string `json:"description" validate:"omitempty,max=255"`
}

// checkRedirect enforces the per-type URL rules against the merged redirect.
func checkRedirect(redirect models.Redirect) error {
	verr := &resource.ValidationError{}
	switch redirect.Type {
	case models.RedirectTypePage, models.RedirectTypeExact:
		if strings.TrimSpace(redirect.FromURL) == "" {
			verr.Add("from_url", "this field is required for this redirect type")
		}
		if strings.TrimSpace(redirect.ToURL) == "" {
			verr.Add("to_url", "this field is required for this redirect type")
		}
		if i := strings.Index(redirect.FromURL, "*"); i >= 0 && i != len(redirect.FromURL)-1 {
			verr.Add("from_url", "the * wildcard must be at the end of the path")
		}
		if strings.Contains(redirect.ToURL, ":splat") && !strings.HasSuffix(redirect.FromURL, "*") {
			verr.Add("to_url", "the :splat placeholder requires a * wildcard in from_url")
		}
	default:
		if redirect.FromURL != "" {
			verr.Add("from_url", "this field must be empty for this redirect type")
		}
		if redirect.ToURL != "" {
			verr.Add("to_url", "this field must be empty for this redirect type")
		}
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func (in *redirectInput) apply(redirect *models.Redirect) {
	if in.Type != nil {
		redirect.Type = *in.Type
	}
	if in.FromURL != nil {
		redirect.FromURL = strings.TrimSpace(*in.FromURL)
	}
	if in.ToURL != nil {
		redirect.ToURL = strings.TrimSpace(*in.ToURL)
	}
	if in.HTTPStatus != nil {
		redirect.HTTPStatus = *in.HTTPStatus
	}
	if in.Force != nil {
		redirect.ForceRedirect = *in.Force
	}
	if in.Enabled != nil {
		redirect.Enabled = *in.Enabled
	}
	if in.Description != nil {
		redirect.Description = *in.Description
	}
	if redirect.HTTPStatus == 0 {
		redirect.HTTPStatus = http.StatusFound
	}
}

func (in *redirectInput) update() storage.RedirectUpdate {
	return storage.RedirectUpdate{
		Type:          in.Type,
		FromURL:       in.FromURL,
		ToURL:         in.ToURL,
		HTTPStatus:    in.HTTPStatus,
		ForceRedirect: in.Force,
		Enabled:       in.Enabled,
		Position:      in.Position,
		Description:   in.Description,
	}
}

var environmentVariableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type environmentVariableInput struct {
	Name   string `json:"name" validate:"required,max=128"`
	Value  string `json:"value" validate:"required,max=48000"`
	Public bool   `json:"public"`
}

func (in *environmentVariableInput) check() error {
	if !environmentVariableName.MatchString(in.Name) {
		return resource.NewValidationError("name", "use only letters, digits and underscores, not starting with a digit")
	}
	if strings.HasPrefix(strings.ToUpper(in.Name), "DOCSPLATFORM") {
		return resource.NewValidationError("name", "names starting with DOCSPLATFORM are reserved")
	}
	return nil
}

type notificationUpdateInput struct {
	State *string `json:"state" validate:"required,oneof=unread read dismissed cancelled"`
}

type loginInput struct {
	Username string `json:"username" validate:"required,max=150"`
	Password string `json:"password" validate:"required"`
}

var (
	projectImportSchema = resource.WriteSchema{Name: "project-import", New: func() any { return &projectImportInput{} }}
	projectUpdateSchema = resource.WriteSchema{Name: "project-update", New: func() any { return &projectUpdateInput{} }}

	subprojectCreateSchema  = resource.WriteSchema{Name: "subproject-create", New: func() any { return &subprojectCreateInput{} }}
	subprojectDestroySchema = resource.WriteSchema{Name: "subproject-destroy"}

	versionUpdateSchema      = resource.WriteSchema{Name: "version-update", New: func() any { return &versionUpdateInput{} }}
	buildCreateSchema        = resource.WriteSchema{Name: "build-create"}
	redirectSchema           = resource.WriteSchema{Name: "redirect-create", New: func() any { return &redirectInput{} }}
	redirectUpdateSchema     = resource.WriteSchema{Name: "redirect-update", New: func() any { return &redirectInput{} }}
	redirectDestroySchema    = resource.WriteSchema{Name: "redirect-destroy"}
	envVarSchema             = resource.WriteSchema{Name: "environmentvariable-create", New: func() any { return &environmentVariableInput{} }}
	envVarDestroySchema      = resource.WriteSchema{Name: "environmentvariable-destroy"}
	notificationUpdateSchema = resource.WriteSchema{Name: "notification-update", New: func() any { return &notificationUpdateInput{} }}
	loginSchema              = resource.WriteSchema{Name: "login", New: func() any { return &loginInput{} }}
)
