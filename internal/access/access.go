// Package access decides whether a caller may perform an action on an API
// resource. Callers are reduced to a set of roles relative to the resolved
// parents and the roles are checked against an embedded casbin policy.
package access

import (
	"bytes"
	"embed"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"

	"docsplatform/internal/models"
)

//go:embed model.conf policy.csv
var embedFS embed.FS

// Role is a caller's relationship to the resolved parents of a request.
type Role string

const (
	RoleAuthenticated Role = "authenticated"
	RoleSelf          Role = "self"
	RoleProjectReader Role = "project_reader"
	RoleProjectAdmin  Role = "project_admin"
	RoleOrgMember     Role = "org_member"
	RoleOrgAdmin      Role = "org_admin"
)

// Verb is the coarse operation class checked by the policy.
type Verb string

const (
	Read  Verb = "read"
	Write Verb = "write"
)

// Policy objects. Each routed resource names exactly one.
const (
	ObjectProjects                  = "projects"
	ObjectProject                   = "project"
	ObjectSubprojects               = "subprojects"
	ObjectTranslations              = "translations"
	ObjectVersions                  = "versions"
	ObjectBuilds                    = "builds"
	ObjectProjectNotifications      = "project_notifications"
	ObjectBuildNotifications        = "build_notifications"
	ObjectRedirects                 = "redirects"
	ObjectEnvironmentVariables      = "environmentvariables"
	ObjectNotifications             = "notifications"
	ObjectUserNotifications         = "user_notifications"
	ObjectOrganizationProjects      = "organization_projects"
	ObjectOrganizationNotifications = "organization_notifications"
	ObjectRemoteRepositories        = "remoterepositories"
	ObjectRemoteOrganizations       = "remoteorganizations"
)

// Policy wraps a casbin enforcer loaded from the embedded model and rules.
type Policy struct {
	enforcer *casbin.Enforcer
	objects  map[string]bool
}

// NewPolicy builds the enforcer from the embedded model and policy.
func NewPolicy() (*Policy, error) {
	modelText, err := embedFS.ReadFile("model.conf")
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(string(modelText))
	if err != nil {
		return nil, fmt.Errorf("parse access model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	policies, groupings, err := loadRules()
	if err != nil {
		return nil, err
	}
	if _, err := enforcer.AddPolicies(policies); err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	if _, err := enforcer.AddGroupingPolicies(groupings); err != nil {
		return nil, fmt.Errorf("load role links: %w", err)
	}
	objects := make(map[string]bool, len(policies))
	for _, rule := range policies {
		if len(rule) > 1 {
			objects[rule[1]] = true
		}
	}
	return &Policy{enforcer: enforcer, objects: objects}, nil
}

func loadRules() (policies, groupings [][]string, err error) {
	raw, err := embedFS.ReadFile("policy.csv")
	if err != nil {
		return nil, nil, err
	}
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse access policy: %w", err)
	}
	for _, record := range records {
		if len(record) < 2 {
			continue
		}
		rule := make([]string, 0, len(record)-1)
		for _, field := range record[1:] {
			rule = append(rule, strings.TrimSpace(field))
		}
		switch strings.TrimSpace(record[0]) {
		case "p":
			policies = append(policies, rule)
		case "g":
			groupings = append(groupings, rule)
		}
	}
	return policies, groupings, nil
}

// Allowed reports whether any of the roles grants verb on object.
func (p *Policy) Allowed(roles []Role, object string, verb Verb) (bool, error) {
	for _, role := range roles {
		ok, err := p.enforcer.Enforce(string(role), object, string(verb))
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Objects lists every object the loaded policy grants something on.
func (p *Policy) Objects() map[string]bool {
	objects := make(map[string]bool, len(p.objects))
	for object := range p.objects {
		objects[object] = true
	}
	return objects
}

// Subject is the caller plus whatever parents the request resolved.
type Subject struct {
	User         *models.User
	TargetUserID int64
	Project      *models.Project
	Organization *models.Organization
	Teams        []models.Team
}

// Roles derives the caller's roles for the subject. Anonymous callers have
// none. Organization owners administer the organization's projects.
func Roles(s Subject) []Role {
	if s.User == nil {
		return nil
	}
	userID := s.User.ID
	roles := []Role{RoleAuthenticated}
	if s.TargetUserID != 0 && s.TargetUserID == userID {
		roles = append(roles, RoleSelf)
	}

	orgAdmin := s.Organization != nil && s.Organization.IsOwner(userID)
	orgMember := orgAdmin
	if s.Organization != nil && !orgMember {
		for _, team := range s.Teams {
			if team.OrganizationID == s.Organization.ID && team.HasMember(userID) {
				orgMember = true
				break
			}
		}
	}
	if orgAdmin {
		roles = append(roles, RoleOrgAdmin)
	} else if orgMember {
		roles = append(roles, RoleOrgMember)
	}

	if s.Project != nil {
		projectAdmin := s.Project.IsAdmin(userID)
		if !projectAdmin && orgAdmin && s.Project.OrganizationID != nil && *s.Project.OrganizationID == s.Organization.ID {
			projectAdmin = true
		}
		if !projectAdmin && s.Organization != nil {
			for _, team := range s.Teams {
				if team.Access == models.TeamAccessAdmin && team.HasMember(userID) && containsID(team.ProjectIDs, s.Project.ID) {
					projectAdmin = true
					break
				}
			}
		}
		if projectAdmin {
			roles = append(roles, RoleProjectAdmin)
		} else {
			roles = append(roles, RoleProjectReader)
		}
	}
	return roles
}

func containsID(ids []int64, id int64) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
