package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsplatform/internal/models"
)

func int64Ptr(v int64) *int64 { return &v }

func TestPolicyMatrix(t *testing.T) {
	policy, err := NewPolicy()
	require.NoError(t, err)

	cases := []struct {
		name    string
		roles   []Role
		object  string
		verb    Verb
		allowed bool
	}{
		{"anonymous has no grants", nil, ObjectProjects, Read, false},
		{"authenticated lists projects", []Role{RoleAuthenticated}, ObjectProjects, Read, true},
		{"reader reads versions", []Role{RoleAuthenticated, RoleProjectReader}, ObjectVersions, Read, true},
		{"reader cannot update versions", []Role{RoleAuthenticated, RoleProjectReader}, ObjectVersions, Write, false},
		{"admin inherits reads", []Role{RoleProjectAdmin}, ObjectBuilds, Read, true},
		{"admin triggers builds", []Role{RoleProjectAdmin}, ObjectBuilds, Write, true},
		{"reader cannot read redirects", []Role{RoleProjectReader}, ObjectRedirects, Read, false},
		{"admin reads environment variables", []Role{RoleProjectAdmin}, ObjectEnvironmentVariables, Read, true},
		{"self reads own notifications", []Role{RoleAuthenticated, RoleSelf}, ObjectUserNotifications, Read, true},
		{"other user cannot read notifications", []Role{RoleAuthenticated}, ObjectUserNotifications, Read, false},
		{"member lists organization projects", []Role{RoleOrgMember}, ObjectOrganizationProjects, Read, true},
		{"member cannot update organization projects", []Role{RoleOrgMember}, ObjectOrganizationProjects, Write, false},
		{"owner updates organization projects", []Role{RoleOrgAdmin}, ObjectOrganizationProjects, Write, true},
		{"member cannot read organization notifications", []Role{RoleOrgMember}, ObjectOrganizationNotifications, Read, false},
		{"owner reads organization notifications", []Role{RoleOrgAdmin}, ObjectOrganizationNotifications, Read, true},
		{"remote repositories are read only", []Role{RoleAuthenticated}, ObjectRemoteRepositories, Write, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := policy.Allowed(tc.roles, tc.object, tc.verb)
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, ok)
		})
	}
}

func TestPolicyObjectsCoverEveryConstant(t *testing.T) {
	policy, err := NewPolicy()
	require.NoError(t, err)
	objects := policy.Objects()
	for _, object := range []string{
		ObjectProjects, ObjectProject, ObjectSubprojects, ObjectTranslations, ObjectVersions, ObjectBuilds,
		ObjectProjectNotifications, ObjectBuildNotifications, ObjectRedirects, ObjectEnvironmentVariables,
		ObjectNotifications, ObjectUserNotifications, ObjectOrganizationProjects, ObjectOrganizationNotifications,
		ObjectRemoteRepositories, ObjectRemoteOrganizations,
	} {
		assert.True(t, objects[object], object)
	}
}

func TestRoles(t *testing.T) {
	owner := &models.User{ID: 1}
	member := &models.User{ID: 2}
	outsider := &models.User{ID: 3}
	org := &models.Organization{ID: 10, OwnerIDs: []int64{1}}
	project := &models.Project{ID: 20, UserIDs: []int64{4}, OrganizationID: int64Ptr(10)}
	teams := []models.Team{{OrganizationID: 10, Access: models.TeamAccessAdmin, MemberIDs: []int64{2}, ProjectIDs: []int64{20}}}

	assert.Nil(t, Roles(Subject{Project: project}))
	assert.ElementsMatch(t, []Role{RoleAuthenticated, RoleOrgAdmin, RoleProjectAdmin},
		Roles(Subject{User: owner, Project: project, Organization: org, Teams: teams}))
	assert.ElementsMatch(t, []Role{RoleAuthenticated, RoleOrgMember, RoleProjectAdmin},
		Roles(Subject{User: member, Project: project, Organization: org, Teams: teams}))
	assert.ElementsMatch(t, []Role{RoleAuthenticated, RoleProjectReader},
		Roles(Subject{User: outsider, Project: project, Organization: org, Teams: teams}))
	assert.ElementsMatch(t, []Role{RoleAuthenticated, RoleProjectAdmin},
		Roles(Subject{User: &models.User{ID: 4}, Project: project}))
	assert.ElementsMatch(t, []Role{RoleAuthenticated, RoleSelf},
		Roles(Subject{User: outsider, TargetUserID: 3}))
}
