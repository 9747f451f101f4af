// Package rbac holds the two-role permission model for the dev workspace.
package rbac

type Action string

const (
	ActionRead             Action = "read"
	ActionWrite            Action = "write"
	ActionManageObjectives Action = "manage_objectives"
)

const (
	RoleMember   = "member"
	RoleOrgAdmin = "org_admin"
)

var rolePermissions = map[string]map[Action]struct{}{
	RoleMember: {
		ActionRead:  {},
		ActionWrite: {},
	},
	RoleOrgAdmin: {
		ActionRead:             {},
		ActionWrite:            {},
		ActionManageObjectives: {},
	},
}

func Can(role string, action Action) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = perms[action]
	return ok
}
