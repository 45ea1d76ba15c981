package service

import "hive-auth/internal/model"

// Authorizer answers whether a role inside a hive type holds a permission,
// taking the hive's stored overrides into account.
type Authorizer interface {
	Allowed(hiveType model.HiveType, role string, permission model.Permission, overrides []model.PermissionOverride) bool
}

type RoleAuthorizer struct {
	grants map[model.HiveType]map[string]map[model.Permission]bool
}

func NewRoleAuthorizer() *RoleAuthorizer {
	all := map[model.Permission]bool{
		model.PermissionMembersInvite: true,
		model.PermissionMembersManage: true,
		model.PermissionHiveSettings:  true,
	}

	return &RoleAuthorizer{
		grants: map[model.HiveType]map[string]map[model.Permission]bool{
			model.HiveTypeFamily: {
				model.RoleParent: all,
				model.RoleChild:  {},
			},
			model.HiveTypeOrganization: {
				model.RoleOrgAdmin: all,
				model.RoleMember:   {},
			},
		},
	}
}

func (a *RoleAuthorizer) Allowed(hiveType model.HiveType, role string, permission model.Permission, overrides []model.PermissionOverride) bool {
	for _, o := range overrides {
		if o.Role == role && o.Permission == permission {
			return o.Granted
		}
	}
	return a.grants[hiveType][role][permission]
}
