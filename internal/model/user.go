package model

import "time"

type HiveType string

const (
	HiveTypeFamily       HiveType = "family"
	HiveTypeOrganization HiveType = "organization"
)

func (t HiveType) Valid() bool {
	return t == HiveTypeFamily || t == HiveTypeOrganization
}

// OwnerRole is the role given to the person who creates the hive.
func (t HiveType) OwnerRole() string {
	if t == HiveTypeOrganization {
		return RoleOrgAdmin
	}
	return RoleParent
}

const (
	RoleParent   = "parent"
	RoleChild    = "child"
	RoleOrgAdmin = "org_admin"
	RoleMember   = "member"
)

// ValidRole reports whether role exists for the given hive type.
func ValidRole(t HiveType, role string) bool {
	switch t {
	case HiveTypeFamily:
		return role == RoleParent || role == RoleChild
	case HiveTypeOrganization:
		return role == RoleOrgAdmin || role == RoleMember
	}
	return false
}

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	DisplayName   string    `json:"display_name"`
	Locale        string    `json:"locale"`
	IsSystemAdmin bool      `json:"is_system_admin"`
	LastHiveID    string    `json:"last_hive_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (u User) View() UserView {
	return UserView{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, IsSystemAdmin: u.IsSystemAdmin}
}

type Hive struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      HiveType  `json:"type"`
	Locale    string    `json:"locale"`
	CreatedAt time.Time `json:"created_at"`
}

func (h Hive) View() HiveView {
	return HiveView{ID: h.ID, Name: h.Name, Type: h.Type}
}

// Person is a user's membership record inside one hive.
type Person struct {
	ID          string    `json:"id"`
	HiveID      string    `json:"hive_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

type Membership struct {
	Hive   Hive
	Person Person
}

type Permission string

const (
	PermissionMembersInvite Permission = "members.invite"
	PermissionMembersManage Permission = "members.manage"
	PermissionHiveSettings  Permission = "hive.settings"
)

// PermissionOverride is a per-hive grant or revocation layered over the
// static role table.
type PermissionOverride struct {
	Role       string
	Permission Permission
	Granted    bool
}

type AuthClaims struct {
	UserID    string    `json:"sub"`
	HiveID    string    `json:"hid"`
	PersonID  string    `json:"pid"`
	SessionID string    `json:"sid"`
	TokenID   string    `json:"jti"`
	ExpiresAt time.Time `json:"exp"`
}

// DeviceInfo describes the client that opened or is using a session.
type DeviceInfo struct {
	UserAgent string
	IP        string
}
