package hiveclient

import (
	"encoding/json"
	"time"
)

// AuthUser is the client's view of who is signed in and which hive the
// current access token is scoped to.
type AuthUser struct {
	ID            string
	Email         string
	DisplayName   string
	HiveID        string
	HiveName      string
	PersonID      string
	IsSystemAdmin bool
	Locale        string
}

type AuthPayload struct {
	User struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		DisplayName   string `json:"display_name"`
		IsSystemAdmin bool   `json:"is_system_admin"`
	} `json:"user"`
	Hive struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"hive"`
	PersonID             string    `json:"person_id"`
	AccessToken          string    `json:"access_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	Locale               string    `json:"locale"`
}

func (p AuthPayload) authUser() *AuthUser {
	return &AuthUser{
		ID:            p.User.ID,
		Email:         p.User.Email,
		DisplayName:   p.User.DisplayName,
		HiveID:        p.Hive.ID,
		HiveName:      p.Hive.Name,
		PersonID:      p.PersonID,
		IsSystemAdmin: p.User.IsSystemAdmin,
		Locale:        p.Locale,
	}
}

type SwitchPayload struct {
	AccessToken          string    `json:"access_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	HiveID               string    `json:"hive_id"`
	HiveName             string    `json:"hive_name"`
	PersonID             string    `json:"person_id"`
	Locale               string    `json:"locale"`
}

type RegisterInput struct {
	Email       string `json:"admin_email"`
	Password    string `json:"admin_password"`
	Name        string `json:"admin_name"`
	HiveName    string `json:"hive_name,omitempty"`
	HiveType    string `json:"hive_type,omitempty"`
	InviteToken string `json:"invite_token,omitempty"`
}

type PasskeyAuthOptions struct {
	Options   json.RawMessage `json:"options"`
	SessionID string          `json:"session_id"`
}

type PasskeySummary struct {
	ID         string     `json:"id"`
	DeviceName string     `json:"device_name,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}
