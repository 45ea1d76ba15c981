package model

import "time"

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *Meta     `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type UserView struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name"`
	IsSystemAdmin bool   `json:"is_system_admin"`
}

type HiveView struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Type HiveType `json:"type"`
}

// AuthPayload is the login-success shape shared by login, register,
// refresh and passkey verification.
type AuthPayload struct {
	User                 UserView  `json:"user"`
	Hive                 HiveView  `json:"hive"`
	PersonID             string    `json:"person_id"`
	AccessToken          string    `json:"access_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	Locale               string    `json:"locale"`
}

// IssuedSession is what the service hands to the transport layer; the refresh
// token never leaves the server except as a cookie.
type IssuedSession struct {
	Payload          AuthPayload
	SessionID        string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type SwitchPayload struct {
	AccessToken          string    `json:"access_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	HiveID               string    `json:"hive_id"`
	HiveName             string    `json:"hive_name"`
	PersonID             string    `json:"person_id"`
	Locale               string    `json:"locale"`
}

type MeView struct {
	User     UserView         `json:"user"`
	Hive     HiveView         `json:"hive"`
	PersonID string           `json:"person_id"`
	Role     string           `json:"role"`
	Locale   string           `json:"locale"`
	Hives    []MembershipView `json:"hives"`
}

type MembershipView struct {
	HiveID   string   `json:"hive_id"`
	HiveName string   `json:"hive_name"`
	HiveType HiveType `json:"hive_type"`
	PersonID string   `json:"person_id"`
	Role     string   `json:"role"`
}

type SessionSummary struct {
	ID         string    `json:"id"`
	Current    bool      `json:"current"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IP         string    `json:"ip,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type InvitationCreated struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PasskeySummary struct {
	ID         string     `json:"id"`
	DeviceName string     `json:"device_name,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

type PasskeyAuthOptions struct {
	Options   any    `json:"options"`
	SessionID string `json:"session_id"`
}

type PasskeyRegOptions struct {
	Options any `json:"options"`
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
