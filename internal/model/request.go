package model

import "encoding/json"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	AdminEmail    string   `json:"admin_email"`
	AdminPassword string   `json:"admin_password"`
	AdminName     string   `json:"admin_name"`
	HiveName      string   `json:"hive_name"`
	HiveType      HiveType `json:"hive_type"`
	InviteToken   string   `json:"invite_token,omitempty"`
}

type SwitchHiveRequest struct {
	HiveID string `json:"hive_id"`
}

type CreateInvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type PasskeyAuthOptionsRequest struct {
	Email string `json:"email"`
}

type PasskeyVerifyAuthRequest struct {
	SessionID string          `json:"session_id"`
	Response  json.RawMessage `json:"response"`
}

type PasskeyVerifyRegRequest struct {
	Response   json.RawMessage `json:"response"`
	DeviceName string          `json:"device_name"`
}

type AuditQuery struct {
	Action  string
	ActorID string
	HiveID  string
	Status  string
	From    string
	To      string
	Page    int
	Limit   int
}
