package event

import "time"

type Type string

const (
	TypeSessionCreated       Type = "session.created"
	TypeSessionRefreshed     Type = "session.refreshed"
	TypeSessionRevoked       Type = "session.revoked"
	TypeSessionReuseDetected Type = "session.reuse_detected"
	TypeLoginFailed          Type = "login.failed"
	TypeUserRegistered       Type = "user.registered"
	TypeHiveSwitched         Type = "hive.switched"
	TypeInvitationCreated    Type = "invitation.created"
	TypePasskeyRegistered    Type = "passkey.registered"
	TypePasskeyRemoved       Type = "passkey.removed"
	TypePasskeyFailed        Type = "passkey.failed"
)

type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	ActorID   string         `json:"actor_id,omitempty"`
	HiveID    string         `json:"hive_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	IP        string         `json:"ip,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
