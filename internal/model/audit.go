package model

type AuditEntry struct {
	Action     string `json:"action"`
	OccurredAt string `json:"occurred_at"`
	ActorID    string `json:"actor_id,omitempty"`
	HiveID     string `json:"hive_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	IP         string `json:"ip,omitempty"`
	Status     string `json:"status"`
	Detail     any    `json:"detail,omitempty"`
}
