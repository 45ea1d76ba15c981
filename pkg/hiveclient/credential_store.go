package hiveclient

import "sync"

// CredentialStore holds the current access token in memory only. The
// controller writes it; the transport reads it on every request.
type CredentialStore struct {
	mu    sync.RWMutex
	token string
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

// Get returns the current access token, or "" when there is none.
func (s *CredentialStore) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *CredentialStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *CredentialStore) Clear() {
	s.Set("")
}
