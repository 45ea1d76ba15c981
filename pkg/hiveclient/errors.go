package hiveclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotAuthenticated = errors.New("hiveclient: not authenticated")
	// ErrSuperseded is returned when a newer call or a logout overtook this
	// one and its result was dropped.
	ErrSuperseded = errors.New("hiveclient: result superseded by a newer call")
)

// APIError is a non-2xx response decoded from the server envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%d): %s (%s)", e.Code, e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

func IsUnauthorized(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.Status == http.StatusUnauthorized && apiErr.Code != "INVALID_CREDENTIALS"
}

func IsForbidden(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.Status == http.StatusForbidden
}

func IsValidation(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.Code == "VALIDATION"
}

func IsInvalidCredentials(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.Code == "INVALID_CREDENTIALS"
}

type CeremonyKind int

const (
	// CeremonyCancelled means the user dismissed the platform prompt.
	CeremonyCancelled CeremonyKind = iota + 1
	CeremonyFailed
	ServerRejected
)

func (k CeremonyKind) String() string {
	switch k {
	case CeremonyCancelled:
		return "cancelled"
	case CeremonyFailed:
		return "failed"
	case ServerRejected:
		return "server_rejected"
	}
	return "unknown"
}

type CeremonyError struct {
	Kind    CeremonyKind
	Message string
	Err     error
}

func (e *CeremonyError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("passkey %s: %s", e.Kind, e.Message)
	}
	return "passkey " + e.Kind.String()
}

func (e *CeremonyError) Unwrap() error { return e.Err }

// Silent reports whether the error should be swallowed by the UI.
func (e *CeremonyError) Silent() bool { return e.Kind == CeremonyCancelled }
