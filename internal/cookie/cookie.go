// Package cookie owns the two browser cookies of a session: the HttpOnly
// refresh cookie scoped to the auth routes, and the readable CSRF cookie the
// client echoes back in a header.
package cookie

import (
	"net/http"
	"strings"
	"time"

	"hive-auth/internal/security"
)

const (
	DefaultRefreshName = "hive_refresh"
	DefaultCSRFName    = "hive_csrf"
	DefaultCSRFHeader  = "X-CSRF-Token"
	DefaultRefreshPath = "/api/v1/auth"
)

type Policy struct {
	Secure      bool
	Domain      string
	SameSite    http.SameSite
	RefreshName string
	RefreshPath string
	CSRFName    string
	CSRFHeader  string
}

// WithDefaults fills unset names and paths.
func (p Policy) WithDefaults() Policy {
	if p.RefreshName == "" {
		p.RefreshName = DefaultRefreshName
	}
	if p.RefreshPath == "" {
		p.RefreshPath = DefaultRefreshPath
	}
	if p.CSRFName == "" {
		p.CSRFName = DefaultCSRFName
	}
	if p.CSRFHeader == "" {
		p.CSRFHeader = DefaultCSRFHeader
	}
	if p.SameSite == 0 {
		p.SameSite = http.SameSiteStrictMode
	}
	return p
}

func (p Policy) SetRefresh(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.RefreshName,
		Value:    token,
		Path:     p.RefreshPath,
		Domain:   p.Domain,
		Expires:  expiresAt.UTC(),
		MaxAge:   maxAge(expiresAt),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	})
}

func (p Policy) ClearRefresh(w http.ResponseWriter) {
	p.expire(w, p.RefreshName, p.RefreshPath, true)
}

func (p Policy) RefreshFrom(r *http.Request) string {
	return p.value(r, p.RefreshName)
}

// IssueCSRF sets a fresh CSRF cookie and returns its value.
func (p Policy) IssueCSRF(w http.ResponseWriter) (string, error) {
	token, err := security.NewOpaqueToken(security.CSRFTokenBytes)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     p.CSRFName,
		Value:    token,
		Path:     "/",
		Domain:   p.Domain,
		HttpOnly: false,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	})
	return token, nil
}

func (p Policy) ClearCSRF(w http.ResponseWriter) {
	p.expire(w, p.CSRFName, "/", false)
}

func (p Policy) CSRFFrom(r *http.Request) string {
	return p.value(r, p.CSRFName)
}

// ValidCSRF reports whether the CSRF header matches the CSRF cookie.
func (p Policy) ValidCSRF(r *http.Request) bool {
	cookieValue := p.CSRFFrom(r)
	headerValue := strings.TrimSpace(r.Header.Get(p.CSRFHeader))
	if cookieValue == "" || headerValue == "" {
		return false
	}
	return security.ConstantTimeEqual(cookieValue, headerValue)
}

func (p Policy) value(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func (p Policy) expire(w http.ResponseWriter, name string, path string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   p.Domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	})
}

func maxAge(expiresAt time.Time) int {
	seconds := int(time.Until(expiresAt).Seconds())
	if seconds <= 0 {
		return -1
	}
	return seconds
}
