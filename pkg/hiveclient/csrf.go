package hiveclient

import (
	"net/http"
	"net/url"
)

const (
	DefaultCSRFCookie = "hive_csrf"
	DefaultCSRFHeader = "X-CSRF-Token"
)

// CSRFReader looks the CSRF cookie up in the jar each time it is asked.
type CSRFReader struct {
	jar  http.CookieJar
	base *url.URL
	name string
}

func NewCSRFReader(jar http.CookieJar, base *url.URL, name string) *CSRFReader {
	if name == "" {
		name = DefaultCSRFCookie
	}
	return &CSRFReader{jar: jar, base: base, name: name}
}

// Read returns the unescaped cookie value, or "" if the cookie is absent.
func (r *CSRFReader) Read() string {
	if r == nil || r.jar == nil || r.base == nil {
		return ""
	}

	for _, c := range r.jar.Cookies(r.base) {
		if c.Name == r.name {
			return unescapeCookie(c.Value)
		}
	}
	return ""
}

// ParseCookieValue extracts name from a Cookie header line such as
// "k1=v1; k2=v2". A malformed line yields "".
func ParseCookieValue(cookieHeader string, name string) string {
	cookies, err := http.ParseCookie(cookieHeader)
	if err != nil {
		return ""
	}
	for _, c := range cookies {
		if c.Name == name {
			return unescapeCookie(c.Value)
		}
	}
	return ""
}

func unescapeCookie(raw string) string {
	value, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	return value
}
