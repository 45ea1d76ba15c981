package hiveclient

import "net/http"

type tokenSource interface {
	Get() string
}

type csrfSource interface {
	Read() string
}

// Transport attaches the bearer token and, on mutations, the CSRF header.
// Both values are read when the request is sent, never when it is built.
type Transport struct {
	Base       http.RoundTripper
	Tokens     tokenSource
	CSRF       csrfSource
	CSRFHeader string
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())

	if t.Tokens != nil && out.Header.Get("Authorization") == "" {
		if token := t.Tokens.Get(); token != "" {
			out.Header.Set("Authorization", "Bearer "+token)
		}
	}

	if isMutation(out.Method) && t.CSRF != nil {
		if csrf := t.CSRF.Read(); csrf != "" {
			out.Header.Set(t.header(), csrf)
		}
	}

	return t.base().RoundTrip(out)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) header() string {
	if t.CSRFHeader != "" {
		return t.CSRFHeader
	}
	return DefaultCSRFHeader
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
