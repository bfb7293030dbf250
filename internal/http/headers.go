package http

import (
	"net/http"
)

// Headers holds the request defaults shared by listing and file fetches
type Headers struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
}

// NewHeaders returns browser-like defaults with the given user agent
func NewHeaders(userAgent string) Headers {
	return Headers{
		UserAgent:      userAgent,
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
	}
}

// Apply sets the defaults on req. Compression negotiation is left to the caller.
func (h Headers) Apply(req *http.Request) {
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}
	if h.Accept != "" {
		req.Header.Set("Accept", h.Accept)
	}
	if h.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", h.AcceptLanguage)
	}
}
