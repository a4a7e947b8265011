package auth

import (
	"net/http"
	"strings"
)

// TokenSource records where a credential was found.
type TokenSource string

const (
	SourceNone   TokenSource = ""
	SourceCookie TokenSource = "cookie"
	SourceAuth   TokenSource = "auth"
	SourceHeader TokenSource = "header"
)

// Handshake holds the credential candidates presented when a transport opens.
type Handshake struct {
	Cookie        string
	AuthToken     string
	Authorization string
}

// HandshakeFromRequest collects candidates from the opening HTTP request.
// The auth field travels as the "token" query parameter because browsers
// cannot set headers on a WebSocket upgrade.
func HandshakeFromRequest(r *http.Request, cookieName string) Handshake {
	var h Handshake
	if c, err := r.Cookie(cookieName); err == nil {
		h.Cookie = c.Value
	}
	h.AuthToken = r.URL.Query().Get("token")
	h.Authorization = r.Header.Get("Authorization")
	return h
}

// Token returns the first non-empty candidate: cookie, auth field, then
// bearer header.
func (h Handshake) Token() (string, TokenSource) {
	if v := strings.TrimSpace(h.Cookie); v != "" {
		return v, SourceCookie
	}
	if v := strings.TrimSpace(h.AuthToken); v != "" {
		return v, SourceAuth
	}
	if v := bearerToken(h.Authorization); v != "" {
		return v, SourceHeader
	}
	return "", SourceNone
}

func bearerToken(header string) string {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
