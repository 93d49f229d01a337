package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e == nil {
		return "auth error"
	}
	return e.Message
}

// Authenticator checks the bearer token on cache admin routes.
type Authenticator struct {
	token string
}

// NewAuthenticator returns nil for an empty token, which leaves the admin
// routes disabled.
func NewAuthenticator(token string) *Authenticator {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return &Authenticator{token: token}
}

func (a *Authenticator) Authenticate(r *http.Request) error {
	if a == nil {
		return &AuthError{Status: http.StatusServiceUnavailable, Message: "admin routes disabled"}
	}
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok || token == "" {
		return &AuthError{Status: http.StatusUnauthorized, Message: "token required"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
		return &AuthError{Status: http.StatusUnauthorized, Message: "token invalid"}
	}
	return nil
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
