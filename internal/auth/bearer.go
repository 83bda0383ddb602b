package auth

import (
	"errors"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

var (
	ErrMissingBearerToken = errors.New("auth: bearer token required")
	ErrMalformedHeader    = errors.New("auth: authorization header must use the bearer scheme")
)

// BearerToken extracts the token of an "Authorization: Bearer" header. The
// access_token query parameter is accepted for clients that cannot set
// headers, such as EventSource.
func BearerToken(r *http.Request) (string, error) {
	if r == nil {
		return "", ErrMissingBearerToken
	}
	header := r.Header.Get("Authorization")
	if strings.TrimSpace(header) == "" {
		if token := strings.TrimSpace(r.URL.Query().Get("access_token")); token != "" {
			return token, nil
		}
		return "", ErrMissingBearerToken
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMalformedHeader
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", ErrMissingBearerToken
	}
	return token, nil
}
