package validators

import (
	"errors"
	"strings"
)

var ErrMissingToken = errors.New("missing bearer token")

// BearerToken extracts the token from an Authorization header value. The
// "Bearer" scheme is optional and case-insensitive.
func BearerToken(raw string) (string, error) {
	token := strings.TrimSpace(raw)
	switch lower := strings.ToLower(token); {
	case lower == "bearer":
		token = ""
	case strings.HasPrefix(lower, "bearer "):
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
