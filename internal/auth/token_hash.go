package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var errSessionTokenRequired = errors.New("session token required")

func hashSessionToken(token string) (string, error) {
	if token == "" {
		return "", errSessionTokenRequired
	}
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:]), nil
}

// TokenFromHeader extracts the token from an Authorization header value of
// the form "Token <t>" or "Bearer <t>".
func TokenFromHeader(header string) string {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return ""
	}
	switch strings.ToLower(scheme) {
	case "token", "bearer":
		return strings.TrimSpace(value)
	default:
		return ""
	}
}
