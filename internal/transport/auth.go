package transport

import "strings"

// TokenAuth authenticates a bearer token against an admin token and a set
// of regular tokens, mirroring the original ws/http transports' auth rule:
// the admin token wins ties, a regular token grants non-admin access, and
// an empty configuration (no admin token, no regular tokens) allows
// unauthenticated access as a non-admin.
type TokenAuth struct {
	AdminToken string
	Tokens     []string
}

// Authenticate reports whether token is accepted and, if so, whether it
// grants admin access. ok is false for a present-but-invalid token; when
// no token is configured at all, an empty token is accepted as non-admin.
func (a TokenAuth) Authenticate(token string) (isAdmin bool, ok bool) {
	if token == "" {
		if a.AdminToken == "" && len(a.Tokens) == 0 {
			return false, true
		}
		return false, false
	}
	if a.AdminToken != "" && token == a.AdminToken {
		return true, true
	}
	for _, t := range a.Tokens {
		if t == token {
			return false, true
		}
	}
	return false, false
}

// ExtractBearer pulls the token out of an "Authorization: Bearer <token>"
// header value, case-insensitively. Returns "" if the header isn't a
// bearer-scheme value.
func ExtractBearer(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
