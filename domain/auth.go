package domain

import "fmt"

// AuthPolicy selects how authentication state is tracked.
type AuthPolicy string

const (
	// AuthServerSession keeps sessions on the server behind a cookie.
	AuthServerSession AuthPolicy = "server-session"
	// AuthClientFlag trusts a client-side flag; the server does not gate boards.
	AuthClientFlag AuthPolicy = "client-flag-only"
)

// ParseAuthPolicy validates a configured policy name.
func ParseAuthPolicy(s string) (AuthPolicy, error) {
	switch AuthPolicy(s) {
	case AuthServerSession, AuthClientFlag:
		return AuthPolicy(s), nil
	case "":
		return AuthServerSession, nil
	default:
		return "", fmt.Errorf("unknown auth policy %q", s)
	}
}
