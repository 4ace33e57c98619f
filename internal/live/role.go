package live

import "fmt"

// Role is the capability a ticket grants on a streaming connection. It is a
// closed set, checked once at the service boundary.
type Role string

const (
	RoleScorer Role = "scorer"
	RoleViewer Role = "viewer"
)

// ParseRole validates a client-supplied role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleScorer, RoleViewer:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}
