package model

import "fmt"

// Role is the author of a transcript entry.
type Role int8

const (
	RoleUser = Role(iota)
	RoleAssistant
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("role(%d)", int8(r))
	}
}

func ParseRole(s string) (Role, error) {
	switch s {
	case "user":
		return RoleUser, nil
	case "assistant", "bot":
		return RoleAssistant, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	switch r {
	case RoleUser, RoleAssistant:
		return []byte(r.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, int8(r))
	}
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

type UserRole int8

const (
	UserRoleDefault = UserRole(iota)
	UserRoleAdmin
	UserRolePremium
)

func ParseUserRole(s string) UserRole {
	switch s {
	case "admin":
		return UserRoleAdmin
	case "premium":
		return UserRolePremium
	default:
		return UserRoleDefault
	}
}

// Unlimited reports whether the role bypasses the free message limit.
func (r UserRole) Unlimited() bool {
	return r == UserRoleAdmin || r == UserRolePremium
}
