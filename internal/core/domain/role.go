package domain

import "strings"

type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleOwner      Role = "OWNER"
	RoleAdmin      Role = "ADMIN"
	RolePM         Role = "PM"
	RoleDeveloper  Role = "DEVELOPER"
	RoleViewer     Role = "VIEWER"
)

var roleRank = map[Role]int{
	RoleViewer:     1,
	RoleDeveloper:  2,
	RolePM:         3,
	RoleAdmin:      4,
	RoleOwner:      5,
	RoleSuperAdmin: 6,
}

// ParseRole accepts any casing, unknown roles come back empty
func ParseRole(s string) Role {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := roleRank[r]; !ok {
		return ""
	}
	return r
}

// AtLeast reports whether r grants every permission of min
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

// Principal is the authenticated caller of an API request
type Principal struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}
