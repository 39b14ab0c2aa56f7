// Package identity describes who is calling. Credential checks happen upstream; by the time a
// Requester exists the caller has already been authenticated.
package identity

import "strings"

// Roles
const (
	// Admin
	RoleAdmin = "admin:"

	// Teacher
	RoleTeacher = "teacher:"

	// Student
	RoleStudent = "student:"
)

var (
	AllRoles = []string{RoleAdmin, RoleTeacher, RoleStudent}

	rolePriorities = map[string]int{
		RoleAdmin:   30,
		RoleTeacher: 20,
		RoleStudent: 10,
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

// ParseRole accepts "student", "student:" or any casing of those.
func ParseRole(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasSuffix(s, ":") {
		s += ":"
	}
	_, ok := rolePriorities[s]
	return s, ok
}

// Requester is the authenticated caller of an operation.
type Requester struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

func (r Requester) IsAnonymous() bool {
	return r.ID == ""
}

func (r Requester) HasRole(prefix string) bool {
	for _, role := range r.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (r Requester) IsAdmin() bool {
	return r.HasRole(RoleAdmin)
}

func (r Requester) IsTeacher() bool {
	return r.HasRole(RoleTeacher)
}

func (r Requester) IsStudent() bool {
	return r.HasRole(RoleStudent)
}
