package account

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Role is the closed set of portal roles carried by identity tokens.
type Role int

const (
	RoleUnknown Role = iota
	RoleStudent
	RoleLecturer
	RoleHeadOfDepartment
	RoleStaff
	RoleAdmin
)

var (
	ErrUnknownRole = errors.New("unknown role")

	roleNames = map[Role]string{
		RoleStudent:          "Student",
		RoleLecturer:         "Lecturer",
		RoleHeadOfDepartment: "HeadOfDepartment",
		RoleStaff:            "Staff",
		RoleAdmin:            "Admin",
	}
)

// AllRoles lists every known role, lowest privilege first.
func AllRoles() []Role {
	return []Role{RoleStudent, RoleLecturer, RoleHeadOfDepartment, RoleStaff, RoleAdmin}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "Unknown"
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole accepts the canonical names case-insensitively, plus a few aliases used by the identity provider.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student":
		return RoleStudent, nil
	case "lecturer", "teacher":
		return RoleLecturer, nil
	case "headofdepartment", "head_of_department", "departmenthead", "hod":
		return RoleHeadOfDepartment, nil
	case "staff":
		return RoleStaff, nil
	case "admin":
		return RoleAdmin, nil
	}
	return RoleUnknown, errors.Wrap(ErrUnknownRole, s)
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "decoding role")
	}
	role, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = role
	return nil
}
