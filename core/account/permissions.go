package account

// Every rule switches over the whole Role set; a new role must be placed in each of them.

func (r Role) CanAuthorTemplates() bool {
	switch r {
	case RoleLecturer, RoleHeadOfDepartment, RoleAdmin:
		return true
	case RoleStudent, RoleStaff, RoleUnknown:
		return false
	}
	return false
}

// CanDecideTemplates covers approving, rejecting and assigning templates to classes.
func (r Role) CanDecideTemplates() bool {
	switch r {
	case RoleHeadOfDepartment, RoleAdmin:
		return true
	case RoleStudent, RoleLecturer, RoleStaff, RoleUnknown:
		return false
	}
	return false
}

func (r Role) CanGradeSubmissions() bool {
	switch r {
	case RoleLecturer, RoleHeadOfDepartment, RoleAdmin:
		return true
	case RoleStudent, RoleStaff, RoleUnknown:
		return false
	}
	return false
}

func (r Role) CanDeleteGroups() bool {
	switch r {
	case RoleLecturer, RoleHeadOfDepartment, RoleStaff, RoleAdmin:
		return true
	case RoleStudent, RoleUnknown:
		return false
	}
	return false
}

func (r Role) CanReadAudit() bool {
	switch r {
	case RoleHeadOfDepartment, RoleStaff, RoleAdmin:
		return true
	case RoleStudent, RoleLecturer, RoleUnknown:
		return false
	}
	return false
}

// GradesAsPeer reports whether milestone grades given by r count as peer grades.
// ok is false for roles that cannot grade milestones at all.
func (r Role) GradesAsPeer() (peer bool, ok bool) {
	switch r {
	case RoleStudent:
		return true, true
	case RoleLecturer, RoleHeadOfDepartment, RoleAdmin:
		return false, true
	case RoleStaff, RoleUnknown:
		return false, false
	}
	return false, false
}
