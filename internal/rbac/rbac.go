package rbac

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleEditor      Role = "editor"
	RoleContributor Role = "contributor"
	RolePresident   Role = "president"
	RoleViewer      Role = "viewer"
)

// Roles are independent tags, not a ladder: a contributor holds
// department-scoped rights that neither editor nor president imply.
// Every operation names its allowed set explicitly.

func HasAny(role Role, allowed ...Role) bool {
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}

// CanModerate reports whether role may approve, reject, pin or delete a
// submission. Contributors qualify only for their own department;
// departmentMatch carries that check.
func CanModerate(role Role, departmentMatch bool) bool {
	if HasAny(role, RoleAdmin, RoleEditor, RolePresident) {
		return true
	}
	return role == RoleContributor && departmentMatch
}

// CanPublish reports whether role may publish or unpublish a global issue,
// or upload the global newsletter PDF.
func CanPublish(role Role) bool {
	return HasAny(role, RoleAdmin, RolePresident)
}

// CanUploadDepartment reports whether role may upload a department
// newsletter. Contributors are limited to their assigned department.
func CanUploadDepartment(role Role, departmentMatch bool) bool {
	if HasAny(role, RoleAdmin, RolePresident) {
		return true
	}
	return role == RoleContributor && departmentMatch
}

// CanManageNotices reports whether role may create, edit or remove notice
// board entries.
func CanManageNotices(role Role) bool {
	return HasAny(role, RoleAdmin, RoleEditor, RolePresident)
}

func Valid(role string) bool {
	switch Role(role) {
	case RoleAdmin, RoleEditor, RoleContributor, RolePresident, RoleViewer:
		return true
	default:
		return false
	}
}
