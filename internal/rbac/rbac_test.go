package rbac

import "testing"

func TestCanModerateAllowsGlobalModerators(t *testing.T) {
	for _, role := range []Role{RoleAdmin, RoleEditor, RolePresident} {
		if !CanModerate(role, false) {
			t.Fatalf("expected %s to moderate without department match", role)
		}
	}
}

func TestCanModerateContributorRequiresDepartmentMatch(t *testing.T) {
	if CanModerate(RoleContributor, false) {
		t.Fatalf("contributor must not moderate outside own department")
	}
	if !CanModerate(RoleContributor, true) {
		t.Fatalf("contributor should moderate own department")
	}
}

func TestCanModerateDeniesViewer(t *testing.T) {
	if CanModerate(RoleViewer, true) {
		t.Fatalf("viewer must never moderate, department match is irrelevant")
	}
}

func TestCanPublishIsAdminOrPresidentOnly(t *testing.T) {
	cases := map[Role]bool{
		RoleAdmin:       true,
		RolePresident:   true,
		RoleEditor:      false,
		RoleContributor: false,
		RoleViewer:      false,
	}
	for role, want := range cases {
		if got := CanPublish(role); got != want {
			t.Fatalf("CanPublish(%s) = %v, want %v", role, got, want)
		}
	}
}

func TestCanUploadDepartment(t *testing.T) {
	if !CanUploadDepartment(RolePresident, false) {
		t.Fatalf("president uploads to any department")
	}
	if CanUploadDepartment(RoleEditor, true) {
		t.Fatalf("editor has no upload rights even with a department match")
	}
	if !CanUploadDepartment(RoleContributor, true) {
		t.Fatalf("contributor uploads to own department")
	}
	if CanUploadDepartment(RoleContributor, false) {
		t.Fatalf("contributor must not upload to other departments")
	}
}

func TestValid(t *testing.T) {
	for _, role := range []string{"admin", "editor", "contributor", "president", "viewer"} {
		if !Valid(role) {
			t.Fatalf("expected %s to be valid", role)
		}
	}
	if Valid("moderator") || Valid("") {
		t.Fatalf("unknown roles must be rejected")
	}
}
