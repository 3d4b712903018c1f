package account

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "Student", want: RoleStudent},
		{in: " lecturer ", want: RoleLecturer},
		{in: "teacher", want: RoleLecturer},
		{in: "HeadOfDepartment", want: RoleHeadOfDepartment},
		{in: "hod", want: RoleHeadOfDepartment},
		{in: "STAFF", want: RoleStaff},
		{in: "admin", want: RoleAdmin},
		{in: "janitor", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownRole)
				assert.Equal(t, RoleUnknown, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRole_JSON(t *testing.T) {
	for _, r := range AllRoles() {
		data, err := json.Marshal(r)
		require.NoError(t, err)

		var got Role
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, r, got)
	}

	var r Role
	assert.Error(t, json.Unmarshal([]byte(`"Unknown"`), &r))
}

func TestRole_permissions(t *testing.T) {
	type perms struct {
		author, decide, grade, deleteGroups, audit bool
		peer, canGradeMilestones                 bool
	}
	tests := []struct {
		role Role
		want perms
	}{
		{RoleStudent, perms{peer: true, canGradeMilestones: true}},
		{RoleLecturer, perms{author: true, grade: true, deleteGroups: true, canGradeMilestones: true}},
		{RoleHeadOfDepartment, perms{author: true, decide: true, grade: true, deleteGroups: true, audit: true, canGradeMilestones: true}},
		{RoleStaff, perms{deleteGroups: true, audit: true}},
		{RoleAdmin, perms{author: true, decide: true, grade: true, deleteGroups: true, audit: true, canGradeMilestones: true}},
		{RoleUnknown, perms{}},
	}
	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			peer, ok := tt.role.GradesAsPeer()
			got := perms{
				author:             tt.role.CanAuthorTemplates(),
				decide:             tt.role.CanDecideTemplates(),
				grade:              tt.role.CanGradeSubmissions(),
				deleteGroups:       tt.role.CanDeleteGroups(),
				audit:              tt.role.CanReadAudit(),
				peer:               peer,
				canGradeMilestones: ok,
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
