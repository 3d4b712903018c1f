package group

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
)

const DefaultMaxMembers = 5

var (
	ErrNotFound        = errors.New("group not found")
	ErrMemberNotFound  = errors.New("group member not found")
	ErrDuplicateMember = errors.New("duplicate group member")
)

type MemberRole string

const (
	RoleLeader MemberRole = "Leader"
	RoleMember MemberRole = "Member"
)

type (
	Group struct {
		ID          string    `json:"id"`
		TemplateID  *string   `json:"template_id"`
		Name        string    `json:"name"`
		ClassID     string    `json:"class_id"`
		SubjectCode *string   `json:"subject_code"`
		MaxMembers  int       `json:"max_members"`
		CreatedBy   string    `json:"created_by"`
		CreatedAt   time.Time `json:"created_at"`
		core.Deletable
	}

	Member struct {
		ID          string     `json:"id"`
		GroupID     string     `json:"group_id"`
		UserID      string     `json:"user_id"`
		StudentCode string     `json:"student_code"`
		FullName    string     `json:"full_name"`
		Role        MemberRole `json:"role"`
		JoinedAt    time.Time  `json:"joined_at"`
	}

	// Detail is a group together with its current members.
	Detail struct {
		Group
		Members []Member `json:"members"`
	}

	NewGroup struct {
		Name        string `json:"name" validate:"required,notblank,max=150"`
		ClassID     string `json:"class_id" validate:"required,notblank,max=64"`
		MaxMembers  *int   `json:"max_members"`
		TemplateID  string `json:"template_id"`
		SubjectCode string `json:"subject_code" validate:"max=32"`
	}

	NewMember struct {
		UserID      string     `json:"user_id"`
		StudentCode string     `json:"student_code" validate:"required,notblank,max=64"`
		FullName    string     `json:"full_name" validate:"max=200"`
		Role        MemberRole `json:"role" validate:"omitempty,oneof=Leader Member"`
	}

	QueryFilter struct {
		ClassID     string `query:"class_id"`
		SubjectCode string `query:"subject_code"`
		TemplateID  string `query:"template_id"`
	}

	Repository interface {
		CreateGroup(ctx context.Context, g Group, exec ...core.DBExecutor) (Group, error)
		// GetGroup also returns soft-deleted groups.
		GetGroup(ctx context.Context, id string, exec ...core.DBExecutor) (Group, error)
		// LockGroup is GetGroup holding a row lock until the transaction ends.
		LockGroup(ctx context.Context, id string, exec ...core.DBExecutor) (Group, error)
		UpdateGroup(ctx context.Context, g Group, exec ...core.DBExecutor) (Group, error)
		// QueryGroups only returns active groups. A SubjectCode filter also matches groups without one.
		QueryGroups(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Group, error)

		CreateMember(ctx context.Context, m Member, exec ...core.DBExecutor) (Member, error)
		GetMember(ctx context.Context, id string, exec ...core.DBExecutor) (Member, error)
		UpdateMember(ctx context.Context, m Member, exec ...core.DBExecutor) (Member, error)
		DeleteMember(ctx context.Context, id string, exec ...core.DBExecutor) error
		// QueryMembers returns the group's members by join time.
		QueryMembers(ctx context.Context, groupID string, exec ...core.DBExecutor) ([]Member, error)
	}
)

func (ng NewGroup) Validate(v *core.Validator) error {
	if err := v.Struct(ng); err != nil {
		return err
	}
	if ng.MaxMembers != nil && *ng.MaxMembers < 1 {
		return core.NewValidationError(nil, core.FieldError{Field: "max_members", Error: "max_members must be at least 1"})
	}
	return nil
}

func (nm NewMember) Validate(v *core.Validator) error {
	return v.Struct(nm)
}

// HasMember reports whether userID or studentCode already belongs to one of members.
func HasMember(members []Member, userID, studentCode string) (string, bool) {
	for _, m := range members {
		if userID != "" && m.UserID == userID {
			return userID, true
		}
		if studentCode != "" && m.StudentCode == studentCode {
			return studentCode, true
		}
	}
	return "", false
}
