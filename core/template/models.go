package template

import (
	"context"
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
)

var (
	ErrNotFound          = errors.New("template not found")
	ErrMilestoneNotFound = errors.New("milestone not found")
)

// SortableFields are the fields templates can be ordered by.
var SortableFields = []string{"created_at", "name", "status", "deadline"}

type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type (
	Template struct {
		ID               string     `json:"id"`
		SubjectID        string     `json:"subject_id"`
		Name             string     `json:"name"`
		Description      string     `json:"description"`
		Status           Status     `json:"status"`
		Deadline         *time.Time `json:"deadline"`
		AssignedClassIDs []string   `json:"assigned_class_ids"`
		CreatedBy        string     `json:"created_by"`
		ApproverID       string     `json:"approver_id,omitempty"`
		CreatedAt        time.Time  `json:"created_at"`
		ApprovedAt       *time.Time `json:"approved_at"`

		Milestones []Milestone `json:"milestones"`
	}

	Milestone struct {
		ID          string     `json:"id"`
		TemplateID  string     `json:"template_id"`
		Title       string     `json:"title"`
		Description string     `json:"description"`
		OrderIndex  int        `json:"order_index"`
		Deadline    *time.Time `json:"deadline"`
		Questions   []string   `json:"questions"`
	}

	NewTemplate struct {
		SubjectID   string         `json:"subject_id" validate:"required,notblank,max=64"`
		Name        string         `json:"name" validate:"required,notblank,max=200"`
		Description string         `json:"description" validate:"max=5000"`
		Deadline    *time.Time     `json:"deadline"`
		Milestones  []NewMilestone `json:"milestones" validate:"dive"`
	}

	NewMilestone struct {
		Title       string     `json:"title" validate:"required,notblank,max=200"`
		Description string     `json:"description" validate:"max=5000"`
		Deadline    *time.Time `json:"deadline"`
		Questions   []string   `json:"questions" validate:"dive,notblank"`
	}

	QueryFilter struct {
		Status    Status `query:"status"`
		SubjectID string `query:"subject_id"`
		ClassID   string `query:"class_id"`
		CreatedBy string `query:"created_by"`
	}

	Repository interface {
		// CreateTemplate inserts t with its milestones.
		CreateTemplate(ctx context.Context, t Template, exec ...core.DBExecutor) (Template, error)
		GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (Template, error)
		// LockTemplate is GetTemplate holding a row lock until the transaction ends.
		LockTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (Template, error)
		// UpdateTemplate saves the status, decision and class assignment fields.
		UpdateTemplate(ctx context.Context, t Template, exec ...core.DBExecutor) (Template, error)
		QueryTemplates(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Template, error)
		GetMilestone(ctx context.Context, id string, exec ...core.DBExecutor) (Milestone, error)
	}

	// Notifier is told about decisions once they are committed.
	Notifier interface {
		TemplateDecided(ctx context.Context, t Template, reason string)
	}
)

func (t Template) HasClass(classID string) bool {
	return slices.Contains(t.AssignedClassIDs, classID)
}

// Clone returns a copy that shares no slices with t.
func (t Template) Clone() Template {
	t.AssignedClassIDs = slices.Clone(t.AssignedClassIDs)
	if t.AssignedClassIDs == nil {
		t.AssignedClassIDs = []string{}
	}
	ms := make([]Milestone, 0, len(t.Milestones))
	for _, m := range t.Milestones {
		m.Questions = slices.Clone(m.Questions)
		ms = append(ms, m)
	}
	t.Milestones = ms
	return t
}

func (nt NewTemplate) Validate(v *core.Validator) error {
	return v.Struct(nt)
}

// classAssignment is stored in a comma separated column, so class ids must not contain commas.
type classAssignment struct {
	ClassID string `json:"class_id" validate:"required,notblank,max=64,excludesall=0x2C"`
}
