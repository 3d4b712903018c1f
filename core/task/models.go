package task

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
)

const MinComplexityWeight = 1

var (
	ErrNotFound        = errors.New("task not found")
	ErrSubItemNotFound = errors.New("task sub-item not found")
)

// Status is an open integer code; the board does not restrict transitions.
type Status int

const (
	StatusTodo Status = iota
	StatusInProgress
	StatusDone
)

type (
	Task struct {
		ID               string     `json:"id"`
		GroupID          string     `json:"group_id"`
		Title            string     `json:"title"`
		Description      string     `json:"description"`
		Status           Status     `json:"status"`
		Priority         int        `json:"priority"`
		Deadline         *time.Time `json:"deadline"`
		AssignedToUserID *string    `json:"assigned_to_user_id"`
		ComplexityWeight int        `json:"complexity_weight"`
		EstimatedHours   float64    `json:"estimated_hours"`
		CreatedBy        string     `json:"created_by"`
		CreatedAt        time.Time  `json:"created_at"`
		UpdatedAt        time.Time  `json:"updated_at"`
		core.Deletable
	}

	SubItem struct {
		ID        string    `json:"id"`
		TaskID    string    `json:"task_id"`
		Content   string    `json:"content"`
		IsDone    bool      `json:"is_done"`
		CreatedAt time.Time `json:"created_at"`
	}

	Comment struct {
		ID         string    `json:"id"`
		TaskID     string    `json:"task_id"`
		Content    string    `json:"content"`
		AuthorID   string    `json:"author_id"`
		AuthorName string    `json:"author_name"`
		CreatedAt  time.Time `json:"created_at"`
	}

	Detail struct {
		Task
		SubItems []SubItem `json:"sub_items"`
		Comments []Comment `json:"comments"`
	}

	// Contribution is derived from the tasks on every call and never stored.
	Contribution struct {
		MemberID  string  `json:"member_id"`
		UserID    string  `json:"user_id"`
		FullName  string  `json:"full_name"`
		Score     float64 `json:"score"`
		TaskCount int     `json:"task_count"`
	}

	NewTask struct {
		Title            string     `json:"title" validate:"required,notblank,max=200"`
		Description      string     `json:"description" validate:"max=5000"`
		AssignedToUserID string     `json:"assigned_to_user_id"`
		ComplexityWeight *int       `json:"complexity_weight" validate:"omitempty,gte=1,lte=5"`
		EstimatedHours   *float64   `json:"estimated_hours" validate:"omitempty,gte=0"`
		Priority         int        `json:"priority"`
		Deadline         *time.Time `json:"deadline"`
	}

	// UpdateTask only changes the fields that are set.
	UpdateTask struct {
		Title            *string    `json:"title" validate:"omitempty,notblank,max=200"`
		Description      *string    `json:"description" validate:"omitempty,max=5000"`
		AssignedToUserID *string    `json:"assigned_to_user_id"`
		ComplexityWeight *int       `json:"complexity_weight" validate:"omitempty,gte=1,lte=5"`
		EstimatedHours   *float64   `json:"estimated_hours" validate:"omitempty,gte=0"`
		Priority         *int       `json:"priority"`
		Deadline         *time.Time `json:"deadline"`
	}

	QueryFilter struct {
		GroupID          string  `query:"-"`
		AssignedToUserID string  `query:"assigned_to"`
		Status           *Status `query:"status"`
	}

	Repository interface {
		CreateTask(ctx context.Context, t Task, exec ...core.DBExecutor) (Task, error)
		// GetTask also returns soft-deleted tasks.
		GetTask(ctx context.Context, id string, exec ...core.DBExecutor) (Task, error)
		UpdateTask(ctx context.Context, t Task, exec ...core.DBExecutor) (Task, error)
		// QueryTasks only returns active tasks, oldest first.
		QueryTasks(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Task, error)

		CreateSubItem(ctx context.Context, si SubItem, exec ...core.DBExecutor) (SubItem, error)
		GetSubItem(ctx context.Context, id string, exec ...core.DBExecutor) (SubItem, error)
		UpdateSubItem(ctx context.Context, si SubItem, exec ...core.DBExecutor) (SubItem, error)
		// QuerySubItems and QueryComments return nothing for soft-deleted tasks.
		QuerySubItems(ctx context.Context, taskID string, exec ...core.DBExecutor) ([]SubItem, error)

		CreateComment(ctx context.Context, c Comment, exec ...core.DBExecutor) (Comment, error)
		QueryComments(ctx context.Context, taskID string, exec ...core.DBExecutor) ([]Comment, error)
	}
)

func (nt NewTask) Validate(v *core.Validator) error {
	return v.Struct(nt)
}

func (ut UpdateTask) Validate(v *core.Validator) error {
	if err := v.Struct(ut); err != nil {
		return err
	}
	if ut.Title != nil && core.CleanString(*ut.Title) == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "title", Error: "title must not be blank"})
	}
	return nil
}

// Score is the task's weight toward its assignee's contribution.
func (t Task) Score() float64 {
	return float64(t.ComplexityWeight) * t.EstimatedHours
}
