package task

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
	"github.com/trezcool/kazi/core/audit"
	"github.com/trezcool/kazi/core/group"
)

const entityComment = "TaskComment"

type Service struct {
	db        core.Transactor
	repo      Repository
	groupRepo group.Repository
	auditRepo audit.Repository
	validator *core.Validator
}

func NewService(db core.Transactor, repo Repository, groupRepo group.Repository, auditRepo audit.Repository, v *core.Validator) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		groupRepo: groupRepo,
		auditRepo: auditRepo,
		validator: v,
	}
}

func trapNotFound(err error, id string) error {
	switch errors.Cause(err) {
	case ErrNotFound:
		return core.NewNotFoundError("task", id)
	case ErrSubItemNotFound:
		return core.NewNotFoundError("task sub-item", id)
	}
	return err
}

// active loads a task that can still be worked on.
func (svc *Service) active(ctx context.Context, id string, exec ...core.DBExecutor) (Task, error) {
	t, err := svc.repo.GetTask(ctx, id, exec...)
	if err != nil {
		return Task{}, trapNotFound(err, id)
	}
	if !t.Active() {
		return Task{}, core.NewGoneError("task", id)
	}
	return t, nil
}

func (svc *Service) appendEntry(ctx context.Context, exec core.DBExecutor, entry audit.Entry) error {
	_, err := svc.auditRepo.AppendEntry(ctx, entry, exec)
	return errors.Wrap(err, "appending audit entry")
}

func (svc *Service) CreateTask(ctx context.Context, actor account.Identity, groupID string, nt NewTask) (Task, error) {
	if err := nt.Validate(svc.validator); err != nil {
		return Task{}, err
	}

	now := core.Now()
	t := Task{
		GroupID:          groupID,
		Title:            core.CleanString(nt.Title),
		Description:      nt.Description,
		Status:           StatusTodo,
		Priority:         nt.Priority,
		Deadline:         nt.Deadline,
		AssignedToUserID: core.StringPtr(nt.AssignedToUserID),
		ComplexityWeight: MinComplexityWeight,
		EstimatedHours:   1,
		CreatedBy:        actor.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if nt.ComplexityWeight != nil {
		t.ComplexityWeight = *nt.ComplexityWeight
	}
	if nt.EstimatedHours != nil {
		t.EstimatedHours = *nt.EstimatedHours
	}

	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := group.Active(ctx, svc.groupRepo, groupID, false, exec); err != nil {
			return err
		}
		var err error
		if t, err = svc.repo.CreateTask(ctx, t, exec); err != nil {
			return errors.Wrap(err, "creating task")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionCreate, audit.EntityTask, t.ID, actor, nil, t, ""))
	})
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

// UpdateStatus accepts any status code.
func (svc *Service) UpdateStatus(ctx context.Context, actor account.Identity, taskID string, status Status) (Task, error) {
	var t Task
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		before, err := svc.active(ctx, taskID, exec)
		if err != nil {
			return err
		}
		t = before
		t.Status = status
		t.UpdatedAt = core.Now()
		if t, err = svc.repo.UpdateTask(ctx, t, exec); err != nil {
			return errors.Wrap(err, "updating task status")
		}
		desc := fmt.Sprintf("%d -> %d", before.Status, status)
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionStatusChange, audit.EntityTask, taskID, actor, before, t, desc))
	})
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func (svc *Service) Update(ctx context.Context, actor account.Identity, taskID string, ut UpdateTask) (Task, error) {
	if err := ut.Validate(svc.validator); err != nil {
		return Task{}, err
	}

	var t Task
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		before, err := svc.active(ctx, taskID, exec)
		if err != nil {
			return err
		}
		t = before
		if ut.Title != nil {
			t.Title = core.CleanString(*ut.Title)
		}
		if ut.Description != nil {
			t.Description = *ut.Description
		}
		if ut.AssignedToUserID != nil {
			t.AssignedToUserID = core.StringPtr(*ut.AssignedToUserID)
		}
		if ut.ComplexityWeight != nil {
			t.ComplexityWeight = *ut.ComplexityWeight
		}
		if ut.EstimatedHours != nil {
			t.EstimatedHours = *ut.EstimatedHours
		}
		if ut.Priority != nil {
			t.Priority = *ut.Priority
		}
		if ut.Deadline != nil {
			t.Deadline = ut.Deadline
		}
		t.UpdatedAt = core.Now()
		if t, err = svc.repo.UpdateTask(ctx, t, exec); err != nil {
			return errors.Wrap(err, "updating task")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionUpdate, audit.EntityTask, taskID, actor, before, t, ""))
	})
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func (svc *Service) AddSubItem(ctx context.Context, actor account.Identity, taskID, content string) (SubItem, error) {
	content = core.CleanString(content)
	if content == "" {
		return SubItem{}, core.NewValidationError(nil, core.FieldError{Field: "content", Error: "this field is required"})
	}

	var si SubItem
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.active(ctx, taskID, exec); err != nil {
			return err
		}
		var err error
		si, err = svc.repo.CreateSubItem(ctx, SubItem{TaskID: taskID, Content: content, CreatedAt: core.Now()}, exec)
		if err != nil {
			return errors.Wrap(err, "creating sub-item")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionUpdate, audit.EntityTask, taskID, actor, nil, si, "sub-item added"))
	})
	if err != nil {
		return SubItem{}, err
	}
	return si, nil
}

// ToggleSubItem flips the sub-item's done flag.
func (svc *Service) ToggleSubItem(ctx context.Context, actor account.Identity, subItemID string) (SubItem, error) {
	var si SubItem
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		before, err := svc.repo.GetSubItem(ctx, subItemID, exec)
		if err != nil {
			return trapNotFound(err, subItemID)
		}
		if _, err = svc.active(ctx, before.TaskID, exec); err != nil {
			return err
		}
		si = before
		si.IsDone = !before.IsDone
		if si, err = svc.repo.UpdateSubItem(ctx, si, exec); err != nil {
			return errors.Wrap(err, "updating sub-item")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionUpdate, audit.EntityTask, si.TaskID, actor, before, si, "sub-item toggled"))
	})
	if err != nil {
		return SubItem{}, err
	}
	return si, nil
}

func (svc *Service) AddComment(ctx context.Context, actor account.Identity, taskID, content string) (Comment, error) {
	content = core.CleanString(content)
	if content == "" {
		return Comment{}, core.NewValidationError(nil, core.FieldError{Field: "content", Error: "this field is required"})
	}

	var c Comment
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.active(ctx, taskID, exec); err != nil {
			return err
		}
		var err error
		c, err = svc.repo.CreateComment(ctx, Comment{
			TaskID:     taskID,
			Content:    content,
			AuthorID:   actor.UserID,
			AuthorName: actor.DisplayName(),
			CreatedAt:  core.Now(),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating comment")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionCreate, entityComment, c.ID, actor, nil, c, ""))
	})
	if err != nil {
		return Comment{}, err
	}
	return c, nil
}

func (svc *Service) DeleteTask(ctx context.Context, actor account.Identity, taskID string) error {
	return svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		before, err := svc.active(ctx, taskID, exec)
		if err != nil {
			return err
		}
		t := before
		t.MarkDeleted(actor.UserID, core.Now())
		if _, err = svc.repo.UpdateTask(ctx, t, exec); err != nil {
			return errors.Wrap(err, "soft-deleting task")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionSoftDelete, audit.EntityTask, taskID, actor, before, t, ""))
	})
}

func (svc *Service) Get(ctx context.Context, taskID string) (Detail, error) {
	t, err := svc.active(ctx, taskID)
	if err != nil {
		return Detail{}, err
	}
	items, err := svc.repo.QuerySubItems(ctx, taskID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "querying sub-items")
	}
	comments, err := svc.repo.QueryComments(ctx, taskID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "querying comments")
	}
	return Detail{Task: t, SubItems: items, Comments: comments}, nil
}

func (svc *Service) ListByGroup(ctx context.Context, groupID string, filter QueryFilter) ([]Task, error) {
	if _, err := group.Active(ctx, svc.groupRepo, groupID, false); err != nil {
		return nil, err
	}
	filter.GroupID = groupID
	tasks, err := svc.repo.QueryTasks(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	return tasks, nil
}

// Contributions sums weight x hours of each member's active tasks. Tasks of non-members are ignored.
func (svc *Service) Contributions(ctx context.Context, groupID string) ([]Contribution, error) {
	if _, err := group.Active(ctx, svc.groupRepo, groupID, false); err != nil {
		return nil, err
	}
	members, err := svc.groupRepo.QueryMembers(ctx, groupID)
	if err != nil {
		return nil, errors.Wrap(err, "querying members")
	}
	tasks, err := svc.repo.QueryTasks(ctx, QueryFilter{GroupID: groupID})
	if err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	return Contributions(members, tasks), nil
}

// Contributions computes one Contribution per member, in members order.
func Contributions(members []group.Member, tasks []Task) []Contribution {
	contribs := make([]Contribution, 0, len(members))
	byUser := make(map[string]int, len(members))
	for i, m := range members {
		byUser[m.UserID] = i
		contribs = append(contribs, Contribution{MemberID: m.ID, UserID: m.UserID, FullName: m.FullName})
	}
	for _, t := range tasks {
		if !t.Active() || t.AssignedToUserID == nil {
			continue
		}
		i, ok := byUser[*t.AssignedToUserID]
		if !ok {
			continue
		}
		contribs[i].Score += t.Score()
		contribs[i].TaskCount++
	}
	return contribs
}
