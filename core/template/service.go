package template

import (
	"context"
	"fmt"
	"slices"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
	"github.com/trezcool/kazi/core/audit"
)

type Service struct {
	db        core.Transactor
	repo      Repository
	auditRepo audit.Repository
	validator *core.Validator
	notifier  Notifier
}

func NewService(db core.Transactor, repo Repository, auditRepo audit.Repository, v *core.Validator, notifier Notifier) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		auditRepo: auditRepo,
		validator: v,
		notifier:  notifier,
	}
}

func trapNotFound(err error, id string) error {
	switch errors.Cause(err) {
	case ErrNotFound:
		return core.NewNotFoundError("template", id)
	case ErrMilestoneNotFound:
		return core.NewNotFoundError("milestone", id)
	}
	return err
}

func (svc *Service) Create(ctx context.Context, actor account.Identity, nt NewTemplate) (Template, error) {
	if !actor.Role.CanAuthorTemplates() {
		return Template{}, core.NewForbiddenError("author project templates")
	}
	if err := nt.Validate(svc.validator); err != nil {
		return Template{}, err
	}

	now := core.Now()
	tpl := Template{
		SubjectID:        core.CleanString(nt.SubjectID),
		Name:             core.CleanString(nt.Name),
		Description:      nt.Description,
		Status:           StatusPending,
		Deadline:         nt.Deadline,
		AssignedClassIDs: []string{},
		CreatedBy:        actor.UserID,
		CreatedAt:        now,
		Milestones:       make([]Milestone, 0, len(nt.Milestones)),
	}
	for i, nm := range nt.Milestones {
		tpl.Milestones = append(tpl.Milestones, Milestone{
			Title:       core.CleanString(nm.Title),
			Description: nm.Description,
			OrderIndex:  i,
			Deadline:    nm.Deadline,
			Questions:   nm.Questions,
		})
	}

	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if tpl, err = svc.repo.CreateTemplate(ctx, tpl, exec); err != nil {
			return errors.Wrap(err, "creating template")
		}
		entry := audit.NewEntry(audit.ActionCreate, audit.EntityTemplate, tpl.ID, actor, nil, tpl, "")
		_, err = svc.auditRepo.AppendEntry(ctx, entry, exec)
		return errors.Wrap(err, "appending audit entry")
	})
	if err != nil {
		return Template{}, err
	}
	return tpl, nil
}

func (svc *Service) Approve(ctx context.Context, actor account.Identity, id string) (Template, error) {
	return svc.decide(ctx, actor, id, StatusApproved, "")
}

func (svc *Service) Reject(ctx context.Context, actor account.Identity, id, reason string) (Template, error) {
	return svc.decide(ctx, actor, id, StatusRejected, core.CleanString(reason))
}

// decide moves a Pending template to a terminal status. Approved and Rejected are never left.
func (svc *Service) decide(ctx context.Context, actor account.Identity, id string, to Status, reason string) (Template, error) {
	op := "approve"
	if to == StatusRejected {
		op = "reject"
	}
	if !actor.Role.CanDecideTemplates() {
		return Template{}, core.NewForbiddenError(op + " project templates")
	}

	var tpl Template
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		before, err := svc.repo.LockTemplate(ctx, id, exec)
		if err != nil {
			return trapNotFound(err, id)
		}
		if before.Status != StatusPending {
			return core.NewInvalidStateError("template", string(before.Status), op)
		}

		now := core.Now()
		tpl = before.Clone()
		tpl.Status = to
		tpl.ApproverID = actor.UserID
		tpl.ApprovedAt = &now
		if tpl, err = svc.repo.UpdateTemplate(ctx, tpl, exec); err != nil {
			return errors.Wrap(err, "updating template")
		}

		desc := fmt.Sprintf("%s -> %s", before.Status, to)
		if reason != "" {
			desc += ": " + reason
		}
		entry := audit.NewEntry(audit.ActionStatusChange, audit.EntityTemplate, id, actor, before, tpl, desc)
		_, err = svc.auditRepo.AppendEntry(ctx, entry, exec)
		return errors.Wrap(err, "appending audit entry")
	})
	if err != nil {
		return Template{}, err
	}

	if svc.notifier != nil {
		svc.notifier.TemplateDecided(ctx, tpl, reason)
	}
	return tpl, nil
}

// AssignToClass makes an approved template available to a class. Assigning twice is a no-op.
func (svc *Service) AssignToClass(ctx context.Context, actor account.Identity, id, classID string) (Template, error) {
	if !actor.Role.CanDecideTemplates() {
		return Template{}, core.NewForbiddenError("assign project templates to classes")
	}
	classID = core.CleanString(classID)
	if err := svc.validator.Struct(classAssignment{ClassID: classID}); err != nil {
		return Template{}, err
	}

	var tpl Template
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		before, err := svc.repo.LockTemplate(ctx, id, exec)
		if err != nil {
			return trapNotFound(err, id)
		}
		if before.Status != StatusApproved {
			return core.NewInvalidStateError("template", string(before.Status), "assign to class")
		}
		if before.HasClass(classID) {
			tpl = before
			return nil
		}

		tpl = before.Clone()
		tpl.AssignedClassIDs = append(tpl.AssignedClassIDs, classID)
		if tpl, err = svc.repo.UpdateTemplate(ctx, tpl, exec); err != nil {
			return errors.Wrap(err, "updating template")
		}
		entry := audit.NewEntry(audit.ActionUpdate, audit.EntityTemplate, id, actor, before, tpl, "assigned to class "+classID)
		_, err = svc.auditRepo.AppendEntry(ctx, entry, exec)
		return errors.Wrap(err, "appending audit entry")
	})
	if err != nil {
		return Template{}, err
	}
	return tpl, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Template, error) {
	tpl, err := svc.repo.GetTemplate(ctx, id)
	if err != nil {
		return Template{}, trapNotFound(err, id)
	}
	return tpl, nil
}

func (svc *Service) GetMilestone(ctx context.Context, id string) (Milestone, error) {
	m, err := svc.repo.GetMilestone(ctx, id)
	if err != nil {
		return Milestone{}, trapNotFound(err, id)
	}
	return m, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Template, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "unknown status " + string(filter.Status)})
	}
	for _, ord := range ordering {
		if !slices.Contains(SortableFields, ord.Field) {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "ordering", Error: "cannot order by " + ord.Field})
		}
	}
	tpls, err := svc.repo.QueryTemplates(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying templates")
	}
	return tpls, nil
}
