package group

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
	"github.com/trezcool/kazi/core/audit"
	"github.com/trezcool/kazi/core/template"
)

type Service struct {
	db        core.Transactor
	repo      Repository
	tplRepo   template.Repository
	auditRepo audit.Repository
	directory account.Directory
	validator *core.Validator
}

func NewService(
	db core.Transactor,
	repo Repository,
	tplRepo template.Repository,
	auditRepo audit.Repository,
	directory account.Directory,
	v *core.Validator,
) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		tplRepo:   tplRepo,
		auditRepo: auditRepo,
		directory: directory,
		validator: v,
	}
}

func trapNotFound(err error, id string) error {
	switch errors.Cause(err) {
	case ErrNotFound:
		return core.NewNotFoundError("group", id)
	case ErrMemberNotFound:
		return core.NewNotFoundError("group member", id)
	case template.ErrNotFound:
		return core.NewNotFoundError("template", id)
	}
	return err
}

// Active loads a group for a mutation: soft-deleted groups are gone.
func Active(ctx context.Context, repo Repository, id string, lock bool, exec ...core.DBExecutor) (Group, error) {
	var (
		g   Group
		err error
	)
	if lock {
		g, err = repo.LockGroup(ctx, id, exec...)
	} else {
		g, err = repo.GetGroup(ctx, id, exec...)
	}
	if err != nil {
		return Group{}, trapNotFound(err, id)
	}
	if !g.Active() {
		return Group{}, core.NewGoneError("group", id)
	}
	return g, nil
}

func (svc *Service) approvedTemplate(ctx context.Context, id string, exec core.DBExecutor) error {
	tpl, err := svc.tplRepo.GetTemplate(ctx, id, exec)
	if err != nil {
		return trapNotFound(err, id)
	}
	if tpl.Status != template.StatusApproved {
		return core.NewInvalidStateError("template", string(tpl.Status), "bind groups to")
	}
	return nil
}

func (svc *Service) appendEntry(ctx context.Context, exec core.DBExecutor, entry audit.Entry) error {
	_, err := svc.auditRepo.AppendEntry(ctx, entry, exec)
	return errors.Wrap(err, "appending audit entry")
}

func (svc *Service) CreateGroup(ctx context.Context, actor account.Identity, ng NewGroup) (Group, error) {
	if err := ng.Validate(svc.validator); err != nil {
		return Group{}, err
	}

	g := Group{
		TemplateID:  core.StringPtr(ng.TemplateID),
		Name:        core.CleanString(ng.Name),
		ClassID:     core.CleanString(ng.ClassID),
		SubjectCode: core.StringPtr(ng.SubjectCode),
		MaxMembers:  DefaultMaxMembers,
		CreatedBy:   actor.UserID,
		CreatedAt:   core.Now(),
	}
	if ng.MaxMembers != nil {
		g.MaxMembers = *ng.MaxMembers
	}

	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		if g.TemplateID != nil {
			if err := svc.approvedTemplate(ctx, *g.TemplateID, exec); err != nil {
				return err
			}
		}
		var err error
		if g, err = svc.repo.CreateGroup(ctx, g, exec); err != nil {
			return errors.Wrap(err, "creating group")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionCreate, audit.EntityGroup, g.ID, actor, nil, g, ""))
	})
	if err != nil {
		return Group{}, err
	}
	return g, nil
}

// resolveMember fills the user id and name of nm from the account directory when they are missing.
func (svc *Service) resolveMember(ctx context.Context, nm NewMember) (NewMember, error) {
	nm.UserID = core.CleanString(nm.UserID)
	nm.StudentCode = core.CleanString(nm.StudentCode)
	nm.FullName = core.CleanString(nm.FullName)
	if nm.Role == "" {
		nm.Role = RoleMember
	}
	if nm.UserID != "" && nm.FullName != "" {
		return nm, nil
	}
	if svc.directory == nil {
		return NewMember{}, core.NewValidationError(nil,
			core.FieldError{Field: "user_id", Error: "user_id and full_name are required"})
	}

	info, err := svc.directory.GetUserByCode(ctx, nm.StudentCode)
	if err != nil {
		if errors.Cause(err) == account.ErrUserNotFound {
			return NewMember{}, core.NewNotFoundError("student", nm.StudentCode)
		}
		if core.IsUpstreamUnavailable(err) {
			return NewMember{}, err
		}
		return NewMember{}, core.NewUpstreamUnavailableError("account directory", err)
	}
	if nm.UserID == "" {
		nm.UserID = info.ID
	}
	if nm.FullName == "" {
		nm.FullName = info.FullName
	}
	return nm, nil
}

// joinable checks that nm may join an active group: duplicates are reported before capacity.
func (svc *Service) joinable(ctx context.Context, groupID string, nm NewMember, lock bool, exec core.DBExecutor) error {
	g, err := Active(ctx, svc.repo, groupID, lock, exec)
	if err != nil {
		return err
	}
	members, err := svc.repo.QueryMembers(ctx, groupID, exec)
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	if key, dup := HasMember(members, core.CleanString(nm.UserID), core.CleanString(nm.StudentCode)); dup {
		return core.NewDuplicateMemberError(groupID, key)
	}
	if len(members) >= g.MaxMembers {
		return core.NewCapacityExceededError(groupID, g.MaxMembers)
	}
	return nil
}

// AddMember enrolls a student. The capacity check and the insert happen under the group's row lock.
func (svc *Service) AddMember(ctx context.Context, actor account.Identity, groupID string, nm NewMember) (Member, error) {
	if err := nm.Validate(svc.validator); err != nil {
		return Member{}, err
	}
	// unlocked pre-check: a gone or full group is reported before any directory call
	if err := svc.joinable(ctx, groupID, nm, false, nil); err != nil {
		return Member{}, err
	}
	nm, err := svc.resolveMember(ctx, nm)
	if err != nil {
		return Member{}, err
	}

	var m Member
	err = svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.joinable(ctx, groupID, nm, true, exec); err != nil {
			return err
		}

		var err error
		m, err = svc.repo.CreateMember(ctx, Member{
			GroupID:     groupID,
			UserID:      nm.UserID,
			StudentCode: nm.StudentCode,
			FullName:    nm.FullName,
			Role:        nm.Role,
			JoinedAt:    core.Now(),
		}, exec)
		if err != nil {
			if errors.Cause(err) == ErrDuplicateMember {
				return core.NewDuplicateMemberError(groupID, nm.StudentCode)
			}
			return errors.Wrap(err, "creating member")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionAssignMember, audit.EntityGroup, groupID, actor, nil, m, m.FullName+" joined"))
	})
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

// memberOf loads memberID and checks it belongs to groupID.
func (svc *Service) memberOf(ctx context.Context, groupID, memberID string, exec core.DBExecutor) (Member, error) {
	m, err := svc.repo.GetMember(ctx, memberID, exec)
	if err != nil {
		return Member{}, trapNotFound(err, memberID)
	}
	if m.GroupID != groupID {
		return Member{}, core.NewNotFoundError("group member", memberID)
	}
	return m, nil
}

func (svc *Service) RemoveMember(ctx context.Context, actor account.Identity, groupID, memberID string) error {
	return svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := Active(ctx, svc.repo, groupID, true, exec); err != nil {
			return err
		}
		m, err := svc.memberOf(ctx, groupID, memberID, exec)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteMember(ctx, memberID, exec); err != nil {
			return errors.Wrap(err, "deleting member")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionRemoveMember, audit.EntityGroup, groupID, actor, m, nil, m.FullName+" left"))
	})
}

// UpdateMemberRole switches a member between Leader and Member. Several leaders are allowed.
func (svc *Service) UpdateMemberRole(ctx context.Context, actor account.Identity, groupID, memberID string, role MemberRole) (Member, error) {
	if role != RoleLeader && role != RoleMember {
		return Member{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: "role must be one of [Leader Member]"})
	}

	var m Member
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := Active(ctx, svc.repo, groupID, true, exec); err != nil {
			return err
		}
		before, err := svc.memberOf(ctx, groupID, memberID, exec)
		if err != nil {
			return err
		}
		m = before
		m.Role = role
		if m, err = svc.repo.UpdateMember(ctx, m, exec); err != nil {
			return errors.Wrap(err, "updating member")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionUpdate, audit.EntityGroup, groupID, actor, before, m, "member role changed"))
	})
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

// AssignToTemplate binds the group to an approved template, replacing any previous one.
func (svc *Service) AssignToTemplate(ctx context.Context, actor account.Identity, groupID, templateID string) (Group, error) {
	templateID = core.CleanString(templateID)
	if templateID == "" {
		return Group{}, core.NewValidationError(nil, core.FieldError{Field: "template_id", Error: "this field is required"})
	}

	var g Group
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		before, err := Active(ctx, svc.repo, groupID, true, exec)
		if err != nil {
			return err
		}
		if err = svc.approvedTemplate(ctx, templateID, exec); err != nil {
			return err
		}
		g = before
		g.TemplateID = &templateID
		if g, err = svc.repo.UpdateGroup(ctx, g, exec); err != nil {
			return errors.Wrap(err, "updating group")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionUpdate, audit.EntityGroup, groupID, actor, before, g, "assigned to template "+templateID))
	})
	if err != nil {
		return Group{}, err
	}
	return g, nil
}

// SoftDelete hides the group from standard queries. Its members stay in storage.
func (svc *Service) SoftDelete(ctx context.Context, actor account.Identity, groupID string) error {
	if !actor.Role.CanDeleteGroups() {
		return core.NewForbiddenError("delete groups")
	}
	return svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		before, err := Active(ctx, svc.repo, groupID, true, exec)
		if err != nil {
			return err
		}
		g := before
		g.MarkDeleted(actor.UserID, core.Now())
		if _, err = svc.repo.UpdateGroup(ctx, g, exec); err != nil {
			return errors.Wrap(err, "soft-deleting group")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionSoftDelete, audit.EntityGroup, groupID, actor, before, g, ""))
	})
}

func (svc *Service) Get(ctx context.Context, groupID string) (Detail, error) {
	g, err := Active(ctx, svc.repo, groupID, false)
	if err != nil {
		return Detail{}, err
	}
	members, err := svc.repo.QueryMembers(ctx, groupID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "querying members")
	}
	return Detail{Group: g, Members: members}, nil
}

func (svc *Service) Members(ctx context.Context, groupID string) ([]Member, error) {
	d, err := svc.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return d.Members, nil
}

// ByClass lists the active groups of a class. A subject code also keeps groups created before subject codes existed.
func (svc *Service) ByClass(ctx context.Context, classID, subjectCode string) ([]Group, error) {
	return svc.Query(ctx, QueryFilter{ClassID: core.CleanString(classID), SubjectCode: core.CleanString(subjectCode)})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Group, error) {
	groups, err := svc.repo.QueryGroups(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	return groups, nil
}
