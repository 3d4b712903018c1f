package submission

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
	"github.com/trezcool/kazi/core/audit"
	"github.com/trezcool/kazi/core/group"
	"github.com/trezcool/kazi/core/template"
)

type Service struct {
	db        core.Transactor
	repo      Repository
	groupRepo group.Repository
	tplRepo   template.Repository
	auditRepo audit.Repository
	files     core.FileStore
	validator *core.Validator
	notifier  Notifier
}

func NewService(
	db core.Transactor,
	repo Repository,
	groupRepo group.Repository,
	tplRepo template.Repository,
	auditRepo audit.Repository,
	files core.FileStore,
	v *core.Validator,
	notifier Notifier,
) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		groupRepo: groupRepo,
		tplRepo:   tplRepo,
		auditRepo: auditRepo,
		files:     files,
		validator: v,
		notifier:  notifier,
	}
}

func trapNotFound(err error, id string) error {
	switch errors.Cause(err) {
	case ErrNotFound:
		return core.NewNotFoundError("submission", id)
	case ErrGroupMilestoneNotFound:
		return core.NewNotFoundError("group milestone", id)
	case template.ErrMilestoneNotFound:
		return core.NewNotFoundError("milestone", id)
	}
	return err
}

func (svc *Service) appendEntry(ctx context.Context, exec core.DBExecutor, entry audit.Entry) error {
	_, err := svc.auditRepo.AppendEntry(ctx, entry, exec)
	return errors.Wrap(err, "appending audit entry")
}

// boundGroup loads an active group and checks it works on the milestone's template.
func (svc *Service) boundGroup(ctx context.Context, groupID, milestoneID string, exec ...core.DBExecutor) (group.Group, error) {
	g, err := group.Active(ctx, svc.groupRepo, groupID, false, exec...)
	if err != nil {
		return group.Group{}, err
	}
	m, err := svc.tplRepo.GetMilestone(ctx, milestoneID, exec...)
	if err != nil {
		return group.Group{}, trapNotFound(err, milestoneID)
	}
	if g.TemplateID == nil || *g.TemplateID != m.TemplateID {
		return group.Group{}, core.NewInvalidStateError("group", "not bound to the milestone's template", "submit work for")
	}
	return g, nil
}

// upload stores the attached file, if any, before anything is written to the database.
// It returns the stored path and the key to discard it with.
func (svc *Service) upload(ctx context.Context, dir string, f *Upload) (string, string, error) {
	if f == nil {
		return "", "", nil
	}
	if svc.files == nil {
		return "", "", core.NewUpstreamUnavailableError("file storage", errors.New("no file store configured"))
	}
	name := strings.ReplaceAll(path.Base(f.Name), " ", "_")
	key := path.Join(dir, fmt.Sprintf("%d-%s", core.Now().UnixNano(), name))
	fp, err := svc.files.Put(ctx, key, f.ContentType, f.Body)
	if err != nil {
		if core.IsUpstreamUnavailable(err) {
			return "", "", err
		}
		return "", "", core.NewUpstreamUnavailableError("file storage", err)
	}
	return fp, key, nil
}

// discard removes a file uploaded for a write that was rolled back. Failures are ignored.
func (svc *Service) discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	_ = svc.files.Delete(ctx, key)
}

// SubmitWork creates or replaces the group's submission for a template milestone.
func (svc *Service) SubmitWork(ctx context.Context, actor account.Identity, groupID, milestoneID string, ns NewSubmission) (Submission, error) {
	if err := ns.Validate(svc.validator); err != nil {
		return Submission{}, err
	}
	if _, err := svc.boundGroup(ctx, groupID, milestoneID); err != nil {
		return Submission{}, err
	}
	filePath, key, err := svc.upload(ctx, path.Join("submissions", groupID, milestoneID), ns.File)
	if err != nil {
		return Submission{}, err
	}

	s := Submission{
		GroupID:     groupID,
		MilestoneID: milestoneID,
		Content:     ns.Content,
		Description: ns.Description,
		FilePath:    filePath,
		SubmittedBy: actor.UserID,
		SubmittedAt: core.Now(),
	}
	err = svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.boundGroup(ctx, groupID, milestoneID, exec); err != nil {
			return err
		}

		var before interface{}
		prev, err := svc.repo.FindSubmission(ctx, groupID, milestoneID, exec)
		switch {
		case err == nil:
			before = prev
			s.ID = prev.ID
		case errors.Cause(err) != ErrNotFound:
			return errors.Wrap(err, "finding submission")
		}

		s.clearGrade()
		if s, err = svc.repo.UpsertSubmission(ctx, s, exec); err != nil {
			return errors.Wrap(err, "upserting submission")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionSubmitWork, audit.EntitySubmission, s.ID, actor, before, s, ""))
	})
	if err != nil {
		svc.discard(ctx, key)
		return Submission{}, err
	}
	return s, nil
}

// GradeSubmission overwrites the submission's grade unconditionally. The last grade written wins.
// Callers decide who may grade.
func (svc *Service) GradeSubmission(ctx context.Context, actor account.Identity, submissionID string, in GradeInput) (Submission, error) {
	if err := in.Validate(svc.validator); err != nil {
		return Submission{}, err
	}

	var (
		s       Submission
		g       group.Group
		members []group.Member
	)
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		before, err := svc.repo.GetSubmission(ctx, submissionID, exec)
		if err != nil {
			return trapNotFound(err, submissionID)
		}

		now := core.Now()
		grade := *in.Grade
		s = before
		s.Grade = &grade
		s.Feedback = core.CleanString(in.Feedback)
		s.GradedBy = actor.UserID
		s.GradedAt = &now
		if s, err = svc.repo.UpdateSubmission(ctx, s, exec); err != nil {
			return errors.Wrap(err, "grading submission")
		}
		if err = svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionGrade, audit.EntitySubmission, s.ID, actor, before, s, "")); err != nil {
			return err
		}

		if g, err = svc.groupRepo.GetGroup(ctx, s.GroupID, exec); err != nil {
			return errors.Wrap(err, "getting group")
		}
		members, err = svc.groupRepo.QueryMembers(ctx, s.GroupID, exec)
		return errors.Wrap(err, "querying members")
	})
	if err != nil {
		return Submission{}, err
	}

	if svc.notifier != nil {
		svc.notifier.SubmissionGraded(ctx, s, g, members)
	}
	return s, nil
}

func (svc *Service) GetSubmission(ctx context.Context, id string) (Submission, error) {
	s, err := svc.repo.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, trapNotFound(err, id)
	}
	return s, nil
}

func (svc *Service) ListSubmissions(ctx context.Context, groupID string) ([]Submission, error) {
	if _, err := group.Active(ctx, svc.groupRepo, groupID, false); err != nil {
		return nil, err
	}
	subs, err := svc.repo.QuerySubmissions(ctx, groupID)
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	return subs, nil
}

func (svc *Service) CreateGroupMilestone(ctx context.Context, actor account.Identity, groupID string, ngm NewGroupMilestone) (GroupMilestone, error) {
	if err := ngm.Validate(svc.validator); err != nil {
		return GroupMilestone{}, err
	}

	gm := GroupMilestone{
		GroupID:     groupID,
		Title:       core.CleanString(ngm.Title),
		Description: ngm.Description,
		Deadline:    ngm.Deadline,
		AssignedTo:  core.CleanString(ngm.AssignedTo),
		CreatedBy:   actor.UserID,
		CreatedAt:   core.Now(),
	}
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := group.Active(ctx, svc.groupRepo, groupID, false, exec); err != nil {
			return err
		}
		var err error
		if gm, err = svc.repo.CreateGroupMilestone(ctx, gm, exec); err != nil {
			return errors.Wrap(err, "creating group milestone")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionCreate, audit.EntityGroupMilestone, gm.ID, actor, nil, gm, ""))
	})
	if err != nil {
		return GroupMilestone{}, err
	}
	return gm, nil
}

// activeMilestone loads a group milestone whose group is still active.
func (svc *Service) activeMilestone(ctx context.Context, id string, exec ...core.DBExecutor) (GroupMilestone, error) {
	gm, err := svc.repo.GetGroupMilestone(ctx, id, exec...)
	if err != nil {
		return GroupMilestone{}, trapNotFound(err, id)
	}
	if _, err = group.Active(ctx, svc.groupRepo, gm.GroupID, false, exec...); err != nil {
		return GroupMilestone{}, err
	}
	return gm, nil
}

// SubmitGroupMilestone replaces the milestone's current submission.
func (svc *Service) SubmitGroupMilestone(ctx context.Context, actor account.Identity, id string, ns NewSubmission) (GroupMilestone, error) {
	if err := ns.Validate(svc.validator); err != nil {
		return GroupMilestone{}, err
	}
	pre, err := svc.activeMilestone(ctx, id)
	if err != nil {
		return GroupMilestone{}, err
	}
	filePath, key, err := svc.upload(ctx, path.Join("milestones", pre.GroupID, id), ns.File)
	if err != nil {
		return GroupMilestone{}, err
	}

	var gm GroupMilestone
	err = svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		before, err := svc.activeMilestone(ctx, id, exec)
		if err != nil {
			return err
		}
		now := core.Now()
		gm = before
		gm.SubmittedBy = actor.UserID
		gm.SubmissionContent = ns.Content
		gm.SubmissionPath = filePath
		gm.SubmittedAt = &now
		if gm, err = svc.repo.UpdateGroupMilestone(ctx, gm, exec); err != nil {
			return errors.Wrap(err, "updating group milestone")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionSubmitWork, audit.EntityGroupMilestone, id, actor, before, gm, ""))
	})
	if err != nil {
		svc.discard(ctx, key)
		return GroupMilestone{}, err
	}
	return gm, nil
}

func (svc *Service) SetMilestoneCompleted(ctx context.Context, actor account.Identity, id string, completed bool) (GroupMilestone, error) {
	var gm GroupMilestone
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		before, err := svc.activeMilestone(ctx, id, exec)
		if err != nil {
			return err
		}
		if before.IsCompleted == completed {
			gm = before
			return nil
		}
		gm = before
		gm.IsCompleted = completed
		if gm, err = svc.repo.UpdateGroupMilestone(ctx, gm, exec); err != nil {
			return errors.Wrap(err, "updating group milestone")
		}
		desc := fmt.Sprintf("completed: %t -> %t", before.IsCompleted, completed)
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionStatusChange, audit.EntityGroupMilestone, id, actor, before, gm, desc))
	})
	if err != nil {
		return GroupMilestone{}, err
	}
	return gm, nil
}

func (svc *Service) ListGroupMilestones(ctx context.Context, groupID string) ([]GroupMilestone, error) {
	if _, err := group.Active(ctx, svc.groupRepo, groupID, false); err != nil {
		return nil, err
	}
	gms, err := svc.repo.QueryGroupMilestones(ctx, MilestoneFilter{GroupID: groupID})
	if err != nil {
		return nil, errors.Wrap(err, "querying group milestones")
	}
	return gms, nil
}

func (svc *Service) AddMilestoneComment(ctx context.Context, actor account.Identity, id, content string) (MilestoneComment, error) {
	content = core.CleanString(content)
	if content == "" {
		return MilestoneComment{}, core.NewValidationError(nil, core.FieldError{Field: "content", Error: "this field is required"})
	}

	var c MilestoneComment
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.activeMilestone(ctx, id, exec); err != nil {
			return err
		}
		var err error
		c, err = svc.repo.CreateMilestoneComment(ctx, MilestoneComment{
			GroupMilestoneID: id,
			AuthorID:         actor.UserID,
			AuthorName:       actor.DisplayName(),
			AuthorRole:       actor.Role.String(),
			Content:          content,
			CreatedAt:        core.Now(),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating milestone comment")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionCreate, audit.EntityMilestoneComment, c.ID, actor, nil, c, ""))
	})
	if err != nil {
		return MilestoneComment{}, err
	}
	return c, nil
}

func (svc *Service) MilestoneComments(ctx context.Context, id string) ([]MilestoneComment, error) {
	if _, err := svc.activeMilestone(ctx, id); err != nil {
		return nil, err
	}
	comments, err := svc.repo.QueryMilestoneComments(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "querying milestone comments")
	}
	return comments, nil
}

// GradeMilestone records the actor's score for a group milestone, replacing their earlier one.
// Students grade as peers; lecturers, heads of department and admins as lecturers.
func (svc *Service) GradeMilestone(ctx context.Context, actor account.Identity, id string, ng NewGrade) (MilestoneGrade, error) {
	peer, ok := actor.Role.GradesAsPeer()
	if !ok {
		return MilestoneGrade{}, core.NewForbiddenError("grade milestones")
	}
	if err := ng.Validate(svc.validator); err != nil {
		return MilestoneGrade{}, err
	}
	role := GraderLecturer
	if peer {
		role = GraderStudent
	}

	var g MilestoneGrade
	err := svc.db.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.activeMilestone(ctx, id, exec); err != nil {
			return err
		}
		grades, err := svc.repo.QueryMilestoneGrades(ctx, id, exec)
		if err != nil {
			return errors.Wrap(err, "querying milestone grades")
		}
		var before interface{}
		for _, prev := range grades {
			if prev.GradedBy == actor.UserID {
				before = prev
				break
			}
		}

		g, err = svc.repo.UpsertMilestoneGrade(ctx, MilestoneGrade{
			GroupMilestoneID: id,
			GradedBy:         actor.UserID,
			GraderName:       actor.DisplayName(),
			GraderRole:       role,
			Score:            *ng.Score,
			Feedback:         core.CleanString(ng.Feedback),
			GradedAt:         core.Now(),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "upserting milestone grade")
		}
		return svc.appendEntry(ctx, exec, audit.NewEntry(audit.ActionGrade, audit.EntityMilestoneGrade, g.ID, actor, before, g, "milestone "+id))
	})
	if err != nil {
		return MilestoneGrade{}, err
	}
	return g, nil
}

func (svc *Service) GetGrades(ctx context.Context, id string) (Grades, error) {
	if _, err := svc.repo.GetGroupMilestone(ctx, id); err != nil {
		return Grades{}, trapNotFound(err, id)
	}
	grades, err := svc.repo.QueryMilestoneGrades(ctx, id)
	if err != nil {
		return Grades{}, errors.Wrap(err, "querying milestone grades")
	}
	return Aggregate(grades), nil
}

// DueMilestones lists the group milestones matching filter, by deadline.
func (svc *Service) DueMilestones(ctx context.Context, filter MilestoneFilter) ([]GroupMilestone, error) {
	gms, err := svc.repo.QueryGroupMilestones(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying due milestones")
	}
	return gms, nil
}
