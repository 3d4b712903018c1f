package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/submission"
)

type submissionRepository struct {
	db *DB
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *DB) *submissionRepository {
	return &submissionRepository{db: db}
}

func (repo *submissionRepository) GetSubmission(_ context.Context, id string, _ ...core.DBExecutor) (submission.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	s, ok := repo.db.t.submissions.get(id)
	if !ok {
		return submission.Submission{}, submission.ErrNotFound
	}
	return s, nil
}

// find looks up the (group, milestone) row. Caller holds the lock.
func (repo *submissionRepository) find(groupID, milestoneID string) (submission.Submission, bool) {
	rows := repo.db.t.submissions.filter(func(s submission.Submission) bool {
		return s.GroupID == groupID && s.MilestoneID == milestoneID
	})
	if len(rows) == 0 {
		return submission.Submission{}, false
	}
	return rows[0], true
}

func (repo *submissionRepository) FindSubmission(_ context.Context, groupID, milestoneID string, _ ...core.DBExecutor) (submission.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	s, ok := repo.find(groupID, milestoneID)
	if !ok {
		return submission.Submission{}, submission.ErrNotFound
	}
	return s, nil
}

func (repo *submissionRepository) UpsertSubmission(_ context.Context, s submission.Submission, _ ...core.DBExecutor) (submission.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if prev, ok := repo.find(s.GroupID, s.MilestoneID); ok {
		s.ID = prev.ID
	} else {
		s.ID = uuid.New().String()
	}
	repo.db.t.submissions.insert(s.ID, s)
	return s, nil
}

func (repo *submissionRepository) UpdateSubmission(_ context.Context, s submission.Submission, _ ...core.DBExecutor) (submission.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if !repo.db.t.submissions.update(s.ID, s) {
		return submission.Submission{}, submission.ErrNotFound
	}
	return s, nil
}

func (repo *submissionRepository) QuerySubmissions(_ context.Context, groupID string, _ ...core.DBExecutor) ([]submission.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.db.t.submissions.filter(func(s submission.Submission) bool { return s.GroupID == groupID }), nil
}

func (repo *submissionRepository) CreateGroupMilestone(_ context.Context, gm submission.GroupMilestone, _ ...core.DBExecutor) (submission.GroupMilestone, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	gm.ID = uuid.New().String()
	repo.db.t.groupMilestones.insert(gm.ID, gm)
	return gm, nil
}

func (repo *submissionRepository) GetGroupMilestone(_ context.Context, id string, _ ...core.DBExecutor) (submission.GroupMilestone, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	gm, ok := repo.db.t.groupMilestones.get(id)
	if !ok {
		return submission.GroupMilestone{}, submission.ErrGroupMilestoneNotFound
	}
	return gm, nil
}

func (repo *submissionRepository) UpdateGroupMilestone(_ context.Context, gm submission.GroupMilestone, _ ...core.DBExecutor) (submission.GroupMilestone, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if !repo.db.t.groupMilestones.update(gm.ID, gm) {
		return submission.GroupMilestone{}, submission.ErrGroupMilestoneNotFound
	}
	return gm, nil
}

func (repo *submissionRepository) QueryGroupMilestones(_ context.Context, filter submission.MilestoneFilter, _ ...core.DBExecutor) ([]submission.GroupMilestone, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := repo.db.t.groupMilestones.filter(func(gm submission.GroupMilestone) bool {
		if filter.GroupID != "" && gm.GroupID != filter.GroupID {
			return false
		}
		if filter.IsCompleted != nil && gm.IsCompleted != *filter.IsCompleted {
			return false
		}
		if filter.DueFrom != nil && (gm.Deadline == nil || gm.Deadline.Before(*filter.DueFrom)) {
			return false
		}
		if filter.DueTo != nil && (gm.Deadline == nil || gm.Deadline.After(*filter.DueTo)) {
			return false
		}
		return true
	})
	sort.SliceStable(rows, func(i, j int) bool { return compareTimePtr(rows[i].Deadline, rows[j].Deadline) < 0 })
	return rows, nil
}

func (repo *submissionRepository) CreateMilestoneComment(_ context.Context, c submission.MilestoneComment, _ ...core.DBExecutor) (submission.MilestoneComment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	c.ID = uuid.New().String()
	repo.db.t.milestoneComments.insert(c.ID, c)
	return c, nil
}

func (repo *submissionRepository) QueryMilestoneComments(_ context.Context, groupMilestoneID string, _ ...core.DBExecutor) ([]submission.MilestoneComment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.db.t.milestoneComments.filter(func(c submission.MilestoneComment) bool {
		return c.GroupMilestoneID == groupMilestoneID
	}), nil
}

func (repo *submissionRepository) UpsertMilestoneGrade(_ context.Context, g submission.MilestoneGrade, _ ...core.DBExecutor) (submission.MilestoneGrade, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	prev := repo.db.t.milestoneGrades.filter(func(o submission.MilestoneGrade) bool {
		return o.GroupMilestoneID == g.GroupMilestoneID && o.GradedBy == g.GradedBy
	})
	if len(prev) > 0 {
		g.ID = prev[0].ID
	} else {
		g.ID = uuid.New().String()
	}
	repo.db.t.milestoneGrades.insert(g.ID, g)
	return g, nil
}

func (repo *submissionRepository) QueryMilestoneGrades(_ context.Context, groupMilestoneID string, _ ...core.DBExecutor) ([]submission.MilestoneGrade, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.db.t.milestoneGrades.filter(func(g submission.MilestoneGrade) bool {
		return g.GroupMilestoneID == groupMilestoneID
	}), nil
}
