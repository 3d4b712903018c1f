package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/group"
)

type groupRepository struct {
	db *DB
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *DB) *groupRepository {
	return &groupRepository{db: db}
}

func (repo *groupRepository) CreateGroup(_ context.Context, g group.Group, _ ...core.DBExecutor) (group.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	g.ID = uuid.New().String()
	repo.db.t.groups.insert(g.ID, g)
	return g, nil
}

func (repo *groupRepository) GetGroup(_ context.Context, id string, _ ...core.DBExecutor) (group.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	g, ok := repo.db.t.groups.get(id)
	if !ok {
		return group.Group{}, group.ErrNotFound
	}
	return g, nil
}

func (repo *groupRepository) LockGroup(ctx context.Context, id string, exec ...core.DBExecutor) (group.Group, error) {
	return repo.GetGroup(ctx, id, exec...)
}

func (repo *groupRepository) UpdateGroup(_ context.Context, g group.Group, _ ...core.DBExecutor) (group.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if !repo.db.t.groups.update(g.ID, g) {
		return group.Group{}, group.ErrNotFound
	}
	return g, nil
}

func (repo *groupRepository) QueryGroups(_ context.Context, filter group.QueryFilter, _ ...core.DBExecutor) ([]group.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.db.t.groups.filter(func(g group.Group) bool {
		return g.Active() &&
			(filter.ClassID == "" || g.ClassID == filter.ClassID) &&
			(filter.TemplateID == "" || (g.TemplateID != nil && *g.TemplateID == filter.TemplateID)) &&
			(filter.SubjectCode == "" || g.SubjectCode == nil || *g.SubjectCode == filter.SubjectCode)
	}), nil
}

func (repo *groupRepository) CreateMember(_ context.Context, m group.Member, _ ...core.DBExecutor) (group.Member, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing := repo.db.t.members.filter(func(o group.Member) bool { return o.GroupID == m.GroupID })
	if _, dup := group.HasMember(existing, m.UserID, m.StudentCode); dup {
		return group.Member{}, group.ErrDuplicateMember
	}
	m.ID = uuid.New().String()
	repo.db.t.members.insert(m.ID, m)
	return m, nil
}

func (repo *groupRepository) GetMember(_ context.Context, id string, _ ...core.DBExecutor) (group.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	m, ok := repo.db.t.members.get(id)
	if !ok {
		return group.Member{}, group.ErrMemberNotFound
	}
	return m, nil
}

func (repo *groupRepository) UpdateMember(_ context.Context, m group.Member, _ ...core.DBExecutor) (group.Member, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	row, ok := repo.db.t.members.get(m.ID)
	if !ok {
		return group.Member{}, group.ErrMemberNotFound
	}
	row.Role = m.Role
	row.FullName = m.FullName
	repo.db.t.members.update(row.ID, row)
	return row, nil
}

func (repo *groupRepository) DeleteMember(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.t.members.get(id); !ok {
		return group.ErrMemberNotFound
	}
	repo.db.t.members.delete(id)
	return nil
}

func (repo *groupRepository) QueryMembers(_ context.Context, groupID string, _ ...core.DBExecutor) ([]group.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.db.t.members.filter(func(m group.Member) bool { return m.GroupID == groupID }), nil
}
