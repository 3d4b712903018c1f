package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/task"
)

type taskRepository struct {
	db *DB
}

var _ task.Repository = (*taskRepository)(nil) // interface compliance check

func NewTaskRepository(db *DB) *taskRepository {
	return &taskRepository{db: db}
}

// taskActive reports whether the parent task exists and is not soft-deleted. Caller holds the lock.
func (repo *taskRepository) taskActive(id string) bool {
	t, ok := repo.db.t.tasks.get(id)
	return ok && t.Active()
}

func (repo *taskRepository) CreateTask(_ context.Context, t task.Task, _ ...core.DBExecutor) (task.Task, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	t.ID = uuid.New().String()
	repo.db.t.tasks.insert(t.ID, t)
	return t, nil
}

func (repo *taskRepository) GetTask(_ context.Context, id string, _ ...core.DBExecutor) (task.Task, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	t, ok := repo.db.t.tasks.get(id)
	if !ok {
		return task.Task{}, task.ErrNotFound
	}
	return t, nil
}

func (repo *taskRepository) UpdateTask(_ context.Context, t task.Task, _ ...core.DBExecutor) (task.Task, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if !repo.db.t.tasks.update(t.ID, t) {
		return task.Task{}, task.ErrNotFound
	}
	return t, nil
}

func (repo *taskRepository) QueryTasks(_ context.Context, filter task.QueryFilter, _ ...core.DBExecutor) ([]task.Task, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.db.t.tasks.filter(func(t task.Task) bool {
		return t.Active() &&
			(filter.GroupID == "" || t.GroupID == filter.GroupID) &&
			(filter.AssignedToUserID == "" || (t.AssignedToUserID != nil && *t.AssignedToUserID == filter.AssignedToUserID)) &&
			(filter.Status == nil || t.Status == *filter.Status)
	}), nil
}

func (repo *taskRepository) CreateSubItem(_ context.Context, si task.SubItem, _ ...core.DBExecutor) (task.SubItem, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	si.ID = uuid.New().String()
	repo.db.t.subItems.insert(si.ID, si)
	return si, nil
}

func (repo *taskRepository) GetSubItem(_ context.Context, id string, _ ...core.DBExecutor) (task.SubItem, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	si, ok := repo.db.t.subItems.get(id)
	if !ok {
		return task.SubItem{}, task.ErrSubItemNotFound
	}
	return si, nil
}

func (repo *taskRepository) UpdateSubItem(_ context.Context, si task.SubItem, _ ...core.DBExecutor) (task.SubItem, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if !repo.db.t.subItems.update(si.ID, si) {
		return task.SubItem{}, task.ErrSubItemNotFound
	}
	return si, nil
}

func (repo *taskRepository) QuerySubItems(_ context.Context, taskID string, _ ...core.DBExecutor) ([]task.SubItem, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if !repo.taskActive(taskID) {
		return []task.SubItem{}, nil
	}
	return repo.db.t.subItems.filter(func(si task.SubItem) bool { return si.TaskID == taskID }), nil
}

func (repo *taskRepository) CreateComment(_ context.Context, c task.Comment, _ ...core.DBExecutor) (task.Comment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	c.ID = uuid.New().String()
	repo.db.t.comments.insert(c.ID, c)
	return c, nil
}

func (repo *taskRepository) QueryComments(_ context.Context, taskID string, _ ...core.DBExecutor) ([]task.Comment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if !repo.taskActive(taskID) {
		return []task.Comment{}, nil
	}
	return repo.db.t.comments.filter(func(c task.Comment) bool { return c.TaskID == taskID }), nil
}
