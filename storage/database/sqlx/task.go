package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/task"
)

const (
	tasksTable    = "project_tasks"
	subItemsTable = "task_sub_items"
	commentsTable = "task_comments"
)

var (
	taskColumns = []string{
		"id", "group_id", "title", "description", "status", "priority", "deadline", "assigned_to_user_id",
		"complexity_weight", "estimated_hours", "created_by", "created_at", "updated_at", "is_deleted", "deleted_at", "deleted_by",
	}
	subItemColumns = []string{"id", "task_id", "content", "is_done", "created_at"}
	commentColumns = []string{"id", "task_id", "content", "author_id", "author_name", "created_at"}
)

type (
	taskRow struct {
		ID               string      `db:"id"`
		GroupID          string      `db:"group_id"`
		Title            string      `db:"title"`
		Description      string      `db:"description"`
		Status           int         `db:"status"`
		Priority         int         `db:"priority"`
		Deadline         null.Time   `db:"deadline"`
		AssignedToUserID null.String `db:"assigned_to_user_id"`
		ComplexityWeight int         `db:"complexity_weight"`
		EstimatedHours   float64     `db:"estimated_hours"`
		CreatedBy        string      `db:"created_by"`
		CreatedAt        time.Time   `db:"created_at"`
		UpdatedAt        time.Time   `db:"updated_at"`
		IsDeleted        bool        `db:"is_deleted"`
		DeletedAt        null.Time   `db:"deleted_at"`
		DeletedBy        string      `db:"deleted_by"`
	}

	subItemRow struct {
		ID        string    `db:"id"`
		TaskID    string    `db:"task_id"`
		Content   string    `db:"content"`
		IsDone    bool      `db:"is_done"`
		CreatedAt time.Time `db:"created_at"`
	}

	commentRow struct {
		ID         string    `db:"id"`
		TaskID     string    `db:"task_id"`
		Content    string    `db:"content"`
		AuthorID   string    `db:"author_id"`
		AuthorName string    `db:"author_name"`
		CreatedAt  time.Time `db:"created_at"`
	}
)

type taskRepository struct {
	baseRepo
}

var _ task.Repository = (*taskRepository)(nil) // interface compliance check

func NewTaskRepository(db *sqlx.DB) *taskRepository {
	return &taskRepository{baseRepo{db: db}}
}

func (taskRepository) unboil(row taskRow) task.Task {
	return task.Task{
		ID:               row.ID,
		GroupID:          row.GroupID,
		Title:            row.Title,
		Description:      row.Description,
		Status:           task.Status(row.Status),
		Priority:         row.Priority,
		Deadline:         row.Deadline.Ptr(),
		AssignedToUserID: row.AssignedToUserID.Ptr(),
		ComplexityWeight: row.ComplexityWeight,
		EstimatedHours:   row.EstimatedHours,
		CreatedBy:        row.CreatedBy,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
		Deletable: core.Deletable{
			IsDeleted: row.IsDeleted,
			DeletedAt: row.DeletedAt.Ptr(),
			DeletedBy: row.DeletedBy,
		},
	}
}

func (repo taskRepository) CreateTask(ctx context.Context, t task.Task, exec ...core.DBExecutor) (task.Task, error) {
	t.ID = uuid.New().String()
	q, args, err := toSql(psql.Insert(tasksTable).Columns(taskColumns...).Values(
		t.ID, t.GroupID, t.Title, t.Description, int(t.Status), t.Priority, nullTime(t.Deadline), nullString(t.AssignedToUserID),
		t.ComplexityWeight, t.EstimatedHours, t.CreatedBy, t.CreatedAt, t.UpdatedAt, t.IsDeleted, nullTime(t.DeletedAt), t.DeletedBy,
	))
	if err != nil {
		return task.Task{}, err
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, q, args...); err != nil {
		return task.Task{}, errors.Wrap(err, "inserting task")
	}
	return t, nil
}

func (repo taskRepository) GetTask(ctx context.Context, id string, exec ...core.DBExecutor) (task.Task, error) {
	q, args, err := toSql(psql.Select(taskColumns...).From(tasksTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return task.Task{}, err
	}
	var row taskRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, q, args...); err != nil {
		return task.Task{}, trapNoRowsErr(err, task.ErrNotFound, "selecting task")
	}
	return repo.unboil(row), nil
}

func (repo taskRepository) UpdateTask(ctx context.Context, t task.Task, exec ...core.DBExecutor) (task.Task, error) {
	q, args, err := toSql(psql.Update(tasksTable).SetMap(map[string]interface{}{
		"title":               t.Title,
		"description":         t.Description,
		"status":              int(t.Status),
		"priority":            t.Priority,
		"deadline":            nullTime(t.Deadline),
		"assigned_to_user_id": nullString(t.AssignedToUserID),
		"complexity_weight":   t.ComplexityWeight,
		"estimated_hours":     t.EstimatedHours,
		"updated_at":          t.UpdatedAt,
		"is_deleted":          t.IsDeleted,
		"deleted_at":          nullTime(t.DeletedAt),
		"deleted_by":          t.DeletedBy,
	}).Where(sq.Eq{"id": t.ID}))
	if err != nil {
		return task.Task{}, err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q, args...)
	if err != nil {
		return task.Task{}, errors.Wrap(err, "updating task")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return task.Task{}, task.ErrNotFound
	}
	return t, nil
}

func (repo taskRepository) QueryTasks(ctx context.Context, filter task.QueryFilter, exec ...core.DBExecutor) ([]task.Task, error) {
	b := psql.Select(taskColumns...).From(tasksTable).Where(sq.Eq{"is_deleted": false})
	if filter.GroupID != "" {
		b = b.Where(sq.Eq{"group_id": filter.GroupID})
	}
	if filter.AssignedToUserID != "" {
		b = b.Where(sq.Eq{"assigned_to_user_id": filter.AssignedToUserID})
	}
	if filter.Status != nil {
		b = b.Where(sq.Eq{"status": int(*filter.Status)})
	}
	q, args, err := toSql(b.OrderBy("created_at", "id"))
	if err != nil {
		return nil, err
	}

	var rows []taskRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting tasks")
	}
	tasks := make([]task.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, repo.unboil(row))
	}
	return tasks, nil
}

func (repo taskRepository) CreateSubItem(ctx context.Context, si task.SubItem, exec ...core.DBExecutor) (task.SubItem, error) {
	si.ID = uuid.New().String()
	q, args, err := toSql(psql.Insert(subItemsTable).Columns(subItemColumns...).Values(si.ID, si.TaskID, si.Content, si.IsDone, si.CreatedAt))
	if err != nil {
		return task.SubItem{}, err
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, q, args...); err != nil {
		return task.SubItem{}, errors.Wrap(err, "inserting sub-item")
	}
	return si, nil
}

func (repo taskRepository) GetSubItem(ctx context.Context, id string, exec ...core.DBExecutor) (task.SubItem, error) {
	q, args, err := toSql(psql.Select(subItemColumns...).From(subItemsTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return task.SubItem{}, err
	}
	var row subItemRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, q, args...); err != nil {
		return task.SubItem{}, trapNoRowsErr(err, task.ErrSubItemNotFound, "selecting sub-item")
	}
	return task.SubItem(row), nil
}

func (repo taskRepository) UpdateSubItem(ctx context.Context, si task.SubItem, exec ...core.DBExecutor) (task.SubItem, error) {
	q, args, err := toSql(psql.Update(subItemsTable).
		Set("content", si.Content).
		Set("is_done", si.IsDone).
		Where(sq.Eq{"id": si.ID}))
	if err != nil {
		return task.SubItem{}, err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q, args...)
	if err != nil {
		return task.SubItem{}, errors.Wrap(err, "updating sub-item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return task.SubItem{}, task.ErrSubItemNotFound
	}
	return si, nil
}

// activeChildren selects the rows of table belonging to an active task.
func activeChildren(table string, columns []string, taskID string) sq.SelectBuilder {
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, "c."+c)
	}
	return psql.Select(cols...).
		From(table + " c").
		Join(tasksTable + " t ON t.id = c.task_id").
		Where(sq.Eq{"c.task_id": taskID, "t.is_deleted": false}).
		OrderBy("c.created_at", "c.id")
}

func (repo taskRepository) QuerySubItems(ctx context.Context, taskID string, exec ...core.DBExecutor) ([]task.SubItem, error) {
	q, args, err := toSql(activeChildren(subItemsTable, subItemColumns, taskID))
	if err != nil {
		return nil, err
	}
	var rows []subItemRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting sub-items")
	}
	items := make([]task.SubItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, task.SubItem(row))
	}
	return items, nil
}

func (repo taskRepository) CreateComment(ctx context.Context, c task.Comment, exec ...core.DBExecutor) (task.Comment, error) {
	c.ID = uuid.New().String()
	q, args, err := toSql(psql.Insert(commentsTable).Columns(commentColumns...).Values(
		c.ID, c.TaskID, c.Content, c.AuthorID, c.AuthorName, c.CreatedAt,
	))
	if err != nil {
		return task.Comment{}, err
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, q, args...); err != nil {
		return task.Comment{}, errors.Wrap(err, "inserting comment")
	}
	return c, nil
}

func (repo taskRepository) QueryComments(ctx context.Context, taskID string, exec ...core.DBExecutor) ([]task.Comment, error) {
	q, args, err := toSql(activeChildren(commentsTable, commentColumns, taskID))
	if err != nil {
		return nil, err
	}
	var rows []commentRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting comments")
	}
	comments := make([]task.Comment, 0, len(rows))
	for _, row := range rows {
		comments = append(comments, task.Comment(row))
	}
	return comments, nil
}
