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
	"github.com/trezcool/kazi/core/group"
)

const (
	groupsTable  = "project_groups"
	membersTable = "group_members"
)

var (
	groupColumns  = []string{"id", "template_id", "name", "class_id", "subject_code", "max_members", "created_by", "created_at", "is_deleted", "deleted_at", "deleted_by"}
	memberColumns = []string{"id", "group_id", "user_id", "student_code", "full_name", "role", "joined_at"}
)

type (
	groupRow struct {
		ID          string      `db:"id"`
		TemplateID  null.String `db:"template_id"`
		Name        string      `db:"name"`
		ClassID     string      `db:"class_id"`
		SubjectCode null.String `db:"subject_code"`
		MaxMembers  int         `db:"max_members"`
		CreatedBy   string      `db:"created_by"`
		CreatedAt   time.Time   `db:"created_at"`
		IsDeleted   bool        `db:"is_deleted"`
		DeletedAt   null.Time   `db:"deleted_at"`
		DeletedBy   string      `db:"deleted_by"`
	}

	memberRow struct {
		ID          string    `db:"id"`
		GroupID     string    `db:"group_id"`
		UserID      string    `db:"user_id"`
		StudentCode string    `db:"student_code"`
		FullName    string    `db:"full_name"`
		Role        string    `db:"role"`
		JoinedAt    time.Time `db:"joined_at"`
	}
)

type groupRepository struct {
	baseRepo
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *sqlx.DB) *groupRepository {
	return &groupRepository{baseRepo{db: db}}
}

func (groupRepository) unboil(row groupRow) group.Group {
	return group.Group{
		ID:          row.ID,
		TemplateID:  row.TemplateID.Ptr(),
		Name:        row.Name,
		ClassID:     row.ClassID,
		SubjectCode: row.SubjectCode.Ptr(),
		MaxMembers:  row.MaxMembers,
		CreatedBy:   row.CreatedBy,
		CreatedAt:   row.CreatedAt,
		Deletable: core.Deletable{
			IsDeleted: row.IsDeleted,
			DeletedAt: row.DeletedAt.Ptr(),
			DeletedBy: row.DeletedBy,
		},
	}
}

func (groupRepository) unboilMember(row memberRow) group.Member {
	return group.Member{
		ID:          row.ID,
		GroupID:     row.GroupID,
		UserID:      row.UserID,
		StudentCode: row.StudentCode,
		FullName:    row.FullName,
		Role:        group.MemberRole(row.Role),
		JoinedAt:    row.JoinedAt,
	}
}

func (repo groupRepository) CreateGroup(ctx context.Context, g group.Group, exec ...core.DBExecutor) (group.Group, error) {
	g.ID = uuid.New().String()
	q, args, err := toSql(psql.Insert(groupsTable).Columns(groupColumns...).Values(
		g.ID, nullString(g.TemplateID), g.Name, g.ClassID, nullString(g.SubjectCode), g.MaxMembers,
		g.CreatedBy, g.CreatedAt, g.IsDeleted, nullTime(g.DeletedAt), g.DeletedBy,
	))
	if err != nil {
		return group.Group{}, err
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, q, args...); err != nil {
		return group.Group{}, errors.Wrap(err, "inserting group")
	}
	return g, nil
}

func (repo groupRepository) get(ctx context.Context, id string, lock bool, exec []core.DBExecutor) (group.Group, error) {
	b := psql.Select(groupColumns...).From(groupsTable).Where(sq.Eq{"id": id})
	if lock {
		b = b.Suffix("FOR UPDATE")
	}
	q, args, err := toSql(b)
	if err != nil {
		return group.Group{}, err
	}
	var row groupRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, q, args...); err != nil {
		return group.Group{}, trapNoRowsErr(err, group.ErrNotFound, "selecting group")
	}
	return repo.unboil(row), nil
}

func (repo groupRepository) GetGroup(ctx context.Context, id string, exec ...core.DBExecutor) (group.Group, error) {
	return repo.get(ctx, id, false, exec)
}

// LockGroup serializes membership changes of a group: concurrent AddMember calls wait on this row.
func (repo groupRepository) LockGroup(ctx context.Context, id string, exec ...core.DBExecutor) (group.Group, error) {
	return repo.get(ctx, id, true, exec)
}

func (repo groupRepository) UpdateGroup(ctx context.Context, g group.Group, exec ...core.DBExecutor) (group.Group, error) {
	q, args, err := toSql(psql.Update(groupsTable).SetMap(map[string]interface{}{
		"template_id":  nullString(g.TemplateID),
		"name":         g.Name,
		"subject_code": nullString(g.SubjectCode),
		"max_members":  g.MaxMembers,
		"is_deleted":   g.IsDeleted,
		"deleted_at":   nullTime(g.DeletedAt),
		"deleted_by":   g.DeletedBy,
	}).Where(sq.Eq{"id": g.ID}))
	if err != nil {
		return group.Group{}, err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q, args...)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "updating group")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return group.Group{}, group.ErrNotFound
	}
	return g, nil
}

func (repo groupRepository) QueryGroups(ctx context.Context, filter group.QueryFilter, exec ...core.DBExecutor) ([]group.Group, error) {
	b := psql.Select(groupColumns...).From(groupsTable).Where(sq.Eq{"is_deleted": false})
	if filter.ClassID != "" {
		b = b.Where(sq.Eq{"class_id": filter.ClassID})
	}
	if filter.TemplateID != "" {
		b = b.Where(sq.Eq{"template_id": filter.TemplateID})
	}
	if filter.SubjectCode != "" {
		// groups created before subject codes existed match every subject
		b = b.Where(sq.Or{sq.Eq{"subject_code": nil}, sq.Eq{"subject_code": filter.SubjectCode}})
	}
	q, args, err := toSql(b.OrderBy("created_at", "id"))
	if err != nil {
		return nil, err
	}

	var rows []groupRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting groups")
	}
	groups := make([]group.Group, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, repo.unboil(row))
	}
	return groups, nil
}

func (repo groupRepository) CreateMember(ctx context.Context, m group.Member, exec ...core.DBExecutor) (group.Member, error) {
	m.ID = uuid.New().String()
	q, args, err := toSql(psql.Insert(membersTable).Columns(memberColumns...).Values(
		m.ID, m.GroupID, m.UserID, m.StudentCode, m.FullName, string(m.Role), m.JoinedAt,
	))
	if err != nil {
		return group.Member{}, err
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return group.Member{}, group.ErrDuplicateMember
		}
		return group.Member{}, errors.Wrap(err, "inserting member")
	}
	return m, nil
}

func (repo groupRepository) GetMember(ctx context.Context, id string, exec ...core.DBExecutor) (group.Member, error) {
	q, args, err := toSql(psql.Select(memberColumns...).From(membersTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return group.Member{}, err
	}
	var row memberRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, q, args...); err != nil {
		return group.Member{}, trapNoRowsErr(err, group.ErrMemberNotFound, "selecting member")
	}
	return repo.unboilMember(row), nil
}

func (repo groupRepository) UpdateMember(ctx context.Context, m group.Member, exec ...core.DBExecutor) (group.Member, error) {
	q, args, err := toSql(psql.Update(membersTable).
		Set("role", string(m.Role)).
		Set("full_name", m.FullName).
		Where(sq.Eq{"id": m.ID}))
	if err != nil {
		return group.Member{}, err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q, args...)
	if err != nil {
		return group.Member{}, errors.Wrap(err, "updating member")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return group.Member{}, group.ErrMemberNotFound
	}
	return repo.GetMember(ctx, m.ID, exec...)
}

func (repo groupRepository) DeleteMember(ctx context.Context, id string, exec ...core.DBExecutor) error {
	q, args, err := toSql(psql.Delete(membersTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "deleting member")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return group.ErrMemberNotFound
	}
	return nil
}

func (repo groupRepository) QueryMembers(ctx context.Context, groupID string, exec ...core.DBExecutor) ([]group.Member, error) {
	q, args, err := toSql(psql.Select(memberColumns...).
		From(membersTable).
		Where(sq.Eq{"group_id": groupID}).
		OrderBy("joined_at", "id"))
	if err != nil {
		return nil, err
	}
	var rows []memberRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting members")
	}
	members := make([]group.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, repo.unboilMember(row))
	}
	return members, nil
}
