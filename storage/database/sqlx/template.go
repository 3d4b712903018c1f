package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/template"
)

const (
	templatesTable  = "project_templates"
	milestonesTable = "template_milestones"
)

var (
	templateColumns  = []string{"id", "subject_id", "name", "description", "status", "deadline", "assigned_class_ids", "created_by", "approver_id", "created_at", "approved_at"}
	milestoneColumns = []string{"id", "template_id", "title", "description", "order_index", "deadline", "questions"}
)

type (
	templateRow struct {
		ID               string    `db:"id"`
		SubjectID        string    `db:"subject_id"`
		Name             string    `db:"name"`
		Description      string    `db:"description"`
		Status           string    `db:"status"`
		Deadline         null.Time `db:"deadline"`
		AssignedClassIDs string    `db:"assigned_class_ids"`
		CreatedBy        string    `db:"created_by"`
		ApproverID       string    `db:"approver_id"`
		CreatedAt        time.Time `db:"created_at"`
		ApprovedAt       null.Time `db:"approved_at"`
	}

	milestoneRow struct {
		ID          string         `db:"id"`
		TemplateID  string         `db:"template_id"`
		Title       string         `db:"title"`
		Description string         `db:"description"`
		OrderIndex  int            `db:"order_index"`
		Deadline    null.Time      `db:"deadline"`
		Questions   pq.StringArray `db:"questions"`
	}
)

type templateRepository struct {
	baseRepo
}

var _ template.Repository = (*templateRepository)(nil) // interface compliance check

func NewTemplateRepository(db *sqlx.DB) *templateRepository {
	return &templateRepository{baseRepo{db: db}}
}

func (templateRepository) unboil(row templateRow, milestones []template.Milestone) template.Template {
	if milestones == nil {
		milestones = []template.Milestone{}
	}
	return template.Template{
		ID:               row.ID,
		SubjectID:        row.SubjectID,
		Name:             row.Name,
		Description:      row.Description,
		Status:           template.Status(row.Status),
		Deadline:         row.Deadline.Ptr(),
		AssignedClassIDs: splitIDs(row.AssignedClassIDs),
		CreatedBy:        row.CreatedBy,
		ApproverID:       row.ApproverID,
		CreatedAt:        row.CreatedAt,
		ApprovedAt:       row.ApprovedAt.Ptr(),
		Milestones:       milestones,
	}
}

func (templateRepository) unboilMilestone(row milestoneRow) template.Milestone {
	questions := []string(row.Questions)
	if questions == nil {
		questions = []string{}
	}
	return template.Milestone{
		ID:          row.ID,
		TemplateID:  row.TemplateID,
		Title:       row.Title,
		Description: row.Description,
		OrderIndex:  row.OrderIndex,
		Deadline:    row.Deadline.Ptr(),
		Questions:   questions,
	}
}

// milestones loads the milestones of the given templates, keyed by template id.
func (repo templateRepository) milestones(ctx context.Context, exec core.DBExecutor, templateIDs ...string) (map[string][]template.Milestone, error) {
	res := make(map[string][]template.Milestone, len(templateIDs))
	if len(templateIDs) == 0 {
		return res, nil
	}
	q, args, err := toSql(psql.Select(milestoneColumns...).
		From(milestonesTable).
		Where(sq.Eq{"template_id": templateIDs}).
		OrderBy("template_id", "order_index"))
	if err != nil {
		return nil, err
	}
	var rows []milestoneRow
	if err = sqlx.SelectContext(ctx, exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting milestones")
	}
	for _, row := range rows {
		res[row.TemplateID] = append(res[row.TemplateID], repo.unboilMilestone(row))
	}
	return res, nil
}

func (repo templateRepository) CreateTemplate(ctx context.Context, tpl template.Template, exec ...core.DBExecutor) (template.Template, error) {
	ex := repo.getExec(exec)
	tpl.ID = uuid.New().String()

	q, args, err := toSql(psql.Insert(templatesTable).Columns(templateColumns...).Values(
		tpl.ID, tpl.SubjectID, tpl.Name, tpl.Description, string(tpl.Status), nullTime(tpl.Deadline),
		joinIDs(tpl.AssignedClassIDs), tpl.CreatedBy, tpl.ApproverID, tpl.CreatedAt, nullTime(tpl.ApprovedAt),
	))
	if err != nil {
		return template.Template{}, err
	}
	if _, err = ex.ExecContext(ctx, q, args...); err != nil {
		return template.Template{}, errors.Wrap(err, "inserting template")
	}

	for i := range tpl.Milestones {
		m := &tpl.Milestones[i]
		m.ID = uuid.New().String()
		m.TemplateID = tpl.ID
		questions := m.Questions
		if questions == nil {
			questions = []string{}
		}
		q, args, err = toSql(psql.Insert(milestonesTable).Columns(milestoneColumns...).Values(
			m.ID, m.TemplateID, m.Title, m.Description, m.OrderIndex, nullTime(m.Deadline), pq.StringArray(questions),
		))
		if err != nil {
			return template.Template{}, err
		}
		if _, err = ex.ExecContext(ctx, q, args...); err != nil {
			return template.Template{}, errors.Wrap(err, "inserting milestone")
		}
	}
	return repo.GetTemplate(ctx, tpl.ID, ex)
}

func (repo templateRepository) get(ctx context.Context, id string, lock bool, exec core.DBExecutor) (template.Template, error) {
	b := psql.Select(templateColumns...).From(templatesTable).Where(sq.Eq{"id": id})
	if lock {
		b = b.Suffix("FOR UPDATE")
	}
	q, args, err := toSql(b)
	if err != nil {
		return template.Template{}, err
	}
	var row templateRow
	if err = sqlx.GetContext(ctx, exec, &row, q, args...); err != nil {
		return template.Template{}, trapNoRowsErr(err, template.ErrNotFound, "selecting template")
	}
	ms, err := repo.milestones(ctx, exec, id)
	if err != nil {
		return template.Template{}, err
	}
	return repo.unboil(row, ms[id]), nil
}

func (repo templateRepository) GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (template.Template, error) {
	return repo.get(ctx, id, false, repo.getExec(exec))
}

func (repo templateRepository) LockTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (template.Template, error) {
	return repo.get(ctx, id, true, repo.getExec(exec))
}

func (repo templateRepository) UpdateTemplate(ctx context.Context, tpl template.Template, exec ...core.DBExecutor) (template.Template, error) {
	ex := repo.getExec(exec)
	q, args, err := toSql(psql.Update(templatesTable).SetMap(map[string]interface{}{
		"status":             string(tpl.Status),
		"approver_id":        tpl.ApproverID,
		"approved_at":        nullTime(tpl.ApprovedAt),
		"assigned_class_ids": joinIDs(tpl.AssignedClassIDs),
	}).Where(sq.Eq{"id": tpl.ID}))
	if err != nil {
		return template.Template{}, err
	}
	res, err := ex.ExecContext(ctx, q, args...)
	if err != nil {
		return template.Template{}, errors.Wrap(err, "updating template")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return template.Template{}, template.ErrNotFound
	}
	return repo.GetTemplate(ctx, tpl.ID, ex)
}

func (repo templateRepository) QueryTemplates(
	ctx context.Context,
	filter template.QueryFilter,
	ordering []core.DBOrdering,
	exec ...core.DBExecutor,
) ([]template.Template, error) {
	ex := repo.getExec(exec)
	b := psql.Select(templateColumns...).From(templatesTable)
	if filter.Status != "" {
		b = b.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.SubjectID != "" {
		b = b.Where(sq.Eq{"subject_id": filter.SubjectID})
	}
	if filter.CreatedBy != "" {
		b = b.Where(sq.Eq{"created_by": filter.CreatedBy})
	}
	if filter.ClassID != "" {
		b = b.Where(sq.Expr("(',' || assigned_class_ids || ',') LIKE ?", "%,"+filter.ClassID+",%"))
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	for _, ord := range ordering {
		b = b.OrderBy(ord.String())
	}

	q, args, err := toSql(b)
	if err != nil {
		return nil, err
	}
	var rows []templateRow
	if err = sqlx.SelectContext(ctx, ex, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting templates")
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	ms, err := repo.milestones(ctx, ex, ids...)
	if err != nil {
		return nil, err
	}
	tpls := make([]template.Template, 0, len(rows))
	for _, row := range rows {
		tpls = append(tpls, repo.unboil(row, ms[row.ID]))
	}
	return tpls, nil
}

func (repo templateRepository) GetMilestone(ctx context.Context, id string, exec ...core.DBExecutor) (template.Milestone, error) {
	q, args, err := toSql(psql.Select(milestoneColumns...).From(milestonesTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return template.Milestone{}, err
	}
	var row milestoneRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, q, args...); err != nil {
		return template.Milestone{}, trapNoRowsErr(err, template.ErrMilestoneNotFound, "selecting milestone")
	}
	return repo.unboilMilestone(row), nil
}
