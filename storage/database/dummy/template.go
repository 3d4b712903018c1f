package dummydb

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/template"
)

type templateRepository struct {
	db *DB
}

var _ template.Repository = (*templateRepository)(nil) // interface compliance check

func NewTemplateRepository(db *DB) *templateRepository {
	return &templateRepository{db: db}
}

// load attaches the milestones, ordered by OrderIndex. Caller holds the lock.
func (repo *templateRepository) load(tpl template.Template) template.Template {
	tpl.Milestones = repo.db.t.milestones.filter(func(m template.Milestone) bool { return m.TemplateID == tpl.ID })
	sort.SliceStable(tpl.Milestones, func(i, j int) bool { return tpl.Milestones[i].OrderIndex < tpl.Milestones[j].OrderIndex })
	return tpl.Clone()
}

func (repo *templateRepository) CreateTemplate(_ context.Context, tpl template.Template, _ ...core.DBExecutor) (template.Template, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	tpl = tpl.Clone()
	tpl.ID = uuid.New().String()
	for i := range tpl.Milestones {
		tpl.Milestones[i].ID = uuid.New().String()
		tpl.Milestones[i].TemplateID = tpl.ID
		repo.db.t.milestones.insert(tpl.Milestones[i].ID, tpl.Milestones[i])
	}
	row := tpl
	row.Milestones = nil
	repo.db.t.templates.insert(tpl.ID, row)
	return repo.load(row), nil
}

func (repo *templateRepository) GetTemplate(_ context.Context, id string, _ ...core.DBExecutor) (template.Template, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	tpl, ok := repo.db.t.templates.get(id)
	if !ok {
		return template.Template{}, template.ErrNotFound
	}
	return repo.load(tpl), nil
}

func (repo *templateRepository) LockTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (template.Template, error) {
	return repo.GetTemplate(ctx, id, exec...)
}

func (repo *templateRepository) UpdateTemplate(_ context.Context, tpl template.Template, _ ...core.DBExecutor) (template.Template, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	row, ok := repo.db.t.templates.get(tpl.ID)
	if !ok {
		return template.Template{}, template.ErrNotFound
	}
	// only decision & class assignment fields change after creation
	row.Status = tpl.Status
	row.ApproverID = tpl.ApproverID
	row.ApprovedAt = tpl.ApprovedAt
	row.AssignedClassIDs = slices.Clone(tpl.AssignedClassIDs)
	repo.db.t.templates.update(row.ID, row)
	return repo.load(row), nil
}

func (repo *templateRepository) QueryTemplates(
	_ context.Context,
	filter template.QueryFilter,
	ordering []core.DBOrdering,
	_ ...core.DBExecutor,
) ([]template.Template, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := repo.db.t.templates.filter(func(tpl template.Template) bool {
		return (filter.Status == "" || tpl.Status == filter.Status) &&
			(filter.SubjectID == "" || tpl.SubjectID == filter.SubjectID) &&
			(filter.CreatedBy == "" || tpl.CreatedBy == filter.CreatedBy) &&
			(filter.ClassID == "" || tpl.HasClass(filter.ClassID))
	})
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(rows, func(i, j int) bool { return lessTemplate(rows[i], rows[j], ordering) })

	tpls := make([]template.Template, 0, len(rows))
	for _, tpl := range rows {
		tpls = append(tpls, repo.load(tpl))
	}
	return tpls, nil
}

func lessTemplate(a, b template.Template, ordering []core.DBOrdering) bool {
	for _, ord := range ordering {
		var c int
		switch ord.Field {
		case "created_at":
			c = a.CreatedAt.Compare(b.CreatedAt)
		case "name":
			c = strings.Compare(a.Name, b.Name)
		case "status":
			c = strings.Compare(string(a.Status), string(b.Status))
		case "deadline":
			c = compareTimePtr(a.Deadline, b.Deadline)
		}
		if c == 0 {
			continue
		}
		if ord.Ascending {
			return c < 0
		}
		return c > 0
	}
	return false
}

func (repo *templateRepository) GetMilestone(_ context.Context, id string, _ ...core.DBExecutor) (template.Milestone, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	m, ok := repo.db.t.milestones.get(id)
	if !ok {
		return template.Milestone{}, template.ErrMilestoneNotFound
	}
	m.Questions = slices.Clone(m.Questions)
	return m, nil
}
