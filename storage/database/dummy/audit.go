package dummydb

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/audit"
)

type auditRepository struct {
	db *DB
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) *auditRepository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) AppendEntry(_ context.Context, e audit.Entry, _ ...core.DBExecutor) (audit.Entry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	e.ID = uuid.New().String()
	e.OldValue = slices.Clone(e.OldValue)
	e.NewValue = slices.Clone(e.NewValue)
	repo.db.t.audit.insert(e.ID, e)
	return e, nil
}

func (repo *auditRepository) QueryEntries(_ context.Context, filter audit.Filter, _ ...core.DBExecutor) ([]audit.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.db.t.audit.filter(func(e audit.Entry) bool {
		return (filter.EntityType == "" || e.EntityType == filter.EntityType) &&
			(filter.EntityID == "" || e.EntityID == filter.EntityID) &&
			(filter.ActorID == "" || e.ActorID == filter.ActorID) &&
			(filter.Action == "" || e.Action == filter.Action)
	}), nil
}
