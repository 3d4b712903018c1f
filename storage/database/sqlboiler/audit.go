package boiledrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/drivers"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/audit"
)

const auditTable = "audit_entries"

var (
	dialect = drivers.Dialect{LQ: '"', RQ: '"', UseIndexPlaceholders: true}

	auditColumns = []string{"id", "action", "entity_type", "entity_id", "actor_id", "actor_name", "old_value", "new_value", "description", "created_at"}
)

type auditEntry struct {
	ID          string    `boil:"id"`
	Action      string    `boil:"action"`
	EntityType  string    `boil:"entity_type"`
	EntityID    string    `boil:"entity_id"`
	ActorID     string    `boil:"actor_id"`
	ActorName   string    `boil:"actor_name"`
	OldValue    null.JSON `boil:"old_value"`
	NewValue    null.JSON `boil:"new_value"`
	Description string    `boil:"description"`
	CreatedAt   time.Time `boil:"created_at"`
}

type auditRepository struct {
	exec core.DBExecutor
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(exec core.DBExecutor) *auditRepository {
	return &auditRepository{exec: exec}
}

func (repo auditRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func newQuery(mods ...qm.QueryMod) *queries.Query {
	q := &queries.Query{}
	queries.SetDialect(q, &dialect)
	qm.Apply(q, mods...)
	return q
}

func nullJSON(raw json.RawMessage) null.JSON {
	if len(raw) == 0 {
		return null.JSON{}
	}
	return null.JSONFrom(raw)
}

func rawJSON(j null.JSON) json.RawMessage {
	if !j.Valid {
		return nil
	}
	return json.RawMessage(j.JSON)
}

func (repo auditRepository) unboil(e auditEntry) audit.Entry {
	return audit.Entry{
		ID:          e.ID,
		Action:      audit.Action(e.Action),
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		ActorID:     e.ActorID,
		ActorName:   e.ActorName,
		OldValue:    rawJSON(e.OldValue),
		NewValue:    rawJSON(e.NewValue),
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
	}
}

// AppendEntry only ever inserts; entries are never updated or deleted.
func (repo auditRepository) AppendEntry(ctx context.Context, e audit.Entry, exec ...core.DBExecutor) (audit.Entry, error) {
	e.ID = uuid.New().String()
	_, err := queries.Raw(
		`INSERT INTO "audit_entries" ("id", "action", "entity_type", "entity_id", "actor_id", "actor_name", "old_value", "new_value", "description", "created_at")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, string(e.Action), e.EntityType, e.EntityID, e.ActorID, e.ActorName,
		nullJSON(e.OldValue), nullJSON(e.NewValue), e.Description, e.CreatedAt.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return audit.Entry{}, errors.Wrap(err, "inserting audit entry")
	}
	return e, nil
}

func (repo auditRepository) QueryEntries(ctx context.Context, filter audit.Filter, exec ...core.DBExecutor) ([]audit.Entry, error) {
	mods := []qm.QueryMod{qm.Select(auditColumns...), qm.From(auditTable)}
	if filter.EntityType != "" {
		mods = append(mods, qm.Where("entity_type = ?", filter.EntityType))
	}
	if filter.EntityID != "" {
		mods = append(mods, qm.Where("entity_id = ?", filter.EntityID))
	}
	if filter.ActorID != "" {
		mods = append(mods, qm.Where("actor_id = ?", filter.ActorID))
	}
	if filter.Action != "" {
		mods = append(mods, qm.Where("action = ?", string(filter.Action)))
	}
	mods = append(mods, qm.OrderBy("seq"))

	var rows []auditEntry
	if err := newQuery(mods...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying audit entries")
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, e := range rows {
		entries = append(entries, repo.unboil(e))
	}
	return entries, nil
}
