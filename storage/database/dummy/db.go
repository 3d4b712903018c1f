package dummydb

import (
	"context"
	"sync"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/audit"
	"github.com/trezcool/kazi/core/group"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/task"
	"github.com/trezcool/kazi/core/template"
)

type (
	// DB is an in-memory database. Transactions are serialized and roll back by restoring a snapshot.
	DB struct {
		sync.RWMutex
		txMu sync.Mutex
		t    *tables
	}

	tables struct {
		templates         *table[template.Template]
		milestones        *table[template.Milestone]
		groups            *table[group.Group]
		members           *table[group.Member]
		tasks             *table[task.Task]
		subItems          *table[task.SubItem]
		comments          *table[task.Comment]
		submissions       *table[submission.Submission]
		groupMilestones   *table[submission.GroupMilestone]
		milestoneComments *table[submission.MilestoneComment]
		milestoneGrades   *table[submission.MilestoneGrade]
		audit             *table[audit.Entry]
	}

	// table keeps rows in insertion order.
	table[T any] struct {
		rows  map[string]T
		order []string
	}
)

var _ core.Transactor = (*DB)(nil) // interface compliance check

func Open() (*DB, error) {
	return &DB{t: newTables()}, nil
}

func newTables() *tables {
	return &tables{
		templates:         newTable[template.Template](),
		milestones:        newTable[template.Milestone](),
		groups:            newTable[group.Group](),
		members:           newTable[group.Member](),
		tasks:             newTable[task.Task](),
		subItems:          newTable[task.SubItem](),
		comments:          newTable[task.Comment](),
		submissions:       newTable[submission.Submission](),
		groupMilestones:   newTable[submission.GroupMilestone](),
		milestoneComments: newTable[submission.MilestoneComment](),
		milestoneGrades:   newTable[submission.MilestoneGrade](),
		audit:             newTable[audit.Entry](),
	}
}

// WithinTx runs fn while holding the transaction lock. Any error or panic restores the previous state.
func (db *DB) WithinTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	if err = ctx.Err(); err != nil {
		return err
	}

	snap := db.snapshot()
	defer func() {
		if p := recover(); p != nil {
			db.restore(snap)
			panic(p)
		}
		if err != nil {
			db.restore(snap)
		}
	}()
	return fn(nil)
}

// Reset empties every table.
func (db *DB) Reset() {
	db.Lock()
	defer db.Unlock()
	db.t = newTables()
}

func (db *DB) snapshot() *tables {
	db.RLock()
	defer db.RUnlock()
	return &tables{
		templates:         db.t.templates.clone(),
		milestones:        db.t.milestones.clone(),
		groups:            db.t.groups.clone(),
		members:           db.t.members.clone(),
		tasks:             db.t.tasks.clone(),
		subItems:          db.t.subItems.clone(),
		comments:          db.t.comments.clone(),
		submissions:       db.t.submissions.clone(),
		groupMilestones:   db.t.groupMilestones.clone(),
		milestoneComments: db.t.milestoneComments.clone(),
		milestoneGrades:   db.t.milestoneGrades.clone(),
		audit:             db.t.audit.clone(),
	}
}

func (db *DB) restore(snap *tables) {
	db.Lock()
	defer db.Unlock()
	db.t = snap
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

func (t *table[T]) get(id string) (T, bool) {
	row, ok := t.rows[id]
	return row, ok
}

func (t *table[T]) insert(id string, row T) {
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = row
}

func (t *table[T]) update(id string, row T) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	t.rows[id] = row
	return true
}

func (t *table[T]) delete(id string) {
	if _, ok := t.rows[id]; !ok {
		return
	}
	delete(t.rows, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
}

// filter returns the rows matching keep, in insertion order.
func (t *table[T]) filter(keep func(T) bool) []T {
	rows := make([]T, 0)
	for _, id := range t.order {
		if row := t.rows[id]; keep == nil || keep(row) {
			rows = append(rows, row)
		}
	}
	return rows
}

// clone copies the table. Rows are values; repositories copy the slices they hold.
func (t *table[T]) clone() *table[T] {
	c := &table[T]{rows: make(map[string]T, len(t.rows)), order: make([]string, len(t.order))}
	copy(c.order, t.order)
	for id, row := range t.rows {
		c.rows[id] = row
	}
	return c
}
