package core

import "time"

// Deletable is embedded by aggregates that are soft-deleted instead of removed.
type Deletable struct {
	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
}

func (d *Deletable) MarkDeleted(by string, at time.Time) {
	d.IsDeleted = true
	d.DeletedAt = &at
	d.DeletedBy = by
}

// Active is the single predicate standard queries filter on.
func (d Deletable) Active() bool { return !d.IsDeleted }

// ActiveOnly keeps the items that are not soft-deleted.
func ActiveOnly[T interface{ Active() bool }](items []T) []T {
	active := make([]T, 0, len(items))
	for _, it := range items {
		if it.Active() {
			active = append(active, it)
		}
	}
	return active
}
