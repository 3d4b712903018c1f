package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
)

type Action string

const (
	ActionCreate       Action = "Create"
	ActionUpdate       Action = "Update"
	ActionDelete       Action = "Delete"
	ActionSoftDelete   Action = "SoftDelete"
	ActionStatusChange Action = "StatusChange"
	ActionAssignMember Action = "AssignMember"
	ActionRemoveMember Action = "RemoveMember"
	ActionSubmitWork   Action = "SubmitWork"
	ActionGrade        Action = "Grade"
)

// entity types
const (
	EntityTemplate         = "ProjectTemplate"
	EntityGroup            = "ProjectGroup"
	EntityTask             = "ProjectTask"
	EntitySubmission       = "ProjectSubmission"
	EntityGroupMilestone   = "GroupMilestone"
	EntityMilestoneComment = "GroupMilestoneComment"
	EntityMilestoneGrade   = "GroupMilestoneGrade"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionSoftDelete, ActionStatusChange,
		ActionAssignMember, ActionRemoveMember, ActionSubmitWork, ActionGrade:
		return true
	}
	return false
}

type (
	// Entry is an immutable record of a committed mutation.
	Entry struct {
		ID          string          `json:"id"`
		Action      Action          `json:"action"`
		EntityType  string          `json:"entity_type"`
		EntityID    string          `json:"entity_id"`
		ActorID     string          `json:"actor_id"`
		ActorName   string          `json:"actor_name"`
		OldValue    json.RawMessage `json:"old_value,omitempty"`
		NewValue    json.RawMessage `json:"new_value,omitempty"`
		Description string          `json:"description,omitempty"`
		CreatedAt   time.Time       `json:"created_at"`
	}

	Filter struct {
		EntityType string `query:"entity_type"`
		EntityID   string `query:"entity_id"`
		ActorID    string `query:"actor_id"`
		Action     Action `query:"action"`
	}

	// Repository is append-only: there is no way to change or remove an entry.
	Repository interface {
		AppendEntry(ctx context.Context, e Entry, exec ...core.DBExecutor) (Entry, error)
		QueryEntries(ctx context.Context, filter Filter, exec ...core.DBExecutor) ([]Entry, error)
	}
)

// NewEntry snapshots before and after as JSON. Nil values are left empty.
func NewEntry(action Action, entityType, entityID string, actor account.Identity, before, after interface{}, desc string) Entry {
	return Entry{
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		ActorID:     actor.UserID,
		ActorName:   actor.DisplayName(),
		OldValue:    snapshot(before),
		NewValue:    snapshot(after),
		Description: desc,
		CreatedAt:   core.Now(),
	}
}

func snapshot(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
