package audit

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// History returns the entries matching filter, oldest first.
func (svc *Service) History(ctx context.Context, filter Filter) ([]Entry, error) {
	if filter.Action != "" && !filter.Action.Valid() {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "action", Error: "unknown action " + string(filter.Action)})
	}
	entries, err := svc.repo.QueryEntries(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying audit entries")
	}
	return entries, nil
}
