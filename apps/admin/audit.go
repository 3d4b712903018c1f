package main

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core/audit"
)

// auditHistory prints one JSON document per entry, oldest first.
func (cli *commandLine) auditHistory(filter audit.Filter) error {
	entries, err := cli.auditSvc.History(context.Background(), filter)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cli.out)
	for _, e := range entries {
		if err = enc.Encode(e); err != nil {
			return errors.Wrap(err, "writing entry")
		}
	}
	return nil
}
