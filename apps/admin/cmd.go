package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/trezcool/kazi/core/audit"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db       *sql.DB
	auditSvc *audit.Service
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix)")
	fmt.Fprintln(cli.out, "  audit -type TYPE -id ID [-actor ID] [-action ACTION] - print the audit history as JSON lines")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	auditCmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	auditCmd.SetOutput(cli.out)
	auditType := auditCmd.String("type", "", "The entity type, e.g. ProjectGroup.")
	auditID := auditCmd.String("id", "", "The entity id.")
	auditActor := auditCmd.String("actor", "", "Only entries made by this user id.")
	auditAction := auditCmd.String("action", "", "Only entries with this action, e.g. AssignMember.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "audit":
		if err := auditCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *auditType == "" && *auditID == "" && *auditActor == "" {
			auditCmd.Usage()
			return errHelp
		}
		return cli.auditHistory(audit.Filter{
			EntityType: *auditType,
			EntityID:   *auditID,
			ActorID:    *auditActor,
			Action:     audit.Action(*auditAction),
		})
	default:
		cli.printUsage()
		return errHelp
	}
}
