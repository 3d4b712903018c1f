// Package notify tells users about decisions, grades and deadlines by email.
// Delivery is best effort: failures are logged and never reach the caller.
package notify

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
	"github.com/trezcool/kazi/core/group"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/template"
)

const (
	tmplTemplateDecision  = "template_decision"
	tmplSubmissionGraded  = "submission_graded"
	tmplMilestoneReminder = "milestone_reminder"
)

type EmailNotifier struct {
	email     core.EmailService
	directory account.Directory
	logger    core.Logger
}

var (
	_ template.Notifier   = (*EmailNotifier)(nil)
	_ submission.Notifier = (*EmailNotifier)(nil)
)

func NewEmailNotifier(email core.EmailService, directory account.Directory, logger core.Logger) *EmailNotifier {
	return &EmailNotifier{email: email, directory: directory, logger: logger}
}

type (
	decisionData struct {
		RecipientName string
		TemplateID    string
		TemplateName  string
		Decision      string
		Reason        string
	}

	gradedData struct {
		RecipientName string
		GroupID       string
		GroupName     string
		Grade         float64
		Feedback      string
	}

	reminderData struct {
		RecipientName  string
		GroupID        string
		GroupName      string
		MilestoneTitle string
		Deadline       time.Time
	}
)

func (n *EmailNotifier) TemplateDecided(ctx context.Context, t template.Template, reason string) {
	usr, err := n.directory.GetUserByID(ctx, t.CreatedBy)
	if err != nil {
		n.logger.Warn("notifying template decision", errors.Wrap(err, "resolving creator "+t.CreatedBy))
		return
	}
	if usr.Email == "" {
		return
	}
	n.email.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject:      "Project template " + strings.ToLower(string(t.Status)),
		TemplateName: tmplTemplateDecision,
		TemplateData: decisionData{
			RecipientName: usr.FullName,
			TemplateID:    t.ID,
			TemplateName:  t.Name,
			Decision:      strings.ToLower(string(t.Status)),
			Reason:        reason,
		},
	})
}

func (n *EmailNotifier) SubmissionGraded(ctx context.Context, s submission.Submission, g group.Group, members []group.Member) {
	if s.Grade == nil {
		return
	}
	msgs := make([]*core.EmailMessage, 0, len(members))
	for _, rcpt := range n.recipients(ctx, members) {
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{rcpt},
			Subject:      "Your submission has been graded",
			TemplateName: tmplSubmissionGraded,
			TemplateData: gradedData{
				RecipientName: rcpt.Name,
				GroupID:       g.ID,
				GroupName:     g.Name,
				Grade:         *s.Grade,
				Feedback:      s.Feedback,
			},
		})
	}
	n.email.SendMessages(msgs...)
}

// MilestoneDue reminds the members of g that gm is due soon.
func (n *EmailNotifier) MilestoneDue(ctx context.Context, gm submission.GroupMilestone, g group.Group, members []group.Member) {
	if gm.Deadline == nil {
		return
	}
	msgs := make([]*core.EmailMessage, 0, len(members))
	for _, rcpt := range n.recipients(ctx, members) {
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{rcpt},
			Subject:      "Milestone due soon: " + gm.Title,
			TemplateName: tmplMilestoneReminder,
			TemplateData: reminderData{
				RecipientName:  rcpt.Name,
				GroupID:        g.ID,
				GroupName:      g.Name,
				MilestoneTitle: gm.Title,
				Deadline:       *gm.Deadline,
			},
		})
	}
	n.email.SendMessages(msgs...)
}

// recipients resolves the members' addresses, skipping those the directory cannot resolve.
func (n *EmailNotifier) recipients(ctx context.Context, members []group.Member) []mail.Address {
	addrs := make([]mail.Address, 0, len(members))
	for _, m := range members {
		var (
			usr account.UserInfo
			err error
		)
		if m.UserID != "" {
			usr, err = n.directory.GetUserByID(ctx, m.UserID)
		} else {
			usr, err = n.directory.GetUserByCode(ctx, m.StudentCode)
		}
		if err != nil {
			n.logger.Warn("resolving member email", errors.Wrap(err, m.StudentCode))
			continue
		}
		if usr.Email == "" {
			continue
		}
		name := usr.FullName
		if name == "" {
			name = m.FullName
		}
		addrs = append(addrs, mail.Address{Name: name, Address: usr.Email})
	}
	return addrs
}
