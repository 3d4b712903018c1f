package notify

import (
	"context"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
	"github.com/trezcool/kazi/core/group"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/template"
	emailsvc "github.com/trezcool/kazi/services/email"
	logsvc "github.com/trezcool/kazi/services/logger"
	"github.com/trezcool/kazi/testutil"
)

func newNotifier(t *testing.T) (*EmailNotifier, *emailsvc.ConsoleServiceMock) {
	t.Helper()
	conf := &core.Config{
		AppName:          "Kazi",
		TestMode:         true,
		FrontendBaseURL:  "https://kazi.test",
		DefaultFromEmail: mail.Address{Name: "Kazi", Address: "noreply@kazi.test"},
	}
	logger := logsvc.NewTestLogger()
	core.ParseEmailTemplates(conf, logger)

	dir := testutil.NewDirectory(
		account.UserInfo{ID: "lecturer", FullName: "Dr Okafor", Email: "okafor@uni.test", Code: "L-1"},
		account.UserInfo{ID: "s1", FullName: "Amina Diallo", Email: "amina@uni.test", Code: "S-1"},
		account.UserInfo{ID: "s2", FullName: "Jonas Berg", Email: "jonas@uni.test", Code: "S-2"},
	)
	email := emailsvc.NewConsoleServiceMock(conf, logger)
	return NewEmailNotifier(email, dir, logger), email
}

func TestEmailNotifier_TemplateDecided(t *testing.T) {
	n, email := newNotifier(t)

	n.TemplateDecided(context.Background(), template.Template{
		ID: "t1", Name: "Compiler project", Status: template.StatusRejected, CreatedBy: "lecturer",
	}, "Scope too large")

	sent := email.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "okafor@uni.test", sent[0].To[0].Address)
	assert.Equal(t, "Project template rejected", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, `"Compiler project" has been rejected`)
	assert.Contains(t, sent[0].TextContent, "Reason: Scope too large")
	assert.Contains(t, sent[0].HTMLContent, "https://kazi.test/templates/t1")

	t.Run("unknown creator", func(t *testing.T) {
		email.Reset()
		n.TemplateDecided(context.Background(), template.Template{ID: "t2", Status: template.StatusApproved, CreatedBy: "ghost"}, "")
		assert.Empty(t, email.SentMessages())
	})
}

func TestEmailNotifier_SubmissionGraded(t *testing.T) {
	n, email := newNotifier(t)
	grade := 87.5
	g := group.Group{ID: "g1", Name: "Team Rocket"}
	members := []group.Member{
		{UserID: "s1", StudentCode: "S-1", FullName: "Amina Diallo"},
		{StudentCode: "S-2", FullName: "Jonas Berg"},
		{UserID: "s404", StudentCode: "S-404"},
	}

	n.SubmissionGraded(context.Background(), submission.Submission{ID: "sub1", GroupID: "g1", Grade: &grade, Feedback: "Solid work"}, g, members)

	sent := email.SentMessages()
	require.Len(t, sent, 2)
	to := []string{sent[0].To[0].Address, sent[1].To[0].Address}
	assert.ElementsMatch(t, []string{"amina@uni.test", "jonas@uni.test"}, to)
	for _, msg := range sent {
		assert.Contains(t, msg.TextContent, "has been graded: 87.5")
		assert.Contains(t, msg.TextContent, "Feedback: Solid work")
	}

	t.Run("ungraded", func(t *testing.T) {
		email.Reset()
		n.SubmissionGraded(context.Background(), submission.Submission{ID: "sub2"}, g, members)
		assert.Empty(t, email.SentMessages())
	})
}

func TestEmailNotifier_MilestoneDue(t *testing.T) {
	n, email := newNotifier(t)
	deadline := time.Date(2026, 5, 4, 17, 0, 0, 0, time.UTC)
	g := group.Group{ID: "g1", Name: "Team Rocket"}
	members := []group.Member{{UserID: "s1", StudentCode: "S-1"}}

	n.MilestoneDue(context.Background(), submission.GroupMilestone{ID: "gm1", GroupID: "g1", Title: "Prototype", Deadline: &deadline}, g, members)

	sent := email.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Milestone due soon: Prototype", sent[0].Subject)
	assert.True(t, strings.Contains(sent[0].TextContent, "Mon, 04 May 2026 17:00 UTC"), sent[0].TextContent)
}
