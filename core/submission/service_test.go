package submission_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
	"github.com/trezcool/kazi/core/audit"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/testutil"
)

func TestService_SubmitWork(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tpl := env.ApprovedTemplate(t, "Compiler", "Lexer", "Parser")
	other := env.ApprovedTemplate(t, "Database", "Schema")
	g := env.BoundGroup(t, tpl, "s1", "s2")
	unbound := env.CreateGroup(t, "Loners", "class-1", 5)
	lexer := tpl.Milestones[0].ID
	student := testutil.Student("s1")

	t.Run("validation", func(t *testing.T) {
		_, err := env.SubmissionSvc.SubmitWork(ctx, student, g.ID, lexer, submission.NewSubmission{Content: " "})
		assert.True(t, core.IsValidation(err), "unexpected error: %v", err)
	})

	t.Run("unbound group", func(t *testing.T) {
		_, err := env.SubmissionSvc.SubmitWork(ctx, student, unbound.ID, lexer, submission.NewSubmission{Content: "v1"})
		assert.True(t, core.IsInvalidState(err), "unexpected error: %v", err)
	})

	t.Run("milestone of another template", func(t *testing.T) {
		_, err := env.SubmissionSvc.SubmitWork(ctx, student, g.ID, other.Milestones[0].ID, submission.NewSubmission{Content: "v1"})
		assert.True(t, core.IsInvalidState(err), "unexpected error: %v", err)
	})

	t.Run("unknown milestone", func(t *testing.T) {
		_, err := env.SubmissionSvc.SubmitWork(ctx, student, g.ID, "missing", submission.NewSubmission{Content: "v1"})
		assert.True(t, core.IsNotFound(err), "unexpected error: %v", err)
	})

	t.Run("resubmission clears the grade", func(t *testing.T) {
		first, err := env.SubmissionSvc.SubmitWork(ctx, student, g.ID, lexer, submission.NewSubmission{Content: "v1"})
		require.NoError(t, err)
		assert.Nil(t, first.Grade)

		graded, err := env.SubmissionSvc.GradeSubmission(ctx, testutil.Lecturer(), first.ID, submission.GradeInput{
			Grade:    testutil.FloatPtr(85),
			Feedback: "solid",
		})
		require.NoError(t, err)
		require.NotNil(t, graded.Grade)
		assert.Equal(t, 85.0, *graded.Grade)
		assert.Equal(t, testutil.Lecturer().UserID, graded.GradedBy)

		second, err := env.SubmissionSvc.SubmitWork(ctx, testutil.Student("s2"), g.ID, lexer, submission.NewSubmission{Content: "v2"})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "v2", second.Content)
		assert.Equal(t, "s2", second.SubmittedBy)
		assert.Nil(t, second.Grade)
		assert.Nil(t, second.GradedAt)
		assert.Empty(t, second.Feedback)

		subs, err := env.SubmissionSvc.ListSubmissions(ctx, g.ID)
		require.NoError(t, err)
		assert.Len(t, subs, 1)

		assert.Equal(t,
			[]audit.Action{audit.ActionSubmitWork, audit.ActionGrade, audit.ActionSubmitWork},
			env.AuditActions(t, audit.EntitySubmission, first.ID),
		)
	})

	t.Run("with file", func(t *testing.T) {
		s, err := env.SubmissionSvc.SubmitWork(ctx, student, g.ID, tpl.Milestones[1].ID, submission.NewSubmission{
			File: &submission.Upload{Name: "my parser.zip", ContentType: "application/zip", Body: strings.NewReader("PK")},
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(s.FilePath, "mem://submissions/"+g.ID+"/"+tpl.Milestones[1].ID+"/"), s.FilePath)
		assert.True(t, strings.HasSuffix(s.FilePath, "-my_parser.zip"), s.FilePath)
		assert.Len(t, env.Files.Files, 1)
	})

	t.Run("file store down", func(t *testing.T) {
		env.Files.Err = errors.New("bucket unreachable")
		defer func() { env.Files.Err = nil }()

		before := len(env.AuditActions(t, audit.EntitySubmission, ""))
		_, err := env.SubmissionSvc.SubmitWork(ctx, student, g.ID, lexer, submission.NewSubmission{
			Content: "v3",
			File:    &submission.Upload{Name: "v3.pdf", Body: strings.NewReader("%PDF")},
		})
		assert.True(t, core.IsUpstreamUnavailable(err), "unexpected error: %v", err)

		current, err := env.SubmissionRepo.FindSubmission(ctx, g.ID, lexer)
		require.NoError(t, err)
		assert.Equal(t, "v2", current.Content)
		assert.Len(t, env.AuditActions(t, audit.EntitySubmission, ""), before)
	})

	t.Run("deleted group", func(t *testing.T) {
		require.NoError(t, env.GroupSvc.SoftDelete(ctx, testutil.Lecturer(), g.ID))
		_, err := env.SubmissionSvc.SubmitWork(ctx, student, g.ID, lexer, submission.NewSubmission{Content: "v4"})
		assert.True(t, core.IsGone(err), "unexpected error: %v", err)
	})
}

type failingAuditRepo struct {
	audit.Repository
}

func (failingAuditRepo) AppendEntry(context.Context, audit.Entry, ...core.DBExecutor) (audit.Entry, error) {
	return audit.Entry{}, errors.New("disk full")
}

func TestService_rollbackDiscardsUpload(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tpl := env.ApprovedTemplate(t, "Compiler", "Lexer")
	g := env.BoundGroup(t, tpl, "s1")
	gm, err := env.SubmissionSvc.CreateGroupMilestone(ctx, testutil.Student("s1"), g.ID, submission.NewGroupMilestone{Title: "Prototype"})
	require.NoError(t, err)

	svc := submission.NewService(
		env.DB, env.SubmissionRepo, env.GroupRepo, env.TemplateRepo, failingAuditRepo{env.AuditRepo}, env.Files, env.Validator, env.Notifier,
	)
	file := func() *submission.Upload {
		return &submission.Upload{Name: "report.pdf", ContentType: "application/pdf", Body: strings.NewReader("%PDF")}
	}

	_, err = svc.SubmitWork(ctx, testutil.Student("s1"), g.ID, tpl.Milestones[0].ID, submission.NewSubmission{File: file()})
	require.Error(t, err)
	assert.Empty(t, env.Files.Files)

	_, err = svc.SubmitGroupMilestone(ctx, testutil.Student("s1"), gm.ID, submission.NewSubmission{File: file()})
	require.Error(t, err)
	assert.Empty(t, env.Files.Files)
}

func TestService_GradeSubmission(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tpl := env.ApprovedTemplate(t, "Compiler", "Lexer")
	g := env.BoundGroup(t, tpl, "s1")
	s, err := env.SubmissionSvc.SubmitWork(ctx, testutil.Student("s1"), g.ID, tpl.Milestones[0].ID, submission.NewSubmission{Content: "v1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   submission.GradeInput
		actor   account.Identity
		id      string
		wantErr func(error) bool
	}{
		{name: "missing grade", input: submission.GradeInput{}, wantErr: core.IsValidation},
		{name: "negative", input: submission.GradeInput{Grade: testutil.FloatPtr(-1)}, wantErr: core.IsValidation},
		{name: "above max", input: submission.GradeInput{Grade: testutil.FloatPtr(100.5)}, wantErr: core.IsValidation},
		{name: "unknown submission", id: "missing", input: submission.GradeInput{Grade: testutil.FloatPtr(50)}, wantErr: core.IsNotFound},
		{name: "zero", input: submission.GradeInput{Grade: testutil.FloatPtr(0)}},
		{name: "any caller", actor: testutil.Staff(), input: submission.GradeInput{Grade: testutil.FloatPtr(40)}},
		{name: "last write wins", input: submission.GradeInput{Grade: testutil.FloatPtr(100)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := tt.actor
			if actor.UserID == "" {
				actor = testutil.Lecturer()
			}
			id := s.ID
			if tt.id != "" {
				id = tt.id
			}
			got, err := env.SubmissionSvc.GradeSubmission(ctx, actor, id, tt.input)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got.Grade)
			assert.Equal(t, *tt.input.Grade, *got.Grade)

			stored, err := env.SubmissionSvc.GetSubmission(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, *tt.input.Grade, *stored.Grade)
		})
	}

	// one notification per successful grade
	assert.Len(t, env.Notifier.Graded, 3)
}

func TestService_GroupMilestones(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	g := env.CreateGroup(t, "Team A", "class-1", 5)
	student := testutil.Student("s1")

	gm, err := env.SubmissionSvc.CreateGroupMilestone(ctx, student, g.ID, submission.NewGroupMilestone{Title: "Prototype"})
	require.NoError(t, err)
	assert.False(t, gm.IsCompleted)
	assert.Nil(t, gm.SubmittedAt)

	_, err = env.SubmissionSvc.CreateGroupMilestone(ctx, student, g.ID, submission.NewGroupMilestone{Title: ""})
	assert.True(t, core.IsValidation(err), "unexpected error: %v", err)

	gm, err = env.SubmissionSvc.SubmitGroupMilestone(ctx, student, gm.ID, submission.NewSubmission{Content: "demo link"})
	require.NoError(t, err)
	assert.Equal(t, "demo link", gm.SubmissionContent)
	require.NotNil(t, gm.SubmittedAt)

	gm, err = env.SubmissionSvc.SetMilestoneCompleted(ctx, student, gm.ID, true)
	require.NoError(t, err)
	assert.True(t, gm.IsCompleted)
	gm, err = env.SubmissionSvc.SetMilestoneCompleted(ctx, student, gm.ID, true)
	require.NoError(t, err)
	assert.True(t, gm.IsCompleted)

	c, err := env.SubmissionSvc.AddMilestoneComment(ctx, testutil.Lecturer(), gm.ID, "nice")
	require.NoError(t, err)
	assert.Equal(t, "Lecturer", c.AuthorRole)
	comments, err := env.SubmissionSvc.MilestoneComments(ctx, gm.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 1)

	gms, err := env.SubmissionSvc.ListGroupMilestones(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, gms, 1)
	assert.Equal(t, gm.ID, gms[0].ID)

	// the unchanged completion flag is not audited
	assert.Equal(t,
		[]audit.Action{audit.ActionCreate, audit.ActionSubmitWork, audit.ActionStatusChange},
		env.AuditActions(t, audit.EntityGroupMilestone, gm.ID),
	)

	require.NoError(t, env.GroupSvc.SoftDelete(ctx, testutil.Lecturer(), g.ID))
	_, err = env.SubmissionSvc.AddMilestoneComment(ctx, student, gm.ID, "late")
	assert.True(t, core.IsGone(err), "unexpected error: %v", err)
}

func TestService_GradeMilestone(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	g := env.CreateGroup(t, "Team A", "class-1", 5)
	gm, err := env.SubmissionSvc.CreateGroupMilestone(ctx, testutil.Student("s1"), g.ID, submission.NewGroupMilestone{Title: "Prototype"})
	require.NoError(t, err)

	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	core.NowFunc = func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Minute)
	}
	defer func() { core.NowFunc = time.Now }()

	grades, err := env.SubmissionSvc.GetGrades(ctx, gm.ID)
	require.NoError(t, err)
	assert.Empty(t, grades.Grades)
	assert.Nil(t, grades.AveragePeerGrade)
	assert.Nil(t, grades.LecturerGrade)

	grade := func(actorID string, peer bool, score float64) error {
		actor := testutil.Lecturer()
		if peer {
			actor = testutil.Student(actorID)
		} else if actorID != "" {
			actor = testutil.HeadOfDepartment()
		}
		_, err := env.SubmissionSvc.GradeMilestone(ctx, actor, gm.ID, submission.NewGrade{Score: testutil.FloatPtr(score)})
		return err
	}

	require.NoError(t, grade("s1", true, 3))
	require.NoError(t, grade("s2", true, 9))
	require.NoError(t, grade("s1", true, 7)) // replaces the first peer grade
	require.NoError(t, grade("", false, 6))
	require.NoError(t, grade("hod", false, 8))

	grades, err = env.SubmissionSvc.GetGrades(ctx, gm.ID)
	require.NoError(t, err)
	assert.Len(t, grades.Grades, 4)
	require.NotNil(t, grades.AveragePeerGrade)
	assert.Equal(t, 8.0, *grades.AveragePeerGrade)
	require.NotNil(t, grades.LecturerGrade)
	assert.Equal(t, 8.0, grades.LecturerGrade.Score)
	assert.Equal(t, testutil.HeadOfDepartment().UserID, grades.LecturerGrade.GradedBy)

	t.Run("regrade records the replaced score", func(t *testing.T) {
		entries, err := env.AuditSvc.History(ctx, audit.Filter{EntityType: audit.EntityMilestoneGrade, ActorID: "s1"})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Empty(t, entries[0].OldValue)

		var prev, next submission.MilestoneGrade
		require.NoError(t, json.Unmarshal(entries[1].OldValue, &prev))
		require.NoError(t, json.Unmarshal(entries[1].NewValue, &next))
		assert.Equal(t, 3.0, prev.Score)
		assert.Equal(t, 7.0, next.Score)
	})

	t.Run("out of range", func(t *testing.T) {
		for _, score := range []float64{-0.5, 10.5} {
			err := grade("s3", true, score)
			assert.True(t, core.IsValidation(err), "score %v: unexpected error: %v", score, err)
		}
	})

	t.Run("staff cannot grade", func(t *testing.T) {
		_, err := env.SubmissionSvc.GradeMilestone(ctx, testutil.Staff(), gm.ID, submission.NewGrade{Score: testutil.FloatPtr(5)})
		assert.True(t, core.IsForbidden(err), "unexpected error: %v", err)
	})

	t.Run("unknown milestone", func(t *testing.T) {
		_, err := env.SubmissionSvc.GetGrades(ctx, "missing")
		assert.True(t, core.IsNotFound(err), "unexpected error: %v", err)
	})
}

func TestService_DueMilestones(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	g := env.CreateGroup(t, "Team A", "class-1", 5)
	now := time.Now().UTC()

	create := func(title string, due time.Time) submission.GroupMilestone {
		gm, err := env.SubmissionSvc.CreateGroupMilestone(ctx, testutil.Student("s1"), g.ID, submission.NewGroupMilestone{Title: title, Deadline: &due})
		require.NoError(t, err)
		return gm
	}
	later := create("later", now.Add(48*time.Hour))
	soon := create("soon", now.Add(2*time.Hour))
	done := create("done", now.Add(3*time.Hour))
	create("past", now.Add(-time.Hour))
	_, err := env.SubmissionSvc.SetMilestoneCompleted(ctx, testutil.Student("s1"), done.ID, true)
	require.NoError(t, err)

	open := false
	to := now.Add(24 * time.Hour)
	gms, err := env.SubmissionSvc.DueMilestones(ctx, submission.MilestoneFilter{DueFrom: &now, DueTo: &to, IsCompleted: &open})
	require.NoError(t, err)
	require.Len(t, gms, 1)
	assert.Equal(t, soon.ID, gms[0].ID)

	gms, err = env.SubmissionSvc.DueMilestones(ctx, submission.MilestoneFilter{DueFrom: &now})
	require.NoError(t, err)
	require.Len(t, gms, 3)
	assert.Equal(t, soon.ID, gms[0].ID)
	assert.Equal(t, later.ID, gms[2].ID)
}

func TestAggregate(t *testing.T) {
	at := func(m int) time.Time { return time.Date(2024, 1, 1, 0, m, 0, 0, time.UTC) }

	tests := []struct {
		name         string
		grades       []submission.MilestoneGrade
		wantAvg      *float64
		wantLecturer string
	}{
		{name: "empty"},
		{
			name: "peers only",
			grades: []submission.MilestoneGrade{
				{GradedBy: "a", GraderRole: submission.GraderStudent, Score: 7},
				{GradedBy: "b", GraderRole: submission.GraderStudent, Score: 9},
			},
			wantAvg: testutil.FloatPtr(8),
		},
		{
			name: "latest lecturer grade",
			grades: []submission.MilestoneGrade{
				{GradedBy: "l2", GraderRole: submission.GraderLecturer, Score: 4, GradedAt: at(5)},
				{GradedBy: "l1", GraderRole: submission.GraderLecturer, Score: 6, GradedAt: at(2)},
				{GradedBy: "a", GraderRole: submission.GraderStudent, Score: 10},
			},
			wantAvg:      testutil.FloatPtr(10),
			wantLecturer: "l2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := submission.Aggregate(tt.grades)
			assert.NotNil(t, got.Grades)
			assert.Equal(t, tt.wantAvg, got.AveragePeerGrade)
			if tt.wantLecturer == "" {
				assert.Nil(t, got.LecturerGrade)
				return
			}
			require.NotNil(t, got.LecturerGrade)
			assert.Equal(t, tt.wantLecturer, got.LecturerGrade.GradedBy)
		})
	}
}
