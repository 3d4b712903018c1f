package task_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/audit"
	"github.com/trezcool/kazi/core/group"
	"github.com/trezcool/kazi/core/task"
	"github.com/trezcool/kazi/testutil"
)

func TestService_CreateTask(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	g := env.CreateGroup(t, "Team A", "class-1", 5)

	tests := []struct {
		name       string
		groupID    string
		input      task.NewTask
		wantErr    func(error) bool
		wantWeight int
		wantHours  float64
	}{
		{name: "defaults", groupID: g.ID, input: task.NewTask{Title: "Lexer"}, wantWeight: 1, wantHours: 1},
		{
			name: "weighted", groupID: g.ID,
			input:      task.NewTask{Title: "Parser", ComplexityWeight: testutil.IntPtr(5), EstimatedHours: testutil.FloatPtr(2.5)},
			wantWeight: 5, wantHours: 2.5,
		},
		{name: "weight 0", groupID: g.ID, input: task.NewTask{Title: "x", ComplexityWeight: testutil.IntPtr(0)}, wantErr: core.IsValidation},
		{name: "weight 6", groupID: g.ID, input: task.NewTask{Title: "x", ComplexityWeight: testutil.IntPtr(6)}, wantErr: core.IsValidation},
		{name: "negative hours", groupID: g.ID, input: task.NewTask{Title: "x", EstimatedHours: testutil.FloatPtr(-1)}, wantErr: core.IsValidation},
		{name: "blank title", groupID: g.ID, input: task.NewTask{Title: "  "}, wantErr: core.IsValidation},
		{name: "unknown group", groupID: "missing", input: task.NewTask{Title: "x"}, wantErr: core.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk, err := env.TaskSvc.CreateTask(ctx, testutil.Student("s1"), tt.groupID, tt.input)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, task.StatusTodo, tk.Status)
			assert.Equal(t, tt.wantWeight, tk.ComplexityWeight)
			assert.Equal(t, tt.wantHours, tk.EstimatedHours)
			assert.Equal(t, []audit.Action{audit.ActionCreate}, env.AuditActions(t, audit.EntityTask, tk.ID))
		})
	}

	tasks, err := env.TaskSvc.ListByGroup(ctx, g.ID, task.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestService_UpdateStatus(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	g := env.CreateGroup(t, "Team A", "class-1", 5)
	tk, err := env.TaskSvc.CreateTask(ctx, testutil.Student("s1"), g.ID, task.NewTask{Title: "Lexer"})
	require.NoError(t, err)

	// any status code is accepted, in any order
	for _, st := range []task.Status{task.StatusDone, task.StatusTodo, 7} {
		got, err := env.TaskSvc.UpdateStatus(ctx, testutil.Student("s1"), tk.ID, st)
		require.NoError(t, err)
		assert.Equal(t, st, got.Status)
	}

	done, err := env.TaskSvc.ListByGroup(ctx, g.ID, task.QueryFilter{Status: testutil.StatusPtr(7)})
	require.NoError(t, err)
	assert.Len(t, done, 1)

	entries, err := env.AuditRepo.QueryEntries(ctx, audit.Filter{EntityID: tk.ID, Action: audit.ActionStatusChange})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "2 -> 0", entries[1].Description)
}

func TestService_Update(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	g := env.CreateGroup(t, "Team A", "class-1", 5)
	tk, err := env.TaskSvc.CreateTask(ctx, testutil.Student("s1"), g.ID, task.NewTask{Title: "Lexer", Priority: 2})
	require.NoError(t, err)

	got, err := env.TaskSvc.Update(ctx, testutil.Student("s1"), tk.ID, task.UpdateTask{
		AssignedToUserID: testutil.StringPtr("s2"),
		ComplexityWeight: testutil.IntPtr(3),
	})
	require.NoError(t, err)
	assert.Equal(t, "Lexer", got.Title)
	assert.Equal(t, 2, got.Priority)
	assert.Equal(t, 3, got.ComplexityWeight)
	require.NotNil(t, got.AssignedToUserID)
	assert.Equal(t, "s2", *got.AssignedToUserID)

	// blank assignee unassigns
	got, err = env.TaskSvc.Update(ctx, testutil.Student("s1"), tk.ID, task.UpdateTask{AssignedToUserID: testutil.StringPtr("")})
	require.NoError(t, err)
	assert.Nil(t, got.AssignedToUserID)

	_, err = env.TaskSvc.Update(ctx, testutil.Student("s1"), tk.ID, task.UpdateTask{Title: testutil.StringPtr(" ")})
	assert.True(t, core.IsValidation(err), "unexpected error: %v", err)
	_, err = env.TaskSvc.Update(ctx, testutil.Student("s1"), tk.ID, task.UpdateTask{ComplexityWeight: testutil.IntPtr(6)})
	assert.True(t, core.IsValidation(err), "unexpected error: %v", err)
}

func TestService_SubItemsAndComments(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	g := env.CreateGroup(t, "Team A", "class-1", 5)
	actor := testutil.Student("s1")
	tk, err := env.TaskSvc.CreateTask(ctx, actor, g.ID, task.NewTask{Title: "Lexer"})
	require.NoError(t, err)

	si, err := env.TaskSvc.AddSubItem(ctx, actor, tk.ID, "tokens")
	require.NoError(t, err)
	assert.False(t, si.IsDone)

	si, err = env.TaskSvc.ToggleSubItem(ctx, actor, si.ID)
	require.NoError(t, err)
	assert.True(t, si.IsDone)
	si, err = env.TaskSvc.ToggleSubItem(ctx, actor, si.ID)
	require.NoError(t, err)
	assert.False(t, si.IsDone)

	c, err := env.TaskSvc.AddComment(ctx, actor, tk.ID, "started")
	require.NoError(t, err)
	assert.Equal(t, actor.UserID, c.AuthorID)
	assert.Equal(t, actor.Name, c.AuthorName)

	_, err = env.TaskSvc.AddComment(ctx, actor, tk.ID, " ")
	assert.True(t, core.IsValidation(err), "unexpected error: %v", err)
	_, err = env.TaskSvc.ToggleSubItem(ctx, actor, "missing")
	assert.True(t, core.IsNotFound(err), "unexpected error: %v", err)

	d, err := env.TaskSvc.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Len(t, d.SubItems, 1)
	assert.Len(t, d.Comments, 1)
}

func TestService_DeleteTask(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	g := env.CreateGroup(t, "Team A", "class-1", 5)
	actor := testutil.Student("s1")
	tk, err := env.TaskSvc.CreateTask(ctx, actor, g.ID, task.NewTask{Title: "Lexer"})
	require.NoError(t, err)
	si, err := env.TaskSvc.AddSubItem(ctx, actor, tk.ID, "tokens")
	require.NoError(t, err)

	require.NoError(t, env.TaskSvc.DeleteTask(ctx, actor, tk.ID))

	_, err = env.TaskSvc.Get(ctx, tk.ID)
	assert.True(t, core.IsGone(err), "unexpected error: %v", err)
	_, err = env.TaskSvc.UpdateStatus(ctx, actor, tk.ID, task.StatusDone)
	assert.True(t, core.IsGone(err), "unexpected error: %v", err)
	_, err = env.TaskSvc.ToggleSubItem(ctx, actor, si.ID)
	assert.True(t, core.IsGone(err), "unexpected error: %v", err)
	assert.True(t, core.IsGone(env.TaskSvc.DeleteTask(ctx, actor, tk.ID)))

	items, err := env.TaskRepo.QuerySubItems(ctx, tk.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	tasks, err := env.TaskSvc.ListByGroup(ctx, g.ID, task.QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	stored, err := env.TaskRepo.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
}

func TestService_Contributions(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	g := env.CreateGroup(t, "Team A", "class-1", 5)
	env.AddMember(t, g.ID, "s1")
	env.AddMember(t, g.ID, "s2")
	env.AddMember(t, g.ID, "s3")

	create := func(assignee string, weight int, hours float64) task.Task {
		tk, err := env.TaskSvc.CreateTask(ctx, testutil.Student("s1"), g.ID, task.NewTask{
			Title:            "work",
			AssignedToUserID: assignee,
			ComplexityWeight: testutil.IntPtr(weight),
			EstimatedHours:   testutil.FloatPtr(hours),
		})
		require.NoError(t, err)
		return tk
	}
	create("s1", 1, 2)
	create("s1", 3, 4)
	create("s2", 5, 6)
	create("", 5, 10)
	create("outsider", 5, 10)
	deleted := create("s2", 5, 10)
	require.NoError(t, env.TaskSvc.DeleteTask(ctx, testutil.Student("s2"), deleted.ID))

	contribs, err := env.TaskSvc.Contributions(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, contribs, 3)

	assert.Equal(t, "s1", contribs[0].UserID)
	assert.Equal(t, 14.0, contribs[0].Score)
	assert.Equal(t, 2, contribs[0].TaskCount)
	assert.Equal(t, "s2", contribs[1].UserID)
	assert.Equal(t, 30.0, contribs[1].Score)
	assert.Equal(t, 1, contribs[1].TaskCount)
	assert.Equal(t, "s3", contribs[2].UserID)
	assert.Zero(t, contribs[2].Score)
	assert.Zero(t, contribs[2].TaskCount)

	require.NoError(t, env.GroupSvc.SoftDelete(ctx, testutil.Lecturer(), g.ID))
	_, err = env.TaskSvc.Contributions(ctx, g.ID)
	assert.True(t, core.IsGone(err), "unexpected error: %v", err)
}

func TestContributions(t *testing.T) {
	uid := func(s string) *string { return &s }
	members := []group.Member{{ID: "m1", UserID: "u1"}, {ID: "m2", UserID: "u2"}}

	tests := []struct {
		name  string
		tasks []task.Task
		want  []float64
	}{
		{name: "no tasks", want: []float64{0, 0}},
		{
			name: "fractional hours",
			tasks: []task.Task{
				{AssignedToUserID: uid("u1"), ComplexityWeight: 2, EstimatedHours: 0.5},
				{AssignedToUserID: uid("u2"), ComplexityWeight: 4, EstimatedHours: 1.25},
			},
			want: []float64{1, 5},
		},
		{
			name: "deleted tasks ignored",
			tasks: []task.Task{
				{AssignedToUserID: uid("u1"), ComplexityWeight: 2, EstimatedHours: 3},
				{AssignedToUserID: uid("u1"), ComplexityWeight: 2, EstimatedHours: 3, Deletable: core.Deletable{IsDeleted: true}},
			},
			want: []float64{6, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contribs := task.Contributions(members, tt.tasks)
			require.Len(t, contribs, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want, contribs[i].Score, "member %d", i)
			}
		})
	}
}
