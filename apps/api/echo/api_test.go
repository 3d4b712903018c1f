package echoapi_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
	"github.com/trezcool/kazi/core/audit"
	"github.com/trezcool/kazi/core/group"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/task"
	"github.com/trezcool/kazi/core/template"
	"github.com/trezcool/kazi/testutil"
)

func TestServer_auth(t *testing.T) {
	app, _ := setup(t)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/templates", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Invalid token", path: "/v1/templates", token: "not.a.token", wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "Unknown role", path: "/v1/templates", token: getToken(t, account.Identity{UserID: "u1"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "unknown role"}),
		},
		{name: "Authenticated", path: "/v1/templates", token: getToken(t, testutil.Student("s1")), wantCode: http.StatusOK, wantData: []byte("[]")},
	}
	runHTTPTests(t, app, tests)

	t.Run("home", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/", "")
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Welcome to Kazi API!", rec.Body.String())
	})
}

func TestTemplateApi(t *testing.T) {
	app, env := setup(t)
	lecturer := getToken(t, testutil.Lecturer())
	hod := getToken(t, testutil.HeadOfDepartment())
	student := getToken(t, testutil.Student("s1"))

	req, rec := newAuthRequest(http.MethodPost, "/v1/templates", lecturer,
		[]byte(`{"subject_id": "CS101", "name": "Compiler", "milestones": [{"title": "Lexer"}, {"title": "Parser"}]}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tpl template.Template
	unmarshal(t, rec, &tpl)
	assert.Equal(t, template.StatusPending, tpl.Status)
	require.Len(t, tpl.Milestones, 2)
	assert.Equal(t, 1, tpl.Milestones[1].OrderIndex)

	detail := "/v1/templates/" + tpl.ID
	tests := []httpTest{
		{
			name: "create: student forbidden", method: http.MethodPost, path: "/v1/templates", token: student,
			body: []byte(`{"subject_id": "CS101", "name": "Nope"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "not allowed to author project templates"}),
		},
		{
			name: "create: invalid", method: http.MethodPost, path: "/v1/templates", token: lecturer,
			body:     []byte(`{"subject_id": "CS101", "milestones": [{"title": " "}]}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":              "this field is required",
				"milestones[0].title": "title must not be blank",
			}),
		},
		{name: "retrieve: unknown", path: "/v1/templates/missing", token: student, wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: core.NewNotFoundError("template", "missing").Error()})},
		{name: "retrieve", path: detail, token: student, wantCode: http.StatusOK, wantData: marchallObj(t, tpl)},
		{name: "approve: lecturer forbidden", method: http.MethodPost, path: detail + "/approve", token: lecturer, wantCode: http.StatusForbidden},
		{name: "assign before approval", method: http.MethodPost, path: detail + "/classes", token: hod, body: []byte(`{"class_id": "class-1"}`), wantCode: http.StatusConflict},
		{name: "approve", method: http.MethodPost, path: detail + "/approve", token: hod, wantCode: http.StatusOK},
		{name: "approve twice", method: http.MethodPost, path: detail + "/approve", token: hod, wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: core.NewInvalidStateError("template", "Approved", "approve").Error()})},
		{name: "reject after approval", method: http.MethodPost, path: detail + "/reject", token: hod, body: []byte(`{"reason": "late"}`), wantCode: http.StatusConflict},
		{name: "assign: missing class", method: http.MethodPost, path: detail + "/classes", token: hod, body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{name: "assign", method: http.MethodPost, path: detail + "/classes", token: hod, body: []byte(`{"class_id": "class-1"}`), wantCode: http.StatusOK},
		{name: "assign again", method: http.MethodPost, path: detail + "/classes", token: hod, body: []byte(`{"class_id": "class-1"}`), wantCode: http.StatusOK},
		{name: "query: bad ordering", path: "/v1/templates?ordering=-secret", token: student, wantCode: http.StatusBadRequest},
		{name: "milestone", path: "/v1/milestones/" + tpl.Milestones[0].ID, token: student, wantCode: http.StatusOK, wantData: marchallObj(t, tpl.Milestones[0])},
	}
	runHTTPTests(t, app, tests)

	got, err := env.TemplateSvc.GetByID(context.Background(), tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"class-1"}, got.AssignedClassIDs)

	runHTTPTests(t, app, []httpTest{
		{name: "query by class", path: "/v1/templates?class_id=class-1&status=Approved", token: student, wantCode: http.StatusOK,
			wantData: marchallObj(t, []template.Template{got})},
		{name: "query: unknown status", path: "/v1/templates?status=Archived", token: student, wantCode: http.StatusBadRequest},
	})
}

func TestGroupApi_membership(t *testing.T) {
	app, env := setup(t)
	lecturer := getToken(t, testutil.Lecturer())
	student := getToken(t, testutil.Student("s1"))

	req, rec := newAuthRequest(http.MethodPost, "/v1/groups", lecturer, []byte(`{"name": "Team A", "class_id": "class-1", "max_members": 2}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var g group.Group
	unmarshal(t, rec, &g)
	assert.Equal(t, 2, g.MaxMembers)

	members := "/v1/groups/" + g.ID + "/members"
	add := func(id string) []byte {
		return []byte(fmt.Sprintf(`{"user_id": %q, "student_code": "C-%s", "full_name": "Student %s"}`, id, id, id))
	}

	runHTTPTests(t, app, []httpTest{
		{name: "add s1", method: http.MethodPost, path: members, token: lecturer, body: add("s1"), wantCode: http.StatusCreated},
		{name: "add s2", method: http.MethodPost, path: members, token: lecturer, body: add("s2"), wantCode: http.StatusCreated},
		{name: "add s3: full", method: http.MethodPost, path: members, token: lecturer, body: add("s3"), wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: core.NewCapacityExceededError(g.ID, 2).Error()})},
		{name: "add s1 again", method: http.MethodPost, path: members, token: lecturer, body: add("s1"), wantCode: http.StatusConflict},
		{name: "add: missing code", method: http.MethodPost, path: members, token: lecturer, body: []byte(`{"user_id": "s9"}`), wantCode: http.StatusBadRequest},
	})

	ms, err := env.GroupSvc.Members(context.Background(), g.ID)
	require.NoError(t, err)
	require.Len(t, ms, 2)

	runHTTPTests(t, app, []httpTest{
		{name: "list members", path: members, token: student, wantCode: http.StatusOK, wantData: marchallObj(t, ms)},
		{name: "remove s2", method: http.MethodDelete, path: members + "/" + ms[1].ID, token: lecturer, wantCode: http.StatusNoContent},
		{name: "add s3", method: http.MethodPost, path: members, token: lecturer, body: add("s3"), wantCode: http.StatusCreated},
		{name: "promote s1", method: http.MethodPut, path: members + "/" + ms[0].ID + "/role", token: lecturer, body: []byte(`{"role": "Leader"}`), wantCode: http.StatusOK},
		{name: "unknown role", method: http.MethodPut, path: members + "/" + ms[0].ID + "/role", token: lecturer, body: []byte(`{"role": "Boss"}`), wantCode: http.StatusBadRequest},
		{name: "delete: student forbidden", method: http.MethodDelete, path: "/v1/groups/" + g.ID, token: student, wantCode: http.StatusForbidden},
		{name: "delete", method: http.MethodDelete, path: "/v1/groups/" + g.ID, token: lecturer, wantCode: http.StatusNoContent},
		{name: "add after delete", method: http.MethodPost, path: members, token: lecturer, body: add("s4"), wantCode: http.StatusGone,
			wantData: marchallObj(t, httpErr{Error: core.NewGoneError("group", g.ID).Error()})},
		{name: "retrieve after delete", path: "/v1/groups/" + g.ID, token: student, wantCode: http.StatusGone},
		{name: "query skips deleted", path: "/v1/groups?class_id=class-1", token: student, wantCode: http.StatusOK, wantData: []byte("[]")},
	})
}

func TestGroupApi_tasksAndContributions(t *testing.T) {
	app, env := setup(t)
	ctx := context.Background()
	s1 := getToken(t, testutil.Student("s1"))
	g := env.CreateGroup(t, "Team A", "class-1", 5)
	env.AddMember(t, g.ID, "s1")
	env.AddMember(t, g.ID, "s2")

	tasks := "/v1/groups/" + g.ID + "/tasks"
	var created []task.Task
	for _, body := range []string{
		`{"title": "Lexer", "assigned_to_user_id": "s1", "complexity_weight": 1, "estimated_hours": 2}`,
		`{"title": "Parser", "assigned_to_user_id": "s1", "complexity_weight": 3, "estimated_hours": 4}`,
		`{"title": "Codegen", "assigned_to_user_id": "s2", "complexity_weight": 5, "estimated_hours": 6}`,
	} {
		req, rec := newAuthRequest(http.MethodPost, tasks, s1, []byte(body))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var tk task.Task
		unmarshal(t, rec, &tk)
		created = append(created, tk)
	}

	req, rec := newAuthRequest(http.MethodGet, "/v1/groups/"+g.ID+"/contributions", s1)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var cs []task.Contribution
	unmarshal(t, rec, &cs)
	scores := make(map[string]float64, len(cs))
	for _, c := range cs {
		scores[c.UserID] = c.Score
	}
	assert.Equal(t, map[string]float64{"s1": 14, "s2": 30}, scores)

	detail := "/v1/tasks/" + created[0].ID
	runHTTPTests(t, app, []httpTest{
		{name: "create: weight out of range", method: http.MethodPost, path: tasks, token: s1, body: []byte(`{"title": "X", "complexity_weight": 6}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"complexity_weight": "complexity_weight must be 5 or less"})},
		{name: "status: any code", method: http.MethodPatch, path: detail + "/status", token: s1, body: []byte(`{"status": 7}`), wantCode: http.StatusOK},
		{name: "status: missing", method: http.MethodPatch, path: detail + "/status", token: s1, body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{name: "update", method: http.MethodPut, path: detail, token: s1, body: []byte(`{"estimated_hours": 10}`), wantCode: http.StatusOK},
		{name: "comment", method: http.MethodPost, path: detail + "/comments", token: s1, body: []byte(`{"content": "done soon"}`), wantCode: http.StatusCreated},
		{name: "sub-item", method: http.MethodPost, path: detail + "/subitems", token: s1, body: []byte(`{"content": "tokens"}`), wantCode: http.StatusCreated},
		{name: "filter by status", path: tasks + "?status=7", token: s1, wantCode: http.StatusOK},
		{name: "filter: bad status", path: tasks + "?status=done", token: s1, wantCode: http.StatusBadRequest},
		{name: "delete codegen", method: http.MethodDelete, path: "/v1/tasks/" + created[2].ID, token: s1, wantCode: http.StatusNoContent},
		{name: "retrieve deleted", path: "/v1/tasks/" + created[2].ID, token: s1, wantCode: http.StatusGone},
	})

	d, err := env.TaskSvc.Get(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, task.Status(7), d.Status)
	assert.Equal(t, 10.0, d.EstimatedHours)
	require.Len(t, d.SubItems, 1)
	require.Len(t, d.Comments, 1)

	runHTTPTests(t, app, []httpTest{
		{name: "toggle sub-item", method: http.MethodPatch, path: "/v1/subitems/" + d.SubItems[0].ID + "/toggle", token: s1, wantCode: http.StatusOK},
		{name: "filter by assignee", path: tasks + "?assigned_to=s2", token: s1, wantCode: http.StatusOK, wantData: []byte("[]")},
	})

	cs, err = env.TaskSvc.Contributions(ctx, g.ID)
	require.NoError(t, err)
	runHTTPTests(t, app, []httpTest{
		{name: "contributions after changes", path: "/v1/groups/" + g.ID + "/contributions", token: s1, wantCode: http.StatusOK, wantData: marchallObj(t, cs)},
	})
}

func TestSubmissionApi(t *testing.T) {
	app, env := setup(t)
	tpl := env.ApprovedTemplate(t, "Compiler", "Report")
	g := env.BoundGroup(t, tpl, "s1", "s2")
	s1 := getToken(t, testutil.Student("s1"))
	lecturer := getToken(t, testutil.Lecturer())

	submit := func(t *testing.T, fields map[string]string, filename string) *httptest.ResponseRecorder {
		req, rec := newMultipartRequest(t, "/v1/groups/"+g.ID+"/submissions", s1, fields, filename, []byte("%PDF-1.7"))
		app.ServeHTTP(rec, req)
		return rec
	}

	rec := submit(t, map[string]string{"milestone_id": tpl.Milestones[0].ID, "content": "first draft"}, "report.pdf")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub submission.Submission
	unmarshal(t, rec, &sub)
	assert.Equal(t, "first draft", sub.Content)
	assert.Contains(t, sub.FilePath, "report.pdf")
	assert.Len(t, env.Files.Files, 1)

	t.Run("missing milestone", func(t *testing.T) {
		rec := submit(t, map[string]string{"content": "x"}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	grade := "/v1/submissions/" + sub.ID + "/grade"
	runHTTPTests(t, app, []httpTest{
		{name: "grade: student forbidden", method: http.MethodPost, path: grade, token: s1, body: []byte(`{"grade": 90}`), wantCode: http.StatusForbidden},
		{name: "grade: staff forbidden", method: http.MethodPost, path: grade, token: getToken(t, testutil.Staff()), body: []byte(`{"grade": 90}`), wantCode: http.StatusForbidden},
		{name: "grade: out of range", method: http.MethodPost, path: grade, token: lecturer, body: []byte(`{"grade": 101}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"grade": "grade must be 100 or less"})},
		{name: "grade", method: http.MethodPost, path: grade, token: lecturer, body: []byte(`{"grade": 85, "feedback": "good"}`), wantCode: http.StatusOK},
		{name: "grade: unknown", method: http.MethodPost, path: "/v1/submissions/missing/grade", token: lecturer, body: []byte(`{"grade": 85}`), wantCode: http.StatusNotFound},
	})
	require.Len(t, env.Notifier.Graded, 1)

	t.Run("resubmission clears the grade", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/groups/"+g.ID+"/submissions", s1,
			[]byte(fmt.Sprintf(`{"milestone_id": %q, "content": "second draft"}`, tpl.Milestones[0].ID)))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var again submission.Submission
		unmarshal(t, rec, &again)
		assert.Equal(t, sub.ID, again.ID)
		assert.Nil(t, again.Grade)
	})

	subs, err := env.SubmissionSvc.ListSubmissions(context.Background(), g.ID)
	require.NoError(t, err)
	runHTTPTests(t, app, []httpTest{
		{name: "list", path: "/v1/groups/" + g.ID + "/submissions", token: s1, wantCode: http.StatusOK, wantData: marchallObj(t, subs)},
	})
}

func TestGroupMilestoneApi(t *testing.T) {
	app, env := setup(t)
	g := env.CreateGroup(t, "Team A", "class-1", 5)
	env.AddMember(t, g.ID, "s1")
	env.AddMember(t, g.ID, "s2")
	s1 := getToken(t, testutil.Student("s1"))
	s2 := getToken(t, testutil.Student("s2"))
	lecturer := getToken(t, testutil.Lecturer())

	req, rec := newAuthRequest(http.MethodPost, "/v1/groups/"+g.ID+"/milestones", s1, []byte(`{"title": "Prototype"}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var gm submission.GroupMilestone
	unmarshal(t, rec, &gm)

	path := "/v1/group-milestones/" + gm.ID
	runHTTPTests(t, app, []httpTest{
		{name: "no grades yet", path: path + "/grades", token: s1, wantCode: http.StatusOK,
			wantData: []byte(`{"grades": [], "average_peer_grade": null, "lecturer_grade": null}`)},
		{name: "peer s1", method: http.MethodPost, path: path + "/grades", token: s1, body: []byte(`{"score": 7}`), wantCode: http.StatusOK},
		{name: "peer s2", method: http.MethodPost, path: path + "/grades", token: s2, body: []byte(`{"score": 9}`), wantCode: http.StatusOK},
		{name: "lecturer", method: http.MethodPost, path: path + "/grades", token: lecturer, body: []byte(`{"score": 6, "feedback": "ok"}`), wantCode: http.StatusOK},
		{name: "score out of range", method: http.MethodPost, path: path + "/grades", token: s1, body: []byte(`{"score": 11}`), wantCode: http.StatusBadRequest},
		{name: "staff forbidden", method: http.MethodPost, path: path + "/grades", token: getToken(t, testutil.Staff()), body: []byte(`{"score": 5}`), wantCode: http.StatusForbidden},
		{name: "comment", method: http.MethodPost, path: path + "/comments", token: lecturer, body: []byte(`{"content": "Nice demo"}`), wantCode: http.StatusCreated},
		{name: "submit", method: http.MethodPost, path: path + "/submit", token: s1, body: []byte(`{"content": "https://demo.test"}`), wantCode: http.StatusOK},
		{name: "complete", method: http.MethodPost, path: path + "/complete", token: s1, body: []byte(`{}`), wantCode: http.StatusOK},
	})

	req, rec = newAuthRequest(http.MethodGet, path+"/grades", s1)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var grades submission.Grades
	unmarshal(t, rec, &grades)
	assert.Len(t, grades.Grades, 3)
	require.NotNil(t, grades.AveragePeerGrade)
	assert.Equal(t, 8.0, *grades.AveragePeerGrade)
	require.NotNil(t, grades.LecturerGrade)
	assert.Equal(t, 6.0, grades.LecturerGrade.Score)

	gms, err := env.SubmissionSvc.ListGroupMilestones(context.Background(), g.ID)
	require.NoError(t, err)
	require.Len(t, gms, 1)
	assert.True(t, gms[0].IsCompleted)
	assert.Equal(t, "https://demo.test", gms[0].SubmissionContent)

	comments, err := env.SubmissionSvc.MilestoneComments(context.Background(), gm.ID)
	require.NoError(t, err)
	runHTTPTests(t, app, []httpTest{
		{name: "comments", path: path + "/comments", token: s2, wantCode: http.StatusOK, wantData: marchallObj(t, comments)},
		{name: "milestones", path: "/v1/groups/" + g.ID + "/milestones", token: s2, wantCode: http.StatusOK, wantData: marchallObj(t, gms)},
	})
}

func TestAuditApi(t *testing.T) {
	app, env := setup(t)
	g := env.CreateGroup(t, "Team A", "class-1", 2)
	env.AddMember(t, g.ID, "s1")

	history, err := env.AuditSvc.History(context.Background(), audit.Filter{EntityType: audit.EntityGroup, EntityID: g.ID})
	require.NoError(t, err)
	require.Len(t, history, 2)

	path := "/v1/audit?entity_type=" + audit.EntityGroup + "&entity_id=" + g.ID
	runHTTPTests(t, app, []httpTest{
		{name: "student forbidden", path: path, token: getToken(t, testutil.Student("s1")), wantCode: http.StatusForbidden},
		{name: "lecturer forbidden", path: path, token: getToken(t, testutil.Lecturer()), wantCode: http.StatusForbidden},
		{name: "staff", path: path, token: getToken(t, testutil.Staff()), wantCode: http.StatusOK, wantData: marchallObj(t, history)},
		{name: "head of department", path: path + "&action=AssignMember", token: getToken(t, testutil.HeadOfDepartment()), wantCode: http.StatusOK,
			wantData: marchallObj(t, history[1:])},
		{name: "unknown action", path: path + "&action=Explode", token: getToken(t, testutil.Admin()), wantCode: http.StatusBadRequest},
	})
}
