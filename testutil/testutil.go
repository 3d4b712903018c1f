package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
	"github.com/trezcool/kazi/core/audit"
	"github.com/trezcool/kazi/core/group"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/task"
	"github.com/trezcool/kazi/core/template"
	"github.com/trezcool/kazi/storage/database/dummy"
)

// Env wires every service on top of a fresh in-memory database.
type Env struct {
	DB        *dummydb.DB
	Validator *core.Validator

	TemplateRepo   template.Repository
	GroupRepo      group.Repository
	TaskRepo       task.Repository
	SubmissionRepo submission.Repository
	AuditRepo      audit.Repository

	Directory *Directory
	Files     *FileStore
	Notifier  *Notifier

	TemplateSvc   *template.Service
	GroupSvc      *group.Service
	TaskSvc       *task.Service
	SubmissionSvc *submission.Service
	AuditSvc      *audit.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	env := &Env{
		DB:             db,
		Validator:      core.DefaultValidator(),
		TemplateRepo:   dummydb.NewTemplateRepository(db),
		GroupRepo:      dummydb.NewGroupRepository(db),
		TaskRepo:       dummydb.NewTaskRepository(db),
		SubmissionRepo: dummydb.NewSubmissionRepository(db),
		AuditRepo:      dummydb.NewAuditRepository(db),
		Directory:      NewDirectory(),
		Files:          NewFileStore(),
		Notifier:       &Notifier{},
	}
	env.TemplateSvc = template.NewService(db, env.TemplateRepo, env.AuditRepo, env.Validator, env.Notifier)
	env.GroupSvc = group.NewService(db, env.GroupRepo, env.TemplateRepo, env.AuditRepo, env.Directory, env.Validator)
	env.TaskSvc = task.NewService(db, env.TaskRepo, env.GroupRepo, env.AuditRepo, env.Validator)
	env.SubmissionSvc = submission.NewService(
		db, env.SubmissionRepo, env.GroupRepo, env.TemplateRepo, env.AuditRepo, env.Files, env.Validator, env.Notifier,
	)
	env.AuditSvc = audit.NewService(env.AuditRepo)
	return env
}

// Identities

func Identity(role account.Role, id string) account.Identity {
	return account.Identity{
		UserID: id,
		Role:   role,
		Code:   "C-" + id,
		Email:  id + "@kazi.test",
		Name:   fmt.Sprintf("%s %s", role, id),
	}
}

func Student(id string) account.Identity { return Identity(account.RoleStudent, id) }
func Lecturer() account.Identity        { return Identity(account.RoleLecturer, "lecturer") }
func HeadOfDepartment() account.Identity {
	return Identity(account.RoleHeadOfDepartment, "hod")
}
func Staff() account.Identity { return Identity(account.RoleStaff, "staff") }
func Admin() account.Identity { return Identity(account.RoleAdmin, "admin") }

// Fixtures

func IntPtr(i int) *int                    { return &i }
func FloatPtr(f float64) *float64          { return &f }
func StringPtr(s string) *string           { return &s }
func StatusPtr(s task.Status) *task.Status { return &s }

// ApprovedTemplate creates a template with the given milestone titles and approves it.
func (env *Env) ApprovedTemplate(t *testing.T, name string, milestones ...string) template.Template {
	t.Helper()
	ctx := context.Background()

	nt := template.NewTemplate{SubjectID: "CS101", Name: name}
	for _, m := range milestones {
		nt.Milestones = append(nt.Milestones, template.NewMilestone{Title: m})
	}
	tpl, err := env.TemplateSvc.Create(ctx, Lecturer(), nt)
	require.NoError(t, err)
	tpl, err = env.TemplateSvc.Approve(ctx, HeadOfDepartment(), tpl.ID)
	require.NoError(t, err)
	return tpl
}

func (env *Env) CreateGroup(t *testing.T, name, classID string, maxMembers int) group.Group {
	t.Helper()
	g, err := env.GroupSvc.CreateGroup(context.Background(), Lecturer(), group.NewGroup{
		Name:       name,
		ClassID:    classID,
		MaxMembers: IntPtr(maxMembers),
	})
	require.NoError(t, err)
	return g
}

func (env *Env) AddMember(t *testing.T, groupID, userID string) group.Member {
	t.Helper()
	m, err := env.GroupSvc.AddMember(context.Background(), Lecturer(), groupID, group.NewMember{
		UserID:      userID,
		StudentCode: "C-" + userID,
		FullName:    "Student " + userID,
	})
	require.NoError(t, err)
	return m
}

// BoundGroup creates a group with the given members, bound to tpl.
func (env *Env) BoundGroup(t *testing.T, tpl template.Template, userIDs ...string) group.Group {
	t.Helper()
	g := env.CreateGroup(t, "Team "+tpl.Name, "class-1", group.DefaultMaxMembers)
	g, err := env.GroupSvc.AssignToTemplate(context.Background(), Lecturer(), g.ID, tpl.ID)
	require.NoError(t, err)
	for _, id := range userIDs {
		env.AddMember(t, g.ID, id)
	}
	return g
}

// Collaborators

// Directory is an in-memory account directory. Err, when set, is returned by every lookup.
type Directory struct {
	mu    sync.Mutex
	users map[string]account.UserInfo
	Err   error
	Calls int
}

var _ account.Directory = (*Directory)(nil)

func NewDirectory(users ...account.UserInfo) *Directory {
	d := &Directory{users: make(map[string]account.UserInfo)}
	for _, u := range users {
		d.Add(u)
	}
	return d
}

func (d *Directory) Add(u account.UserInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *Directory) find(match func(account.UserInfo) bool) (account.UserInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	if d.Err != nil {
		return account.UserInfo{}, d.Err
	}
	for _, u := range d.users {
		if match(u) {
			return u, nil
		}
	}
	return account.UserInfo{}, account.ErrUserNotFound
}

func (d *Directory) GetUserByCode(_ context.Context, code string) (account.UserInfo, error) {
	return d.find(func(u account.UserInfo) bool { return u.Code == code })
}

func (d *Directory) GetUserByEmail(_ context.Context, email string) (account.UserInfo, error) {
	return d.find(func(u account.UserInfo) bool { return u.Email == email })
}

func (d *Directory) GetUserByID(_ context.Context, id string) (account.UserInfo, error) {
	return d.find(func(u account.UserInfo) bool { return u.ID == id })
}

// FileStore keeps uploads in memory. Err, when set, fails every Put.
type FileStore struct {
	mu    sync.Mutex
	Files map[string][]byte
	Err   error
}

var _ core.FileStore = (*FileStore)(nil)

func NewFileStore() *FileStore {
	return &FileStore{Files: make(map[string][]byte)}
}

func (fs *FileStore) Put(_ context.Context, key, _ string, r io.Reader) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.Err != nil {
		return "", fs.Err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", errors.Wrap(err, "reading upload")
	}
	fs.Files[key] = buf.Bytes()
	return "mem://" + key, nil
}

func (fs *FileStore) Delete(_ context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.Files, key)
	return nil
}

// Notifier records the notifications it receives.
type Notifier struct {
	mu        sync.Mutex
	Decisions []template.Template
	Graded    []submission.Submission
}

var (
	_ template.Notifier   = (*Notifier)(nil)
	_ submission.Notifier = (*Notifier)(nil)
)

func (n *Notifier) TemplateDecided(_ context.Context, t template.Template, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Decisions = append(n.Decisions, t)
}

func (n *Notifier) SubmissionGraded(_ context.Context, s submission.Submission, _ group.Group, _ []group.Member) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Graded = append(n.Graded, s)
}

// AuditActions lists the actions recorded for an entity, oldest first.
func (env *Env) AuditActions(t *testing.T, entityType, entityID string) []audit.Action {
	t.Helper()
	entries, err := env.AuditRepo.QueryEntries(context.Background(), audit.Filter{EntityType: entityType, EntityID: entityID})
	require.NoError(t, err)
	actions := make([]audit.Action, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}
