package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/audit"
	"github.com/trezcool/kazi/core/group"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/task"
	"github.com/trezcool/kazi/core/template"
)

type (
	Options struct {
		Address        string
		AppName        string
		SecretKey      string
		Debug          bool
		TestMode       bool
		DisableReqLogs bool
		Logger         core.Logger
		Validator      *core.Validator
		SignalShutdown func()

		TemplateSvc   *template.Service
		GroupSvc      *group.Service
		TaskSvc       *task.Service
		SubmissionSvc *submission.Service
		AuditSvc      *audit.Service
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.opts.Debug || s.opts.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	signalShutdown := s.opts.SignalShutdown
	if signalShutdown == nil {
		signalShutdown = func() {}
	}
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Validator, signalShutdown)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1", newJWTMiddleware([]byte(s.opts.SecretKey)), identityMiddleware)
	registerTemplateAPI(v1, s.opts.TemplateSvc)
	registerGroupAPI(v1, s.opts.GroupSvc, s.opts.TaskSvc)
	registerTaskAPI(v1, s.opts.TaskSvc)
	registerSubmissionAPI(v1, s.opts.SubmissionSvc)
	registerAuditAPI(v1, s.opts.AuditSvc)
}

// Start blocks until the server stops. It returns http.ErrServerClosed after Stop.
func (s *server) Start() error {
	return s.app.Start(s.opts.Address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.AppName+" API!")
}
