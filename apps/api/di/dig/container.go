package dig_container

import (
	"context"
	"log"
	"os"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/kazi/apps/api/echo"
	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
	"github.com/trezcool/kazi/core/audit"
	"github.com/trezcool/kazi/core/group"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/task"
	"github.com/trezcool/kazi/core/template"
	"github.com/trezcool/kazi/services/accounts"
	"github.com/trezcool/kazi/services/cache"
	emailsvc "github.com/trezcool/kazi/services/email"
	"github.com/trezcool/kazi/services/filestore"
	logsvc "github.com/trezcool/kazi/services/logger"
	"github.com/trezcool/kazi/services/notify"
	"github.com/trezcool/kazi/services/reminder"
	"github.com/trezcool/kazi/storage/database"
	dummydb "github.com/trezcool/kazi/storage/database/dummy"
	boiledrepos "github.com/trezcool/kazi/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/kazi/storage/database/sqlx"
)

const dummyEngine = "dummy"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Closer releases a resource acquired while building the container.
	Closer func() error

	// Closers are run in reverse order on shutdown.
	Closers []Closer

	// ShutdownChannel receives OS signals and internal shutdown requests.
	ShutdownChannel chan os.Signal

	storage struct {
		dig.Out
		DB          core.Transactor
		DBCloser    Closer `name:"dbCloser"`
		Templates   template.Repository
		Groups      group.Repository
		Tasks       task.Repository
		Submissions submission.Repository
		Audit       audit.Repository
	}

	directoryResult struct {
		dig.Out
		Directory   account.Directory
		CacheCloser Closer `name:"cacheCloser"`
	}

	closersParam struct {
		dig.In
		DBCloser    Closer `name:"dbCloser"`
		CacheCloser Closer `name:"cacheCloser"`
	}

	serverParam struct {
		dig.In
		Conf          *core.Config
		Logger        core.Logger
		Validator     *core.Validator
		Shutdown      ShutdownChannel
		TemplateSvc   *template.Service
		GroupSvc      *group.Service
		TaskSvc       *task.Service
		SubmissionSvc *submission.Service
		AuditSvc      *audit.Service
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) (storage, error) {
	if conf.Database.Engine == dummyEngine {
		loggerParam.Logger.Warn("using the in-memory database: data is lost on restart")
		db, err := dummydb.Open()
		if err != nil {
			return storage{}, errors.Wrap(err, "opening dummy database")
		}
		return storage{
			DB:          db,
			DBCloser:    func() error { return nil },
			Templates:   dummydb.NewTemplateRepository(db),
			Groups:      dummydb.NewGroupRepository(db),
			Tasks:       dummydb.NewTaskRepository(db),
			Submissions: dummydb.NewSubmissionRepository(db),
			Audit:       dummydb.NewAuditRepository(db),
		}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return storage{}, errors.Wrap(err, "setting up database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return storage{}, errors.Wrap(err, "opening database")
	}
	if err = database.Migrate(db.DB.DB); err != nil {
		_ = db.Close()
		return storage{}, err
	}

	return storage{
		DB:          db,
		DBCloser:    db.Close,
		Templates:   sqlxrepos.NewTemplateRepository(db.DB),
		Groups:      sqlxrepos.NewGroupRepository(db.DB),
		Tasks:       sqlxrepos.NewTaskRepository(db.DB),
		Submissions: sqlxrepos.NewSubmissionRepository(db.DB),
		Audit:       boiledrepos.NewAuditRepository(db.DB),
	}, nil
}

// newDirectory caches account directory lookups in redis when configured, in process memory otherwise.
func newDirectory(conf *core.Config, logger core.Logger) (directoryResult, error) {
	client := accounts.NewClient(conf.Accounts)

	if conf.Redis.URL == "" {
		return directoryResult{
			Directory:   accounts.NewCachedDirectory(client, cache.NewMemoryCache(), conf.Accounts.CacheTTL, logger),
			CacheCloser: func() error { return nil },
		}, nil
	}

	rc, err := cache.NewRedisCache(context.Background(), conf.Redis.URL, "kazi:")
	if err != nil {
		return directoryResult{}, errors.Wrap(err, "connecting to redis")
	}
	return directoryResult{
		Directory:   accounts.NewCachedDirectory(client, rc, conf.Accounts.CacheTTL, logger),
		CacheCloser: rc.Close,
	}, nil
}

func newFileStore(conf *core.Config) (core.FileStore, error) {
	return filestore.NewFileStore(conf.Storage)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	core.ParseEmailTemplates(conf, logger)
	return emailsvc.NewEmailService(conf, logger)
}

func newClosers(p closersParam) Closers {
	return Closers{p.DBCloser, p.CacheCloser}
}

func newShutdownChannel() ShutdownChannel {
	return make(ShutdownChannel, 1)
}

func newServer(p serverParam) echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Address:        p.Conf.Server.Address,
		AppName:        p.Conf.AppName,
		SecretKey:      p.Conf.SecretKey,
		Debug:          p.Conf.Debug,
		TestMode:       p.Conf.TestMode,
		DisableReqLogs: p.Conf.Server.DisableReqLogs,
		Logger:         p.Logger,
		Validator:      p.Validator,
		SignalShutdown: func() {
			select {
			case p.Shutdown <- syscall.SIGTERM:
			default: // already shutting down
			}
		},
		TemplateSvc:   p.TemplateSvc,
		GroupSvc:      p.GroupSvc,
		TaskSvc:       p.TaskSvc,
		SubmissionSvc: p.SubmissionSvc,
		AuditSvc:      p.AuditSvc,
	})
}

func newScheduler(
	conf *core.Config,
	milestones *submission.Service,
	groups *group.Service,
	notifier reminder.Notifier,
	logger core.Logger,
) *reminder.Scheduler {
	return reminder.NewScheduler(conf.Reminders, milestones, groups, notifier, logger)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(core.DefaultValidator))
	must(c.Provide(newStorage))
	must(c.Provide(newDirectory))
	must(c.Provide(newFileStore))
	must(c.Provide(newEmailService))
	must(c.Provide(
		notify.NewEmailNotifier,
		dig.As(new(template.Notifier), new(submission.Notifier), new(reminder.Notifier)),
	))
	must(c.Provide(template.NewService))
	must(c.Provide(group.NewService))
	must(c.Provide(task.NewService))
	must(c.Provide(submission.NewService))
	must(c.Provide(audit.NewService))
	must(c.Provide(newClosers))
	must(c.Provide(newShutdownChannel))
	must(c.Provide(newServer))
	must(c.Provide(newScheduler))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
