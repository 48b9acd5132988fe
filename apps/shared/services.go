package shared

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/core/edmodule"
	"github.com/plp/edmodule/core/enrollment"
	"github.com/plp/edmodule/core/pricing"
	"github.com/plp/edmodule/core/progress"
	"github.com/plp/edmodule/core/promo"
	"github.com/plp/edmodule/core/rating"
	"github.com/plp/edmodule/core/user"
	appfs "github.com/plp/edmodule/fs"
	edxsvc "github.com/plp/edmodule/services/edx"
	emailsvc "github.com/plp/edmodule/services/email"
	logsvc "github.com/plp/edmodule/services/logger"
	metricsvc "github.com/plp/edmodule/services/metrics"
	"github.com/plp/edmodule/storage/database"
	sqlxrepos "github.com/plp/edmodule/storage/database/sqlx"
)

// Services is the service graph every app runs on.
type Services struct {
	Users       *user.Service
	Courses     *course.Service
	Modules     *edmodule.Service
	Pricing     *pricing.Service
	Promos      *promo.Service
	Enrollments *enrollment.Service
	Ratings     *rating.Service
	Syncer      *progress.Syncer
}

// NewServices wires the services over the postgres repositories.
// Enrollment events are counted and mailed to users.
func NewServices(db core.DB, conf *core.Config, logger core.Logger, mailSvc core.EmailService) *Services {
	s := new(Services)
	s.Users = user.NewService(sqlxrepos.NewUserRepository(db))
	s.Courses = course.NewService(sqlxrepos.NewCourseRepository(db))
	s.Modules = edmodule.NewService(sqlxrepos.NewEdmoduleRepository(db), s.Courses)
	s.Pricing = pricing.NewService(s.Courses)
	s.Promos = promo.NewService(sqlxrepos.NewPromoRepository(db), s.Modules, s.Courses, s.Pricing)
	s.Enrollments = enrollment.NewService(sqlxrepos.NewEnrollmentRepository(db), s.Modules, s.Courses, s.Promos)
	s.Ratings = rating.NewService(sqlxrepos.NewRatingRepository(db), s.Modules)

	notifier := enrollment.NewMailNotifier(s.Users, s.Modules, s.Enrollments, mailSvc, logger)
	s.Enrollments.OnChange(notifier.Notify)
	s.Enrollments.OnChange(metricsvc.ObserveEnrollment)

	s.Syncer = progress.NewSyncer(
		edxsvc.NewClient(conf.EDX, logger),
		s.Enrollments,
		s.Modules,
		s.Users,
		logger,
		conf.ProgressSync.Concurrency,
	)
	s.Syncer.OnOutcome(metricsvc.ObserveProgressSync)
	return s
}

// NewLogger returns a logger printing to stdout with `prefix` and reporting to rollbar out of debug mode.
func NewLogger(prefix string, conf *core.Config) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, prefix+" : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func NewMailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// LoadAssets parses the email templates and the common passwords list shipped in the binary.
func LoadAssets(conf *core.Config, logger core.Logger) {
	core.ParseEmailTemplates(appfs.FS, "templates", conf.FrontendBaseURL, conf.Debug, logger)
	user.LoadCommonPasswords(appfs.FS, "common-passwords.txt.gz", logger)
}

// SetUpDB creates the database if needed, connects to it and migrates it.
func SetUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
