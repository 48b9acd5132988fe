package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/core/edmodule"
	"github.com/plp/edmodule/core/enrollment"
	"github.com/plp/edmodule/core/pricing"
	"github.com/plp/edmodule/core/promo"
	"github.com/plp/edmodule/core/rating"
	"github.com/plp/edmodule/core/user"
	"github.com/plp/edmodule/storage/database/inmem"
)

const day = 24 * time.Hour

// Services wires every core service over a fresh in-memory database.
type Services struct {
	DB          *inmemdb.DB
	Users       *user.Service
	Courses     *course.Service
	Modules     *edmodule.Service
	Pricing     *pricing.Service
	Promos      *promo.Service
	Enrollments *enrollment.Service
	Ratings     *rating.Service
}

func NewServices() *Services {
	db := inmemdb.NewDB()
	s := &Services{DB: db}
	s.Users = user.NewService(inmemdb.NewUserRepository(db))
	s.Courses = course.NewService(inmemdb.NewCourseRepository(db))
	s.Modules = edmodule.NewService(inmemdb.NewEdmoduleRepository(db), s.Courses)
	s.Pricing = pricing.NewService(s.Courses)
	s.Promos = promo.NewService(inmemdb.NewPromoRepository(db), s.Modules, s.Courses, s.Pricing)
	s.Enrollments = enrollment.NewService(inmemdb.NewEnrollmentRepository(db), s.Modules, s.Courses, s.Promos)
	s.Ratings = rating.NewService(inmemdb.NewRatingRepository(db), s.Modules)
	return s
}

func timePtr(t time.Time) *time.Time { return &t }

// OpenSession is a session open for enrollment at `now`, starting in a week, with a verified type at `price`.
func OpenSession(slug string, now time.Time, price int) course.Session {
	return course.Session{
		Slug:                slug,
		DatetimeStarts:      timePtr(now.Add(7 * day)),
		DatetimeEnds:        timePtr(now.Add(60 * day)),
		DatetimeStartEnroll: timePtr(now.Add(-day)),
		DatetimeEndEnroll:   timePtr(now.Add(30 * day)),
		Duration:            4,
		Workload:            5,
		EnrollmentTypes: []course.EnrollmentType{
			{Mode: course.ModeAudit, Active: true},
			{Mode: course.ModeVerified, Price: price, Active: true},
		},
	}
}

// StartedSession is like OpenSession but started a week before `now`.
func StartedSession(slug string, now time.Time, price int) course.Session {
	s := OpenSession(slug, now, price)
	s.DatetimeStarts = timePtr(now.Add(-7 * day))
	return s
}

func CreateUser(t *testing.T, svc *user.Service, name, uname, email, pwd string, isStaff bool) user.User {
	t.Helper()
	if pwd == "" {
		pwd = "Pa$$w0rd!"
	}
	usr, err := svc.Create(context.Background(), user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		IsStaff:         isStaff,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateCourse creates a published course of the given category with `sessions`.
func CreateCourse(t *testing.T, svc *course.Service, slug, category string, sessions ...course.Session) course.Course {
	t.Helper()
	c, err := svc.Create(context.Background(), course.Course{
		Slug:        slug,
		University:  "plp",
		Title:       "Course " + slug,
		Duration:    4,
		Workload:    5,
		Profit:      "learn " + slug,
		Categories:  []string{category},
		Instructors: []string{"Ada"},
		Sessions:    sessions,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

func CreateModule(t *testing.T, svc *edmodule.Service, code, status string, discount int, courseIDs ...int) edmodule.Module {
	t.Helper()
	m, err := svc.Create(context.Background(), edmodule.NewModule{
		Code:      code,
		Title:     "Module " + code,
		Status:    status,
		CourseIDs: courseIDs,
		Discount:  discount,
		Subtitle:  "first\nsecond",
	})
	if err != nil {
		t.Fatalf("CreateModule() failed: %v", err)
	}
	return m
}

func CreateModuleType(t *testing.T, svc *edmodule.Service, moduleID int, mode string, price int) edmodule.EnrollmentType {
	t.Helper()
	et, err := svc.SaveEnrollmentType(context.Background(), moduleID, edmodule.NewEnrollmentType{Mode: mode, Price: price})
	if err != nil {
		t.Fatalf("CreateModuleType() failed: %v", err)
	}
	return et
}
