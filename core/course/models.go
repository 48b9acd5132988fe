package course

import (
	"fmt"
	"time"

	"github.com/plp/edmodule/core"
)

// Enrollment modes shared by sessions and modules.
const (
	ModeAudit    = "audit"
	ModeHonor    = "honor"
	ModeVerified = "verified"
)

// Session statuses.
const (
	StatusScheduled = "scheduled"
	StatusStarted   = "started"
	StatusEnded     = "ended"
)

const StatusPublished = "published"

var Modes = []string{ModeAudit, ModeHonor, ModeVerified}

type EnrollmentType struct {
	ID            int        `json:"id"`
	SessionID     int        `json:"session_id"`
	Mode          string     `json:"mode"`
	Price         int        `json:"price"`
	Active        bool       `json:"active"`
	BuyStart      *time.Time `json:"buy_start"`
	BuyExpiration *time.Time `json:"buy_expiration"`
}

// IsOpen tells whether the type can be bought at `now`.
func (et EnrollmentType) IsOpen(now time.Time) bool {
	if !et.Active {
		return false
	}
	if et.BuyStart != nil && !et.BuyStart.Before(now) {
		return false
	}
	return et.BuyExpiration == nil || !DateBefore(*et.BuyExpiration, now)
}

type Session struct {
	ID                  int              `json:"id"`
	CourseID            int              `json:"course_id"`
	Slug                string           `json:"slug"`
	DatetimeStarts      *time.Time       `json:"datetime_starts"`
	DatetimeEnds        *time.Time       `json:"datetime_ends"`
	DatetimeStartEnroll *time.Time       `json:"datetime_start_enroll"`
	DatetimeEndEnroll   *time.Time       `json:"datetime_end_enroll"`
	Duration            int              `json:"duration"` // weeks
	Workload            int              `json:"workload"` // hours per week
	Instructors         []string         `json:"instructors"`
	EnrollmentTypes     []EnrollmentType `json:"enrollment_types"`
}

func (s Session) Status(now time.Time) string {
	switch {
	case s.DatetimeStarts == nil:
		return ""
	case now.Before(*s.DatetimeStarts):
		return StatusScheduled
	case s.DatetimeEnds != nil && !now.Before(*s.DatetimeEnds):
		return StatusEnded
	default:
		return StatusStarted
	}
}

func (s Session) AllowEnrollments(now time.Time) bool {
	return s.DatetimeStartEnroll != nil && !s.DatetimeStartEnroll.After(now) &&
		s.DatetimeEndEnroll != nil && s.DatetimeEndEnroll.After(now)
}

// VerifiedEnrollmentType returns the first open verified type of the session, if any.
func (s Session) VerifiedEnrollmentType(now time.Time) *EnrollmentType {
	for i := range s.EnrollmentTypes {
		et := s.EnrollmentTypes[i]
		if et.Mode == ModeVerified && et.IsOpen(now) {
			return &et
		}
	}
	return nil
}

// VerifiedPrice is the price of the session's verified type, regardless of its buy window.
func (s Session) VerifiedPrice() (int, bool) {
	for _, et := range s.EnrollmentTypes {
		if et.Mode == ModeVerified {
			return et.Price, true
		}
	}
	return 0, false
}

type Course struct {
	ID          int       `json:"id"`
	Slug        string    `json:"slug"`
	University  string    `json:"university"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	Duration    int       `json:"duration"`
	Workload    int       `json:"workload"`
	IsProject   bool      `json:"is_project"`
	Profit      string    `json:"profit"`
	Themes      string    `json:"themes"`
	Categories  []string  `json:"categories"`
	Authors     []string  `json:"authors"`
	Partners    []string  `json:"partners"`
	Instructors []string  `json:"instructors"`
	Sessions    []Session `json:"sessions,omitempty"`
}

// NextSession is the session users should enroll in next.
func (c Course) NextSession(now time.Time) *Session {
	return ChooseClosestSession(c, now)
}

// AbsoluteSlug is the identifier of the session on the learning platform.
func (c Course) AbsoluteSlug(s Session) string {
	return fmt.Sprintf("course-v1:%s+%s+%s", c.University, c.Slug, s.Slug)
}

func (c Course) ProfitLines() []string {
	return core.SplitLines(c.Profit)
}

func (c Course) Session(id int) (Session, bool) {
	for _, s := range c.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return Session{}, false
}

type Participant struct {
	ID         int  `json:"id"`
	UserID     int  `json:"user_id"`
	SessionID  int  `json:"session_id"`
	CourseID   int  `json:"course_id"`
	IsGraduate bool `json:"is_graduate"`
}

// SessionPayment records a user's purchase of a session enrollment type.
type SessionPayment struct {
	ID          int        `json:"id"`
	UserID      int        `json:"user_id"`
	SessionID   int        `json:"session_id"`
	CourseID    int        `json:"course_id"`
	Mode        string     `json:"mode"`
	SessionEnds *time.Time `json:"session_ends"`
	Graduated   bool       `json:"graduated"`
	CreatedAt   time.Time  `json:"created_at"`
}

type QueryFilter struct {
	Status     string
	Categories []string // any of
	ExcludeIDs []int
}

type PaymentFilter struct {
	UserID     int
	SessionIDs []int
	CourseIDs  []int
	Mode       string
}

// DateBefore compares the calendar dates of a and b in a's location.
func DateBefore(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
