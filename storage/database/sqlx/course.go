package sqlxrepos

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
)

const (
	courseColumns = "id, slug, university, title, status, duration, workload, is_project, profit, themes, " +
		"categories, authors, partners, instructors"
	sessionColumns = "id, course_id, slug, datetime_starts, datetime_ends, datetime_start_enroll, " +
		"datetime_end_enroll, duration, workload, instructors"
	sessionTypeColumns = "id, session_id, mode, price, active, buy_start, buy_expiration"
)

type courseRow struct {
	ID          int            `db:"id"`
	Slug        string         `db:"slug"`
	University  string         `db:"university"`
	Title       string         `db:"title"`
	Status      string         `db:"status"`
	Duration    int            `db:"duration"`
	Workload    int            `db:"workload"`
	IsProject   bool           `db:"is_project"`
	Profit      string         `db:"profit"`
	Themes      string         `db:"themes"`
	Categories  pq.StringArray `db:"categories"`
	Authors     pq.StringArray `db:"authors"`
	Partners    pq.StringArray `db:"partners"`
	Instructors pq.StringArray `db:"instructors"`
}

func (r courseRow) course() course.Course {
	return course.Course{
		ID:          r.ID,
		Slug:        r.Slug,
		University:  r.University,
		Title:       r.Title,
		Status:      r.Status,
		Duration:    r.Duration,
		Workload:    r.Workload,
		IsProject:   r.IsProject,
		Profit:      r.Profit,
		Themes:      r.Themes,
		Categories:  r.Categories,
		Authors:     r.Authors,
		Partners:    r.Partners,
		Instructors: r.Instructors,
		Sessions:    make([]course.Session, 0),
	}
}

type sessionRow struct {
	ID                  int            `db:"id"`
	CourseID            int            `db:"course_id"`
	Slug                string         `db:"slug"`
	DatetimeStarts      null.Time      `db:"datetime_starts"`
	DatetimeEnds        null.Time      `db:"datetime_ends"`
	DatetimeStartEnroll null.Time      `db:"datetime_start_enroll"`
	DatetimeEndEnroll   null.Time      `db:"datetime_end_enroll"`
	Duration            int            `db:"duration"`
	Workload            int            `db:"workload"`
	Instructors         pq.StringArray `db:"instructors"`
}

func (r sessionRow) session() course.Session {
	return course.Session{
		ID:                  r.ID,
		CourseID:            r.CourseID,
		Slug:                r.Slug,
		DatetimeStarts:      utcPtr(r.DatetimeStarts),
		DatetimeEnds:        utcPtr(r.DatetimeEnds),
		DatetimeStartEnroll: utcPtr(r.DatetimeStartEnroll),
		DatetimeEndEnroll:   utcPtr(r.DatetimeEndEnroll),
		Duration:            r.Duration,
		Workload:            r.Workload,
		Instructors:         r.Instructors,
		EnrollmentTypes:     make([]course.EnrollmentType, 0),
	}
}

type sessionTypeRow struct {
	ID            int       `db:"id"`
	SessionID     int       `db:"session_id"`
	Mode          string    `db:"mode"`
	Price         int       `db:"price"`
	Active        bool      `db:"active"`
	BuyStart      null.Time `db:"buy_start"`
	BuyExpiration null.Time `db:"buy_expiration"`
}

func (r sessionTypeRow) enrollmentType() course.EnrollmentType {
	return course.EnrollmentType{
		ID:            r.ID,
		SessionID:     r.SessionID,
		Mode:          r.Mode,
		Price:         r.Price,
		Active:        r.Active,
		BuyStart:      utcPtr(r.BuyStart),
		BuyExpiration: utcPtr(r.BuyExpiration),
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

type courseRepository struct {
	db core.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db core.DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	q := repo.db.Rebind(`INSERT INTO courses
		(slug, university, title, status, duration, workload, is_project, profit, themes, categories, authors, partners, instructors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING ` + courseColumns)
	var r courseRow
	err := repo.db.GetContext(ctx, &r, q,
		c.Slug, c.University, c.Title, c.Status, c.Duration, c.Workload, c.IsProject, c.Profit, c.Themes,
		stringArray(c.Categories), stringArray(c.Authors), stringArray(c.Partners), stringArray(c.Instructors))
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return r.course(), nil
}

func (repo courseRepository) CreateSession(ctx context.Context, s course.Session) (course.Session, error) {
	var created course.Session
	err := core.RunInTx(ctx, repo.db, func(tx core.DBExecutor) error {
		q := tx.Rebind(`INSERT INTO course_sessions
			(course_id, slug, datetime_starts, datetime_ends, datetime_start_enroll, datetime_end_enroll, duration, workload, instructors)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING ` + sessionColumns)
		var r sessionRow
		err := tx.GetContext(ctx, &r, q,
			s.CourseID, s.Slug, nullTime(s.DatetimeStarts), nullTime(s.DatetimeEnds),
			nullTime(s.DatetimeStartEnroll), nullTime(s.DatetimeEndEnroll), s.Duration, s.Workload,
			stringArray(s.Instructors))
		if err != nil {
			return errors.Wrap(err, "inserting session")
		}
		created = r.session()

		q = tx.Rebind(`INSERT INTO session_enrollment_types
			(session_id, mode, price, active, buy_start, buy_expiration)
			VALUES (?, ?, ?, ?, ?, ?) RETURNING ` + sessionTypeColumns)
		for _, et := range s.EnrollmentTypes {
			var tr sessionTypeRow
			err = tx.GetContext(ctx, &tr, q,
				created.ID, et.Mode, et.Price, et.Active, nullTime(et.BuyStart), nullTime(et.BuyExpiration))
			if err != nil {
				return errors.Wrap(err, "inserting session enrollment type")
			}
			created.EnrollmentTypes = append(created.EnrollmentTypes, tr.enrollmentType())
		}
		return nil
	})
	return created, err
}

// loadSessions fetches the sessions (with their enrollment types) of the courses, ordered by ID.
func (repo courseRepository) loadSessions(ctx context.Context, courseIDs []int) (map[int][]course.Session, error) {
	bySession := make(map[int][]course.Session)
	if len(courseIDs) == 0 {
		return bySession, nil
	}
	var rows []sessionRow
	q := repo.db.Rebind("SELECT " + sessionColumns + " FROM course_sessions WHERE course_id = ANY(?) ORDER BY id")
	if err := repo.db.SelectContext(ctx, &rows, q, pq.Array(int64s(courseIDs))); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	sessionIDs := make([]int, 0, len(rows))
	for _, r := range rows {
		sessionIDs = append(sessionIDs, r.ID)
	}
	types, err := repo.loadSessionTypes(ctx, sessionIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		s := r.session()
		if ets, ok := types[s.ID]; ok {
			s.EnrollmentTypes = ets
		}
		bySession[s.CourseID] = append(bySession[s.CourseID], s)
	}
	return bySession, nil
}

func (repo courseRepository) loadSessionTypes(ctx context.Context, sessionIDs []int) (map[int][]course.EnrollmentType, error) {
	types := make(map[int][]course.EnrollmentType)
	if len(sessionIDs) == 0 {
		return types, nil
	}
	var rows []sessionTypeRow
	q := repo.db.Rebind("SELECT " + sessionTypeColumns + " FROM session_enrollment_types WHERE session_id = ANY(?) ORDER BY id")
	if err := repo.db.SelectContext(ctx, &rows, q, pq.Array(int64s(sessionIDs))); err != nil {
		return nil, errors.Wrap(err, "querying session enrollment types")
	}
	for _, r := range rows {
		types[r.SessionID] = append(types[r.SessionID], r.enrollmentType())
	}
	return types, nil
}

func (repo courseRepository) queryCourses(ctx context.Context, w where) ([]course.Course, error) {
	var rows []courseRow
	q := repo.db.Rebind("SELECT " + courseColumns + " FROM courses" + w.String() + " ORDER BY id")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	ids := make([]int, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	sessions, err := repo.loadSessions(ctx, ids)
	if err != nil {
		return nil, err
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		c := r.course()
		if s, ok := sessions[c.ID]; ok {
			c.Sessions = s
		}
		courses = append(courses, c)
	}
	return courses, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id int) (course.Course, error) {
	var w where
	w.add("id = ?", id)
	courses, err := repo.queryCourses(ctx, w)
	if err != nil {
		return course.Course{}, err
	}
	if len(courses) == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return courses[0], nil
}

func (repo courseRepository) GetCourses(ctx context.Context, ids []int) ([]course.Course, error) {
	var w where
	w.add("id = ANY(?)", pq.Array(int64s(ids)))
	return repo.queryCourses(ctx, w)
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter course.QueryFilter) ([]course.Course, error) {
	var w where
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Categories != nil {
		w.add("categories && ?", stringArray(filter.Categories))
	}
	if len(filter.ExcludeIDs) > 0 {
		w.add("NOT (id = ANY(?))", pq.Array(int64s(filter.ExcludeIDs)))
	}
	return repo.queryCourses(ctx, w)
}

func (repo courseRepository) GetSession(ctx context.Context, id int) (course.Session, error) {
	var r sessionRow
	q := repo.db.Rebind("SELECT " + sessionColumns + " FROM course_sessions WHERE id = ?")
	if err := repo.db.GetContext(ctx, &r, q, id); err != nil {
		return course.Session{}, trapNoRowsErr(err, course.ErrSessionNotFound, "getting session")
	}
	types, err := repo.loadSessionTypes(ctx, []int{id})
	if err != nil {
		return course.Session{}, err
	}
	s := r.session()
	if ets, ok := types[id]; ok {
		s.EnrollmentTypes = ets
	}
	return s, nil
}

type participantRow struct {
	ID         int  `db:"id"`
	UserID     int  `db:"user_id"`
	SessionID  int  `db:"session_id"`
	CourseID   int  `db:"course_id"`
	IsGraduate bool `db:"is_graduate"`
}

func (r participantRow) participant() course.Participant {
	return course.Participant(r)
}

func (repo courseRepository) SaveParticipant(ctx context.Context, p course.Participant) (course.Participant, error) {
	q := repo.db.Rebind(`WITH p AS (
			INSERT INTO participants (user_id, session_id, is_graduate) VALUES (?, ?, ?)
			ON CONFLICT (user_id, session_id) DO UPDATE SET is_graduate = EXCLUDED.is_graduate
			RETURNING id, user_id, session_id, is_graduate
		)
		SELECT p.id, p.user_id, p.session_id, s.course_id, p.is_graduate
		FROM p JOIN course_sessions s ON s.id = p.session_id`)
	var r participantRow
	if err := repo.db.GetContext(ctx, &r, q, p.UserID, p.SessionID, p.IsGraduate); err != nil {
		return course.Participant{}, errors.Wrap(err, "saving participant")
	}
	return r.participant(), nil
}

func (repo courseRepository) QueryParticipants(ctx context.Context, userID int, courseIDs []int) ([]course.Participant, error) {
	q := repo.db.Rebind(`SELECT p.id, p.user_id, p.session_id, s.course_id, p.is_graduate
		FROM participants p JOIN course_sessions s ON s.id = p.session_id
		WHERE p.user_id = ? AND s.course_id = ANY(?) ORDER BY p.id`)
	var rows []participantRow
	if err := repo.db.SelectContext(ctx, &rows, q, userID, pq.Array(int64s(courseIDs))); err != nil {
		return nil, errors.Wrap(err, "querying participants")
	}
	participants := make([]course.Participant, 0, len(rows))
	for _, r := range rows {
		participants = append(participants, r.participant())
	}
	return participants, nil
}

type sessionPaymentRow struct {
	ID          int       `db:"id"`
	UserID      int       `db:"user_id"`
	SessionID   int       `db:"session_id"`
	CourseID    int       `db:"course_id"`
	Mode        string    `db:"mode"`
	SessionEnds null.Time `db:"session_ends"`
	Graduated   bool      `db:"graduated"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r sessionPaymentRow) payment() course.SessionPayment {
	return course.SessionPayment{
		ID:          r.ID,
		UserID:      r.UserID,
		SessionID:   r.SessionID,
		CourseID:    r.CourseID,
		Mode:        r.Mode,
		SessionEnds: utcPtr(r.SessionEnds),
		Graduated:   r.Graduated,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

const sessionPaymentSelect = `SELECT sp.id, sp.user_id, sp.session_id, s.course_id, sp.mode,
	s.datetime_ends AS session_ends, sp.graduated, sp.created_at
	FROM session_payments sp JOIN course_sessions s ON s.id = sp.session_id`

func (repo courseRepository) CreateSessionPayment(ctx context.Context, p course.SessionPayment) (course.SessionPayment, error) {
	q := repo.db.Rebind(`INSERT INTO session_payments (user_id, session_id, mode, graduated, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	var id int
	if err := repo.db.QueryRowxContext(ctx, q, p.UserID, p.SessionID, p.Mode, p.Graduated, p.CreatedAt.UTC()).Scan(&id); err != nil {
		return course.SessionPayment{}, errors.Wrap(err, "inserting session payment")
	}
	var r sessionPaymentRow
	if err := repo.db.GetContext(ctx, &r, repo.db.Rebind(sessionPaymentSelect+" WHERE sp.id = ?"), id); err != nil {
		return course.SessionPayment{}, errors.Wrap(err, "getting session payment")
	}
	return r.payment(), nil
}

func (repo courseRepository) QuerySessionPayments(ctx context.Context, filter course.PaymentFilter) ([]course.SessionPayment, error) {
	var w where
	if filter.UserID != 0 {
		w.add("sp.user_id = ?", filter.UserID)
	}
	if len(filter.SessionIDs) > 0 {
		w.add("sp.session_id = ANY(?)", pq.Array(int64s(filter.SessionIDs)))
	}
	if len(filter.CourseIDs) > 0 {
		w.add("s.course_id = ANY(?)", pq.Array(int64s(filter.CourseIDs)))
	}
	if filter.Mode != "" {
		w.add("sp.mode = ?", filter.Mode)
	}
	var rows []sessionPaymentRow
	q := repo.db.Rebind(sessionPaymentSelect + w.String() + " ORDER BY sp.id")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying session payments")
	}
	payments := make([]course.SessionPayment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.payment())
	}
	return payments, nil
}
