package inmemdb

import (
	"context"

	"github.com/plp/edmodule/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

// withSessions must be called with the read lock held.
func (repo *courseRepository) withSessions(c course.Course) course.Course {
	c.Sessions = make([]course.Session, 0)
	for _, s := range rows(repo.db.sessions) {
		if s.CourseID == c.ID {
			c.Sessions = append(c.Sessions, s)
		}
	}
	return c
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c.ID = repo.db.nextPK()
	c.Sessions = nil
	repo.db.courses[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) CreateSession(_ context.Context, s course.Session) (course.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[s.CourseID]; !ok {
		return course.Session{}, course.ErrNotFound
	}
	s.ID = repo.db.nextPK()
	types := make([]course.EnrollmentType, 0, len(s.EnrollmentTypes))
	for _, et := range s.EnrollmentTypes {
		et.ID = repo.db.nextPK()
		et.SessionID = s.ID
		types = append(types, et)
	}
	s.EnrollmentTypes = types
	repo.db.sessions[s.ID] = &s
	return s, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id int) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	c, ok := repo.db.courses[id]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	return repo.withSessions(*c), nil
}

func (repo *courseRepository) GetCourses(_ context.Context, ids []int) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	courses := make([]course.Course, 0, len(ids))
	for _, c := range rows(repo.db.courses) {
		if containsInt(ids, c.ID) {
			courses = append(courses, repo.withSessions(c))
		}
	}
	return courses, nil
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter course.QueryFilter) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	courses := make([]course.Course, 0)
	for _, c := range rows(repo.db.courses) {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if containsInt(filter.ExcludeIDs, c.ID) {
			continue
		}
		if filter.Categories != nil && !sharesString(c.Categories, filter.Categories) {
			continue
		}
		courses = append(courses, repo.withSessions(c))
	}
	return courses, nil
}

func sharesString(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func (repo *courseRepository) GetSession(_ context.Context, id int) (course.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.sessions[id]; ok {
		return *s, nil
	}
	return course.Session{}, course.ErrSessionNotFound
}

func (repo *courseRepository) SaveParticipant(_ context.Context, p course.Participant) (course.Participant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.sessions[p.SessionID]
	if !ok {
		return course.Participant{}, course.ErrSessionNotFound
	}
	p.CourseID = s.CourseID
	for id, existing := range repo.db.participants {
		if existing.UserID == p.UserID && existing.SessionID == p.SessionID {
			p.ID = id
		}
	}
	if p.ID == 0 {
		p.ID = repo.db.nextPK()
	}
	repo.db.participants[p.ID] = &p
	return p, nil
}

func (repo *courseRepository) QueryParticipants(_ context.Context, userID int, courseIDs []int) ([]course.Participant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	participants := make([]course.Participant, 0)
	for _, p := range rows(repo.db.participants) {
		if p.UserID == userID && containsInt(courseIDs, p.CourseID) {
			participants = append(participants, p)
		}
	}
	return participants, nil
}

func (repo *courseRepository) CreateSessionPayment(_ context.Context, p course.SessionPayment) (course.SessionPayment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.sessions[p.SessionID]
	if !ok {
		return course.SessionPayment{}, course.ErrSessionNotFound
	}
	p.ID = repo.db.nextPK()
	p.CourseID = s.CourseID
	p.SessionEnds = s.DatetimeEnds
	repo.db.sessionPayments[p.ID] = &p
	return p, nil
}

func (repo *courseRepository) QuerySessionPayments(_ context.Context, filter course.PaymentFilter) ([]course.SessionPayment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	payments := make([]course.SessionPayment, 0)
	for _, p := range rows(repo.db.sessionPayments) {
		if filter.UserID != 0 && p.UserID != filter.UserID {
			continue
		}
		if len(filter.SessionIDs) > 0 && !containsInt(filter.SessionIDs, p.SessionID) {
			continue
		}
		if len(filter.CourseIDs) > 0 && !containsInt(filter.CourseIDs, p.CourseID) {
			continue
		}
		if filter.Mode != "" && p.Mode != filter.Mode {
			continue
		}
		if s, ok := repo.db.sessions[p.SessionID]; ok {
			p.SessionEnds = s.DatetimeEnds
		}
		payments = append(payments, p)
	}
	return payments, nil
}
