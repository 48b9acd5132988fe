package course

import (
	"context"

	"github.com/pkg/errors"

	"github.com/plp/edmodule/core"
)

var (
	ErrNotFound        = errors.New("course not found")
	ErrSessionNotFound = errors.New("course session not found")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		CreateSession(ctx context.Context, s Session) (Session, error)
		GetCourse(ctx context.Context, id int) (Course, error)
		GetCourses(ctx context.Context, ids []int) ([]Course, error)
		QueryCourses(ctx context.Context, filter QueryFilter) ([]Course, error)
		GetSession(ctx context.Context, id int) (Session, error)
		SaveParticipant(ctx context.Context, p Participant) (Participant, error)
		QueryParticipants(ctx context.Context, userID int, courseIDs []int) ([]Participant, error)
		CreateSessionPayment(ctx context.Context, p SessionPayment) (SessionPayment, error)
		QuerySessionPayments(ctx context.Context, filter PaymentFilter) ([]SessionPayment, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, c Course) (Course, error) {
	c.Slug = core.CleanString(c.Slug, true /* lower */)
	c.Title = core.CleanString(c.Title)
	if c.Slug == "" || c.Title == "" {
		return Course{}, core.NewValidationError(errors.New("slug and title are required"))
	}
	if c.Status == "" {
		c.Status = StatusPublished
	}
	sessions := c.Sessions
	c.Sessions = nil

	created, err := svc.repo.CreateCourse(ctx, c)
	if err != nil {
		return Course{}, errors.Wrap(err, "creating course")
	}
	for _, s := range sessions {
		s.CourseID = created.ID
		s, err = svc.repo.CreateSession(ctx, s)
		if err != nil {
			return Course{}, errors.Wrap(err, "creating session")
		}
		created.Sessions = append(created.Sessions, s)
	}
	return created, nil
}

func (svc *Service) Get(ctx context.Context, id int) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

// GetMany returns the courses in the order of `ids`, skipping unknown ones.
func (svc *Service) GetMany(ctx context.Context, ids []int) ([]Course, error) {
	if len(ids) == 0 {
		return []Course{}, nil
	}
	found, err := svc.repo.GetCourses(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting courses")
	}
	byID := make(map[int]Course, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	courses := make([]Course, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			courses = append(courses, c)
		}
	}
	return courses, nil
}

func (svc *Service) GetSession(ctx context.Context, id int) (Session, error) {
	return svc.repo.GetSession(ctx, id)
}

// QueryPublished returns published courses sharing any of `categories`, minus `excludeIDs`.
func (svc *Service) QueryPublished(ctx context.Context, categories []string, excludeIDs []int) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, QueryFilter{Status: StatusPublished, Categories: categories, ExcludeIDs: excludeIDs})
}

func (svc *Service) Participations(ctx context.Context, userID int, courseIDs []int) ([]Participant, error) {
	if userID == 0 || len(courseIDs) == 0 {
		return []Participant{}, nil
	}
	return svc.repo.QueryParticipants(ctx, userID, courseIDs)
}

func (svc *Service) SaveParticipant(ctx context.Context, p Participant) (Participant, error) {
	return svc.repo.SaveParticipant(ctx, p)
}

// VerifiedPayments lists the verified session purchases of the user for `courseIDs` (all courses if empty).
func (svc *Service) VerifiedPayments(ctx context.Context, userID int, courseIDs ...int) ([]SessionPayment, error) {
	if userID == 0 {
		return []SessionPayment{}, nil
	}
	return svc.repo.QuerySessionPayments(ctx, PaymentFilter{UserID: userID, CourseIDs: courseIDs, Mode: ModeVerified})
}

func (svc *Service) HasPaidSession(ctx context.Context, userID, sessionID int) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	payments, err := svc.repo.QuerySessionPayments(ctx, PaymentFilter{
		UserID:     userID,
		SessionIDs: []int{sessionID},
		Mode:       ModeVerified,
	})
	if err != nil {
		return false, errors.Wrap(err, "querying session payments")
	}
	return len(payments) > 0, nil
}

func (svc *Service) RecordPayment(ctx context.Context, p SessionPayment) (SessionPayment, error) {
	if p.Mode == "" {
		p.Mode = ModeVerified
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = core.NowFunc().UTC()
	}
	return svc.repo.CreateSessionPayment(ctx, p)
}
