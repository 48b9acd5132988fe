package course_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/testutil"
)

func TestService_Create(t *testing.T) {
	svcs := testutil.NewServices()
	ctx := context.Background()

	_, err := svcs.Courses.Create(ctx, course.Course{Slug: "  ", Title: "Algo"})
	assert.True(t, core.IsValidationError(err), "err = %v", err)

	c, err := svcs.Courses.Create(ctx, course.Course{
		Slug:  " ALGO ",
		Title: " Algorithms ",
		Sessions: []course.Session{
			testutil.OpenSession("s1", time.Now(), 100),
			testutil.StartedSession("s0", time.Now(), 100),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "algo", c.Slug)
	assert.Equal(t, "Algorithms", c.Title)
	assert.Equal(t, course.StatusPublished, c.Status)
	require.Len(t, c.Sessions, 2)
	for _, s := range c.Sessions {
		assert.Equal(t, c.ID, s.CourseID)
		for _, et := range s.EnrollmentTypes {
			assert.Equal(t, s.ID, et.SessionID)
		}
	}

	got, err := svcs.Courses.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = svcs.Courses.Get(ctx, 999)
	assert.Equal(t, course.ErrNotFound, errors.Cause(err))
	_, err = svcs.Courses.GetSession(ctx, 999)
	assert.Equal(t, course.ErrSessionNotFound, errors.Cause(err))
}

func TestService_GetMany(t *testing.T) {
	svcs := testutil.NewServices()
	ctx := context.Background()
	c1 := testutil.CreateCourse(t, svcs.Courses, "c1", "math")
	c2 := testutil.CreateCourse(t, svcs.Courses, "c2", "math")

	courses, err := svcs.Courses.GetMany(ctx, []int{c2.ID, 999, c1.ID})
	require.NoError(t, err)
	if assert.Len(t, courses, 2) {
		assert.Equal(t, c2.ID, courses[0].ID)
		assert.Equal(t, c1.ID, courses[1].ID)
	}

	courses, err = svcs.Courses.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.NotNil(t, courses)
	assert.Empty(t, courses)
}

func TestService_QueryPublished(t *testing.T) {
	svcs := testutil.NewServices()
	ctx := context.Background()
	c1 := testutil.CreateCourse(t, svcs.Courses, "c1", "math")
	c2 := testutil.CreateCourse(t, svcs.Courses, "c2", "math")
	testutil.CreateCourse(t, svcs.Courses, "c3", "art")
	_, err := svcs.Courses.Create(ctx, course.Course{Slug: "c4", Title: "Draft", Status: "draft", Categories: []string{"math"}})
	require.NoError(t, err)

	courses, err := svcs.Courses.QueryPublished(ctx, []string{"math", "physics"}, []int{c1.ID})
	require.NoError(t, err)
	if assert.Len(t, courses, 1) {
		assert.Equal(t, c2.ID, courses[0].ID)
	}
}

func TestService_payments(t *testing.T) {
	svcs := testutil.NewServices()
	ctx := context.Background()
	now := time.Now()
	c := testutil.CreateCourse(t, svcs.Courses, "c1", "math", testutil.OpenSession("s1", now, 100))
	s := c.Sessions[0]

	paid, err := svcs.Courses.HasPaidSession(ctx, 1, s.ID)
	require.NoError(t, err)
	assert.False(t, paid)

	p, err := svcs.Courses.RecordPayment(ctx, course.SessionPayment{UserID: 1, SessionID: s.ID})
	require.NoError(t, err)
	assert.Equal(t, course.ModeVerified, p.Mode)
	assert.Equal(t, c.ID, p.CourseID)
	assert.False(t, p.CreatedAt.IsZero())

	_, err = svcs.Courses.RecordPayment(ctx, course.SessionPayment{UserID: 1, SessionID: s.ID, Mode: course.ModeHonor})
	require.NoError(t, err)

	paid, err = svcs.Courses.HasPaidSession(ctx, 1, s.ID)
	require.NoError(t, err)
	assert.True(t, paid)

	paid, err = svcs.Courses.HasPaidSession(ctx, 0, s.ID)
	require.NoError(t, err)
	assert.False(t, paid)

	payments, err := svcs.Courses.VerifiedPayments(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	payments, err = svcs.Courses.VerifiedPayments(ctx, 1, c.ID+100)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestService_participants(t *testing.T) {
	svcs := testutil.NewServices()
	ctx := context.Background()
	c := testutil.CreateCourse(t, svcs.Courses, "c1", "math", testutil.OpenSession("s1", time.Now(), 100))

	p, err := svcs.Courses.SaveParticipant(ctx, course.Participant{UserID: 1, SessionID: c.Sessions[0].ID})
	require.NoError(t, err)
	assert.Equal(t, c.ID, p.CourseID)

	// saving again updates the same participant
	graduate, err := svcs.Courses.SaveParticipant(ctx, course.Participant{UserID: 1, SessionID: c.Sessions[0].ID, IsGraduate: true})
	require.NoError(t, err)
	assert.Equal(t, p.ID, graduate.ID)

	participants, err := svcs.Courses.Participations(ctx, 1, []int{c.ID})
	require.NoError(t, err)
	if assert.Len(t, participants, 1) {
		assert.True(t, participants[0].IsGraduate)
	}

	participants, err = svcs.Courses.Participations(ctx, 0, []int{c.ID})
	require.NoError(t, err)
	assert.Empty(t, participants)

	_, err = svcs.Courses.SaveParticipant(ctx, course.Participant{UserID: 1, SessionID: 999})
	assert.Equal(t, course.ErrSessionNotFound, errors.Cause(err))
}
