package enrollment_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/core/edmodule"
	"github.com/plp/edmodule/core/enrollment"
	"github.com/plp/edmodule/core/promo"
	"github.com/plp/edmodule/core/user"
	"github.com/plp/edmodule/testutil"
)

type event struct {
	ev     enrollment.Event
	e      enrollment.Enrollment
	reason *enrollment.Reason
}

type fixture struct {
	*testutil.Services
	now      time.Time
	usr      user.User
	c1, c2   course.Course
	module   edmodule.Module
	verified edmodule.EnrollmentType

	mu     sync.Mutex
	events []event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{Services: testutil.NewServices(), now: time.Now()}
	f.usr = testutil.CreateUser(t, f.Users, "User", "awe", "awe@test.cd", "", false)
	f.c1 = testutil.CreateCourse(t, f.Courses, "c1", "math", testutil.OpenSession("s1", f.now, 1000))
	f.c2 = testutil.CreateCourse(t, f.Courses, "c2", "math", testutil.StartedSession("s2", f.now, 3000))
	f.module = testutil.CreateModule(t, f.Modules, "algebra", edmodule.StatusPublished, 10, f.c1.ID, f.c2.ID)
	f.verified = testutil.CreateModuleType(t, f.Modules, f.module.ID, course.ModeVerified, 3600)
	f.Enrollments.OnChange(func(ev enrollment.Event, e enrollment.Enrollment, r *enrollment.Reason) {
		f.mu.Lock()
		f.events = append(f.events, event{ev, e, r})
		f.mu.Unlock()
	})
	return f
}

func (f *fixture) lastEvent(t *testing.T) event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.events)
	return f.events[len(f.events)-1]
}

func TestService_Enroll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.Enrollments.Get(ctx, f.usr.ID, f.module.ID)
	assert.Equal(t, enrollment.ErrNotFound, errors.Cause(err))

	e, err := f.Enrollments.Enroll(ctx, f.usr.ID, f.module)
	require.NoError(t, err)
	assert.True(t, e.IsActive)
	assert.False(t, e.IsPaid)
	assert.Equal(t, enrollment.EventEnrolled, f.lastEvent(t).ev)

	// enrolling twice is a no-op
	again, err := f.Enrollments.Enroll(ctx, f.usr.ID, f.module)
	require.NoError(t, err)
	assert.Equal(t, e.ID, again.ID)
	assert.Len(t, f.events, 1)

	e, err = f.Enrollments.Unenroll(ctx, f.usr.ID, f.module.ID)
	require.NoError(t, err)
	assert.False(t, e.IsActive)
	assert.Equal(t, enrollment.EventUnenrolled, f.lastEvent(t).ev)

	_, err = f.Enrollments.Unenroll(ctx, f.usr.ID, f.module.ID)
	require.NoError(t, err)
	assert.Len(t, f.events, 2)

	// the enrollment is reactivated
	reactivated, err := f.Enrollments.Enroll(ctx, f.usr.ID, f.module)
	require.NoError(t, err)
	assert.Equal(t, e.ID, reactivated.ID)
	assert.True(t, reactivated.IsActive)

	_, err = f.Enrollments.Unenroll(ctx, f.usr.ID+100, f.module.ID)
	assert.Equal(t, enrollment.ErrNotFound, errors.Cause(err))
}

func TestService_Enroll_closed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hidden := testutil.CreateModule(t, f.Modules, "hidden", edmodule.StatusHidden, 0, f.c1.ID)
	_, err := f.Enrollments.Enroll(ctx, f.usr.ID, hidden)
	assert.Equal(t, edmodule.ErrNotFound, err)

	s := testutil.OpenSession("old", f.now, 100)
	s.DatetimeEndEnroll = &f.now
	c := testutil.CreateCourse(t, f.Courses, "c3", "math", s)
	closed := testutil.CreateModule(t, f.Modules, "closed", edmodule.StatusDirect, 0, f.c1.ID, c.ID)
	_, err = f.Enrollments.Enroll(ctx, f.usr.ID, closed)
	assert.Equal(t, enrollment.ErrEnrollmentClosed, err)
	assert.Empty(t, f.events)
}

func TestService_RecordPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	percent := decimal.NewFromInt(10)
	_, err := f.Promos.Create(ctx, promo.NewPromoCode{
		Code: "ONCE", ProductType: promo.ProductEdmodule, ProductID: f.module.ID,
		ActiveTill: f.now.AddDate(0, 0, 1), MaxUsage: 1, DiscountPercent: &percent,
	})
	require.NoError(t, err)
	other := testutil.CreateModule(t, f.Modules, "other", edmodule.StatusPublished, 0, f.c1.ID)
	otherType := testutil.CreateModuleType(t, f.Modules, other.ID, course.ModeVerified, 100)

	tests := []struct {
		name    string
		np      enrollment.NewPayment
		wantErr string
	}{
		{name: "no user", np: enrollment.NewPayment{EnrollmentTypeID: f.verified.ID}, wantErr: "user_id"},
		{name: "invalid payment type", np: enrollment.NewPayment{UserID: f.usr.ID, EnrollmentTypeID: f.verified.ID, PaymentType: "cash"}, wantErr: "payment_type"},
		{name: "foreign type", np: enrollment.NewPayment{UserID: f.usr.ID, EnrollmentTypeID: otherType.ID}, wantErr: enrollment.ErrWrongModuleType.Error()},
		{name: "unknown promo code", np: enrollment.NewPayment{UserID: f.usr.ID, EnrollmentTypeID: f.verified.ID, PromoCode: "NOPE"}, wantErr: "promo_code: promo code not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.Enrollments.RecordPayment(ctx, f.module.ID, tt.np)
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
	assert.Empty(t, f.events)

	e, r, err := f.Enrollments.RecordPayment(ctx, f.module.ID, enrollment.NewPayment{
		UserID:           f.usr.ID,
		EnrollmentTypeID: f.verified.ID,
		PaymentType:      " Manual ",
		PromoCode:        "ONCE",
	})
	require.NoError(t, err)
	assert.True(t, e.IsActive)
	assert.True(t, e.IsPaid)
	assert.True(t, r.FullPaid)
	assert.Equal(t, enrollment.PaymentManual, r.PaymentType)
	assert.Equal(t, f.verified.ID, r.EnrollmentTypeID)
	assert.Len(t, r.PaymentOrderID, 36) // generated uuid
	last := f.lastEvent(t)
	assert.Equal(t, enrollment.EventPayed, last.ev)
	if assert.NotNil(t, last.reason) {
		assert.Equal(t, r.ID, last.reason.ID)
	}

	pc, err := f.Promos.Get(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, pc.Used)

	_, _, err = f.Enrollments.RecordPayment(ctx, f.module.ID, enrollment.NewPayment{
		UserID: f.usr.ID, EnrollmentTypeID: f.verified.ID, PromoCode: "ONCE",
	})
	assert.EqualError(t, err, "promo_code: promo code has already been used")

	// a partial payment enrolls without paying the module
	partial := false
	usr2 := testutil.CreateUser(t, f.Users, "Other", "other", "other@test.cd", "", false)
	e, r, err = f.Enrollments.RecordPayment(ctx, f.module.ID, enrollment.NewPayment{
		UserID: usr2.ID, EnrollmentTypeID: f.verified.ID, FullPaid: &partial, PaymentOrderID: "order-1",
	})
	require.NoError(t, err)
	assert.True(t, e.IsActive)
	assert.False(t, e.IsPaid)
	assert.Equal(t, "order-1", r.PaymentOrderID)
}

func TestService_ReasonForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.Enrollments.ReasonForUser(ctx, 0, f.module.ID)
	require.NoError(t, err)
	assert.Nil(t, r)
	r, err = f.Enrollments.ReasonForUser(ctx, f.usr.ID, f.module.ID)
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = f.Enrollments.Enroll(ctx, f.usr.ID, f.module)
	require.NoError(t, err)
	r, err = f.Enrollments.ReasonForUser(ctx, f.usr.ID, f.module.ID)
	require.NoError(t, err)
	assert.Nil(t, r)

	partial := false
	_, _, err = f.Enrollments.RecordPayment(ctx, f.module.ID, enrollment.NewPayment{UserID: f.usr.ID, EnrollmentTypeID: f.verified.ID, FullPaid: &partial})
	require.NoError(t, err)
	_, full, err := f.Enrollments.RecordPayment(ctx, f.module.ID, enrollment.NewPayment{UserID: f.usr.ID, EnrollmentTypeID: f.verified.ID})
	require.NoError(t, err)

	r, err = f.Enrollments.ReasonForUser(ctx, f.usr.ID, f.module.ID)
	require.NoError(t, err)
	if assert.NotNil(t, r) {
		assert.Equal(t, full.ID, r.ID)
	}
}

func TestService_MayEnrollOnProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	project, err := f.Courses.Create(ctx, course.Course{Slug: "project", Title: "Project", IsProject: true})
	require.NoError(t, err)
	status := edmodule.StatusPublished
	m, err := f.Modules.Update(ctx, f.module.Code, edmodule.UpdateModule{Status: &status, CourseIDs: []int{f.c1.ID, f.c2.ID, project.ID}})
	require.NoError(t, err)
	d, err := f.Modules.Details(ctx, m)
	require.NoError(t, err)

	check := func(want bool) {
		t.Helper()
		ok, err := f.Enrollments.MayEnrollOnProject(ctx, d, f.usr.ID)
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}

	check(false)
	_, err = f.Enrollments.Enroll(ctx, f.usr.ID, m)
	require.NoError(t, err)
	check(false)

	for _, c := range []course.Course{f.c1, f.c2} {
		_, err = f.Courses.SaveParticipant(ctx, course.Participant{UserID: f.usr.ID, SessionID: c.Sessions[0].ID, IsGraduate: true})
		require.NoError(t, err)
	}
	check(true)

	_, err = f.Enrollments.Unenroll(ctx, f.usr.ID, m.ID)
	require.NoError(t, err)
	check(false)

	ok, err := f.Enrollments.MayEnrollOnProject(ctx, d, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_CourseAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s1 := f.c1.Sessions[0]

	access := func() enrollment.Access {
		t.Helper()
		a, err := f.Enrollments.CourseAccess(ctx, f.usr.ID, s1)
		require.NoError(t, err)
		return a
	}

	assert.Equal(t, enrollment.Access{}, access())

	_, err := f.Enrollments.Enroll(ctx, f.usr.ID, f.module)
	require.NoError(t, err)
	assert.Equal(t, enrollment.Access{HasModule: true}, access())

	_, _, err = f.Enrollments.RecordPayment(ctx, f.module.ID, enrollment.NewPayment{UserID: f.usr.ID, EnrollmentTypeID: f.verified.ID})
	require.NoError(t, err)
	assert.Equal(t, enrollment.Access{HasModule: true, HasPaid: true}, access())

	// a full module payment survives unenrolling
	_, err = f.Enrollments.Unenroll(ctx, f.usr.ID, f.module.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.Access{HasPaid: true}, access())

	// buying the session itself
	usr2 := testutil.CreateUser(t, f.Users, "Other", "other", "other@test.cd", "", false)
	_, err = f.Courses.RecordPayment(ctx, course.SessionPayment{UserID: usr2.ID, SessionID: s1.ID})
	require.NoError(t, err)
	paid, err := f.Enrollments.HasPaid(ctx, usr2.ID, s1)
	require.NoError(t, err)
	assert.True(t, paid)

	a, err := f.Enrollments.CourseAccess(ctx, 0, s1)
	require.NoError(t, err)
	assert.Equal(t, enrollment.Access{}, a)
}

func TestService_subscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unsubscribed, err := f.Enrollments.IsUnsubscribed(ctx, f.usr.ID, f.module.ID)
	require.NoError(t, err)
	assert.False(t, unsubscribed)

	require.NoError(t, f.Enrollments.Unsubscribe(ctx, f.usr.ID, f.module.ID))
	require.NoError(t, f.Enrollments.Unsubscribe(ctx, f.usr.ID, f.module.ID))
	unsubscribed, err = f.Enrollments.IsUnsubscribed(ctx, f.usr.ID, f.module.ID)
	require.NoError(t, err)
	assert.True(t, unsubscribed)

	require.NoError(t, f.Enrollments.Resubscribe(ctx, f.usr.ID, f.module.ID))
	unsubscribed, err = f.Enrollments.IsUnsubscribed(ctx, f.usr.ID, f.module.ID)
	require.NoError(t, err)
	assert.False(t, unsubscribed)
}

func TestService_progress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.Enrollments.Enroll(ctx, f.usr.ID, f.module)
	require.NoError(t, err)

	_, err = f.Enrollments.Progress(ctx, e.ID)
	assert.Equal(t, enrollment.ErrProgressNotFound, errors.Cause(err))

	saved, err := f.Enrollments.SaveProgress(ctx, enrollment.Progress{
		EnrollmentID: e.ID,
		Progress:     map[string]json.RawMessage{"course-v1:plp+c2+s2": json.RawMessage(`{"grade":0.5}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, saved.UpdatedAt.Location())

	p, err := f.Enrollments.Progress(ctx, e.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"grade":0.5}`, string(p.Progress["course-v1:plp+c2+s2"]))

	graduated, err := f.Enrollments.Graduate(ctx, f.usr.ID, f.module.ID)
	require.NoError(t, err)
	assert.True(t, graduated.IsGraduated)

	active, err := f.Enrollments.ActiveEnrollments(ctx, f.module.ID+100)
	require.NoError(t, err)
	assert.Empty(t, active)
	active, err = f.Enrollments.ActiveEnrollments(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

type mailRecorder struct {
	mu       sync.Mutex
	messages []core.EmailMessage
}

func (r *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range messages {
		r.messages = append(r.messages, *m)
	}
}

func TestMailNotifier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mails := new(mailRecorder)
	logger := new(testutil.Logger)
	notifier := enrollment.NewMailNotifier(f.Users, f.Modules, f.Enrollments, mails, logger)
	f.Enrollments.OnChange(notifier.Notify)

	_, err := f.Enrollments.Enroll(ctx, f.usr.ID, f.module)
	require.NoError(t, err)
	require.Len(t, mails.messages, 1)
	msg := mails.messages[0]
	assert.Equal(t, "You are enrolled on Module algebra", msg.Subject)
	assert.Equal(t, "edmodule_enrolled", msg.TemplateName)
	assert.Equal(t, "awe@test.cd", msg.To[0].Address)

	// unsubscribed users still get payment receipts
	require.NoError(t, f.Enrollments.Unsubscribe(ctx, f.usr.ID, f.module.ID))
	_, err = f.Enrollments.Unenroll(ctx, f.usr.ID, f.module.ID)
	require.NoError(t, err)
	assert.Len(t, mails.messages, 1)

	_, reason, err := f.Enrollments.RecordPayment(ctx, f.module.ID, enrollment.NewPayment{UserID: f.usr.ID, EnrollmentTypeID: f.verified.ID})
	require.NoError(t, err)
	require.Len(t, mails.messages, 2)
	assert.Equal(t, "Payment received for Module algebra", mails.messages[1].Subject)
	assert.Equal(t, "edmodule_payed", mails.messages[1].TemplateName)

	// the payment receipt is attached
	require.Len(t, mails.messages[1].Attachments, 1)
	at := mails.messages[1].Attachments[0]
	assert.Equal(t, "receipt-"+reason.PaymentOrderID+".txt", at.Filename)
	assert.Equal(t, "text/plain; charset=utf-8", at.ContentType)
	content, err := base64.StdEncoding.DecodeString(at.Content.String())
	require.NoError(t, err)
	assert.Contains(t, string(content), "Module: Module algebra\n")
	assert.Contains(t, string(content), "Order: "+reason.PaymentOrderID+"\n")
	assert.Contains(t, string(content), "Payment: full\n")

	// unknown users are logged
	notifier.Notify(enrollment.EventPayed, enrollment.Enrollment{UserID: 999, ModuleID: f.module.ID}, nil)
	assert.Len(t, mails.messages, 2)
	assert.Len(t, logger.Entries("error"), 1)
}
