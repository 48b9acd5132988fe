package echoapi_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/plp/edmodule/apps/api/echo"
	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/core/edmodule"
	"github.com/plp/edmodule/core/enrollment"
	"github.com/plp/edmodule/core/progress"
	"github.com/plp/edmodule/core/promo"
	"github.com/plp/edmodule/testutil"
)

func (f *moduleFixture) enroll(t *testing.T) enrollment.Enrollment {
	t.Helper()
	e, err := f.svcs.Enrollments.Enroll(context.Background(), f.student.ID, f.module)
	require.NoError(t, err)
	return e
}

func (f *moduleFixture) getEnrollment(t *testing.T) EnrollmentResponse {
	t.Helper()
	rec := f.do(httpTest{method: http.MethodGet, path: f.path("algebra", "/enrollment"), token: f.token(t, f.student)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res EnrollmentResponse
	unmarshal(t, rec, &res)
	return res
}

func Test_moduleApi_enroll(t *testing.T) {
	f := newModuleFixture(t)
	token := f.token(t, f.student)

	rec := f.do(httpTest{method: http.MethodPost, path: f.path("algebra", "/enroll")})
	checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errNotAuthenticated)}, rec)

	rec = f.do(httpTest{method: http.MethodGet, path: f.path("algebra", "/enrollment"), token: token})
	checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "enrollment not found"})}, rec)

	rec = f.do(httpTest{method: http.MethodPost, path: f.path("secret", "/enroll"), token: token})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httpTest{method: http.MethodPost, path: f.path("algebra", "/enroll"), token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var e enrollment.Enrollment
	unmarshal(t, rec, &e)
	assert.True(t, e.IsActive)
	assert.False(t, e.IsPaid)
	assert.Equal(t, f.student.ID, e.UserID)

	res := f.getEnrollment(t)
	assert.Equal(t, e.ID, res.Enrollment.ID)
	assert.Nil(t, res.Reason)
	assert.Nil(t, res.Progress)
	assert.False(t, res.Unsubscribed)

	rec = f.do(httpTest{method: http.MethodDelete, path: f.path("algebra", "/enroll"), token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshal(t, rec, &e)
	assert.False(t, e.IsActive)
}

func Test_moduleApi_enrollClosed(t *testing.T) {
	f := newModuleFixture(t)

	// enrollment on the only session closed a month ago
	past := testutil.OpenSession("old", f.now.Add(-60*24*time.Hour), 500)
	c := testutil.CreateCourse(t, f.svcs.Courses, "c3", "art", past)
	testutil.CreateModule(t, f.svcs.Modules, "closed", edmodule.StatusPublished, 0, c.ID)

	rec := f.do(httpTest{method: http.MethodPost, path: f.path("closed", "/enroll"), token: f.token(t, f.student)})
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusConflict,
		wantData: marshalObj(t, httpErr{Error: "enrollment on this module is closed"}),
	}, rec)
}

func Test_moduleApi_recordPayment(t *testing.T) {
	f := newModuleFixture(t)
	ctx := context.Background()
	staffToken := f.token(t, f.staff)

	code, err := f.svcs.Promos.Create(ctx, promo.NewPromoCode{
		Code:            "ALG10",
		ProductType:     promo.ProductEdmodule,
		ProductID:       f.module.ID,
		ActiveTill:      f.now.Add(10 * 24 * time.Hour),
		MaxUsage:        1,
		DiscountPercent: decimalPtr(10),
	})
	require.NoError(t, err)

	payment := func(typeID int, promoCode string) []byte {
		return marshalObj(t, enrollment.NewPayment{
			UserID:           f.student.ID,
			EnrollmentTypeID: typeID,
			PaymentType:      enrollment.PaymentYamoney,
			PromoCode:        promoCode,
		})
	}

	tests := []httpTest{
		{
			name:     "non staff",
			body:     payment(f.verified.ID, ""),
			token:    f.token(t, f.student),
			wantCode: http.StatusForbidden,
			wantData: marshalObj(t, errForbidden),
		},
		{
			name:     "enrollment type of another module",
			body:     payment(f.verified.ID+1000, ""),
			token:    staffToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"enrollment_type_id": "enrollment type does not belong to this module"}`),
		},
		{
			name:     "unknown promo code",
			body:     payment(f.verified.ID, "NOPE"),
			token:    staffToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"promo_code": "promo code not found"}`),
		},
		{
			name:     "with promo code",
			body:     payment(f.verified.ID, code.Code),
			token:    staffToken,
			wantCode: http.StatusCreated,
		},
		{
			name:     "promo code used up",
			body:     payment(f.verified.ID, code.Code),
			token:    staffToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"promo_code": "promo code has already been used"}`),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.method, tc.path = http.MethodPost, f.path("algebra", "/payments")
			rec := f.do(tc)
			checkCodeAndData(t, tc, rec)

			if tc.wantCode == http.StatusCreated {
				var res EnrollmentResponse
				unmarshal(t, rec, &res)
				assert.True(t, res.Enrollment.IsActive)
				assert.True(t, res.Enrollment.IsPaid)
				if assert.NotNil(t, res.Reason) {
					assert.True(t, res.Reason.FullPaid)
					assert.Equal(t, code.Code, res.Reason.PromoCode)
					assert.NotEmpty(t, res.Reason.PaymentOrderID)
				}
			}
		})
	}

	pc, err := f.svcs.Promos.Get(ctx, code.Code)
	require.NoError(t, err)
	assert.Equal(t, 1, pc.Used)

	res := f.getEnrollment(t)
	if assert.NotNil(t, res.Reason) {
		assert.Equal(t, f.verified.ID, res.Reason.EnrollmentTypeID)
	}
}

func Test_moduleApi_syncProgress(t *testing.T) {
	f := newModuleFixture(t)
	token := f.token(t, f.student)
	path := f.path("algebra", "/progress")

	rec := f.do(httpTest{method: http.MethodPost, path: path, token: token})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.enroll(t)
	c2Key := "course-v1:plp+c2+s2"
	f.edx.data = map[string]map[string]interface{}{c2Key: {"grade": 0.5}}

	rec = f.do(httpTest{method: http.MethodPost, path: path, token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res ProgressResponse
	unmarshal(t, rec, &res)
	assert.True(t, res.Updated)
	if assert.NotNil(t, res.Progress) {
		assert.Contains(t, res.Progress.Progress, c2Key)
	}
	// only the started session is asked for
	require.Len(t, f.edx.calls, 1)
	assert.Equal(t, []string{c2Key}, f.edx.calls[0])

	t.Run("learning platform unavailable", func(t *testing.T) {
		f.edx.err = &progress.RemoteError{Kind: progress.ErrUnavailable, Path: "/api/progress", StatusCode: 503}
		defer func() { f.edx.err = nil }()

		rec := f.do(httpTest{method: http.MethodPost, path: path, token: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res ProgressResponse
		unmarshal(t, rec, &res)
		assert.False(t, res.Updated)
		// previously synced progress is kept
		if assert.NotNil(t, res.Progress) {
			assert.Contains(t, res.Progress.Progress, c2Key)
		}
		assert.NotEmpty(t, f.logger.Entries("warn"))
	})

	t.Run("client failure", func(t *testing.T) {
		f.edx.err = fmt.Errorf("boom")
		defer func() { f.edx.err = nil }()

		rec := f.do(httpTest{method: http.MethodPost, path: path, token: token})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotEmpty(t, f.logger.Entries("error"))
	})

	t.Run("enrollment progress", func(t *testing.T) {
		res := f.getEnrollment(t)
		if assert.NotNil(t, res.Progress) {
			assert.Contains(t, res.Progress.Progress, c2Key)
		}
	})
}

func Test_moduleApi_projectAccess(t *testing.T) {
	f := newModuleFixture(t)
	ctx := context.Background()
	token := f.token(t, f.student)
	path := f.path("algebra", "/project-access")

	mayEnroll := func() bool {
		rec := f.do(httpTest{method: http.MethodGet, path: path, token: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res ProjectAccessResponse
		unmarshal(t, rec, &res)
		return res.MayEnroll
	}

	assert.False(t, mayEnroll(), "not enrolled")

	f.enroll(t)
	_, err := f.svcs.Courses.SaveParticipant(ctx, course.Participant{UserID: f.student.ID, SessionID: f.c1.Sessions[0].ID, IsGraduate: true})
	require.NoError(t, err)
	assert.False(t, mayEnroll(), "c2 not graduated")

	_, err = f.svcs.Courses.SaveParticipant(ctx, course.Participant{UserID: f.student.ID, SessionID: f.c2.Sessions[0].ID, IsGraduate: true})
	require.NoError(t, err)
	assert.True(t, mayEnroll())
}

func Test_moduleApi_unsubscribe(t *testing.T) {
	f := newModuleFixture(t)
	token := f.token(t, f.student)
	f.enroll(t)

	rec := f.do(httpTest{method: http.MethodPost, path: f.path("algebra", "/unsubscribe"), token: token})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, f.getEnrollment(t).Unsubscribed)

	rec = f.do(httpTest{method: http.MethodDelete, path: f.path("algebra", "/unsubscribe"), token: token})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, f.getEnrollment(t).Unsubscribed)
}

func Test_courseApi_access(t *testing.T) {
	f := newModuleFixture(t)
	token := f.token(t, f.student)
	s1 := f.c1.Sessions[0]
	path := fmt.Sprintf("/v1/courses/%d/access?session_id=%d", f.c1.ID, s1.ID)

	access := func() enrollment.Access {
		rec := f.do(httpTest{method: http.MethodGet, path: path, token: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res enrollment.Access
		unmarshal(t, rec, &res)
		return res
	}

	tests := []httpTest{
		{name: "anonymous", path: path, wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name:     "missing session",
			path:     fmt.Sprintf("/v1/courses/%d/access", f.c1.ID),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"session_id": "must be a positive integer"}`),
		},
		{
			name:     "session of another course",
			path:     fmt.Sprintf("/v1/courses/%d/access?session_id=%d", f.c1.ID, f.c2.Sessions[0].ID),
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "course session not found"}),
		},
		{
			name:     "unknown course",
			path:     fmt.Sprintf("/v1/courses/999/access?session_id=%d", s1.ID),
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "course not found"}),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.method = http.MethodGet
			checkCodeAndData(t, tc, f.do(tc))
		})
	}

	assert.Equal(t, enrollment.Access{}, access())

	f.enroll(t)
	assert.Equal(t, enrollment.Access{HasModule: true}, access())

	_, _, err := f.svcs.Enrollments.RecordPayment(context.Background(), f.module.ID, enrollment.NewPayment{
		UserID:           f.student.ID,
		EnrollmentTypeID: f.verified.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, enrollment.Access{HasModule: true, HasPaid: true}, access())
}

func decimalPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}
