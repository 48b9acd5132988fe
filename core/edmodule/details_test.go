package edmodule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/plp/edmodule/core/course"
)

var now = time.Date(2021, time.March, 10, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func tp(t time.Time) *time.Time { return &t }

func openSession(id int, startsIn time.Duration, duration, workload int, instructors ...string) course.Session {
	return course.Session{
		ID:                  id,
		DatetimeStarts:      tp(now.Add(startsIn)),
		DatetimeStartEnroll: tp(now.Add(-day)),
		DatetimeEndEnroll:   tp(now.Add(startsIn + 10*day)),
		Duration:            duration,
		Workload:            workload,
		Instructors:         instructors,
		EnrollmentTypes:     []course.EnrollmentType{{Mode: course.ModeVerified, Price: 100, Active: true}},
	}
}

func testDetails() Details {
	return Details{
		Module: Module{ID: 1, CourseIDs: []int{1, 2, 3}},
		Courses: []course.Course{
			{
				ID: 1, Title: "One", Themes: "basics", Duration: 10, Workload: 10,
				Profit: "b\na", Categories: []string{"math"}, Authors: []string{"Ann"}, Partners: []string{"MIT"},
				Instructors: []string{"Zed"},
				Sessions:    []course.Session{openSession(11, 7*day, 4, 5, "Ada", "Bob")},
			},
			{
				ID: 2, Title: "Two", Duration: 6, Workload: 2,
				Profit: "a\nc", Categories: []string{"cs", "math"}, Authors: []string{"Ben", "Ann"},
				Instructors: []string{"Bob"},
			},
			{
				ID: 3, Title: "Project", IsProject: true,
				Categories: []string{"cs"}, Partners: []string{"Ann"},
			},
		},
	}
}

func TestDetails_work(t *testing.T) {
	d := testDetails()

	// 4 weeks from the session of course 1, 6 from course 2, the project is ignored
	assert.Equal(t, 10, d.Duration(now))
	assert.Equal(t, 4*5+6*2, d.WholeWork(now))
	assert.Equal(t, 3, d.Workload(now))
	assert.Equal(t, 3, d.CountCourses())

	d.Courses[1].Duration = 0
	assert.Zero(t, d.Duration(now))
	assert.Zero(t, d.WholeWork(now))
	assert.Zero(t, d.Workload(now))
}

func TestDetails_lists(t *testing.T) {
	d := testDetails()

	assert.Equal(t, []string{"Bob", "Ada"}, d.Instructors(now))
	assert.Equal(t, []string{"math", "cs"}, d.Categories())
	assert.Equal(t, []string{"Ann", "Ben"}, d.Authors())
	assert.Equal(t, []string{"MIT", "Ann"}, d.Partners())
	assert.Equal(t, []string{"Ann", "Ben", "MIT"}, d.AuthorsAndPartners())
	assert.Equal(t, []string{"a", "b", "c"}, d.Profit())
	assert.Equal(t, []ScheduleItem{
		{Course: "One", Themes: "basics"},
		{Course: "Two"},
		{Course: "Project"},
	}, d.Schedule())
}

func TestDetails_sessions(t *testing.T) {
	d := testDetails()

	sessions := d.Sessions(now)
	if assert.Len(t, sessions, 3) {
		assert.Equal(t, 11, sessions[0].ID)
		assert.Nil(t, sessions[1])
		assert.Nil(t, sessions[2])
	}
	assert.Equal(t, now.Add(7*day), *d.StartDate(now))

	c, s := d.ClosestCourseWithSession(now)
	if assert.NotNil(t, c) {
		assert.Equal(t, 1, c.ID)
		assert.Equal(t, 11, s.ID)
	}
	params := d.StatusParams(now, nil)
	assert.Equal(t, course.StatusScheduled, params.Status)
	assert.Equal(t, 7, *params.DaysBeforeStart)

	// course 2 has no open session
	assert.False(t, d.MayEnroll(now))
	d.Courses[1].Sessions = []course.Session{openSession(21, -day, 6, 2)}
	assert.True(t, d.MayEnroll(now))

	empty := Details{}
	assert.Nil(t, empty.StartDate(now))
	c, s = empty.ClosestCourseWithSession(now)
	assert.Nil(t, c)
	assert.Nil(t, s)
	assert.Equal(t, "", empty.StatusParams(now, nil).Status)
	assert.True(t, empty.MayEnroll(now))
}

func TestModule(t *testing.T) {
	m := Module{CourseIDs: []int{3, 4}, Subtitle: "a\n\nb", Requirements: " x "}
	assert.Zero(t, m.Rating())
	m.SumRatings, m.CountRatings = 14, 3
	assert.Equal(t, 4.67, m.Rating())
	assert.Equal(t, []string{"a", "b"}, m.SubtitleItems())
	assert.Equal(t, []string{"x"}, m.RequirementsList())
	assert.True(t, m.HasCourse(4))
	assert.False(t, m.HasCourse(5))
}

func TestUpdateModule_apply(t *testing.T) {
	title, status, discount, subtitle := " New ", StatusPublished, 15, " a\nb "
	m := UpdateModule{Title: &title, Status: &status, Discount: &discount, Subtitle: &subtitle}.apply(Module{
		Title: "Old", Status: StatusHidden, About: "about", CourseIDs: []int{1},
	})
	assert.Equal(t, Module{
		Title: "New", Status: StatusPublished, About: "about", CourseIDs: []int{1}, Discount: 15, Subtitle: "a\nb",
	}, m)
}

func TestFilterEnrollmentTypes(t *testing.T) {
	types := []EnrollmentType{
		{ID: 1, Mode: course.ModeAudit, Active: true},
		{ID: 2, Mode: course.ModeVerified, Active: false},
		{ID: 3, Mode: course.ModeVerified, Active: true, BuyExpiration: tp(now.Add(-day))},
		{ID: 4, Mode: course.ModeVerified, Active: true, BuyStart: tp(now.Add(day))},
		{ID: 5, Mode: course.ModeVerified, Active: true, BuyExpiration: tp(now.Add(-time.Hour))},
		{ID: 6, Mode: course.ModeAudit, Active: true, BuyExpiration: tp(now.Add(-day))},
	}
	ids := func(types []EnrollmentType) []int {
		out := make([]int, 0, len(types))
		for _, et := range types {
			out = append(out, et.ID)
		}
		return out
	}

	tests := []struct {
		name           string
		mode           string
		excludeExpired bool
		active         bool
		want           []int
	}{
		{name: "active", active: true, want: []int{1, 3, 4, 5, 6}},
		{name: "inactive", active: false, want: []int{2}},
		{name: "verified", mode: course.ModeVerified, active: true, want: []int{3, 4, 5}},
		{name: "buyable verified", mode: course.ModeVerified, excludeExpired: true, active: true, want: []int{5}},
		{name: "expiry only applies to verified", excludeExpired: true, active: true, want: []int{1, 5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterEnrollmentTypes(types, tt.mode, tt.excludeExpired, tt.active, now)))
		})
	}
}
