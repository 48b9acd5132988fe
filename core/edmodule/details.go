package edmodule

import (
	"math"
	"sort"
	"time"

	"github.com/plp/edmodule/core/course"
)

// Details is a module along with its courses, in module order.
type Details struct {
	Module
	Courses []course.Course `json:"-"`
}

// CourseSession pairs a course with its closest session (nil when none is open).
type CourseSession struct {
	Course  course.Course
	Session *course.Session
}

type ScheduleItem struct {
	Course string `json:"course"`
	Themes string `json:"themes"`
}

func (d Details) nonProjectCourses() []course.Course {
	courses := make([]course.Course, 0, len(d.Courses))
	for _, c := range d.Courses {
		if !c.IsProject {
			courses = append(courses, c)
		}
	}
	return courses
}

func (d Details) CountCourses() int {
	return len(d.Courses)
}

func (d Details) CoursesWithClosestSessions(now time.Time) []CourseSession {
	courses := d.nonProjectCourses()
	pairs := make([]CourseSession, 0, len(courses))
	for _, c := range courses {
		pairs = append(pairs, CourseSession{Course: c, Session: course.ChooseClosestSession(c, now)})
	}
	return pairs
}

// Duration sums the weeks of every non-project course, using the closest session when there is one.
// Any unknown duration makes the whole duration unknown (0).
func (d Details) Duration(now time.Time) int {
	var total int
	for _, cs := range d.CoursesWithClosestSessions(now) {
		dur := cs.Course.Duration
		if cs.Session != nil {
			dur = cs.Session.Duration
		}
		if dur == 0 {
			return 0
		}
		total += dur
	}
	return total
}

// WholeWork sums duration*workload (hours) over non-project courses, 0 if any is unknown.
func (d Details) WholeWork(now time.Time) int {
	var total int
	for _, cs := range d.CoursesWithClosestSessions(now) {
		work := cs.Course.Duration * cs.Course.Workload
		if cs.Session != nil {
			work = cs.Session.Duration * cs.Session.Workload
		}
		if work == 0 {
			return 0
		}
		total += work
	}
	return total
}

// Workload is the average weekly hours over the module.
func (d Details) Workload(now time.Time) int {
	dur := d.Duration(now)
	if dur == 0 {
		return 0
	}
	return int(math.Round(float64(d.WholeWork(now)) / float64(dur)))
}

func (d Details) Instructors(now time.Time) []string {
	lists := make([][]string, 0, len(d.Courses))
	for _, c := range d.Courses {
		if s := c.NextSession(now); s != nil {
			lists = append(lists, s.Instructors)
		} else {
			lists = append(lists, c.Instructors)
		}
	}
	return byFrequency(lists)
}

func (d Details) Categories() []string {
	lists := make([][]string, 0, len(d.Courses))
	for _, c := range d.Courses {
		lists = append(lists, c.Categories)
	}
	return byFrequency(lists)
}

func (d Details) Authors() []string {
	lists := make([][]string, 0, len(d.Courses))
	for _, c := range d.Courses {
		lists = append(lists, c.Authors)
	}
	return byFrequency(lists)
}

func (d Details) Partners() []string {
	lists := make([][]string, 0, len(d.Courses))
	for _, c := range d.Courses {
		lists = append(lists, c.Partners)
	}
	return byFrequency(lists)
}

func (d Details) AuthorsAndPartners() []string {
	seen := make(map[string]struct{})
	merged := make([]string, 0)
	for _, v := range append(d.Authors(), d.Partners()...) {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			merged = append(merged, v)
		}
	}
	return merged
}

func (d Details) Schedule() []ScheduleItem {
	items := make([]ScheduleItem, 0, len(d.Courses))
	for _, c := range d.Courses {
		items = append(items, ScheduleItem{Course: c.Title, Themes: c.Themes})
	}
	return items
}

// Profit merges the profit lines of every course, without duplicates.
func (d Details) Profit() []string {
	seen := make(map[string]struct{})
	lines := make([]string, 0)
	for _, c := range d.Courses {
		for _, line := range c.ProfitLines() {
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			lines = append(lines, line)
		}
	}
	sort.Strings(lines)
	return lines
}

// Sessions lists each course's next session, nil included.
func (d Details) Sessions(now time.Time) []*course.Session {
	sessions := make([]*course.Session, 0, len(d.Courses))
	for _, c := range d.Courses {
		sessions = append(sessions, c.NextSession(now))
	}
	return sessions
}

// StartDate is the start of the first course's next session.
func (d Details) StartDate(now time.Time) *time.Time {
	if len(d.Courses) == 0 {
		return nil
	}
	if s := d.Courses[0].NextSession(now); s != nil {
		return s.DatetimeStarts
	}
	return nil
}

// ClosestCourseWithSession is the first non-project course whose next session can be bought as verified.
func (d Details) ClosestCourseWithSession(now time.Time) (*course.Course, *course.Session) {
	for _, c := range d.nonProjectCourses() {
		s := c.NextSession(now)
		if s != nil && s.VerifiedEnrollmentType(now) != nil {
			c := c
			return &c, s
		}
	}
	return nil, nil
}

func (d Details) StatusParams(now time.Time, loc *time.Location) course.StatusParams {
	_, s := d.ClosestCourseWithSession(now)
	return course.GetStatusParams(s, now, loc)
}

// MayEnroll tells whether every non-project course has an open session accepting enrollments.
func (d Details) MayEnroll(now time.Time) bool {
	for _, cs := range d.CoursesWithClosestSessions(now) {
		if cs.Session == nil || !cs.Session.AllowEnrollments(now) {
			return false
		}
	}
	return true
}

// byFrequency flattens lists, ordering values by how many lists contain them (first seen wins ties).
func byFrequency(lists [][]string) []string {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, list := range lists {
		for _, v := range list {
			if _, ok := counts[v]; !ok {
				order = append(order, v)
			}
			counts[v]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	return order
}
