package course

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/locales/en"
)

var locale = en.New()

// ChooseClosestSession picks, among sessions still open for enrollment and with a known start,
// the one whose enrollment closes first.
func ChooseClosestSession(c Course, now time.Time) *Session {
	candidates := make([]Session, 0, len(c.Sessions))
	for _, s := range c.Sessions {
		if s.DatetimeEndEnroll != nil && s.DatetimeEndEnroll.After(now) && s.DatetimeStarts != nil {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DatetimeEndEnroll.Before(*candidates[j].DatetimeEndEnroll)
	})
	return &candidates[0]
}

// StatusParams describes a session's state the way the catalog displays it.
type StatusParams struct {
	Status          string `json:"status"`
	DaysBeforeStart *int   `json:"days_before_start,omitempty"`
	Date            string `json:"date,omitempty"`
	DateWords       string `json:"date_words,omitempty"`
}

// GetStatusParams builds the status of `s` at `now`; dates are rendered in `loc`.
func GetStatusParams(s *Session, now time.Time, loc *time.Location) StatusParams {
	if s == nil {
		return StatusParams{Status: ""}
	}
	if loc == nil {
		loc = time.UTC
	}

	params := StatusParams{Status: s.Status(now)}
	switch params.Status {
	case StatusScheduled:
		starts := s.DatetimeStarts.In(loc)
		days := daysBetween(now.In(loc), starts)
		params.DaysBeforeStart = &days
		params.Date = starts.Format("02.01.2006")
		params.DateWords = fmt.Sprintf("starts %d %s", starts.Day(), locale.MonthWide(starts.Month()))
	case StatusStarted:
		if s.DatetimeEndEnroll != nil {
			ends := s.DatetimeEndEnroll.In(loc)
			params.Date = ends.Format("02.01.2006")
			params.DateWords = fmt.Sprintf("enrollment until %d %s", ends.Day(), locale.MonthWide(ends.Month()))
		}
	}
	return params
}

// daysBetween counts calendar days from `from` to `to`, both already in the same location.
func daysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	f := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
