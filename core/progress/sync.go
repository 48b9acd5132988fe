package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/core/edmodule"
	"github.com/plp/edmodule/core/enrollment"
)

const updatedAtLayout = "15:04:05 2006-01-02"

// Sync outcomes.
const (
	OutcomeUpdated     = "updated"
	OutcomeSkipped     = "skipped"
	OutcomeRemoteError = "remote_error"
	OutcomeFailed      = "failed"
)

type (
	// Client fetches progress from the learning platform, keyed by course id.
	Client interface {
		GetCoursesProgress(ctx context.Context, username string, courseIDs []string) (map[string]map[string]interface{}, error)
	}

	Summary struct {
		Updated int `json:"updated"`
		Skipped int `json:"skipped"`
		Remote  int `json:"remote_errors"`
		Failed  int `json:"failed"`
	}

	Syncer struct {
		client      Client
		enrollments *enrollment.Service
		modules     *edmodule.Service
		users       enrollment.UserGetter
		logger      core.Logger
		concurrency int

		observeMu sync.RWMutex
		observers []func(outcome string)
	}
)

func NewSyncer(
	client Client,
	enrollments *enrollment.Service,
	modules *edmodule.Service,
	users enrollment.UserGetter,
	logger core.Logger,
	concurrency int,
) *Syncer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Syncer{
		client:      client,
		enrollments: enrollments,
		modules:     modules,
		users:       users,
		logger:      logger,
		concurrency: concurrency,
	}
}

// OnOutcome registers a hook called with the outcome of every enrollment sync.
func (s *Syncer) OnOutcome(fn func(outcome string)) {
	s.observeMu.Lock()
	s.observers = append(s.observers, fn)
	s.observeMu.Unlock()
}

func (s *Syncer) observe(outcome string) {
	s.observeMu.RLock()
	defer s.observeMu.RUnlock()
	for _, fn := range s.observers {
		fn(outcome)
	}
}

// StartedCourseIDs lists the learning platform ids of the started sessions of the courses.
func StartedCourseIDs(courses []course.Course, now time.Time) []string {
	ids := make([]string, 0)
	for _, c := range courses {
		for _, sess := range c.Sessions {
			if sess.Status(now) == course.StatusStarted {
				ids = append(ids, c.AbsoluteSlug(sess))
			}
		}
	}
	return ids
}

// Merge stamps every fetched course entry with `now` and merges them into the stored progress.
// Top-level keys of `fetched` replace the stored ones.
func Merge(stored map[string]json.RawMessage, fetched map[string]map[string]interface{}, now time.Time) (map[string]json.RawMessage, error) {
	merged := make(map[string]json.RawMessage, len(stored)+len(fetched))
	for k, v := range stored {
		merged[k] = v
	}
	stamp := now.UTC().Format(updatedAtLayout)
	for k, v := range fetched {
		if v == nil {
			v = make(map[string]interface{})
		}
		v["updated_at"] = stamp
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding progress of %s", k)
		}
		merged[k] = raw
	}
	return merged, nil
}

// UpdateEnrollmentProgress refreshes the enrollment progress from the learning platform.
// Learning platform failures are logged and leave the stored progress untouched: they return (false, nil).
func (s *Syncer) UpdateEnrollmentProgress(ctx context.Context, e enrollment.Enrollment) (bool, error) {
	outcome, err := s.update(ctx, e)
	return outcome == OutcomeUpdated, err
}

// update refreshes the enrollment progress and reports its outcome to the observers.
func (s *Syncer) update(ctx context.Context, e enrollment.Enrollment) (string, error) {
	outcome, err := s.refresh(ctx, e)
	s.observe(outcome)
	return outcome, err
}

func (s *Syncer) refresh(ctx context.Context, e enrollment.Enrollment) (string, error) {
	m, err := s.modules.GetByID(ctx, e.ModuleID)
	if err != nil {
		return OutcomeFailed, errors.Wrap(err, "getting module")
	}
	d, err := s.modules.Details(ctx, m)
	if err != nil {
		return OutcomeFailed, err
	}

	now := core.NowFunc()
	courseIDs := StartedCourseIDs(d.Courses, now)
	if len(courseIDs) == 0 {
		return OutcomeSkipped, nil
	}

	usr, err := s.users.GetByID(ctx, e.UserID)
	if err != nil {
		return OutcomeFailed, errors.Wrap(err, "getting user")
	}

	data, err := s.client.GetCoursesProgress(ctx, usr.Username, courseIDs)
	if err != nil {
		if IsRemote(err) {
			s.logger.Warn(fmt.Sprintf("syncing progress of enrollment %d: %v", e.ID, err), usr)
			return OutcomeRemoteError, nil
		}
		return OutcomeFailed, errors.Wrap(err, "getting courses progress")
	}

	p, err := s.enrollments.Progress(ctx, e.ID)
	if err != nil && errors.Cause(err) != enrollment.ErrProgressNotFound {
		return OutcomeFailed, errors.Wrap(err, "getting progress")
	}
	p.EnrollmentID = e.ID
	if p.Progress, err = Merge(p.Progress, data, now); err != nil {
		return OutcomeFailed, err
	}
	if _, err = s.enrollments.SaveProgress(ctx, p); err != nil {
		return OutcomeFailed, errors.Wrap(err, "saving progress")
	}
	return OutcomeUpdated, nil
}

// SyncActive refreshes the progress of every active enrollment (of the given modules only, if any).
// Failures of single enrollments are logged and counted; they do not stop the sync.
func (s *Syncer) SyncActive(ctx context.Context, moduleIDs ...int) (Summary, error) {
	enrollments, err := s.enrollments.ActiveEnrollments(ctx, moduleIDs...)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying active enrollments")
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, e := range enrollments {
		e := e // per-iteration copy; the module targets go 1.21 loop semantics
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := s.update(gctx, e)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Error(fmt.Sprintf("syncing progress of enrollment %d: %v", e.ID, err), err)
			}
			switch outcome {
			case OutcomeUpdated:
				summary.Updated++
			case OutcomeSkipped:
				summary.Skipped++
			case OutcomeRemoteError:
				summary.Remote++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	err = g.Wait()
	return summary, err
}
