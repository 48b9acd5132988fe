package rating

import (
	"context"

	"github.com/pkg/errors"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/edmodule"
)

const feedbackListSize = 2

var ErrNotFound = errors.New("rating not found")

func init() {
	core.RegisterOneOf("ratingstatus", "invalid review status", Statuses...)
}

type (
	Repository interface {
		GetRating(ctx context.Context, id int) (Rating, error)
		GetUserRating(ctx context.Context, userID, moduleID int) (Rating, error)
		// SaveRating inserts the rating or updates the one of the same (user, module).
		SaveRating(ctx context.Context, r Rating) (Rating, error)
		// QueryRatings returns ratings ordered by most recently updated first.
		QueryRatings(ctx context.Context, filter QueryFilter) ([]Rating, error)
	}

	// ModuleRatings stores the aggregated ratings on modules.
	ModuleRatings interface {
		GetByID(ctx context.Context, id int) (edmodule.Module, error)
		SetRatings(ctx context.Context, moduleID, sum, count int) error
	}

	Service struct {
		repo    Repository
		modules ModuleRatings
	}
)

func NewService(repo Repository, modules ModuleRatings) *Service {
	return &Service{repo: repo, modules: modules}
}

func (svc *Service) Get(ctx context.Context, id int) (Rating, error) {
	return svc.repo.GetRating(ctx, id)
}

// Rate stores the user's review of the module. An updated review goes back to moderation.
func (svc *Service) Rate(ctx context.Context, userID, moduleID int, nr NewRating) (Rating, error) {
	nr.Clean()
	if err := core.Validate.Struct(nr); err != nil {
		return Rating{}, err
	}
	if _, err := svc.modules.GetByID(ctx, moduleID); err != nil {
		return Rating{}, err
	}

	now := core.NowFunc().UTC()
	r, err := svc.repo.GetUserRating(ctx, userID, moduleID)
	switch errors.Cause(err) {
	case nil:
	case ErrNotFound:
		r = Rating{UserID: userID, ModuleID: moduleID, CreatedAt: now}
	default:
		return Rating{}, errors.Wrap(err, "getting user rating")
	}
	r.Rating = nr.Rating
	r.Text = nr.Text
	r.Status = StatusModeration
	r.Declined = false
	r.UpdatedAt = now

	if r, err = svc.repo.SaveRating(ctx, r); err != nil {
		return Rating{}, errors.Wrap(err, "saving rating")
	}
	if err = svc.UpdateMeanRatings(ctx, moduleID); err != nil {
		return Rating{}, err
	}
	return r, nil
}

func (svc *Service) Moderate(ctx context.Context, id int, mod Moderation) (Rating, error) {
	if err := core.Validate.Struct(mod); err != nil {
		return Rating{}, err
	}
	r, err := svc.repo.GetRating(ctx, id)
	if err != nil {
		return Rating{}, err
	}
	r.Status = mod.Status
	r.Declined = mod.Declined
	r.UpdatedAt = core.NowFunc().UTC()

	if r, err = svc.repo.SaveRating(ctx, r); err != nil {
		return Rating{}, errors.Wrap(err, "saving rating")
	}
	if err = svc.UpdateMeanRatings(ctx, r.ModuleID); err != nil {
		return Rating{}, err
	}
	return r, nil
}

// UpdateMeanRatings stores on the module the sum and count of its visible reviews.
func (svc *Service) UpdateMeanRatings(ctx context.Context, moduleID int) error {
	ratings, err := svc.repo.QueryRatings(ctx, QueryFilter{ModuleID: moduleID, VisibleOnly: true})
	if err != nil {
		return errors.Wrap(err, "querying ratings")
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Rating
	}
	if err = svc.modules.SetRatings(ctx, moduleID, sum, len(ratings)); err != nil {
		return errors.Wrap(err, "setting module ratings")
	}
	return nil
}

// FeedbackList returns the most recently updated visible reviews of the module.
func (svc *Service) FeedbackList(ctx context.Context, moduleID int) ([]Rating, error) {
	return svc.repo.QueryRatings(ctx, QueryFilter{ModuleID: moduleID, VisibleOnly: true, Limit: feedbackListSize})
}
