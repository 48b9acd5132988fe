package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/rating"
)

const ratingColumns = "id, edmodule_id, user_id, rating, text, status, declined, created_at, updated_at"

type ratingRow struct {
	ID        int       `db:"id"`
	ModuleID  int       `db:"edmodule_id"`
	UserID    int       `db:"user_id"`
	Rating    int       `db:"rating"`
	Text      string    `db:"text"`
	Status    string    `db:"status"`
	Declined  bool      `db:"declined"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r ratingRow) rating() rating.Rating {
	return rating.Rating{
		ID:        r.ID,
		ModuleID:  r.ModuleID,
		UserID:    r.UserID,
		Rating:    r.Rating,
		Text:      r.Text,
		Status:    r.Status,
		Declined:  r.Declined,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type ratingRepository struct {
	db core.DB
}

var _ rating.Repository = (*ratingRepository)(nil) // interface compliance check

func NewRatingRepository(db core.DB) rating.Repository {
	return &ratingRepository{db: db}
}

func (repo ratingRepository) get(ctx context.Context, w where) (rating.Rating, error) {
	var r ratingRow
	q := repo.db.Rebind("SELECT " + ratingColumns + " FROM edmodule_ratings" + w.String())
	if err := repo.db.GetContext(ctx, &r, q, w.args...); err != nil {
		return rating.Rating{}, trapNoRowsErr(err, rating.ErrNotFound, "getting rating")
	}
	return r.rating(), nil
}

func (repo ratingRepository) GetRating(ctx context.Context, id int) (rating.Rating, error) {
	var w where
	w.add("id = ?", id)
	return repo.get(ctx, w)
}

func (repo ratingRepository) GetUserRating(ctx context.Context, userID, moduleID int) (rating.Rating, error) {
	var w where
	w.add("user_id = ?", userID)
	w.add("edmodule_id = ?", moduleID)
	return repo.get(ctx, w)
}

func (repo ratingRepository) SaveRating(ctx context.Context, r rating.Rating) (rating.Rating, error) {
	q := repo.db.Rebind(`INSERT INTO edmodule_ratings
		(edmodule_id, user_id, rating, text, status, declined, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, edmodule_id) DO UPDATE SET
		rating = EXCLUDED.rating, text = EXCLUDED.text, status = EXCLUDED.status, declined = EXCLUDED.declined,
		updated_at = EXCLUDED.updated_at
		RETURNING ` + ratingColumns)
	var saved ratingRow
	err := repo.db.GetContext(ctx, &saved, q,
		r.ModuleID, r.UserID, r.Rating, r.Text, r.Status, r.Declined, r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	if err != nil {
		return rating.Rating{}, errors.Wrap(err, "saving rating")
	}
	return saved.rating(), nil
}

func (repo ratingRepository) QueryRatings(ctx context.Context, filter rating.QueryFilter) ([]rating.Rating, error) {
	var w where
	if filter.ModuleID != 0 {
		w.add("edmodule_id = ?", filter.ModuleID)
	}
	if filter.UserID != 0 {
		w.add("user_id = ?", filter.UserID)
	}
	if filter.VisibleOnly {
		w.add("status = ?", rating.StatusPublished)
		w.add("NOT declined")
	}
	q := "SELECT " + ratingColumns + " FROM edmodule_ratings" + w.String() + " ORDER BY updated_at DESC, id DESC"
	args := w.args
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	var rows []ratingRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying ratings")
	}
	ratings := make([]rating.Rating, 0, len(rows))
	for _, r := range rows {
		ratings = append(ratings, r.rating())
	}
	return ratings, nil
}
