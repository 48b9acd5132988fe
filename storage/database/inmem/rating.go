package inmemdb

import (
	"context"
	"sort"

	"github.com/plp/edmodule/core/rating"
)

type ratingRepository struct {
	db *DB
}

var _ rating.Repository = (*ratingRepository)(nil)

func NewRatingRepository(db *DB) rating.Repository {
	return &ratingRepository{db: db}
}

func (repo *ratingRepository) GetRating(_ context.Context, id int) (rating.Rating, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.ratings[id]; ok {
		return *r, nil
	}
	return rating.Rating{}, rating.ErrNotFound
}

func (repo *ratingRepository) GetUserRating(_ context.Context, userID, moduleID int) (rating.Rating, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, r := range rows(repo.db.ratings) {
		if r.UserID == userID && r.ModuleID == moduleID {
			return r, nil
		}
	}
	return rating.Rating{}, rating.ErrNotFound
}

func (repo *ratingRepository) SaveRating(_ context.Context, r rating.Rating) (rating.Rating, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, existing := range repo.db.ratings {
		if existing.UserID == r.UserID && existing.ModuleID == r.ModuleID {
			r.ID = id
		}
	}
	if r.ID == 0 {
		r.ID = repo.db.nextPK()
	}
	repo.db.ratings[r.ID] = &r
	return r, nil
}

func (repo *ratingRepository) QueryRatings(_ context.Context, filter rating.QueryFilter) ([]rating.Rating, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ratings := make([]rating.Rating, 0)
	for _, r := range rows(repo.db.ratings) {
		if filter.ModuleID != 0 && r.ModuleID != filter.ModuleID {
			continue
		}
		if filter.UserID != 0 && r.UserID != filter.UserID {
			continue
		}
		if filter.VisibleOnly && !r.Visible() {
			continue
		}
		ratings = append(ratings, r)
	}
	sort.SliceStable(ratings, func(i, j int) bool {
		if !ratings[i].UpdatedAt.Equal(ratings[j].UpdatedAt) {
			return ratings[i].UpdatedAt.After(ratings[j].UpdatedAt)
		}
		return ratings[i].ID > ratings[j].ID
	})
	if filter.Limit > 0 && len(ratings) > filter.Limit {
		ratings = ratings[:filter.Limit]
	}
	return ratings, nil
}
