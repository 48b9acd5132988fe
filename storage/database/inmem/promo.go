package inmemdb

import (
	"context"

	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/core/promo"
)

type promoRepository struct {
	db *DB
}

var _ promo.Repository = (*promoRepository)(nil)

func NewPromoRepository(db *DB) promo.Repository {
	return &promoRepository{db: db}
}

func (repo *promoRepository) CreatePromoCode(_ context.Context, pc promo.PromoCode) (promo.PromoCode, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.promoCodes {
		if existing.Code == pc.Code {
			return promo.PromoCode{}, promo.ErrCodeExists
		}
	}
	pc.ID = repo.db.nextPK()
	repo.db.promoCodes[pc.ID] = &pc
	return pc, nil
}

func (repo *promoRepository) GetPromoCode(_ context.Context, code string) (promo.PromoCode, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, pc := range rows(repo.db.promoCodes) {
		if pc.Code == code {
			return pc, nil
		}
	}
	return promo.PromoCode{}, promo.ErrNotFound
}

func (repo *promoRepository) QueryPromoCodes(_ context.Context, filter promo.QueryFilter) ([]promo.PromoCode, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	codes := make([]promo.PromoCode, 0)
	for _, pc := range rows(repo.db.promoCodes) {
		if filter.ProductType != "" && pc.ProductType != filter.ProductType {
			continue
		}
		if filter.ProductID != 0 && pc.ProductID() != filter.ProductID {
			continue
		}
		if !filter.ActiveOn.IsZero() && course.DateBefore(pc.ActiveTill, filter.ActiveOn) {
			continue
		}
		codes = append(codes, pc)
	}
	return codes, nil
}

func (repo *promoRepository) IncrementUsage(_ context.Context, id int) (promo.PromoCode, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	pc, ok := repo.db.promoCodes[id]
	if !ok {
		return promo.PromoCode{}, promo.ErrNotFound
	}
	if pc.Used >= pc.MaxUsage {
		return promo.PromoCode{}, promo.ErrUsedUp
	}
	pc.Used++
	return *pc, nil
}
