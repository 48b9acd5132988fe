package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/promo"
)

const promoColumns = "id, code, product_type, course_id, edmodule_id, active_till, max_usage, used, " +
	"use_with_others, discount_percent, discount_price, created_at"

type promoRow struct {
	ID              int                 `db:"id"`
	Code            string              `db:"code"`
	ProductType     string              `db:"product_type"`
	CourseID        null.Int            `db:"course_id"`
	ModuleID        null.Int            `db:"edmodule_id"`
	ActiveTill      time.Time           `db:"active_till"`
	MaxUsage        int                 `db:"max_usage"`
	Used            int                 `db:"used"`
	UseWithOthers   bool                `db:"use_with_others"`
	DiscountPercent decimal.NullDecimal `db:"discount_percent"`
	DiscountPrice   decimal.NullDecimal `db:"discount_price"`
	CreatedAt       time.Time           `db:"created_at"`
}

func (r promoRow) promoCode() promo.PromoCode {
	y, m, d := r.ActiveTill.Date()
	return promo.PromoCode{
		ID:              r.ID,
		Code:            r.Code,
		ProductType:     r.ProductType,
		CourseID:        r.CourseID.Ptr(),
		ModuleID:        r.ModuleID.Ptr(),
		ActiveTill:      time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		MaxUsage:        r.MaxUsage,
		Used:            r.Used,
		UseWithOthers:   r.UseWithOthers,
		DiscountPercent: r.DiscountPercent,
		DiscountPrice:   r.DiscountPrice,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type promoRepository struct {
	db core.DB
}

var _ promo.Repository = (*promoRepository)(nil) // interface compliance check

func NewPromoRepository(db core.DB) promo.Repository {
	return &promoRepository{db: db}
}

func (repo promoRepository) CreatePromoCode(ctx context.Context, pc promo.PromoCode) (promo.PromoCode, error) {
	q := repo.db.Rebind(`INSERT INTO promo_codes
		(code, product_type, course_id, edmodule_id, active_till, max_usage, used, use_with_others,
		discount_percent, discount_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING ` + promoColumns)
	var r promoRow
	err := repo.db.GetContext(ctx, &r, q,
		pc.Code, pc.ProductType, null.IntFromPtr(pc.CourseID), null.IntFromPtr(pc.ModuleID),
		pc.ActiveTill.Format("2006-01-02"), pc.MaxUsage, pc.Used, pc.UseWithOthers,
		pc.DiscountPercent, pc.DiscountPrice, pc.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return promo.PromoCode{}, promo.ErrCodeExists
		}
		return promo.PromoCode{}, errors.Wrap(err, "inserting promo code")
	}
	return r.promoCode(), nil
}

func (repo promoRepository) GetPromoCode(ctx context.Context, code string) (promo.PromoCode, error) {
	var r promoRow
	q := repo.db.Rebind("SELECT " + promoColumns + " FROM promo_codes WHERE code = ?")
	if err := repo.db.GetContext(ctx, &r, q, code); err != nil {
		return promo.PromoCode{}, trapNoRowsErr(err, promo.ErrNotFound, "getting promo code")
	}
	return r.promoCode(), nil
}

func (repo promoRepository) QueryPromoCodes(ctx context.Context, filter promo.QueryFilter) ([]promo.PromoCode, error) {
	var w where
	if filter.ProductType != "" {
		w.add("product_type = ?", filter.ProductType)
	}
	if filter.ProductID != 0 {
		w.add("COALESCE(course_id, edmodule_id) = ?", filter.ProductID)
	}
	if !filter.ActiveOn.IsZero() {
		w.add("active_till >= ?", filter.ActiveOn.Format("2006-01-02"))
	}
	var rows []promoRow
	q := repo.db.Rebind("SELECT " + promoColumns + " FROM promo_codes" + w.String() + " ORDER BY id")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying promo codes")
	}
	codes := make([]promo.PromoCode, 0, len(rows))
	for _, r := range rows {
		codes = append(codes, r.promoCode())
	}
	return codes, nil
}

func (repo promoRepository) IncrementUsage(ctx context.Context, id int) (promo.PromoCode, error) {
	var r promoRow
	q := repo.db.Rebind("UPDATE promo_codes SET used = used + 1 WHERE id = ? AND used < max_usage RETURNING " + promoColumns)
	err := repo.db.GetContext(ctx, &r, q, id)
	if err == nil {
		return r.promoCode(), nil
	}
	if errors.Cause(err) != sql.ErrNoRows {
		return promo.PromoCode{}, errors.Wrap(err, "incrementing promo code usage")
	}

	var exists bool
	q = repo.db.Rebind("SELECT EXISTS (SELECT 1 FROM promo_codes WHERE id = ?)")
	if err = repo.db.QueryRowxContext(ctx, q, id).Scan(&exists); err != nil {
		return promo.PromoCode{}, errors.Wrap(err, "checking promo code")
	}
	if !exists {
		return promo.PromoCode{}, promo.ErrNotFound
	}
	return promo.PromoCode{}, promo.ErrUsedUp
}
