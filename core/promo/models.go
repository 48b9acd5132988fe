package promo

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/plp/edmodule/core"
)

// Products a promo code may apply to.
const (
	ProductCourse   = "course"
	ProductEdmodule = "edmodule"
)

var Products = []string{ProductCourse, ProductEdmodule}

type PromoCode struct {
	ID              int                 `json:"id"`
	Code            string              `json:"code"`
	ProductType     string              `json:"product_type"`
	CourseID        *int                `json:"course_id"`
	ModuleID        *int                `json:"edmodule_id"`
	ActiveTill      time.Time           `json:"active_till"` // date
	MaxUsage        int                 `json:"max_usage"`
	Used            int                 `json:"used"`
	UseWithOthers   bool                `json:"use_with_others"`
	DiscountPercent decimal.NullDecimal `json:"discount_percent"`
	DiscountPrice   decimal.NullDecimal `json:"discount_price"`
	CreatedAt       time.Time           `json:"created_at"`
}

// ProductID is the ID of the course or module the code belongs to.
func (pc PromoCode) ProductID() int {
	if pc.ProductType == ProductEdmodule && pc.ModuleID != nil {
		return *pc.ModuleID
	}
	if pc.ProductType == ProductCourse && pc.CourseID != nil {
		return *pc.CourseID
	}
	return 0
}

// NewPromoCode contains information needed to create a new PromoCode.
type NewPromoCode struct {
	Code            string           `json:"code" validate:"omitempty,max=6,alphanum"`
	ProductType     string           `json:"product_type" validate:"required,promoproduct"`
	ProductID       int              `json:"product_id" validate:"required,min=1"`
	ActiveTill      time.Time        `json:"active_till" validate:"required"`
	MaxUsage        int              `json:"max_usage" validate:"required,min=1,max=32767"`
	UseWithOthers   *bool            `json:"use_with_others"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	DiscountPrice   *decimal.Decimal `json:"discount_price"`
}

func (np *NewPromoCode) Clean() {
	np.Code = core.CleanString(np.Code)
	np.ProductType = core.CleanString(np.ProductType, true /* lower */)
}

// CalcRequest tells what a promo code price should be computed for.
type CalcRequest struct {
	ProductID       int  `json:"product_id"`
	OnlyFirstCourse bool `json:"only_first_course"`
	SessionID       int  `json:"session_id"`
}

type QueryFilter struct {
	ProductType string
	ProductID   int
	ActiveOn    time.Time
}
