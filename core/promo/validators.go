package promo

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/plp/edmodule/core"
)

var (
	productTag  = "promoproduct"
	productText = "invalid product type"

	maxPercent = decimal.NewFromInt(100)
	maxPrice   = decimal.NewFromInt(1000000) // decimal(8,2)
)

func init() {
	core.RegisterOneOf(productTag, productText, Products...)
}

// validateDiscount enforces that exactly one pricing strategy is set and within its column bounds.
func validateDiscount(np NewPromoCode) error {
	switch {
	case np.DiscountPercent == nil && np.DiscountPrice == nil:
		return core.NewValidationError(errors.New("one of discount_percent or discount_price is required"))
	case np.DiscountPercent != nil && np.DiscountPrice != nil:
		return core.NewValidationError(errors.New("discount_percent and discount_price are mutually exclusive"))
	case np.DiscountPercent != nil:
		p := *np.DiscountPercent
		if !p.IsPositive() || p.GreaterThan(maxPercent) || !p.Equal(p.Round(2)) {
			return core.NewValidationError(nil, core.FieldError{
				Field: "discount_percent",
				Error: "must be greater than 0 and at most 100, with 2 decimal places",
			})
		}
	default:
		p := *np.DiscountPrice
		if p.IsNegative() || !p.LessThan(maxPrice) || !p.Equal(p.Round(2)) {
			return core.NewValidationError(nil, core.FieldError{
				Field: "discount_price",
				Error: "must be positive and below 1000000, with 2 decimal places",
			})
		}
	}
	return nil
}
