package promo

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var now = time.Date(2021, time.March, 10, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func TestCheck(t *testing.T) {
	moduleID, courseID := 1, 2
	moduleCode := PromoCode{ProductType: ProductEdmodule, ModuleID: &moduleID, MaxUsage: 2, ActiveTill: truncateDate(now)}
	courseCode := PromoCode{ProductType: ProductCourse, CourseID: &courseID, MaxUsage: 1, ActiveTill: truncateDate(now)}

	usedUp := moduleCode
	usedUp.Used = 2
	expired := moduleCode
	expired.ActiveTill = truncateDate(now.AddDate(0, 0, -1))

	tests := []struct {
		name        string
		pc          PromoCode
		productID   int
		productType string
		wantErr     error
	}{
		{name: "module", pc: moduleCode, productID: moduleID, productType: ProductEdmodule},
		{name: "course", pc: courseCode, productID: courseID, productType: ProductCourse},
		{name: "same type, other id", pc: moduleCode, productID: 3, productType: ProductEdmodule},
		{name: "same id, other type", pc: moduleCode, productID: moduleID, productType: ProductCourse},
		{name: "module code on another course", pc: moduleCode, productID: 3, productType: ProductCourse, wantErr: NotForProductError{ProductCourse}},
		{name: "course code on another module", pc: courseCode, productID: 3, productType: ProductEdmodule, wantErr: NotForProductError{ProductEdmodule}},
		{name: "used up", pc: usedUp, productID: moduleID, productType: ProductEdmodule, wantErr: ErrUsedUp},
		{name: "expired", pc: expired, productID: moduleID, productType: ProductEdmodule, wantErr: ErrExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.pc, tt.productID, tt.productType, now)
			assert.Equal(t, tt.wantErr, err)
			if err != nil {
				assert.True(t, IsRejection(err))
			}
		})
	}
}

func TestNotForProductError(t *testing.T) {
	assert.EqualError(t, NotForProductError{ProductEdmodule}, "promo code does not belong to this module")
	assert.EqualError(t, NotForProductError{ProductCourse}, "promo code does not belong to this course")
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(errors.Wrap(ErrNothingToBuy, "calculating")))
	assert.True(t, IsRejection(&NotForProductError{}))
	assert.False(t, IsRejection(ErrNotFound))
	assert.False(t, IsRejection(errors.New("db down")))
	assert.False(t, IsRejection(nil))
}

func TestModulePrice(t *testing.T) {
	tests := []struct {
		name          string
		price         string
		wholePrice    string
		discount      string
		percent       string
		useWithOthers bool
		want          string
	}{
		{name: "stacking", price: "4000", wholePrice: "3600", discount: "10", percent: "10", useWithOthers: true, want: "3200"},
		{name: "stacking over 100%", price: "4000", wholePrice: "2000", discount: "50", percent: "60", useWithOthers: true, want: "0"},
		{name: "exclusive below module discount", price: "4000", wholePrice: "3600", discount: "10", percent: "5", want: "3600"},
		{name: "exclusive equal to module discount", price: "4000", wholePrice: "3600", discount: "10", percent: "10", want: "3600"},
		{name: "exclusive above module discount", price: "4000", wholePrice: "3600", discount: "10", percent: "25", want: "3000"},
		{name: "banker's rounding", price: "0.5", wholePrice: "0.5", discount: "0", percent: "99", useWithOthers: true, want: "0"},
		{name: "cents", price: "999", wholePrice: "999", discount: "0", percent: "33.33", useWithOthers: true, want: "666.03"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ModulePrice(d(tt.price), d(tt.wholePrice), d(tt.discount), d(tt.percent), tt.useWithOthers)
			assert.True(t, d(tt.want).Equal(got), "ModulePrice() = %s; want %s", got, tt.want)
		})
	}
}

func TestValidateDiscount(t *testing.T) {
	tests := []struct {
		name    string
		np      NewPromoCode
		wantErr string
	}{
		{name: "none", np: NewPromoCode{}, wantErr: "one of discount_percent or discount_price is required"},
		{name: "both", np: NewPromoCode{DiscountPercent: dp("1"), DiscountPrice: dp("1")}, wantErr: "mutually exclusive"},
		{name: "zero percent", np: NewPromoCode{DiscountPercent: dp("0")}, wantErr: "discount_percent"},
		{name: "percent above 100", np: NewPromoCode{DiscountPercent: dp("100.01")}, wantErr: "discount_percent"},
		{name: "percent with 3 decimals", np: NewPromoCode{DiscountPercent: dp("10.125")}, wantErr: "discount_percent"},
		{name: "negative price", np: NewPromoCode{DiscountPrice: dp("-1")}, wantErr: "discount_price"},
		{name: "price too high", np: NewPromoCode{DiscountPrice: dp("1000000")}, wantErr: "discount_price"},
		{name: "percent", np: NewPromoCode{DiscountPercent: dp("100")}},
		{name: "free", np: NewPromoCode{DiscountPrice: dp("0")}},
		{name: "price", np: NewPromoCode{DiscountPrice: dp("999999.99")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDiscount(tt.np)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		assert.NoError(t, err)
		assert.Len(t, code, codeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeCharset, r), "unexpected char %q", r)
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestEndOfDay(t *testing.T) {
	eod := endOfDay(time.Date(2021, time.March, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2021, time.March, 10, 23, 59, 59, 999999999, time.UTC), eod)
	assert.Equal(t, time.Date(2021, time.March, 10, 0, 0, 0, 0, time.UTC), truncateDate(now))
}
