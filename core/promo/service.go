package promo

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/core/edmodule"
	"github.com/plp/edmodule/core/pricing"
)

const (
	codeLength  = 6
	codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var (
	ErrNotFound        = errors.New("promo code not found")
	ErrCodeExists      = errors.New("a promo code with this code already exists")
	ErrUsedUp          = errors.New("promo code has already been used")
	ErrExpired         = errors.New("promo code has expired")
	ErrModuleNotFound  = errors.New("could not find the module")
	ErrSessionNotFound = errors.New("could not find the course session")
	ErrNothingToBuy    = errors.New("no session can be bought in this module")
	ErrNotBuyable      = errors.New("the course session cannot be bought")
)

// NotForProductError is returned when a code is applied to a product it was not issued for.
type NotForProductError struct {
	ProductType string
}

func (e NotForProductError) Error() string {
	if e.ProductType == ProductEdmodule {
		return "promo code does not belong to this module"
	}
	return "promo code does not belong to this course"
}

// IsRejection tells whether err explains why a code cannot be used, as opposed to a failure.
func IsRejection(err error) bool {
	switch errors.Cause(err).(type) {
	case NotForProductError, *NotForProductError:
		return true
	}
	switch errors.Cause(err) {
	case ErrUsedUp, ErrExpired, ErrModuleNotFound, ErrSessionNotFound, ErrNothingToBuy, ErrNotBuyable:
		return true
	}
	return false
}

type (
	Repository interface {
		CreatePromoCode(ctx context.Context, pc PromoCode) (PromoCode, error)
		GetPromoCode(ctx context.Context, code string) (PromoCode, error)
		QueryPromoCodes(ctx context.Context, filter QueryFilter) ([]PromoCode, error)
		// IncrementUsage atomically bumps the usage counter, failing with ErrUsedUp once max usage is reached.
		IncrementUsage(ctx context.Context, id int) (PromoCode, error)
	}

	Service struct {
		repo      Repository
		modules   *edmodule.Service
		courses   *course.Service
		pricing   *pricing.Service
		genCodeFn func() (string, error)
	}
)

func NewService(repo Repository, modules *edmodule.Service, courses *course.Service, prices *pricing.Service) *Service {
	return &Service{
		repo:      repo,
		modules:   modules,
		courses:   courses,
		pricing:   prices,
		genCodeFn: generateCode,
	}
}

func generateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", errors.Wrap(err, "random int")
		}
		code[i] = codeCharset[n.Int64()]
	}
	return string(code), nil
}

func (svc *Service) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < 10; i++ {
		code, err := svc.genCodeFn()
		if err != nil {
			return "", err
		}
		if _, err = svc.repo.GetPromoCode(ctx, code); errors.Cause(err) == ErrNotFound {
			return code, nil
		} else if err != nil {
			return "", errors.Wrap(err, "checking promo code")
		}
	}
	return "", errors.New("failed to generate a unique promo code after 10 attempts")
}

func (svc *Service) Create(ctx context.Context, np NewPromoCode) (PromoCode, error) {
	np.Clean()
	if err := core.Validate.Struct(np); err != nil {
		return PromoCode{}, err
	}
	if err := validateDiscount(np); err != nil {
		return PromoCode{}, err
	}

	pc := PromoCode{
		Code:          np.Code,
		ProductType:   np.ProductType,
		ActiveTill:    truncateDate(np.ActiveTill),
		MaxUsage:      np.MaxUsage,
		UseWithOthers: true,
		CreatedAt:     core.NowFunc().UTC(),
	}
	if np.UseWithOthers != nil {
		pc.UseWithOthers = *np.UseWithOthers
	}
	if np.DiscountPercent != nil {
		pc.DiscountPercent = decimal.NewNullDecimal(*np.DiscountPercent)
	}
	if np.DiscountPrice != nil {
		pc.DiscountPrice = decimal.NewNullDecimal(*np.DiscountPrice)
	}

	productID := np.ProductID
	switch np.ProductType {
	case ProductEdmodule:
		if _, err := svc.modules.GetByID(ctx, productID); err != nil {
			if errors.Cause(err) == edmodule.ErrNotFound {
				return PromoCode{}, core.NewValidationError(nil, core.FieldError{Field: "product_id", Error: err.Error()})
			}
			return PromoCode{}, errors.Wrap(err, "getting module")
		}
		pc.ModuleID = &productID
	default:
		if _, err := svc.courses.Get(ctx, productID); err != nil {
			if errors.Cause(err) == course.ErrNotFound {
				return PromoCode{}, core.NewValidationError(nil, core.FieldError{Field: "product_id", Error: err.Error()})
			}
			return PromoCode{}, errors.Wrap(err, "getting course")
		}
		pc.CourseID = &productID
	}

	if pc.Code == "" {
		code, err := svc.uniqueCode(ctx)
		if err != nil {
			return PromoCode{}, err
		}
		pc.Code = code
	} else if _, err := svc.repo.GetPromoCode(ctx, pc.Code); err == nil {
		return PromoCode{}, core.NewValidationError(ErrCodeExists, core.FieldError{Field: "code", Error: ErrCodeExists.Error()})
	} else if errors.Cause(err) != ErrNotFound {
		return PromoCode{}, errors.Wrap(err, "checking promo code")
	}

	return svc.repo.CreatePromoCode(ctx, pc)
}

func (svc *Service) Get(ctx context.Context, code string) (PromoCode, error) {
	return svc.repo.GetPromoCode(ctx, core.CleanString(code))
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]PromoCode, error) {
	return svc.repo.QueryPromoCodes(ctx, filter)
}

// Check tells whether pc can be applied to the product at `now`.
// A code is rejected as foreign only when neither its product type nor its product id match.
func Check(pc PromoCode, productID int, productType string, now time.Time) error {
	if pc.ProductType != productType && pc.ProductID() != productID {
		return NotForProductError{ProductType: productType}
	}
	if pc.Used >= pc.MaxUsage {
		return ErrUsedUp
	}
	if course.DateBefore(pc.ActiveTill, now) {
		return ErrExpired
	}
	return nil
}

// Validate loads the code and checks it against the product.
func (svc *Service) Validate(ctx context.Context, code string, productID int, productType string) (PromoCode, error) {
	pc, err := svc.Get(ctx, code)
	if err != nil {
		return PromoCode{}, err
	}
	return pc, Check(pc, productID, productType, core.NowFunc())
}

// Calculate returns the price of the product once the code is applied.
func (svc *Service) Calculate(ctx context.Context, pc PromoCode, req CalcRequest) (decimal.Decimal, error) {
	if pc.DiscountPrice.Valid {
		return finalPrice(pc.DiscountPrice.Decimal), nil
	}
	percent := pc.DiscountPercent.Decimal

	if pc.ProductType == ProductEdmodule {
		m, err := svc.modules.GetByID(ctx, req.ProductID)
		if err != nil {
			if errors.Cause(err) == edmodule.ErrNotFound {
				return decimal.Zero, ErrModuleNotFound
			}
			return decimal.Zero, errors.Wrap(err, "getting module")
		}
		d, err := svc.modules.Details(ctx, m)
		if err != nil {
			return decimal.Zero, err
		}
		pl, err := svc.pricing.PriceList(ctx, d, 0)
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "computing price list")
		}

		price := decimal.NewFromInt(int64(pl.Price))
		wholePrice := pl.WholePrice
		moduleDiscount := decimal.NewFromInt(int64(pl.Discount))
		if req.OnlyFirstCourse {
			stb, err := svc.pricing.FirstSessionToBuy(ctx, d, 0)
			if err != nil {
				return decimal.Zero, errors.Wrap(err, "getting first session to buy")
			}
			if stb == nil {
				return decimal.Zero, ErrNothingToBuy
			}
			price = decimal.NewFromInt(int64(stb.Price))
			wholePrice = pricing.Discounted(price, moduleDiscount)
		}
		return ModulePrice(price, wholePrice, moduleDiscount, percent, pc.UseWithOthers), nil
	}

	s, err := svc.courses.GetSession(ctx, req.SessionID)
	if err != nil {
		if errors.Cause(err) == course.ErrSessionNotFound {
			return decimal.Zero, ErrSessionNotFound
		}
		return decimal.Zero, errors.Wrap(err, "getting session")
	}
	et := s.VerifiedEnrollmentType(core.NowFunc())
	if et == nil {
		return decimal.Zero, ErrNotBuyable
	}
	return finalPrice(pricing.Discounted(decimal.NewFromInt(int64(et.Price)), percent)), nil
}

// ModulePrice applies a percent promo code to a module price.
// A stacking code adds its percent to the module discount. An exclusive code competes with it:
// the module's own whole price wins when its discount is larger.
func ModulePrice(price, wholePrice, moduleDiscount, percent decimal.Decimal, useWithOthers bool) decimal.Decimal {
	if useWithOthers {
		return finalPrice(pricing.Discounted(price, percent.Add(moduleDiscount)))
	}
	if moduleDiscount.GreaterThan(percent) {
		return finalPrice(wholePrice)
	}
	return finalPrice(pricing.Discounted(price, percent))
}

func finalPrice(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		p = decimal.Zero
	}
	return p.RoundBank(2)
}

// Redeem consumes one use of the code.
func (svc *Service) Redeem(ctx context.Context, code string) (PromoCode, error) {
	pc, err := svc.Get(ctx, code)
	if err != nil {
		return PromoCode{}, err
	}
	if core.NowFunc().After(endOfDay(pc.ActiveTill)) {
		return PromoCode{}, ErrExpired
	}
	return svc.repo.IncrementUsage(ctx, pc.ID)
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func endOfDay(date time.Time) time.Time {
	return truncateDate(date).Add(24*time.Hour - time.Nanosecond)
}
