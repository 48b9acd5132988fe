package pricing

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/core/edmodule"
)

var hundred = decimal.NewFromInt(100)

type CoursePrice struct {
	CourseID int    `json:"course_id"`
	Title    string `json:"title"`
	Price    int    `json:"price"`
}

// PriceList is what a user still has to pay for a module.
type PriceList struct {
	Courses    []CoursePrice   `json:"courses"`
	Price      int             `json:"price"`
	WholePrice decimal.Decimal `json:"whole_price"`
	Discount   int             `json:"discount"`
}

// SessionToBuy is the first session a user can buy in a module.
type SessionToBuy struct {
	Course  course.Course  `json:"-"`
	Session course.Session `json:"session"`
	Price   int            `json:"price"`
}

// Discounted applies `percent` to `price`.
func Discounted(price, percent decimal.Decimal) decimal.Decimal {
	return price.Mul(hundred.Sub(percent)).Div(hundred)
}

type Service struct {
	courses *course.Service
}

func NewService(courses *course.Service) *Service {
	return &Service{courses: courses}
}

// PriceList computes the module price for `userID` (anonymous when 0), excluding the courses they already paid for.
func (svc *Service) PriceList(ctx context.Context, d edmodule.Details, userID int) (PriceList, error) {
	payments, err := svc.courses.VerifiedPayments(ctx, userID, d.CourseIDs...)
	if err != nil {
		return PriceList{}, errors.Wrap(err, "getting verified payments")
	}
	return BuildPriceList(d, payments, core.NowFunc()), nil
}

// BuildPriceList applies the pricing rules to the module courses given the user's verified payments.
// A course is paid, and listed at 0, when one of its payments is graduated or its session has not ended yet.
// Every other course costs the verified price of its session whose enrollment closes last,
// among the sessions whose enrollment has already opened.
func BuildPriceList(d edmodule.Details, payments []course.SessionPayment, now time.Time) PriceList {
	paid := make(map[int]bool, len(payments))
	for _, p := range payments {
		if p.Graduated || (p.SessionEnds != nil && p.SessionEnds.After(now)) {
			paid[p.CourseID] = true
		}
	}

	pl := PriceList{
		Courses:  make([]CoursePrice, 0, len(d.Courses)),
		Discount: d.Discount,
	}
	for _, c := range d.Courses {
		var price int
		if s := latestEnrollSession(c, now); s != nil && !paid[c.ID] {
			price, _ = s.VerifiedPrice()
		}
		pl.Courses = append(pl.Courses, CoursePrice{CourseID: c.ID, Title: c.Title, Price: price})
		pl.Price += price
	}
	pl.WholePrice = Discounted(decimal.NewFromInt(int64(pl.Price)), decimal.NewFromInt(int64(pl.Discount)))
	return pl
}

func latestEnrollSession(c course.Course, now time.Time) *course.Session {
	var latest *course.Session
	for i := range c.Sessions {
		s := &c.Sessions[i]
		if s.DatetimeEndEnroll == nil || s.DatetimeStartEnroll == nil || !s.DatetimeStartEnroll.Before(now) {
			continue
		}
		if latest == nil || s.DatetimeEndEnroll.After(*latest.DatetimeEndEnroll) {
			latest = s
		}
	}
	return latest
}

// FirstSessionToBuy returns the first non-project course session with a buyable verified type
// the user has not paid yet. Returns nil when there is nothing to buy.
func (svc *Service) FirstSessionToBuy(ctx context.Context, d edmodule.Details, userID int) (*SessionToBuy, error) {
	now := core.NowFunc()
	for _, c := range d.Courses {
		if c.IsProject {
			continue
		}
		s := c.NextSession(now)
		if s == nil {
			continue
		}
		et := s.VerifiedEnrollmentType(now)
		if et == nil {
			continue
		}
		if userID != 0 {
			paid, err := svc.courses.HasPaidSession(ctx, userID, s.ID)
			if err != nil {
				return nil, errors.Wrap(err, "checking session payment")
			}
			if paid {
				continue
			}
		}
		return &SessionToBuy{Course: c, Session: *s, Price: et.Price}, nil
	}
	return nil, nil
}
