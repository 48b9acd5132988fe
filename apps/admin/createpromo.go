package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plp/edmodule/core/promo"
)

type promoArgs struct {
	moduleCode string
	courseID   int
	activeTill time.Time
	percent    string
	price      string
	maxUsage   int
	code       string
	exclusive  bool
}

func (cli *commandLine) createPromo(args promoArgs) error {
	ctx := context.Background()

	np := promo.NewPromoCode{
		Code:        args.code,
		ProductType: promo.ProductCourse,
		ProductID:   args.courseID,
		ActiveTill:  args.activeTill,
		MaxUsage:    args.maxUsage,
	}
	if args.moduleCode != "" {
		m, err := cli.modSvc.Get(ctx, args.moduleCode)
		if err != nil {
			return err
		}
		np.ProductType, np.ProductID = promo.ProductEdmodule, m.ID
	}
	if args.exclusive {
		useWithOthers := false
		np.UseWithOthers = &useWithOthers
	}
	if args.percent != "" {
		d, err := decimal.NewFromString(args.percent)
		if err != nil {
			return fmt.Errorf("invalid percent %q", args.percent)
		}
		np.DiscountPercent = &d
	} else {
		d, err := decimal.NewFromString(args.price)
		if err != nil {
			return fmt.Errorf("invalid price %q", args.price)
		}
		np.DiscountPrice = &d
	}

	pc, err := cli.promoSvc.Create(ctx, np)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "promo code %s created\n", pc.Code)
	return nil
}
